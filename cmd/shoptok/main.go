package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shoptok/internal/clock"
	"github.com/smallbiznis/shoptok/internal/config"
	"github.com/smallbiznis/shoptok/internal/lock"
	"github.com/smallbiznis/shoptok/internal/migration"
	"github.com/smallbiznis/shoptok/internal/observability"
	"github.com/smallbiznis/shoptok/internal/ratelimit"
	"github.com/smallbiznis/shoptok/internal/scheduler"
	"github.com/smallbiznis/shoptok/internal/server"
	"github.com/smallbiznis/shoptok/pkg/db"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
)

func main() {
	flags := config.Flags{}
	var nodeID int64
	pflag.StringVar(&flags.ConfigPath, "config", "", "path to settlement.yml")
	pflag.StringVar(&flags.HTTPAddr, "http-addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	pflag.BoolVar(&flags.MigrateOnly, "migrate-only", false, "apply schema migrations and exit")
	pflag.Int64Var(&nodeID, "node-id", 1, "snowflake node id for this instance")
	pflag.Parse()

	core := fx.Options(
		fx.Supply(flags),
		config.Module,
		observability.Module,
		db.Module,
		migration.Module,
	)

	if flags.MigrateOnly {
		app := fx.New(core)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := app.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		_ = app.Stop(ctx)
		return
	}

	app := fx.New(
		core,
		fx.Provide(func() (*snowflake.Node, error) {
			return snowflake.NewNode(nodeID)
		}),
		clock.Module,
		lock.Module,
		ratelimit.Module,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}
