package db

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/shoptok/internal/config"
	obslogger "github.com/smallbiznis/shoptok/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

const statsRefreshSeconds = 15

var Module = fx.Module("db",
	fx.Provide(New),
)

// New opens the configured database and closes the pool on shutdown.
func New(lc fx.Lifecycle, appCfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	cfg := ConfigFrom(appCfg)
	conn, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			log.Info("closing database pool", zap.String("type", cfg.Type))
			return sqlDB.Close()
		},
	})
	return conn, nil
}

func Open(cfg Config) (*gorm.DB, error) {
	dialect, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialect, &gorm.Config{
		Logger: obslogger.NewGormLogger(obslogger.GormConfig{
			Level:         obslogger.GormLevel(cfg.LogLevel),
			SlowThreshold: cfg.SlowQuery,
			LogNotFound:   cfg.LogNotFound,
		}),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Type, err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.Type == TypeSQLite {
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Second)
	}

	if cfg.Tracing {
		if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(databaseLabel(cfg)))); err != nil {
			return nil, fmt.Errorf("register gorm tracing: %w", err)
		}
	}
	if cfg.Stats {
		if err := conn.Use(gormprometheus.New(gormprometheus.Config{
			DBName:          databaseLabel(cfg),
			RefreshInterval: statsRefreshSeconds,
		})); err != nil {
			return nil, fmt.Errorf("register gorm stats: %w", err)
		}
	}
	return conn, nil
}

func databaseLabel(cfg Config) string {
	if cfg.Type == TypeSQLite || cfg.Name == "" {
		return cfg.Type
	}
	return cfg.Name
}
