package migration

import (
	"github.com/smallbiznis/shoptok/internal/config"
	"github.com/smallbiznis/shoptok/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if db.ConfigFrom(cfg).Type != db.TypePostgres {
			if err := AutoMigrate(conn); err != nil {
				return err
			}
			log.Info("schema migrated", zap.String("db_type", cfg.DBType), zap.String("strategy", "automigrate"))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		log.Info("schema migrated", zap.String("db_type", cfg.DBType), zap.String("strategy", "migrate"))
		return nil
	}),
)
