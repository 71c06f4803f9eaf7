package db

import (
	"time"

	"github.com/smallbiznis/shoptok/internal/config"
)

type Config struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	Path            string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	ConnMaxIdleTime int

	// Tracing adds an OpenTelemetry span per query.
	Tracing bool
	// Stats exports connection pool gauges to the default prometheus registry.
	Stats bool

	LogLevel    string
	SlowQuery   time.Duration
	LogNotFound bool
}

func ConfigFrom(cfg config.Config) Config {
	return Config{
		Type:            cfg.DBType,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		SSLMode:         cfg.DBSSLMode,
		Path:            cfg.DBPath,
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		Tracing:         cfg.OtelEnabled,
		Stats:           cfg.DBStatsEnabled,
		LogLevel:        cfg.LogLevel,
		SlowQuery:       cfg.DBSlowQuery,
		LogNotFound:     cfg.DBLogNotFound,
	}
}
