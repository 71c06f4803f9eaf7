package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/shoptok/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	Enabled     bool
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
	// KeeperID is the identity recorded as caller when the keeper completes
	// a purchase whose escrow period has elapsed.
	KeeperID    string
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		RunInterval: time.Minute,
		BatchSize:   50,
		JobTimeout:  30 * time.Second,
		KeeperID:    "escrow-keeper",
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:     cfg.SchedulerEnabled,
		RunInterval: cfg.SchedulerInterval,
		BatchSize:   cfg.SchedulerBatchSize,
		KeeperID:    cfg.KeeperID,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	c.KeeperID = strings.TrimSpace(c.KeeperID)
	if c.KeeperID == "" {
		c.KeeperID = defaults.KeeperID
	}
	return c
}
