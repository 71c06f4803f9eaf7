package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// MaxPlatformFeeBps caps the platform fee at 10%.
	MaxPlatformFeeBps = 1000

	DefaultPlatformFeeBps = 250
	DefaultEscrowPeriod   = 7 * 24 * time.Hour
)

// SettlementConfig is the bootstrap block for the escrow engine. Fee and
// escrow period only seed the persisted settings; the admin identity is
// read from here on every start.
type SettlementConfig struct {
	AdminID          string        `mapstructure:"adminID"`
	FeeRecipient     string        `mapstructure:"feeRecipient"`
	PlatformFeeBps   uint32        `mapstructure:"platformFeeBps"`
	EscrowPeriod     time.Duration `mapstructure:"escrowPeriod"`
	Currency         string        `mapstructure:"currency"`
	CurrencyDecimals int32         `mapstructure:"currencyDecimals"`
}

func DefaultSettlementConfig() SettlementConfig {
	return SettlementConfig{
		AdminID:          "admin",
		PlatformFeeBps:   DefaultPlatformFeeBps,
		EscrowPeriod:     DefaultEscrowPeriod,
		Currency:         "USDC",
		CurrencyDecimals: 6,
	}
}

// LoadSettlement reads settlement.yml from the given path, or from the
// default search paths when path is empty. A missing file in the search
// paths falls back to defaults; a missing explicit path is an error.
func LoadSettlement(path string) (SettlementConfig, error) {
	v := viper.New()
	v.SetConfigType("yml")

	path = strings.TrimSpace(path)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("settlement")
		v.AddConfigPath("/etc/shoptok")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SHOPTOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSettlementConfig()
	v.SetDefault("settlement.adminID", defaults.AdminID)
	v.SetDefault("settlement.feeRecipient", defaults.FeeRecipient)
	v.SetDefault("settlement.platformFeeBps", defaults.PlatformFeeBps)
	v.SetDefault("settlement.escrowPeriod", defaults.EscrowPeriod)
	v.SetDefault("settlement.currency", defaults.Currency)
	v.SetDefault("settlement.currencyDecimals", defaults.CurrencyDecimals)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return SettlementConfig{}, fmt.Errorf("read settlement config: %w", err)
		}
	}

	// Unmarshal (not UnmarshalKey) so SHOPTOK_SETTLEMENT_* overrides apply.
	var file struct {
		Settlement SettlementConfig `mapstructure:"settlement"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return SettlementConfig{}, fmt.Errorf("decode settlement config: %w", err)
	}

	cfg := normalizeSettlement(file.Settlement)
	if err := validateSettlement(cfg); err != nil {
		return SettlementConfig{}, err
	}
	return cfg, nil
}

func normalizeSettlement(cfg SettlementConfig) SettlementConfig {
	cfg.AdminID = strings.TrimSpace(cfg.AdminID)
	cfg.FeeRecipient = strings.TrimSpace(cfg.FeeRecipient)
	if cfg.FeeRecipient == "" {
		cfg.FeeRecipient = cfg.AdminID
	}
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	return cfg
}

func validateSettlement(cfg SettlementConfig) error {
	if cfg.AdminID == "" {
		return errors.New("settlement.adminID cannot be empty")
	}
	if cfg.PlatformFeeBps > MaxPlatformFeeBps {
		return fmt.Errorf("settlement.platformFeeBps %d exceeds %d", cfg.PlatformFeeBps, MaxPlatformFeeBps)
	}
	if cfg.EscrowPeriod < 0 {
		return errors.New("settlement.escrowPeriod cannot be negative")
	}
	if cfg.EscrowPeriod%time.Second != 0 {
		return fmt.Errorf("settlement.escrowPeriod %s must be whole seconds", cfg.EscrowPeriod)
	}
	if cfg.CurrencyDecimals < 0 || cfg.CurrencyDecimals > 18 {
		return fmt.Errorf("settlement.currencyDecimals %d out of range", cfg.CurrencyDecimals)
	}
	return nil
}
