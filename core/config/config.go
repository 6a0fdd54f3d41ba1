package config

import (
	"fmt"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	sdkutils "github.com/Layr-Labs/eigensdk-go/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

const (
	// Grace window before a settled operation may be replaced on the same
	// nonce slot, when its bundling transaction is not known to have failed.
	// It absorbs confirmation latency without a live transaction oracle.
	DefaultReplaceAfter = 60 * time.Minute

	DefaultCleanupInterval = 30 * time.Minute
)

// ChainConfig is one row of the static per-chain parameter table. The table
// is loaded once at boot into an immutable Config and passed explicitly to
// whoever needs chain-specific limits; nothing consults it as global state.
type ChainConfig struct {
	ChainId             int64  `yaml:"chain_id" validate:"required,gt=0"`
	Name                string `yaml:"name" validate:"required"`
	EntryPoint          string `yaml:"entry_point" validate:"required,eth_addr"`
	ReplaceAfterMinutes int    `yaml:"replace_after_minutes" validate:"gte=0"`
}

func (c *ChainConfig) EntryPointAddress() common.Address {
	return common.HexToAddress(c.EntryPoint)
}

type Config struct {
	Logger sdklogging.Logger

	DbPath    string
	BackupDir string
	Chains    []ChainConfig

	CleanupInterval time.Duration
	MetricsAddr     string
}

// These are read from the config file path
type ConfigRaw struct {
	Environment            sdklogging.LogLevel `yaml:"environment"`
	DbPath                 string              `yaml:"db_path"`
	BackupDir              string              `yaml:"backup_dir"`
	Chains                 []ChainConfig       `yaml:"chains"`
	CleanupIntervalMinutes int                 `yaml:"cleanup_interval_minutes"`
	MetricsAddr            string              `yaml:"metrics_addr"`
}

// NewConfig parses the yaml file at configFilePath and validates the chain
// table. The logger is built here so every component downstream shares one.
func NewConfig(configFilePath string) (*Config, error) {
	configRaw := ConfigRaw{
		Environment: "production",
	}
	if err := sdkutils.ReadYamlConfig(configFilePath, &configRaw); err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", configFilePath, err)
	}

	logger, err := sdklogging.NewZapLogger(configRaw.Environment)
	if err != nil {
		return nil, err
	}

	validate := validator.New()
	if len(configRaw.Chains) == 0 {
		return nil, fmt.Errorf("config has no chains")
	}
	for i := range configRaw.Chains {
		if err := validate.Struct(&configRaw.Chains[i]); err != nil {
			return nil, fmt.Errorf("invalid chain config at index %d: %w", i, err)
		}
	}

	c := &Config{
		Logger: logger,

		DbPath:    configRaw.DbPath,
		BackupDir: configRaw.BackupDir,
		Chains:    configRaw.Chains,

		CleanupInterval: DefaultCleanupInterval,
		MetricsAddr:     configRaw.MetricsAddr,
	}
	if c.DbPath == "" {
		c.DbPath = "/tmp/particle-bundler/db"
	}
	if c.BackupDir == "" {
		c.BackupDir = "/tmp/particle-bundler/backup"
	}
	if configRaw.CleanupIntervalMinutes > 0 {
		c.CleanupInterval = time.Duration(configRaw.CleanupIntervalMinutes) * time.Minute
	}

	return c, nil
}

// GetChain returns the config row for a chain, nil when the chain is not served.
func (c *Config) GetChain(chainId int64) *ChainConfig {
	for i := range c.Chains {
		if c.Chains[i].ChainId == chainId {
			return &c.Chains[i]
		}
	}
	return nil
}

// ReplaceAfter returns the replacement grace window for a chain.
func (c *Config) ReplaceAfter(chainId int64) time.Duration {
	if chain := c.GetChain(chainId); chain != nil && chain.ReplaceAfterMinutes > 0 {
		return time.Duration(chain.ReplaceAfterMinutes) * time.Minute
	}
	return DefaultReplaceAfter
}
