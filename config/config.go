// Package config loads Flux client configuration from a YAML file and
// environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	flux "github.com/fluxprotocol/flux-go"
)

// Config holds all client configuration.
type Config struct {
	API    APIConfig    `mapstructure:"api"`
	Wallet WalletConfig `mapstructure:"wallet"`
	Budget BudgetConfig `mapstructure:"budget"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Log    LogConfig    `mapstructure:"log"`
}

type APIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Partner        string `mapstructure:"partner"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type WalletConfig struct {
	// PrivateKey is a hex-encoded key. Prefer supplying it via the
	// FLUX_WALLET_PRIVATE_KEY environment variable over a config file.
	PrivateKey string            `mapstructure:"private_key"`
	RPC        map[string]string `mapstructure:"rpc"` // chain id -> endpoint
}

type BudgetConfig struct {
	MaxPerRequest  string `mapstructure:"max_per_request"`
	MaxPerDay      string `mapstructure:"max_per_day"`
	DailyResetHour int    `mapstructure:"daily_reset_hour"`
}

// ToFlux converts to the client's budget config type.
func (b BudgetConfig) ToFlux() flux.BudgetConfig {
	return flux.BudgetConfig{
		MaxPerRequest:  b.MaxPerRequest,
		MaxPerDay:      b.MaxPerDay,
		DailyResetHour: b.DailyResetHour,
	}
}

// Enabled reports whether any spending ceiling is configured.
func (b BudgetConfig) Enabled() bool {
	return b.MaxPerRequest != "" || b.MaxPerDay != ""
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: FLUX_. Nested keys
// use underscore: FLUX_API_BASE_URL, FLUX_BUDGET_MAX_PER_DAY, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("api.base_url", "")
	v.SetDefault("api.partner", "")
	v.SetDefault("api.timeout_seconds", 120)
	v.SetDefault("wallet.private_key", "")
	v.SetDefault("budget.max_per_request", "")
	v.SetDefault("budget.max_per_day", "")
	v.SetDefault("budget.daily_reset_hour", 0)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("log.level", "info")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("flux")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("FLUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A config file is optional; env vars alone can carry everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}
