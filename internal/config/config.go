package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Database paths
	StateDBPath string `mapstructure:"state-db-path"`
	FSMDBPath   string `mapstructure:"fsm-db-path"`

	// Signing keys
	PublicKeyPath  string `mapstructure:"public-key"`
	PrivateKeyPath string `mapstructure:"private-key"`

	// Rollback threshold: consecutive unhealthy boots during a trial
	HealthFailWindow int `mapstructure:"health-fail-window"`

	// Initial slot versions, used only when seeding a fresh state store
	InitialVersionA string `mapstructure:"initial-version-a"`
	InitialVersionB string `mapstructure:"initial-version-b"`

	// Monitor loop
	HealthEndpoints    []string      `mapstructure:"health-endpoints"`
	HealthQuorum       int           `mapstructure:"health-quorum"`
	HealthPollInterval time.Duration `mapstructure:"health-poll-interval"`
	HealthProbeTimeout time.Duration `mapstructure:"health-probe-timeout"`
	HealthyStreak      int           `mapstructure:"healthy-streak"`

	// FSM configuration
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("state-db-path", ".artifacts/updater.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm.db")
	viper.SetDefault("public-key", "keys/ota_signing_public.pem")
	viper.SetDefault("private-key", "")
	viper.SetDefault("health-fail-window", 3)
	viper.SetDefault("initial-version-a", "0.0.0")
	viper.SetDefault("initial-version-b", "")
	viper.SetDefault("health-endpoints", []string{})
	viper.SetDefault("health-quorum", 0)
	viper.SetDefault("health-poll-interval", 10*time.Second)
	viper.SetDefault("health-probe-timeout", 5*time.Second)
	viper.SetDefault("healthy-streak", 3)
	viper.SetDefault("fsm-max-retries", 5)

	// Environment variables (will be UPDATER_STATE_DB_PATH, etc.)
	viper.SetEnvPrefix("UPDATER")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.updaterd")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.StateDBPath == "" {
		return fmt.Errorf("state-db-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.PublicKeyPath == "" {
		return fmt.Errorf("public-key cannot be empty")
	}
	if c.HealthFailWindow <= 0 {
		return fmt.Errorf("health-fail-window must be positive")
	}
	if c.HealthQuorum < 0 {
		return fmt.Errorf("health-quorum must be non-negative")
	}
	if c.HealthPollInterval <= 0 {
		return fmt.Errorf("health-poll-interval must be positive")
	}
	if c.HealthProbeTimeout <= 0 {
		return fmt.Errorf("health-probe-timeout must be positive")
	}
	if c.HealthyStreak < 0 {
		return fmt.Errorf("healthy-streak must be non-negative")
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	return nil
}
