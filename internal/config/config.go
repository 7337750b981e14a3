// Package config loads service configuration from environment
// variables and an optional config file via viper. Environment
// variables use the SCENARIO_ prefix, e.g. SCENARIO_DATABASE_URL.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds everything the server and migrate commands need.
type Config struct {
	Port           int    `mapstructure:"port"`
	DatabaseURL    string `mapstructure:"database_url"`
	MigrationsPath string `mapstructure:"migrations_path"`
	LogLevel       string `mapstructure:"log_level"`
}

// Load reads configuration from the environment and, when present,
// from a scenario.yaml file in the working directory or /etc/scenario.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("port", 8080)
	// Registers the key so AutomaticEnv can unmarshal it.
	v.SetDefault("database_url", "")
	v.SetDefault("migrations_path", "migrations")
	v.SetDefault("log_level", "INFO")

	v.SetConfigName("scenario")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/scenario")

	v.SetEnvPrefix("SCENARIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required (set SCENARIO_DATABASE_URL)")
	}

	return &cfg, nil
}
