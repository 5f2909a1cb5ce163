package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type EngineConfig struct {
	MaxConcurrentBranches int            `mapstructure:"max_concurrent_branches"`
	TargetTypeLimits      map[string]int `mapstructure:"target_type_limits"`
	ActionTimeoutSeconds  int64          `mapstructure:"action_timeout_seconds"`
	MaxRetries            int32          `mapstructure:"max_retries"`
	RetryBackoffSeconds   int            `mapstructure:"retry_backoff_seconds"`
}

// ActionTimeout returns the engine-wide default per-action deadline.
func (e EngineConfig) ActionTimeout() time.Duration {
	return time.Duration(e.ActionTimeoutSeconds) * time.Second
}

// RetryBackoff returns the initial backoff between transient retries.
func (e EngineConfig) RetryBackoff() time.Duration {
	return time.Duration(e.RetryBackoffSeconds) * time.Second
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		// Look for config in common locations
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		home, _ := os.UserHomeDir()
		viper.AddConfigPath(filepath.Join(home, ".opsbridge"))
	}

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("database.url", "")
	viper.SetDefault("engine.max_concurrent_branches", 16)
	viper.SetDefault("engine.action_timeout_seconds", 120)
	viper.SetDefault("engine.max_retries", 2)
	viper.SetDefault("engine.retry_backoff_seconds", 2)

	// Read from environment variables (with priority)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("OPSBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Allow environment variable overrides
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		viper.Set("database.url", dsn)
	}
	if port := os.Getenv("HTTP_PORT"); port != "" {
		viper.Set("server.port", port)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}
