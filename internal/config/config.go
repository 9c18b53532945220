// Package config loads application settings from a config file and
// environment variables.
//
// Settings come from dernek.yaml (searched in the working directory and
// ~/.dernek) with DERNEK_-prefixed environment variables taking precedence,
// e.g. DERNEK_REMOTE_TOKEN overrides remote.token.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved application configuration.
type Config struct {
	Store struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"store"`

	Tenant struct {
		ID string `mapstructure:"id"`
	} `mapstructure:"tenant"`

	Remote struct {
		BaseURL string `mapstructure:"base_url"`
		Token   string `mapstructure:"token"`
	} `mapstructure:"remote"`

	Sync struct {
		BatchSize int           `mapstructure:"batch_size"`
		Interval  time.Duration `mapstructure:"interval"`
	} `mapstructure:"sync"`

	Backup struct {
		Dir           string        `mapstructure:"dir"`
		CheckInterval time.Duration `mapstructure:"check_interval"`
		MaxAgeDays    int           `mapstructure:"max_age_days"`
	} `mapstructure:"backup"`

	Dashboard struct {
		Port int `mapstructure:"port"` // 0 disables the dashboard
	} `mapstructure:"dashboard"`

	Log struct {
		File       string `mapstructure:"file"` // empty logs to stderr
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAgeDays int    `mapstructure:"max_age_days"`
	} `mapstructure:"log"`
}

// Load reads the configuration. cfgFile overrides the default search when
// non-empty. A missing config file is not an error; defaults and
// environment variables still apply.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("store.path", "dernek.db")
	v.SetDefault("tenant.id", "default")
	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.interval", 30*time.Second)
	v.SetDefault("backup.dir", "backups")
	v.SetDefault("backup.check_interval", time.Hour)
	v.SetDefault("backup.max_age_days", 30)
	v.SetDefault("dashboard.port", 0)
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("dernek")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.dernek")
	}

	v.SetEnvPrefix("DERNEK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
