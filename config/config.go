// Package config loads runtime settings for the identity store from the
// environment and an optional YAML file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds the identity store's operator-facing settings.
type Config struct {
	// StorePath is where the identity document lives.
	StorePath string `mapstructure:"store_path"`
	// SaveDelay is the persistence debounce window.
	SaveDelay time.Duration `mapstructure:"save_delay"`
	// AccessTokenTTL is the default lifetime for minted access tokens.
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	LogLevel       string        `mapstructure:"log_level"`
	LogJSON        bool          `mapstructure:"log_json"`
}

// Load reads settings from HUBAUTH_* environment variables and, when present,
// the config file at path (empty path skips the file).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("hubauth")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store_path", ".storage/auth")
	v.SetDefault("save_delay", time.Second)
	v.SetDefault("access_token_ttl", 30*time.Minute)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Logger builds the process logger described by the config.
func (c *Config) Logger() *logrus.Entry {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if c.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return logrus.NewEntry(log)
}
