// Package config loads bot settings from a YAML file and the
// environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything needed to run the bot. Resolution order is
// flags > environment (SYNCTUBE_*) > config file > defaults.
type Config struct {
	Domain          string        `mapstructure:"domain"`
	Channel         string        `mapstructure:"channel"`
	ChannelPassword string        `mapstructure:"channel_password"`
	User            string        `mapstructure:"user"`
	UserPassword    string        `mapstructure:"user_password"`
	ResponseTimeout time.Duration `mapstructure:"response_timeout"`
	RestartDelay    time.Duration `mapstructure:"restart_delay"`
	DBPath          string        `mapstructure:"db_path"`
	LogLevel        string        `mapstructure:"log_level"`
}

// Load reads the config file (synctube.yaml by default, or path when
// non-empty) and overlays SYNCTUBE_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("synctube")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/synctube")
	}

	v.SetEnvPrefix("SYNCTUBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees env-backed keys that are explicitly bound.
	for _, key := range []string{
		"domain", "channel", "channel_password", "user", "user_password",
		"response_timeout", "restart_delay", "db_path", "log_level",
	} {
		v.BindEnv(key)
	}

	v.SetDefault("domain", "cytu.be")
	v.SetDefault("response_timeout", "10s")
	v.SetDefault("restart_delay", "5s")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		// No file on the search path is fine; the environment can carry
		// everything. An explicit or malformed file is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Domain == "" {
		return fmt.Errorf("config: domain is required")
	}
	if c.Channel == "" {
		return fmt.Errorf("config: channel is required")
	}
	return nil
}
