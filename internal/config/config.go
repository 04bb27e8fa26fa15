// Package config loads the application-level configuration: where data
// lives, logging behavior, and the knobs for history and summarization.
// Per-model settings live in profiles, not here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// History defines conversation history storage configuration
type History struct {
	Directory string `json:"directory,omitempty"`
	// MaxRecent caps how many sessions the history list shows.
	MaxRecent int `json:"maxRecent"`
}

// Summary defines conversation summarization configuration
type Summary struct {
	// Threshold is the fraction of the token budget (0.0-1.0) at which
	// summarization triggers.
	Threshold float64 `json:"threshold"`
	// KeepRecent is how many recent messages stay verbatim.
	KeepRecent int `json:"keepRecent"`
}

// Data defines storage configuration
type Data struct {
	Directory string `json:"directory,omitempty"`
}

// Config is the main configuration structure for the application
type Config struct {
	Data        Data    `json:"data"`
	ProfilePath string  `json:"profilePath,omitempty"`
	History     History `json:"history"`
	Summary     Summary `json:"summary"`
	Language    string  `json:"language,omitempty"`
	Debug       bool    `json:"debug,omitempty"`

	// DefaultMaxTokens applies when a profile sets no max_tokens.
	DefaultMaxTokens int `json:"defaultMaxTokens"`
}

// Application constants
const (
	defaultDataDirectory = ".octool"
	defaultLogLevel      = "info"
	appName              = "octool"

	// DefaultMaxTokens is the token budget used when nothing else is
	// configured.
	DefaultMaxTokens = 64000

	// DefaultKeepRecent is how many recent messages summarization keeps
	// verbatim by default.
	DefaultKeepRecent = 3
)

// Global configuration instance
var cfg *Config

// Load initializes the configuration from environment variables and config
// files. It is idempotent; later calls return the first result.
func Load(debug bool) (*Config, error) {
	if cfg != nil {
		return cfg, nil
	}

	cfg = &Config{}

	configureViper()
	setDefaults(debug)

	if err := readConfig(viper.ReadInConfig()); err != nil {
		return cfg, err
	}

	if cfg.Data.Directory == "" {
		cfg.Data.Directory = defaultDataDirectory
	}
	cfg.Data.Directory = expandHome(cfg.Data.Directory)
	if cfg.History.Directory == "" {
		cfg.History.Directory = filepath.Join(cfg.Data.Directory, "history")
	}
	if cfg.ProfilePath == "" {
		cfg.ProfilePath = filepath.Join(cfg.Data.Directory, "config.yaml")
	}

	return cfg, nil
}

// Get returns the loaded configuration, loading with defaults if needed.
func Get() *Config {
	if cfg == nil {
		c, _ := Load(false)
		return c
	}
	return cfg
}

// Reset clears the cached configuration. Test helper.
func Reset() {
	cfg = nil
	viper.Reset()
}

// configureViper sets up viper's configuration paths and environment variables
func configureViper() {
	viper.SetConfigName(fmt.Sprintf(".%s", appName))
	viper.SetConfigType("json")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(fmt.Sprintf("$XDG_CONFIG_HOME/%s", appName))
	viper.AddConfigPath(fmt.Sprintf("$HOME/.config/%s", appName))
	viper.SetEnvPrefix(strings.ToUpper(appName))
	viper.AutomaticEnv()
}

// setDefaults configures default values for configuration options
func setDefaults(debug bool) {
	home, _ := os.UserHomeDir()
	viper.SetDefault("data.directory", filepath.Join(home, defaultDataDirectory))
	viper.SetDefault("language", "en-US")
	viper.SetDefault("defaultMaxTokens", DefaultMaxTokens)

	viper.SetDefault("history.maxRecent", 20)
	viper.SetDefault("summary.threshold", 0.8)
	viper.SetDefault("summary.keepRecent", DefaultKeepRecent)

	if debug {
		viper.SetDefault("debug", true)
		viper.Set("log.level", "debug")
	} else {
		viper.SetDefault("debug", false)
		viper.SetDefault("log.level", defaultLogLevel)
	}
}

// readConfig reads configuration from file and environment
func readConfig(err error) error {
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}

	return nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
