package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	API          APIConfig      `mapstructure:"api"`
	Logging      LoggingConfig  `mapstructure:"logging"`
	Sessions     SessionsConfig `mapstructure:"sessions"`
	Project      string         `mapstructure:"project"`
	ShowThoughts bool           `mapstructure:"show_thoughts"`
}

// APIConfig holds the query service connection settings
type APIConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	HeaderTimeout    time.Duration `mapstructure:"-"`
	HeaderTimeoutStr string        `mapstructure:"header_timeout"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	LogFile  string `mapstructure:"log_file"`
	Preserve bool   `mapstructure:"preserve"`
	Level    string `mapstructure:"level"`
}

// SessionsConfig controls where conversations are kept between runs
type SessionsConfig struct {
	File    string `mapstructure:"file"`
	Persist bool   `mapstructure:"persist"`
}

const (
	settingsDirName  = ".grapher"
	settingsFileName = "settings"
	envPrefix        = "GRAPHER"
)

var cfg *Config

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		panic("config not initialized")
	}
	return cfg
}

// Loaded reports whether Load has completed successfully
func Loaded() bool {
	return cfg != nil
}

// Load loads configuration from file and environment
func Load(cfgFile string) (*Config, error) {
	// A missing .env is the common case
	_ = godotenv.Load()

	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome == "" {
			xdgConfigHome = filepath.Join(home, ".config")
		}

		viper.AddConfigPath("./" + settingsDirName)
		viper.AddConfigPath(filepath.Join(xdgConfigHome, settingsDirName))
		viper.SetConfigType("yaml")
		viper.SetConfigName(settingsFileName)
	}

	viper.AutomaticEnv()
	if err := bindEnvironmentVariables(); err != nil {
		return nil, err
	}

	// Settings files are optional; only an explicit file that exists must parse
	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		if _, statErr := os.Stat(cfgFile); statErr == nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := processDurations(loaded); err != nil {
		return nil, fmt.Errorf("failed to process durations: %w", err)
	}

	cfg = loaded
	return cfg, nil
}

// setDefaults sets all default configuration values
func setDefaults() {
	viper.SetDefault("api.base_url", "http://localhost:5000")
	viper.SetDefault("api.header_timeout", "30s")

	viper.SetDefault("project", "")
	viper.SetDefault("show_thoughts", true)

	viper.SetDefault("logging.log_file", "./"+settingsDirName+"/system.log")
	viper.SetDefault("logging.preserve", false)
	viper.SetDefault("logging.level", "info")

	viper.SetDefault("sessions.file", "sessions.json")
	viper.SetDefault("sessions.persist", true)
}

// bindEnvironmentVariables binds GRAPHER_ environment variables to viper keys
func bindEnvironmentVariables() error {
	bindings := map[string]string{
		"api.base_url":       "API_URL",
		"api.header_timeout": "API_HEADER_TIMEOUT",
		"project":            "PROJECT",
		"show_thoughts":      "SHOW_THOUGHTS",
		"logging.log_file":   "LOG_FILE",
		"logging.preserve":   "LOG_PRESERVE",
		"logging.level":      "LOG_LEVEL",
		"sessions.file":      "SESSIONS_FILE",
		"sessions.persist":   "SESSIONS_PERSIST",
	}
	var errs []error
	for key, env := range bindings {
		if err := viper.BindEnv(key, envPrefix+"_"+env); err != nil {
			errs = append(errs, fmt.Errorf("failed to bind %s_%s: %w", envPrefix, env, err))
		}
	}
	return errors.Join(errs...)
}

// processDurations converts string durations to time.Duration
func processDurations(c *Config) error {
	if c.API.HeaderTimeoutStr == "" {
		c.API.HeaderTimeout = 30 * time.Second
		return nil
	}

	d, err := time.ParseDuration(c.API.HeaderTimeoutStr)
	if err != nil {
		return fmt.Errorf("invalid api.header_timeout: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("invalid api.header_timeout: must not be negative")
	}
	c.API.HeaderTimeout = d
	return nil
}
