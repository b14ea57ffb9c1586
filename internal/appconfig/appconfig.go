// Package appconfig holds the command-line application configuration,
// layered from defaults, an optional config file and JOBSIFT_*
// environment variables.
package appconfig

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config wraps the viper instance backing the CLI configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("jobsift")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.config/jobsift")
	v.AddConfigPath(".")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("JOBSIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.path", "jobsift.db")

	v.SetDefault("model.path", "model.json")

	// An empty rules path means the built-in extraction rules.
	v.SetDefault("rules.path", "")

	// A zero threshold defers to the model artifact.
	v.SetDefault("classifier.threshold", 0.0)
	v.SetDefault("classifier.review_margin", 0.1)

	v.SetDefault("pipeline.workers", 4)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// Set overrides a configuration value, typically from a CLI flag
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}
