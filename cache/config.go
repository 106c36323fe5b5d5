package cache

import (
	"time"

	"github.com/cockroachdb/errors"
)

const (
	// DefaultMaxSize bounds the number of entries a service cache holds.
	DefaultMaxSize = 1000
	// DefaultTTL applies when Set is called without a ttl.
	DefaultTTL = 5 * time.Minute
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	MaxSize    int           `yaml:"max_size"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxSize:    DefaultMaxSize,
		DefaultTTL: DefaultTTL,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if c.MaxSize <= 0 {
		return &ConfigError{Field: "MaxSize", Message: "must be greater than 0"}
	}
	if c.DefaultTTL <= 0 {
		return &ConfigError{Field: "DefaultTTL", Message: "must be greater than 0"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// IsConfigError reports whether err is, or wraps, a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
