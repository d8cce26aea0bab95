package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration marks an unparsable or out-of-domain value.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrConfigLoad marks a configuration file that could not be read.
	ErrConfigLoad = errors.New("configuration load failed")
)

// InvalidConfigurationError is fatal: the caller must fix the input.
type InvalidConfigurationError struct {
	Key    string
	Value  string
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid configuration %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("invalid configuration %s=%q: %s", e.Key, e.Value, e.Reason)
}

func (e *InvalidConfigurationError) Is(target error) bool { return target == ErrInvalidConfiguration }

// Invalid builds an InvalidConfigurationError.
func Invalid(key string, value any, reason string) error {
	return &InvalidConfigurationError{Key: key, Value: fmt.Sprint(value), Reason: reason}
}

// ConfigLoadError wraps the I/O failure behind an unreadable file.
type ConfigLoadError struct {
	Path string
	Err  error
}

func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("load configuration %s: %v", e.Path, e.Err)
}

func (e *ConfigLoadError) Unwrap() error { return e.Err }

func (e *ConfigLoadError) Is(target error) bool { return target == ErrConfigLoad }
