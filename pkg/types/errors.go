// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable marks an embedding or LLM backend that stayed
	// unreachable after every retry attempt.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrParse marks model output that does not match the expected structure.
	ErrParse = errors.New("unparseable model output")

	// ErrCacheCorruption marks a persisted entry that cannot be read back or
	// fails verification. Corrupt entries are recomputed, never trusted.
	ErrCacheCorruption = errors.New("cache entry corrupt")

	// ErrInterrupted is returned when the run was cancelled by the user.
	ErrInterrupted = errors.New("run interrupted")
)

// ConfigError reports an invalid field spec, chunking parameter, or other
// configuration value. It is fatal at startup.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Key, e.Reason)
}

// NewConfigError builds a ConfigError with a formatted reason.
func NewConfigError(key, format string, args ...any) *ConfigError {
	return &ConfigError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
