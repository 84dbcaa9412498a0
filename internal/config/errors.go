package config

import (
	"errors"
	"fmt"
)

// PermissionError means the config file or its directory cannot be read or
// written by the current user.
type PermissionError struct {
	Path    string
	Op      string // "read" or "write"
	Fix     string // Suggested fix command
	Details string
}

func (e *PermissionError) Error() string {
	msg := fmt.Sprintf("permission denied (cannot %s config): %s\n", e.Op, e.Path)
	if e.Details != "" {
		msg += e.Details + "\n"
	}
	msg += "💡 Fix: " + e.Fix
	return msg
}

// ConfigNotFoundError represents a missing config file.
type ConfigNotFoundError struct {
	Path string
	Hint string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found: %s\n\n💡 %s", e.Path, e.Hint)
}

// InvalidConfigError represents a config file that does not parse or does
// not validate.
type InvalidConfigError struct {
	Path    string
	Message string
	Hint    string
}

func (e *InvalidConfigError) Error() string {
	msg := fmt.Sprintf("invalid config: %s\n", e.Path)
	if e.Message != "" {
		msg += e.Message + "\n"
	}
	if e.Hint != "" {
		msg += "💡 " + e.Hint
	}
	return msg
}

// IsNotFound reports whether err is a ConfigNotFoundError.
func IsNotFound(err error) bool {
	var nf *ConfigNotFoundError
	return errors.As(err, &nf)
}
