// Package logging builds the process-wide zap logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Formats accepted by New.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// New returns a production logger at level in the given format. The
// returned AtomicLevel can be changed while the logger is in use.
func New(level, format string) (*zap.Logger, zap.AtomicLevel, error) {
	atom, err := ParseLevel(level)
	if err != nil {
		return nil, atom, err
	}

	config := zap.NewProductionConfig()
	config.Level = atom
	config.EncoderConfig.TimeKey = "ts"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	// Logs go to stderr so stdout stays clean for replies and MCP frames.
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	switch strings.ToLower(format) {
	case "", FormatJSON:
		config.Encoding = FormatJSON
	case FormatConsole:
		config.Encoding = FormatConsole
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		return nil, atom, fmt.Errorf("unknown log format %q (want json or console)", format)
	}

	logger, err := config.Build()
	if err != nil {
		return nil, atom, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, atom, nil
}

// ParseLevel converts a level name into an AtomicLevel. Empty means info.
func ParseLevel(level string) (zap.AtomicLevel, error) {
	if level == "" {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
	}
	atom, err := zap.ParseAtomicLevel(strings.ToLower(level))
	if err != nil {
		return zap.NewAtomicLevelAt(zapcore.InfoLevel), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return atom, nil
}
