/*
Package config handles loading, saving, and watching the tetris configuration.

Configuration is stored in ~/.tetris/config.yaml (TETRIS_CONFIG overrides the
path) and is created with defaults on first use.

Schema:

	storage:
	  path: ~/.tetris/tetris_memory.db
	  retention_days: 0
	learning:
	  enabled: true
	  threshold: 0.7
	  confidence_policy: static
	  min_usage: 3
	normalizer:
	  wake_words: [tetris, friday, edith, ai, hey, ok]
	actions:
	  use_shell: false
	  timeout_seconds: 30
	server:
	  http_addr: 127.0.0.1:8765
	logging:
	  level: info
	  format: json
	listener:
	  queue_size: 64
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/khanglvm/tetris/internal/learning"
	"github.com/khanglvm/tetris/internal/utterance"
)

// Config represents the root configuration structure.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Learning   LearningConfig   `yaml:"learning"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
	Actions    ActionsConfig    `yaml:"actions"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Listener   ListenerConfig   `yaml:"listener"`

	// learningFromEnv is set when TETRIS_LEARNING overrode Learning.Enabled.
	learningFromEnv bool
}

// StorageConfig locates the memory database.
type StorageConfig struct {
	// Path is the SQLite file. A leading ~ is expanded.
	Path string `yaml:"path"`

	// RetentionDays prunes conversation memory older than this many days
	// when the server starts. Zero keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// LearningConfig tunes the pattern learner.
type LearningConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Threshold        float64 `yaml:"threshold"`
	ConfidencePolicy string  `yaml:"confidence_policy"`
	MinUsage         int64   `yaml:"min_usage"`
}

// NormalizerConfig lists the wake words stripped from utterances.
type NormalizerConfig struct {
	WakeWords []string `yaml:"wake_words"`
}

// ActionsConfig controls how shell command actions run.
type ActionsConfig struct {
	// UseShell runs parameters through "sh -c" instead of splitting them.
	UseShell       bool `yaml:"use_shell"`
	TimeoutSeconds int  `yaml:"timeout_seconds"`
}

// ServerConfig holds the HTTP listen address used by "tetris serve".
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ListenerConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// NewConfig creates a configuration populated with defaults.
func NewConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path: filepath.Join("~", ".tetris", "tetris_memory.db"),
		},
		Learning: LearningConfig{
			Enabled:          true,
			Threshold:        learning.DefaultThreshold,
			ConfidencePolicy: string(learning.PolicyStatic),
			MinUsage:         learning.DefaultMinUsage,
		},
		Normalizer: NormalizerConfig{
			WakeWords: append([]string(nil), utterance.DefaultWakeWords...),
		},
		Actions: ActionsConfig{
			TimeoutSeconds: 30,
		},
		Server: ServerConfig{
			HTTPAddr: "127.0.0.1:8765",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Listener: ListenerConfig{
			QueueSize: 64,
		},
	}
}

// GetDefaultConfigPath returns $TETRIS_CONFIG or ~/.tetris/config.yaml.
func GetDefaultConfigPath() (string, error) {
	if p := os.Getenv("TETRIS_CONFIG"); p != "" {
		return ExpandPath(p), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tetris", "config.yaml"), nil
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}

// DBPath returns the expanded database path.
func (c *Config) DBPath() string {
	return ExpandPath(c.Storage.Path)
}

// ActionTimeout returns the shell command timeout.
func (c *Config) ActionTimeout() time.Duration {
	return time.Duration(c.Actions.TimeoutSeconds) * time.Second
}

// Retention returns the conversation retention window, zero for unlimited.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Storage.RetentionDays) * 24 * time.Hour
}

// LearningOptions converts the learning section into learner options.
// Call Validate first; an unknown policy falls back to static.
func (c *Config) LearningOptions() learning.Options {
	policy, err := learning.ParsePolicy(c.Learning.ConfidencePolicy)
	if err != nil {
		policy = learning.PolicyStatic
	}
	return learning.Options{
		Enabled:   c.Learning.Enabled,
		Threshold: c.Learning.Threshold,
		Policy:    policy,
		MinUsage:  c.Learning.MinUsage,
	}
}

// LearningFromEnv reports whether TETRIS_LEARNING set learning.enabled.
// The variable then wins over the persisted learning_mode preference.
func (c *Config) LearningFromEnv() bool {
	return c.learningFromEnv
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Storage.Path) == "" {
		errs = append(errs, errors.New("storage.path must not be empty"))
	}
	if c.Storage.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("storage.retention_days must be >= 0, got %d", c.Storage.RetentionDays))
	}
	if c.Learning.Threshold <= 0 || c.Learning.Threshold > 1 {
		errs = append(errs, fmt.Errorf("learning.threshold must be in (0, 1], got %g", c.Learning.Threshold))
	}
	if _, err := learning.ParsePolicy(c.Learning.ConfidencePolicy); err != nil {
		errs = append(errs, fmt.Errorf("learning.confidence_policy: %w", err))
	}
	if c.Learning.MinUsage < 1 {
		errs = append(errs, fmt.Errorf("learning.min_usage must be >= 1, got %d", c.Learning.MinUsage))
	}
	if c.Actions.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("actions.timeout_seconds must be > 0, got %d", c.Actions.TimeoutSeconds))
	}
	if c.Listener.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("listener.queue_size must be > 0, got %d", c.Listener.QueueSize))
	}
	for _, w := range c.Normalizer.WakeWords {
		if len(utterance.Tokens(w)) != 1 {
			errs = append(errs, fmt.Errorf("normalizer.wake_words: %q must be a single word", w))
		}
	}
	return errors.Join(errs...)
}
