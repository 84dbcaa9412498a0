package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the configuration from the default path and applies
// environment overrides.
func Load() (*Config, error) {
	configPath, err := GetDefaultConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFrom(configPath)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrCreate reads the configuration at path, writing the defaults there
// first if the file does not exist. Environment overrides are applied to
// the returned value but never persisted.
func LoadOrCreate(path string) (*Config, error) {
	cfg, err := LoadFrom(path)
	var notFound *ConfigNotFoundError
	if errors.As(err, &notFound) {
		cfg = NewConfig()
		if err := Save(cfg, path); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads config with enhanced error handling. Keys missing from the
// file keep their defaults; unknown keys are rejected.
func LoadFrom(path string) (*Config, error) {
	// Check file existence first
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &ConfigNotFoundError{
				Path: path,
				Hint: "Run 'tetris verify' to create a default configuration",
			}
		}
		return nil, fmt.Errorf("failed to access config: %w", err)
	}

	// Check read permissions
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, &PermissionError{
				Path:    path,
				Op:      "read",
				Fix:     getReadPermissionFix(path),
				Details: getPermissionDetails(path),
			}
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := decode(data)
	if err != nil {
		return nil, &InvalidConfigError{
			Path:    path,
			Message: fmt.Sprintf("YAML parse error: %v", err),
			Hint:    "Restore from .bak file if available",
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &InvalidConfigError{
			Path:    path,
			Message: err.Error(),
			Hint:    "Fix the listed keys or restore from .bak file if available",
		}
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	cfg := NewConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from TETRIS_DB_PATH, TETRIS_LEARNING,
// TETRIS_LOG_LEVEL, TETRIS_HTTP_ADDR and TETRIS_WAKE_WORDS.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv("TETRIS_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("TETRIS_LEARNING"); v != "" {
		enabled, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("TETRIS_LEARNING: %w", err)
		}
		cfg.Learning.Enabled = enabled
		cfg.learningFromEnv = true
	}
	if v := os.Getenv("TETRIS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TETRIS_HTTP_ADDR"); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v, ok := os.LookupEnv("TETRIS_WAKE_WORDS"); ok {
		words := []string{}
		for _, w := range strings.Split(v, ",") {
			if w = strings.TrimSpace(w); w != "" {
				words = append(words, w)
			}
		}
		cfg.Normalizer.WakeWords = words
	}
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "yes", "enabled":
		return true, nil
	case "off", "no", "disabled":
		return false, nil
	}
	return strconv.ParseBool(s)
}

// getReadPermissionFix returns platform-specific fix command
func getReadPermissionFix(path string) string {
	switch runtime.GOOS {
	case "windows":
		return fmt.Sprintf("Right-click %s → Properties → Security → Edit permissions", path)
	default: // unix-like
		return fmt.Sprintf("Run: chmod 644 %s", path)
	}
}

// getPermissionDetails checks file ownership and permissions
func getPermissionDetails(path string) string {
	if runtime.GOOS == "windows" {
		return ""
	}

	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("Current permissions: %04o", info.Mode().Perm())
}
