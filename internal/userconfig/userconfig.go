// Package userconfig provides operator-tunable settings for cairn.
// Configuration is stored in <CAIRN_HOME>/config.toml and can be modified
// via the `cairn config` command.
package userconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/cairn-pm/cairn/internal/config"
	"github.com/cairn-pm/cairn/internal/log"
)

// Config represents operator-configurable settings, distinct from the
// per-invocation Config that resolves directory layout.
type Config struct {
	// BatchInstall builds every resolved base before installing any of
	// them, instead of installing each as soon as it finishes building.
	// Default is false.
	BatchInstall bool `toml:"batch_install"`

	// CleanAfter resets recipe-index checkouts to HEAD once the batch
	// finishes. Default is false.
	CleanAfter bool `toml:"clean_after"`

	// Helper overrides the sudo-compatible privileged-escalation binary.
	// Empty means auto-detect (sudo, then doas).
	Helper string `toml:"helper,omitempty"`

	// IgnorePkg lists package names the upgrade engine skips even when a
	// newer version is available.
	IgnorePkg []string `toml:"ignore_pkg,omitempty"`

	// IgnoreGroup lists SPM package groups. It is stored and shown by
	// `cairn config` only; no command filters candidates by group.
	IgnoreGroup []string `toml:"ignore_group,omitempty"`

	// BottomUp lists `cairn search` results with the most popular result
	// last instead of first. Default is false.
	BottomUp bool `toml:"bottom_up"`

	// SkipReview disables the interactive recipe diff review step.
	// Default is false.
	SkipReview bool `toml:"skip_review"`

	// Secrets stores tokens such as GITHUB_TOKEN in the [secrets]
	// section. Values are resolved here only when the matching
	// environment variable is unset.
	Secrets map[string]string `toml:"secrets,omitempty"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{}
}

// Load reads the config file and returns the configuration.
// Returns default values if the file doesn't exist.
// Returns an error only for file parsing issues, not missing files.
func Load() (*Config, error) {
	cfg, err := config.Default()
	if err != nil {
		return DefaultConfig(), nil
	}
	return loadFromPath(filepath.Join(cfg.HomeDir, "config.toml"))
}

// loadFromPath reads config from a specific file path (for testing).
func loadFromPath(path string) (*Config, error) {
	userCfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return userCfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if info, err := os.Stat(path); err == nil {
		mode := info.Mode().Perm()
		if mode&0077 != 0 {
			log.Default().Warn("config file has permissive permissions",
				"path", path,
				"mode", fmt.Sprintf("%04o", mode),
				"expected", "0600",
			)
		}
	}

	if _, err := toml.Decode(string(data), userCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return userCfg, nil
}

// Save writes the configuration to the config file.
func (c *Config) Save() error {
	cfg, err := config.Default()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	return c.saveToPath(filepath.Join(cfg.HomeDir, "config.toml"))
}

// saveToPath writes config to a specific file path using an atomic
// write-to-tmp-then-rename, with 0600 permissions from creation.
func (c *Config) saveToPath(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config.toml.tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to set temp file permissions: %w", err)
	}

	encoder := toml.NewEncoder(tmpFile)
	if err := encoder.Encode(c); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// IsIgnored reports whether name should be skipped by the upgrade engine.
func (c *Config) IsIgnored(name string) bool {
	for _, p := range c.IgnorePkg {
		if p == name {
			return true
		}
	}
	return false
}

// Get returns the value of a config key as a string.
// Returns empty string and false if the key doesn't exist.
// Keys with the "secrets." prefix are resolved from the Secrets map.
func (c *Config) Get(key string) (string, bool) {
	lowerKey := strings.ToLower(key)

	if secretName, ok := strings.CutPrefix(lowerKey, "secrets."); ok {
		if c.Secrets != nil {
			if val, found := c.Secrets[secretName]; found && val != "" {
				return val, true
			}
		}
		return "", false
	}

	switch lowerKey {
	case "batch_install":
		return strconv.FormatBool(c.BatchInstall), true
	case "clean_after":
		return strconv.FormatBool(c.CleanAfter), true
	case "helper":
		return c.Helper, true
	case "ignore_pkg":
		return strings.Join(c.IgnorePkg, ","), true
	case "ignore_group":
		return strings.Join(c.IgnoreGroup, ","), true
	case "bottom_up":
		return strconv.FormatBool(c.BottomUp), true
	case "skip_review":
		return strconv.FormatBool(c.SkipReview), true
	default:
		return "", false
	}
}

// Set updates a config value from a string.
// Returns an error if the key doesn't exist or the value is invalid.
// Keys with the "secrets." prefix are stored in the Secrets map.
func (c *Config) Set(key, value string) error {
	lowerKey := strings.ToLower(key)

	if secretName, ok := strings.CutPrefix(lowerKey, "secrets."); ok {
		if c.Secrets == nil {
			c.Secrets = make(map[string]string)
		}
		c.Secrets[secretName] = value
		return nil
	}

	switch lowerKey {
	case "batch_install":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for batch_install: must be true or false")
		}
		c.BatchInstall = b
		return nil
	case "clean_after":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for clean_after: must be true or false")
		}
		c.CleanAfter = b
		return nil
	case "helper":
		c.Helper = value
		return nil
	case "ignore_pkg":
		c.IgnorePkg = splitCSV(value)
		return nil
	case "ignore_group":
		c.IgnoreGroup = splitCSV(value)
		return nil
	case "bottom_up":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for bottom_up: must be true or false")
		}
		c.BottomUp = b
		return nil
	case "skip_review":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for skip_review: must be true or false")
		}
		c.SkipReview = b
		return nil
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// AvailableKeys returns a list of all configurable keys with descriptions.
func AvailableKeys() map[string]string {
	return map[string]string{
		"batch_install": "Build every resolved base before installing any of them (true/false)",
		"clean_after":   "Reset recipe checkouts to HEAD once the batch finishes (true/false)",
		"helper":        "Privileged-escalation binary to use (empty: auto-detect sudo, then doas)",
		"ignore_pkg":    "Package names the upgrade engine always skips (comma-separated)",
		"ignore_group":  "SPM package groups; stored only, no command filters by group (comma-separated)",
		"bottom_up":     "List search results with the most popular last (true/false)",
		"skip_review":   "Skip the interactive recipe diff review step (true/false)",
	}
}
