package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config,
// defaults. Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.taskflow/config.json
// Project: .taskflow/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".taskflow", "config.json")
	projectPath := filepath.Join(".taskflow", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base
// config. Missing files are silently skipped; malformed JSON returns an
// error. Only sections present in the file override the base: a file may
// carry just a harness block without resetting queue tuning.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if raw, ok := sections["queue"]; ok {
		if err := json.Unmarshal(raw, &base.Queue); err != nil {
			return fmt.Errorf("parsing %s queue section: %w", path, err)
		}
	}
	if raw, ok := sections["breaker"]; ok {
		if err := json.Unmarshal(raw, &base.Breaker); err != nil {
			return fmt.Errorf("parsing %s breaker section: %w", path, err)
		}
	}
	if raw, ok := sections["harness"]; ok {
		if err := json.Unmarshal(raw, &base.Harness); err != nil {
			return fmt.Errorf("parsing %s harness section: %w", path, err)
		}
	}
	if raw, ok := sections["journal_path"]; ok {
		if err := json.Unmarshal(raw, &base.JournalPath); err != nil {
			return fmt.Errorf("parsing %s journal_path: %w", path, err)
		}
	}

	return nil
}
