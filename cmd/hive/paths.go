package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths holds all resolved hive state file paths.
// Use ResolvePaths() to populate this struct with defaults + env overrides.
type Paths struct {
	HiveHome   string // ~/.hive or HIVE_HOME
	DBPath     string // hive.db or HIVE_DB_PATH
	ConfigPath string // hive.yaml or HIVE_CONFIG
}

// ResolvePaths returns all hive paths, respecting env var overrides.
// Environment variables:
//   - HIVE_HOME: base directory for all hive state (default: ~/.hive)
//   - HIVE_DB_PATH: colony database (default: $HIVE_HOME/hive.db)
//   - HIVE_CONFIG: configuration file (default: $HIVE_HOME/hive.yaml)
//
// If HIVE_HOME is set, it becomes the base for all default paths. Specific
// env vars (HIVE_DB_PATH, HIVE_CONFIG) override both the default and the
// HIVE_HOME base.
func ResolvePaths() (*Paths, error) {
	hiveHome, err := resolveHiveHome()
	if err != nil {
		return nil, err
	}

	return &Paths{
		HiveHome:   hiveHome,
		DBPath:     resolvePathWithEnv("HIVE_DB_PATH", hiveHome, "hive.db"),
		ConfigPath: resolvePathWithEnv("HIVE_CONFIG", hiveHome, "hive.yaml"),
	}, nil
}

// resolveHiveHome returns the hive home directory from HIVE_HOME or ~/.hive.
func resolveHiveHome() (string, error) {
	if v := os.Getenv("HIVE_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".hive"), nil
}

// resolvePathWithEnv returns the path from envKey if set, otherwise joins base + suffix.
func resolvePathWithEnv(envKey, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return filepath.Join(base, suffix)
}
