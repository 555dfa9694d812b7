package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Storage modes.
const (
	StorageReference = "reference"
	StorageArchive   = "archive"
)

const DefaultAddr = "127.0.0.1:4003"

type Config struct {
	DBPath         string            `toml:"db_path"`
	Storage        string            `toml:"storage"`
	SessionsPath   string            `toml:"sessions_path"` // colon-separated directory override
	Addr           string            `toml:"addr"`
	ProjectAliases map[string]string `toml:"project_aliases"`
}

// ArchiveMode reports whether raw transcript lines are kept.
func (c *Config) ArchiveMode() bool {
	return c.Storage == StorageArchive
}

// Dir returns the directory holding config.toml and the default database.
func Dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "acta"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "acta"), nil
}

// Load reads config.toml (if any) and applies ACTA_* environment overrides.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBPath:  filepath.Join(dir, "acta.db"),
		Storage: StorageReference,
		Addr:    DefaultAddr,
	}

	cfgPath := filepath.Join(dir, "config.toml")
	if _, err := os.Stat(cfgPath); err == nil {
		if _, err := toml.DecodeFile(cfgPath, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}

	// environment wins over the file
	if v := os.Getenv("ACTA_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("ACTA_STORAGE"); v != "" {
		cfg.Storage = v
	}
	if v := os.Getenv("ACTA_SESSIONS_PATH"); v != "" {
		cfg.SessionsPath = v
	}
	if v := os.Getenv("ACTA_ADDR"); v != "" {
		cfg.Addr = v
	}

	switch cfg.Storage {
	case StorageReference, StorageArchive:
	default:
		return nil, fmt.Errorf("invalid storage mode %q (want %q or %q)", cfg.Storage, StorageReference, StorageArchive)
	}

	// expand ~ in paths
	cfg.DBPath = expandHome(cfg.DBPath, home)
	if abs, err := filepath.Abs(cfg.DBPath); err == nil {
		cfg.DBPath = abs
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	return cfg, nil
}

func expandHome(path, home string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
