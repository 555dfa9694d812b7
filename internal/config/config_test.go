package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) (home, cfgDir string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	for _, k := range []string{"ACTA_DB_PATH", "ACTA_STORAGE", "ACTA_SESSIONS_PATH", "ACTA_ADDR"} {
		t.Setenv(k, "")
	}
	return home, filepath.Join(home, ".config", "acta")
}

func TestLoadDefaults(t *testing.T) {
	home, _ := setupEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "acta", "acta.db"), cfg.DBPath)
	assert.Equal(t, StorageReference, cfg.Storage)
	assert.Equal(t, DefaultAddr, cfg.Addr)
	assert.False(t, cfg.ArchiveMode())
	assert.Empty(t, cfg.SessionsPath)
}

func TestLoadFile(t *testing.T) {
	home, dir := setupEnv(t)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	body := `
db_path = "~/data/acta.db"
storage = "archive"
sessions_path = "/a/sessions:/b/sessions"
addr = "0.0.0.0:9000"

[project_aliases]
"ws-old" = "workspace"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data", "acta.db"), cfg.DBPath)
	assert.True(t, cfg.ArchiveMode())
	assert.Equal(t, "/a/sessions:/b/sessions", cfg.SessionsPath)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, map[string]string{"ws-old": "workspace"}, cfg.ProjectAliases)
}

func TestLoadEnvOverrides(t *testing.T) {
	_, dir := setupEnv(t)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`storage = "reference"`), 0o644))

	dbPath := filepath.Join(t.TempDir(), "env.db")
	t.Setenv("ACTA_DB_PATH", dbPath)
	t.Setenv("ACTA_STORAGE", "archive")
	t.Setenv("ACTA_SESSIONS_PATH", "/x")
	t.Setenv("ACTA_ADDR", "127.0.0.1:1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, dbPath, cfg.DBPath)
	assert.True(t, cfg.ArchiveMode())
	assert.Equal(t, "/x", cfg.SessionsPath)
	assert.Equal(t, "127.0.0.1:1", cfg.Addr)
}

func TestLoadXDG(t *testing.T) {
	setupEnv(t)
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(xdg, "acta", "acta.db"), cfg.DBPath)
}

func TestLoadInvalidStorage(t *testing.T) {
	setupEnv(t)
	t.Setenv("ACTA_STORAGE", "everything")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid storage mode")
}

func TestLoadBadFile(t *testing.T) {
	_, dir := setupEnv(t)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`storage = `), 0o644))

	_, err := Load()
	require.Error(t, err)
}
