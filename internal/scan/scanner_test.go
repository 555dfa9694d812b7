package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkdir(t *testing.T, parts ...string) string {
	t.Helper()
	p := filepath.Join(parts...)
	require.NoError(t, os.MkdirAll(p, 0o755))
	return p
}

func touch(t *testing.T, parts ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(parts...), []byte("{}\n"), 0o644))
}

func TestDiscoverOverride(t *testing.T) {
	home := t.TempDir()
	a := mkdir(t, home, "alpha", "sessions")
	b := mkdir(t, home, "beta", "logs")
	mkdir(t, home, ".openclaw", "agents", "main", "sessions")

	dirs := DiscoverIn(home, a+":"+filepath.Join(home, "missing")+":"+b)
	assert.Equal(t, []Dir{
		{Path: a, Agent: "alpha"},
		{Path: b, Agent: "beta"},
	}, dirs)
}

func TestDiscoverOverrideNothingExistsFallsThrough(t *testing.T) {
	home := t.TempDir()
	sp := mkdir(t, home, ".openclaw", "agents", "ops", "sessions")

	dirs := DiscoverIn(home, filepath.Join(home, "nope"))
	assert.Equal(t, []Dir{{Path: sp, Agent: "ops"}}, dirs)
}

func TestDiscoverVendorLayouts(t *testing.T) {
	home := t.TempDir()
	main := mkdir(t, home, ".openclaw", "agents", "main", "sessions")
	mkdir(t, home, ".openclaw", "agents", "empty")

	proj := mkdir(t, home, ".claude", "projects", "-home-me-acta")
	touch(t, proj, "abc.jsonl")
	nested := mkdir(t, home, ".claude", "projects", "-home-me-other", "sessions")
	mkdir(t, home, ".claude", "projects", "-home-me-nologs")

	dirs := DiscoverIn(home, "")
	assert.Equal(t, []Dir{
		{Path: main, Agent: "main"},
		{Path: proj, Agent: "claude--home-me-acta"},
		{Path: nested, Agent: "claude--home-me-other"},
	}, dirs)
}

func TestDiscoverNothing(t *testing.T) {
	assert.Empty(t, DiscoverIn(t.TempDir(), ""))
	assert.Empty(t, DiscoverIn("", ""))
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.jsonl")
	touch(t, dir, "a.jsonl")
	touch(t, dir, "notes.txt")
	mkdir(t, dir, "sub.jsonl")

	files, err := ListFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.jsonl"), filepath.Join(dir, "b.jsonl")}, files)

	_, err = ListFiles(filepath.Join(dir, "missing"))
	require.Error(t, err)
}
