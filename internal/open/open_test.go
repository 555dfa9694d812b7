package open

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/acta/internal/index"
)

func TestCommand(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		editor string
		want   []string
	}{
		{"vim", []string{"vim", "+7", "/f.jsonl"}},
		{"/usr/bin/nvim", []string{"/usr/bin/nvim", "+7", "/f.jsonl"}},
		{"code -w", []string{"code", "-w", "--goto", "/f.jsonl:7"}},
		{"less", []string{"less", "+7", "/f.jsonl"}},
		{"nano", []string{"nano", "/f.jsonl"}},
		{"", []string{"less", "+7", "/f.jsonl"}},
	}
	for _, tt := range tests {
		t.Run(tt.editor, func(t *testing.T) {
			cmd := Command(ctx, tt.editor, "/f.jsonl", 7)
			assert.Equal(t, tt.want, cmd.Args)
		})
	}
}

func TestEventLine(t *testing.T) {
	db, err := index.OpenDB(filepath.Join(t.TempDir(), "acta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	lines := []string{
		`{"type":"session","id":"o1","timestamp":"2025-03-01T10:00:00Z"}`,
		``,
		`{"type":"message","id":"m1","timestamp":"2025-03-01T10:00:01Z","message":{"role":"user","content":"hello there"}}`,
	}
	p := filepath.Join(t.TempDir(), "o1.jsonl")
	require.NoError(t, os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	_, err = index.New(db).IndexFile(context.Background(), p, "main", false, false)
	require.NoError(t, err)

	ctx := context.Background()
	n, err := EventLine(ctx, db, "o1", "m1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = EventLine(ctx, db, "o1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = EventLine(ctx, db, "o1", "missing")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	path, n, err := Locate(ctx, db, "o1", "m1")
	require.NoError(t, err)
	assert.Equal(t, p, path)
	assert.Equal(t, 3, n)

	require.NoError(t, os.Remove(p))
	_, _, err = Locate(ctx, db, "o1", "m1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")
}

func TestEditor(t *testing.T) {
	t.Setenv("EDITOR", "")
	assert.Equal(t, "less", Editor())
	t.Setenv("EDITOR", "nvim")
	assert.Equal(t, "nvim", Editor())
}

func TestSessionMissing(t *testing.T) {
	db, err := index.OpenDB(filepath.Join(t.TempDir(), "acta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	err = Session(context.Background(), db, "nope", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")
}
