package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/acta/internal/index"
	"github.com/Zuo-Peng/acta/internal/search"
)

var transcript = []string{
	`{"type":"session","id":"e1","timestamp":"2025-03-01T10:00:00Z"}`,
	`{"type":"message","id":"m1","timestamp":"2025-03-01T10:00:01Z","message":{"role":"user","content":"export\tthis\nplease"}}`,
}

func indexedDB(t *testing.T, archive bool) *index.DB {
	t.Helper()
	db, err := index.OpenDB(filepath.Join(t.TempDir(), "acta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	p := filepath.Join(t.TempDir(), "e1.jsonl")
	require.NoError(t, os.WriteFile(p, []byte(strings.Join(transcript, "\n")+"\n"), 0o644))
	_, err = index.New(db).IndexFile(context.Background(), p, "main", false, archive)
	require.NoError(t, err)
	return db
}

func testCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

func TestExportSessionFormats(t *testing.T) {
	db := indexedDB(t, true)

	var b bytes.Buffer
	require.NoError(t, exportSession(testCmd(), db, "e1", "jsonl", &b))
	assert.Equal(t, strings.Join(transcript, "\n")+"\n", b.String())

	b.Reset()
	require.NoError(t, exportSession(testCmd(), db, "e1", "md", &b))
	assert.True(t, strings.HasPrefix(b.String(), "# Session: e1\n"))

	b.Reset()
	require.NoError(t, exportSession(testCmd(), db, "e1", "json", &b))
	var out struct {
		Session index.Session `json:"session"`
		Events  []index.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(b.Bytes(), &out))
	assert.Equal(t, "e1", out.Session.ID)
	require.Len(t, out.Events, 1)

	assert.Error(t, exportSession(testCmd(), db, "e1", "xml", &b))
	assert.Error(t, exportSession(testCmd(), db, "missing", "md", &b))
}

func TestExportJSONLNeedsArchive(t *testing.T) {
	db := indexedDB(t, false)

	var b bytes.Buffer
	err := exportSession(testCmd(), db, "e1", "jsonl", &b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no archive data")
}

func TestWriteTSV(t *testing.T) {
	var b bytes.Buffer
	writeTSV(&b, []search.Result{{
		Event:   index.Event{ID: "m1", SessionID: "e1", Timestamp: "2025-03-01T10:00:01Z", Type: "message"},
		Agent:   "main",
		Snippet: "a >>>hit<<<\tb\nc",
	}})

	line := strings.TrimSuffix(b.String(), "\n")
	fields := strings.Split(line, "\t")
	require.Len(t, fields, 7)
	assert.Equal(t, "e1", fields[0])
	assert.Equal(t, "m1", fields[1])
	assert.Equal(t, "-", fields[5])
	assert.Equal(t, "a "+sColorBoldRed+"hit"+sColorReset+" b c", fields[6])
	assert.NotContains(t, line, "\n")
}
