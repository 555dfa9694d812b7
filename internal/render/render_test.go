package render

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

func TestHighlightKeywords(t *testing.T) {
	got := highlightKeywords("Hello World hello", "hello AND")
	assert.Equal(t, colorBoldRed+"Hello"+colorReset+" World "+colorBoldRed+"hello"+colorReset, got)
	assert.Equal(t, "plain", highlightKeywords("plain", ""))
	assert.Equal(t, "plain", highlightKeywords("plain", "OR NOT"))
	assert.Contains(t, highlightKeywords("a quoted phrase", `"quoted"`), colorBoldRed+"quoted")
}

func TestWrapLine(t *testing.T) {
	assert.Equal(t, []string{"abc"}, wrapLine("abc", 0))
	assert.Equal(t, []string{"abcd", "ef"}, wrapLine("abcdef", 4))
	// wide runes take two columns
	assert.Equal(t, []string{"中文", "测试"}, wrapLine("中文测试", 4))
	// escape sequences take none
	assert.Equal(t, []string{colorDim + "abcd", "ef" + colorReset}, wrapLine(colorDim+"abcdef"+colorReset, 4))
	assert.Equal(t, []string{""}, wrapLine("", 4))
}

func TestClipLines(t *testing.T) {
	assert.Equal(t, "a\nb", clipLines("a\nb", 2))
	got := clipLines("a\nb\nc\nd", 2)
	assert.True(t, strings.HasPrefix(got, "a\nb\n"))
	assert.Contains(t, got, "(2 more lines)")
}

func indexed(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.OpenDB(filepath.Join(t.TempDir(), "acta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	lines := []string{
		`{"type":"session","id":"r1","timestamp":"2025-03-01T10:00:00Z","agent":"ops"}`,
		`{"type":"message","id":"m1","timestamp":"2025-03-01T10:00:01Z","message":{"role":"user","content":"please list the files"}}`,
		`{"type":"message","id":"m2","timestamp":"2025-03-01T10:00:02Z","message":{"role":"assistant","model":"gpt-5","content":[{"type":"tool_use","id":"c1","name":"Bash","input":{"command":"ls"}}],"usage":{"totalTokens":12345,"cost":{"total":0.5}}}}`,
		`{"type":"message","id":"m3","timestamp":"2025-03-01T10:00:03Z","message":{"role":"toolResult","content":[{"type":"text","text":"a.go\nb.go"}]}}`,
		`{"type":"message","id":"m4","timestamp":"2025-03-01T10:00:04Z","message":{"role":"assistant","content":"two files found"}}`,
	}
	p := filepath.Join(t.TempDir(), "r1.jsonl")
	require.NoError(t, os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	_, err = index.New(db).IndexFile(context.Background(), p, "main", false, false)
	require.NoError(t, err)
	return db
}

func TestConversation(t *testing.T) {
	db := indexed(t)

	out, hit, err := Conversation(context.Background(), db, "r1", Options{Context: -1})
	require.NoError(t, err)
	assert.Equal(t, -1, hit)
	assert.Contains(t, out, "--- r1 [ops]")
	assert.Contains(t, out, "USER")
	assert.Contains(t, out, "TOOL Bash")
	assert.Contains(t, out, "RESULT")
	assert.Contains(t, out, "two files found")
	assert.NotContains(t, out, "events before")

	out, hit, err = Conversation(context.Background(), db, "r1", Options{HitEventID: "m3", Context: 1, Query: "files"})
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.Greater(t, hit, 0)
	assert.Contains(t, lines[hit], ">> RESULT")
	assert.Contains(t, out, "(1 events before)")
	assert.NotContains(t, out, "events after")
	assert.Contains(t, out, colorBoldRed+"files"+colorReset)
}

func TestConversationMissing(t *testing.T) {
	db := indexed(t)
	_, _, err := Conversation(context.Background(), db, "nope", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")
}

func TestMarkdown(t *testing.T) {
	db := indexed(t)
	ctx := context.Background()
	s, err := db.GetSession(ctx, "r1")
	require.NoError(t, err)
	events, err := db.GetEvents(ctx, "r1", false)
	require.NoError(t, err)

	md := Markdown(s, events)
	assert.True(t, strings.HasPrefix(md, "# Session: r1\n"))
	assert.Contains(t, md, "- **Agent:** ops\n")
	assert.Contains(t, md, "- **Model:** gpt-5\n")
	assert.Contains(t, md, "- **Cost:** $0.5000 | **Tokens:** 12,345\n")
	assert.Contains(t, md, "### [2025-03-01T10:00:02Z] Tool: Bash\n```json\n{\"command\":\"ls\"}\n```")
	assert.Contains(t, md, "Result: ")
	assert.Contains(t, md, "a.go\nb.go")
	assert.Contains(t, md, "### [2025-03-01T10:00:04Z] assistant\ntwo files found")
}

func TestMarkdownDefaults(t *testing.T) {
	md := Markdown(&index.Session{ID: "x", StartTime: "t"}, nil)
	assert.Contains(t, md, "- **End:** N/A\n")
	assert.Contains(t, md, "- **Agent:** main\n")
	assert.Contains(t, md, "## Summary\nNo summary\n")
}
