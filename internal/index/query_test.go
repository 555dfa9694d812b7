package index

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seed indexes two sessions touching overlapping files.
func seed(t *testing.T) (*DB, string) {
	t.Helper()
	db := openTestDB(t)
	ix := New(db)
	dir := t.TempDir()

	writeSession(t, dir, "a.jsonl",
		`{"type":"session","id":"a","timestamp":"2025-03-01T10:00:00Z","agent":"ops"}`,
		`{"type":"message","id":"a1","timestamp":"2025-03-01T10:00:01Z","message":{"role":"user","content":"update the readme file"}}`,
		`{"type":"message","id":"a2","timestamp":"2025-03-01T10:00:02Z","message":{"role":"assistant","content":[{"type":"tool_use","id":"ta","name":"Write","input":{"path":"/repo/README.md"}}],"usage":{"totalTokens":10,"cost":{"total":1.5}}}}`,
	)
	writeSession(t, dir, "b.jsonl",
		`{"type":"session","id":"b","timestamp":"2025-03-02T10:00:00Z"}`,
		`{"type":"message","id":"b1","timestamp":"2025-03-02T10:00:01Z","message":{"role":"user","content":"read the readme and main"}}`,
		`{"type":"message","id":"b2","timestamp":"2025-03-02T10:00:02Z","message":{"role":"assistant","content":[{"type":"tool_use","id":"tb1","name":"Read","input":{"path":"/repo/README.md"}},{"type":"tool_use","id":"tb2","name":"Read","input":{"path":"/repo/main.go"}}]}}`,
		`{"type":"message","id":"b3","timestamp":"2025-03-02T10:00:03Z","message":{"role":"assistant","content":"all good"}}`,
	)
	for _, name := range []string{"a.jsonl", "b.jsonl"} {
		_, err := ix.IndexFile(context.Background(), dir+"/"+name, "main", false, false)
		require.NoError(t, err)
	}
	return db, dir
}

func TestGetSessionNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetSession(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListSessions(t *testing.T) {
	db, _ := seed(t)

	sessions, total, err := db.ListSessions(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, sessions, 2)
	assert.Equal(t, "b", sessions[0].ID)
	assert.Equal(t, "a", sessions[1].ID)

	sessions, total, err = db.ListSessions(context.Background(), ListOptions{Agent: "ops"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, sessions, 1)
	assert.Equal(t, "a", sessions[0].ID)

	sessions, _, err = db.ListSessions(context.Background(), ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "a", sessions[0].ID)
}

func TestGetEventsOrder(t *testing.T) {
	db, _ := seed(t)

	asc, err := db.GetEvents(context.Background(), "b", false)
	require.NoError(t, err)
	desc, err := db.GetEvents(context.Background(), "b", true)
	require.NoError(t, err)
	require.Len(t, asc, 4)
	require.Len(t, desc, 4)
	assert.Equal(t, []string{"b1", "tb1", "tb2", "b3"}, ids(asc))
	assert.Equal(t, []string{"b3", "tb2", "tb1", "b1"}, ids(desc))
}

func ids(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestEventsWindow(t *testing.T) {
	db, _ := seed(t)

	events, hit, start, total, err := db.EventsWindow(context.Background(), "b", "tb2", 1)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, 1, start)
	assert.Equal(t, []string{"tb1", "tb2", "b3"}, ids(events))
	assert.Equal(t, 1, hit)

	events, hit, start, _, err = db.EventsWindow(context.Background(), "b", "", 1)
	require.NoError(t, err)
	assert.Equal(t, -1, hit)
	assert.Equal(t, 0, start)
	assert.Len(t, events, 4)
}

func TestFileActivityQueries(t *testing.T) {
	db, _ := seed(t)

	files, total, err := db.FileActivitySummary(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, files, 2)
	assert.Equal(t, "/repo/README.md", files[0].FilePath)
	assert.Equal(t, 2, files[0].TouchCount)
	assert.Equal(t, 2, files[0].SessionCount)
	assert.ElementsMatch(t, []string{"write", "read"}, files[0].Operations)

	touches, err := db.SessionsForFile(context.Background(), "/repo/README.md")
	require.NoError(t, err)
	require.Len(t, touches, 2)
	assert.Equal(t, "b", touches[0].Session.ID)
	assert.Equal(t, "read", touches[0].Operation)
	assert.Equal(t, "a", touches[1].Session.ID)
	assert.Equal(t, "write", touches[1].Operation)
}

func TestTimeline(t *testing.T) {
	db, _ := seed(t)

	events, err := db.Timeline(context.Background(), "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"ta", "a1"}, ids(events))
	for _, e := range events {
		assert.Equal(t, "a", e.SessionID)
	}
}

func TestOverview(t *testing.T) {
	db, _ := seed(t)

	o, err := db.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, o.Sessions)
	assert.Equal(t, 6, o.Events)
	assert.Equal(t, 3, o.Messages)
	assert.Equal(t, 3, o.ToolCalls)
	assert.Equal(t, []string{"Read", "Write"}, o.Tools)
	assert.Equal(t, 2, o.UniqueTools)
	assert.Equal(t, []string{"main", "ops"}, o.Agents)
	assert.InDelta(t, 1.5, o.TotalCost, 1e-9)
	assert.Equal(t, int64(10), o.TotalTokens)
	assert.Equal(t, "2025-03-01T10:00:00Z", o.Earliest)
	assert.Equal(t, "2025-03-02T10:00:00Z", o.Latest)
	assert.Equal(t, o.Events, o.FTSRows)
}

func TestPrune(t *testing.T) {
	db, dir := seed(t)
	require.NoError(t, os.Remove(dir+"/a.jsonl"))

	n, err := db.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = db.GetSession(context.Background(), "a")
	require.ErrorIs(t, err, ErrNotFound)
	_, ok, err := db.Checkpoint(context.Background(), dir+"/a.jsonl")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, count(t, db, "SELECT COUNT(*) FROM events WHERE session_id = 'a'"))
	assert.Equal(t, 0, count(t, db, fmt.Sprintf("SELECT COUNT(*) FROM file_activity WHERE session_id = '%s'", "a")))
	ftsIntegrity(t, db)
}
