package parse

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRecord(t *testing.T, line string) Record {
	t.Helper()
	rec, err := ParseRecord([]byte(line))
	require.NoError(t, err)
	return rec
}

func TestDetectSchema(t *testing.T) {
	cases := []struct {
		line string
		want Schema
	}{
		{`{"type":"session","id":"s1","timestamp":"2025-01-01T00:00:00Z"}`, SchemaHeaderFirst},
		{`{"type":"user","sessionId":"abc","message":{"role":"user","content":"hi"}}`, SchemaTurnFirst},
		{`{"type":"assistant","message":{"role":"assistant","content":"hi"}}`, SchemaTurnFirst},
		{`{"type":"file-history-snapshot","messageId":"m1"}`, SchemaTurnFirst},
		{`{"type":"message","message":{"role":"user","content":"hi"}}`, SchemaUnknown},
		{`{"foo":"bar"}`, SchemaUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectSchema(mustRecord(t, tc.line)), tc.line)
	}
}

func TestRecordKind(t *testing.T) {
	assert.Equal(t, KindHeader, mustRecord(t, `{"type":"session","id":"s1"}`).Kind())
	assert.Equal(t, KindMeta, mustRecord(t, `{"type":"model_change","modelId":"m"}`).Kind())
	assert.Equal(t, KindMeta, mustRecord(t, `{"type":"custom"}`).Kind())
	assert.Equal(t, KindTurn, mustRecord(t, `{"type":"message","message":{"role":"user"}}`).Kind())
	assert.Equal(t, KindUnknown, mustRecord(t, `{"type":"user"}`).Kind())
	assert.Equal(t, KindUnknown, mustRecord(t, `{"type":"user","message":null}`).Kind())
	assert.Equal(t, KindUnknown, mustRecord(t, `{"type":"summary"}`).Kind())
}

func TestParseRecordMalformed(t *testing.T) {
	_, err := ParseRecord([]byte(`{"type":"message",`))
	require.Error(t, err)
}

func TestTimestampNumeric(t *testing.T) {
	rec := mustRecord(t, `{"type":"session","id":"s","timestamp":1700000000000}`)
	ts, ok := rec.Timestamp.Time()
	require.True(t, ok)
	assert.Equal(t, int64(1700000000000), ts.UnixMilli())

	rec = mustRecord(t, `{"type":"session","id":"s","timestamp":true}`)
	assert.Equal(t, Timestamp(""), rec.Timestamp)
}

func TestExtractContent(t *testing.T) {
	assert.Equal(t, "plain", ExtractContent(json.RawMessage(`"plain"`)))
	assert.Equal(t, "a\nb", ExtractContent(json.RawMessage(
		`[{"type":"text","text":"a"},{"type":"tool_use","name":"Read"},{"type":"text","text":"b"}]`)))
	assert.Equal(t, "", ExtractContent(json.RawMessage(`{"text":"x"}`)))
	assert.Equal(t, "", ExtractContent(json.RawMessage(`42`)))
	assert.Equal(t, "", ExtractContent(nil))
	assert.Equal(t, "", ExtractContent(json.RawMessage(`[]`)))
}

func TestExtractToolCalls(t *testing.T) {
	raw := json.RawMessage(`[
		{"type":"text","text":"working"},
		{"type":"tool_use","id":"tu1","name":"Read","input":{"file_path": "/a.go"}},
		{"type":"toolCall","toolCallId":"tc2","name":"exec","arguments":{"cmd":"ls"}},
		{"type":"tool_use","id":"tu3","name":"Noop"}
	]`)
	calls := ExtractToolCalls(raw)
	require.Len(t, calls, 3)

	assert.Equal(t, ToolCall{ID: "tu1", Name: "Read", Args: `{"file_path":"/a.go"}`}, calls[0])
	assert.Equal(t, ToolCall{ID: "tc2", Name: "exec", Args: `{"cmd":"ls"}`}, calls[1])
	assert.Equal(t, ToolCall{ID: "tu3", Name: "Noop", Args: "{}"}, calls[2])

	assert.Empty(t, ExtractToolCalls(json.RawMessage(`"just text"`)))
}

func TestNormalizeHeaderFamily(t *testing.T) {
	rec := mustRecord(t, `{"type":"message","id":"e1","timestamp":"2025-01-01T00:00:01Z",
		"message":{"role":"assistant","model":"claude-opus","content":[{"type":"text","text":"Hi"}],
		"usage":{"input":10,"output":5,"cacheRead":2,"cacheWrite":1,"totalTokens":18,"cost":{"total":0.25}}}}`)

	nm, ok := Normalize(rec)
	require.True(t, ok)
	assert.Equal(t, "e1", nm.ID)
	assert.Equal(t, "assistant", nm.Role)
	assert.Equal(t, "Hi", nm.Text)
	assert.Equal(t, "claude-opus", nm.Model)
	assert.Nil(t, nm.ToolResult)
	assert.Equal(t, Usage{Cost: 0.25, TotalTokens: 18, Input: 10, Output: 5, CacheRead: 2, CacheWrite: 1}, nm.Usage)
}

func TestNormalizeTurnFamily(t *testing.T) {
	rec := mustRecord(t, `{"type":"user","uuid":"u-1","sessionId":"abc","cwd":"/work/proj",
		"timestamp":"2025-01-01T00:00:00Z","message":{"content":"fix the bug"}}`)

	nm, ok := Normalize(rec)
	require.True(t, ok)
	assert.Equal(t, "u-1", nm.ID)
	assert.Equal(t, "user", nm.Role)
	assert.Equal(t, "fix the bug", nm.Text)
	assert.Equal(t, "/work/proj", nm.Cwd)
}

func TestNormalizeUnknownRole(t *testing.T) {
	nm, ok := Normalize(mustRecord(t, `{"type":"message","message":{"content":"x"}}`))
	require.True(t, ok)
	assert.Equal(t, RoleUnknown, nm.Role)
}

func TestNormalizeModelFilter(t *testing.T) {
	for _, model := range []string{"delivery-mirror", "<synthetic>"} {
		line := `{"type":"message","message":{"role":"assistant","model":"` + model + `","content":"x"}}`
		nm, ok := Normalize(mustRecord(t, line))
		require.True(t, ok)
		assert.Empty(t, nm.Model, model)
	}

	nm, ok := Normalize(mustRecord(t, `{"type":"message","message":{"role":"user","model":"m","content":"x"}}`))
	require.True(t, ok)
	assert.Empty(t, nm.Model)
}

func TestNormalizeToolResult(t *testing.T) {
	rec := mustRecord(t, `{"type":"message","id":"r1","message":{"role":"toolResult",
		"toolCallId":"tc1","toolName":"read",
		"content":[{"type":"text","text":"line1"},{"type":"image","text":"line2"}]}}`)

	nm, ok := Normalize(rec)
	require.True(t, ok)
	require.NotNil(t, nm.ToolResult)
	assert.Equal(t, "tc1", nm.ToolResult.ToolCallID)
	assert.Equal(t, "read", nm.ToolResult.ToolName)
	assert.Equal(t, "line1\nline2", nm.ToolResult.Content)
	assert.Empty(t, nm.Text)
	assert.Empty(t, nm.ToolCalls)
}

func TestNormalizeToolResultTruncated(t *testing.T) {
	long := strings.Repeat("é", MaxToolResultChars+50)
	payload, err := json.Marshal(map[string]any{
		"type":    "message",
		"message": map[string]any{"role": "tool", "content": long},
	})
	require.NoError(t, err)

	nm, ok := Normalize(mustRecord(t, string(payload)))
	require.True(t, ok)
	require.NotNil(t, nm.ToolResult)
	assert.Equal(t, MaxToolResultChars, len([]rune(nm.ToolResult.Content)))
}

func TestNormalizeMistypedFields(t *testing.T) {
	rec := mustRecord(t, `{"type":"message","id":"m1","cwd":42,
		"message":{"role":"user","content":"Hello there friend","toolCallId":7,"model":false}}`)
	assert.Empty(t, rec.Cwd)

	nm, ok := Normalize(rec)
	require.True(t, ok)
	assert.Equal(t, "m1", nm.ID)
	assert.Equal(t, "user", nm.Role)
	assert.Equal(t, "Hello there friend", nm.Text)
	assert.Nil(t, nm.ToolResult)

	rec = mustRecord(t, `{"type":"message","message":{"role":"assistant","content":[
		{"type":"text","text":["bad"]},{"type":"toolCall","id":1,"name":"read","arguments":{"path":"/a"}}]}}`)
	nm, ok = Normalize(rec)
	require.True(t, ok)
	assert.Empty(t, nm.Text)
	require.Len(t, nm.ToolCalls, 1)
	assert.Equal(t, "read", nm.ToolCalls[0].Name)
	assert.Equal(t, `{"path":"/a"}`, nm.ToolCalls[0].Args)

	rec = mustRecord(t, `{"type":"message","message":{"role":"toolResult","toolName":3,"content":"ok"}}`)
	nm, ok = Normalize(rec)
	require.True(t, ok)
	require.NotNil(t, nm.ToolResult)
	assert.Equal(t, "ok", nm.ToolResult.Content)
	assert.Empty(t, nm.ToolResult.ToolName)
}

func TestNormalizeRejectsNonTurns(t *testing.T) {
	_, ok := Normalize(mustRecord(t, `{"type":"session","id":"s1"}`))
	assert.False(t, ok)
	_, ok = Normalize(mustRecord(t, `{"type":"message","message":"not an object"}`))
	assert.False(t, ok)
}

func TestUsageBothConventions(t *testing.T) {
	var u Usage
	require.NoError(t, json.Unmarshal([]byte(`{"input":1,"input_tokens":2,"output":3,"output_tokens":4,
		"cacheRead":5,"cache_read_input_tokens":6,"cacheWrite":7,"cache_creation_input_tokens":8}`), &u))
	assert.Equal(t, Usage{Input: 3, Output: 7, CacheRead: 11, CacheWrite: 15}, u)

	require.NoError(t, json.Unmarshal([]byte(`"garbage"`), &u))
	assert.Equal(t, Usage{Input: 3, Output: 7, CacheRead: 11, CacheWrite: 15}, u)
}

func TestFileOperation(t *testing.T) {
	cases := map[string]string{
		"Write":      OpWrite,
		"write_file": OpWrite,
		"Edit":       OpEdit,
		"str_edit":   OpEdit,
		"MultiEdit":  OpRead,
		"Read":       OpRead,
		"bash":       OpRead,
		"":           OpRead,
	}
	for name, want := range cases {
		assert.Equal(t, want, FileOperation(name), name)
	}
}

func TestExtractFilePaths(t *testing.T) {
	assert.Equal(t, []string{"/a"}, ExtractFilePaths(`{"path":"/a","other":"x"}`))
	assert.Equal(t, []string{"/a", "/b"}, ExtractFilePaths(`{"file":"/b","file_path":"/a"}`))
	assert.Empty(t, ExtractFilePaths(`{"command":"ls"}`))
	assert.Empty(t, ExtractFilePaths(`{"path":42}`))
	assert.Empty(t, ExtractFilePaths(`not json`))
}

func TestSynthesizeEventID(t *testing.T) {
	assert.Equal(t, "evt-1700000000000", SynthesizeEventID("2023-11-14T22:13:20Z"))

	a := SynthesizeEventID("")
	b := SynthesizeEventID("")
	assert.True(t, strings.HasPrefix(a, "evt-"))
	assert.NotEqual(t, a, b)
}
