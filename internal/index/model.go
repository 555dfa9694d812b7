package index

import "errors"

// ErrNotFound is returned by read lookups of a missing session.
var ErrNotFound = errors.New("not found")

// Event kinds.
const (
	EventMessage    = "message"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
)

// RoleTool is the role recorded for tool results.
const RoleTool = "tool"

// Session is one row of the sessions table.
type Session struct {
	ID                    string   `json:"id"`
	StartTime             string   `json:"start_time"`
	EndTime               string   `json:"end_time,omitempty"`
	MessageCount          int      `json:"message_count"`
	ToolCount             int      `json:"tool_count"`
	Model                 string   `json:"model,omitempty"`
	Models                []string `json:"models,omitempty"`
	Summary               string   `json:"summary"`
	Agent                 string   `json:"agent"`
	SessionType           string   `json:"session_type,omitempty"`
	TotalCost             float64  `json:"total_cost"`
	TotalTokens           int64    `json:"total_tokens"`
	InputTokens           int64    `json:"input_tokens"`
	OutputTokens          int64    `json:"output_tokens"`
	CacheReadTokens       int64    `json:"cache_read_tokens"`
	CacheWriteTokens      int64    `json:"cache_write_tokens"`
	InitialPrompt         string   `json:"initial_prompt,omitempty"`
	FirstMessageID        string   `json:"first_message_id,omitempty"`
	FirstMessageTimestamp string   `json:"first_message_timestamp,omitempty"`
	Projects              []string `json:"projects,omitempty"`
	FilePath              string   `json:"file_path"`
}

// Event is one row of the events table.
type Event struct {
	ID         string `json:"id"`
	SessionID  string `json:"session_id"`
	Timestamp  string `json:"timestamp"`
	Type       string `json:"type"`
	Role       string `json:"role,omitempty"`
	Content    string `json:"content,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolArgs   string `json:"tool_args,omitempty"`
	ToolResult string `json:"tool_result,omitempty"`
	LineNumber int    `json:"line_number"` // physical 1-based line in the source file
}

// FileActivity records one tool call touching a file path.
type FileActivity struct {
	SessionID string `json:"session_id"`
	FilePath  string `json:"file_path"`
	Operation string `json:"operation"`
	Timestamp string `json:"timestamp"`
}

// ArchiveLine is one verbatim non-empty source line.
type ArchiveLine struct {
	SessionID  string `json:"session_id"`
	LineNumber int    `json:"line_number"`
	Raw        string `json:"raw_json"`
}

// Checkpoint is the per-file processing cursor.
type Checkpoint struct {
	FilePath  string
	LineCount int
	Modified  string // file mtime, RFC 3339 UTC with nanoseconds
}
