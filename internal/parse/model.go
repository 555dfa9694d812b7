package parse

import "encoding/json"

// MaxToolResultChars bounds the stored text of a tool result.
const MaxToolResultChars = 10000

// RoleUnknown is used for turns whose message declares no role.
const RoleUnknown = "unknown"

// NormalizedMessage is the vendor-neutral form of one turn record.
// A turn is either a tool result (ToolResult != nil, Text and ToolCalls
// empty) or a message carrying text and/or tool invocations.
type NormalizedMessage struct {
	ID         string // vendor id or uuid; empty when the record has none
	Timestamp  Timestamp
	Role       string
	Text       string
	Model      string // assistant model id, filtered of placeholder values
	Cwd        string
	Usage      Usage
	ToolCalls  []ToolCall
	ToolResult *ToolResult
}

// ToolCall is one tool invocation embedded in a turn.
type ToolCall struct {
	ID   string
	Name string
	Args string // compact JSON object
}

// ToolResult is the output of a tool as reported back into the transcript.
type ToolResult struct {
	ToolCallID string
	ToolName   string
	Content    string
}

// Usage holds per-turn cost and token counters. Both vendor spellings
// (input/output/cacheRead/cacheWrite and input_tokens/output_tokens/
// cache_read_input_tokens/cache_creation_input_tokens) add into the same
// counters, so a turn carrying both is summed.
type Usage struct {
	Cost        float64
	TotalTokens int64
	Input       int64
	Output      int64
	CacheRead   int64
	CacheWrite  int64
}

// Add accumulates o into u.
func (u *Usage) Add(o Usage) {
	u.Cost += o.Cost
	u.TotalTokens += o.TotalTokens
	u.Input += o.Input
	u.Output += o.Output
	u.CacheRead += o.CacheRead
	u.CacheWrite += o.CacheWrite
}

// UnmarshalJSON reads only numeric fields; anything of the wrong type is
// ignored instead of failing the enclosing message.
func (u *Usage) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}

	*u = Usage{}
	if cost, ok := raw["cost"].(map[string]any); ok {
		if v, ok := cost["total"].(float64); ok {
			u.Cost = v
		}
	}
	u.TotalTokens = intField(raw, "totalTokens")
	u.Input = intField(raw, "input") + intField(raw, "input_tokens")
	u.Output = intField(raw, "output") + intField(raw, "output_tokens")
	u.CacheRead = intField(raw, "cacheRead") + intField(raw, "cache_read_input_tokens")
	u.CacheWrite = intField(raw, "cacheWrite") + intField(raw, "cache_creation_input_tokens")
	return nil
}

func intField(raw map[string]any, key string) int64 {
	if v, ok := raw[key].(float64); ok {
		return int64(v)
	}
	return 0
}

type message struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	Model      string          `json:"model"`
	Usage      Usage           `json:"usage"`
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
}

func (m *message) UnmarshalJSON(b []byte) error {
	var f fields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*m = message{
		Role:       f.str("role"),
		Content:    f["content"],
		Model:      f.str("model"),
		ToolCallID: f.str("toolCallId"),
		ToolName:   f.str("toolName"),
	}
	f.decode("usage", &m.Usage)
	return nil
}

type contentBlock struct {
	Type       string          `json:"type"`
	Text       string          `json:"text"`
	ID         string          `json:"id"`
	ToolCallID string          `json:"toolCallId"`
	Name       string          `json:"name"`
	Input      json.RawMessage `json:"input"`
	Arguments  json.RawMessage `json:"arguments"`
}

func (c *contentBlock) UnmarshalJSON(b []byte) error {
	var f fields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*c = contentBlock{
		Type:       f.str("type"),
		Text:       f.str("text"),
		ID:         f.str("id"),
		ToolCallID: f.str("toolCallId"),
		Name:       f.str("name"),
		Input:      f["input"],
		Arguments:  f["arguments"],
	}
	return nil
}
