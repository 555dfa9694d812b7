package parse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Block types recognised inside array content.
const (
	blockText     = "text"
	blockToolUse  = "tool_use"
	blockToolCall = "toolCall"
)

// Roles that mark a turn as a tool result.
const (
	roleToolResult = "toolResult"
	roleTool       = "tool"
)

// placeholder model ids that never name a real model
const deliveryMirrorModel = "delivery-mirror"

// Normalize maps a turn record of either transcript family to a
// NormalizedMessage. It reports false for records that are not turns or
// whose message cannot be decoded.
func Normalize(rec Record) (NormalizedMessage, bool) {
	if rec.Kind() != KindTurn {
		return NormalizedMessage{}, false
	}

	var msg message
	if err := json.Unmarshal(rec.Message, &msg); err != nil {
		return NormalizedMessage{}, false
	}
	// turn-first transcripts put the role on the record type
	if msg.Role == "" && (rec.Type == TypeUser || rec.Type == TypeAssistant) {
		msg.Role = rec.Type
	}

	nm := NormalizedMessage{
		ID:        rec.EventID(),
		Timestamp: rec.Timestamp,
		Role:      msg.Role,
		Cwd:       rec.Cwd,
		Usage:     msg.Usage,
		Model:     assistantModel(msg),
	}
	if nm.Role == "" {
		nm.Role = RoleUnknown
	}

	if tr := extractToolResult(msg); tr != nil {
		nm.ToolResult = tr
		return nm, true
	}

	nm.Text = ExtractContent(msg.Content)
	nm.ToolCalls = ExtractToolCalls(msg.Content)
	return nm, true
}

func assistantModel(msg message) string {
	if msg.Role != TypeAssistant || msg.Model == "" {
		return ""
	}
	if msg.Model == deliveryMirrorModel || strings.HasPrefix(msg.Model, "<") {
		return ""
	}
	return msg.Model
}

// ExtractContent returns a message's text. String content passes through;
// array content keeps text blocks joined by newline; any other shape is "".
func ExtractContent(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	blocks, ok := decodeBlocks(raw)
	if !ok {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == blockText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ExtractToolCalls returns the tool invocations embedded in array content.
// The argument payload is read from "input", falling back to "arguments".
func ExtractToolCalls(raw json.RawMessage) []ToolCall {
	blocks, ok := decodeBlocks(raw)
	if !ok {
		return nil
	}

	var calls []ToolCall
	for _, b := range blocks {
		if b.Type != blockToolUse && b.Type != blockToolCall {
			continue
		}
		id := b.ID
		if id == "" {
			id = b.ToolCallID
		}
		payload := b.Input
		if isFalsy(payload) {
			payload = b.Arguments
		}
		calls = append(calls, ToolCall{
			ID:   id,
			Name: b.Name,
			Args: compactArgs(payload),
		})
	}
	return calls
}

func extractToolResult(msg message) *ToolResult {
	if msg.Role != roleToolResult && msg.Role != roleTool {
		return nil
	}

	var content string
	if blocks, ok := decodeBlocks(msg.Content); ok {
		parts := make([]string, 0, len(blocks))
		for _, b := range blocks {
			parts = append(parts, b.Text)
		}
		content = strings.Join(parts, "\n")
	} else {
		_ = json.Unmarshal(msg.Content, &content)
	}

	return &ToolResult{
		ToolCallID: msg.ToolCallID,
		ToolName:   msg.ToolName,
		Content:    TruncateRunes(content, MaxToolResultChars),
	}
}

// decodeBlocks decodes array content block by block so that one malformed
// block does not hide the others.
func decodeBlocks(raw json.RawMessage) ([]contentBlock, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, false
	}
	blocks := make([]contentBlock, 0, len(items))
	for _, item := range items {
		var b contentBlock
		if err := json.Unmarshal(item, &b); err != nil {
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks, true
}

func isFalsy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	switch string(v) {
	case "", "null", "false", "0", `""`:
		return true
	}
	return false
}

func compactArgs(raw json.RawMessage) string {
	if isFalsy(raw) {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "{}"
	}
	return buf.String()
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// SynthesizeEventID derives an id for a record that has none, from its
// timestamp in epoch milliseconds. Records without a usable timestamp get a
// random id.
func SynthesizeEventID(ts Timestamp) string {
	if t, ok := ts.Time(); ok {
		return fmt.Sprintf("evt-%d", t.UnixMilli())
	}
	return "evt-" + uuid.NewString()
}
