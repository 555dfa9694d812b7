package parse

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Record types that carry session state but never become events.
const (
	TypeSession       = "session"
	TypeMessage       = "message"
	TypeUser          = "user"
	TypeAssistant     = "assistant"
	TypeModelChange   = "model_change"
	TypeThinkingLevel = "thinking_level_change"
	TypeCustom        = "custom"
	TypeSnapshot      = "file-history-snapshot"
)

// Record is one decoded transcript line. Both transcript families share the
// top-level "type" discriminator; the remaining fields are a union of the
// two shapes and are empty when a family does not use them.
type Record struct {
	Type        string          `json:"type"`
	ID          string          `json:"id"`
	UUID        string          `json:"uuid"`
	SessionID   string          `json:"sessionId"`
	Timestamp   Timestamp       `json:"timestamp"`
	Agent       string          `json:"agent"`
	SessionType string          `json:"sessionType"`
	ModelID     string          `json:"modelId"`
	Cwd         string          `json:"cwd"`
	Message     json.RawMessage `json:"message"`
}

// Kind classifies a record by its declared type.
type Kind int

const (
	KindUnknown Kind = iota
	KindHeader
	KindMeta
	KindTurn
)

// UnmarshalJSON decodes the record member by member. Only a line that is not
// a JSON object is an error; a member of the wrong type is left empty.
func (r *Record) UnmarshalJSON(b []byte) error {
	var f fields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*r = Record{
		Type:        f.str("type"),
		ID:          f.str("id"),
		UUID:        f.str("uuid"),
		SessionID:   f.str("sessionId"),
		Agent:       f.str("agent"),
		SessionType: f.str("sessionType"),
		ModelID:     f.str("modelId"),
		Cwd:         f.str("cwd"),
		Message:     f["message"],
	}
	f.decode("timestamp", &r.Timestamp)
	return nil
}

// fields holds the members of a JSON object undecoded.
type fields map[string]json.RawMessage

// str returns the member as a string, or "" when it is absent or not a string.
func (f fields) str(key string) string {
	var s string
	if raw, ok := f[key]; ok && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}

func (f fields) decode(key string, v any) {
	if raw, ok := f[key]; ok {
		_ = json.Unmarshal(raw, v)
	}
}

// ParseRecord decodes a single JSON line.
func ParseRecord(line []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Kind reports which family the record belongs to. Turn records must carry a
// message object; a "user" line without one is treated as unknown.
func (r Record) Kind() Kind {
	switch r.Type {
	case TypeSession:
		return KindHeader
	case TypeModelChange, TypeThinkingLevel, TypeCustom, TypeSnapshot:
		return KindMeta
	case TypeMessage, TypeUser, TypeAssistant:
		if r.hasMessage() {
			return KindTurn
		}
	}
	return KindUnknown
}

// EventID returns the vendor supplied identifier of the record, if any.
func (r Record) EventID() string {
	if r.ID != "" {
		return r.ID
	}
	return r.UUID
}

func (r Record) hasMessage() bool {
	m := bytes.TrimSpace(r.Message)
	return len(m) > 0 && !bytes.Equal(m, []byte("null"))
}

// Schema identifies the transcript family from a file's first record.
type Schema int

const (
	SchemaUnknown Schema = iota
	// SchemaHeaderFirst files open with a "session" declaration record.
	SchemaHeaderFirst
	// SchemaTurnFirst files have no header; the session id rides on turns.
	SchemaTurnFirst
)

func (s Schema) String() string {
	switch s {
	case SchemaHeaderFirst:
		return "header-first"
	case SchemaTurnFirst:
		return "turn-first"
	default:
		return "unknown"
	}
}

// DetectSchema discriminates on the declared record type of the first line.
func DetectSchema(first Record) Schema {
	switch first.Type {
	case TypeSession:
		return SchemaHeaderFirst
	case TypeUser, TypeAssistant, TypeSnapshot:
		return SchemaTurnFirst
	default:
		return SchemaUnknown
	}
}

// Timestamp is a record timestamp kept in its source textual form. Numeric
// values are taken as epoch milliseconds and rendered as RFC 3339.
type Timestamp string

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Timestamp(s)
		return nil
	}
	var ms float64
	if err := json.Unmarshal(b, &ms); err != nil {
		// booleans, objects: ignore rather than reject the whole line
		*t = ""
		return nil
	}
	*t = Timestamp(time.UnixMilli(int64(ms)).UTC().Format(time.RFC3339Nano))
	return nil
}

// Time parses the timestamp, reporting false when it is empty or unparseable.
func (t Timestamp) Time() (time.Time, bool) {
	ts := parseTimestamp(strings.TrimSpace(string(t)))
	return ts, !ts.IsZero()
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	// try RFC3339
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	// try RFC3339Nano
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	// try ISO8601 without timezone
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
