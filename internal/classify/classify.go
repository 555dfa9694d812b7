// Package classify derives session metadata from the ordered user messages
// of a transcript: the summary line, the initial prompt and the session type.
package classify

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Session types assigned by inference.
const (
	TypeHeartbeat = "heartbeat"
	TypeCron      = "cron"
	TypeSubagent  = "subagent"
)

const (
	// HeartbeatSummary is the summary of a session with no usable user text.
	HeartbeatSummary = "Heartbeat session"

	MaxSummaryChars = 200
	MaxPromptChars  = 500

	// a prompt must be longer than this (trimmed, in runes) to count
	minPromptChars = 10
)

const (
	heartbeatMarker   = "heartbeat"
	heartbeatOKMarker = "heartbeat_ok"
	cronMarker        = "[cron:"
	systemMsgMarker   = "[System Message]"
	subagentIDMarker  = "subagent"
)

// spawned sub-agent prompts open with a weekday-dated tag like "[Wed 2026-"
var subagentPrompt = regexp.MustCompile(`^\[(?:Mon|Tue|Wed|Thu|Fri|Sat|Sun)\s+\d{4}-`)

// IsHeartbeat reports whether text is a keep-alive turn.
func IsHeartbeat(text string) bool {
	return strings.Contains(strings.ToLower(text), heartbeatMarker)
}

// IsSubstantial reports whether text qualifies as an initial prompt.
func IsSubstantial(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) > minPromptChars && !IsHeartbeat(text)
}

// IsSubagentID reports whether a vendor session id marks a spawned sub-agent.
func IsSubagentID(id string) bool {
	return strings.Contains(id, subagentIDMarker)
}

// InferType applies the fixed precedence of prompt rules. The first rule
// that matches wins; "" means no rule matched.
func InferType(prompt string, hasPrompt bool) string {
	if !hasPrompt {
		return TypeHeartbeat
	}
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, cronMarker):
		return TypeCron
	case strings.Contains(lower, heartbeatMarker) && strings.Contains(lower, heartbeatOKMarker):
		return TypeHeartbeat
	}
	p := strings.TrimSpace(prompt)
	if subagentPrompt.MatchString(p) && !strings.Contains(p, systemMsgMarker) {
		return TypeSubagent
	}
	return ""
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Classifier folds over a session's messages in file order. The first
// qualifying message wins for both summary and prompt.
type Classifier struct {
	summary       string
	prompt        string
	hasPrompt     bool
	promptEventID string
	promptTime    string
}

// Classification is the derived session metadata.
type Classification struct {
	Summary               string
	Type                  string
	InitialPrompt         string // empty when no user message was substantial
	FirstMessageID        string
	FirstMessageTimestamp string
}

// Observe feeds one message event. Only user text participates.
func (c *Classifier) Observe(role, text, eventID, timestamp string) {
	if role != "user" || text == "" {
		return
	}
	if c.summary == "" && !IsHeartbeat(text) {
		c.summary = Truncate(text, MaxSummaryChars)
	}
	if !c.hasPrompt && IsSubstantial(text) {
		c.prompt = Truncate(text, MaxPromptChars)
		c.hasPrompt = true
		c.promptEventID = eventID
		c.promptTime = timestamp
	}
}

// Result finalizes the classification. declared is the session type already
// settled from the transcript header, if any; inference only runs when it is
// empty.
func (c *Classifier) Result(declared string) Classification {
	out := Classification{
		Summary:               c.summary,
		Type:                  declared,
		InitialPrompt:         c.prompt,
		FirstMessageID:        c.promptEventID,
		FirstMessageTimestamp: c.promptTime,
	}
	if out.Summary == "" {
		out.Summary = HeartbeatSummary
	}
	if out.Type == "" {
		out.Type = InferType(c.prompt, c.hasPrompt)
	}
	return out
}
