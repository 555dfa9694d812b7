package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/Zuo-Peng/acta/internal/index"
	"github.com/Zuo-Peng/acta/internal/parse"
)

const (
	colorReset   = "\033[0m"
	colorUser    = "\033[1;34m" // bold blue
	colorAssist  = "\033[1;32m" // bold green
	colorTool    = "\033[1;33m" // bold yellow
	colorDim     = "\033[2m"
	colorHit     = "\033[43m"   // yellow background
	colorBoldRed = "\033[1;31m" // bold red for keyword highlights
)

// maxResultLines caps how much of a tool result is shown inline.
const maxResultLines = 20

type Options struct {
	HitEventID string
	Context    int    // events before/after hit to show
	Width      int    // wrap width (0 = no wrap)
	Query      string // search query for keyword highlighting
}

// fts5Operators are FTS5 operators that should not be highlighted as keywords.
var fts5Operators = map[string]bool{
	"AND": true, "OR": true, "NOT": true, "NEAR": true,
	"and": true, "or": true, "not": true, "near": true,
}

// highlightKeywords wraps case-insensitive matches of query terms in bold red ANSI codes.
func highlightKeywords(text, query string) string {
	if query == "" {
		return text
	}
	var filtered []string
	for _, t := range strings.Fields(query) {
		t = strings.Trim(t, `"*()`)
		if t != "" && !fts5Operators[t] {
			filtered = append(filtered, t)
		}
	}
	for _, term := range filtered {
		lower := strings.ToLower(term)
		i := 0
		for i < len(text) {
			rest := text[i:]
			lowerRest := strings.ToLower(rest)
			if len(lowerRest) != len(rest) {
				break
			}
			idx := strings.Index(lowerRest, lower)
			if idx < 0 {
				break
			}
			pos := i + idx
			orig := text[pos : pos+len(term)]
			replacement := colorBoldRed + orig + colorReset
			text = text[:pos] + replacement + text[pos+len(term):]
			i = pos + len(replacement)
		}
	}
	return text
}

// indentLines prepends each line of text with the given prefix.
func indentLines(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// wrapLine breaks a single line into multiple lines that fit within maxWidth
// visible columns, correctly skipping ANSI escape sequences when measuring width.
func wrapLine(line string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{line}
	}

	var result []string
	var cur strings.Builder
	visW := 0

	i := 0
	for i < len(line) {
		// check for ANSI escape sequence: ESC[ ... m
		if i+1 < len(line) && line[i] == '\033' && line[i+1] == '[' {
			j := i + 2
			for j < len(line) && line[j] != 'm' {
				j++
			}
			if j < len(line) {
				j++ // include 'm'
			}
			cur.WriteString(line[i:j])
			i = j
			continue
		}

		r, size := utf8.DecodeRuneInString(line[i:])
		rw := runewidth.RuneWidth(r)

		if visW+rw > maxWidth {
			result = append(result, cur.String())
			cur.Reset()
			visW = 0
		}

		cur.WriteRune(r)
		visW += rw
		i += size
	}

	if cur.Len() > 0 {
		result = append(result, cur.String())
	}

	if len(result) == 0 {
		return []string{""}
	}
	return result
}

// clipLines keeps the first n lines of text.
func clipLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[:n], "\n") + fmt.Sprintf("\n%s... (%d more lines)%s", colorDim, len(lines)-n, colorReset)
}

// label returns the heading color and label for an event.
func label(e index.Event) (string, string) {
	switch {
	case e.Type == index.EventToolCall:
		return colorTool, "TOOL " + e.ToolName
	case e.Type == index.EventToolResult:
		return colorDim, "RESULT"
	case e.Role == "user":
		return colorUser, "USER"
	case e.Role == "assistant":
		return colorAssist, "ASST"
	default:
		return colorDim, strings.ToUpper(e.Role)
	}
}

// body returns the text shown under an event heading.
func body(e index.Event) string {
	switch e.Type {
	case index.EventToolCall:
		return e.ToolArgs
	case index.EventToolResult:
		return clipLines(e.ToolResult, maxResultLines)
	default:
		return e.Content
	}
}

// Conversation renders a session and returns the content, the 0-based line
// number of the hit event header (-1 if no hit), and any error.
func Conversation(ctx context.Context, db *index.DB, sessionID string, opts Options) (string, int, error) {
	if opts.Context == 0 {
		opts.Context = 10
	}
	if opts.Context < 0 {
		opts.Context = 1000000 // no limit
	}

	session, err := db.GetSession(ctx, sessionID)
	if errors.Is(err, index.ErrNotFound) {
		return "", -1, fmt.Errorf("session not found: %s", sessionID)
	}
	if err != nil {
		return "", -1, fmt.Errorf("get session: %w", err)
	}

	events, hitIdx, startPos, totalCount, err := db.EventsWindow(ctx, sessionID, opts.HitEventID, opts.Context)
	if err != nil {
		return "", -1, fmt.Errorf("get events: %w", err)
	}

	if totalCount == 0 {
		return "(empty session)", -1, nil
	}

	skipAfter := totalCount - startPos - len(events)

	var b strings.Builder
	hitLine := -1
	lineCount := 0
	separator := colorDim + "--------------------------------------------------" + colorReset
	wrapW := opts.Width

	// helper to track line count; wraps long lines if Width is set
	writeLine := func(s string) {
		for _, wl := range wrapLine(s, wrapW) {
			b.WriteString(wl)
			b.WriteString("\n")
			lineCount++
		}
	}

	writeLine(fmt.Sprintf("%s--- %s [%s] %s ---%s", colorDim, sessionID, session.Agent, session.Summary, colorReset))

	if startPos > 0 {
		writeLine(fmt.Sprintf("%s... (%d events before) ...%s", colorDim, startPos, colorReset))
	}

	for i, e := range events {
		isHit := i == hitIdx

		if i > 0 {
			writeLine(separator)
		}

		if isHit {
			hitLine = lineCount
		}

		color, name := label(e)
		if isHit {
			writeLine(fmt.Sprintf("%s>> %s > %s <<%s", colorHit, name, e.Timestamp, colorReset))
		} else {
			writeLine(fmt.Sprintf("%s%s >%s %s%s%s", color, name, colorReset, colorDim, e.Timestamp, colorReset))
		}

		text := body(e)
		if e.Type == index.EventToolResult {
			text = colorDim + text + colorReset
		}
		text = highlightKeywords(text, opts.Query)
		for _, tl := range strings.Split(indentLines(text, "  "), "\n") {
			writeLine(tl)
		}
		writeLine("") // blank line after event
	}

	if skipAfter > 0 {
		writeLine(fmt.Sprintf("%s... (%d events after) ...%s", colorDim, skipAfter, colorReset))
	}

	return b.String(), hitLine, nil
}

// markdownResultChars caps tool result text in Markdown exports.
const markdownResultChars = 2000

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// Markdown renders a session and its events as a Markdown document.
func Markdown(s *index.Session, events []index.Event) string {
	var b strings.Builder
	agent := s.Agent
	if agent == "" {
		agent = "main"
	}
	summary := s.Summary
	if summary == "" {
		summary = "No summary"
	}

	fmt.Fprintf(&b, "# Session: %s\n", s.ID)
	fmt.Fprintf(&b, "- **Start:** %s\n", s.StartTime)
	fmt.Fprintf(&b, "- **End:** %s\n", orNA(s.EndTime))
	fmt.Fprintf(&b, "- **Model:** %s\n", orNA(s.Model))
	fmt.Fprintf(&b, "- **Agent:** %s\n", agent)
	fmt.Fprintf(&b, "- **Messages:** %d | **Tools:** %d\n", s.MessageCount, s.ToolCount)
	fmt.Fprintf(&b, "- **Cost:** $%.4f | **Tokens:** %s\n\n", s.TotalCost, humanize.Comma(s.TotalTokens))
	fmt.Fprintf(&b, "## Summary\n%s\n\n## Events\n\n", summary)

	for _, e := range events {
		switch e.Type {
		case index.EventToolCall:
			fmt.Fprintf(&b, "### [%s] Tool: %s\n```json\n%s\n```\n\n", e.Timestamp, e.ToolName, e.ToolArgs)
		case index.EventToolResult:
			fmt.Fprintf(&b, "### [%s] Result: %s\n```\n%s\n```\n\n", e.Timestamp, e.ToolName,
				parse.TruncateRunes(e.Content, markdownResultChars))
		default:
			role := e.Role
			if role == "" {
				role = e.Type
			}
			fmt.Fprintf(&b, "### [%s] %s\n%s\n\n", e.Timestamp, role, e.Content)
		}
	}
	return b.String()
}
