package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/Zuo-Peng/acta/internal/index"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ErrInvalidQuery wraps a full-text query the FTS engine rejected.
var ErrInvalidQuery = errors.New("invalid search query")

type Result struct {
	Event          index.Event `json:"event"`
	Agent          string      `json:"agent"`
	SessionStart   string      `json:"session_start"`
	SessionSummary string      `json:"session_summary"`
	Snippet        string      `json:"snippet"`
	Rank           float64     `json:"rank"`
}

type Options struct {
	Query string
	Type  string // "" = all, "message", "tool_call", "tool_result"
	Role  string // "" = all, "user", "assistant", "tool"
	Agent string
	From  string // inclusive lower bound on event timestamp, e.g. "2025-01-01"
	To    string // inclusive upper bound
	Limit int
	// Recent orders by event time instead of relevance.
	Recent bool
	// Dedup keeps only the best hit per session.
	Dedup bool
}

// containsCJK returns true if the string contains any CJK Unified Ideograph.
func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// makeSnippet extracts a snippet around the first occurrence of query in text.
func makeSnippet(text, query string, contextChars int) string {
	lower := strings.ToLower(text)
	qLower := strings.ToLower(query)
	idx := strings.Index(lower, qLower)
	runes := []rune(text)
	if idx < 0 || len(lower) != len(text) {
		// no match (or case folding moved byte offsets), return head
		if len(runes) > contextChars*2 {
			return string(runes[:contextChars*2]) + "..."
		}
		return text
	}
	qRunes := []rune(query)
	runePos := len([]rune(text[:idx]))
	start := max(runePos-contextChars, 0)
	end := min(runePos+len(qRunes)+contextChars, len(runes))
	prefix := ""
	suffix := ""
	if start > 0 {
		prefix = "..."
	}
	if end < len(runes) {
		suffix = "..."
	}
	// wrap the matched part with markers
	snippet := string(runes[start:runePos]) +
		">>>" + string(runes[runePos:runePos+len(qRunes)]) + "<<<" +
		string(runes[runePos+len(qRunes):end])
	return prefix + snippet + suffix
}

// Search runs a full-text query over events. Queries containing CJK text use
// substring matching, since the unicode61 tokenizer does not segment them.
func Search(ctx context.Context, db *index.DB, opts Options) ([]Result, error) {
	if strings.TrimSpace(opts.Query) == "" {
		return nil, nil
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	opts.Limit = min(opts.Limit, MaxLimit)

	// Fetch more results before dedup so we still have enough after
	origLimit := opts.Limit
	if opts.Dedup {
		opts.Limit = origLimit * 3
	}

	var results []Result
	var err error
	if containsCJK(opts.Query) {
		results, err = searchLike(ctx, db, opts)
	} else {
		results, err = searchFTS(ctx, db, opts)
	}
	if err != nil {
		return nil, err
	}
	if !opts.Dedup {
		return results, nil
	}

	// keep only the best-ranked result per session
	seen := make(map[string]bool)
	var deduped []Result
	for _, r := range results {
		if seen[r.Event.SessionID] {
			continue
		}
		seen[r.Event.SessionID] = true
		deduped = append(deduped, r)
		if len(deduped) >= origLimit {
			break
		}
	}
	return deduped, nil
}

// filters appends the non-match conditions shared by both query paths.
func filters(opts Options, conditions []string, args []any) ([]string, []any) {
	if opts.Type != "" {
		conditions = append(conditions, "e.type = ?")
		args = append(args, opts.Type)
	}
	if opts.Role != "" {
		conditions = append(conditions, "e.role = ?")
		args = append(args, opts.Role)
	}
	if opts.Agent != "" {
		conditions = append(conditions, "s.agent = ?")
		args = append(args, opts.Agent)
	}
	if opts.From != "" {
		conditions = append(conditions, "e.timestamp >= ?")
		args = append(args, opts.From)
	}
	if opts.To != "" {
		conditions = append(conditions, "e.timestamp <= ?")
		args = append(args, opts.To)
	}
	return conditions, args
}

func searchFTS(ctx context.Context, db *index.DB, opts Options) ([]Result, error) {
	conditions, args := filters(opts, []string{"events_fts MATCH ?"}, []any{opts.Query})

	order := "score"
	if opts.Recent {
		order = "e.timestamp DESC"
	}

	query := fmt.Sprintf(`
		SELECT
			%s,
			COALESCE(s.agent, ''),
			s.start_time,
			COALESCE(s.summary, ''),
			snippet(events_fts, -1, '>>>', '<<<', '...', 40) AS snip,
			bm25(events_fts) AS score
		FROM events_fts
		JOIN events e ON events_fts.rowid = e.rowid
		JOIN sessions s ON e.session_id = s.id
		WHERE %s
		ORDER BY %s
		LIMIT ?
	`, index.EventColumns("e"), strings.Join(conditions, " AND "), order)

	args = append(args, opts.Limit)

	rows, err := db.Raw().QueryContext(ctx, query, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var snip sql.NullString
		var err error
		r.Event, err = index.ScanEvent(scanWith(rows, &r.Agent, &r.SessionStart, &r.SessionSummary, &snip, &r.Rank))
		if err != nil {
			return nil, err
		}
		r.Snippet = snip.String
		if r.Snippet == "" {
			r.Snippet = makeSnippet(hitText(r.Event), opts.Query, 30)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return results, nil
}

func searchLike(ctx context.Context, db *index.DB, opts Options) ([]Result, error) {
	pattern := "%" + opts.Query + "%"
	conditions, args := filters(opts,
		[]string{"(e.content LIKE ? OR e.tool_args LIKE ? OR e.tool_result LIKE ?)"},
		[]any{pattern, pattern, pattern})

	query := fmt.Sprintf(`
		SELECT
			%s,
			COALESCE(s.agent, ''),
			s.start_time,
			COALESCE(s.summary, '')
		FROM events e
		JOIN sessions s ON e.session_id = s.id
		WHERE %s
		ORDER BY e.timestamp DESC
		LIMIT ?
	`, index.EventColumns("e"), strings.Join(conditions, " AND "))

	args = append(args, opts.Limit)

	rows, err := db.Raw().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var err error
		r.Event, err = index.ScanEvent(scanWith(rows, &r.Agent, &r.SessionStart, &r.SessionSummary))
		if err != nil {
			return nil, err
		}
		r.Snippet = makeSnippet(hitText(r.Event), opts.Query, 30)
		results = append(results, r)
	}
	return results, rows.Err()
}

// hitText is the event text a snippet is cut from.
func hitText(e index.Event) string {
	switch {
	case e.Content != "":
		return e.Content
	case e.ToolArgs != "":
		return e.ToolArgs
	default:
		return e.ToolResult
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// extraScanner appends destinations after the event columns.
type extraScanner struct {
	r     rowScanner
	extra []any
}

func (s extraScanner) Scan(dest ...any) error {
	return s.r.Scan(append(dest, s.extra...)...)
}

func scanWith(r rowScanner, extra ...any) extraScanner {
	return extraScanner{r: r, extra: extra}
}
