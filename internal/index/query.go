package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
)

// columns expands a select list template, replacing $ with the table alias
// prefix ("" or "s.").
func columns(tmpl, alias string) string {
	prefix := ""
	if alias != "" {
		prefix = alias + "."
	}
	return strings.ReplaceAll(tmpl, "$", prefix)
}

const sessionColumnsTmpl = `$id, $start_time, COALESCE($end_time, ''), $message_count, $tool_count,
	COALESCE($model, ''), COALESCE($models, ''), COALESCE($summary, ''), COALESCE($agent, ''),
	COALESCE($session_type, ''), $total_cost, $total_tokens, $input_tokens, $output_tokens,
	$cache_read_tokens, $cache_write_tokens, COALESCE($initial_prompt, ''),
	COALESCE($first_message_id, ''), COALESCE($first_message_timestamp, ''),
	COALESCE($projects, ''), $file_path`

const eventColumnsTmpl = `$id, $session_id, $timestamp, $type, COALESCE($role, ''), COALESCE($content, ''),
	COALESCE($tool_name, ''), COALESCE($tool_args, ''), COALESCE($tool_result, ''), $line_number`

var (
	sessionColumns = columns(sessionColumnsTmpl, "")
	eventColumns   = columns(eventColumnsTmpl, "")
)

type rowScanner interface {
	Scan(dest ...any) error
}

// ScanSession scans one row selected with SessionColumns, followed by any
// extra destinations.
func ScanSession(r rowScanner, extra ...any) (*Session, error) {
	var s Session
	var models, projects string
	dest := []any{&s.ID, &s.StartTime, &s.EndTime, &s.MessageCount, &s.ToolCount,
		&s.Model, &models, &s.Summary, &s.Agent, &s.SessionType, &s.TotalCost,
		&s.TotalTokens, &s.InputTokens, &s.OutputTokens, &s.CacheReadTokens,
		&s.CacheWriteTokens, &s.InitialPrompt, &s.FirstMessageID,
		&s.FirstMessageTimestamp, &projects, &s.FilePath}
	if err := r.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	s.Models = parseJSONList(models)
	s.Projects = parseJSONList(projects)
	return &s, nil
}

// ScanEvent scans one row selected with EventColumns.
func ScanEvent(r rowScanner) (Event, error) {
	var e Event
	err := r.Scan(&e.ID, &e.SessionID, &e.Timestamp, &e.Type, &e.Role, &e.Content,
		&e.ToolName, &e.ToolArgs, &e.ToolResult, &e.LineNumber)
	return e, err
}

// EventColumns is the select list matching ScanEvent, qualified by alias.
func EventColumns(alias string) string {
	return columns(eventColumnsTmpl, alias)
}

// SessionColumns is the select list matching ScanSession, qualified by alias.
func SessionColumns(alias string) string {
	return columns(sessionColumnsTmpl, alias)
}

func (d *DB) GetSession(ctx context.Context, id string) (*Session, error) {
	s, err := ScanSession(d.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return s, nil
}

type ListOptions struct {
	Agent  string
	Limit  int
	Offset int
}

// ListSessions returns sessions, most recently active first, and the total
// number matching the filter.
func (d *DB) ListSessions(ctx context.Context, opts ListOptions) ([]*Session, int, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	where := ""
	var args []any
	if opts.Agent != "" {
		where = " WHERE agent = ?"
		args = append(args, opts.Agent)
	}

	var total int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	rows, err := d.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions"+where+
			" ORDER BY COALESCE(end_time, start_time) DESC LIMIT ? OFFSET ?",
		append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s, err := ScanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// GetEvents returns a session's events in source order, or reversed.
func (d *DB) GetEvents(ctx context.Context, sessionID string, desc bool) ([]Event, error) {
	order := "ASC"
	if desc {
		order = "DESC"
	}
	rows, err := d.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE session_id = ? ORDER BY line_number "+order+", rowid "+order,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		e, err := ScanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// EventsWindow returns a window of events around a hit event.
// It only loads the necessary rows from the database instead of all events.
// startPos is the number of events before the returned window.
// totalCount is the total number of events in the session.
func (d *DB) EventsWindow(ctx context.Context, sessionID, hitID string, window int) (events []Event, hitIdx, startPos, totalCount int, err error) {
	err = d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM events WHERE session_id = ?", sessionID,
	).Scan(&totalCount)
	if err != nil {
		return nil, -1, 0, 0, err
	}

	// find the row_number (0-based position) of the hit event
	hitPos := -1
	if hitID != "" {
		err = d.db.QueryRowContext(ctx, `
			SELECT pos FROM (
				SELECT id, ROW_NUMBER() OVER (ORDER BY line_number, rowid) - 1 AS pos
				FROM events WHERE session_id = ?
			) WHERE id = ?`,
			sessionID, hitID,
		).Scan(&hitPos)
		if errors.Is(err, sql.ErrNoRows) {
			hitPos = -1
			err = nil
		} else if err != nil {
			return nil, -1, 0, 0, err
		}
	}

	startPos = 0
	limit := totalCount
	if hitPos >= 0 {
		startPos = max(hitPos-window, 0)
		endPos := min(hitPos+window+1, totalCount)
		limit = endPos - startPos
	}

	rows, err := d.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE session_id = ? ORDER BY line_number, rowid LIMIT ? OFFSET ?",
		sessionID, limit, startPos,
	)
	if err != nil {
		return nil, -1, 0, 0, err
	}
	defer rows.Close()

	result, err := collectEvents(rows)
	if err != nil {
		return nil, -1, 0, 0, err
	}
	hitIdx = -1
	for i, e := range result {
		if e.ID == hitID {
			hitIdx = i
			break
		}
	}
	return result, hitIdx, startPos, totalCount, nil
}

// ArchiveLines returns the raw lines stored for a session, in order.
func (d *DB) ArchiveLines(ctx context.Context, sessionID string) ([]ArchiveLine, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT session_id, line_number, raw_json FROM archive WHERE session_id = ? ORDER BY line_number",
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("archive lines: %w", err)
	}
	defer rows.Close()

	var lines []ArchiveLine
	for rows.Next() {
		var l ArchiveLine
		if err := rows.Scan(&l.SessionID, &l.LineNumber, &l.Raw); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// FileSummary aggregates the activity recorded for one path.
type FileSummary struct {
	FilePath     string   `json:"file_path"`
	TouchCount   int      `json:"touch_count"`
	SessionCount int      `json:"session_count"`
	LastTouched  string   `json:"last_touched"`
	Operations   []string `json:"operations"`
}

// FileActivitySummary lists touched files, most touched first, and the
// number of distinct paths.
func (d *DB) FileActivitySummary(ctx context.Context, limit, offset int) ([]FileSummary, int, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT file_path, COUNT(*), COUNT(DISTINCT session_id),
		       COALESCE(MAX(timestamp), ''), GROUP_CONCAT(DISTINCT operation)
		FROM file_activity
		GROUP BY file_path
		ORDER BY COUNT(*) DESC, file_path
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("file activity: %w", err)
	}
	defer rows.Close()

	var out []FileSummary
	for rows.Next() {
		var f FileSummary
		var ops string
		if err := rows.Scan(&f.FilePath, &f.TouchCount, &f.SessionCount, &f.LastTouched, &ops); err != nil {
			return nil, 0, err
		}
		f.Operations = strings.Split(ops, ",")
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT file_path) FROM file_activity").Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// FileTouch is a session that touched a given file.
type FileTouch struct {
	Session   *Session `json:"session"`
	Operation string   `json:"operation"`
	TouchTime string   `json:"touch_time"`
}

// SessionsForFile lists the sessions that touched path, latest touch first.
func (d *DB) SessionsForFile(ctx context.Context, path string) ([]FileTouch, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT DISTINCT `+SessionColumns("s")+`, fa.operation, COALESCE(fa.timestamp, '')
		FROM file_activity fa
		JOIN sessions s ON s.id = fa.session_id
		WHERE fa.file_path = ?
		ORDER BY fa.timestamp DESC`, path)
	if err != nil {
		return nil, fmt.Errorf("sessions for file: %w", err)
	}
	defer rows.Close()

	var out []FileTouch
	for rows.Next() {
		var t FileTouch
		s, err := ScanSession(rows, &t.Operation, &t.TouchTime)
		if err != nil {
			return nil, err
		}
		t.Session = s
		out = append(out, t)
	}
	return out, rows.Err()
}

// Timeline returns every event on the given UTC day (YYYY-MM-DD), latest
// first.
func (d *DB) Timeline(ctx context.Context, day string) ([]Event, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT "+EventColumns("e")+` FROM events e
		 WHERE e.timestamp >= ? AND e.timestamp <= ?
		 ORDER BY e.timestamp DESC`,
		day+"T00:00:00.000Z", day+"T23:59:59.999Z")
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// Overview holds index-wide totals.
type Overview struct {
	Sessions    int      `json:"sessions"`
	Events      int      `json:"events"`
	Messages    int      `json:"messages"`
	ToolCalls   int      `json:"tool_calls"`
	UniqueTools int      `json:"unique_tools"`
	Tools       []string `json:"tools"`
	Agents      []string `json:"agents"`
	TotalCost   float64  `json:"total_cost"`
	TotalTokens int64    `json:"total_tokens"`
	Earliest    string   `json:"earliest,omitempty"`
	Latest      string   `json:"latest,omitempty"`
	ArchiveRows int      `json:"archive_rows"`
	FTSRows     int      `json:"fts_rows"`
}

func (d *DB) Overview(ctx context.Context) (*Overview, error) {
	var o Overview
	counts := []struct {
		dst   *int
		query string
	}{
		{&o.Sessions, "SELECT COUNT(*) FROM sessions"},
		{&o.Events, "SELECT COUNT(*) FROM events"},
		{&o.Messages, "SELECT COUNT(*) FROM events WHERE type = 'message'"},
		{&o.ToolCalls, "SELECT COUNT(*) FROM events WHERE type = 'tool_call'"},
		{&o.ArchiveRows, "SELECT COUNT(*) FROM archive"},
		{&o.FTSRows, "SELECT COUNT(*) FROM events_fts"},
	}
	for _, c := range counts {
		if err := d.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("overview: %w", err)
		}
	}

	err := d.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_cost), 0), COALESCE(SUM(total_tokens), 0),
		       COALESCE(MIN(start_time), ''), COALESCE(MAX(start_time), '')
		FROM sessions`).Scan(&o.TotalCost, &o.TotalTokens, &o.Earliest, &o.Latest)
	if err != nil {
		return nil, fmt.Errorf("overview: %w", err)
	}

	if o.Tools, err = d.stringColumn(ctx, "SELECT DISTINCT tool_name FROM events WHERE tool_name IS NOT NULL ORDER BY tool_name"); err != nil {
		return nil, err
	}
	o.UniqueTools = len(o.Tools)
	if o.Agents, err = d.stringColumn(ctx, "SELECT DISTINCT agent FROM sessions WHERE agent IS NOT NULL ORDER BY agent"); err != nil {
		return nil, err
	}
	return &o, nil
}

func (d *DB) stringColumn(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune removes sessions whose source file no longer exists, along with the
// file's checkpoint, and returns how many sessions were removed.
func (d *DB) Prune(ctx context.Context) (int, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT id, file_path FROM sessions WHERE file_path != ''")
	if err != nil {
		return 0, err
	}
	type entry struct{ id, path string }
	var gone []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.path); err != nil {
			rows.Close()
			return 0, err
		}
		if _, err := os.Stat(e.path); os.IsNotExist(err) {
			gone = append(gone, e)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	err = d.WithTx(ctx, func(tx Tx) error {
		for _, e := range gone {
			if err := tx.PurgeSession(ctx, e.id); err != nil {
				return err
			}
			if err := tx.DeleteCheckpoint(ctx, e.path); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	return len(gone), nil
}

// CheckFTS runs the FTS5 integrity check, which fails when the full-text
// index has drifted from the events table.
func (d *DB) CheckFTS(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, "INSERT INTO events_fts(events_fts) VALUES('integrity-check')"); err != nil {
		return fmt.Errorf("fts integrity check: %w", err)
	}
	return nil
}
