package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const dsnPragmas = "?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)&_txlock=immediate"

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id                      TEXT PRIMARY KEY,
    start_time              TEXT NOT NULL,
    end_time                TEXT,
    message_count           INTEGER NOT NULL DEFAULT 0,
    tool_count              INTEGER NOT NULL DEFAULT 0,
    model                   TEXT,
    models                  TEXT,
    summary                 TEXT,
    agent                   TEXT,
    session_type            TEXT,
    total_cost              REAL NOT NULL DEFAULT 0,
    total_tokens            INTEGER NOT NULL DEFAULT 0,
    input_tokens            INTEGER NOT NULL DEFAULT 0,
    output_tokens           INTEGER NOT NULL DEFAULT 0,
    cache_read_tokens       INTEGER NOT NULL DEFAULT 0,
    cache_write_tokens      INTEGER NOT NULL DEFAULT 0,
    initial_prompt          TEXT,
    first_message_id        TEXT,
    first_message_timestamp TEXT,
    projects                TEXT,
    file_path               TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS events (
    id          TEXT PRIMARY KEY,
    session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    timestamp   TEXT NOT NULL DEFAULT '',
    type        TEXT NOT NULL,
    role        TEXT,
    content     TEXT,
    tool_name   TEXT,
    tool_args   TEXT,
    tool_result TEXT,
    line_number INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
CREATE INDEX IF NOT EXISTS idx_events_tool_name ON events(tool_name);

CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
    content,
    tool_name,
    tool_args,
    content=events,
    content_rowid=rowid,
    tokenize='unicode61'
);

-- triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS events_ai AFTER INSERT ON events BEGIN
    INSERT INTO events_fts(rowid, content, tool_name, tool_args)
    VALUES (new.rowid, new.content, new.tool_name, new.tool_args);
END;

CREATE TRIGGER IF NOT EXISTS events_ad AFTER DELETE ON events BEGIN
    INSERT INTO events_fts(events_fts, rowid, content, tool_name, tool_args)
    VALUES ('delete', old.rowid, old.content, old.tool_name, old.tool_args);
END;

CREATE TRIGGER IF NOT EXISTS events_au AFTER UPDATE ON events BEGIN
    INSERT INTO events_fts(events_fts, rowid, content, tool_name, tool_args)
    VALUES ('delete', old.rowid, old.content, old.tool_name, old.tool_args);
    INSERT INTO events_fts(rowid, content, tool_name, tool_args)
    VALUES (new.rowid, new.content, new.tool_name, new.tool_args);
END;

CREATE TABLE IF NOT EXISTS file_activity (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    file_path  TEXT NOT NULL,
    operation  TEXT NOT NULL,
    timestamp  TEXT
);

CREATE INDEX IF NOT EXISTS idx_file_activity_path ON file_activity(file_path);
CREATE INDEX IF NOT EXISTS idx_file_activity_session ON file_activity(session_id);

CREATE TABLE IF NOT EXISTS archive (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    line_number INTEGER NOT NULL,
    raw_json    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_archive_session ON archive(session_id);

CREATE TABLE IF NOT EXISTS index_state (
    file_path     TEXT PRIMARY KEY,
    last_offset   INTEGER NOT NULL DEFAULT 0,
    last_modified TEXT
);
`

// Repository is the storage surface the Indexer writes through.
type Repository interface {
	// Checkpoint returns the stored cursor for path, if any.
	Checkpoint(ctx context.Context, path string) (Checkpoint, bool, error)
	// WithTx runs fn in one transaction, committing only if fn returns nil.
	WithTx(ctx context.Context, fn func(Tx) error) error
	// Counts returns the total number of sessions and events.
	Counts(ctx context.Context) (sessions, events int, err error)
}

// Tx exposes the named write operations available inside a transaction.
type Tx interface {
	PurgeSession(ctx context.Context, id string) error
	UpsertSession(ctx context.Context, s *Session) error
	InsertEvent(ctx context.Context, e *Event) error
	InsertFileActivity(ctx context.Context, fa *FileActivity) error
	InsertArchiveLine(ctx context.Context, line *ArchiveLine) error
	UpsertCheckpoint(ctx context.Context, cp Checkpoint) error
	DeleteCheckpoint(ctx context.Context, path string) error
}

// DB is the SQLite-backed Repository. Write statements are prepared once
// and bound to each transaction.
type DB struct {
	db    *sql.DB
	stmts statements
}

type statements struct {
	getState       *sql.Stmt
	deleteEvents   *sql.Stmt
	deleteActivity *sql.Stmt
	deleteArchive  *sql.Stmt
	deleteSession  *sql.Stmt
	upsertSession  *sql.Stmt
	insertEvent    *sql.Stmt
	insertActivity *sql.Stmt
	insertArchive  *sql.Stmt
	upsertState    *sql.Stmt
	deleteState    *sql.Stmt
}

func OpenDB(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	d := &DB{db: db}
	if err := d.prepare(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return d, nil
}

func (d *DB) prepare() error {
	specs := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&d.stmts.getState, `SELECT file_path, last_offset, COALESCE(last_modified, '') FROM index_state WHERE file_path = ?`},
		{&d.stmts.deleteEvents, `DELETE FROM events WHERE session_id = ?`},
		{&d.stmts.deleteActivity, `DELETE FROM file_activity WHERE session_id = ?`},
		{&d.stmts.deleteArchive, `DELETE FROM archive WHERE session_id = ?`},
		{&d.stmts.deleteSession, `DELETE FROM sessions WHERE id = ?`},
		{&d.stmts.upsertSession, `INSERT OR REPLACE INTO sessions (
			id, start_time, end_time, message_count, tool_count, model, models, summary, agent,
			session_type, total_cost, total_tokens, input_tokens, output_tokens, cache_read_tokens,
			cache_write_tokens, initial_prompt, first_message_id, first_message_timestamp, projects, file_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`},
		// ON CONFLICT keeps the rowid so events_au keeps the FTS index in step
		{&d.stmts.insertEvent, `INSERT INTO events (
			id, session_id, timestamp, type, role, content, tool_name, tool_args, tool_result, line_number
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id, timestamp = excluded.timestamp, type = excluded.type,
			role = excluded.role, content = excluded.content, tool_name = excluded.tool_name,
			tool_args = excluded.tool_args, tool_result = excluded.tool_result,
			line_number = excluded.line_number`},
		{&d.stmts.insertActivity, `INSERT INTO file_activity (session_id, file_path, operation, timestamp) VALUES (?, ?, ?, ?)`},
		{&d.stmts.insertArchive, `INSERT INTO archive (session_id, line_number, raw_json) VALUES (?, ?, ?)`},
		{&d.stmts.upsertState, `INSERT INTO index_state (file_path, last_offset, last_modified) VALUES (?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET last_offset = excluded.last_offset, last_modified = excluded.last_modified`},
		{&d.stmts.deleteState, `DELETE FROM index_state WHERE file_path = ?`},
	}
	for _, s := range specs {
		stmt, err := d.db.Prepare(s.query)
		if err != nil {
			return err
		}
		*s.dst = stmt
	}
	return nil
}

func (d *DB) Close() error {
	for _, stmt := range []*sql.Stmt{
		d.stmts.getState, d.stmts.deleteEvents, d.stmts.deleteActivity, d.stmts.deleteArchive,
		d.stmts.deleteSession, d.stmts.upsertSession, d.stmts.insertEvent, d.stmts.insertActivity,
		d.stmts.insertArchive, d.stmts.upsertState, d.stmts.deleteState,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return d.db.Close()
}

func (d *DB) Raw() *sql.DB {
	return d.db
}

func (d *DB) Checkpoint(ctx context.Context, path string) (Checkpoint, bool, error) {
	var cp Checkpoint
	err := d.stmts.getState.QueryRowContext(ctx, path).Scan(&cp.FilePath, &cp.LineCount, &cp.Modified)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}
	return cp, true, nil
}

func (d *DB) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqlTx{tx: tx, stmts: &d.stmts}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (d *DB) Counts(ctx context.Context) (sessions, events int, err error) {
	if err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&sessions); err != nil {
		return 0, 0, err
	}
	if err = d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&events); err != nil {
		return 0, 0, err
	}
	return sessions, events, nil
}

type sqlTx struct {
	tx    *sql.Tx
	stmts *statements
}

func (t *sqlTx) exec(ctx context.Context, stmt *sql.Stmt, args ...any) error {
	_, err := t.tx.StmtContext(ctx, stmt).ExecContext(ctx, args...)
	return err
}

// PurgeSession removes a session and everything derived from it.
func (t *sqlTx) PurgeSession(ctx context.Context, id string) error {
	for _, stmt := range []*sql.Stmt{
		t.stmts.deleteEvents, t.stmts.deleteActivity, t.stmts.deleteArchive, t.stmts.deleteSession,
	} {
		if err := t.exec(ctx, stmt, id); err != nil {
			return fmt.Errorf("purge session %s: %w", id, err)
		}
	}
	return nil
}

func (t *sqlTx) UpsertSession(ctx context.Context, s *Session) error {
	err := t.exec(ctx, t.stmts.upsertSession,
		s.ID, s.StartTime, nullString(s.EndTime), s.MessageCount, s.ToolCount,
		nullString(s.Model), jsonList(s.Models), s.Summary, nullString(s.Agent),
		nullString(s.SessionType), s.TotalCost, s.TotalTokens, s.InputTokens, s.OutputTokens,
		s.CacheReadTokens, s.CacheWriteTokens, nullString(s.InitialPrompt),
		nullString(s.FirstMessageID), nullString(s.FirstMessageTimestamp),
		jsonList(s.Projects), s.FilePath,
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", s.ID, err)
	}
	return nil
}

func (t *sqlTx) InsertEvent(ctx context.Context, e *Event) error {
	err := t.exec(ctx, t.stmts.insertEvent,
		e.ID, e.SessionID, e.Timestamp, e.Type, nullString(e.Role), nullString(e.Content),
		nullString(e.ToolName), nullString(e.ToolArgs), nullString(e.ToolResult), e.LineNumber,
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	return nil
}

func (t *sqlTx) InsertFileActivity(ctx context.Context, fa *FileActivity) error {
	if err := t.exec(ctx, t.stmts.insertActivity, fa.SessionID, fa.FilePath, fa.Operation, nullString(fa.Timestamp)); err != nil {
		return fmt.Errorf("insert file activity: %w", err)
	}
	return nil
}

func (t *sqlTx) InsertArchiveLine(ctx context.Context, l *ArchiveLine) error {
	if err := t.exec(ctx, t.stmts.insertArchive, l.SessionID, l.LineNumber, l.Raw); err != nil {
		return fmt.Errorf("insert archive line %d: %w", l.LineNumber, err)
	}
	return nil
}

func (t *sqlTx) UpsertCheckpoint(ctx context.Context, cp Checkpoint) error {
	if err := t.exec(ctx, t.stmts.upsertState, cp.FilePath, cp.LineCount, cp.Modified); err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteCheckpoint(ctx context.Context, path string) error {
	if err := t.exec(ctx, t.stmts.deleteState, path); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// jsonList encodes a string set as a JSON array, NULL when empty.
func jsonList(items []string) any {
	if len(items) == 0 {
		return nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	return string(b)
}

func parseJSONList(s string) []string {
	if s == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil
	}
	return items
}
