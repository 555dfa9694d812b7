package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Zuo-Peng/acta/internal/index"
	"github.com/Zuo-Peng/acta/internal/render"
	"github.com/Zuo-Peng/acta/internal/scan"
	"github.com/Zuo-Peng/acta/internal/search"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

type dbSize struct {
	Bytes   int64  `json:"bytes"`
	Display string `json:"display"`
}

func (s *Server) dbSize() dbSize {
	info, err := os.Stat(s.cfg.DBPath)
	if err != nil {
		return dbSize{Display: "N/A"}
	}
	return dbSize{Bytes: info.Size(), Display: humanize.Bytes(uint64(info.Size()))}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	o, err := s.db.Overview(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*index.Overview
		StorageMode string     `json:"storage_mode"`
		DBSize      dbSize     `json:"db_size"`
		SessionDirs []scan.Dir `json:"session_dirs"`
	}{o, s.cfg.Storage, s.dbSize(), s.dirs})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	o, err := s.db.Overview(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"storage":         s.cfg.Storage,
		"addr":            s.cfg.Addr,
		"db_path":         s.cfg.DBPath,
		"db_size":         s.dbSize(),
		"sessions_path":   s.cfg.SessionsPath,
		"session_dirs":    s.dirs,
		"archive_enabled": s.cfg.ArchiveMode(),
		"archive_rows":    o.ArchiveRows,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	opts := index.ListOptions{
		Agent:  r.URL.Query().Get("agent"),
		Limit:  intParam(r, "limit", 50),
		Offset: intParam(r, "offset", 0),
	}
	if opts.Limit == 0 {
		opts.Limit = 50
	}
	sessions, total, err := s.db.ListSessions(r.Context(), opts)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*index.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    total,
		"limit":    opts.Limit,
		"offset":   opts.Offset,
	})
}

// lookup fetches a session, writing 404 or 500 itself when it fails.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*index.Session, bool) {
	sess, err := s.db.GetSession(r.Context(), r.PathValue("id"))
	if errors.Is(err, index.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not found")
		return nil, false
	}
	if err != nil {
		s.internalError(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	events, err := s.db.GetEvents(r.Context(), sess.ID, true)
	if err != nil {
		s.internalError(w, err)
		return
	}
	hasArchive := false
	if s.cfg.ArchiveMode() {
		lines, err := s.db.ArchiveLines(r.Context(), sess.ID)
		if err != nil {
			s.internalError(w, err)
			return
		}
		hasArchive = len(lines) > 0
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":     sess,
		"events":      nonNil(events),
		"has_archive": hasArchive,
	})
}

func nonNil(events []index.Event) []index.Event {
	if events == nil {
		return []index.Event{}
	}
	return events
}

func (s *Server) searchOptions(r *http.Request) search.Options {
	q := r.URL.Query()
	return search.Options{
		Query:  q.Get("q"),
		Type:   q.Get("type"),
		Role:   q.Get("role"),
		Agent:  q.Get("agent"),
		From:   q.Get("from"),
		To:     q.Get("to"),
		Limit:  intParam(r, "limit", search.DefaultLimit),
		Recent: true,
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	opts := s.searchOptions(r)
	results, err := search.Search(r.Context(), s.db, opts)
	if errors.Is(err, search.ErrInvalidQuery) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "results": []search.Result{}, "total": 0})
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	if results == nil {
		results = []search.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "total": len(results)})
}

func (s *Server) handleExportSearch(w http.ResponseWriter, r *http.Request) {
	opts := s.searchOptions(r)
	if strings.TrimSpace(opts.Query) == "" {
		writeError(w, http.StatusBadRequest, "No query")
		return
	}
	opts.Limit = search.MaxLimit
	results, err := search.Search(r.Context(), s.db, opts)
	if errors.Is(err, search.ErrInvalidQuery) {
		writeError(w, http.StatusBadRequest, "Invalid search query")
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}

	name := "search-" + truncate(opts.Query, 20)
	if r.URL.Query().Get("format") == "md" {
		var b strings.Builder
		fmt.Fprintf(&b, "# Search Results: %q\n\n%d results\n\n", opts.Query, len(results))
		for _, res := range results {
			e := res.Event
			text := e.Content
			if text == "" {
				text = e.ToolArgs
			}
			if text == "" {
				text = e.ToolResult
			}
			fmt.Fprintf(&b, "## [%s] %s (%s)\nSession: %s\n\n%s\n\n---\n\n", e.Timestamp, e.Type, e.Role, e.SessionID, text)
		}
		download(w, []byte(b.String()), name+".md", "text/markdown")
		return
	}
	body, err := json.Marshal(map[string]any{"query": opts.Query, "results": results})
	if err != nil {
		s.internalError(w, err)
		return
	}
	download(w, body, name+".json", "application/json")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	day := r.URL.Query().Get("date")
	if day == "" {
		day = s.now().UTC().Format(time.DateOnly)
	}
	if _, err := time.Parse(time.DateOnly, day); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	events, err := s.db.Timeline(r.Context(), day)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": day, "events": nonNil(events), "total": len(events)})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 100)
	offset := intParam(r, "offset", 0)
	files, total, err := s.db.FileActivitySummary(r.Context(), limit, offset)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if files == nil {
		files = []index.FileSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files, "total": total, "limit": limit, "offset": offset})
}

func (s *Server) handleFileSessions(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusOK, map[string]any{"sessions": []index.FileTouch{}})
		return
	}
	touches, err := s.db.SessionsForFile(r.Context(), path)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if touches == nil {
		touches = []index.FileTouch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": path, "sessions": touches})
}

func (s *Server) archive(w http.ResponseWriter, r *http.Request) ([]index.ArchiveLine, bool) {
	lines, err := s.db.ArchiveLines(r.Context(), r.PathValue("id"))
	if err != nil {
		s.internalError(w, err)
		return nil, false
	}
	if len(lines) == 0 {
		writeError(w, http.StatusNotFound, "No archive data for this session")
		return nil, false
	}
	return lines, true
}

func (s *Server) handleArchiveSession(w http.ResponseWriter, r *http.Request) {
	lines, ok := s.archive(w, r)
	if !ok {
		return
	}
	type line struct {
		LineNumber int             `json:"line_number"`
		Data       json.RawMessage `json:"data"`
	}
	out := make([]line, 0, len(lines))
	for _, l := range lines {
		data := json.RawMessage(l.Raw)
		if !json.Valid(data) {
			quoted, _ := json.Marshal(l.Raw)
			data = quoted
		}
		out = append(out, line{LineNumber: l.LineNumber, Data: data})
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": r.PathValue("id"), "lines": out})
}

func (s *Server) handleArchiveExport(w http.ResponseWriter, r *http.Request) {
	lines, ok := s.archive(w, r)
	if !ok {
		return
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.Raw)
		b.WriteByte('\n')
	}
	id := r.PathValue("id")
	download(w, []byte(b.String()), "session-"+shortID(id)+".jsonl", "application/x-ndjson")
}

func (s *Server) handleExportSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	events, err := s.db.GetEvents(r.Context(), sess.ID, false)
	if err != nil {
		s.internalError(w, err)
		return
	}
	name := "session-" + shortID(sess.ID)
	if r.URL.Query().Get("format") == "md" {
		download(w, []byte(render.Markdown(sess, events)), name+".md", "text/markdown")
		return
	}
	body, err := json.Marshal(map[string]any{"session": sess, "events": nonNil(events)})
	if err != nil {
		s.internalError(w, err)
		return
	}
	download(w, body, name+".json", "application/json")
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ix.IndexAll(r.Context(), s.dirs, false, s.cfg.ArchiveMode())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.logger.Info("reindex", "stats", stats.String())
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"indexed":  stats.Indexed,
		"skipped":  stats.Skipped,
		"errors":   stats.Errors,
		"sessions": stats.Sessions,
		"events":   stats.Events,
	})
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", "err", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}
