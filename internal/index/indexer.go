package index

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Zuo-Peng/acta/internal/classify"
	"github.com/Zuo-Peng/acta/internal/config"
	"github.com/Zuo-Peng/acta/internal/metrics"
	"github.com/Zuo-Peng/acta/internal/parse"
	"github.com/Zuo-Peng/acta/internal/scan"
)

const defaultWorkers = 4

type Stats struct {
	Dirs     int
	Scanned  int
	Indexed  int
	Skipped  int
	Errors   int
	Sessions int // total rows after the sweep
	Events   int
}

func (s Stats) String() string {
	return fmt.Sprintf("dirs=%d scanned=%d indexed=%d skipped=%d errors=%d sessions=%d events=%d",
		s.Dirs, s.Scanned, s.Indexed, s.Skipped, s.Errors, s.Sessions, s.Events)
}

// Result is the outcome of indexing one file.
type Result struct {
	Skipped       bool
	SessionID     string
	MessageCount  int
	ToolCallCount int
}

// Indexer turns transcript files into sessions, events, file activity and
// archive rows. Calls for the same path are serialized; different paths may
// be indexed concurrently.
type Indexer struct {
	repo    Repository
	logger  *slog.Logger
	aliases map[string]string
	workers int
	now     func() time.Time
	locks   pathLocks
}

type Option func(*Indexer)

func WithLogger(l *slog.Logger) Option {
	return func(ix *Indexer) {
		if l != nil {
			ix.logger = l
		}
	}
}

// WithProjectAliases renames project tags derived from working directories.
func WithProjectAliases(aliases map[string]string) Option {
	return func(ix *Indexer) { ix.aliases = aliases }
}

// WithWorkers bounds how many files IndexAll processes at once.
func WithWorkers(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.workers = n
		}
	}
}

func New(repo Repository, opts ...Option) *Indexer {
	ix := &Indexer{
		repo:    repo,
		logger:  slog.Default(),
		workers: defaultWorkers,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// sourceLine is one non-empty line of a transcript. Whitespace-only lines
// count as non-empty: they are archived and fail to parse like any other
// malformed line.
type sourceLine struct {
	num  int // physical, 1-based
	text []byte
}

func splitLines(data []byte) []sourceLine {
	var lines []sourceLine
	for i, raw := range bytes.Split(data, []byte("\n")) {
		if len(raw) == 0 {
			continue
		}
		lines = append(lines, sourceLine{num: i + 1, text: raw})
	}
	return lines
}

// identity is what the first line(s) of a transcript declare about it.
type identity struct {
	sessionID   string
	start       string
	agent       string
	sessionType string
}

// resolveIdentity discriminates the transcript family from the first line.
// It reports false for files that are not recognized transcripts.
func (ix *Indexer) resolveIdentity(path, agent string, lines []sourceLine) (identity, bool) {
	first, err := parse.ParseRecord(lines[0].text)
	if err != nil {
		return identity{}, false
	}

	id := identity{agent: agent}
	switch parse.DetectSchema(first) {
	case parse.SchemaHeaderFirst:
		if first.ID == "" {
			return identity{}, false
		}
		id.sessionID = first.ID
		id.start = ix.startOr(first.Timestamp)
		if first.Agent != "" {
			id.agent = first.Agent
		}
		id.sessionType = first.SessionType
		if classify.IsSubagentID(first.ID) {
			id.sessionType = classify.TypeSubagent
		}

	case parse.SchemaTurnFirst:
		for _, l := range lines {
			rec, err := parse.ParseRecord(l.text)
			if err != nil {
				continue
			}
			if (rec.Type == parse.TypeUser || rec.Type == parse.TypeAssistant) && rec.SessionID != "" {
				id.sessionID = rec.SessionID
				id.start = ix.startOr(rec.Timestamp)
				break
			}
		}
		if id.sessionID == "" {
			id.sessionID = strings.TrimSuffix(filepath.Base(path), scan.Ext)
			id.start = ix.startOr(first.Timestamp)
		}

	default:
		return identity{}, false
	}
	return id, true
}

func (ix *Indexer) startOr(ts parse.Timestamp) string {
	if ts != "" {
		return string(ts)
	}
	return ix.now().UTC().Format(time.RFC3339Nano)
}

// IndexFile (re)indexes one transcript. Unless force is set, a file whose
// mtime matches its checkpoint is skipped without being read. All writes for
// the file, including the checkpoint, commit in one transaction.
func (ix *Indexer) IndexFile(ctx context.Context, path, agent string, force, archive bool) (Result, error) {
	unlock := ix.locks.lock(path)
	defer unlock()

	started := time.Now()
	res, events, err := ix.indexFile(ctx, path, agent, force, archive)
	switch {
	case err != nil:
		metrics.RecordIndexFile(metrics.ResultError, 0, 0)
	case res.Skipped:
		metrics.RecordIndexFile(metrics.ResultSkipped, 0, 0)
	default:
		metrics.RecordIndexFile(metrics.ResultIndexed, events, time.Since(started))
	}
	return res, err
}

func (ix *Indexer) indexFile(ctx context.Context, path, agent string, force, archive bool) (Result, int, error) {
	skipped := Result{Skipped: true}

	info, err := os.Stat(path)
	if err != nil {
		return Result{}, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	mtime := info.ModTime().UTC().Format(time.RFC3339Nano)

	if !force {
		cp, ok, err := ix.repo.Checkpoint(ctx, path)
		if err != nil {
			return Result{}, 0, err
		}
		if ok && cp.Modified == mtime {
			return skipped, 0, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, 0, fmt.Errorf("read %s: %w", path, err)
	}
	lines := splitLines(data)
	if len(lines) == 0 {
		return skipped, 0, nil
	}

	id, ok := ix.resolveIdentity(path, agent, lines)
	if !ok {
		ix.logger.Debug("unrecognized transcript", "file", path)
		return skipped, 0, nil
	}

	acc := newAccumulator(id, ix.aliases)
	for _, l := range lines {
		rec, err := parse.ParseRecord(l.text)
		if err != nil {
			continue
		}
		acc.add(rec, l.num)
	}
	sess := acc.session(path)

	err = ix.repo.WithTx(ctx, func(tx Tx) error {
		if err := tx.PurgeSession(ctx, sess.ID); err != nil {
			return err
		}
		if err := tx.UpsertSession(ctx, sess); err != nil {
			return err
		}
		for i := range acc.events {
			if err := tx.InsertEvent(ctx, &acc.events[i]); err != nil {
				return err
			}
		}
		for i := range acc.activity {
			if err := tx.InsertFileActivity(ctx, &acc.activity[i]); err != nil {
				return err
			}
		}
		if archive {
			for i, l := range lines {
				line := ArchiveLine{SessionID: sess.ID, LineNumber: i + 1, Raw: string(l.text)}
				if err := tx.InsertArchiveLine(ctx, &line); err != nil {
					return err
				}
			}
		}
		return tx.UpsertCheckpoint(ctx, Checkpoint{FilePath: path, LineCount: len(lines), Modified: mtime})
	})
	if err != nil {
		return Result{}, 0, fmt.Errorf("index %s: %w", path, err)
	}

	return Result{
		SessionID:     sess.ID,
		MessageCount:  sess.MessageCount,
		ToolCallCount: sess.ToolCount,
	}, len(acc.events), nil
}

// IndexAll indexes every transcript in dirs. A failing file or unreadable
// directory is logged and counted; it never aborts the sweep.
func (ix *Indexer) IndexAll(ctx context.Context, dirs []scan.Dir, force, archive bool) (Stats, error) {
	stats := Stats{Dirs: len(dirs)}

	type job struct{ path, agent string }
	var jobs []job
	for _, d := range dirs {
		files, err := scan.ListFiles(d.Path)
		if err != nil {
			stats.Errors++
			ix.logger.Warn("list directory failed", "dir", d.Path, "err", err)
			continue
		}
		for _, f := range files {
			jobs = append(jobs, job{path: f, agent: d.Agent})
		}
	}
	stats.Scanned = len(jobs)

	results := make([]Result, len(jobs))
	errs := make([]error, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = ix.IndexFile(gctx, j.path, j.agent, force, archive)
			return nil
		})
	}
	_ = g.Wait()

	for i, j := range jobs {
		switch {
		case errs[i] != nil:
			stats.Errors++
			ix.logger.Error("index file failed", "file", j.path, "err", errs[i])
		case results[i].Skipped:
			stats.Skipped++
		default:
			stats.Indexed++
			ix.logger.Debug("indexed", "file", j.path, "agent", j.agent, "session", results[i].SessionID)
		}
	}

	if err := ctx.Err(); err != nil {
		return stats, err
	}

	sessions, events, err := ix.repo.Counts(ctx)
	if err != nil {
		return stats, fmt.Errorf("count rows: %w", err)
	}
	stats.Sessions, stats.Events = sessions, events
	return stats, nil
}

// IndexConfig discovers the configured directories and indexes them.
func (ix *Indexer) IndexConfig(ctx context.Context, cfg *config.Config, force bool) (Stats, error) {
	dirs := scan.Discover(cfg.SessionsPath)
	ix.logger.Info("discovered session directories", "dirs", len(dirs))
	return ix.IndexAll(ctx, dirs, force, cfg.ArchiveMode())
}
