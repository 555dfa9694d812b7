package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Zuo-Peng/acta/internal/metrics"
	"github.com/Zuo-Peng/acta/internal/scan"
)

// DefaultDebounce is how long a file must stay quiet before it is re-indexed.
const DefaultDebounce = 500 * time.Millisecond

// IndexFunc re-indexes one transcript on behalf of the watcher.
type IndexFunc func(ctx context.Context, path, agent string) error

// Watcher re-indexes transcripts as they change on disk.
type Watcher struct {
	dirs     []scan.Dir
	index    IndexFunc
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

func New(dirs []scan.Dir, fn IndexFunc, opts ...Option) *Watcher {
	w := &Watcher{
		dirs:     dirs,
		index:    fn,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Subscription routes notifications from one watched directory. It carries
// its own agent tag so a dispatch needs nothing else.
type Subscription struct {
	Dir   string
	Agent string
	w     *Watcher
}

// Subscribe returns the subscription for d without touching the filesystem.
func (w *Watcher) Subscribe(d scan.Dir) *Subscription {
	return &Subscription{Dir: d.Path, Agent: d.Agent, w: w}
}

// Handle schedules a re-index for the file named by ev. It reports whether
// the event was accepted: only existing transcript files count.
func (s *Subscription) Handle(ctx context.Context, ev fsnotify.Event) bool {
	if ev.Name == "" || !scan.IsTranscript(ev.Name) {
		return false
	}
	path := ev.Name
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.Dir, path)
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	s.w.schedule(ctx, path, s.Agent)
	return true
}

// schedule (re)arms the path's timer. A burst of writes to one file yields a
// single dispatch once the file has been quiet for the debounce window.
func (w *Watcher) schedule(ctx context.Context, path, agent string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		t.Reset(w.debounce)
		return
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.dispatch(ctx, path, agent)
	})
	w.pending[path] = t
}

func (w *Watcher) dispatch(ctx context.Context, path, agent string) {
	if ctx.Err() != nil {
		return
	}
	metrics.RecordWatchTrigger()
	if err := w.index(ctx, path, agent); err != nil {
		w.logger.Error("live re-index failed", "file", path, "agent", agent, "err", err)
		return
	}
	w.logger.Debug("live re-index", "file", path, "agent", agent)
}

// flush waits for every scheduled dispatch to finish.
func (w *Watcher) flush() {
	w.wg.Wait()
}

// Run watches every directory until ctx is cancelled. A directory that
// cannot be watched is logged and skipped; Run fails only when no
// notification backend is available at all.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	subs := make(map[string]*Subscription, len(w.dirs))
	for _, d := range w.dirs {
		if err := fw.Add(d.Path); err != nil {
			w.logger.Warn("watch directory failed", "dir", d.Path, "err", err)
			continue
		}
		subs[filepath.Clean(d.Path)] = w.Subscribe(d)
	}
	w.logger.Info("watching session directories", "dirs", len(subs))

	defer w.stopPending()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			// any op counts, including Chmod from an mtime-only touch; Handle
			// drops names that no longer exist
			if sub, ok := subs[filepath.Dir(ev.Name)]; ok {
				sub.Handle(ctx, ev)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "err", err)
		}
	}
}

// stopPending cancels timers that have not fired yet and waits for any
// dispatch already running.
func (w *Watcher) stopPending() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
