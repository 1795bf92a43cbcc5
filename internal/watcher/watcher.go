// Package watcher owns the board's single filesystem-notification
// subscription rooted at .kanban/, debounces raw events into card/board
// publish notifications, and degrades gracefully on overflow or
// subscription errors (spec.md §4.8). Its lifecycle (mu/running/stopCh/
// doneCh, Start/Stop/Running, Config/DefaultConfig) generalizes the
// teacher's internal/sync.Worker from a ticker-driven poll loop to an
// fsnotify-driven event loop with the same start/stop discipline. The raw
// fsnotify plumbing is adapted from the beads CLI's directory-watch
// pattern (other_examples/5b002491_steveyegge-beads__cmd-bd-list.go.go):
// fsnotify.NewWatcher, per-directory Add, and a debounce timer reset on
// every event.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kanbanmcp/kanban-mcp/internal/errs"
)

// idPattern extracts the ULID prefix of a `<ULID>__<slug>.md` card filename.
var idPattern = regexp.MustCompile(`^([0-9A-HJKMNP-TV-Z]{26})__`)

func extractID(path string) (string, bool) {
	base := filepath.Base(path)
	m := idPattern.FindStringSubmatch(base)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// State is the watcher's position in the idle/watching/buffering machine
// of spec.md §4.8.
type State int

const (
	StateIdle State = iota
	StateWatching
	StateBuffering
)

// Config holds the watcher's tunables, sourced from columns.Config.
type Config struct {
	HotColumns []string
	Debounce   time.Duration
	MaxBatch   int
}

// DefaultConfig mirrors columns.Parse's defaults for a standalone watcher.
func DefaultConfig() Config {
	return Config{
		HotColumns: []string{"backlog", "doing"},
		Debounce:   300 * time.Millisecond,
		MaxBatch:   50,
	}
}

// StartResult reports whether Start actually began watching.
type StartResult struct {
	Started         bool
	AlreadyWatching bool
}

// Watcher publishes card/board notifications for exactly one board.
type Watcher struct {
	cfg   Config
	board string
	root  string // boardRoot/.kanban
	emit  func(Notification)

	mu      sync.RWMutex
	state   State
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	bufMu          sync.Mutex
	buffer         []string
	bufferSeen     map[string]bool
	overflowStreak int
	lastFlushTs    time.Time
	timer          *time.Timer

	fsw          *fsnotify.Watcher
	resubFailure int
}

// New builds a Watcher for boardRoot, publishing notifications through
// emit. emit is called synchronously, either from the watcher's event
// goroutine (subscription-error recovery) or from the debounce timer's
// goroutine (regular flushes); callers that need async delivery should
// buffer internally.
func New(board, boardRoot string, cfg Config, emit func(Notification)) *Watcher {
	return &Watcher{
		cfg:        cfg,
		board:      board,
		root:       filepath.Join(boardRoot, ".kanban"),
		emit:       emit,
		state:      StateIdle,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		bufferSeen: map[string]bool{},
	}
}

// Start begins watching. A second call while already running reports
// AlreadyWatching rather than erroring, per spec.md §4.8.
func (w *Watcher) Start(ctx context.Context) (StartResult, error) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return StartResult{Started: false, AlreadyWatching: true}, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return StartResult{}, errs.WrapInternal(err, "create filesystem watcher")
	}
	if err := w.subscribe(fsw); err != nil {
		fsw.Close()
		w.mu.Unlock()
		return StartResult{}, err
	}

	w.fsw = fsw
	w.running = true
	w.state = StateWatching
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.run(ctx)
	return StartResult{Started: true}, nil
}

// Stop shuts the watcher down and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	stopCh := w.stopCh
	w.mu.Unlock()

	close(stopCh)
	<-w.doneCh
}

// Running reports whether the watcher is currently active.
func (w *Watcher) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Watcher) subscribe(fsw *fsnotify.Watcher) error {
	dirs := append([]string{w.root}, w.watchedDirs()...)
	for _, d := range dirs {
		if err := fsw.Add(d); err != nil && !os.IsNotExist(err) {
			return errs.WrapInternal(err, "watch %q", d)
		}
	}
	return nil
}

func (w *Watcher) watchedDirs() []string {
	dirs := make([]string, 0, len(w.cfg.HotColumns))
	for _, c := range w.cfg.HotColumns {
		dirs = append(dirs, filepath.Join(w.root, c))
	}
	return dirs
}

func (w *Watcher) run(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.running = false
		w.state = StateIdle
		fsw := w.fsw
		w.mu.Unlock()
		if fsw != nil {
			fsw.Close()
		}
		close(w.doneCh)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent([]string{ev.Name})
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.handleSubscriptionError()
		}
	}
}

// handleEvent processes one raw filesystem event batch. An empty paths
// slice is treated as an overflow signal (spec.md §4.8); a real fsnotify
// event always carries exactly one path, so this branch exists for
// callers (tests, or a future coalescing layer) that can observe a true
// "something changed but we don't know what" notification.
func (w *Watcher) handleEvent(paths []string) {
	w.bufMu.Lock()
	if len(paths) == 0 {
		w.overflowStreak++
		w.spotRescanLocked()
	} else {
		w.overflowStreak = 0
		for _, p := range paths {
			if id, ok := extractID(p); ok {
				w.bufferAddLocked(id)
			}
		}
	}
	w.resetTimerLocked()
	w.bufMu.Unlock()

	w.mu.Lock()
	w.state = StateBuffering
	w.mu.Unlock()
}

func (w *Watcher) bufferAddLocked(id string) {
	if w.bufferSeen[id] {
		return
	}
	w.bufferSeen[id] = true
	w.buffer = append(w.buffer, id)
}

// spotRescanLocked lists the hot column directories (up to MaxBatch ids)
// to recover identity after an overflow with no path information.
// bufMu must already be held.
func (w *Watcher) spotRescanLocked() {
	for _, dir := range w.watchedDirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if len(w.buffer) >= w.cfg.MaxBatch {
				return
			}
			if id, ok := extractID(e.Name()); ok {
				w.bufferAddLocked(id)
			}
		}
	}
}

func (w *Watcher) resetTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.Debounce, w.flush)
}

// flush drains the buffer and emits notifications per doWatchFlush.
func (w *Watcher) flush() {
	w.bufMu.Lock()
	ids := w.buffer
	streak := w.overflowStreak
	w.buffer = nil
	w.bufferSeen = map[string]bool{}
	last := w.lastFlushTs
	w.bufMu.Unlock()

	notifications, newLast := doWatchFlush(w.board, ids, streak, w.cfg.MaxBatch, time.Now(), last)

	w.bufMu.Lock()
	w.lastFlushTs = newLast
	w.bufMu.Unlock()

	w.mu.Lock()
	w.state = StateWatching
	w.mu.Unlock()

	for _, n := range notifications {
		w.emit(n)
	}
}

// handleSubscriptionError recovers per spec.md §4.8: rescan hot columns,
// emit board plus buffered cards, then try to re-subscribe. After two or
// more consecutive re-subscription failures this recovery flush is
// board-only; the regular debounce flush does not look at the failure
// count and keeps using overflowStreak alone.
func (w *Watcher) handleSubscriptionError() {
	w.bufMu.Lock()
	w.spotRescanLocked()
	ids := w.buffer
	w.buffer = nil
	w.bufferSeen = map[string]bool{}
	w.bufMu.Unlock()

	w.mu.Lock()
	fsw := w.fsw
	w.mu.Unlock()

	if err := w.subscribe(fsw); err != nil {
		w.resubFailure++
	} else {
		w.resubFailure = 0
	}

	// A lone failed re-subscription still attempts a full flush; only
	// repeated failure (>=2 in a row) degrades to board-only, matching
	// the overflow-streak board-only threshold.
	streak := 0
	if w.resubFailure >= 2 {
		streak = 3
	}
	w.bufMu.Lock()
	last := w.lastFlushTs
	w.bufMu.Unlock()
	notifications, newLast := doWatchFlush(w.board, ids, streak, w.cfg.MaxBatch, time.Now(), last)
	w.bufMu.Lock()
	w.lastFlushTs = newLast
	w.bufMu.Unlock()
	for _, n := range notifications {
		w.emit(n)
	}
}
