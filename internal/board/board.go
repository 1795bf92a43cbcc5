// Package board opens a single board directory and wires PathGuard,
// ColumnsConfig, CardIndex, RelationsIndex, Store, and Watcher together
// behind one handle (spec.md §9: "no ambient globals", construction is
// explicit). It generalizes the teacher's cmd/linear-fuse wiring in
// internal/cmd/mount.go (API client + cache + DB store + sync worker
// assembled in one place before the FUSE mount) to a board-scoped
// open/close lifecycle.
package board

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/kanbanmcp/kanban-mcp/internal/cardindex"
	"github.com/kanbanmcp/kanban-mcp/internal/columns"
	"github.com/kanbanmcp/kanban-mcp/internal/config"
	"github.com/kanbanmcp/kanban-mcp/internal/errs"
	"github.com/kanbanmcp/kanban-mcp/internal/idgen"
	"github.com/kanbanmcp/kanban-mcp/internal/notes"
	"github.com/kanbanmcp/kanban-mcp/internal/relations"
	"github.com/kanbanmcp/kanban-mcp/internal/store"
	"github.com/kanbanmcp/kanban-mcp/internal/watcher"
)

// Board is an opened board directory: its store, its watcher (if started),
// its note journal, and the configuration all three were built from.
type Board struct {
	Root    string
	ID      string
	Columns *columns.Config
	Store   *store.Store
	Notes   *notes.Journal

	log     zerolog.Logger
	watcher *watcher.Watcher
}

// notifyBridge adapts Open's onNotify callback to store.Notifier, so the
// Store's mutation notifications reach the notifications/publish stream
// (spec.md §6).
type notifyBridge struct {
	emit func(uri string)
}

func (b notifyBridge) Publish(uri string) { b.emit(uri) }

// Open loads columns.toml, the card/relations indexes, and constructs a
// Store rooted at root/.kanban. onNotify receives every published
// resource URI (board and card); pass nil to discard them (CLI
// subcommands that don't run a watcher).
func Open(root string, log zerolog.Logger, onNotify func(uri string)) (*Board, error) {
	kanbanDir := filepath.Join(root, ".kanban")
	if _, err := os.Stat(kanbanDir); err != nil {
		return nil, errs.WrapInvalid(err, "board root %q has no .kanban directory", root)
	}

	cfg, err := columns.Load(filepath.Join(kanbanDir, "columns.toml"))
	if err != nil {
		return nil, err
	}

	if onNotify == nil {
		onNotify = func(string) {}
	}

	index := cardindex.New(filepath.Join(kanbanDir, "cards.ndjson"))
	rel := relations.New(filepath.Join(kanbanDir, "relations.ndjson"))
	ids := idgen.New()

	fileCfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	st, err := store.New(root, cfg, index, rel, ids, notifyBridge{emit: onNotify}, fileCfg.Cache)
	if err != nil {
		return nil, err
	}

	return &Board{
		Root:    root,
		ID:      st.BoardID(),
		Columns: cfg,
		Store:   st,
		Notes:   notes.New(kanbanDir),
		log:     log.With().Str("board", st.BoardID()).Logger(),
	}, nil
}

// StartWatching launches the board's filesystem watcher, publishing each
// notification's URI through the onNotify callback passed here (not the
// one Open was given). Calling it twice is
// a no-op reporting AlreadyWatching, per spec.md §4.8.
func (b *Board) StartWatching(ctx context.Context, onNotify func(uri string)) (watcher.StartResult, error) {
	if b.watcher == nil {
		wcfg := watcher.Config{
			HotColumns: b.Columns.HotColumns,
			Debounce:   b.Columns.Debounce,
			MaxBatch:   b.Columns.MaxBatch,
		}
		b.watcher = watcher.New(b.ID, b.Root, wcfg, func(n watcher.Notification) {
			onNotify(n.URI)
		})
	}
	res, err := b.watcher.Start(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("watcher start failed")
	}
	return res, err
}

// StopWatching shuts the watcher down if it is running.
func (b *Board) StopWatching() {
	if b.watcher != nil {
		b.watcher.Stop()
	}
}

// Watching reports whether the board's watcher is currently active.
func (b *Board) Watching() bool {
	return b.watcher != nil && b.watcher.Running()
}
