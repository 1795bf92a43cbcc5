// Package store composes PathGuard, IdGen, CardFile, ColumnsConfig, and
// CardIndex into the tool-level board operations of spec.md §4.7: new,
// move, done, update, list, tree, and relations.set (delegated to the
// relations package). It generalizes the teacher's internal/repo.Repository
// (a single type gathering the board's persistence dependencies behind
// named methods) from a SQLite-backed issue repo to a file-backed card
// store, keeping the one-writer-per-board discipline of spec.md §5 as a
// per-Store mutex rather than a SQL transaction.
package store

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/kanbanmcp/kanban-mcp/internal/cache"
	"github.com/kanbanmcp/kanban-mcp/internal/cardfile"
	"github.com/kanbanmcp/kanban-mcp/internal/cardindex"
	"github.com/kanbanmcp/kanban-mcp/internal/columns"
	"github.com/kanbanmcp/kanban-mcp/internal/config"
	"github.com/kanbanmcp/kanban-mcp/internal/errs"
	"github.com/kanbanmcp/kanban-mcp/internal/idgen"
	"github.com/kanbanmcp/kanban-mcp/internal/pathguard"
	"github.com/kanbanmcp/kanban-mcp/internal/relations"
)

// Notifier receives resource-update URIs as the store's side effect of a
// mutation (spec.md §4.7, §5: card write, then index update, then
// notification, in that order). internal/board's notifyBridge supplies the
// real implementation; Store only needs to call it.
type Notifier interface {
	Publish(uri string)
}

type noopNotifier struct{}

func (noopNotifier) Publish(string) {}

// Store is the board-scoped handle wiring every core component together
// (spec.md §9: no ambient globals, construction is explicit).
type Store struct {
	boardID   string
	guard     *pathguard.Guard
	kanbanDir string
	columns   *columns.Config
	index     *cardindex.Index
	relations *relations.Index
	ids       *idgen.Source
	notify    Notifier
	cards     *cache.Cache // keyed by absolute card path

	mu sync.Mutex // single-writer discipline, spec.md §5
}

// New builds a Store rooted at boardRoot. cfg, index, and rel must already
// be loaded/bound to files under boardRoot/.kanban. notify may be nil, in
// which case notifications are dropped (useful for CLI subcommands that
// don't run a watcher). A zero-value cacheCfg falls back to
// config.DefaultConfig's cache settings.
func New(boardRoot string, cfg *columns.Config, index *cardindex.Index, rel *relations.Index, ids *idgen.Source, notify Notifier, cacheCfg config.CacheConfig) (*Store, error) {
	guard, err := pathguard.New(boardRoot)
	if err != nil {
		return nil, err
	}
	if notify == nil {
		notify = noopNotifier{}
	}
	if cacheCfg == (config.CacheConfig{}) {
		cacheCfg = config.DefaultConfig().Cache
	}
	return &Store{
		boardID:   guard.Root(),
		guard:     guard,
		kanbanDir: filepath.Join(guard.Root(), ".kanban"),
		columns:   cfg,
		index:     index,
		relations: rel,
		ids:       ids,
		notify:    notify,
		cards:     cache.New(cacheCfg.TTL, cacheCfg.MaxEntries),
	}, nil
}

// BoardID returns the opaque board identifier (the canonical root path).
func (s *Store) BoardID() string { return s.boardID }

func (s *Store) boardURI() string { return "kanban://" + s.boardID + "/board" }
func (s *Store) cardURI(id string) string {
	return "kanban://" + s.boardID + "/cards/" + id
}

func (s *Store) publishCardMutation(id string) {
	s.notify.Publish(s.boardURI())
	s.notify.Publish(s.cardURI(id))
}

// absPath resolves a kanbanDir-relative path (as stored in a CardIndex
// record) through the PathGuard.
func (s *Store) absPath(rel string) (string, error) {
	relFromRoot := filepath.Join(".kanban", rel)
	return s.guard.Resolve(relFromRoot)
}

// readCardAt parses the card at abs, serving a cached copy when present.
// Callers that only inspect the result (list filters, resource reads) may
// use this directly. Callers that go on to mutate the returned Card in
// place before writing it back must use readCardForWrite instead, since
// mutating a cached pointer would corrupt the cache ahead of any write
// actually succeeding.
func (s *Store) readCardAt(abs string) (*cardfile.Card, error) {
	if c, ok := s.cards.Get(abs); ok {
		return c, nil
	}
	card, err := s.parseCardAt(abs)
	if err != nil {
		return nil, err
	}
	s.cards.Set(abs, card)
	return card, nil
}

// readCardForWrite always parses a fresh copy from disk, bypassing the
// cache, so the caller can freely mutate the result ahead of a write.
func (s *Store) readCardForWrite(abs string) (*cardfile.Card, error) {
	return s.parseCardAt(abs)
}

func (s *Store) parseCardAt(abs string) (*cardfile.Card, error) {
	data, err := readFile(abs)
	if err != nil {
		return nil, err
	}
	return cardfile.Parse(data)
}

func (s *Store) invalidateCard(paths ...string) {
	for _, p := range paths {
		s.cards.Delete(p)
	}
}

// relPathResolver adapts the Store's CardIndex to relations.CardResolver.
type relPathResolver struct{ s *Store }

func (r relPathResolver) Exists(id string) bool {
	_, ok, err := r.s.index.Lookup(id)
	return err == nil && ok
}

func (r relPathResolver) RelPath(id string) (string, bool) {
	rec, ok, err := r.s.index.Lookup(id)
	if err != nil || !ok {
		return "", false
	}
	return rec.Path, true
}

// donePartitionDir returns the directory (relative to .kanban) a completed
// card belongs in under "done", given the done-section partition mode.
func donePartitionDir(partition string, completedAt time.Time) string {
	switch partition {
	case "yyyy-mm":
		return filepath.Join("done", completedAt.Format("2006"), completedAt.Format("01"))
	case "yyyy-q":
		q := (int(completedAt.Month())-1)/3 + 1
		return filepath.Join("done", completedAt.Format("2006"), quarterLabel(q))
	default:
		return "done"
	}
}

func quarterLabel(q int) string {
	switch q {
	case 1:
		return "Q1"
	case 2:
		return "Q2"
	case 3:
		return "Q3"
	default:
		return "Q4"
	}
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

func rfc3339OrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// recordFromCard builds (or refreshes) a CardIndex record from a parsed
// card and the column/path it currently lives at.
func recordFromCard(c *cardfile.Card, column, relPath string) cardindex.Record {
	return cardindex.Record{
		ID:          c.ID,
		Title:       c.Title,
		Column:      column,
		Lane:        c.Lane,
		Assignees:   c.Assignees,
		Labels:      c.Labels,
		CreatedAt:   rfc3339OrEmpty(c.CreatedAt),
		CompletedAt: rfc3339OrEmpty(c.CompletedAt),
		UpdatedAt:   nowRFC3339(),
		Path:        filepath.ToSlash(relPath),
	}
}

// ValidatePriority reports whether p is one of the four declared priority
// bands (spec.md §3).
func ValidatePriority(p string) bool {
	switch p {
	case "P0", "P1", "P2", "P3":
		return true
	default:
		return false
	}
}

// requireColumn returns an invalid-argument error when a column key isn't
// declared.
func (s *Store) requireColumn(key string) (columns.Column, error) {
	col, ok := s.columns.Lookup(key)
	if !ok {
		return columns.Column{}, errs.Invalid("unknown column %q", key)
	}
	return col, nil
}
