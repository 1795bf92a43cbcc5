package store

import (
	"github.com/kanbanmcp/kanban-mcp/internal/cardfile"
	"github.com/kanbanmcp/kanban-mcp/internal/cardindex"
	"github.com/kanbanmcp/kanban-mcp/internal/errs"
)

// Get loads one card's full front matter and body by id, for resource
// reads rather than listing (spec.md §6 kanban://{board}/cards/{ULID}).
func (s *Store) Get(cardID string) (*cardfile.Card, error) {
	card, _, err := s.GetRecord(cardID)
	return card, err
}

// GetRecord loads one card alongside its CardIndex record, for callers
// that need the column a plain Card doesn't carry (the cards/{ULID}/state
// resource, spec.md §6).
func (s *Store) GetRecord(cardID string) (*cardfile.Card, cardindex.Record, error) {
	rec, ok, err := s.index.Lookup(cardID)
	if err != nil {
		return nil, cardindex.Record{}, err
	}
	if !ok {
		return nil, cardindex.Record{}, errs.NotFoundf("card %q not found", cardID)
	}
	abs, err := s.absPath(rec.Path)
	if err != nil {
		return nil, cardindex.Record{}, err
	}
	card, err := s.readCardAt(abs)
	if err != nil {
		return nil, cardindex.Record{}, err
	}
	return card, rec, nil
}

// AllRecords loads every CardIndex record, including done cards, for the
// aggregate board render.
func (s *Store) AllRecords() ([]cardindex.Record, error) {
	return s.index.Load()
}
