package store

import (
	"strings"

	"github.com/kanbanmcp/kanban-mcp/internal/cardfile"
	"github.com/kanbanmcp/kanban-mcp/internal/cardindex"
	"github.com/kanbanmcp/kanban-mcp/internal/relations"
)

// RelationsSet delegates to relations.Index.Apply, supplying this Store's
// card I/O and a full-reindex fallback (spec.md §4.6, §4.7 relations.set).
func (s *Store) RelationsSet(add, remove []relations.Edge) (*relations.ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	readCard := func(rel string) (*cardfile.Card, error) {
		abs, err := s.absPath(rel)
		if err != nil {
			return nil, err
		}
		return s.readCardForWrite(abs)
	}
	writeCard := func(rel string, card *cardfile.Card) error {
		abs, err := s.absPath(rel)
		if err != nil {
			return err
		}
		if _, err := writeCardAt(abs, card, cardfile.WriteOptions{AllowOverwrite: true}); err != nil {
			return err
		}
		s.invalidateCard(abs)
		return nil
	}
	reindex := func() ([]relations.Edge, error) {
		records, err := cardindex.Rebuild(s.guard.Root(), s.columns.HotColumns, s.coldColumns(), true)
		if err != nil {
			return nil, err
		}
		return s.edgesFromRecords(records)
	}

	result, err := s.relations.Apply(relPathResolver{s}, add, remove, readCard, writeCard, reindex)
	if err != nil {
		return nil, err
	}

	// The index rows touched by a changed parent need their path
	// reconciled with the index, but relations.Apply doesn't move files,
	// only rewrites front matter in place, so no CardIndex update is
	// needed here beyond what's already on disk.
	s.notify.Publish(s.boardURI())
	return result, nil
}

// Reindex rebuilds both cards.ndjson and relations.ndjson directly from
// card front matter, discarding whatever the indexes currently hold. This
// is the CLI `reindex` subcommand's operation (SPEC_FULL.md §4), the same
// recovery path relations.Apply falls back to on partial failure.
func (s *Store) Reindex() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cards.Clear()

	records, err := cardindex.Rebuild(s.guard.Root(), s.columns.HotColumns, s.coldColumns(), true)
	if err != nil {
		return err
	}
	if err := s.index.Rewrite(records); err != nil {
		return err
	}

	edges, err := s.edgesFromRecords(records)
	if err != nil {
		return err
	}
	return s.relations.Rewrite(edges)
}

// edgesFromRecords re-derives every edge from the front matter of the
// cards named in records, the failure-recovery path of spec.md §4.6.
func (s *Store) edgesFromRecords(records []cardindex.Record) ([]relations.Edge, error) {
	var edges []relations.Edge
	for _, rec := range records {
		abs, err := s.absPath(rec.Path)
		if err != nil {
			return nil, err
		}
		card, err := s.readCardAt(abs)
		if err != nil {
			return nil, err
		}
		id := strings.ToUpper(card.ID)
		if card.Parent != "" {
			edges = append(edges, relations.Edge{Type: relations.Parent, From: id, To: strings.ToUpper(card.Parent)})
		}
		for _, dep := range card.DependsOn {
			edges = append(edges, relations.Edge{Type: relations.Depends, From: id, To: strings.ToUpper(dep)})
		}
		for _, rel := range card.RelatesTo {
			edges = append(edges, relations.Edge{Type: relations.Relates, From: id, To: strings.ToUpper(rel)})
		}
	}
	return edges, nil
}

// coldColumns returns every declared column key not already listed as hot.
func (s *Store) coldColumns() []string {
	hot := map[string]bool{}
	for _, c := range s.columns.HotColumns {
		hot[strings.ToLower(c)] = true
	}
	var cold []string
	for _, key := range s.columns.ColumnKeys() {
		if !hot[strings.ToLower(key)] {
			cold = append(cold, key)
		}
	}
	return cold
}
