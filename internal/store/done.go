package store

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/kanbanmcp/kanban-mcp/internal/errs"
)

// DoneResult is returned by Store.Done.
type DoneResult struct {
	CompletedAt time.Time `json:"completed_at"`
	Warnings    []string  `json:"warnings,omitempty"`
}

// Done marks a card complete and relocates it under done/ (spec.md §4.7
// done). Idempotent: calling Done on an already-done card returns its
// existing completed_at unchanged.
func (s *Store) Done(cardID string) (*DoneResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok, err := s.index.Lookup(cardID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.NotFoundf("card %q not found", cardID)
	}

	if strings.EqualFold(rec.Column, "done") {
		existing, err := time.Parse(time.RFC3339, rec.CompletedAt)
		if err != nil {
			return nil, errs.WrapInternal(err, "parse existing completed_at for %q", cardID)
		}
		return &DoneResult{CompletedAt: existing}, nil
	}

	var warnings []string
	if violations, err := s.childrenNotDone(rec.ID); err != nil {
		return nil, err
	} else if len(violations) > 0 {
		switch s.columns.ParentDonePolicy {
		case "enforce":
			return nil, errs.Conflictf("card %q has children not in done: %v", cardID, violations)
		case "ignore":
		default: // "warn"
			warnings = append(warnings, errs.Conflictf("card %q has children not in done: %v", cardID, violations).Error())
		}
	}

	srcAbs, err := s.absPath(rec.Path)
	if err != nil {
		return nil, err
	}
	card, err := s.readCardForWrite(srcAbs)
	if err != nil {
		return nil, err
	}

	completedAt := time.Now().UTC()
	card.CompletedAt = &completedAt

	filename := filepath.Base(rec.Path)
	relPath := filepath.Join(donePartitionDir(s.columns.DonePartition, completedAt), filename)
	dstAbs, err := s.absPath(relPath)
	if err != nil {
		return nil, err
	}

	if err := replaceWithNewContent(srcAbs, dstAbs, card); err != nil {
		return nil, err
	}
	s.invalidateCard(srcAbs, dstAbs)

	newRec := rec
	newRec.Column = "done"
	newRec.Path = filepath.ToSlash(relPath)
	newRec.CompletedAt = completedAt.Format(time.RFC3339)
	newRec.UpdatedAt = nowRFC3339()
	if err := s.index.Upsert(newRec); err != nil {
		return nil, err
	}

	s.publishCardMutation(newRec.ID)

	return &DoneResult{CompletedAt: completedAt, Warnings: warnings}, nil
}

// childrenNotDone returns the ids of cards whose parent edge in the
// relations index points at parentID but whose current column isn't "done".
func (s *Store) childrenNotDone(parentID string) ([]string, error) {
	edges, err := s.relations.Load()
	if err != nil {
		return nil, err
	}
	records, err := s.index.Load()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]string, len(records))
	for _, r := range records {
		byID[strings.ToUpper(r.ID)] = r.Column
	}

	var violations []string
	for _, e := range edges {
		if e.Type != "parent" || !strings.EqualFold(e.To, parentID) {
			continue
		}
		if col := byID[strings.ToUpper(e.From)]; !strings.EqualFold(col, "done") {
			violations = append(violations, e.From)
		}
	}
	return violations, nil
}
