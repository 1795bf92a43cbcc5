package store

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/kanbanmcp/kanban-mcp/internal/errs"
)

// MoveResult is returned by Store.Move.
type MoveResult struct {
	Changed  bool     `json:"changed"`
	Warnings []string `json:"warnings,omitempty"`
}

// Move relocates a card to a different column (spec.md §4.7 move).
// Idempotent: moving to the card's current column is a no-op success.
func (s *Store) Move(cardID, toColumn string) (*MoveResult, error) {
	if _, err := s.requireColumn(toColumn); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok, err := s.index.Lookup(cardID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.NotFoundf("card %q not found", cardID)
	}
	if strings.EqualFold(rec.Column, toColumn) {
		return &MoveResult{Changed: false}, nil
	}

	var warnings []string
	if col, _ := s.columns.Lookup(toColumn); col.WIPLimit > 0 {
		records, err := s.index.Load()
		if err != nil {
			return nil, err
		}
		count := 0
		for _, r := range records {
			if strings.EqualFold(r.Column, toColumn) {
				count++
			}
		}
		if count >= col.WIPLimit {
			if s.columns.WIPEnforce == "error" {
				return nil, errs.Conflictf("wip limit %d reached for column %q", col.WIPLimit, toColumn)
			}
			warnings = append(warnings, errs.Conflictf("wip limit %d reached for column %q", col.WIPLimit, toColumn).Error())
		}
	}

	srcAbs, err := s.absPath(rec.Path)
	if err != nil {
		return nil, err
	}
	filename := filepath.Base(rec.Path)

	enteringDone := strings.EqualFold(toColumn, "done")
	leavingDone := strings.EqualFold(rec.Column, "done")

	var relPath string
	var contentChanged bool
	var completedAt *time.Time

	if enteringDone {
		now := time.Now().UTC()
		completedAt = &now
		contentChanged = true
		relPath = filepath.Join(donePartitionDir(s.columns.DonePartition, now), filename)
	} else {
		if leavingDone {
			contentChanged = true // clearing completed_at
		}
		relPath = filepath.Join(toColumn, filename)
	}

	dstAbs, err := s.absPath(relPath)
	if err != nil {
		return nil, err
	}

	if contentChanged {
		card, err := s.readCardForWrite(srcAbs)
		if err != nil {
			return nil, err
		}
		card.CompletedAt = completedAt // nil clears it when leaving done
		if err := replaceWithNewContent(srcAbs, dstAbs, card); err != nil {
			return nil, err
		}
	} else {
		if err := renameNoContentChange(srcAbs, dstAbs); err != nil {
			return nil, err
		}
	}
	s.invalidateCard(srcAbs, dstAbs)

	newRec := rec
	newRec.Column = toColumn
	newRec.Path = filepath.ToSlash(relPath)
	newRec.UpdatedAt = nowRFC3339()
	if enteringDone {
		newRec.CompletedAt = completedAt.Format(time.RFC3339)
	} else if leavingDone {
		newRec.CompletedAt = ""
	}
	if err := s.index.Upsert(newRec); err != nil {
		return nil, err
	}

	s.publishCardMutation(newRec.ID)

	return &MoveResult{Changed: true, Warnings: warnings}, nil
}
