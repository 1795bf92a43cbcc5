package store

import (
	"path/filepath"
	"time"

	"github.com/kanbanmcp/kanban-mcp/internal/cardfile"
	"github.com/kanbanmcp/kanban-mcp/internal/errs"
	"github.com/kanbanmcp/kanban-mcp/internal/pathguard"
)

// NewCardInput is the argument set for Store.New.
type NewCardInput struct {
	Title     string   `json:"title"`
	Column    string   `json:"column"` // default "backlog"
	Lane      string   `json:"lane"`
	Priority  string   `json:"priority"` // P0-P3, default "P2"
	Size      int      `json:"size"`
	Labels    []string `json:"labels,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
	Body      string   `json:"body,omitempty"`
}

// NewResult is returned by Store.New.
type NewResult struct {
	Card     *cardfile.Card `json:"card"`
	Warnings []string       `json:"warnings,omitempty"`
}

// New allocates a fresh card (spec.md §4.7 new). Non-idempotent: every
// call, even with identical input, creates a distinct card.
func (s *Store) New(in NewCardInput) (*NewResult, error) {
	if in.Title == "" {
		return nil, errs.Invalid("title is required")
	}
	column := in.Column
	if column == "" {
		column = "backlog"
	}
	if _, err := s.requireColumn(column); err != nil {
		return nil, err
	}
	priority := in.Priority
	if priority == "" {
		priority = "P2"
	}
	if !ValidatePriority(priority) {
		return nil, errs.Invalid("malformed priority %q", priority)
	}
	if in.Size < 0 {
		return nil, errs.Invalid("size must be non-negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	card := &cardfile.Card{
		Title:     in.Title,
		Lane:      in.Lane,
		Priority:  priority,
		Size:      in.Size,
		Labels:    in.Labels,
		Assignees: in.Assignees,
		CreatedAt: &now,
		Body:      in.Body,
	}

	var warnings []string
	var finalRel string

	for attempt := 0; attempt < 2; attempt++ {
		id, err := s.ids.Generate()
		if err != nil {
			return nil, errs.WrapInternal(err, "generate card id")
		}
		if _, ok, _ := s.index.Lookup(id); ok {
			continue // collision: retry once with a fresh id
		}
		card.ID = id

		slug := pathguard.Slug(in.Title)
		filename := id + "__" + slug + ".md"
		relPath := filepath.Join(column, filename)
		abs, err := s.absPath(relPath)
		if err != nil {
			return nil, err
		}

		result, err := writeCardAt(abs, card, cardfile.WriteOptions{
			AutoRenameOnConflict: s.columns.AutoRenameOnConflict,
			RenameSuffix:         s.columns.RenameSuffix,
		})
		if err != nil {
			return nil, err
		}
		if result.Warning != "" {
			warnings = append(warnings, result.Warning)
		}

		rel, err := filepath.Rel(s.kanbanDir, result.FinalPath)
		if err != nil {
			return nil, errs.WrapInternal(err, "relativize new card path")
		}
		finalRel = filepath.ToSlash(rel)
		break
	}

	if card.ID == "" {
		return nil, errs.Conflictf("id collision on both attempts for new card %q", in.Title)
	}

	if err := s.index.Upsert(recordFromCard(card, column, finalRel)); err != nil {
		return nil, err
	}

	s.publishCardMutation(card.ID)

	return &NewResult{Card: card, Warnings: warnings}, nil
}
