package store

import (
	"sort"
	"strings"

	"github.com/kanbanmcp/kanban-mcp/internal/cardindex"
	"github.com/kanbanmcp/kanban-mcp/internal/errs"
)

// ListInput is the filter/sort/pagination argument set for Store.List.
type ListInput struct {
	Columns     []string `json:"columns,omitempty"`
	Lane        string   `json:"lane,omitempty"`
	Assignee    string   `json:"assignee,omitempty"`
	Label       string   `json:"label,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Query       string   `json:"query,omitempty"`
	IncludeDone bool     `json:"include_done,omitempty"`
	Offset      int      `json:"offset,omitempty"`
	Limit       int      `json:"limit,omitempty"` // default 200
}

// ListResult is returned by Store.List.
type ListResult struct {
	Items         []cardindex.Record `json:"items"`
	NextOffset    *int               `json:"next_offset,omitempty"`
	QueryDegraded bool               `json:"query_degraded,omitempty"` // true if a body-search query fell back to index-only
}

// List filters, sorts, and paginates CardIndex records (spec.md §4.7 list).
// Priority isn't part of the index record, so a Priority filter opens each
// surviving candidate's card file; query does the same, but only when the
// caller opted in via IncludeDone or an unfiltered column set.
func (s *Store) List(in ListInput) (*ListResult, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 200
	}

	records, err := s.index.Load()
	if err != nil {
		return nil, err
	}

	columnSet := map[string]bool{}
	for _, c := range in.Columns {
		columnSet[strings.ToLower(c)] = true
	}

	filtered := make([]cardindex.Record, 0, len(records))
	for _, r := range records {
		if len(columnSet) > 0 && !columnSet[strings.ToLower(r.Column)] {
			continue
		}
		if !in.IncludeDone && strings.EqualFold(r.Column, "done") {
			continue
		}
		if in.Lane != "" && !strings.EqualFold(r.Lane, in.Lane) {
			continue
		}
		if in.Assignee != "" && !containsFold(r.Assignees, in.Assignee) {
			continue
		}
		if in.Label != "" && !containsFold(r.Labels, in.Label) {
			continue
		}
		filtered = append(filtered, r)
	}

	if in.Priority != "" {
		filtered, err = s.filterByPriority(filtered, in.Priority)
		if err != nil {
			return nil, err
		}
	}

	degraded := false
	if in.Query != "" {
		canReadBodies := in.IncludeDone || len(in.Columns) == 0
		filtered, degraded, err = s.filterByQuery(filtered, in.Query, canReadBodies)
		if err != nil {
			return nil, err
		}
	}

	order := func(col string) int {
		if o := s.columns.ColumnOrder(col); o >= 0 {
			return o
		}
		return len(s.columns.Columns)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		oi, oj := order(filtered[i].Column), order(filtered[j].Column)
		if oi != oj {
			return oi < oj
		}
		if filtered[i].CreatedAt != filtered[j].CreatedAt {
			return filtered[i].CreatedAt < filtered[j].CreatedAt
		}
		return filtered[i].ID < filtered[j].ID
	})

	if in.Offset < 0 {
		return nil, errs.Invalid("offset must be non-negative")
	}
	start := in.Offset
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	page := filtered[start:end]

	var next *int
	if end < len(filtered) {
		v := end
		next = &v
	}

	return &ListResult{Items: page, NextOffset: next, QueryDegraded: degraded}, nil
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

func (s *Store) filterByPriority(records []cardindex.Record, priority string) ([]cardindex.Record, error) {
	out := make([]cardindex.Record, 0, len(records))
	for _, r := range records {
		abs, err := s.absPath(r.Path)
		if err != nil {
			return nil, err
		}
		card, err := s.readCardAt(abs)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(card.Priority, priority) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) filterByQuery(records []cardindex.Record, query string, readBodies bool) ([]cardindex.Record, bool, error) {
	needle := strings.ToLower(query)
	out := make([]cardindex.Record, 0, len(records))
	degraded := false
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.ID), needle) || strings.Contains(strings.ToLower(r.Title), needle) {
			out = append(out, r)
			continue
		}
		if !readBodies {
			degraded = true
			continue
		}
		abs, err := s.absPath(r.Path)
		if err != nil {
			return nil, false, err
		}
		card, err := s.readCardAt(abs)
		if err != nil {
			return nil, false, err
		}
		if strings.Contains(strings.ToLower(card.Body), needle) {
			out = append(out, r)
		}
	}
	return out, degraded, nil
}
