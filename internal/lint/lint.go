// Package lint implements the `kanban lint` subcommand's checks: each
// card's front matter is well-formed, relation endpoints resolve, and
// declared WIP limits are respected. It is a thin read-only pass over
// the same Rebuild/Load primitives the store uses for recovery, kept
// separate from internal/cli so the check logic is testable without
// constructing a cobra command.
package lint

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kanbanmcp/kanban-mcp/internal/cardindex"
	"github.com/kanbanmcp/kanban-mcp/internal/columns"
	"github.com/kanbanmcp/kanban-mcp/internal/relations"
)

// Severity is the ordered level of a lint Issue, low to high.
type Severity int

const (
	Info Severity = iota
	Warn
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warn:
		return "warn"
	default:
		return "error"
	}
}

// ParseSeverity parses "info"|"warn"|"error", defaulting to Error on an
// unrecognized value (the --fail-on flag's default).
func ParseSeverity(s string) Severity {
	switch strings.ToLower(s) {
	case "info":
		return Info
	case "warn":
		return Warn
	default:
		return Error
	}
}

// Issue is one finding.
type Issue struct {
	Severity Severity
	CardID   string
	Message  string
}

func (i Issue) String() string {
	if i.CardID == "" {
		return fmt.Sprintf("[%s] %s", i.Severity, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.CardID, i.Message)
}

// Run walks every declared column (hot and cold) and reports issues
// against the CardIndex records, relation edges, and WIP limits.
func Run(boardRoot string, cfg *columns.Config) ([]Issue, error) {
	records, err := cardindex.Rebuild(boardRoot, cfg.HotColumns, coldColumns(cfg), true)
	if err != nil {
		return nil, err
	}
	edges, err := relations.New(filepath.Join(boardRoot, ".kanban", "relations.ndjson")).Load()
	if err != nil {
		return nil, err
	}

	var issues []Issue
	issues = append(issues, lintRecords(records, cfg)...)
	issues = append(issues, lintEdges(records, edges)...)
	issues = append(issues, lintWIP(records, cfg)...)
	return issues, nil
}

func coldColumns(cfg *columns.Config) []string {
	hot := map[string]bool{}
	for _, c := range cfg.HotColumns {
		hot[strings.ToLower(c)] = true
	}
	var cold []string
	for _, key := range cfg.ColumnKeys() {
		if !hot[strings.ToLower(key)] {
			cold = append(cold, key)
		}
	}
	return cold
}

func lintRecords(records []cardindex.Record, cfg *columns.Config) []Issue {
	var issues []Issue
	seen := map[string]bool{}
	for _, r := range records {
		if seen[strings.ToUpper(r.ID)] {
			issues = append(issues, Issue{Severity: Error, CardID: r.ID, Message: "duplicate card id"})
		}
		seen[strings.ToUpper(r.ID)] = true

		if r.Title == "" {
			issues = append(issues, Issue{Severity: Error, CardID: r.ID, Message: "missing title"})
		}
		if _, ok := cfg.Lookup(r.Column); !ok {
			issues = append(issues, Issue{Severity: Error, CardID: r.ID, Message: fmt.Sprintf("card in undeclared column %q", r.Column)})
		}
		if !strings.EqualFold(r.Column, "done") && r.CompletedAt != "" {
			issues = append(issues, Issue{Severity: Warn, CardID: r.ID, Message: "completed_at set outside done column"})
		}
		if strings.EqualFold(r.Column, "done") && r.CompletedAt == "" {
			issues = append(issues, Issue{Severity: Warn, CardID: r.ID, Message: "card in done column missing completed_at"})
		}
	}
	return issues
}

func lintEdges(records []cardindex.Record, edges []relations.Edge) []Issue {
	byID := map[string]bool{}
	for _, r := range records {
		byID[strings.ToUpper(r.ID)] = true
	}

	var issues []Issue
	parentOf := map[string]string{}
	for _, e := range edges {
		if !byID[e.From] {
			issues = append(issues, Issue{Severity: Error, CardID: e.From, Message: "relation 'from' endpoint does not exist"})
		}
		if e.To != relations.WildcardTo && !byID[e.To] {
			issues = append(issues, Issue{Severity: Error, CardID: e.To, Message: "relation 'to' endpoint does not exist"})
		}
		if e.Type == relations.Parent {
			if prev, ok := parentOf[e.From]; ok && prev != e.To {
				issues = append(issues, Issue{Severity: Error, CardID: e.From, Message: "multiple parent edges for one card"})
			}
			parentOf[e.From] = e.To
		}
	}
	return issues
}

func lintWIP(records []cardindex.Record, cfg *columns.Config) []Issue {
	counts := map[string]int{}
	for _, r := range records {
		counts[strings.ToLower(r.Column)]++
	}

	var issues []Issue
	for _, col := range cfg.Columns {
		if col.WIPLimit <= 0 {
			continue
		}
		if n := counts[strings.ToLower(col.Key)]; n > col.WIPLimit {
			issues = append(issues, Issue{Severity: Warn, Message: fmt.Sprintf("column %q has %d cards, exceeding wip_limit %d", col.Key, n, col.WIPLimit)})
		}
	}
	return issues
}

// MaxSeverity returns the highest severity found, or -1 if issues is empty.
func MaxSeverity(issues []Issue) Severity {
	highest := Severity(-1)
	for _, i := range issues {
		if i.Severity > highest {
			highest = i.Severity
		}
	}
	return highest
}
