// Package render produces the Markdown aggregate board view served at
// kanban://{board}/board (spec.md §6). It is a thin read-only formatter
// over CardIndex + ColumnsConfig, out of core scope per spec.md §1: no
// mutation, no caching, just a deterministic string build, generalizing
// the teacher's plain fmt.Sprintf-based issue summaries (internal/api
// has no Markdown renderer of its own, so this follows the same
// "read struct, build strings.Builder output" shape used throughout the
// corpus for human-facing text).
package render

import (
	"fmt"
	"strings"

	"github.com/kanbanmcp/kanban-mcp/internal/cardindex"
	"github.com/kanbanmcp/kanban-mcp/internal/columns"
)

// Board renders every non-done column (by declaration order) as a
// Markdown section listing its cards, then a trailing Done summary with
// just a count (done cards are numerous and partitioned; the aggregate
// view isn't meant to enumerate them).
func Board(boardID string, cfg *columns.Config, records []cardindex.Record) string {
	byColumn := map[string][]cardindex.Record{}
	for _, r := range records {
		key := strings.ToLower(r.Column)
		byColumn[key] = append(byColumn[key], r)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Board: %s\n\n", boardID)

	doneCount := 0
	for _, col := range cfg.Columns {
		key := strings.ToLower(col.Key)
		if key == "done" {
			doneCount = len(byColumn[key])
			continue
		}
		cards := byColumn[key]
		fmt.Fprintf(&b, "## %s (%d)\n\n", col.Title, len(cards))
		if len(cards) == 0 {
			b.WriteString("_empty_\n\n")
			continue
		}
		for _, c := range cards {
			renderCardLine(&b, c)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Done (%d)\n", doneCount)
	return b.String()
}

func renderCardLine(b *strings.Builder, c cardindex.Record) {
	fmt.Fprintf(b, "- `%s` %s", c.ID, c.Title)
	if len(c.Assignees) > 0 {
		fmt.Fprintf(b, " (%s)", strings.Join(c.Assignees, ", "))
	}
	if len(c.Labels) > 0 {
		fmt.Fprintf(b, " [%s]", strings.Join(c.Labels, ", "))
	}
	b.WriteString("\n")
}
