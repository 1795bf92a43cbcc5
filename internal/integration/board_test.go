// Package integration drives a real board directory end to end the way
// the teacher's own integration suite drove a real mounted filesystem:
// no mocks, real files under t.TempDir(), operations issued through the
// same entry points a client would use (board.Open, the dispatcher, the
// CLI's lint/reindex subcommand logic), assertions against what actually
// landed on disk.
package integration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kanbanmcp/kanban-mcp/internal/board"
	"github.com/kanbanmcp/kanban-mcp/internal/columns"
	"github.com/kanbanmcp/kanban-mcp/internal/dispatcher"
	"github.com/kanbanmcp/kanban-mcp/internal/lint"
	"github.com/kanbanmcp/kanban-mcp/internal/relations"
	"github.com/kanbanmcp/kanban-mcp/internal/store"
)

const boardColumnsTOML = `
[[columns]]
key = "backlog"
title = "Backlog"

[[columns]]
key = "doing"
title = "Doing"
wip_limit = 2

[[columns]]
key = "done"
title = "Done"

[store]
wip_enforce = "error"
`

func newTestBoard(t *testing.T) (*board.Board, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".kanban"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".kanban", "columns.toml"), []byte(boardColumnsTOML), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := board.Open(dir, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return b, dir
}

// TestLifecycleNewMoveDoneSurvivesReindex exercises new -> move -> done,
// then verifies a from-scratch reindex recovers the same card state from
// the front matter alone.
func TestLifecycleNewMoveDoneSurvivesReindex(t *testing.T) {
	b, _ := newTestBoard(t)

	created, err := b.Store.New(store.NewCardInput{Title: "Ship the release notes", Column: "backlog"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id := created.Card.ID

	if _, err := b.Store.Move(id, "doing"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := b.Store.Done(id); err != nil {
		t.Fatalf("Done: %v", err)
	}

	list, err := b.Store.List(store.ListInput{IncludeDone: true})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].Column != "done" {
		t.Fatalf("expected one done card, got %+v", list.Items)
	}

	if err := b.Store.Reindex(); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	afterReindex, err := b.Store.List(store.ListInput{IncludeDone: true})
	if err != nil {
		t.Fatalf("List after reindex: %v", err)
	}
	if len(afterReindex.Items) != 1 || afterReindex.Items[0].Column != "done" {
		t.Fatalf("expected the done card to survive reindex, got %+v", afterReindex.Items)
	}
}

// TestWIPLimitEnforcedAcrossMoves confirms a declared wip_limit blocks a
// move once the target column is full.
func TestWIPLimitEnforcedAcrossMoves(t *testing.T) {
	b, _ := newTestBoard(t)

	var ids []string
	for i := 0; i < 3; i++ {
		res, err := b.Store.New(store.NewCardInput{Title: "Card", Column: "backlog"})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		ids = append(ids, res.Card.ID)
	}

	for _, id := range ids[:2] {
		if _, err := b.Store.Move(id, "doing"); err != nil {
			t.Fatalf("Move into doing: %v", err)
		}
	}

	if _, err := b.Store.Move(ids[2], "doing"); err == nil {
		t.Fatal("expected the third move into a full wip_limit=2 column to fail")
	}
}

// TestRelationsCycleRejectedAndLintClean builds a valid parent chain,
// rejects a depends cycle, then confirms lint finds no issues.
func TestRelationsCycleRejectedAndLintClean(t *testing.T) {
	b, dir := newTestBoard(t)

	parent, err := b.Store.New(store.NewCardInput{Title: "Epic", Column: "backlog"})
	if err != nil {
		t.Fatal(err)
	}
	child, err := b.Store.New(store.NewCardInput{Title: "Task", Column: "backlog"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := b.Store.RelationsSet([]relations.Edge{
		{Type: relations.Parent, From: child.Card.ID, To: parent.Card.ID},
	}, nil); err != nil {
		t.Fatalf("RelationsSet parent: %v", err)
	}

	_, err = b.Store.RelationsSet([]relations.Edge{
		{Type: relations.Depends, From: parent.Card.ID, To: child.Card.ID},
		{Type: relations.Depends, From: child.Card.ID, To: parent.Card.ID},
	}, nil)
	if err == nil {
		t.Fatal("expected a two-node depends cycle to be rejected")
	}

	cfg, err := columns.Load(filepath.Join(dir, ".kanban", "columns.toml"))
	if err != nil {
		t.Fatal(err)
	}
	issues, err := lint.Run(dir, cfg)
	if err != nil {
		t.Fatalf("lint.Run: %v", err)
	}
	if lint.MaxSeverity(issues) >= lint.Warn {
		t.Fatalf("expected a clean board, got issues %+v", issues)
	}
}

// TestDispatcherRoundTripsBothSurfaceForms drives kanban/new through the
// dispatcher in both its namespaced and flat spellings and checks both
// produce the same card.
func TestDispatcherRoundTripsBothSurfaceForms(t *testing.T) {
	b, _ := newTestBoard(t)
	disp := dispatcher.New(b.Store)

	args, err := json.Marshal(store.NewCardInput{Title: "Namespaced", Column: "backlog"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := disp.Dispatch(dispatcher.Call{Name: "kanban/new", Arguments: args}); err != nil {
		t.Fatalf("namespaced dispatch: %v", err)
	}

	args2, err := json.Marshal(store.NewCardInput{Title: "Flat", Column: "backlog"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := disp.Dispatch(dispatcher.Call{Name: "kanban_new", Arguments: args2}); err != nil {
		t.Fatalf("flat dispatch: %v", err)
	}

	list, err := b.Store.List(store.ListInput{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 2 {
		t.Fatalf("expected 2 cards from both surface forms, got %d", len(list.Items))
	}
}
