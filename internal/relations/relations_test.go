package relations

import (
	"path/filepath"
	"testing"

	"github.com/kanbanmcp/kanban-mcp/internal/cardfile"
)

type fakeResolver struct {
	exists  map[string]bool
	relPath map[string]string
}

func (f *fakeResolver) Exists(id string) bool { return f.exists[id] }
func (f *fakeResolver) RelPath(id string) (string, bool) {
	p, ok := f.relPath[id]
	return p, ok
}

func mkCard(id string) *cardfile.Card { return &cardfile.Card{ID: id, Title: id} }

// Apply validates every endpoint as a ULID, so the fixtures use real ids.
const (
	idA  = "01HZXQJ9K8P7TFQJ0VYX5M7NDA"
	idB  = "01HZXQJ9K8P7TFQJ0VYX5M7NDB"
	idC  = "01HZXQJ9K8P7TFQJ0VYX5M7NDC"
	idP  = "01HZXQJ9K8P7TFQJ0VYX5M7NDP"
	idP1 = "01HZXQJ9K8P7TFQJ0VYX5M7ND1"
	idP2 = "01HZXQJ9K8P7TFQJ0VYX5M7ND2"
)

func TestApplyAddParentAndWildcardRemove(t *testing.T) {
	dir := t.TempDir()
	idx := New(filepath.Join(dir, "relations.ndjson"))
	resolver := &fakeResolver{
		exists:  map[string]bool{idC: true, idP: true},
		relPath: map[string]string{idC: "backlog/c.md", idP: "backlog/p.md"},
	}
	cards := map[string]*cardfile.Card{idC: mkCard(idC), idP: mkCard(idP)}
	read := func(rel string) (*cardfile.Card, error) {
		for id, rp := range resolver.relPath {
			if rp == rel {
				return cards[id], nil
			}
		}
		t.Fatalf("unexpected read path %q", rel)
		return nil, nil
	}
	write := func(rel string, c *cardfile.Card) error {
		for id, rp := range resolver.relPath {
			if rp == rel {
				cards[id] = c
				return nil
			}
		}
		t.Fatalf("unexpected write path %q", rel)
		return nil
	}
	reindex := func() ([]Edge, error) { return nil, nil }

	_, err := idx.Apply(resolver, []Edge{{Type: Parent, From: idC, To: idP}}, nil, read, write, reindex)
	if err != nil {
		t.Fatalf("Apply add parent: %v", err)
	}
	if cards[idC].Parent != idP {
		t.Fatalf("expected C.Parent=P, got %q", cards[idC].Parent)
	}

	edges, err := idx.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 || edges[0] != (Edge{Type: Parent, From: idC, To: idP}) {
		t.Fatalf("unexpected edges: %+v", edges)
	}

	_, err = idx.Apply(resolver, nil, []Edge{{Type: Parent, From: idC, To: WildcardTo}}, read, write, reindex)
	if err != nil {
		t.Fatalf("Apply wildcard remove: %v", err)
	}
	if cards[idC].Parent != "" {
		t.Fatalf("expected C.Parent cleared, got %q", cards[idC].Parent)
	}
	edges, _ = idx.Load()
	if len(edges) != 0 {
		t.Fatalf("expected no edges after wildcard remove, got %+v", edges)
	}
}

func TestApplyRejectsSecondParent(t *testing.T) {
	dir := t.TempDir()
	idx := New(filepath.Join(dir, "relations.ndjson"))
	resolver := &fakeResolver{
		exists:  map[string]bool{idC: true, idP1: true, idP2: true},
		relPath: map[string]string{idC: "backlog/c.md", idP1: "backlog/p1.md", idP2: "backlog/p2.md"},
	}
	noop := func(string) (*cardfile.Card, error) { return mkCard("x"), nil }
	noopW := func(string, *cardfile.Card) error { return nil }
	reindex := func() ([]Edge, error) { return nil, nil }

	_, err := idx.Apply(resolver, []Edge{{Type: Parent, From: idC, To: idP1}}, nil, noop, noopW, reindex)
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	_, err = idx.Apply(resolver, []Edge{{Type: Parent, From: idC, To: idP2}}, nil, noop, noopW, reindex)
	if err == nil {
		t.Fatal("expected conflict adding a second parent")
	}
}

func TestApplyRejectsDependsCycle(t *testing.T) {
	dir := t.TempDir()
	idx := New(filepath.Join(dir, "relations.ndjson"))
	resolver := &fakeResolver{
		exists: map[string]bool{idA: true, idB: true, idC: true},
		relPath: map[string]string{
			idA: "backlog/a.md", idB: "backlog/b.md", idC: "backlog/c.md",
		},
	}
	noop := func(string) (*cardfile.Card, error) { return mkCard("x"), nil }
	noopW := func(string, *cardfile.Card) error { return nil }
	reindex := func() ([]Edge, error) { return nil, nil }

	_, err := idx.Apply(resolver, []Edge{
		{Type: Depends, From: idA, To: idB},
		{Type: Depends, From: idB, To: idC},
	}, nil, noop, noopW, reindex)
	if err != nil {
		t.Fatalf("seed deps: %v", err)
	}

	_, err = idx.Apply(resolver, []Edge{{Type: Depends, From: idC, To: idA}}, nil, noop, noopW, reindex)
	if err == nil {
		t.Fatal("expected conflict for depends cycle")
	}

	edges, _ := idx.Load()
	if len(edges) != 2 {
		t.Fatalf("edges should be unmodified after rejected cycle, got %+v", edges)
	}
}

func TestApplyIdempotentReAdd(t *testing.T) {
	dir := t.TempDir()
	idx := New(filepath.Join(dir, "relations.ndjson"))
	resolver := &fakeResolver{
		exists:  map[string]bool{idA: true, idB: true},
		relPath: map[string]string{idA: "backlog/a.md", idB: "backlog/b.md"},
	}
	noop := func(string) (*cardfile.Card, error) { return mkCard("x"), nil }
	noopW := func(string, *cardfile.Card) error { return nil }
	reindex := func() ([]Edge, error) { return nil, nil }

	add := []Edge{{Type: Relates, From: idA, To: idB}}
	if _, err := idx.Apply(resolver, add, nil, noop, noopW, reindex); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if _, err := idx.Apply(resolver, add, nil, noop, noopW, reindex); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	edges, _ := idx.Load()
	if len(edges) != 1 {
		t.Fatalf("expected dedup to single edge, got %+v", edges)
	}
}

func TestValidateRejectsBadIds(t *testing.T) {
	if err := validateEntries([]Edge{{Type: Parent, From: "not-a-ulid", To: "ALSO-BAD"}}, false); err == nil {
		t.Fatal("expected invalid-argument for malformed ids")
	}
}

func TestValidateWildcardOnlyInRemoveParent(t *testing.T) {
	if err := validateEntries([]Edge{{Type: Parent, From: "01ARZ3NDEKTSV4RRFFQ69G5FAV", To: WildcardTo}}, false); err == nil {
		t.Fatal("expected wildcard rejected in add entries")
	}
	if err := validateEntries([]Edge{{Type: Depends, From: "01ARZ3NDEKTSV4RRFFQ69G5FAV", To: WildcardTo}}, true); err == nil {
		t.Fatal("expected wildcard rejected for non-parent type")
	}
}
