package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kanbanmcp/kanban-mcp/internal/cardindex"
	"github.com/kanbanmcp/kanban-mcp/internal/columns"
	"github.com/kanbanmcp/kanban-mcp/internal/config"
	"github.com/kanbanmcp/kanban-mcp/internal/idgen"
	"github.com/kanbanmcp/kanban-mcp/internal/relations"
)

const testColumnsTOML = `
[[columns]]
key = "backlog"
title = "Backlog"
wip_limit = 0

[[columns]]
key = "doing"
title = "Doing"
wip_limit = 1

[[columns]]
key = "done"
title = "Done"
wip_limit = 0
`

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".kanban"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg, err := columns.Parse([]byte(testColumnsTOML))
	if err != nil {
		t.Fatalf("parse columns: %v", err)
	}
	index := cardindex.New(filepath.Join(dir, ".kanban", "cards.ndjson"))
	rel := relations.New(filepath.Join(dir, ".kanban", "relations.ndjson"))
	s, err := New(dir, cfg, index, rel, idgen.New(), nil, config.CacheConfig{})
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	return s, dir
}

func TestNewHonorsConfiguredCacheTTL(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".kanban"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg, err := columns.Parse([]byte(testColumnsTOML))
	if err != nil {
		t.Fatalf("parse columns: %v", err)
	}
	index := cardindex.New(filepath.Join(dir, ".kanban", "cards.ndjson"))
	rel := relations.New(filepath.Join(dir, ".kanban", "relations.ndjson"))
	s, err := New(dir, cfg, index, rel, idgen.New(), nil, config.CacheConfig{TTL: 20 * time.Millisecond, MaxEntries: 10})
	if err != nil {
		t.Fatalf("New store: %v", err)
	}

	res, err := s.New(NewCardInput{Title: "TTL card", Column: "backlog"})
	if err != nil {
		t.Fatalf("New card: %v", err)
	}
	first, err := s.Get(res.Card.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first.Title != "TTL card" {
		t.Fatalf("unexpected title %q", first.Title)
	}

	abs := filepath.Join(dir, ".kanban", "backlog", res.Card.ID+"__ttl-card.md")
	mutated := "---\nid: " + res.Card.ID + "\ntitle: mutated on disk\n---\nbody\n"
	if err := os.WriteFile(abs, []byte(mutated), 0o644); err != nil {
		t.Fatalf("mutate card file: %v", err)
	}

	if stillCached, err := s.Get(res.Card.ID); err == nil && stillCached.Title != "TTL card" {
		t.Fatalf("expected the configured TTL to still be serving a cached read immediately after the write, got %q", stillCached.Title)
	}

	time.Sleep(60 * time.Millisecond)

	fresh, err := s.Get(res.Card.ID)
	if err != nil {
		t.Fatalf("Get after ttl expiry: %v", err)
	}
	if fresh.Title != "mutated on disk" {
		t.Fatalf("expected the configured 20ms TTL to have expired the cache entry, still got %q", fresh.Title)
	}
}

func TestCreateMoveDone(t *testing.T) {
	s, dir := newTestStore(t)

	res, err := s.New(NewCardInput{Title: "E2E_A", Column: "backlog"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	card := res.Card
	if card.ID == "" {
		t.Fatal("expected id to be assigned")
	}

	wantFile := filepath.Join(dir, ".kanban", "backlog", card.ID+"__e2e-a.md")
	if _, err := os.Stat(wantFile); err != nil {
		t.Fatalf("expected card file at %s: %v", wantFile, err)
	}

	records, err := s.index.Load()
	if err != nil || len(records) != 1 {
		t.Fatalf("expected 1 index record, got %+v err=%v", records, err)
	}

	if _, err := s.Move(card.ID, "doing"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".kanban", "doing", card.ID+"__e2e-a.md")); err != nil {
		t.Fatalf("expected card under doing/: %v", err)
	}

	doneRes, err := s.Done(card.ID)
	if err != nil {
		t.Fatalf("Done: %v", err)
	}
	rec, ok, err := s.index.Lookup(card.ID)
	if err != nil || !ok {
		t.Fatalf("Lookup after done: ok=%v err=%v", ok, err)
	}
	if rec.Column != "done" {
		t.Fatalf("expected column=done, got %q", rec.Column)
	}
	if rec.CompletedAt == "" {
		t.Fatal("expected completed_at set")
	}

	// Idempotent: calling Done again returns the same completed_at.
	doneRes2, err := s.Done(card.ID)
	if err != nil {
		t.Fatalf("second Done: %v", err)
	}
	const fmtRFC3339 = "2006-01-02T15:04:05Z07:00"
	if doneRes2.CompletedAt.Format(fmtRFC3339) != doneRes.CompletedAt.Format(fmtRFC3339) {
		t.Fatalf("expected same completed_at, got %v vs %v", doneRes2.CompletedAt, doneRes.CompletedAt)
	}
}

func TestUpdateBodyAppend(t *testing.T) {
	s, _ := newTestStore(t)

	res, err := s.New(NewCardInput{Title: "Body Card", Column: "backlog", Body: "hello"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id := res.Card.ID

	patch := Patch{Body: &BodyPatch{Text: "world", Replace: false}}
	upd, err := s.Update(id, patch)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if upd.Card.Body != "hello\nworld\n" {
		t.Fatalf("unexpected body after first append: %q", upd.Card.Body)
	}

	upd2, err := s.Update(id, patch)
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if upd2.Card.Body != "hello\nworld\nworld\n" {
		t.Fatalf("unexpected body after second append: %q", upd2.Card.Body)
	}
}

func TestMoveWIPWarnVsEnforce(t *testing.T) {
	s, _ := newTestStore(t)

	if _, err := s.New(NewCardInput{Title: "X", Column: "doing"}); err != nil {
		t.Fatalf("New X: %v", err)
	}

	yRes, err := s.New(NewCardInput{Title: "Y", Column: "backlog"})
	if err != nil {
		t.Fatalf("New Y: %v", err)
	}

	// warn: default WIPEnforce is "warn".
	moveRes, err := s.Move(yRes.Card.ID, "doing")
	if err != nil {
		t.Fatalf("expected warn-mode move to succeed: %v", err)
	}
	if len(moveRes.Warnings) == 0 {
		t.Fatal("expected WIP warning")
	}

	// error mode: new card, enforce.
	zRes, err := s.New(NewCardInput{Title: "Z", Column: "backlog"})
	if err != nil {
		t.Fatalf("New Z: %v", err)
	}
	s.columns.WIPEnforce = "error"
	if _, err := s.Move(zRes.Card.ID, "doing"); err == nil {
		t.Fatal("expected conflict in enforce mode")
	}
}

func TestRelationsSetWiresIntoStore(t *testing.T) {
	s, _ := newTestStore(t)

	pRes, err := s.New(NewCardInput{Title: "Parent", Column: "backlog"})
	if err != nil {
		t.Fatal(err)
	}
	cRes, err := s.New(NewCardInput{Title: "Child", Column: "backlog"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.RelationsSet([]relations.Edge{{Type: relations.Parent, From: cRes.Card.ID, To: pRes.Card.ID}}, nil)
	if err != nil {
		t.Fatalf("RelationsSet add: %v", err)
	}

	abs, err := s.absPath(mustRecPath(t, s, cRes.Card.ID))
	if err != nil {
		t.Fatal(err)
	}
	card, err := s.readCardAt(abs)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.EqualFold(card.Parent, pRes.Card.ID) {
		t.Fatalf("expected child's parent front matter to be set, got %q", card.Parent)
	}

	_, err = s.RelationsSet(nil, []relations.Edge{{Type: relations.Parent, From: cRes.Card.ID, To: relations.WildcardTo}})
	if err != nil {
		t.Fatalf("RelationsSet wildcard remove: %v", err)
	}
	card, err = s.readCardAt(abs)
	if err != nil {
		t.Fatal(err)
	}
	if card.Parent != "" {
		t.Fatalf("expected parent cleared, got %q", card.Parent)
	}
}

func TestReindexRebuildsBothIndexesFromCards(t *testing.T) {
	s, _ := newTestStore(t)

	pRes, err := s.New(NewCardInput{Title: "Parent", Column: "backlog"})
	if err != nil {
		t.Fatal(err)
	}
	cRes, err := s.New(NewCardInput{Title: "Child", Column: "backlog"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.RelationsSet([]relations.Edge{{Type: relations.Parent, From: cRes.Card.ID, To: pRes.Card.ID}}, nil); err != nil {
		t.Fatalf("RelationsSet: %v", err)
	}

	// Corrupt both indexes; Reindex must recover them from the card files.
	if err := s.index.Rewrite(nil); err != nil {
		t.Fatalf("clear index: %v", err)
	}
	if err := s.relations.Rewrite(nil); err != nil {
		t.Fatalf("clear relations: %v", err)
	}

	if err := s.Reindex(); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	records, err := s.index.Load()
	if err != nil || len(records) != 2 {
		t.Fatalf("expected 2 records after reindex, got %+v err=%v", records, err)
	}
	edges, err := s.relations.Load()
	if err != nil || len(edges) != 1 {
		t.Fatalf("expected 1 edge after reindex, got %+v err=%v", edges, err)
	}
}

func TestGetReflectsUpdateAfterCacheWarm(t *testing.T) {
	s, _ := newTestStore(t)

	res, err := s.New(NewCardInput{Title: "Cached Card", Column: "backlog"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id := res.Card.ID

	// Warm the read cache.
	if _, err := s.Get(id); err != nil {
		t.Fatalf("Get: %v", err)
	}

	fm := map[string]json.RawMessage{"lane": json.RawMessage(`"infra"`)}
	if _, err := s.Update(id, Patch{FM: fm}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	card, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if card.Lane != "infra" {
		t.Fatalf("expected cache to reflect the update, got lane %q", card.Lane)
	}
}

func mustRecPath(t *testing.T, s *Store, id string) string {
	t.Helper()
	rec, ok, err := s.index.Lookup(id)
	if err != nil || !ok {
		t.Fatalf("lookup %q: ok=%v err=%v", id, ok, err)
	}
	return rec.Path
}
