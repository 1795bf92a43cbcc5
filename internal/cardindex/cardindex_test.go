package cardindex

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestUpsertAndLookup(t *testing.T) {
	dir := t.TempDir()
	idx := New(filepath.Join(dir, "cards.ndjson"))

	rec := Record{ID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", Title: "A", Column: "backlog", Path: "backlog/x.md"}
	if err := idx.Upsert(rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, ok, err := idx.Lookup("01arz3ndektsv4rrffq69g5fav")
	if err != nil || !ok {
		t.Fatalf("Lookup: ok=%v err=%v", ok, err)
	}
	if got.Title != "A" {
		t.Fatalf("got title %q", got.Title)
	}
}

func TestUpsertReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	idx := New(filepath.Join(dir, "cards.ndjson"))

	id := "01ARZ3NDEKTSV4RRFFQ69G5FAV"
	if err := idx.Upsert(Record{ID: id, Title: "First", Path: "x.md"}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(Record{ID: id, Title: "Second", Path: "x.md"}); err != nil {
		t.Fatal(err)
	}

	records, err := idx.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Title != "Second" {
		t.Fatalf("expected single replaced record, got %+v", records)
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	idx := New(filepath.Join(dir, "cards.ndjson"))

	if err := idx.Upsert(Record{ID: "A", Path: "a.md"}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(Record{ID: "B", Path: "b.md"}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Remove("a"); err != nil {
		t.Fatal(err)
	}
	records, err := idx.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != "B" {
		t.Fatalf("expected only B remaining, got %+v", records)
	}
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	idx := New(filepath.Join(dir, "missing.ndjson"))
	records, err := idx.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if records != nil {
		t.Fatalf("expected nil records, got %+v", records)
	}
}

func TestRebuild(t *testing.T) {
	dir := t.TempDir()
	kanban := filepath.Join(dir, ".kanban")
	backlog := filepath.Join(kanban, "backlog")
	if err := os.MkdirAll(backlog, 0o755); err != nil {
		t.Fatal(err)
	}
	card := "---\nid: 01ARZ3NDEKTSV4RRFFQ69G5FAV\ntitle: Hello\nlane: eng\npriority: P1\nsize: 2\n---\nbody\n"
	if err := os.WriteFile(filepath.Join(backlog, "01ARZ3NDEKTSV4RRFFQ69G5FAV__hello.md"), []byte(card), 0o644); err != nil {
		t.Fatal(err)
	}
	// Non-card file should be ignored.
	if err := os.WriteFile(filepath.Join(backlog, "README.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := Rebuild(dir, []string{"backlog"}, []string{"done"}, false)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d: %+v", len(records), records)
	}
	if records[0].ID != "01ARZ3NDEKTSV4RRFFQ69G5FAV" || records[0].Column != "backlog" {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}

func TestRebuildUpdatedAtIsFileModTimeNotCreatedAt(t *testing.T) {
	dir := t.TempDir()
	kanban := filepath.Join(dir, ".kanban")
	backlog := filepath.Join(kanban, "backlog")
	if err := os.MkdirAll(backlog, 0o755); err != nil {
		t.Fatal(err)
	}
	card := "---\nid: 01ARZ3NDEKTSV4RRFFQ69G5FAV\ntitle: Hello\ncreated_at: 2020-01-01T00:00:00Z\n---\nbody\n"
	path := filepath.Join(backlog, "01ARZ3NDEKTSV4RRFFQ69G5FAV__hello.md")
	if err := os.WriteFile(path, []byte(card), 0o644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	records, err := Rebuild(dir, []string{"backlog"}, nil, false)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].UpdatedAt == records[0].CreatedAt {
		t.Fatalf("expected UpdatedAt to reflect file mtime, not CreatedAt: %+v", records[0])
	}
	if got, err := time.Parse(rfc3339, records[0].UpdatedAt); err != nil || !got.Equal(mtime) {
		t.Fatalf("UpdatedAt = %q, want %v (err=%v)", records[0].UpdatedAt, mtime, err)
	}
}

func TestRebuildDedupsDuplicateIDAcrossColumns(t *testing.T) {
	dir := t.TempDir()
	kanban := filepath.Join(dir, ".kanban")
	backlog := filepath.Join(kanban, "backlog")
	doing := filepath.Join(kanban, "doing")
	if err := os.MkdirAll(backlog, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(doing, 0o755); err != nil {
		t.Fatal(err)
	}

	// Simulate a crashed non-atomic move: the new file landed in "doing"
	// before the old one in "backlog" was removed, leaving one card id
	// present under two columns at once.
	card := "---\nid: 01ARZ3NDEKTSV4RRFFQ69G5FAV\ntitle: Hello\n---\nbody\n"
	if err := os.WriteFile(filepath.Join(backlog, "01ARZ3NDEKTSV4RRFFQ69G5FAV__hello.md"), []byte(card), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(doing, "01ARZ3NDEKTSV4RRFFQ69G5FAV__hello.md"), []byte(card), 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := Rebuild(dir, []string{"backlog", "doing"}, nil, false)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected duplicate id to collapse to 1 record, got %d: %+v", len(records), records)
	}
	if records[0].Column != "backlog" {
		t.Fatalf("expected the first-scanned column to win, got %+v", records[0])
	}
}
