// Package cardindex maintains .kanban/cards.ndjson, the crash-safe cache of
// minimal card metadata (spec.md §4.5). Every mutation is a full
// read-modify-write-tmp-rename cycle so a reader always observes either
// the complete old file or the complete new one (§5 MVCC via rename).
package cardindex

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/kanbanmcp/kanban-mcp/internal/cardfile"
	"github.com/kanbanmcp/kanban-mcp/internal/errs"
)

// Record is one line of cards.ndjson.
type Record struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Column      string   `json:"column"`
	Lane        string   `json:"lane"`
	Assignees   []string `json:"assignees,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
	CompletedAt string   `json:"completed_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
	Path        string   `json:"path"` // relative to the board's .kanban directory
}

// Index is the in-memory view of cards.ndjson plus the path used to
// persist it. All mutating methods rewrite the whole file atomically.
type Index struct {
	path string
}

// New returns an Index bound to ndjsonPath (".kanban/cards.ndjson").
func New(ndjsonPath string) *Index {
	return &Index{path: ndjsonPath}
}

// Load reads all records from disk, sorted by id.
func (idx *Index) Load() ([]Record, error) {
	f, err := os.Open(idx.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.WrapInternal(err, "open card index %q", idx.path)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, errs.WrapInternal(err, "parse card index line")
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.WrapInternal(err, "scan card index %q", idx.path)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// Lookup performs a linear scan for id, case-insensitively (spec.md §4.5:
// acceptable for the expected card count range; callers may cache
// per-request).
func (idx *Index) Lookup(id string) (Record, bool, error) {
	records, err := idx.Load()
	if err != nil {
		return Record{}, false, err
	}
	for _, r := range records {
		if strings.EqualFold(r.ID, id) {
			return r, true, nil
		}
	}
	return Record{}, false, nil
}

// Upsert replaces the record matching rec.ID (case-insensitively), or
// appends it if absent, then rewrites the whole file atomically.
func (idx *Index) Upsert(rec Record) error {
	records, err := idx.Load()
	if err != nil {
		return err
	}

	found := false
	for i := range records {
		if strings.EqualFold(records[i].ID, rec.ID) {
			records[i] = rec
			found = true
			break
		}
	}
	if !found {
		records = append(records, rec)
	}

	return idx.rewrite(records)
}

// Remove omits the record matching id from the index.
func (idx *Index) Remove(id string) error {
	records, err := idx.Load()
	if err != nil {
		return err
	}
	out := records[:0]
	for _, r := range records {
		if !strings.EqualFold(r.ID, id) {
			out = append(out, r)
		}
	}
	return idx.rewrite(out)
}

// Rewrite persists records as the new complete index content, bypassing
// the load-merge-upsert cycle. Used by the CLI's reindex subcommand,
// which already has the authoritative record set from a filesystem walk.
func (idx *Index) Rewrite(records []Record) error {
	return idx.rewrite(records)
}

// rewrite performs the full read-all/write-tmp/rename cycle (crash-safe:
// readers see either the full old file or the full new one).
func (idx *Index) rewrite(records []Record) error {
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return errs.WrapInternal(err, "encode card index record %q", r.ID)
		}
	}

	// cards.ndjson shares its crash-safety implementation with card files:
	// write-tmp, fsync, rename.
	_, err := cardfile.WriteAtomic(idx.path, buf.Bytes(), cardfile.WriteOptions{AllowOverwrite: true})
	return err
}
