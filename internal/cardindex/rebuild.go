package cardindex

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/kanbanmcp/kanban-mcp/internal/cardfile"
	"github.com/kanbanmcp/kanban-mcp/internal/errs"
	"github.com/kanbanmcp/kanban-mcp/internal/idgen"
)

var cardFilePattern = regexp.MustCompile(`^([0-9A-HJKMNP-TV-Z]{26})__.*\.md$`)

// Rebuild walks hotColumns always, and coldColumns only when
// includeCold is true, emitting one Record per `<ULID>__*.md` file found.
// Records are returned sorted by id for determinism (spec.md §4.5).
func Rebuild(boardRoot string, hotColumns, coldColumns []string, includeCold bool) ([]Record, error) {
	kanbanDir := filepath.Join(boardRoot, ".kanban")

	var records []Record
	seen := map[string]bool{}
	scan := func(columnKey string) error {
		columnDir := filepath.Join(kanbanDir, columnKey)
		return walkColumn(kanbanDir, columnDir, columnKey, seen, &records)
	}

	for _, col := range hotColumns {
		if err := scan(col); err != nil {
			return nil, err
		}
	}
	if includeCold {
		for _, col := range coldColumns {
			if err := scan(col); err != nil {
				return nil, err
			}
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// walkColumn appends one Record per `<ULID>__*.md` file under columnDir.
// seen tracks ids already emitted by this Rebuild (across every column
// scanned so far) so a duplicate id left behind by a crashed non-atomic
// rename (internal/store's replaceWithNewContent writes the new file before
// removing the old one) produces one record, not two.
func walkColumn(kanbanDir, columnDir, columnKey string, seen map[string]bool, out *[]Record) error {
	return filepath.WalkDir(columnDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		m := cardFilePattern.FindStringSubmatch(base)
		if m == nil {
			return nil
		}
		id := strings.ToUpper(m[1])
		if !idgen.Valid(id) {
			return nil
		}
		if seen[id] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return errs.WrapInternal(err, "stat card file %q", path)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return errs.WrapInternal(err, "read card file %q", path)
		}
		card, err := cardfile.Parse(data)
		if err != nil {
			return errs.WrapInvalid(err, "parse card file %q", path)
		}

		rel, err := filepath.Rel(kanbanDir, path)
		if err != nil {
			return errs.WrapInternal(err, "relativize card path %q", path)
		}

		rec := Record{
			ID:        strings.ToUpper(card.ID),
			Title:     card.Title,
			Column:    columnKey,
			Lane:      card.Lane,
			Assignees: card.Assignees,
			Labels:    card.Labels,
			Path:      filepath.ToSlash(rel),
		}
		if card.CreatedAt != nil {
			rec.CreatedAt = card.CreatedAt.Format(rfc3339)
		}
		if card.CompletedAt != nil {
			rec.CompletedAt = card.CompletedAt.Format(rfc3339)
		}
		rec.UpdatedAt = info.ModTime().UTC().Format(rfc3339)

		seen[id] = true
		*out = append(*out, rec)
		return nil
	})
}

const rfc3339 = "2006-01-02T15:04:05Z07:00"
