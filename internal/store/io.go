package store

import (
	"os"
	"path/filepath"

	"github.com/kanbanmcp/kanban-mcp/internal/cardfile"
	"github.com/kanbanmcp/kanban-mcp/internal/errs"
)

func readFile(abs string) ([]byte, error) {
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NotFoundf("card file %q not found", abs)
		}
		return nil, errs.WrapInternal(err, "read card file %q", abs)
	}
	return data, nil
}

// writeCardAt renders card and writes it atomically to abs.
func writeCardAt(abs string, card *cardfile.Card, opts cardfile.WriteOptions) (*cardfile.WriteResult, error) {
	data, err := cardfile.Render(card)
	if err != nil {
		return nil, err
	}
	return cardfile.WriteAtomic(abs, data, opts)
}

// renameNoContentChange moves a file whose bytes are not changing (plain
// column move). The destination must not already exist.
func renameNoContentChange(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return errs.Conflictf("move target already exists: %q", dst)
	} else if !os.IsNotExist(err) {
		return errs.WrapInternal(err, "stat move target %q", dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errs.WrapInternal(err, "create directory for %q", dst)
	}
	if err := os.Rename(src, dst); err != nil {
		return errs.WrapInternal(err, "rename %q to %q", src, dst)
	}
	return nil
}

// replaceWithNewContent writes card's rendered bytes to dst (which must not
// exist) then removes src — used when a move also changes front matter
// (e.g. completed_at on transition into/out of done).
func replaceWithNewContent(src, dst string, card *cardfile.Card) error {
	if _, err := writeCardAt(dst, card, cardfile.WriteOptions{}); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return errs.WrapInternal(err, "remove old card file %q", src)
	}
	return nil
}
