package cardfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kanbanmcp/kanban-mcp/internal/errs"
)

// WriteOptions controls the atomic write contract (spec.md §4.3).
type WriteOptions struct {
	TmpSuffix            string // default ".tmp"
	AutoRenameOnConflict bool
	RenameSuffix         string // default "-dup"
	// AllowOverwrite permits writing to a target that already exists
	// without treating that as a conflict (used when rewriting a card
	// file we already own, e.g. update/relations).
	AllowOverwrite bool
}

// WriteResult reports what actually happened, including any rename that
// occurred due to a filename conflict.
type WriteResult struct {
	FinalPath string
	Renamed   bool
	Warning   string
}

// WriteAtomic writes content to target via write-to-tmp, fsync, rename. If
// target already exists and neither AllowOverwrite nor
// AutoRenameOnConflict is set, it fails with conflict. If
// AutoRenameOnConflict is set, it retries at
// "<stem><renameSuffix><n><ext>" for ascending n until an unused path is
// found. On any failure, no partial file is left at the final path.
func WriteAtomic(target string, content []byte, opts WriteOptions) (*WriteResult, error) {
	tmpSuffix := opts.TmpSuffix
	if tmpSuffix == "" {
		tmpSuffix = ".tmp"
	}
	renameSuffix := opts.RenameSuffix
	if renameSuffix == "" {
		renameSuffix = "-dup"
	}

	exists := fileExists(target)
	if exists && !opts.AllowOverwrite {
		if !opts.AutoRenameOnConflict {
			return nil, errs.Conflictf("target already exists: %q", target)
		}
		return writeWithRename(target, content, tmpSuffix, renameSuffix)
	}

	return writeOnce(target, content, tmpSuffix)
}

func writeWithRename(target string, content []byte, tmpSuffix, renameSuffix string) (*WriteResult, error) {
	dir := filepath.Dir(target)
	base := filepath.Base(target)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for n := 1; n <= 1000; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s%s%d%s", stem, renameSuffix, n, ext))
		if fileExists(candidate) {
			continue
		}
		r, err := writeOnce(candidate, content, tmpSuffix)
		if err != nil {
			return nil, err
		}
		r.Renamed = true
		r.Warning = fmt.Sprintf("rename target exists; wrote to %s", candidate)
		return r, nil
	}
	return nil, errs.Conflictf("exhausted rename attempts for %q", target)
}

func fileExists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

// writeOnce performs the write-tmp/fsync/rename sequence to exactly one
// path, with no conflict handling.
func writeOnce(target string, content []byte, tmpSuffix string) (*WriteResult, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.WrapInternal(err, "create directory %q", dir)
	}

	tmp := target + tmpSuffix
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errs.WrapInternal(err, "open tmp file %q", tmp)
	}

	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, errs.WrapInternal(err, "write tmp file %q", tmp)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, errs.WrapInternal(err, "fsync tmp file %q", tmp)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, errs.WrapInternal(err, "close tmp file %q", tmp)
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return nil, errs.WrapInternal(err, "rename tmp file to %q", target)
	}

	return &WriteResult{FinalPath: target}, nil
}
