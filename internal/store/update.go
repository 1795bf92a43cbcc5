package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kanbanmcp/kanban-mcp/internal/cardfile"
	"github.com/kanbanmcp/kanban-mcp/internal/errs"
	"github.com/kanbanmcp/kanban-mcp/internal/pathguard"
)

// BodyPatch is patch.body from spec.md §4.7 update.
type BodyPatch struct {
	Text    string `json:"text"`
	Replace bool   `json:"replace"`
}

// Patch is the merge-by-key update payload. FM values are raw JSON so a
// present-but-null key (clear) can be told apart from an absent key (keep).
type Patch struct {
	FM   map[string]json.RawMessage `json:"fm"`
	Body *BodyPatch                 `json:"body"`
}

// UpdateResult is returned by Store.Update.
type UpdateResult struct {
	Card     *cardfile.Card `json:"card"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Update merges patch into the card's front matter and/or body (spec.md
// §4.7 update). A title change may rename the underlying file.
func (s *Store) Update(cardID string, patch Patch) (*UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok, err := s.index.Lookup(cardID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.NotFoundf("card %q not found", cardID)
	}

	srcAbs, err := s.absPath(rec.Path)
	if err != nil {
		return nil, err
	}
	card, err := s.readCardForWrite(srcAbs)
	if err != nil {
		return nil, err
	}

	if err := applyFMPatch(card, patch.FM); err != nil {
		return nil, err
	}
	if patch.Body != nil {
		if err := applyBodyPatch(card, *patch.Body); err != nil {
			return nil, err
		}
	}

	var warnings []string
	dstAbs := srcAbs
	relPath := rec.Path

	newSlug := pathguard.Slug(card.Title)
	newFilename := card.ID + "__" + newSlug + ".md"
	if newFilename != filepath.Base(rec.Path) {
		dir := filepath.Dir(rec.Path)
		newRelPath := filepath.Join(dir, newFilename)
		newAbs, err := s.absPath(newRelPath)
		if err != nil {
			return nil, err
		}
		if fileExistsAt(newAbs) {
			if s.columns.AutoRenameOnConflict {
				renamedAbs, renamedRel, werr := renameWithSuffix(dir, newFilename, s.columns.RenameSuffix, s.absPath)
				if werr != nil {
					return nil, werr
				}
				warnings = append(warnings, "rename target exists; wrote to "+renamedRel)
				dstAbs = renamedAbs
				relPath = renamedRel
			} else {
				warnings = append(warnings, "rename target exists; kept original filename: "+filepath.ToSlash(newRelPath))
			}
		} else {
			dstAbs = newAbs
			relPath = filepath.ToSlash(newRelPath)
		}
	}

	if dstAbs == srcAbs {
		if _, err := writeCardAt(dstAbs, card, cardfile.WriteOptions{AllowOverwrite: true}); err != nil {
			return nil, err
		}
	} else {
		if err := replaceWithNewContent(srcAbs, dstAbs, card); err != nil {
			return nil, err
		}
	}

	newRec := rec
	newRec.Title = card.Title
	newRec.Lane = card.Lane
	newRec.Assignees = card.Assignees
	newRec.Labels = card.Labels
	newRec.CreatedAt = rfc3339OrEmpty(card.CreatedAt)
	newRec.CompletedAt = rfc3339OrEmpty(card.CompletedAt)
	newRec.Path = relPath
	newRec.UpdatedAt = nowRFC3339()
	if err := s.index.Upsert(newRec); err != nil {
		return nil, err
	}

	s.invalidateCard(srcAbs, dstAbs)
	s.publishCardMutation(card.ID)

	return &UpdateResult{Card: card, Warnings: warnings}, nil
}

func fileExistsAt(abs string) bool {
	_, err := os.Stat(abs)
	return err == nil
}

func applyTimePatch(card *cardfile.Card, key string, raw json.RawMessage, isNull bool) error {
	var dst **time.Time
	switch key {
	case "created_at":
		dst = &card.CreatedAt
	case "completed_at":
		dst = &card.CompletedAt
	case "last_note_at":
		dst = &card.LastNoteAt
	}
	if isNull {
		*dst = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return errs.WrapInvalid(err, "decode patch field %q", key)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return errs.WrapInvalid(err, "parse RFC3339 patch field %q", key)
	}
	*dst = &t
	return nil
}

// renameWithSuffix finds the first "<stem><suffix><n><ext>" name in dir
// that doesn't already exist and returns its absolute and relative paths.
func renameWithSuffix(dir, filename, suffix string, resolve func(string) (string, error)) (string, string, error) {
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	for n := 1; n <= 1000; n++ {
		candidateRel := filepath.Join(dir, stem+suffix+strconv.Itoa(n)+ext)
		abs, err := resolve(candidateRel)
		if err != nil {
			return "", "", err
		}
		if !fileExistsAt(abs) {
			return abs, filepath.ToSlash(candidateRel), nil
		}
	}
	return "", "", errs.Conflictf("exhausted rename attempts for %q", filename)
}

func applyFMPatch(card *cardfile.Card, fm map[string]json.RawMessage) error {
	for key, raw := range fm {
		isNull := string(raw) == "null"
		isEmptyArray := string(raw) == "[]"
		switch key {
		case "title":
			if isNull {
				return errs.Invalid("title cannot be cleared")
			}
			if err := json.Unmarshal(raw, &card.Title); err != nil {
				return errs.WrapInvalid(err, "decode patch field %q", key)
			}
		case "lane":
			if isNull {
				card.Lane = ""
				continue
			}
			if err := json.Unmarshal(raw, &card.Lane); err != nil {
				return errs.WrapInvalid(err, "decode patch field %q", key)
			}
		case "priority":
			if isNull {
				return errs.Invalid("priority cannot be cleared")
			}
			var p string
			if err := json.Unmarshal(raw, &p); err != nil {
				return errs.WrapInvalid(err, "decode patch field %q", key)
			}
			if !ValidatePriority(p) {
				return errs.Invalid("malformed priority %q", p)
			}
			card.Priority = p
		case "size":
			if isNull {
				card.Size = 0
				continue
			}
			if err := json.Unmarshal(raw, &card.Size); err != nil {
				return errs.WrapInvalid(err, "decode patch field %q", key)
			}
			if card.Size < 0 {
				return errs.Invalid("size must be non-negative")
			}
		case "assignees":
			if isNull || isEmptyArray {
				card.Assignees = nil
				continue
			}
			if err := json.Unmarshal(raw, &card.Assignees); err != nil {
				return errs.WrapInvalid(err, "decode patch field %q", key)
			}
		case "labels":
			if isNull || isEmptyArray {
				card.Labels = nil
				continue
			}
			if err := json.Unmarshal(raw, &card.Labels); err != nil {
				return errs.WrapInvalid(err, "decode patch field %q", key)
			}
		case "depends_on":
			if isNull || isEmptyArray {
				card.DependsOn = nil
				continue
			}
			if err := json.Unmarshal(raw, &card.DependsOn); err != nil {
				return errs.WrapInvalid(err, "decode patch field %q", key)
			}
		case "parent":
			if isNull {
				card.Parent = ""
				continue
			}
			if err := json.Unmarshal(raw, &card.Parent); err != nil {
				return errs.WrapInvalid(err, "decode patch field %q", key)
			}
		case "relates_to":
			if isNull || isEmptyArray {
				card.RelatesTo = nil
				continue
			}
			if err := json.Unmarshal(raw, &card.RelatesTo); err != nil {
				return errs.WrapInvalid(err, "decode patch field %q", key)
			}
		case "resume_hint":
			if isNull {
				card.ResumeHint = ""
				continue
			}
			if err := json.Unmarshal(raw, &card.ResumeHint); err != nil {
				return errs.WrapInvalid(err, "decode patch field %q", key)
			}
		case "next_steps":
			if isNull || isEmptyArray {
				card.NextSteps = nil
				continue
			}
			if err := json.Unmarshal(raw, &card.NextSteps); err != nil {
				return errs.WrapInvalid(err, "decode patch field %q", key)
			}
		case "blockers":
			if isNull || isEmptyArray {
				card.Blockers = nil
				continue
			}
			if err := json.Unmarshal(raw, &card.Blockers); err != nil {
				return errs.WrapInvalid(err, "decode patch field %q", key)
			}
		case "created_at", "completed_at", "last_note_at":
			if err := applyTimePatch(card, key, raw, isNull); err != nil {
				return err
			}
		default:
			return errs.Invalid("unknown patch field %q", key)
		}
	}
	return nil
}

func applyBodyPatch(card *cardfile.Card, patch BodyPatch) error {
	if patch.Replace {
		card.Body = patch.Text
		return nil
	}
	if card.Body != "" && !strings.HasSuffix(card.Body, "\n") {
		card.Body += "\n"
	}
	card.Body += patch.Text + "\n"
	return nil
}
