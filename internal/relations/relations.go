// Package relations implements the parent (tree), depends (DAG), and
// relates (weak) edge sets of spec.md §4.6: diff-applied with dedup,
// parent-uniqueness and acyclicity enforcement, and a full-reindex
// fallback on partial failure. Edges are stored as NDJSON, one per line,
// so the on-disk form stays append-friendly and dedup-cheap (§9).
package relations

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/kanbanmcp/kanban-mcp/internal/cardfile"
	"github.com/kanbanmcp/kanban-mcp/internal/errs"
	"github.com/kanbanmcp/kanban-mcp/internal/idgen"
)

type Type string

const (
	Parent  Type = "parent"
	Depends Type = "depends"
	Relates Type = "relates"
)

// WildcardTo is the only accepted non-ULID "to" value, and only in a
// remove entry with type=parent.
const WildcardTo = "*"

// Edge is one typed relation row.
type Edge struct {
	Type Type   `json:"type"`
	From string `json:"from"`
	To   string `json:"to"`
}

func (e Edge) key() string { return string(e.Type) + "\x00" + e.From + "\x00" + e.To }

// Index is the in-memory view of relations.ndjson.
type Index struct {
	path string
}

// New returns an Index bound to ndjsonPath (".kanban/relations.ndjson").
func New(ndjsonPath string) *Index {
	return &Index{path: ndjsonPath}
}

// Load reads all edges from disk, sorted by (type, from, to).
func (idx *Index) Load() ([]Edge, error) {
	f, err := os.Open(idx.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.WrapInternal(err, "open relations index %q", idx.path)
	}
	defer f.Close()

	var edges []Edge
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Edge
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, errs.WrapInternal(err, "parse relations index line")
		}
		e.From = strings.ToUpper(e.From)
		if e.To != WildcardTo {
			e.To = strings.ToUpper(e.To)
		}
		edges = append(edges, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.WrapInternal(err, "scan relations index %q", idx.path)
	}

	sortEdges(edges)
	return edges, nil
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Type != edges[j].Type {
			return edges[i].Type < edges[j].Type
		}
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
}

// Rewrite persists edges atomically as the new complete edge set,
// bypassing the diff-apply invariant checks. Used by the CLI's reindex
// subcommand, which re-derives edges from card front matter directly.
func (idx *Index) Rewrite(edges []Edge) error {
	return idx.rewrite(edges)
}

// rewrite persists edges atomically, sorted by (type, from, to).
func (idx *Index) rewrite(edges []Edge) error {
	sortEdges(edges)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, e := range edges {
		if err := enc.Encode(e); err != nil {
			return errs.WrapInternal(err, "encode relation edge")
		}
	}

	_, err := cardfile.WriteAtomic(idx.path, buf.Bytes(), cardfile.WriteOptions{AllowOverwrite: true})
	return err
}

// CardResolver is the minimal card lookup surface Apply needs: whether an
// id exists (I6) and the .kanban-relative path of its file, so changed
// parents can be written back to front matter (step 6).
type CardResolver interface {
	Exists(id string) bool
	RelPath(id string) (string, bool)
}

// ApplyResult reports the outcome of a successful Apply, including any
// warnings accumulated along the way (e.g. a fallback full reindex).
type ApplyResult struct {
	Warnings []string `json:"warnings,omitempty"`
}

// Apply implements the diff-application algorithm of spec.md §4.6 steps
// 1-7. readCard/writeCard let the caller supply its own card-file I/O
// (already confined through a PathGuard) without this package importing
// path-resolution concerns.
func (idx *Index) Apply(
	resolver CardResolver,
	add, remove []Edge,
	readCard func(relPath string) (*cardfile.Card, error),
	writeCard func(relPath string, card *cardfile.Card) error,
	reindex func() ([]Edge, error),
) (*ApplyResult, error) {
	if err := validateEntries(add, false); err != nil {
		return nil, err
	}
	if err := validateEntries(remove, true); err != nil {
		return nil, err
	}
	for _, e := range append(append([]Edge{}, add...), remove...) {
		if e.To == WildcardTo {
			continue
		}
		if !resolver.Exists(e.From) {
			return nil, errs.NotFoundf("relation endpoint %q does not exist", e.From)
		}
		if !resolver.Exists(e.To) {
			return nil, errs.NotFoundf("relation endpoint %q does not exist", e.To)
		}
	}

	current, err := idx.Load()
	if err != nil {
		return nil, err
	}

	result, err := computeResultSet(current, add, remove)
	if err != nil {
		return nil, err
	}

	if err := enforceParentUniqueness(result, add); err != nil {
		return nil, err
	}
	if err := enforceNoParentCycle(result); err != nil {
		return nil, err
	}
	if err := enforceNoDependsCycle(result); err != nil {
		return nil, err
	}

	changedParents := changedParentChildren(current, result)
	parentAfter := map[string]string{}
	for _, e := range result {
		if e.Type == Parent {
			parentAfter[e.From] = e.To
		}
	}

	var warnings []string
	if err := idx.applyParentWrites(changedParents, parentAfter, resolver, readCard, writeCard); err != nil {
		// Partial-failure fallback: the front-matter update may have
		// partially landed; re-derive all edges from disk and treat the
		// reindex as authoritative.
		rebuilt, rerr := reindex()
		if rerr != nil {
			return nil, errs.WrapInternal(err, "relations update failed and fallback reindex also failed: %v", rerr)
		}
		if err2 := idx.rewrite(rebuilt); err2 != nil {
			return nil, errs.WrapInternal(err, "relations update failed and fallback reindex could not persist: %v", err2)
		}
		warnings = append(warnings, "relations: incremental update failed; ran full reindex")
		return &ApplyResult{Warnings: warnings}, nil
	}

	if err := idx.rewrite(result); err != nil {
		return nil, err
	}

	return &ApplyResult{Warnings: warnings}, nil
}

func validateEntries(entries []Edge, isRemove bool) error {
	for _, e := range entries {
		switch e.Type {
		case Parent, Depends, Relates:
		default:
			return errs.Invalid("unknown relation type %q", e.Type)
		}
		if !idgen.Valid(e.From) {
			return errs.Invalid("relation 'from' is not a valid id: %q", e.From)
		}
		if e.To == WildcardTo {
			if !isRemove || e.Type != Parent {
				return errs.Invalid(`wildcard "to" only valid in remove entries of type parent`)
			}
			continue
		}
		if !idgen.Valid(e.To) {
			return errs.Invalid("relation 'to' is not a valid id: %q", e.To)
		}
	}
	return nil
}

// computeResultSet starts from current, deletes matches from remove
// (expanding parent wildcards), adds entries from add, and dedups by the
// triple (type, from, to).
func computeResultSet(current, add, remove []Edge) ([]Edge, error) {
	removeSet := map[string]bool{}
	wildcardParentFrom := map[string]bool{}
	for _, e := range remove {
		if e.Type == Parent && e.To == WildcardTo {
			wildcardParentFrom[e.From] = true
			continue
		}
		removeSet[e.key()] = true
	}

	seen := map[string]bool{}
	var result []Edge
	for _, e := range current {
		if e.Type == Parent && wildcardParentFrom[e.From] {
			continue
		}
		if removeSet[e.key()] {
			continue
		}
		if seen[e.key()] {
			continue
		}
		seen[e.key()] = true
		result = append(result, e)
	}
	for _, e := range add {
		if seen[e.key()] {
			continue
		}
		seen[e.key()] = true
		result = append(result, e)
	}
	return result, nil
}

// enforceParentUniqueness rejects a result set where `add` introduced a
// second parent for any child (I3).
func enforceParentUniqueness(result []Edge, add []Edge) error {
	parentOf := map[string][]string{}
	for _, e := range result {
		if e.Type == Parent {
			parentOf[e.From] = append(parentOf[e.From], e.To)
		}
	}
	for _, e := range add {
		if e.Type != Parent {
			continue
		}
		if len(parentOf[e.From]) > 1 {
			return errs.Conflictf("card %q would have multiple parents", e.From)
		}
	}
	for child, parents := range parentOf {
		if len(parents) > 1 {
			return errs.Conflictf("card %q has multiple parents: %v", child, parents)
		}
	}
	return nil
}

// enforceNoParentCycle runs a DFS from each child through parent edges,
// rejecting cycles or self-parenting (I4).
func enforceNoParentCycle(result []Edge) error {
	parentOf := map[string]string{}
	for _, e := range result {
		if e.Type == Parent {
			parentOf[e.From] = e.To
		}
	}
	for child := range parentOf {
		visited := map[string]bool{}
		cur := child
		for {
			if cur == child && visited[cur] {
				return errs.Conflictf("parent cycle detected involving %q", child)
			}
			if visited[cur] {
				break
			}
			visited[cur] = true
			next, ok := parentOf[cur]
			if !ok {
				break
			}
			if next == cur {
				return errs.Conflictf("card %q cannot be its own parent", cur)
			}
			cur = next
		}
	}
	return nil
}

// enforceNoDependsCycle runs Kahn's algorithm over the depends edges,
// rejecting a cycle (I5).
func enforceNoDependsCycle(result []Edge) error {
	inDegree := map[string]int{}
	adj := map[string][]string{}
	nodes := map[string]bool{}

	for _, e := range result {
		if e.Type != Depends {
			continue
		}
		nodes[e.From] = true
		nodes[e.To] = true
		adj[e.From] = append(adj[e.From], e.To)
		inDegree[e.To]++
	}

	var queue []string
	for n := range nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	sort.Strings(queue)

	visitedCount := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visitedCount++
		var next []string
		for _, m := range adj[n] {
			inDegree[m]--
			if inDegree[m] == 0 {
				next = append(next, m)
			}
		}
		sort.Strings(next)
		queue = append(queue, next...)
	}

	if visitedCount != len(nodes) {
		return errs.Conflictf("depends graph contains a cycle")
	}
	return nil
}

// changedParentChildren returns the set of children whose parent edge
// differs between before and after.
func changedParentChildren(before, after []Edge) []string {
	parentBefore := map[string]string{}
	for _, e := range before {
		if e.Type == Parent {
			parentBefore[e.From] = e.To
		}
	}
	parentAfter := map[string]string{}
	for _, e := range after {
		if e.Type == Parent {
			parentAfter[e.From] = e.To
		}
	}

	changedSet := map[string]bool{}
	for child, p := range parentBefore {
		if parentAfter[child] != p {
			changedSet[child] = true
		}
	}
	for child, p := range parentAfter {
		if parentBefore[child] != p {
			changedSet[child] = true
		}
	}

	changed := make([]string, 0, len(changedSet))
	for c := range changedSet {
		changed = append(changed, c)
	}
	sort.Strings(changed)
	return changed
}

func (idx *Index) applyParentWrites(
	changedParents []string,
	parentAfter map[string]string,
	resolver CardResolver,
	readCard func(relPath string) (*cardfile.Card, error),
	writeCard func(relPath string, card *cardfile.Card) error,
) error {
	for _, child := range changedParents {
		relPath, ok := resolver.RelPath(child)
		if !ok {
			return errs.Internalf("no path recorded for changed-parent child %q", child)
		}
		card, err := readCard(relPath)
		if err != nil {
			return err
		}
		card.Parent = parentAfter[child] // empty string if removed
		if err := writeCard(relPath, card); err != nil {
			return err
		}
	}
	return nil
}
