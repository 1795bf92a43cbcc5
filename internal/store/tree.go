package store

import (
	"sort"
	"strings"

	"github.com/kanbanmcp/kanban-mcp/internal/errs"
)

// TreeNode is one node of a Store.Tree result.
type TreeNode struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Column   string      `json:"column"`
	Children []*TreeNode `json:"children,omitempty"`
}

// Tree builds the subtree under root, depth-first, through parent→children edges (spec.md
// §4.7 tree), resolved from RelationsIndex grouped by `to` for type=parent.
func (s *Store) Tree(root string, depth int) (*TreeNode, error) {
	if depth < 0 {
		return nil, errs.Invalid("depth must be non-negative")
	}

	rec, ok, err := s.index.Lookup(root)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.NotFoundf("card %q not found", root)
	}

	records, err := s.index.Load()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]recordLite, len(records))
	for _, r := range records {
		byID[strings.ToUpper(r.ID)] = recordLite{Title: r.Title, Column: r.Column, CreatedAt: r.CreatedAt}
	}

	edges, err := s.relations.Load()
	if err != nil {
		return nil, err
	}
	childrenOf := map[string][]string{}
	for _, e := range edges {
		if e.Type != "parent" {
			continue
		}
		childrenOf[strings.ToUpper(e.To)] = append(childrenOf[strings.ToUpper(e.To)], strings.ToUpper(e.From))
	}
	for parent, kids := range childrenOf {
		sort.Slice(kids, func(i, j int) bool {
			ri, rj := byID[kids[i]], byID[kids[j]]
			if ri.CreatedAt != rj.CreatedAt {
				return ri.CreatedAt < rj.CreatedAt
			}
			return kids[i] < kids[j]
		})
		childrenOf[parent] = kids
	}

	root = strings.ToUpper(root)
	node := &TreeNode{ID: root, Title: rec.Title, Column: rec.Column}
	buildTree(node, childrenOf, byID, depth)
	return node, nil
}

type recordLite struct {
	Title     string
	Column    string
	CreatedAt string
}

func buildTree(node *TreeNode, childrenOf map[string][]string, byID map[string]recordLite, depthRemaining int) {
	if depthRemaining == 0 {
		return
	}
	for _, childID := range childrenOf[node.ID] {
		info := byID[childID]
		child := &TreeNode{ID: childID, Title: info.Title, Column: info.Column}
		buildTree(child, childrenOf, byID, depthRemaining-1)
		node.Children = append(node.Children, child)
	}
}
