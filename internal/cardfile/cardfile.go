// Package cardfile parses and serializes the Markdown+YAML-frontmatter
// files that back a card (spec.md §3, §4.3). It generalizes the teacher's
// internal/marshal/frontmatter.go split/render approach from a
// map[string]any frontmatter to the fixed kanban card schema, adding
// stable key ordering and round-trip fidelity for unknown keys (R1).
package cardfile

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kanbanmcp/kanban-mcp/internal/errs"
)

const delimiter = "---"

// requiredOrder and recommendedOrder pin the stable serialization order
// from spec.md §3 / §4.3: required fields first, then recommended, then
// unknown keys in the order they were first observed.
var requiredOrder = []string{"id", "title", "lane", "priority", "size"}
var recommendedOrder = []string{
	"assignees", "labels", "created_at", "completed_at",
	"depends_on", "parent", "relates_to",
	"resume_hint", "next_steps", "blockers", "last_note_at",
}

// Card is the decoded form of a card file's frontmatter plus body.
type Card struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Lane     string `json:"lane"`
	Priority string `json:"priority"` // P0, P1, P2, P3
	Size     int    `json:"size"`

	Assignees   []string   `json:"assignees,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DependsOn   []string   `json:"depends_on,omitempty"`
	Parent      string     `json:"parent,omitempty"` // empty means no parent
	RelatesTo   []string   `json:"relates_to,omitempty"`
	ResumeHint  string     `json:"resume_hint,omitempty"`
	NextSteps   []string   `json:"next_steps,omitempty"`
	Blockers    []string   `json:"blockers,omitempty"`
	LastNoteAt  *time.Time `json:"last_note_at,omitempty"`

	Body string `json:"body"`

	// extra holds unknown frontmatter keys in first-seen order, preserved
	// verbatim as yaml.Node values for round-trip fidelity (R1).
	extra []extraField
}

type extraField struct {
	key  string
	node *yaml.Node
}

// Extra returns the unknown frontmatter keys, in the order they appear in
// the source file.
func (c *Card) Extra() []string {
	keys := make([]string, len(c.extra))
	for i, f := range c.extra {
		keys[i] = f.key
	}
	return keys
}

// Parse splits content into a Card. content may use CRLF line endings,
// which are normalized to LF before parsing (spec.md §4.1).
func Parse(content []byte) (*Card, error) {
	content = normalizeLineEndings(content)
	str := string(content)

	if !strings.HasPrefix(str, delimiter) {
		return nil, errs.Invalid("card file missing frontmatter delimiter")
	}

	rest := str[len(delimiter):]
	idx := strings.Index(rest, "\n"+delimiter)
	if idx == -1 {
		return nil, errs.Invalid("card file has unclosed frontmatter")
	}
	fmYAML := strings.TrimPrefix(rest[:idx], "\n")
	body := strings.TrimPrefix(rest[idx+len("\n"+delimiter):], "\n")

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(fmYAML), &doc); err != nil {
		return nil, errs.WrapInvalid(err, "parse card frontmatter")
	}

	c := &Card{Body: body}
	if len(doc.Content) == 0 {
		return c, nil
	}
	mapping := doc.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, errs.Invalid("card frontmatter is not a YAML mapping")
	}

	known := map[string]bool{}
	for _, k := range requiredOrder {
		known[k] = true
	}
	for _, k := range recommendedOrder {
		known[k] = true
	}

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		keyNode := mapping.Content[i]
		valNode := mapping.Content[i+1]
		key := keyNode.Value

		if !known[key] {
			c.extra = append(c.extra, extraField{key: key, node: valNode})
			continue
		}

		if err := c.assign(key, valNode); err != nil {
			return nil, errs.WrapInvalid(err, "decode frontmatter field %q", key)
		}
	}

	return c, nil
}

func (c *Card) assign(key string, n *yaml.Node) error {
	switch key {
	case "id":
		return n.Decode(&c.ID)
	case "title":
		return n.Decode(&c.Title)
	case "lane":
		return n.Decode(&c.Lane)
	case "priority":
		return n.Decode(&c.Priority)
	case "size":
		return n.Decode(&c.Size)
	case "assignees":
		return n.Decode(&c.Assignees)
	case "labels":
		return n.Decode(&c.Labels)
	case "created_at":
		return decodeTimePtr(n, &c.CreatedAt)
	case "completed_at":
		return decodeTimePtr(n, &c.CompletedAt)
	case "depends_on":
		return n.Decode(&c.DependsOn)
	case "parent":
		if n.Tag == "!!null" {
			c.Parent = ""
			return nil
		}
		return n.Decode(&c.Parent)
	case "relates_to":
		return n.Decode(&c.RelatesTo)
	case "resume_hint":
		return n.Decode(&c.ResumeHint)
	case "next_steps":
		return n.Decode(&c.NextSteps)
	case "blockers":
		return n.Decode(&c.Blockers)
	case "last_note_at":
		return decodeTimePtr(n, &c.LastNoteAt)
	}
	return fmt.Errorf("unreachable: unknown known-key %q", key)
}

func decodeTimePtr(n *yaml.Node, dst **time.Time) error {
	if n.Tag == "!!null" {
		*dst = nil
		return nil
	}
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("parse RFC3339 time %q: %w", s, err)
	}
	*dst = &t
	return nil
}

// Render serializes the Card back into Markdown+frontmatter bytes, in the
// stable key order: required, then recommended (only if set), then
// unknown keys in first-seen order. Output always uses LF line endings.
func Render(c *Card) ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}

	add := func(key string, value any) error {
		keyNode := &yaml.Node{}
		if err := keyNode.Encode(key); err != nil {
			return err
		}
		valNode := &yaml.Node{}
		if err := valNode.Encode(value); err != nil {
			return err
		}
		doc.Content = append(doc.Content, keyNode, valNode)
		return nil
	}
	if err := add("id", c.ID); err != nil {
		return nil, err
	}
	if err := add("title", c.Title); err != nil {
		return nil, err
	}
	if err := add("lane", c.Lane); err != nil {
		return nil, err
	}
	if err := add("priority", c.Priority); err != nil {
		return nil, err
	}
	if err := add("size", c.Size); err != nil {
		return nil, err
	}

	if len(c.Assignees) > 0 {
		if err := add("assignees", c.Assignees); err != nil {
			return nil, err
		}
	}
	if len(c.Labels) > 0 {
		if err := add("labels", c.Labels); err != nil {
			return nil, err
		}
	}
	if c.CreatedAt != nil {
		if err := add("created_at", c.CreatedAt.Format(time.RFC3339)); err != nil {
			return nil, err
		}
	}
	if c.CompletedAt != nil {
		if err := add("completed_at", c.CompletedAt.Format(time.RFC3339)); err != nil {
			return nil, err
		}
	}
	if len(c.DependsOn) > 0 {
		if err := add("depends_on", c.DependsOn); err != nil {
			return nil, err
		}
	}
	if c.Parent != "" {
		if err := add("parent", c.Parent); err != nil {
			return nil, err
		}
	}
	if len(c.RelatesTo) > 0 {
		if err := add("relates_to", c.RelatesTo); err != nil {
			return nil, err
		}
	}
	if c.ResumeHint != "" {
		if err := add("resume_hint", c.ResumeHint); err != nil {
			return nil, err
		}
	}
	if len(c.NextSteps) > 0 {
		if err := add("next_steps", c.NextSteps); err != nil {
			return nil, err
		}
	}
	if len(c.Blockers) > 0 {
		if err := add("blockers", c.Blockers); err != nil {
			return nil, err
		}
	}
	if c.LastNoteAt != nil {
		if err := add("last_note_at", c.LastNoteAt.Format(time.RFC3339)); err != nil {
			return nil, err
		}
	}
	for _, f := range c.extra {
		keyNode := &yaml.Node{}
		if err := keyNode.Encode(f.key); err != nil {
			return nil, err
		}
		doc.Content = append(doc.Content, keyNode, f.node)
	}

	root := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{doc}}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, errs.WrapInternal(err, "encode card frontmatter")
	}
	enc.Close()

	var out bytes.Buffer
	out.WriteString(delimiter)
	out.WriteString("\n")
	out.Write(buf.Bytes())
	out.WriteString(delimiter)
	out.WriteString("\n")
	out.WriteString(c.Body)

	return out.Bytes(), nil
}

func normalizeLineEndings(content []byte) []byte {
	s := strings.ReplaceAll(string(content), "\r\n", "\n")
	return []byte(s)
}
