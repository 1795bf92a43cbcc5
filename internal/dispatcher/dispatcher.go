// Package dispatcher implements the ToolDispatcher of spec.md §4.9: it
// receives a {name, arguments} tool call, normalizes the tool name
// between its namespaced (kanban/new) and flat (kanban_new) surface
// forms, routes to the matching Store operation, and shapes the result
// for both the required content[] form and the legacy flat-keys form.
package dispatcher

import (
	"encoding/json"
	"strings"

	"github.com/kanbanmcp/kanban-mcp/internal/errs"
	"github.com/kanbanmcp/kanban-mcp/internal/relations"
	"github.com/kanbanmcp/kanban-mcp/internal/store"
)

// Call is one normalized {name, arguments} request.
type Call struct {
	Name      string
	Arguments json.RawMessage
}

// ContentBlock is one element of the required content[] response shape.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is the dual-shaped dispatcher response: content[] plus the same
// payload's fields flattened onto the result object (spec.md §4.9).
type Result struct {
	Content []ContentBlock `json:"content"`
	Payload any            `json:"-"` // merged onto the encoded object as flat sibling keys
}

// normalize maps either surface form to the canonical underscored name:
// kanban/relations.set and kanban_relations_set both become
// kanban_relations_set.
func normalize(name string) string {
	r := strings.NewReplacer("/", "_", ".", "_")
	return r.Replace(name)
}

const (
	toolNew          = "kanban_new"
	toolMove         = "kanban_move"
	toolDone         = "kanban_done"
	toolUpdate       = "kanban_update"
	toolList         = "kanban_list"
	toolTree         = "kanban_tree"
	toolRelationsSet = "kanban_relations_set"
)

// CanonicalToolNames lists every tool this dispatcher knows how to route,
// in a stable order suitable for tools/list.
var CanonicalToolNames = []string{
	toolNew, toolMove, toolDone, toolUpdate, toolList, toolTree, toolRelationsSet,
}

// AdvertisedName returns the surface form of a canonical tool name for
// tools/list, per the openaiCompat flag (flat form for OpenAI-compatible
// clients, namespaced form otherwise).
func AdvertisedName(canonical string, openaiCompat bool) string {
	if openaiCompat {
		return canonical
	}
	switch canonical {
	case toolRelationsSet:
		return "kanban/relations.set"
	default:
		return "kanban/" + strings.TrimPrefix(canonical, "kanban_")
	}
}

// Dispatcher routes tool calls to one Store.
type Dispatcher struct {
	store *store.Store
}

// New returns a Dispatcher bound to st.
func New(st *store.Store) *Dispatcher {
	return &Dispatcher{store: st}
}

// Dispatch normalizes call.Name and routes to the matching operation.
func (d *Dispatcher) Dispatch(call Call) (*Result, error) {
	name := normalize(call.Name)

	switch name {
	case toolNew:
		return d.dispatchNew(call.Arguments)
	case toolMove:
		return d.dispatchMove(call.Arguments)
	case toolDone:
		return d.dispatchDone(call.Arguments)
	case toolUpdate:
		return d.dispatchUpdate(call.Arguments)
	case toolList:
		return d.dispatchList(call.Arguments)
	case toolTree:
		return d.dispatchTree(call.Arguments)
	case toolRelationsSet:
		return d.dispatchRelationsSet(call.Arguments)
	default:
		return nil, errs.Invalid("unknown tool %q", call.Name)
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errs.WrapInvalid(err, "decode tool arguments")
	}
	return nil
}

// toResult builds the dual content[]/flat-keys result for a successful
// call (spec.md §4.9).
func toResult(payload any) (*Result, error) {
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.WrapInternal(err, "encode tool result")
	}
	return &Result{
		Content: []ContentBlock{{Type: "text", Text: string(text)}},
		Payload: payload,
	}, nil
}

// MarshalJSON flattens Payload's fields as siblings of "content", giving
// clients both the required and legacy response shapes in one object.
func (r *Result) MarshalJSON() ([]byte, error) {
	payloadJSON, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, err
	}
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(payloadJSON, &flat); err != nil {
		// Payload wasn't a JSON object (e.g. a bare string/array); fall
		// back to content-only.
		flat = nil
	}

	out := map[string]json.RawMessage{}
	for k, v := range flat {
		out[k] = v
	}
	contentJSON, err := json.Marshal(r.Content)
	if err != nil {
		return nil, err
	}
	out["content"] = contentJSON
	return json.Marshal(out)
}

func (d *Dispatcher) dispatchNew(raw json.RawMessage) (*Result, error) {
	var in store.NewCardInput
	if err := decodeArgs(raw, &in); err != nil {
		return nil, err
	}
	res, err := d.store.New(in)
	if err != nil {
		return nil, err
	}
	return toResult(res)
}

func (d *Dispatcher) dispatchMove(raw json.RawMessage) (*Result, error) {
	var in struct {
		ID     string `json:"id"`
		Column string `json:"column"`
	}
	if err := decodeArgs(raw, &in); err != nil {
		return nil, err
	}
	res, err := d.store.Move(in.ID, in.Column)
	if err != nil {
		return nil, err
	}
	return toResult(res)
}

func (d *Dispatcher) dispatchDone(raw json.RawMessage) (*Result, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := decodeArgs(raw, &in); err != nil {
		return nil, err
	}
	res, err := d.store.Done(in.ID)
	if err != nil {
		return nil, err
	}
	return toResult(res)
}

func (d *Dispatcher) dispatchUpdate(raw json.RawMessage) (*Result, error) {
	var in struct {
		ID    string      `json:"id"`
		Patch store.Patch `json:"patch"`
	}
	if err := decodeArgs(raw, &in); err != nil {
		return nil, err
	}
	res, err := d.store.Update(in.ID, in.Patch)
	if err != nil {
		return nil, err
	}
	return toResult(res)
}

func (d *Dispatcher) dispatchList(raw json.RawMessage) (*Result, error) {
	var in store.ListInput
	if err := decodeArgs(raw, &in); err != nil {
		return nil, err
	}
	res, err := d.store.List(in)
	if err != nil {
		return nil, err
	}
	return toResult(res)
}

// defaultTreeDepth is the depth tree applies when the caller omits it
// (spec.md §4.7 tree: "depth=3" default).
const defaultTreeDepth = 3

func (d *Dispatcher) dispatchTree(raw json.RawMessage) (*Result, error) {
	var in struct {
		Root  string `json:"root"`
		Depth *int   `json:"depth"`
	}
	if err := decodeArgs(raw, &in); err != nil {
		return nil, err
	}
	depth := defaultTreeDepth
	if in.Depth != nil {
		depth = *in.Depth
	}
	res, err := d.store.Tree(in.Root, depth)
	if err != nil {
		return nil, err
	}
	return toResult(res)
}

func (d *Dispatcher) dispatchRelationsSet(raw json.RawMessage) (*Result, error) {
	var in struct {
		Add    []relations.Edge `json:"add"`
		Remove []relations.Edge `json:"remove"`
	}
	if err := decodeArgs(raw, &in); err != nil {
		return nil, err
	}
	res, err := d.store.RelationsSet(in.Add, in.Remove)
	if err != nil {
		return nil, err
	}
	return toResult(res)
}
