package cli

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kanbanmcp/kanban-mcp/internal/board"
	"github.com/kanbanmcp/kanban-mcp/internal/dispatcher"
	"github.com/kanbanmcp/kanban-mcp/internal/errs"
	"github.com/kanbanmcp/kanban-mcp/internal/jsonrpc"
	"github.com/kanbanmcp/kanban-mcp/internal/render"
)

// serveLoop reads requests from conn until ctx is cancelled or the input
// stream closes, dispatching tools/call and answering tools/list,
// resources/list, and resources/read directly (spec.md §6).
func serveLoop(ctx contextLike, conn *jsonrpc.Conn, disp *dispatcher.Dispatcher, b *board.Board, log zerolog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		req, err := conn.ReadRequest()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			log.Error().Err(err).Msg("read request failed")
			continue
		}
		if req.IsNotification() {
			continue
		}

		resp := handleRequest(*req, disp, b)
		if err := conn.WriteResponse(resp); err != nil {
			log.Error().Err(err).Msg("write response failed")
		}
	}
}

// contextLike is the minimal context.Context surface serveLoop needs,
// named locally so this file doesn't import "context" just for a type.
type contextLike interface {
	Done() <-chan struct{}
}

func handleRequest(req jsonrpc.Request, disp *dispatcher.Dispatcher, b *board.Board) jsonrpc.Response {
	switch req.Method {
	case "tools/list":
		return jsonrpc.Response{ID: req.ID, Result: toolsList(openaiCompat)}
	case "tools/call":
		return handleToolsCall(req, disp)
	case "resources/list":
		return jsonrpc.Response{ID: req.ID, Result: resourcesList(b)}
	case "resources/read":
		return handleResourcesRead(req, b)
	default:
		return jsonrpc.Response{ID: req.ID, Error: jsonrpc.ErrorFrom(errs.Invalid("unknown method %q", req.Method))}
	}
}

func toolsList(openai bool) map[string]any {
	names := make([]string, len(dispatcher.CanonicalToolNames))
	for i, n := range dispatcher.CanonicalToolNames {
		names[i] = dispatcher.AdvertisedName(n, openai)
	}
	return map[string]any{"tools": names}
}

func handleToolsCall(req jsonrpc.Request, disp *dispatcher.Dispatcher) jsonrpc.Response {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpc.Response{ID: req.ID, Error: jsonrpc.ErrorFrom(errs.WrapInvalid(err, "decode tools/call params"))}
	}

	result, err := disp.Dispatch(dispatcher.Call{Name: params.Name, Arguments: params.Arguments})
	if err != nil {
		return jsonrpc.Response{ID: req.ID, Error: jsonrpc.ErrorFrom(err)}
	}
	return jsonrpc.Response{ID: req.ID, Result: result}
}

const defaultStateNoteLimit = 3

func resourcesList(b *board.Board) map[string]any {
	return map[string]any{
		"resources": []string{
			"kanban://" + b.ID + "/manual",
			"kanban://" + b.ID + "/board",
			"kanban://" + b.ID + "/columns",
			"kanban://" + b.ID + "/cards/{ULID}",
			"kanban://" + b.ID + "/cards/{ULID}/state",
		},
	}
}

// handleResourcesRead serves the five resource URI forms of spec.md §6:
// the static manual, the aggregate Markdown board, the columns.toml text,
// one card's full front matter and body by id, and that card's brief/full
// JSON state with up to `limit` embedded notes.
func handleResourcesRead(req jsonrpc.Request, b *board.Board) jsonrpc.Response {
	var params struct {
		URI   string `json:"uri"`
		Mode  string `json:"mode"`
		Limit *int   `json:"limit"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpc.Response{ID: req.ID, Error: jsonrpc.ErrorFrom(errs.WrapInvalid(err, "decode resources/read params"))}
	}

	switch {
	case strings.HasSuffix(params.URI, "/manual"):
		return jsonrpc.Response{ID: req.ID, Result: map[string]string{"uri": params.URI, "text": manualText}}

	case strings.HasSuffix(params.URI, "/board"):
		records, err := b.Store.AllRecords()
		if err != nil {
			return jsonrpc.Response{ID: req.ID, Error: jsonrpc.ErrorFrom(err)}
		}
		text := render.Board(b.ID, b.Columns, records)
		return jsonrpc.Response{ID: req.ID, Result: map[string]string{"uri": params.URI, "text": text}}

	case strings.HasSuffix(params.URI, "/columns"):
		data, err := os.ReadFile(filepath.Join(b.Root, ".kanban", "columns.toml"))
		if err != nil {
			return jsonrpc.Response{ID: req.ID, Error: jsonrpc.ErrorFrom(errs.WrapInternal(err, "read columns.toml"))}
		}
		return jsonrpc.Response{ID: req.ID, Result: map[string]string{"uri": params.URI, "text": string(data)}}

	case strings.HasSuffix(params.URI, "/state"):
		id, ok := cardIDFromStateURI(params.URI)
		if !ok {
			return jsonrpc.Response{ID: req.ID, Error: jsonrpc.ErrorFrom(errs.Invalid("unrecognized resource uri %q", params.URI))}
		}
		limit := defaultStateNoteLimit
		if params.Limit != nil {
			limit = *params.Limit
		}
		result, err := cardState(b, id, params.Mode, limit)
		if err != nil {
			return jsonrpc.Response{ID: req.ID, Error: jsonrpc.ErrorFrom(err)}
		}
		return jsonrpc.Response{ID: req.ID, Result: map[string]any{"uri": params.URI, "state": result}}

	default:
		id, ok := cardIDFromURI(params.URI)
		if !ok {
			return jsonrpc.Response{ID: req.ID, Error: jsonrpc.ErrorFrom(errs.Invalid("unrecognized resource uri %q", params.URI))}
		}
		card, err := b.Store.Get(id)
		if err != nil {
			return jsonrpc.Response{ID: req.ID, Error: jsonrpc.ErrorFrom(err)}
		}
		return jsonrpc.Response{ID: req.ID, Result: map[string]any{"uri": params.URI, "card": card}}
	}
}

// cardStateView is the brief/full JSON shape of kanban://{board}/cards/{ULID}/state.
type cardStateView struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Column      string      `json:"column"`
	Lane        string      `json:"lane,omitempty"`
	Priority    string      `json:"priority,omitempty"`
	Size        int         `json:"size,omitempty"`
	CompletedAt string      `json:"completed_at,omitempty"`
	Body        string      `json:"body,omitempty"`
	Assignees   []string    `json:"assignees,omitempty"`
	Labels      []string    `json:"labels,omitempty"`
	DependsOn   []string    `json:"depends_on,omitempty"`
	Parent      string      `json:"parent,omitempty"`
	RelatesTo   []string    `json:"relates_to,omitempty"`
	NotesTotal  int         `json:"notes_total"`
	Notes       []noteEntry `json:"notes"`
}

type noteEntry struct {
	Ts   string `json:"ts"`
	Type string `json:"type"`
	Text string `json:"text"`
}

// cardState loads a card and builds its brief (default) or full state view,
// embedding up to limit of its most recent notes (spec.md §6: mode,
// default brief; limit, default 3, for embedded note count).
func cardState(b *board.Board, id, mode string, limit int) (*cardStateView, error) {
	card, rec, err := b.Store.GetRecord(id)
	if err != nil {
		return nil, err
	}

	total, err := b.Notes.Count(id)
	if err != nil {
		return nil, err
	}
	var embedded []noteEntry
	if limit > 0 {
		all, err := b.Notes.List(id)
		if err != nil {
			return nil, err
		}
		start := 0
		if len(all) > limit {
			start = len(all) - limit
		}
		for _, e := range all[start:] {
			embedded = append(embedded, noteEntry{Ts: e.Ts.Format("2006-01-02T15:04:05Z07:00"), Type: e.Type, Text: e.Text})
		}
	}

	view := &cardStateView{
		ID:         card.ID,
		Title:      card.Title,
		Column:     rec.Column,
		NotesTotal: total,
		Notes:      embedded,
	}
	if card.CompletedAt != nil {
		view.CompletedAt = card.CompletedAt.Format("2006-01-02T15:04:05Z07:00")
	}

	if mode == "full" {
		view.Lane = card.Lane
		view.Priority = card.Priority
		view.Size = card.Size
		view.Body = card.Body
		view.Assignees = card.Assignees
		view.Labels = card.Labels
		view.DependsOn = card.DependsOn
		view.Parent = card.Parent
		view.RelatesTo = card.RelatesTo
	}
	return view, nil
}

// cardIDFromURI extracts the {ULID} segment from kanban://{board}/cards/{ULID}.
func cardIDFromURI(uri string) (string, bool) {
	idx := strings.LastIndex(uri, "/cards/")
	if idx < 0 {
		return "", false
	}
	id := uri[idx+len("/cards/"):]
	if id == "" {
		return "", false
	}
	return id, true
}

// cardIDFromStateURI extracts the {ULID} segment from
// kanban://{board}/cards/{ULID}/state.
func cardIDFromStateURI(uri string) (string, bool) {
	trimmed := strings.TrimSuffix(uri, "/state")
	if trimmed == uri {
		return "", false
	}
	return cardIDFromURI(trimmed)
}

const manualText = `# kanban

Tools: kanban/new, kanban/move, kanban/done, kanban/update, kanban/list, kanban/tree, kanban/relations.set.
Resources: kanban://{board}/manual, kanban://{board}/board, kanban://{board}/columns,
kanban://{board}/cards/{ULID}, kanban://{board}/cards/{ULID}/state.
`
