// Package columns loads columns.toml (spec.md §4.4). Parsing uses
// github.com/pelletier/go-toml/v2, the only TOML library present in the
// retrieved corpus (AKJUS-bsc-erigon's go.mod), generalizing the shape of
// the teacher's internal/config.Config (a single struct decoded from a
// config file with env overlays) from YAML to this board-scoped TOML file.
package columns

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/kanbanmcp/kanban-mcp/internal/errs"
)

// Column is one declared board column.
type Column struct {
	Key      string `toml:"key"`
	Title    string `toml:"title"`
	WIPLimit int    `toml:"wip_limit"`
}

type watchSection struct {
	HotColumns []string `toml:"hot_columns"`
	DebounceMs int      `toml:"debounce_ms"`
	MaxBatch   int      `toml:"max_batch"`
}

type writerSection struct {
	AutoRenameOnConflict bool   `toml:"auto_rename_on_conflict"`
	RenameSuffix         string `toml:"rename_suffix"`
}

type renderSection struct {
	Enabled    bool `toml:"enabled"`
	DebounceMs int  `toml:"debounce_ms"`
}

type doneSection struct {
	Partition string `toml:"partition"` // "yyyy-mm" | "yyyy-q" | "none"
}

type storeSection struct {
	WIPEnforce       string `toml:"wip_enforce"`        // "warn" | "error"
	ParentDonePolicy string `toml:"parent_done_policy"` // "enforce" | "warn" | "ignore"
}

// raw mirrors the on-disk TOML shape.
type raw struct {
	Columns []Column      `toml:"columns"`
	Watch   watchSection  `toml:"watch"`
	Writer  writerSection `toml:"writer"`
	Render  renderSection `toml:"render"`
	Done    doneSection   `toml:"done"`
	Store   storeSection  `toml:"store"`
}

// Config is the resolved, defaulted columns configuration.
type Config struct {
	Columns []Column

	HotColumns []string
	Debounce   time.Duration
	MaxBatch   int

	AutoRenameOnConflict bool
	RenameSuffix         string

	RenderEnabled  bool
	RenderDebounce time.Duration

	DonePartition string // "yyyy-mm" | "yyyy-q" | "none"

	WIPEnforce       string // "warn" | "error"
	ParentDonePolicy string // "enforce" | "warn" | "ignore"
}

// ColumnKeys returns the declared column keys in declaration order.
func (c *Config) ColumnKeys() []string {
	keys := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		keys[i] = col.Key
	}
	return keys
}

// ColumnOrder returns the zero-based position of key in declaration order,
// or -1 if key is not declared. Comparison is case-insensitive per
// spec.md §4.1.
func (c *Config) ColumnOrder(key string) int {
	for i, col := range c.Columns {
		if equalFold(col.Key, key) {
			return i
		}
	}
	return -1
}

// Lookup returns the declared Column for key, case-insensitively.
func (c *Config) Lookup(key string) (Column, bool) {
	for _, col := range c.Columns {
		if equalFold(col.Key, key) {
			return col, true
		}
	}
	return Column{}, false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Load reads and defaults columns.toml at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.WrapInternal(err, "read columns config %q", path)
	}
	return Parse(data)
}

// Parse decodes TOML bytes into a defaulted Config.
func Parse(data []byte) (*Config, error) {
	var r raw
	if err := toml.Unmarshal(data, &r); err != nil {
		return nil, errs.WrapInvalid(err, "parse columns.toml")
	}
	if len(r.Columns) == 0 {
		return nil, errs.Invalid("columns.toml must declare at least one [[columns]] entry")
	}

	cfg := &Config{
		Columns:              r.Columns,
		HotColumns:           r.Watch.HotColumns,
		Debounce:             300 * time.Millisecond,
		MaxBatch:             50,
		AutoRenameOnConflict: r.Writer.AutoRenameOnConflict,
		RenameSuffix:         "-dup",
		RenderEnabled:        r.Render.Enabled,
		RenderDebounce:       800 * time.Millisecond,
		DonePartition:        "none",
		WIPEnforce:           "warn",
		ParentDonePolicy:     "warn",
	}

	if r.Watch.DebounceMs > 0 {
		cfg.Debounce = time.Duration(r.Watch.DebounceMs) * time.Millisecond
	}
	if r.Watch.MaxBatch > 0 {
		cfg.MaxBatch = r.Watch.MaxBatch
	}
	if r.Writer.RenameSuffix != "" {
		cfg.RenameSuffix = r.Writer.RenameSuffix
	}
	if r.Render.DebounceMs > 0 {
		cfg.RenderDebounce = time.Duration(r.Render.DebounceMs) * time.Millisecond
	}
	if r.Done.Partition != "" {
		cfg.DonePartition = r.Done.Partition
	}
	if r.Store.WIPEnforce != "" {
		cfg.WIPEnforce = r.Store.WIPEnforce
	}
	if r.Store.ParentDonePolicy != "" {
		cfg.ParentDonePolicy = r.Store.ParentDonePolicy
	}

	if len(cfg.HotColumns) == 0 {
		// done is cold by default (GLOSSARY); every other declared column
		// is hot unless [watch].hot_columns overrides this.
		for _, key := range cfg.ColumnKeys() {
			if !equalFold(key, "done") {
				cfg.HotColumns = append(cfg.HotColumns, key)
			}
		}
		if len(cfg.HotColumns) == 0 {
			cfg.HotColumns = []string{"backlog", "doing"}
		}
	}

	return cfg, nil
}
