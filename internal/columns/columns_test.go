package columns

import "testing"

const sampleTOML = `
[[columns]]
key = "backlog"
title = "Backlog"
wip_limit = 0

[[columns]]
key = "doing"
title = "Doing"
wip_limit = 3

[[columns]]
key = "done"
title = "Done"
wip_limit = 0

[watch]
debounce_ms = 500
max_batch = 20

[writer]
auto_rename_on_conflict = true

[done]
partition = "yyyy-mm"
`

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleTOML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(cfg.Columns))
	}
	if cfg.Debounce.Milliseconds() != 500 {
		t.Fatalf("debounce = %v", cfg.Debounce)
	}
	if cfg.MaxBatch != 20 {
		t.Fatalf("max_batch = %d", cfg.MaxBatch)
	}
	if !cfg.AutoRenameOnConflict {
		t.Fatalf("expected auto_rename_on_conflict true")
	}
	if cfg.RenameSuffix != "-dup" {
		t.Fatalf("rename suffix = %q", cfg.RenameSuffix)
	}
	if cfg.DonePartition != "yyyy-mm" {
		t.Fatalf("done partition = %q", cfg.DonePartition)
	}
	if len(cfg.HotColumns) != 2 || cfg.HotColumns[0] != "backlog" || cfg.HotColumns[1] != "doing" {
		t.Fatalf("hot columns = %v, want [backlog doing] (done excluded by default)", cfg.HotColumns)
	}
}

func TestColumnOrderCaseInsensitive(t *testing.T) {
	cfg, err := Parse([]byte(sampleTOML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ColumnOrder("DOING") != 1 {
		t.Fatalf("ColumnOrder(DOING) = %d, want 1", cfg.ColumnOrder("DOING"))
	}
	if cfg.ColumnOrder("missing") != -1 {
		t.Fatalf("expected -1 for missing column")
	}
}

func TestParseRequiresColumns(t *testing.T) {
	if _, err := Parse([]byte("[watch]\ndebounce_ms = 100\n")); err == nil {
		t.Fatal("expected error when no [[columns]] declared")
	}
}
