package cli

import (
	"github.com/spf13/cobra"

	"github.com/kanbanmcp/kanban-mcp/internal/board"
	"github.com/kanbanmcp/kanban-mcp/internal/logging"
)

// compactCmd rewrites both NDJSON caches densely. Both indexes are already
// rewritten whole on every change, so there are no superseded lines or
// tombstones to compact around; this is the same full rebuild reindex runs.
var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the NDJSON caches densely",
	RunE:  runCompact,
}

func init() {
	rootCmd.AddCommand(compactCmd)
}

func runCompact(cmd *cobra.Command, args []string) error {
	root, err := resolveBoardPath()
	if err != nil {
		return err
	}
	log := logging.Component(logging.New(cmd.ErrOrStderr(), resolveLogLevel()), "compact")

	b, err := board.Open(root, log, nil)
	if err != nil {
		return err
	}
	return b.Store.Reindex()
}
