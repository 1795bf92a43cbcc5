package cli

import (
	"github.com/spf13/cobra"

	"github.com/kanbanmcp/kanban-mcp/internal/board"
	"github.com/kanbanmcp/kanban-mcp/internal/logging"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild cards.ndjson and relations.ndjson from card front matter",
	RunE:  runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	root, err := resolveBoardPath()
	if err != nil {
		return err
	}
	log := logging.Component(logging.New(cmd.ErrOrStderr(), resolveLogLevel()), "reindex")

	b, err := board.Open(root, log, nil)
	if err != nil {
		return err
	}
	return b.Store.Reindex()
}
