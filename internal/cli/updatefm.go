package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kanbanmcp/kanban-mcp/internal/board"
	"github.com/kanbanmcp/kanban-mcp/internal/logging"
	"github.com/kanbanmcp/kanban-mcp/internal/store"
)

var (
	updateCardID   string
	updatePatchRaw string
)

// updateFMCmd is the CLI-level escape hatch for the same patch semantics
// the update tool exposes over JSON-RPC, for scripting outside a running
// kanban mcp session.
var updateFMCmd = &cobra.Command{
	Use:   "update-fm",
	Short: "Patch one card's front matter or body from the command line",
	RunE:  runUpdateFM,
}

func init() {
	rootCmd.AddCommand(updateFMCmd)
	updateFMCmd.Flags().StringVar(&updateCardID, "id", "", "card id (required)")
	updateFMCmd.Flags().StringVar(&updatePatchRaw, "patch", "", `patch JSON, e.g. {"fm":{"priority":"P0"}} (required)`)
}

func runUpdateFM(cmd *cobra.Command, args []string) error {
	root, err := resolveBoardPath()
	if err != nil {
		return err
	}
	if updateCardID == "" || updatePatchRaw == "" {
		return fmt.Errorf("--id and --patch are required")
	}

	var patch store.Patch
	if err := json.Unmarshal([]byte(updatePatchRaw), &patch); err != nil {
		return fmt.Errorf("parse --patch: %w", err)
	}

	log := logging.Component(logging.New(cmd.ErrOrStderr(), resolveLogLevel()), "update-fm")
	b, err := board.Open(root, log, nil)
	if err != nil {
		return err
	}

	res, err := b.Store.Update(updateCardID, patch)
	if err != nil {
		return err
	}
	return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
}
