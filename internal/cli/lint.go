package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kanbanmcp/kanban-mcp/internal/columns"
	"github.com/kanbanmcp/kanban-mcp/internal/lint"
)

var failOn string

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Check the board for structural issues",
	RunE:  runLint,
}

func init() {
	rootCmd.AddCommand(lintCmd)
	lintCmd.Flags().StringVar(&failOn, "fail-on", "error", "minimum severity (info|warn|error) that causes a non-zero exit")
}

func runLint(cmd *cobra.Command, args []string) error {
	root, err := resolveBoardPath()
	if err != nil {
		return err
	}
	cfg, err := columns.Load(filepath.Join(root, ".kanban", "columns.toml"))
	if err != nil {
		return err
	}

	issues, err := lint.Run(root, cfg)
	if err != nil {
		return err
	}
	for _, issue := range issues {
		fmt.Fprintln(cmd.OutOrStdout(), issue.String())
	}

	threshold := lint.ParseSeverity(failOn)
	if lint.MaxSeverity(issues) >= threshold {
		os.Exit(1)
	}
	return nil
}
