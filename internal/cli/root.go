// Package cli implements the kanban command's subcommands: mcp, lint,
// reindex, compact, notes-add, notes-list, and update-fm (spec.md §6
// "CLI surface (collaborator)"). It adapts the teacher's
// cobra-plus-viper root/persistent-flag wiring (internal/cmd/root.go,
// cmd/linear-fuse/commands/root.go) from a single FUSE mount command to
// this board-scoped subcommand set.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kanbanmcp/kanban-mcp/internal/config"
)

var (
	boardPath string
	logLevel  string

	fileDefaults *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "kanban",
	Short: "Operate a file-backed Kanban board",
	Long:  "kanban serves board state over line-delimited JSON-RPC 2.0 and provides maintenance subcommands for the on-disk card store.",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initEnv)

	rootCmd.PersistentFlags().StringVar(&boardPath, "board", "", "path to the board directory (required)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace|debug|info|warn|error), default info")
}

func initEnv() {
	viper.SetEnvPrefix("KANBAN_MCP")
	viper.AutomaticEnv()

	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}
	fileDefaults = cfg
}

// resolveBoardPath resolves --board. There's no documented environment
// variable for it, so the only fallback below the flag is the config
// file's board default.
func resolveBoardPath() (string, error) {
	if boardPath != "" {
		return boardPath, nil
	}
	if fileDefaults != nil && fileDefaults.Board != "" {
		return fileDefaults.Board, nil
	}
	return "", os.ErrInvalid
}

func resolveLogLevel() string {
	if logLevel != "" {
		return logLevel
	}
	if v := viper.GetString("log"); v != "" {
		return v
	}
	if fileDefaults != nil && fileDefaults.Log.Level != "" {
		return fileDefaults.Log.Level
	}
	return "info"
}
