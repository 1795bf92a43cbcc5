package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kanbanmcp/kanban-mcp/internal/board"
	"github.com/kanbanmcp/kanban-mcp/internal/dispatcher"
	"github.com/kanbanmcp/kanban-mcp/internal/jsonrpc"
	"github.com/kanbanmcp/kanban-mcp/internal/logging"
)

var openaiCompat bool

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve one board over line-delimited JSON-RPC 2.0 on stdio",
	RunE:  runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().BoolVar(&openaiCompat, "openai", false, "advertise tool names in flat (kanban_new) form instead of namespaced (kanban/new)")
}

func runMCP(cmd *cobra.Command, args []string) error {
	root, err := resolveBoardPath()
	if err != nil {
		return err
	}
	log := logging.New(os.Stderr, resolveLogLevel())
	log = logging.Component(log, "mcp")

	conn := jsonrpc.NewConn(os.Stdin, os.Stdout)

	onNotify := func(uri string) {
		if err := conn.WriteNotification(jsonrpc.Notification{
			Method: "notifications/publish",
			Params: map[string]string{"event": "resource/updated", "uri": uri},
		}); err != nil {
			log.Error().Err(err).Msg("publish notification failed")
		}
	}

	b, err := board.Open(root, log, onNotify)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchEnabled := fileDefaults == nil || fileDefaults.Watch.Enabled
	if v := viper.GetString("watch"); v != "" {
		watchEnabled = v != "0"
	}
	if watchEnabled {
		if _, err := b.StartWatching(ctx, onNotify); err != nil {
			log.Error().Err(err).Msg("watcher failed to start; continuing without filesystem notifications")
		}
		defer b.StopWatching()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	disp := dispatcher.New(b.Store)
	return serveLoop(ctx, conn, disp, b, log)
}
