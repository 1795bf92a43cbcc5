// Command kanban serves one file-backed board over line-delimited
// JSON-RPC 2.0 and provides maintenance subcommands for its on-disk
// card store.
package main

import (
	"fmt"
	"os"

	"github.com/kanbanmcp/kanban-mcp/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
