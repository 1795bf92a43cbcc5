// Package logging builds the process-wide zerolog.Logger from the
// KANBAN_MCP_LOG environment variable or --log-level flag. No package-level
// logger is exported; callers receive a logger value and pass it down
// explicitly (see §9 "no ambient globals" in SPEC_FULL.md).
package logging

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a logger writing to w at the given level. An unrecognized
// level string falls back to "info".
func New(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the owning subsystem, e.g.
// Component(base, "watcher") so every watcher log line carries
// component=watcher.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
