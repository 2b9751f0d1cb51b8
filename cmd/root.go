// Package cmd provides the CLI commands for chatviz.
//
// Commands:
//   - chat (default): interactive terminal chat with Bubble Tea TUI
//   - ask: one-shot question with chart extraction
//   - serve: HTTP API server with SSE streaming
//   - sessions: list, show, and delete stored sessions
//
// Signal handling and graceful shutdown are implemented for all commands via
// context cancellation.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chatviz/chatviz/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "chatviz",
	Short: "Chatviz - chat with your data, charts included",
	Long: `Chatviz streams agent responses into your terminal, filters planning
narration out of the display, and turns tables and series found in the
response into charts.

Running chatviz without a subcommand starts the interactive chat.`,
	SilenceUsage: true,
	RunE:         runChat,
}

// Execute is the main entry point for the chatviz CLI.
func Execute() error {
	slog.SetDefault(newLogger())
	return rootCmd.Execute()
}

// newLogger builds the process logger. Debug level is controlled by the
// DEBUG environment variable; output goes to stderr so stdout stays clean
// for rendered chat output.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}
