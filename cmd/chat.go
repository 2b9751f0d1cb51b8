package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chatviz/chatviz/internal/app"
	"github.com/chatviz/chatviz/internal/config"
	"github.com/chatviz/chatviz/internal/session"
	"github.com/chatviz/chatviz/internal/stream"
	"github.com/chatviz/chatviz/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start interactive chat (default)",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// runChat initializes and starts the interactive TUI.
func runChat(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	sessionID, err := getOrCreateSessionID(ctx, a)
	if err != nil {
		return fmt.Errorf("resolving session: %w", err)
	}

	model, err := tui.New(ctx, a.Transport, a.Extractor, a.Sessions, stream.ParserConfig{}, sessionID, logger)
	if err != nil {
		return fmt.Errorf("creating TUI: %w", err)
	}
	program := tea.NewProgram(model, tea.WithContext(ctx))

	if _, err = program.Run(); err != nil {
		return fmt.Errorf("TUI exited: %w", err)
	}
	return nil
}

// getOrCreateSessionID resumes the locally recorded session when it still
// exists, creating and recording a fresh one otherwise.
func getOrCreateSessionID(ctx context.Context, a *app.App) (uuid.UUID, error) {
	currentID, err := session.LoadCurrentSessionID()
	if err != nil {
		return uuid.Nil, fmt.Errorf("loading session state: %w", err)
	}

	if currentID != nil {
		_, err = a.Sessions.Session(ctx, *currentID)
		if err == nil {
			return *currentID, nil
		}
		if !errors.Is(err, session.ErrSessionNotFound) {
			return uuid.Nil, fmt.Errorf("validating session: %w", err)
		}
	}

	newSess, err := a.Sessions.CreateSession(ctx, "New Session")
	if err != nil {
		return uuid.Nil, fmt.Errorf("creating session: %w", err)
	}

	if err := session.SaveCurrentSessionID(newSess.ID); err != nil {
		a.Logger.Warn("saving session state", "error", err)
	}

	return newSess.ID, nil
}
