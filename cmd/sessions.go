package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chatviz/chatviz/db"
	"github.com/chatviz/chatviz/internal/config"
	"github.com/chatviz/chatviz/internal/database"
	"github.com/chatviz/chatviz/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored chat sessions",
}

func init() {
	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently used first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), runSessionsList)
		},
	})
	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "show <session-id>",
		Short: "Show the messages of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store *session.Store) error {
				return runSessionsShow(ctx, store, args[0])
			})
		},
	})
	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store *session.Store) error {
				return runSessionsDelete(ctx, store, args[0])
			})
		},
	})
	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "new [title]",
		Short: "Create a session and make it current",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := "New Session"
			if len(args) > 0 {
				title = args[0]
			}
			return withStore(cmd.Context(), func(ctx context.Context, store *session.Store) error {
				return runSessionsNew(ctx, store, title)
			})
		},
	})
	rootCmd.AddCommand(sessionsCmd)
}

// withStore opens the database-backed session store, runs fn, and closes the
// pool. Session commands need no agent transport or extractor, so they skip
// the full application setup.
func withStore(ctx context.Context, fn func(context.Context, *session.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	pool, err := database.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, session.NewStore(pool, nil))
}

func runSessionsList(ctx context.Context, store *session.Store) error {
	sessions, err := store.Sessions(ctx, session.DefaultListLimit, 0)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions yet. Run chatviz to start one.")
		return nil
	}

	current, err := session.LoadCurrentSessionID()
	if err != nil {
		current = nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tUPDATED")
	for _, s := range sessions {
		marker := ""
		if current != nil && *current == s.ID {
			marker = " *"
		}
		fmt.Fprintf(w, "%s\t%s%s\t%d\t%s\n",
			s.ID, s.Title, marker, s.MessageCount, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runSessionsShow(ctx context.Context, store *session.Store, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid session ID %q: %w", rawID, err)
	}

	sess, err := store.Session(ctx, id)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	messages, err := store.Messages(ctx, id, session.MaxListLimit, 0)
	if err != nil {
		return fmt.Errorf("loading messages: %w", err)
	}

	fmt.Printf("%s (%d messages)\n\n", sess.Title, sess.MessageCount)
	for _, m := range messages {
		fmt.Printf("[%s] %s\n", m.Role, m.Content)
		if len(m.Charts) > 0 {
			fmt.Printf("  charts: %s\n", m.Charts)
		}
		fmt.Println()
	}
	return nil
}

func runSessionsDelete(ctx context.Context, store *session.Store, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid session ID %q: %w", rawID, err)
	}

	if err := store.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}

	// Drop the local pointer when it referenced the deleted session
	if current, err := session.LoadCurrentSessionID(); err == nil && current != nil && *current == id {
		if err := session.ClearCurrentSessionID(); err != nil {
			return fmt.Errorf("clearing session state: %w", err)
		}
	}

	fmt.Printf("Deleted session %s\n", id)
	return nil
}

func runSessionsNew(ctx context.Context, store *session.Store, title string) error {
	sess, err := store.CreateSession(ctx, title)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	if err := session.SaveCurrentSessionID(sess.ID); err != nil {
		return fmt.Errorf("saving session state: %w", err)
	}
	fmt.Printf("Created session %s (%s)\n", sess.ID, sess.Title)
	return nil
}
