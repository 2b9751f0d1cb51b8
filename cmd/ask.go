package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatviz/chatviz/internal/agent"
	"github.com/chatviz/chatviz/internal/app"
	"github.com/chatviz/chatviz/internal/charts"
	"github.com/chatviz/chatviz/internal/config"
	"github.com/chatviz/chatviz/internal/session"
	"github.com/chatviz/chatviz/internal/stream"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question and print the response with extracted charts",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print extracted charts as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(_ *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question is empty")
	}

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

	sess, err := a.Sessions.CreateSession(ctx, askTitle(question))
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	if _, err := a.Sessions.AddMessage(ctx, &session.Message{
		SessionID: sess.ID,
		Role:      session.RoleUser,
		Content:   question,
	}); err != nil {
		return fmt.Errorf("persisting question: %w", err)
	}

	parser, err := stream.NewParser(stream.ParserConfig{}, logger)
	if err != nil {
		return err
	}

	events, err := a.Transport.Stream(ctx, agent.Request{
		SessionID: sess.ID.String(),
		Prompt:    question,
	})
	if err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}

	for ev := range events {
		if ev.Err != nil {
			return fmt.Errorf("streaming response: %w", ev.Err)
		}
		parsed := parser.ParseChunk(ev.Chunk)
		if parsed == nil {
			continue
		}
		if parsed.Kind == stream.ChunkText {
			fmt.Print(parsed.Text.Content)
		}
		if parsed.Kind == stream.ChunkError {
			return fmt.Errorf("agent error: %s", parsed.Message)
		}
	}
	fmt.Println()

	extracted := a.Extractor.Charts(ctx, parser.AccumulatedText(), nil)

	encoded, err := encodeChartEnvelopes(extracted)
	if err != nil {
		logger.Warn("encoding charts", "error", err)
	}
	if _, err := a.Sessions.AddMessage(ctx, &session.Message{
		SessionID: sess.ID,
		Role:      session.RoleAssistant,
		Content:   parser.DisplayedText(),
		Charts:    encoded,
	}); err != nil {
		return fmt.Errorf("persisting response: %w", err)
	}

	if len(extracted) == 0 {
		return nil
	}
	if askJSON {
		fmt.Println()
		if _, err := os.Stdout.Write(append(encoded, '\n')); err != nil {
			return err
		}
		return nil
	}
	fmt.Println()
	for _, c := range extracted {
		fmt.Printf("chart: %s\n", c.ChartType())
	}
	return nil
}

// askTitle derives a session title from the question.
const maxAskTitle = 100

func askTitle(question string) string {
	if len(question) <= maxAskTitle {
		return question
	}
	return question[:maxAskTitle-3] + "..."
}

// encodeChartEnvelopes marshals chart data as a type-tagged JSON array.
func encodeChartEnvelopes(extracted []charts.ChartData) (json.RawMessage, error) {
	if len(extracted) == 0 {
		return nil, nil
	}
	type envelope struct {
		Type  charts.PatternType `json:"type"`
		Chart charts.ChartData   `json:"chart"`
	}
	envelopes := make([]envelope, 0, len(extracted))
	for _, c := range extracted {
		envelopes = append(envelopes, envelope{Type: c.ChartType(), Chart: c})
	}
	return json.Marshal(envelopes)
}
