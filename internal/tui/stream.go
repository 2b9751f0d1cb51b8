package tui

import (
	"context"
	"encoding/json"
	"fmt"

	tea "charm.land/bubbletea/v2"

	"github.com/chatviz/chatviz/internal/agent"
	"github.com/chatviz/chatviz/internal/charts"
	"github.com/chatviz/chatviz/internal/session"
	"github.com/chatviz/chatviz/internal/stream"
)

// streamBufferSize is sized for ~1.5s burst at 60 FPS refresh rate.
// This prevents backpressure during UI render delays while keeping
// memory bounded.
const streamBufferSize = 100

// extractingStatus is shown while the response is scanned for chart data.
const extractingStatus = "Analyzing response for charts..."

// streamEvent is a discriminated union for all stream events.
// Using a single channel with union type simplifies select logic
// and eliminates complex multi-channel closure handling.
type streamEvent struct {
	// Exactly one of these groups is set per event
	chunk    *stream.ParsedChunk // Normalized chunk (when non-nil)
	status   string              // Transient status line (when non-empty)
	err      error               // Error (when non-nil)
	done     bool                // True when the turn completed successfully
	response string              // Narration-filtered response (when done)
	charts   []charts.ChartData  // Extracted chart data (when done)
}

// Stream message types for Bubble Tea
type streamStartedMsg struct {
	eventCh <-chan streamEvent
	cancel  context.CancelFunc
}

type streamChunkMsg struct {
	chunk *stream.ParsedChunk
}

type streamStatusMsg struct {
	status string
}

type streamDoneMsg struct {
	response string
	charts   []charts.ChartData
}

type streamErrorMsg struct {
	err error
}

// startStream creates a command that runs one conversation turn: persist the
// user message, stream the agent response through the parser, extract chart
// data from the accumulated text, and persist the assistant message.
//
// Goroutine lifecycle: the spawned goroutine exits when the transport channel
// closes, the context is canceled, or an error occurs. Channel closure signals
// completion - no WaitGroup needed.
//
// The parser is owned by this goroutine for the duration of the turn; the
// state machine guarantees no second stream starts until done or error.
func (t *TUI) startStream(query string) tea.Cmd {
	return func() tea.Msg {
		eventCh := make(chan streamEvent, streamBufferSize)

		// Context with timeout to prevent indefinite hangs
		ctx, cancel := context.WithTimeout(t.ctx, streamTimeout)

		go func() {
			// Release timer resources on all exit paths
			defer cancel()
			// Channel closure signals goroutine completion
			defer close(eventCh)

			// Panic recovery to prevent TUI lockup
			defer func() {
				if r := recover(); r != nil {
					t.logger.Error("stream panic recovered", "panic", r)
					select {
					case eventCh <- streamEvent{err: fmt.Errorf("stream panic: %v", r)}:
					default:
					}
				}
			}()

			t.runTurn(ctx, query, eventCh)
		}()

		return streamStartedMsg{
			eventCh: eventCh,
			cancel:  cancel,
		}
	}
}

func (t *TUI) runTurn(ctx context.Context, query string, eventCh chan<- streamEvent) {
	fail := func(err error) {
		select {
		case eventCh <- streamEvent{err: err}:
		default:
		}
	}

	if _, err := t.store.AddMessage(ctx, &session.Message{
		SessionID: t.sessionID,
		Role:      session.RoleUser,
		Content:   query,
	}); err != nil {
		fail(fmt.Errorf("persist user message: %w", err))
		return
	}

	t.parser.Reset()

	events, err := t.transport.Stream(ctx, agent.Request{
		SessionID: t.sessionID.String(),
		Prompt:    query,
	})
	if err != nil {
		fail(fmt.Errorf("start stream: %w", err))
		return
	}

	var chunkCount int
	for ev := range events {
		if ev.Err != nil {
			fail(fmt.Errorf("chunk %d: %w", chunkCount, ev.Err))
			return
		}
		parsed := t.parser.ParseChunk(ev.Chunk)
		if parsed == nil {
			continue
		}
		chunkCount++
		select {
		case eventCh <- streamEvent{chunk: parsed}:
		case <-ctx.Done():
			fail(ctx.Err())
			return
		}
	}

	if err := ctx.Err(); err != nil {
		fail(err)
		return
	}

	// Extraction runs on the raw accumulated text: the narration filter
	// shapes display only, data may hide inside filtered sentences.
	select {
	case eventCh <- streamEvent{status: extractingStatus}:
	default:
	}
	extracted := t.extractor.Charts(ctx, t.parser.AccumulatedText(), nil)

	response := t.parser.DisplayedText()
	encoded, err := encodeCharts(extracted)
	if err != nil {
		t.logger.Warn("encode charts for persistence", "error", err)
		encoded = nil
	}
	if _, err := t.store.AddMessage(ctx, &session.Message{
		SessionID: t.sessionID,
		Role:      session.RoleAssistant,
		Content:   response,
		Charts:    encoded,
	}); err != nil {
		fail(fmt.Errorf("persist assistant message: %w", err))
		return
	}

	select {
	case eventCh <- streamEvent{done: true, response: response, charts: extracted}:
	case <-ctx.Done():
	}
}

// encodeCharts marshals chart data as a type-tagged JSON array for storage.
func encodeCharts(extracted []charts.ChartData) (json.RawMessage, error) {
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

// listenForStream creates a command to wait for the next stream event.
// Uses single union channel - no complex multi-channel select needed.
// Empty events (all fields zero) are skipped via loop instead of recursion
// to prevent stack overflow under pathological conditions.
func listenForStream(eventCh <-chan streamEvent) tea.Cmd {
	return func() tea.Msg {
		if eventCh == nil {
			return nil
		}

		for {
			event, ok := <-eventCh
			if !ok {
				// Channel closed before a done or error event
				return streamErrorMsg{err: fmt.Errorf("stream ended without completion signal")}
			}

			// Discriminated union dispatch
			switch {
			case event.err != nil:
				return streamErrorMsg{err: event.err}
			case event.done:
				return streamDoneMsg{response: event.response, charts: event.charts}
			case event.status != "":
				return streamStatusMsg{status: event.status}
			case event.chunk != nil:
				return streamChunkMsg{chunk: event.chunk}
			default:
				// Empty event - loop instead of recursing
				continue
			}
		}
	}
}
