package tui

import (
	"context"
	"errors"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"

	"github.com/chatviz/chatviz/internal/stream"
)

// Update implements tea.Model.
//
//nolint:gocognit,gocyclo // Bubble Tea Update requires type switch on all message types
func (t *TUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return t.handleKey(msg)

	case tea.WindowSizeMsg:
		t.width = msg.Width
		t.height = msg.Height

		// Calculate viewport height: total - input - separators - help
		inputHeight := t.input.Height() + promptLines
		fixedHeight := separatorLines + inputHeight + helpLines
		vpHeight := max(msg.Height-fixedHeight, minViewport)

		t.viewport.SetWidth(msg.Width)
		t.viewport.SetHeight(vpHeight)
		t.input.SetWidth(msg.Width - 4) // Room for "> " prompt
		t.help.SetWidth(msg.Width)
		t.markdown.UpdateWidth(msg.Width)

		// Rebuild viewport content with new dimensions
		t.rebuildViewportContent()
		return t, nil

	case tea.MouseWheelMsg:
		// Forward mouse wheel to viewport for scrolling
		var cmd tea.Cmd
		t.viewport, cmd = t.viewport.Update(msg)
		return t, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		t.spinner, cmd = t.spinner.Update(msg)
		// Rebuild viewport to update spinner animation during thinking or status display
		if t.state == StateThinking || (t.state == StateStreaming && t.toolStatus != "") {
			t.rebuildViewportContent()
		}
		return t, cmd

	case streamStartedMsg:
		t.streamCancel = msg.cancel
		t.streamEventCh = msg.eventCh
		t.state = StateStreaming
		t.rebuildViewportContent()
		t.viewport.GotoBottom()
		return t, listenForStream(msg.eventCh)

	case streamChunkMsg:
		return t.handleChunk(msg.chunk)

	case streamStatusMsg:
		t.toolStatus = msg.status
		t.rebuildViewportContent()
		t.viewport.GotoBottom()
		return t, listenForStream(t.streamEventCh)

	case streamDoneMsg:
		t.state = StateInput
		t.toolStatus = ""

		// Cancel context to release timer resources
		if t.streamCancel != nil {
			t.streamCancel()
			t.streamCancel = nil
		}
		t.streamEventCh = nil

		// Prefer the parser's complete filtered response over accumulated
		// chunks. They normally agree, but the done event is authoritative.
		finalText := msg.response
		if finalText == "" {
			finalText = t.output.String()
		}

		t.addMessage(Message{
			Role:   roleAssistant,
			Text:   finalText,
			Charts: msg.charts,
		})
		t.output.Reset()
		t.rebuildViewportContent()
		t.viewport.GotoBottom()
		// Re-focus textarea after stream completes
		return t, t.input.Focus()

	case streamErrorMsg:
		t.state = StateInput
		t.toolStatus = ""

		// Cancel context to release timer resources
		if t.streamCancel != nil {
			t.streamCancel()
			t.streamCancel = nil
		}
		t.streamEventCh = nil

		switch {
		case errors.Is(msg.err, context.Canceled):
			t.addMessage(Message{Role: roleSystem, Text: "(Canceled)"})
		case errors.Is(msg.err, context.DeadlineExceeded):
			t.addMessage(Message{Role: roleError, Text: "Turn timeout (>5 min). Try a simpler question or break it into steps."})
		default:
			t.addMessage(Message{Role: roleError, Text: msg.err.Error()})
		}
		t.output.Reset()
		t.rebuildViewportContent()
		t.viewport.GotoBottom()
		// Re-focus textarea after error
		return t, t.input.Focus()
	}

	var cmd tea.Cmd
	t.input, cmd = t.input.Update(msg)
	return t, cmd
}

// handleChunk dispatches one normalized chunk to the display state.
func (t *TUI) handleChunk(chunk *stream.ParsedChunk) (tea.Model, tea.Cmd) {
	switch chunk.Kind {
	case stream.ChunkText:
		t.toolStatus = "" // Clear status when text arrives
		t.output.WriteString(chunk.Text.Content)

	case stream.ChunkToolUse:
		t.toolStatus = chunk.ToolUse.DisplayName + "..."

	case stream.ChunkToolResult:
		t.toolStatus = ""

	case stream.ChunkTodo:
		if active := activeTodo(chunk.Todo); active != "" {
			t.toolStatus = active + "..."
		}

	case stream.ChunkThinking:
		t.toolStatus = "Thinking..."

	case stream.ChunkError:
		// Agent-reported error ends the turn; the transport channel
		// closes shortly after, so stop listening now.
		t.cancelStream()
		t.streamEventCh = nil
		t.state = StateInput
		t.toolStatus = ""
		t.addMessage(Message{Role: roleError, Text: chunk.Message})
		t.output.Reset()
		t.rebuildViewportContent()
		t.viewport.GotoBottom()
		return t, t.input.Focus()

	case stream.ChunkSystem:
		// Lifecycle notices carry no display content
	}

	t.rebuildViewportContent()
	t.viewport.GotoBottom()
	return t, listenForStream(t.streamEventCh)
}

// activeTodo returns the in-progress item of a task-list update, if any.
func activeTodo(items []stream.TodoItem) string {
	for _, item := range items {
		if item.Status == "in_progress" {
			return item.Content
		}
	}
	return ""
}
