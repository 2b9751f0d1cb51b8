package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	"charm.land/bubbles/v2/textarea"
	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/chatviz/chatviz/internal/charts"
	"github.com/chatviz/chatviz/internal/log"
	"github.com/chatviz/chatviz/internal/session"
	"github.com/chatviz/chatviz/internal/stream"
	"github.com/chatviz/chatviz/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeExtractor struct {
	charts   []charts.ChartData
	lastText string
}

func (f *fakeExtractor) Charts(_ context.Context, text string, _ *charts.FieldMapping) []charts.ChartData {
	f.lastText = text
	return f.charts
}

type fakeStore struct {
	messages []*session.Message
	err      error
}

func (f *fakeStore) AddMessage(_ context.Context, msg *session.Message) (*session.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.messages = append(f.messages, msg)
	return msg, nil
}

// newTestTUI creates a TUI with initialized textarea and fake dependencies.
func newTestTUI(t *testing.T) *TUI {
	t.Helper()
	parser, err := stream.NewParser(stream.ParserConfig{}, log.NewNop())
	if err != nil {
		t.Fatalf("NewParser: %v", err)
	}
	ta := textarea.New()
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	return &TUI{
		state:     StateInput,
		input:     ta,
		history:   make([]string, 0),
		styles:    DefaultStyles(),
		markdown:  newMarkdownRenderer(80),
		transport: &testutil.ScriptedTransport{},
		extractor: &fakeExtractor{},
		store:     &fakeStore{},
		parser:    parser,
		sessionID: uuid.New(),
		logger:    log.NewNop(),
		ctx:       context.Background(),
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	transport := &testutil.ScriptedTransport{}
	extractor := &fakeExtractor{}
	store := &fakeStore{}
	id := uuid.New()
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
	}{
		{"nil transport", func() error {
			_, err := New(ctx, nil, extractor, store, stream.ParserConfig{}, id, log.NewNop())
			return err
		}},
		{"nil extractor", func() error {
			_, err := New(ctx, transport, nil, store, stream.ParserConfig{}, id, log.NewNop())
			return err
		}},
		{"nil store", func() error {
			_, err := New(ctx, transport, extractor, nil, stream.ParserConfig{}, id, log.NewNop())
			return err
		}},
		{"nil session id", func() error {
			_, err := New(ctx, transport, extractor, store, stream.ParserConfig{}, uuid.Nil, log.NewNop())
			return err
		}},
		{"bad planning pattern", func() error {
			_, err := New(ctx, transport, extractor, store, stream.ParserConfig{PlanningPatterns: []string{"("}}, id, log.NewNop())
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.call() == nil {
				t.Error("expected error")
			}
		})
	}

	tui, err := New(ctx, transport, extractor, store, stream.ParserConfig{}, id, log.NewNop())
	if err != nil {
		t.Fatalf("valid deps: %v", err)
	}
	tui.cleanup()
}

func TestHandleSlashCommands(t *testing.T) {
	tests := []struct {
		name     string
		cmd      string
		wantExit bool
		wantMsgs int // messages added beyond the pre-populated one
	}{
		{"help", "/help", false, 1},
		{"clear", "/clear", false, 0},
		{"charts", "/charts", false, 1},
		{"exit", "/exit", true, 0},
		{"quit", "/quit", true, 0},
		{"unknown", "/unknown", false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tui := newTestTUI(t)
			tui.messages = []Message{{Role: roleUser, Text: "hello"}}

			model, cmd := tui.handleSlashCommand(tt.cmd)
			result := model.(*TUI)

			if tt.wantExit {
				if cmd == nil {
					t.Error("expected quit command")
				}
				return
			}
			if tt.cmd == "/clear" {
				if len(result.messages) != 0 {
					t.Error("/clear should clear messages")
				}
				return
			}
			if len(result.messages) != 1+tt.wantMsgs {
				t.Errorf("got %d messages, want %d", len(result.messages), 1+tt.wantMsgs)
			}
		})
	}
}

func TestChartsCommandShowsLastCharts(t *testing.T) {
	tui := newTestTUI(t)

	t.Run("no charts yet", func(t *testing.T) {
		if got := tui.lastChartsView(); got != "No charts extracted yet." {
			t.Errorf("got %q", got)
		}
	})

	t.Run("renders most recent assistant charts", func(t *testing.T) {
		tui.messages = []Message{
			{Role: roleUser, Text: "show sales"},
			{Role: roleAssistant, Text: "Here you go", Charts: []charts.ChartData{
				charts.TableChart{Headers: []string{"Month", "Sales"}, Rows: [][]string{{"Jan", "100"}}},
			}},
		}
		got := tui.lastChartsView()
		if !strings.Contains(got, "Month") || !strings.Contains(got, "Jan") {
			t.Errorf("chart table not rendered: %q", got)
		}
	})
}

func TestHistoryNavigation(t *testing.T) {
	tui := newTestTUI(t)
	tui.history = []string{"first", "second", "third"}
	tui.historyIdx = 3

	steps := []struct {
		delta    int
		expected string
	}{
		{-1, "third"},
		{-1, "second"},
		{-1, "first"},
		{-1, "first"}, // Stays at oldest
		{1, "second"},
		{1, "third"},
		{1, ""}, // Past end = empty
		{1, ""},
	}

	for i, tt := range steps {
		model, _ := tui.navigateHistory(tt.delta)
		tui = model.(*TUI)
		if tui.input.Value() != tt.expected {
			t.Errorf("step %d: got %q, want %q", i, tui.input.Value(), tt.expected)
		}
	}
}

func TestCtrlC(t *testing.T) {
	t.Run("clears input", func(t *testing.T) {
		tui := newTestTUI(t)
		tui.input.SetValue("some input")

		model, _ := tui.handleCtrlC()
		if model.(*TUI).input.Value() != "" {
			t.Error("first Ctrl+C should clear input")
		}
	})

	t.Run("double press exits", func(t *testing.T) {
		tui := newTestTUI(t)
		tui.lastCtrlC = time.Now()

		if _, cmd := tui.handleCtrlC(); cmd == nil {
			t.Error("double Ctrl+C should return quit command")
		}
	})

	t.Run("cancels active stream", func(t *testing.T) {
		tui := newTestTUI(t)
		tui.state = StateStreaming

		canceled := false
		tui.streamCancel = func() { canceled = true }

		model, _ := tui.handleCtrlC()
		result := model.(*TUI)

		if !canceled {
			t.Error("Ctrl+C during streaming should cancel")
		}
		if result.state != StateInput {
			t.Error("should return to StateInput")
		}
		if len(result.messages) != 1 || result.messages[0].Role != roleSystem {
			t.Error("should add canceled system message")
		}
	})
}

func TestAddMessageBounds(t *testing.T) {
	tui := newTestTUI(t)
	for range maxMessages + 50 {
		tui.addMessage(Message{Role: roleUser, Text: "test"})
	}
	if len(tui.messages) != maxMessages {
		t.Errorf("got %d messages, want %d", len(tui.messages), maxMessages)
	}
}

func TestHandleChunk(t *testing.T) {
	t.Run("text appends to output", func(t *testing.T) {
		tui := newTestTUI(t)
		tui.state = StateStreaming
		tui.streamEventCh = make(chan streamEvent, 1)
		tui.toolStatus = "Searching..."

		model, _ := tui.handleChunk(&stream.ParsedChunk{
			Kind: stream.ChunkText,
			Text: &stream.TextChunk{Content: "Hello"},
		})
		result := model.(*TUI)

		if result.output.String() != "Hello" {
			t.Errorf("got %q, want %q", result.output.String(), "Hello")
		}
		if result.toolStatus != "" {
			t.Error("text should clear tool status")
		}
	})

	t.Run("tool use sets status", func(t *testing.T) {
		tui := newTestTUI(t)
		tui.state = StateStreaming
		tui.streamEventCh = make(chan streamEvent, 1)

		model, _ := tui.handleChunk(&stream.ParsedChunk{
			Kind:    stream.ChunkToolUse,
			ToolUse: &stream.ToolInvocation{Name: "query_db", DisplayName: "Querying Database"},
		})
		if got := model.(*TUI).toolStatus; got != "Querying Database..." {
			t.Errorf("got %q", got)
		}
	})

	t.Run("tool result clears status", func(t *testing.T) {
		tui := newTestTUI(t)
		tui.state = StateStreaming
		tui.streamEventCh = make(chan streamEvent, 1)
		tui.toolStatus = "Querying Database..."

		model, _ := tui.handleChunk(&stream.ParsedChunk{
			Kind:       stream.ChunkToolResult,
			ToolResult: &stream.ToolResultChunk{Name: "query_db"},
		})
		if model.(*TUI).toolStatus != "" {
			t.Error("tool result should clear status")
		}
	})

	t.Run("todo shows in-progress item", func(t *testing.T) {
		tui := newTestTUI(t)
		tui.state = StateStreaming
		tui.streamEventCh = make(chan streamEvent, 1)

		model, _ := tui.handleChunk(&stream.ParsedChunk{
			Kind: stream.ChunkTodo,
			Todo: []stream.TodoItem{
				{Content: "Fetch data", Status: "completed"},
				{Content: "Build chart", Status: "in_progress"},
			},
		})
		if got := model.(*TUI).toolStatus; got != "Build chart..." {
			t.Errorf("got %q", got)
		}
	})

	t.Run("error chunk ends the turn", func(t *testing.T) {
		tui := newTestTUI(t)
		tui.state = StateStreaming
		tui.streamEventCh = make(chan streamEvent, 1)

		model, _ := tui.handleChunk(&stream.ParsedChunk{
			Kind:    stream.ChunkError,
			Message: "agent unavailable",
		})
		result := model.(*TUI)

		if result.state != StateInput {
			t.Error("should return to StateInput")
		}
		if len(result.messages) != 1 || result.messages[0].Role != roleError {
			t.Error("should add error message")
		}
	})
}

func TestStreamMessageTypes(t *testing.T) {
	t.Run("streamDoneMsg", func(t *testing.T) {
		tui := newTestTUI(t)
		tui.state = StateStreaming
		_, _ = tui.output.WriteString("Hello World")

		chartData := []charts.ChartData{
			charts.TableChart{Headers: []string{"A"}, Rows: [][]string{{"1"}}},
		}
		model, _ := tui.Update(streamDoneMsg{response: "Hello World", charts: chartData})
		result := model.(*TUI)

		if result.state != StateInput {
			t.Error("should return to StateInput after done")
		}
		if len(result.messages) != 1 {
			t.Fatal("should add assistant message")
		}
		if len(result.messages[0].Charts) != 1 {
			t.Error("assistant message should carry chart data")
		}
		if result.output.Len() != 0 {
			t.Error("output buffer should be reset")
		}
	})

	t.Run("streamErrorMsg cancellation", func(t *testing.T) {
		tui := newTestTUI(t)
		tui.state = StateStreaming

		model, _ := tui.Update(streamErrorMsg{err: context.Canceled})
		result := model.(*TUI)

		if result.state != StateInput {
			t.Error("should return to StateInput after error")
		}
		if len(result.messages) != 1 || result.messages[0].Role != roleSystem {
			t.Error("cancellation should add a system message")
		}
	})

	t.Run("streamStatusMsg", func(t *testing.T) {
		tui := newTestTUI(t)
		tui.state = StateStreaming
		tui.streamEventCh = make(chan streamEvent, 1)

		model, _ := tui.Update(streamStatusMsg{status: extractingStatus})
		if model.(*TUI).toolStatus != extractingStatus {
			t.Error("status should be recorded")
		}
	})
}

func TestListenForStream(t *testing.T) {
	t.Run("chunk event", func(t *testing.T) {
		eventCh := make(chan streamEvent, 1)
		eventCh <- streamEvent{chunk: &stream.ParsedChunk{Kind: stream.ChunkText, Text: &stream.TextChunk{Content: "hi"}}}

		msg := listenForStream(eventCh)()
		m, ok := msg.(streamChunkMsg)
		if !ok {
			t.Fatalf("expected streamChunkMsg, got %T", msg)
		}
		if m.chunk.Text.Content != "hi" {
			t.Errorf("got %q", m.chunk.Text.Content)
		}
	})

	t.Run("done event", func(t *testing.T) {
		eventCh := make(chan streamEvent, 1)
		eventCh <- streamEvent{done: true, response: "done"}

		msg := listenForStream(eventCh)()
		m, ok := msg.(streamDoneMsg)
		if !ok {
			t.Fatalf("expected streamDoneMsg, got %T", msg)
		}
		if m.response != "done" {
			t.Errorf("got %q", m.response)
		}
	})

	t.Run("error event", func(t *testing.T) {
		eventCh := make(chan streamEvent, 1)
		eventCh <- streamEvent{err: context.Canceled}

		if _, ok := listenForStream(eventCh)().(streamErrorMsg); !ok {
			t.Error("expected streamErrorMsg")
		}
	})

	t.Run("channel closed", func(t *testing.T) {
		eventCh := make(chan streamEvent)
		close(eventCh)

		if _, ok := listenForStream(eventCh)().(streamErrorMsg); !ok {
			t.Error("expected streamErrorMsg on channel close")
		}
	})

	t.Run("nil channel returns nil", func(t *testing.T) {
		if msg := listenForStream(nil)(); msg != nil {
			t.Errorf("expected nil, got %T", msg)
		}
	})

	t.Run("empty events are skipped", func(t *testing.T) {
		eventCh := make(chan streamEvent, 2)
		eventCh <- streamEvent{}
		eventCh <- streamEvent{done: true}

		if _, ok := listenForStream(eventCh)().(streamDoneMsg); !ok {
			t.Error("expected streamDoneMsg after skipping empty event")
		}
	})
}

// drain runs the listen loop the way Bubble Tea would, until done or error.
func drain(t *testing.T, eventCh <-chan streamEvent) (streamDoneMsg, []streamChunkMsg) {
	t.Helper()
	var chunks []streamChunkMsg
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("stream did not complete")
		default:
		}
		switch msg := listenForStream(eventCh)().(type) {
		case streamChunkMsg:
			chunks = append(chunks, msg)
		case streamStatusMsg:
			// Transient, keep listening
		case streamDoneMsg:
			return msg, chunks
		case streamErrorMsg:
			t.Fatalf("stream error: %v", msg.err)
		}
	}
}

func TestStartStreamFullTurn(t *testing.T) {
	tui := newTestTUI(t)
	tui.transport = &testutil.ScriptedTransport{
		Chunks: testutil.TextChunks("First, I'll check the data. ", "Revenue grew 12%."),
	}
	extractor := &fakeExtractor{charts: []charts.ChartData{
		charts.TableChart{Headers: []string{"Q", "Rev"}, Rows: [][]string{{"Q1", "100"}}},
	}}
	tui.extractor = extractor
	store := &fakeStore{}
	tui.store = store

	msg := tui.startStream("how did revenue do?")()
	started, ok := msg.(streamStartedMsg)
	if !ok {
		t.Fatalf("expected streamStartedMsg, got %T", msg)
	}
	defer started.cancel()

	done, chunks := drain(t, started.eventCh)

	if len(chunks) == 0 {
		t.Error("expected at least one chunk")
	}
	// Planning narration is filtered from the display but the extractor
	// sees the full accumulated text.
	if done.response != "Revenue grew 12%." {
		t.Errorf("got response %q", done.response)
	}
	if !strings.Contains(extractor.lastText, "First, I'll check the data.") {
		t.Errorf("extractor text missing narration: %q", extractor.lastText)
	}
	if len(done.charts) != 1 {
		t.Errorf("got %d charts", len(done.charts))
	}

	if len(store.messages) != 2 {
		t.Fatalf("got %d persisted messages, want 2", len(store.messages))
	}
	if store.messages[0].Role != session.RoleUser || store.messages[1].Role != session.RoleAssistant {
		t.Error("wrong persisted roles")
	}
	if len(store.messages[1].Charts) == 0 {
		t.Error("assistant message should persist chart JSON")
	}
}

func TestStartStreamTransportError(t *testing.T) {
	tui := newTestTUI(t)
	tui.transport = &testutil.ScriptedTransport{
		Chunks: testutil.TextChunks("partial"),
		Err:    context.DeadlineExceeded,
	}

	msg := tui.startStream("hi")()
	started := msg.(streamStartedMsg)
	defer started.cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("no error delivered")
		default:
		}
		if m, ok := listenForStream(started.eventCh)().(streamErrorMsg); ok {
			if m.err == nil {
				t.Error("error should be set")
			}
			return
		}
	}
}

func TestEncodeCharts(t *testing.T) {
	t.Run("empty is nil", func(t *testing.T) {
		raw, err := encodeCharts(nil)
		if err != nil {
			t.Fatal(err)
		}
		if raw != nil {
			t.Error("expected nil for no charts")
		}
	})

	t.Run("type tagged", func(t *testing.T) {
		raw, err := encodeCharts([]charts.ChartData{
			charts.TableChart{Headers: []string{"A"}, Rows: [][]string{{"1"}}},
		})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(raw), `"type":"table"`) {
			t.Errorf("missing type tag: %s", raw)
		}
	})
}
