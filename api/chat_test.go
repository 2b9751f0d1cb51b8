package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatviz/chatviz/internal/charts"
	"github.com/chatviz/chatviz/internal/log"
	"github.com/chatviz/chatviz/internal/session"
	"github.com/chatviz/chatviz/internal/stream"
	"github.com/chatviz/chatviz/internal/testutil"
)

// fakeExtractor returns a fixed chart set for any text.
type fakeExtractor struct {
	charts   []charts.ChartData
	lastText string
}

func (f *fakeExtractor) Charts(_ context.Context, text string, _ *charts.FieldMapping) []charts.ChartData {
	f.lastText = text
	return f.charts
}

func chatMux(transport *testutil.ScriptedTransport, extractor ChartExtractor, store SessionStore) *http.ServeMux {
	mux := http.NewServeMux()
	NewChatHandler(transport, extractor, store, stream.ParserConfig{}, log.NewNop()).RegisterRoutes(mux)
	return mux
}

func postChat(t *testing.T, mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

// sseEvents splits an SSE body into event-name → data-line pairs, in order.
func sseEvents(t *testing.T, body string) []struct{ Event, Data string } {
	t.Helper()
	var out []struct{ Event, Data string }
	for _, block := range strings.Split(body, "\n\n") {
		var ev struct{ Event, Data string }
		for _, line := range strings.Split(block, "\n") {
			if after, ok := strings.CutPrefix(line, "event: "); ok {
				ev.Event = after
			}
			if after, ok := strings.CutPrefix(line, "data: "); ok {
				ev.Data = after
			}
		}
		if ev.Event != "" {
			out = append(out, ev)
		}
	}
	return out
}

func TestChatTurn(t *testing.T) {
	transport := &testutil.ScriptedTransport{
		Chunks: testutil.TextChunks("I'll look at the numbers. ", "Revenue grew 12% this quarter."),
	}
	extractor := &fakeExtractor{charts: []charts.ChartData{
		charts.TableChart{Headers: []string{"Quarter", "Revenue"}, Rows: [][]string{{"Q1", "100"}}},
	}}
	store := newFakeStore()
	mux := chatMux(transport, extractor, store)

	w := postChat(t, mux, `{"prompt": "how did revenue do?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := sseEvents(t, w.Body.String())
	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, ev.Event)
	}
	assert.Contains(t, kinds, "chunk")
	assert.Contains(t, kinds, "charts")
	require.Equal(t, "done", kinds[len(kinds)-1])

	// The planning narration is filtered from the final response but the
	// extractor sees the full accumulated text.
	var done sseDoneData
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-1].Data), &done))
	assert.Equal(t, "Revenue grew 12% this quarter.", done.Response)
	assert.Contains(t, extractor.lastText, "I'll look at the numbers.")

	// User and assistant messages are persisted, the latter with charts.
	sessID := done.SessionID
	require.NotEmpty(t, sessID)
	var stored []*session.Message
	for _, msgs := range store.messages {
		stored = msgs
	}
	require.Len(t, stored, 2)
	assert.Equal(t, session.RoleUser, stored[0].Role)
	assert.Equal(t, session.RoleAssistant, stored[1].Role)
	assert.NotEmpty(t, stored[1].Charts)
}

func TestChatTurnExistingSession(t *testing.T) {
	store := newFakeStore()
	sess, err := store.CreateSession(context.Background(), "existing")
	require.NoError(t, err)

	transport := &testutil.ScriptedTransport{Chunks: testutil.TextChunks("Sure.")}
	mux := chatMux(transport, &fakeExtractor{}, store)

	w := postChat(t, mux, `{"session_id": "`+sess.ID.String()+`", "prompt": "hello"}`)
	events := sseEvents(t, w.Body.String())
	require.NotEmpty(t, events)

	var done sseDoneData
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-1].Data), &done))
	assert.Equal(t, sess.ID.String(), done.SessionID)

	reqs := transport.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, sess.ID.String(), reqs[0].SessionID)
}

func TestChatTurnValidation(t *testing.T) {
	mux := chatMux(&testutil.ScriptedTransport{}, &fakeExtractor{}, newFakeStore())

	t.Run("missing prompt", func(t *testing.T) {
		w := postChat(t, mux, `{}`)
		events := sseEvents(t, w.Body.String())
		require.Len(t, events, 1)
		assert.Equal(t, "error", events[0].Event)
		assert.Contains(t, events[0].Data, "MISSING_PROMPT")
	})

	t.Run("unknown session", func(t *testing.T) {
		w := postChat(t, mux, `{"session_id": "b3b40e06-14e9-4a44-a571-6c8be6b1748d", "prompt": "hi"}`)
		events := sseEvents(t, w.Body.String())
		require.Len(t, events, 1)
		assert.Contains(t, events[0].Data, "SESSION_NOT_FOUND")
	})

	t.Run("malformed session id", func(t *testing.T) {
		w := postChat(t, mux, `{"session_id": "nope", "prompt": "hi"}`)
		events := sseEvents(t, w.Body.String())
		require.Len(t, events, 1)
		assert.Contains(t, events[0].Data, "SESSION_NOT_FOUND")
	})
}

func TestChatTurnStreamError(t *testing.T) {
	transport := &testutil.ScriptedTransport{
		Chunks: testutil.TextChunks("partial"),
		Err:    errors.New("connection reset"),
	}
	mux := chatMux(transport, &fakeExtractor{}, newFakeStore())

	w := postChat(t, mux, `{"prompt": "hi"}`)
	events := sseEvents(t, w.Body.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "error", last.Event)
	assert.Contains(t, last.Data, "STREAM_ERROR")
}

func TestChatTurnNoCharts(t *testing.T) {
	transport := &testutil.ScriptedTransport{Chunks: testutil.TextChunks("Plain answer.")}
	mux := chatMux(transport, &fakeExtractor{}, newFakeStore())

	w := postChat(t, mux, `{"prompt": "hi"}`)
	events := sseEvents(t, w.Body.String())
	for _, ev := range events {
		assert.NotEqual(t, "charts", ev.Event, "no charts event expected for chartless turn")
	}
	assert.Equal(t, "done", events[len(events)-1].Event)
}

func TestTitleFromPrompt(t *testing.T) {
	assert.Equal(t, "short", titleFromPrompt("short"))

	long := strings.Repeat("a", MaxTitleLength+50)
	title := titleFromPrompt(long)
	assert.Len(t, title, MaxTitleLength)
	assert.True(t, strings.HasSuffix(title, "..."))
}
