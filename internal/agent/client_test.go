package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/chatviz/chatviz/internal/log"
	"github.com/chatviz/chatviz/internal/stream"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ndjsonHandler serves the given lines as an NDJSON turn stream and records
// the request it saw.
func ndjsonHandler(t *testing.T, lines []string, got *http.Request) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		*got = *r
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			if _, err := w.Write([]byte(line + "\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func collect(t *testing.T, events <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestClientStream(t *testing.T) {
	var got http.Request
	srv := httptest.NewServer(ndjsonHandler(t, []string{
		`{"type": "system", "subtype": "init", "session_id": "sess-1"}`,
		``,
		`not json at all`,
		`{"type": "assistant_text", "text": "The answer is 42."}`,
		`{"type": "result", "text": "done"}`,
	}, &got))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("tok-123"), log.NewNop())
	events, err := c.Stream(context.Background(), Request{SessionID: "sess-1", Prompt: "hello"})
	if err != nil {
		t.Fatal(err)
	}

	out := collect(t, events)
	// Blank and undecodable lines are dropped; the unknown "result" type is
	// kept as RawUnknown for the parser to ignore.
	if len(out) != 3 {
		t.Fatalf("events = %d, want 3: %+v", len(out), out)
	}
	if out[0].Chunk.Kind != stream.RawSystem || out[0].Chunk.SessionID != "sess-1" {
		t.Errorf("first event = %+v", out[0].Chunk)
	}
	if out[1].Chunk.Kind != stream.RawAssistantText || out[1].Chunk.Text != "The answer is 42." {
		t.Errorf("second event = %+v", out[1].Chunk)
	}
	if out[2].Chunk.Kind != stream.RawUnknown {
		t.Errorf("third event = %+v, want RawUnknown", out[2].Chunk)
	}

	if got.URL.Path != "/v1/turns" {
		t.Errorf("path = %q", got.URL.Path)
	}
	if auth := got.Header.Get("Authorization"); auth != "Bearer tok-123" {
		t.Errorf("authorization = %q", auth)
	}
}

func TestClientStreamNoTokenSource(t *testing.T) {
	var got http.Request
	srv := httptest.NewServer(ndjsonHandler(t, nil, &got))
	defer srv.Close()

	c := NewClient(srv.URL, nil, log.NewNop())
	events, err := c.Stream(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	collect(t, events)

	if auth := got.Header.Get("Authorization"); auth != "" {
		t.Errorf("authorization = %q, want unset", auth)
	}
}

func TestClientStreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("bad"), log.NewNop())
	if _, err := c.Stream(context.Background(), Request{Prompt: "hi"}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestClientStreamCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"type": "assistant_text", "text": "partial"}` + "\n"))
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(srv.URL, nil, log.NewNop())
	events, err := c.Stream(ctx, Request{Prompt: "hi"})
	if err != nil {
		t.Fatal(err)
	}

	first := <-events
	if first.Chunk.Text != "partial" {
		t.Fatalf("first event = %+v", first)
	}
	cancel()

	// The stream must terminate promptly, ending with the context error.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Err != nil && ctx.Err() != nil {
				return
			}
		case <-deadline:
			t.Fatal("stream did not terminate after cancellation")
		}
	}
}

func TestStaticToken(t *testing.T) {
	tok, err := StaticToken("abc").Token(context.Background())
	if err != nil || tok != "abc" {
		t.Errorf("token = %q, %v", tok, err)
	}
}
