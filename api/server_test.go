package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatviz/chatviz/internal/log"
	"github.com/chatviz/chatviz/internal/stream"
	"github.com/chatviz/chatviz/internal/testutil"
)

func testServer() *Server {
	store := newFakeStore()
	return NewServer(
		NewHealthHandler(fakePinger{}, log.NewNop()),
		NewSessionHandler(store, log.NewNop()),
		NewChatHandler(&testutil.ScriptedTransport{}, &fakeExtractor{}, store, stream.ParserConfig{}, log.NewNop()),
	)
}

func TestServerRoutes(t *testing.T) {
	handler := testServer().Handler()

	cases := []struct {
		method, path string
		wantStatus   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/api/sessions", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodDelete, "/health", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, tc.wantStatus, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestServerRunShutsDownOnCancel(t *testing.T) {
	srv := testServer()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx, "127.0.0.1:0", log.NewNop())
	}()

	// Give the listener a moment, then cancel and expect a clean return.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
