package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chatviz/chatviz/internal/log"
	"github.com/chatviz/chatviz/internal/stream"
)

const (
	// streamBufferSize decouples the network reader from a slow consumer.
	streamBufferSize = 100

	// maxEventLineBytes caps one NDJSON line. Tool results can carry large
	// payloads but anything beyond this is a protocol violation.
	maxEventLineBytes = 1 << 20

	defaultHeaderTimeout = 30 * time.Second
)

// Client streams agent turns over HTTP. Each turn is a POST whose response
// body is newline-delimited JSON, one event chunk per line.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	logger  log.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The default waits a
// bounded time for response headers but sets no overall deadline, since turn
// streams are long-lived.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient creates a streaming agent client. tokens may be nil for
// unauthenticated endpoints.
func NewClient(baseURL string, tokens TokenSource, logger log.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	c := &Client{
		baseURL: baseURL,
		tokens:  tokens,
		http: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: defaultHeaderTimeout,
			},
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type turnRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Prompt    string `json:"prompt"`
}

// Stream starts a turn and returns a channel of decoded event chunks. The
// channel closes when the agent finishes the turn, the context is cancelled,
// or the connection drops; in the failure cases the last event carries the
// error.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	body, err := json.Marshal(turnRequest{SessionID: req.SessionID, Prompt: req.Prompt})
	if err != nil {
		return nil, fmt.Errorf("encoding turn request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/turns", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building turn request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving agent credential: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("starting turn: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("agent returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	events := make(chan StreamEvent, streamBufferSize)
	go c.readEvents(ctx, resp.Body, events)
	return events, nil
}

// readEvents decodes the NDJSON body line by line until EOF or cancellation.
// It owns closing both the body and the channel.
func (c *Client) readEvents(ctx context.Context, body io.ReadCloser, events chan<- StreamEvent) {
	defer close(events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxEventLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		chunk, err := stream.DecodeRawEvent(line)
		if err != nil {
			c.logger.Debug("dropping undecodable stream line", "error", err)
			continue
		}
		if !c.deliver(ctx, events, StreamEvent{Chunk: chunk}) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		// Cancellation surfaces as a body read error; report the context's
		// error instead when that is the cause.
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		c.deliver(ctx, events, StreamEvent{Err: fmt.Errorf("reading turn stream: %w", err)})
	}
}

func (c *Client) deliver(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
