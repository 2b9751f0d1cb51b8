package testutil

import (
	"context"
	"sync"

	"github.com/chatviz/chatviz/internal/agent"
	"github.com/chatviz/chatviz/internal/stream"
)

// ScriptedTransport is an agent.Transport that replays a fixed chunk
// sequence for every turn. It records the requests it received.
type ScriptedTransport struct {
	// Chunks are emitted in order for each Stream call.
	Chunks []stream.RawEventChunk

	// Err, when set, is emitted as the final event after Chunks.
	Err error

	mu       sync.Mutex
	requests []agent.Request
}

// Stream implements agent.Transport.
func (t *ScriptedTransport) Stream(ctx context.Context, req agent.Request) (<-chan agent.StreamEvent, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	t.mu.Unlock()

	events := make(chan agent.StreamEvent, len(t.Chunks)+1)
	go func() {
		defer close(events)
		for _, chunk := range t.Chunks {
			select {
			case events <- agent.StreamEvent{Chunk: chunk}:
			case <-ctx.Done():
				return
			}
		}
		if t.Err != nil {
			select {
			case events <- agent.StreamEvent{Err: t.Err}:
			case <-ctx.Done():
			}
		}
	}()
	return events, nil
}

// Requests returns a copy of the requests seen so far.
func (t *ScriptedTransport) Requests() []agent.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]agent.Request, len(t.requests))
	copy(out, t.requests)
	return out
}

// TextChunks builds assistant text chunks from the given strings, a common
// scripted-transport setup.
func TextChunks(texts ...string) []stream.RawEventChunk {
	chunks := make([]stream.RawEventChunk, len(texts))
	for i, text := range texts {
		chunks[i] = stream.RawEventChunk{Kind: stream.RawAssistantText, Text: text}
	}
	return chunks
}
