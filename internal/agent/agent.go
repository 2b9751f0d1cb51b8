// Package agent talks to the remote reasoning agent. The agent does the
// thinking; this package only carries prompts out and ordered event chunks
// back. Delegation policy and prompt text are static configuration fed to
// the remote side, not logic that lives here.
package agent

import (
	"context"

	"github.com/chatviz/chatviz/internal/stream"
)

// Request is one conversation turn sent to the agent.
type Request struct {
	// SessionID resumes an existing remote session when non-empty.
	SessionID string

	// Prompt is the user's message for this turn.
	Prompt string
}

// StreamEvent is one element of a turn's event stream: either a decoded
// chunk or a terminal error. The channel closes when the turn completes.
type StreamEvent struct {
	Chunk stream.RawEventChunk
	Err   error
}

// Transport streams ordered, complete event chunks for one turn. The
// transport owns delivery mechanics; consumers feed the chunks to a
// stream.Parser strictly in channel order.
type Transport interface {
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// TokenSource supplies the bearer credential for the agent API.
// Implementations are expected to cache and refresh; see the credentials
// package.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to the TokenSource interface.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken is a TokenSource for a fixed credential, useful in tests and
// for keys passed through the environment.
func StaticToken(token string) TokenSource {
	return TokenFunc(func(context.Context) (string, error) { return token, nil })
}
