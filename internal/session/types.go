// Package session provides conversation history persistence with PostgreSQL.
//
// A session is one conversation: an ordered list of messages, each optionally
// carrying the charts extracted from it. The [Store] handles persistence; it
// knows nothing about how messages are produced.
//
// # Transaction Safety
//
// [Store.AddMessage] locks the session row with SELECT ... FOR UPDATE before
// assigning a sequence number, so concurrent writers cannot collide. If any
// step fails the whole transaction rolls back.
//
// # Local State
//
// [SaveCurrentSessionID] and [LoadCurrentSessionID] persist the active
// session to ~/.chatviz/current_session so consecutive CLI invocations
// continue the same conversation.
package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role constants define valid message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session represents one conversation.
type Session struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Message is a single conversation message. Content holds the displayed
// text; for assistant messages that is the narration-filtered form. Charts
// holds the chart payloads extracted from the message, serialized as JSONB.
type Message struct {
	ID             uuid.UUID       `json:"id"`
	SessionID      uuid.UUID       `json:"session_id"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	Charts         json.RawMessage `json:"charts,omitempty"`
	SequenceNumber int             `json:"sequence_number"`
	CreatedAt      time.Time       `json:"created_at"`
}
