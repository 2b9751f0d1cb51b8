package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/chatviz/chatviz/internal/log"
)

// DB is the subset of pgxpool.Pool the store depends on. Defined here, by
// the consumer, so tests can substitute a transaction or a lighter fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store manages session persistence. Safe for concurrent use; all state
// lives in PostgreSQL.
type Store struct {
	db     DB
	logger log.Logger
}

// NewStore creates a Store over db.
func NewStore(db DB, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// CreateSession creates a new conversation session.
func (s *Store) CreateSession(ctx context.Context, title string) (*Session, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO sessions (id, title)
		VALUES ($1, $2)
		RETURNING id, title, created_at, updated_at, message_count`,
		uuid.New(), title)

	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	s.logger.Debug("created session", "id", sess.ID, "title", sess.Title)
	return sess, nil
}

// Session retrieves a session by ID. Returns ErrSessionNotFound when no such
// session exists.
func (s *Store) Session(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, title, created_at, updated_at, message_count
		FROM sessions WHERE id = $1`, id)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	return sess, nil
}

// Sessions lists sessions ordered by most recently updated.
func (s *Store) Sessions(ctx context.Context, limit, offset int32) ([]*Session, error) {
	limit = NormalizeListLimit(limit)
	rows, err := s.db.Query(ctx, `
		SELECT id, title, created_at, updated_at, message_count
		FROM sessions
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	s.logger.Debug("listed sessions", "count", len(sessions), "limit", limit, "offset", offset)
	return sessions, nil
}

// RenameSession updates a session's title.
func (s *Store) RenameSession(ctx context.Context, id uuid.UUID, title string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE sessions SET title = $2, updated_at = now() WHERE id = $1`, id, title)
	if err != nil {
		return fmt.Errorf("renaming session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return nil
}

// DeleteSession deletes a session and all its messages (CASCADE).
func (s *Store) DeleteSession(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	s.logger.Debug("deleted session", "id", id)
	return nil
}

// AddMessage appends one message to a session and returns it with its
// assigned sequence number.
//
// The session row is locked with SELECT ... FOR UPDATE so only one
// transaction assigns sequence numbers at a time. If any step fails the
// entire transaction rolls back.
func (s *Store) AddMessage(ctx context.Context, msg *Message) (*Message, error) {
	if msg.Role != RoleUser && msg.Role != RoleAssistant {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, msg.Role)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, msg.SessionID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", msg.SessionID, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("locking session: %w", err)
	}

	var nextSeq int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0) + 1
		FROM messages WHERE session_id = $1`, msg.SessionID).Scan(&nextSeq)
	if err != nil {
		return nil, fmt.Errorf("assigning sequence number: %w", err)
	}

	stored := *msg
	stored.ID = uuid.New()
	stored.SequenceNumber = nextSeq
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (id, session_id, role, content, charts, sequence_number)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		stored.ID, stored.SessionID, stored.Role, stored.Content, stored.Charts, stored.SequenceNumber,
	).Scan(&stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE sessions SET updated_at = now(), message_count = $2 WHERE id = $1`,
		msg.SessionID, nextSeq)
	if err != nil {
		return nil, fmt.Errorf("updating session metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Debug("added message", "session_id", msg.SessionID, "seq", nextSeq, "role", msg.Role)
	return &stored, nil
}

// Messages retrieves a session's messages ordered by sequence number.
func (s *Store) Messages(ctx context.Context, sessionID uuid.UUID, limit, offset int32) ([]*Message, error) {
	limit = NormalizeListLimit(limit)
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, role, content, charts, sequence_number, created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY sequence_number ASC
		LIMIT $2 OFFSET $3`, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("getting messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Charts, &m.SequenceNumber, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("getting messages for session %s: %w", sessionID, err)
	}

	s.logger.Debug("retrieved messages", "session_id", sessionID, "count", len(messages))
	return messages, nil
}

// scanSession scans one sessions row into a Session.
func scanSession(row pgx.Row) (*Session, error) {
	var sess Session
	if err := row.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt, &sess.MessageCount); err != nil {
		return nil, err
	}
	return &sess, nil
}
