package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/chatviz/chatviz/internal/log"
	"github.com/chatviz/chatviz/internal/session"
)

// Session validation constants.
const (
	MaxTitleLength   = 100
	DefaultListLimit = 100
	MaxListLimit     = 1000
	MaxListOffset    = 100000 // Reasonable upper bound for pagination offset
)

// SessionStore is the persistence dependency of the session endpoints,
// satisfied by *session.Store.
type SessionStore interface {
	CreateSession(ctx context.Context, title string) (*session.Session, error)
	Session(ctx context.Context, id uuid.UUID) (*session.Session, error)
	Sessions(ctx context.Context, limit, offset int32) ([]*session.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	Messages(ctx context.Context, sessionID uuid.UUID, limit, offset int32) ([]*session.Message, error)
	AddMessage(ctx context.Context, msg *session.Message) (*session.Message, error)
}

// SessionHandler handles session-related HTTP endpoints.
type SessionHandler struct {
	store  SessionStore
	logger log.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(store SessionStore, logger log.Logger) *SessionHandler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &SessionHandler{store: store, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.list)
	mux.HandleFunc("POST /api/sessions", h.create)
	mux.HandleFunc("GET /api/sessions/{id}", h.get)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.delete)
	mux.HandleFunc("GET /api/sessions/{id}/messages", h.messages)
}

// list returns sessions with pagination.
// Query parameters:
//   - limit: maximum number of sessions to return (default: 100, max: 1000)
//   - offset: number of sessions to skip (default: 0)
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	// #nosec G115 -- limit and offset are bounded by MaxListLimit and MaxListOffset
	sessions, err := h.store.Sessions(r.Context(), int32(limit), int32(offset))
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "LIST_FAILED", "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    len(sessions),
		"limit":    limit,
		"offset":   offset,
	})
}

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	Title string `json:"title"`
}

// create creates a new session.
func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if len(req.Title) > MaxTitleLength {
		writeError(w, http.StatusBadRequest, "TITLE_TOO_LONG", "title too long (max 100 characters)")
		return
	}
	if req.Title == "" {
		req.Title = "New Session"
	}

	sess, err := h.store.CreateSession(r.Context(), req.Title)
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "CREATE_FAILED", "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

// get returns one session by ID.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	sess, err := h.store.Session(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
			return
		}
		h.logger.Error("failed to get session", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "GET_FAILED", "failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// delete removes a session and its messages.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteSession(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
			return
		}
		h.logger.Error("failed to delete session", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "DELETE_FAILED", "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// messages returns a session's messages ordered by sequence number.
func (h *SessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	// Distinguish an unknown session from one with no messages.
	if _, err := h.store.Session(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
			return
		}
		h.logger.Error("failed to get session", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "GET_FAILED", "failed to get session")
		return
	}

	// #nosec G115 -- limit and offset are bounded by MaxListLimit and MaxListOffset
	messages, err := h.store.Messages(r.Context(), id, int32(limit), int32(offset))
	if err != nil {
		h.logger.Error("failed to list messages", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "LIST_FAILED", "failed to list messages")
		return
	}
	if messages == nil {
		messages = []*session.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"total":    len(messages),
		"limit":    limit,
		"offset":   offset,
	})
}

// pathID parses the {id} path segment as a UUID, writing a 400 on failure.
func (h *SessionHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "session id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// parseIntParam parses an integer query parameter with bounds checking.
func parseIntParam(r *http.Request, name string, defaultVal, min, max int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
