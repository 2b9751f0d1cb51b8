package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/chatviz/chatviz/internal/agent"
	"github.com/chatviz/chatviz/internal/charts"
	"github.com/chatviz/chatviz/internal/log"
	"github.com/chatviz/chatviz/internal/session"
	"github.com/chatviz/chatviz/internal/stream"
)

// MaxPromptLength bounds one chat turn's prompt.
const MaxPromptLength = 32 * 1024

// ChartExtractor turns a completed turn's text into chart payloads,
// satisfied by *extract.Orchestrator.
type ChartExtractor interface {
	Charts(ctx context.Context, text string, mapping *charts.FieldMapping) []charts.ChartData
}

// ChatHandler runs chat turns against the remote agent and streams the
// parsed result as Server-Sent Events.
//
// Event types:
//   - chunk:  one parsed chunk, in the ParsedChunk JSON envelope
//   - charts: chart payloads extracted from the completed turn
//   - done:   final response {"session_id": "...", "response": "..."}
//   - error:  {"code": "...", "message": "..."}
type ChatHandler struct {
	transport agent.Transport
	extractor ChartExtractor
	store     SessionStore
	parserCfg stream.ParserConfig
	logger    log.Logger
}

// NewChatHandler creates a chat handler. parserCfg zero value uses the
// default planning patterns.
func NewChatHandler(transport agent.Transport, extractor ChartExtractor, store SessionStore, parserCfg stream.ParserConfig, logger log.Logger) *ChatHandler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &ChatHandler{
		transport: transport,
		extractor: extractor,
		store:     store,
		parserCfg: parserCfg,
		logger:    logger,
	}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.handleChat)
}

// ChatRequest is the request body for one turn. An empty session_id starts
// a new session.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
}

// sseErrorData is the data for "error" events.
type sseErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sseDoneData is the data for "done" events.
type sseDoneData struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

// chartEnvelope tags a chart payload with its type for consumers.
type chartEnvelope struct {
	Type  charts.PatternType `json:"type"`
	Chart charts.ChartData   `json:"chart"`
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeSSEError(w, flusher, "INVALID_REQUEST", fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Prompt == "" {
		h.writeSSEError(w, flusher, "MISSING_PROMPT", "prompt is required")
		return
	}
	if len(req.Prompt) > MaxPromptLength {
		h.writeSSEError(w, flusher, "PROMPT_TOO_LONG", "prompt exceeds maximum length")
		return
	}

	ctx := r.Context()
	sess, err := h.resolveSession(ctx, req)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			h.writeSSEError(w, flusher, "SESSION_NOT_FOUND", "session not found")
			return
		}
		h.logger.Error("failed to resolve session", "error", err)
		h.writeSSEError(w, flusher, "SESSION_ERROR", "failed to resolve session")
		return
	}

	parser, err := stream.NewParser(h.parserCfg, h.logger)
	if err != nil {
		h.logger.Error("failed to build stream parser", "error", err)
		h.writeSSEError(w, flusher, "INTERNAL", "parser configuration invalid")
		return
	}

	if _, err := h.store.AddMessage(ctx, &session.Message{
		SessionID: sess.ID,
		Role:      session.RoleUser,
		Content:   req.Prompt,
	}); err != nil {
		h.logger.Error("failed to persist user message", "error", err)
		h.writeSSEError(w, flusher, "PERSIST_ERROR", "failed to save message")
		return
	}

	events, err := h.transport.Stream(ctx, agent.Request{
		SessionID: req.SessionID,
		Prompt:    req.Prompt,
	})
	if err != nil {
		h.logger.Error("failed to start agent turn", "error", err)
		h.writeSSEError(w, flusher, "AGENT_ERROR", "failed to reach agent")
		return
	}

	h.logger.Info("SSE stream started", "session_id", sess.ID)

	for ev := range events {
		select {
		case <-ctx.Done():
			h.logger.Info("client disconnected", "session_id", sess.ID)
			return
		default:
		}

		if ev.Err != nil {
			h.logger.Error("agent stream failed", "error", ev.Err, "session_id", sess.ID)
			h.writeSSEError(w, flusher, "STREAM_ERROR", ev.Err.Error())
			return
		}

		chunk := parser.ParseChunk(ev.Chunk)
		if chunk == nil {
			continue
		}
		h.writeSSEEvent(w, flusher, "chunk", chunk)
	}

	// Chart extraction runs over the full accumulated text: the narration
	// filter shapes display only, data may hide inside filtered sentences.
	chartData := h.extractor.Charts(ctx, parser.AccumulatedText(), nil)
	envelopes := make([]chartEnvelope, 0, len(chartData))
	for _, c := range chartData {
		envelopes = append(envelopes, chartEnvelope{Type: c.ChartType(), Chart: c})
	}

	displayed := parser.DisplayedText()
	var chartsJSON json.RawMessage
	if len(envelopes) > 0 {
		chartsJSON, err = json.Marshal(envelopes)
		if err != nil {
			h.logger.Error("failed to encode charts", "error", err)
			chartsJSON = nil
		}
	}
	if _, err := h.store.AddMessage(ctx, &session.Message{
		SessionID: sess.ID,
		Role:      session.RoleAssistant,
		Content:   displayed,
		Charts:    chartsJSON,
	}); err != nil {
		h.logger.Error("failed to persist assistant message", "error", err, "session_id", sess.ID)
	}

	if len(envelopes) > 0 {
		h.writeSSEEvent(w, flusher, "charts", envelopes)
	}
	h.writeSSEEvent(w, flusher, "done", sseDoneData{
		SessionID: sess.ID.String(),
		Response:  displayed,
	})
	h.logger.Info("SSE stream completed",
		"session_id", sess.ID,
		"charts", len(envelopes),
		"response_len", len(displayed))
}

// resolveSession loads the requested session or creates a fresh one when no
// session_id was supplied. New sessions are titled from the prompt.
func (h *ChatHandler) resolveSession(ctx context.Context, req ChatRequest) (*session.Session, error) {
	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid id", session.ErrSessionNotFound)
		}
		return h.store.Session(ctx, id)
	}
	return h.store.CreateSession(ctx, titleFromPrompt(req.Prompt))
}

// titleFromPrompt derives a session title from the first words of a prompt.
func titleFromPrompt(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= MaxTitleLength {
		return prompt
	}
	return string(runes[:MaxTitleLength-3]) + "..."
}

// writeSSEEvent writes one named event to the SSE stream.
func (h *ChatHandler) writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to encode SSE event", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

// writeSSEError writes an error event to the SSE stream.
func (h *ChatHandler) writeSSEError(w http.ResponseWriter, flusher http.Flusher, code, message string) {
	h.writeSSEEvent(w, flusher, "error", sseErrorData{Code: code, Message: message})
}
