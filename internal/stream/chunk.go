package stream

import "encoding/json"

// ChunkKind discriminates the normalized chunks the parser produces.
type ChunkKind int

// Parsed chunk kinds.
const (
	ChunkText ChunkKind = iota
	ChunkToolUse
	ChunkToolResult
	ChunkSystem
	ChunkThinking
	ChunkTodo
	ChunkError
)

// String returns the wire name of the kind.
func (k ChunkKind) String() string {
	switch k {
	case ChunkText:
		return "text"
	case ChunkToolUse:
		return "tool_use"
	case ChunkToolResult:
		return "tool_result"
	case ChunkSystem:
		return "system"
	case ChunkThinking:
		return "thinking"
	case ChunkTodo:
		return "todo"
	case ChunkError:
		return "error"
	default:
		return "unknown"
	}
}

// TextChunk carries the newly displayed text of one assistant-text chunk plus
// snapshots of both running accumulators. Accumulated includes filtered
// narration and is retained for diagnostics only; Displayed is what the user
// sees.
type TextChunk struct {
	Content     string `json:"content"`
	Accumulated string `json:"accumulated"`
	Displayed   string `json:"displayed"`
}

// ToolInvocation records one tool call made by the agent. Created when a
// tool-use chunk arrives and held in the parser's correlation map for the
// duration of the turn; a later tool result looks it up by ID.
type ToolInvocation struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	DisplayName string         `json:"display_name"`
	Input       map[string]any `json:"input,omitempty"`
}

// ToolResultChunk is a tool result correlated back to its invocation. Name
// degrades to "unknown" when no matching invocation exists.
type ToolResultChunk struct {
	ToolUseID string `json:"tool_use_id"`
	Name      string `json:"name"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error"`
}

// SystemChunk carries transport lifecycle notices.
type SystemChunk struct {
	Subtype   string `json:"subtype"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// TodoItem is one entry of an agent task-list update.
type TodoItem struct {
	Content string `json:"content"`
	Status  string `json:"status"`
}

// ParsedChunk is the normalized output of the parser: a closed union with
// exactly one payload set according to Kind.
type ParsedChunk struct {
	Kind       ChunkKind
	Text       *TextChunk
	ToolUse    *ToolInvocation
	ToolResult *ToolResultChunk
	System     *SystemChunk
	Thinking   string
	Todo       []TodoItem
	Message    string
}

// MarshalJSON flattens the union into a type-tagged envelope for the SSE
// surface.
func (c ParsedChunk) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type       string           `json:"type"`
		Text       *TextChunk       `json:"text,omitempty"`
		ToolUse    *ToolInvocation  `json:"tool_use,omitempty"`
		ToolResult *ToolResultChunk `json:"tool_result,omitempty"`
		System     *SystemChunk     `json:"system,omitempty"`
		Thinking   string           `json:"thinking,omitempty"`
		Todo       []TodoItem       `json:"todo,omitempty"`
		Message    string           `json:"message,omitempty"`
	}{
		Type:       c.Kind.String(),
		Text:       c.Text,
		ToolUse:    c.ToolUse,
		ToolResult: c.ToolResult,
		System:     c.System,
		Thinking:   c.Thinking,
		Todo:       c.Todo,
		Message:    c.Message,
	})
}
