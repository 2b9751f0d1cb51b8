package stream

import (
	"encoding/json"
	"fmt"
)

// RawEventKind discriminates the event records the agent transport delivers.
type RawEventKind int

// Raw event kinds. RawUnknown covers any record whose type tag is not part of
// the closed set; the parser ignores such chunks rather than failing.
const (
	RawUnknown RawEventKind = iota
	RawSystem
	RawAssistantText
	RawAssistantToolUse
	RawAssistantToolResult
	RawThinking
	RawError
)

// RawEventChunk is one discrete event record in the ordered stream emitted by
// the remote agent during a response turn. The transport owns the wire
// format; the parser only reads decoded chunks.
//
// Exactly the fields for the chunk's Kind are meaningful; the rest are zero.
type RawEventChunk struct {
	Kind RawEventKind

	// System.
	Subtype   string
	SessionID string

	// AssistantText and Thinking.
	Text string

	// AssistantToolUse.
	ToolID    string
	ToolName  string
	ToolInput map[string]any

	// AssistantToolResult.
	ToolUseID string
	Content   string
	IsError   bool

	// Error.
	Message string
}

// rawEventWire is the JSON shape of one transport record.
type rawEventWire struct {
	Type      string         `json:"type"`
	Subtype   string         `json:"subtype,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// DecodeRawEvent decodes one JSON transport record into a RawEventChunk.
// Records with an unrecognized type tag decode to Kind RawUnknown; only
// malformed JSON is an error.
func DecodeRawEvent(data []byte) (RawEventChunk, error) {
	var w rawEventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return RawEventChunk{}, fmt.Errorf("decode event record: %w", err)
	}

	switch w.Type {
	case "system":
		return RawEventChunk{Kind: RawSystem, Subtype: w.Subtype, SessionID: w.SessionID}, nil
	case "assistant_text":
		return RawEventChunk{Kind: RawAssistantText, Text: w.Text}, nil
	case "assistant_tool_use":
		return RawEventChunk{Kind: RawAssistantToolUse, ToolID: w.ID, ToolName: w.Name, ToolInput: w.Input}, nil
	case "assistant_tool_result":
		return RawEventChunk{Kind: RawAssistantToolResult, ToolUseID: w.ToolUseID, Content: w.Content, IsError: w.IsError}, nil
	case "thinking":
		return RawEventChunk{Kind: RawThinking, Text: w.Text}, nil
	case "error":
		return RawEventChunk{Kind: RawError, Message: w.Message}, nil
	default:
		return RawEventChunk{Kind: RawUnknown}, nil
	}
}
