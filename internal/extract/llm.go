package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/chatviz/chatviz/internal/charts"
	"github.com/chatviz/chatviz/internal/log"
)

// maxLLMResponseBytes limits the model response size before JSON parsing.
const maxLLMResponseBytes = 32 * 1024

// maxLLMInputRunes truncates oversized turn text before it is embedded in the
// extraction prompt.
const maxLLMInputRunes = 8000

// ErrInvalidPayload indicates the model returned something that is not a
// valid chart payload.
var ErrInvalidPayload = errors.New("invalid extraction payload")

// extractionPrompt instructs the model to pull one chart-worthy dataset out
// of free text. The response must be a single JSON object matching
// llmPayload.
const extractionPrompt = `You extract chartable data from text. Analyze the text below and return the single most chart-worthy dataset as JSON.

Rules:
- "type" must be one of: "time_series", "comparison", "distribution", "table"
- "confidence" is your certainty from 0.0 to 1.0 that the data is really this shape
- "data" maps field names to a scalar or an array of scalars; arrays must have equal length
- Use the exact labels found in the text as field names
- Return {"type": "none"} if the text contains no chartable data
- Return only JSON, no commentary

Example: {"type": "time_series", "confidence": 0.9, "title": "Monthly sales", "data": {"month": ["Jan", "Feb"], "sales": [100, 150]}}

TEXT:
%s

JSON:`

// llmPayload is the wire shape the model must produce.
type llmPayload struct {
	Type       string          `json:"type"`
	Confidence float64         `json:"confidence,omitempty"`
	Title      string          `json:"title,omitempty"`
	XAxisLabel string          `json:"x_axis_label,omitempty"`
	YAxisLabel string          `json:"y_axis_label,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// payloadSchema validates the decoded model response before any of it is
// trusted.
var payloadSchema = &jsonschema.Schema{
	Type:     "object",
	Required: []string{"type"},
	Properties: map[string]*jsonschema.Schema{
		"type": {
			Type: "string",
			Enum: []any{"time_series", "comparison", "distribution", "table", "none"},
		},
		"confidence":   {Type: "number"},
		"title":        {Type: "string"},
		"x_axis_label": {Type: "string"},
		"y_axis_label": {Type: "string"},
		"data":         {Type: "object"},
	},
}

// LLMExtractor implements Fallback on top of a genkit model. It is the
// higher-cost, higher-accuracy side of the extraction trade-off and is only
// consulted by the orchestrator when heuristics score low.
type LLMExtractor struct {
	g        *genkit.Genkit
	model    string
	resolved *jsonschema.Resolved
	logger   log.Logger
}

// NewLLMExtractor creates the genkit-backed fallback extractor.
func NewLLMExtractor(g *genkit.Genkit, model string, logger log.Logger) (*LLMExtractor, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	resolved, err := payloadSchema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve payload schema: %w", err)
	}
	return &LLMExtractor{g: g, model: model, resolved: resolved, logger: logger}, nil
}

// Extract asks the model for a chart payload and converts it into a
// DataPattern. Any validation failure is an error for the orchestrator to
// degrade on.
func (e *LLMExtractor) Extract(ctx context.Context, text string) (charts.DataPattern, error) {
	resp, err := genkit.Generate(ctx, e.g,
		ai.WithModelName(e.model),
		ai.WithPrompt(fmt.Sprintf(extractionPrompt, truncateRunes(text, maxLLMInputRunes))),
	)
	if err != nil {
		return charts.DataPattern{}, fmt.Errorf("generating extraction: %w", err)
	}

	raw := stripCodeFences(strings.TrimSpace(resp.Text()))
	if raw == "" {
		return charts.DataPattern{}, fmt.Errorf("%w: empty response", ErrInvalidPayload)
	}
	if len(raw) > maxLLMResponseBytes {
		return charts.DataPattern{}, fmt.Errorf("%w: response too large (%d bytes)", ErrInvalidPayload, len(raw))
	}

	return e.parsePayload(raw)
}

func (e *LLMExtractor) parsePayload(raw string) (charts.DataPattern, error) {
	var instance any
	if err := json.Unmarshal([]byte(raw), &instance); err != nil {
		return charts.DataPattern{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := e.resolved.Validate(instance); err != nil {
		return charts.DataPattern{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var p llmPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return charts.DataPattern{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.Type == "none" {
		return charts.DataPattern{}, fmt.Errorf("%w: model found no chartable data", ErrInvalidPayload)
	}

	fields, ok := charts.ParseObject(string(p.Data))
	if !ok || len(fields) == 0 {
		return charts.DataPattern{}, fmt.Errorf("%w: data object not parseable", ErrInvalidPayload)
	}

	return charts.DataPattern{
		Type:       charts.PatternType(p.Type),
		Confidence: clamp01(p.Confidence),
		Data:       fields,
		Metadata: charts.Metadata{
			Title:      p.Title,
			XAxisLabel: p.XAxisLabel,
			YAxisLabel: p.YAxisLabel,
		},
	}, nil
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// stripCodeFences removes a ```json ... ``` wrapper from model output.
func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx != -1 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
