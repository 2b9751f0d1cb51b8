// Package stream consumes the live agent event stream chunk by chunk. It
// maintains the cross-chunk state needed to strip planning narration from the
// displayed text and to correlate tool invocations with their results.
//
// One Parser instance is owned by exactly one conversation turn and must be
// fed chunks strictly in arrival order: both the narration filter and the
// tool correlation map are order-dependent. Reset is an explicit lifecycle
// operation at conversation boundaries, not an implicit one.
package stream

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chatviz/chatviz/internal/log"
)

// DefaultPlanningPatterns are the sentence lead-ins that mark agent planning
// narration ("thinking aloud" about an upcoming action). Each pattern is
// matched at sentence starts only, so already-filtered text never re-matches.
func DefaultPlanningPatterns() []string {
	return []string{
		`^I'll\s`,
		`^I will\s`,
		`^Let me\s`,
		`^Let's\s`,
		`^Now that I\b`,
		`^Now I(?:'ll| will)?\s`,
		`^First,?\s+I(?:'ll| will)?\s`,
		`^Next,?\s+I(?:'ll| will)?\s`,
		`^I'm going to\s`,
		`^I need to\s`,
		`^Checking\s`,
		`^Looking at\s`,
	}
}

// DefaultTodoToolName is the dedicated task-list tool that is surfaced as a
// Todo chunk instead of a generic tool use.
const DefaultTodoToolName = "TodoWrite"

// unknownToolName is the sentinel for tool results whose invocation was never
// seen.
const unknownToolName = "unknown"

// sentenceTerminators end a planning sentence.
const sentenceTerminators = ".!?"

// ParserConfig is the immutable configuration injected into a Parser.
type ParserConfig struct {
	// PlanningPatterns are regular expression sources, each anchored with
	// "^", tested at sentence starts. Empty means DefaultPlanningPatterns.
	PlanningPatterns []string

	// TodoToolName is the tool special-cased into Todo chunks. Empty means
	// DefaultTodoToolName.
	TodoToolName string

	// ToolDisplayNames maps tool identifiers to human-readable names.
	// Unmapped tools get a title-cased fallback.
	ToolDisplayNames map[string]string
}

type filterState int

const (
	stateNormal filterState = iota
	stateInPlanning
)

// Parser turns raw transport events into normalized chunks for display.
// Not safe for concurrent use; each conversation turn owns one instance.
type Parser struct {
	cfg      ParserConfig
	planning []*regexp.Regexp
	logger   log.Logger

	state       filterState
	planBuf     strings.Builder
	accumulated strings.Builder
	displayed   strings.Builder
	tools       map[string]ToolInvocation
}

// NewParser creates a Parser with the given configuration. Pattern
// compilation errors are returned rather than deferred to parse time.
func NewParser(cfg ParserConfig, logger log.Logger) (*Parser, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	sources := cfg.PlanningPatterns
	if len(sources) == 0 {
		sources = DefaultPlanningPatterns()
	}
	if cfg.TodoToolName == "" {
		cfg.TodoToolName = DefaultTodoToolName
	}

	compiled := make([]*regexp.Regexp, 0, len(sources))
	for _, src := range sources {
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("compile planning pattern %q: %w", src, err)
		}
		compiled = append(compiled, re)
	}

	return &Parser{
		cfg:      cfg,
		planning: compiled,
		logger:   logger,
		tools:    make(map[string]ToolInvocation),
	}, nil
}

// ParseChunk processes one event in arrival order and returns the normalized
// chunk, or nil for unrecognized event shapes. It never panics on malformed
// input.
func (p *Parser) ParseChunk(ev RawEventChunk) *ParsedChunk {
	switch ev.Kind {
	case RawAssistantText:
		return p.parseText(ev.Text)
	case RawAssistantToolUse:
		return p.parseToolUse(ev)
	case RawAssistantToolResult:
		return p.parseToolResult(ev)
	case RawSystem:
		return &ParsedChunk{Kind: ChunkSystem, System: &SystemChunk{
			Subtype:   ev.Subtype,
			SessionID: ev.SessionID,
		}}
	case RawThinking:
		return &ParsedChunk{Kind: ChunkThinking, Thinking: ev.Text}
	case RawError:
		return &ParsedChunk{Kind: ChunkError, Message: ev.Message}
	default:
		return nil
	}
}

// Reset clears all cross-chunk state. Must be called at conversation
// boundaries before the parser is reused.
func (p *Parser) Reset() {
	p.state = stateNormal
	p.planBuf.Reset()
	p.accumulated.Reset()
	p.displayed.Reset()
	p.tools = make(map[string]ToolInvocation)
}

// DisplayedText returns the narration-free text accumulated so far.
func (p *Parser) DisplayedText() string { return p.displayed.String() }

// AccumulatedText returns the full text including filtered narration. Never
// shown to the user; retained for diagnostics.
func (p *Parser) AccumulatedText() string { return p.accumulated.String() }

func (p *Parser) parseText(text string) *ParsedChunk {
	p.accumulated.WriteString(text)

	shown := p.filterText(text)
	p.displayed.WriteString(shown)

	return &ParsedChunk{Kind: ChunkText, Text: &TextChunk{
		Content:     shown,
		Accumulated: p.accumulated.String(),
		Displayed:   p.displayed.String(),
	}}
}

func (p *Parser) parseToolUse(ev RawEventChunk) *ParsedChunk {
	inv := ToolInvocation{
		ID:          ev.ToolID,
		Name:        ev.ToolName,
		DisplayName: p.displayName(ev.ToolName),
		Input:       ev.ToolInput,
	}
	p.tools[inv.ID] = inv

	if ev.ToolName == p.cfg.TodoToolName {
		return &ParsedChunk{Kind: ChunkTodo, Todo: todoItems(ev.ToolInput)}
	}
	return &ParsedChunk{Kind: ChunkToolUse, ToolUse: &inv}
}

func (p *Parser) parseToolResult(ev RawEventChunk) *ParsedChunk {
	name := unknownToolName
	if inv, ok := p.tools[ev.ToolUseID]; ok {
		name = inv.Name
	} else {
		p.logger.Debug("tool result without matching invocation", "tool_use_id", ev.ToolUseID)
	}
	return &ParsedChunk{Kind: ChunkToolResult, ToolResult: &ToolResultChunk{
		ToolUseID: ev.ToolUseID,
		Name:      name,
		Result:    ev.Content,
		IsError:   ev.IsError,
	}}
}

func (p *Parser) displayName(tool string) string {
	if name, ok := p.cfg.ToolDisplayNames[tool]; ok {
		return name
	}
	words := strings.FieldsFunc(tool, func(r rune) bool { return r == '_' || r == '-' })
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// todoItems extracts task-list entries from the todo tool's input. Malformed
// entries are skipped; the update itself still surfaces.
func todoItems(input map[string]any) []TodoItem {
	raw, ok := input["todos"].([]any)
	if !ok {
		return nil
	}
	items := make([]TodoItem, 0, len(raw))
	for _, e := range raw {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		content, _ := m["content"].(string)
		status, _ := m["status"].(string)
		if content == "" {
			continue
		}
		items = append(items, TodoItem{Content: content, Status: status})
	}
	return items
}

// filterText runs the planning-narration state machine over one chunk of
// assistant text and returns what should be displayed.
func (p *Parser) filterText(text string) string {
	if p.state == stateInPlanning {
		p.planBuf.WriteString(text)
		buf := p.planBuf.String()
		term := strings.IndexAny(buf, sentenceTerminators)
		if term < 0 {
			// Still inside the planning sentence; keep buffering.
			return ""
		}
		rest := strings.TrimLeft(buf[term+1:], " \t")
		p.planBuf.Reset()
		p.state = stateNormal
		return p.filterNormal(rest)
	}
	return p.filterNormal(text)
}

// filterNormal scans text from the NORMAL state. The "remaining buffer" loop
// is deliberately iterative: any number of consecutive planning phrases in
// one chunk reprocess without growing the stack.
func (p *Parser) filterNormal(text string) string {
	var out strings.Builder
	remaining := text

	for remaining != "" {
		start := p.planningStart(remaining)
		if start < 0 {
			out.WriteString(remaining)
			break
		}
		out.WriteString(remaining[:start])

		term := strings.IndexAny(remaining[start:], sentenceTerminators)
		if term < 0 {
			// Lead-in without terminator in this chunk: buffer and wait.
			p.state = stateInPlanning
			p.planBuf.Reset()
			p.planBuf.WriteString(remaining[start:])
			break
		}
		remaining = strings.TrimLeft(remaining[start+term+1:], " \t")
	}
	return out.String()
}

// planningStart returns the earliest sentence-start offset at which a
// planning pattern matches, or -1.
func (p *Parser) planningStart(text string) int {
	for _, pos := range sentenceStarts(text) {
		rest := text[pos:]
		for _, re := range p.planning {
			if re.MatchString(rest) {
				return pos
			}
		}
	}
	return -1
}

// sentenceStarts returns the offsets where a new sentence can begin: the
// first non-space position, and every position following a terminator or
// newline plus whitespace.
func sentenceStarts(text string) []int {
	var starts []int
	i := 0
	for i < len(text) && (text[i] == ' ' || text[i] == '\t') {
		i++
	}
	if i < len(text) {
		starts = append(starts, i)
	}
	for j := 0; j < len(text); j++ {
		c := text[j]
		if !strings.ContainsRune(sentenceTerminators+"\n", rune(c)) {
			continue
		}
		k := j + 1
		for k < len(text) && (text[k] == ' ' || text[k] == '\t' || text[k] == '\n') {
			k++
		}
		if k < len(text) && (len(starts) == 0 || starts[len(starts)-1] != k) {
			starts = append(starts, k)
		}
	}
	return starts
}
