// Package charts turns free-form agent text into renderer-agnostic chart
// data.
//
// The pipeline has three pure stages. A Detector finds structured-data
// candidates (JSON objects, markdown tables, whitespace-aligned tables) and
// classifies each into a confidence-scored DataPattern. A Promoter upgrades
// tables whose columns look temporal and numeric into time-series patterns.
// Transform maps a pattern, optionally guided by an explicit FieldMapping,
// into one of four immutable chart shapes that any renderer can consume.
//
// Everything here is heuristic best-effort: malformed candidates are
// discarded silently and detection continues. None of the stages performs
// I/O, holds mutable state, or is unsafe for concurrent use.
package charts

// PatternType classifies a detected data pattern.
type PatternType string

// Pattern types, in classification precedence order. Categories overlap;
// the detector applies them first-match-wins.
const (
	TypeTimeSeries   PatternType = "time_series"
	TypeDistribution PatternType = "distribution"
	TypeComparison   PatternType = "comparison"
	TypeTable        PatternType = "table"
)

// Metadata carries optional display hints attached to a pattern.
type Metadata struct {
	Title       string
	Description string
	XAxisLabel  string
	YAxisLabel  string
}

// DataPattern is a classified, confidence-scored structured-data candidate.
// Patterns are immutable once created: the detector and promoter build them,
// the transformer only reads them.
type DataPattern struct {
	Type       PatternType
	Confidence float64
	Data       []Field
	Metadata   Metadata
}

// Field returns the named field and whether it exists.
func (p DataPattern) Field(name string) (Field, bool) {
	for _, f := range p.Data {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldMapping is an explicit, agent-declared hint naming which fields serve
// as axis, category and value during transformation. Named fields that do not
// exist in the pattern's data are ignored and heuristics apply instead.
type FieldMapping struct {
	XAxis    string
	YAxis    []string
	Category string
	Value    string
}
