package charts

import (
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"
)

// DetectorConfig holds the heuristic constants used during detection. The
// thresholds are deliberate carry-overs from the original tuning, exposed as
// configuration rather than hard-coded; they have not been recalibrated
// against a labeled corpus.
type DetectorConfig struct {
	// ConfidenceFloor is the minimum confidence a pattern needs to be
	// surfaced. Default 0.75.
	ConfidenceFloor float64

	// MaxPatterns caps how many patterns one Detect call returns. Default 3.
	MaxPatterns int

	// Per category-and-source confidence constants.
	JSONTimeSeries   float64
	JSONDistribution float64
	JSONComparison   float64
	MarkdownTable    float64
	PlainTable       float64

	// TemporalTokens mark a key or header as temporal when contained
	// case-insensitively in its name.
	TemporalTokens []string

	// NumericScalarDistribution is the share of numeric scalar keys that
	// classifies a JSON object as a distribution. Default 0.6.
	NumericScalarDistribution float64

	// NumericScalarComparison is the share of numeric scalar keys that
	// classifies a JSON object as a comparison. Default 0.7.
	NumericScalarComparison float64

	// MaxTimeSeriesKeys bounds how many top-level keys an object may have
	// for the numeric-array time-series rule to apply. Default 5.
	MaxTimeSeriesKeys int
}

// DefaultTemporalTokens are the substrings that mark a field name as
// temporal.
func DefaultTemporalTokens() []string {
	return []string{"time", "date", "hour", "day", "week", "month"}
}

// DefaultDetectorConfig returns the detector defaults.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		ConfidenceFloor:           0.75,
		MaxPatterns:               3,
		JSONTimeSeries:            0.85,
		JSONDistribution:          0.80,
		JSONComparison:            0.75,
		MarkdownTable:             0.95,
		PlainTable:                0.85,
		TemporalTokens:            DefaultTemporalTokens(),
		NumericScalarDistribution: 0.6,
		NumericScalarComparison:   0.7,
		MaxTimeSeriesKeys:         5,
	}
}

// Detector finds structured-data candidates in a text blob and classifies
// each into a typed, confidence-scored DataPattern.
//
// Detect is a pure function of its input: safe for concurrent use across
// conversation turns.
type Detector struct {
	cfg      DetectorConfig
	promoter *Promoter
}

// NewDetector creates a Detector. Zero-valued config fields fall back to the
// defaults.
func NewDetector(cfg DetectorConfig) *Detector {
	def := DefaultDetectorConfig()
	if cfg.ConfidenceFloor == 0 {
		cfg.ConfidenceFloor = def.ConfidenceFloor
	}
	if cfg.MaxPatterns == 0 {
		cfg.MaxPatterns = def.MaxPatterns
	}
	if cfg.JSONTimeSeries == 0 {
		cfg.JSONTimeSeries = def.JSONTimeSeries
	}
	if cfg.JSONDistribution == 0 {
		cfg.JSONDistribution = def.JSONDistribution
	}
	if cfg.JSONComparison == 0 {
		cfg.JSONComparison = def.JSONComparison
	}
	if cfg.MarkdownTable == 0 {
		cfg.MarkdownTable = def.MarkdownTable
	}
	if cfg.PlainTable == 0 {
		cfg.PlainTable = def.PlainTable
	}
	if len(cfg.TemporalTokens) == 0 {
		cfg.TemporalTokens = def.TemporalTokens
	}
	if cfg.NumericScalarDistribution == 0 {
		cfg.NumericScalarDistribution = def.NumericScalarDistribution
	}
	if cfg.NumericScalarComparison == 0 {
		cfg.NumericScalarComparison = def.NumericScalarComparison
	}
	if cfg.MaxTimeSeriesKeys == 0 {
		cfg.MaxTimeSeriesKeys = def.MaxTimeSeriesKeys
	}
	return &Detector{
		cfg: cfg,
		promoter: NewPromoter(PromoterConfig{
			TemporalTokens: cfg.TemporalTokens,
		}),
	}
}

// Detect scans text for JSON objects, markdown tables and plain-text tables,
// classifies each candidate and returns up to MaxPatterns patterns meeting
// the confidence floor, highest confidence first. Malformed candidates are
// skipped silently.
func (d *Detector) Detect(text string) []DataPattern {
	patterns := d.DetectAll(text)
	kept := patterns[:0]
	for _, p := range patterns {
		if p.Confidence >= d.cfg.ConfidenceFloor {
			kept = append(kept, p)
		}
	}
	if len(kept) > d.cfg.MaxPatterns {
		kept = kept[:d.cfg.MaxPatterns]
	}
	return kept
}

// DetectAll is Detect without the confidence floor and result cap: every
// classified candidate, highest confidence first. The extraction orchestrator
// uses it to decide whether a low-confidence pattern warrants escalating to
// the fallback extractor.
func (d *Detector) DetectAll(text string) []DataPattern {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var patterns []DataPattern

	for _, raw := range jsonCandidates(text) {
		fields, ok := parseObjectOrdered(raw)
		if !ok || len(fields) == 0 {
			continue
		}
		if p, ok := d.classifyObject(fields); ok {
			patterns = append(patterns, p)
		}
	}

	for _, t := range extractMarkdownTables(text) {
		patterns = append(patterns, d.tablePattern(t.headers, t.rows, d.cfg.MarkdownTable))
	}

	for _, t := range extractPlainTables(text) {
		patterns = append(patterns, d.tablePattern(t.headers, t.rows, d.cfg.PlainTable))
	}

	sort.SliceStable(patterns, func(i, j int) bool { return patterns[i].Confidence > patterns[j].Confidence })
	return patterns
}

// tablePattern builds a table DataPattern from headers and rows, promoting it
// to a time-series when the promoter judges the columns temporal and numeric.
func (d *Detector) tablePattern(headers []string, rows [][]string, confidence float64) DataPattern {
	fields := make([]Field, len(headers))
	for col, h := range headers {
		values := make([]Value, len(rows))
		for i, row := range rows {
			cell := ""
			if col < len(row) {
				cell = row[col]
			}
			if f, ok := ParseNumber(cell); ok {
				values[i] = NumberValue(f)
			} else {
				values[i] = StringValue(StripEmphasis(cell))
			}
		}
		fields[col] = Field{Name: StripEmphasis(h), Array: values}
	}
	table := DataPattern{Type: TypeTable, Confidence: confidence, Data: fields}

	if d.promoter.Promotable(headers, rows) {
		return d.promoter.Promote(headers, rows, table)
	}
	return table
}

// classifyObject applies the classification heuristics to a parsed JSON
// object. Precedence is time-series, then distribution, then comparison;
// the first rule that fires wins since the categories overlap.
func (d *Detector) classifyObject(fields []Field) (DataPattern, bool) {
	numericScalars := 0
	scalars := 0
	hasNumericArray := false
	hasTemporalKey := false
	hasDistributionKey := false

	for _, f := range fields {
		name := strings.ToLower(f.Name)
		if containsAny(name, d.cfg.TemporalTokens) {
			hasTemporalKey = true
		}
		if strings.Contains(name, "percent") || strings.Contains(name, "distribution") {
			hasDistributionKey = true
		}
		if f.IsArray() {
			if len(f.Array) > 0 && allNumeric(f.Array) {
				hasNumericArray = true
			}
			continue
		}
		scalars++
		if f.Scalar.IsNumeric() {
			numericScalars++
		}
	}

	numericShare := 0.0
	if len(fields) > 0 {
		numericShare = float64(numericScalars) / float64(len(fields))
	}

	switch {
	case hasTemporalKey || (hasNumericArray && len(fields) <= d.cfg.MaxTimeSeriesKeys):
		return DataPattern{Type: TypeTimeSeries, Confidence: d.cfg.JSONTimeSeries, Data: fields}, true
	case hasDistributionKey || numericShare >= d.cfg.NumericScalarDistribution:
		return DataPattern{Type: TypeDistribution, Confidence: d.cfg.JSONDistribution, Data: fields}, true
	case numericShare >= d.cfg.NumericScalarComparison && numericScalars >= 2:
		return DataPattern{Type: TypeComparison, Confidence: d.cfg.JSONComparison, Data: fields}, true
	}
	return DataPattern{}, false
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

func allNumeric(values []Value) bool {
	for _, v := range values {
		if v.Kind != ValueNumber {
			return false
		}
	}
	return true
}

// fencedJSONRe matches code blocks explicitly tagged as JSON.
var fencedJSONRe = regexp.MustCompile("(?s)```json\\s*\\n(.*?)```")

// jsonCandidates collects candidate JSON object strings using two
// complementary strategies: fenced blocks tagged as JSON, and a
// balanced-delimiter scan over the whole text. Duplicates (a fenced object
// the scan finds again) are collapsed.
func jsonCandidates(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, m := range fencedJSONRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, s := range balancedObjects(text) {
		add(s)
	}
	return out
}

// balancedObjects extracts top-level {...} spans by tracking an open/close
// counter: the span starts when the counter transitions 0 to 1 and is
// extracted when it returns to 0. Braces inside JSON strings are ignored.
// This isolates nested objects that a single non-recursive regex would
// mis-extract.
func balancedObjects(text string) []string {
	var out []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				out = append(out, text[start:i+1])
				start = -1
			}
		}
	}
	return out
}

// ParseObject decodes a flat JSON object into ordered fields. Exposed for
// the fallback extractor, whose payloads cross the same validation boundary
// as detected candidates.
func ParseObject(raw string) ([]Field, bool) {
	return parseObjectOrdered(raw)
}

// parseObjectOrdered decodes a flat JSON object preserving key order, which
// encoding/json's map decoding would lose. Accepted values are scalars and
// arrays of scalars; nested objects and mixed arrays are recorded as null
// fields so they still count toward key ratios, per the non-goal of not
// supporting arbitrary nesting.
func parseObjectOrdered(raw string) ([]Field, bool) {
	dec := json.NewDecoder(strings.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, false
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, false
	}

	var fields []Field
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, false
		}

		field, err := decodeFieldValue(dec, key)
		if err != nil {
			return nil, false
		}
		fields = append(fields, field)
	}

	if tok, err := dec.Token(); err != nil {
		return nil, false
	} else if d, ok := tok.(json.Delim); !ok || d != '}' {
		return nil, false
	}
	return fields, true
}

func decodeFieldValue(dec *json.Decoder, key string) (Field, error) {
	tok, err := dec.Token()
	if err != nil {
		return Field{}, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			values, err := decodeScalarArray(dec)
			if err != nil {
				return Field{}, err
			}
			return Field{Name: key, Array: values}, nil
		case '{':
			// Nested object: consume and record as null.
			if err := skipToMatching(dec); err != nil {
				return Field{}, err
			}
			return Field{Name: key, Scalar: NullValue()}, nil
		}
		return Field{}, errUnexpectedToken
	default:
		return Field{Name: key, Scalar: scalarFromToken(tok)}, nil
	}
}

func decodeScalarArray(dec *json.Decoder) ([]Value, error) {
	values := []Value{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if d, ok := tok.(json.Delim); ok {
			// Nested structure inside the array: consume, record null.
			if d == '{' || d == '[' {
				if err := skipToMatching(dec); err != nil {
					return nil, err
				}
				values = append(values, NullValue())
				continue
			}
			return nil, errUnexpectedToken
		}
		values = append(values, scalarFromToken(tok))
	}
	// Closing ']'.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return values, nil
}

// skipToMatching consumes tokens until the open delimiter just read is
// matched and closed.
func skipToMatching(dec *json.Decoder) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

func scalarFromToken(tok json.Token) Value {
	switch v := tok.(type) {
	case string:
		return StringValue(v)
	case float64:
		return NumberValue(v)
	case bool:
		return BoolValue(v)
	default:
		return NullValue()
	}
}

var errUnexpectedToken = errors.New("unexpected JSON token")
