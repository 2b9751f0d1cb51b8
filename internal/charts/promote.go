package charts

import "strings"

// PromoterConfig holds the thresholds for table-to-series promotion.
type PromoterConfig struct {
	// TemporalTokens mark a header as the date column.
	TemporalTokens []string

	// NumericCellShare is the fraction of non-empty cells in a column that
	// must parse as numbers for the column to count as "mostly numeric".
	// Default 0.7.
	NumericCellShare float64

	// NumericColumnShare is the fraction of non-date columns that must be
	// mostly numeric for the table to be promotable. Default 0.5.
	NumericColumnShare float64

	// Confidence assigned to a promoted time-series pattern. Default 0.85.
	Confidence float64
}

// DefaultPromoterConfig returns the promoter defaults.
func DefaultPromoterConfig() PromoterConfig {
	return PromoterConfig{
		TemporalTokens:     DefaultTemporalTokens(),
		NumericCellShare:   0.7,
		NumericColumnShare: 0.5,
		Confidence:         0.85,
	}
}

// Promoter upgrades a detected table into a time-series pattern when one
// column looks temporal and enough of the remaining columns are numeric.
// Pure and safe for concurrent use.
type Promoter struct {
	cfg PromoterConfig
}

// NewPromoter creates a Promoter. Zero-valued config fields fall back to the
// defaults.
func NewPromoter(cfg PromoterConfig) *Promoter {
	def := DefaultPromoterConfig()
	if len(cfg.TemporalTokens) == 0 {
		cfg.TemporalTokens = def.TemporalTokens
	}
	if cfg.NumericCellShare == 0 {
		cfg.NumericCellShare = def.NumericCellShare
	}
	if cfg.NumericColumnShare == 0 {
		cfg.NumericColumnShare = def.NumericColumnShare
	}
	if cfg.Confidence == 0 {
		cfg.Confidence = def.Confidence
	}
	return &Promoter{cfg: cfg}
}

// Promotable reports whether the table qualifies for promotion: one header
// contains a temporal token and at least NumericColumnShare of the remaining
// columns are mostly numeric.
func (p *Promoter) Promotable(headers []string, rows [][]string) bool {
	dateIdx := p.temporalColumn(headers)
	if dateIdx < 0 || len(headers) < 2 || len(rows) == 0 {
		return false
	}

	numeric := 0
	other := 0
	for col := range headers {
		if col == dateIdx {
			continue
		}
		other++
		if p.mostlyNumeric(column(rows, col)) {
			numeric++
		}
	}
	if other == 0 {
		return false
	}
	return float64(numeric)/float64(other) >= p.cfg.NumericColumnShare
}

// Promote converts the table into a time-series pattern: the date column,
// cleaned of emphasis markers, becomes the x-axis series verbatim; every
// mostly-numeric column becomes a value series. Cells that fail numeric
// parsing become nulls so row alignment is preserved across all series. If no
// column qualifies as numeric after all, the original table pattern is
// returned unchanged.
func (p *Promoter) Promote(headers []string, rows [][]string, table DataPattern) DataPattern {
	dateIdx := p.temporalColumn(headers)
	if dateIdx < 0 {
		return table
	}

	dates := make([]Value, len(rows))
	for i, cells := range column(rows, dateIdx) {
		dates[i] = StringValue(StripEmphasis(cells))
	}

	fields := []Field{{Name: StripEmphasis(headers[dateIdx]), Array: dates}}
	promoted := 0
	for col, h := range headers {
		if col == dateIdx {
			continue
		}
		cells := column(rows, col)
		if !p.mostlyNumeric(cells) {
			continue
		}
		values := make([]Value, len(cells))
		for i, cell := range cells {
			if f, ok := ParseNumber(cell); ok {
				values[i] = NumberValue(f)
			} else {
				values[i] = NullValue()
			}
		}
		fields = append(fields, Field{Name: StripEmphasis(h), Array: values})
		promoted++
	}

	if promoted == 0 {
		return table
	}

	return DataPattern{
		Type:       TypeTimeSeries,
		Confidence: p.cfg.Confidence,
		Data:       fields,
		Metadata:   Metadata{XAxisLabel: StripEmphasis(headers[dateIdx])},
	}
}

// temporalColumn returns the index of the first header containing a temporal
// token, or -1.
func (p *Promoter) temporalColumn(headers []string) int {
	for i, h := range headers {
		if containsAny(strings.ToLower(h), p.cfg.TemporalTokens) {
			return i
		}
	}
	return -1
}

// mostlyNumeric reports whether at least NumericCellShare of the non-empty
// cells parse as numbers after cleanup.
func (p *Promoter) mostlyNumeric(cells []string) bool {
	nonEmpty := 0
	numeric := 0
	for _, c := range cells {
		if strings.TrimSpace(c) == "" {
			continue
		}
		nonEmpty++
		if _, ok := ParseNumber(c); ok {
			numeric++
		}
	}
	if nonEmpty == 0 {
		return false
	}
	return float64(numeric)/float64(nonEmpty) >= p.cfg.NumericCellShare
}

func column(rows [][]string, idx int) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out
}
