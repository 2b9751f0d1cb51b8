package charts

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Transform failure sentinels. Consumers treat a transform error as "nothing
// to render" for that one pattern; it never aborts the rest of the turn.
var (
	// ErrNoCategoryField indicates no category or x-axis field could be
	// resolved from the pattern's data.
	ErrNoCategoryField = errors.New("no category field resolvable")

	// ErrNoValueField indicates no numeric value field could be resolved.
	ErrNoValueField = errors.New("no value field resolvable")
)

// DefaultPalette is the fixed series color palette. Series are assigned
// colors by index, wrapping when there are more series than entries.
var DefaultPalette = []string{
	"#4e79a7", "#f28e2b", "#e15759", "#76b7b2", "#59a14f",
	"#edc949", "#af7aa1", "#ff9da7", "#9c755f", "#bab0ab",
}

// Series names one value field of a chart together with its display color.
type Series struct {
	Field string
	Color string
}

// Row is one record of chart data, keyed by field name.
type Row map[string]Value

// ChartData is the closed set of renderer-agnostic chart shapes. Each shape
// is plain row records plus field names and colors; no rendering library
// types leak in. Values are read-only render input.
type ChartData interface {
	// ChartType identifies the concrete shape.
	ChartType() PatternType
}

// TimeSeriesChart plots one or more value series over an x-axis field.
type TimeSeriesChart struct {
	XField string
	Rows   []Row
	Series []Series
}

// ChartType implements ChartData.
func (TimeSeriesChart) ChartType() PatternType { return TypeTimeSeries }

// ComparisonChart compares value series across categories.
type ComparisonChart struct {
	CategoryField string
	Rows          []Row
	Series        []Series
}

// ChartType implements ChartData.
func (ComparisonChart) ChartType() PatternType { return TypeComparison }

// DistributionChart breaks a single value field down by category.
type DistributionChart struct {
	CategoryField string
	ValueField    string
	Rows          []Row
}

// ChartType implements ChartData.
func (DistributionChart) ChartType() PatternType { return TypeDistribution }

// TableChart is a plain grid of rendered cells.
type TableChart struct {
	Headers []string
	Rows    [][]string
}

// ChartType implements ChartData.
func (TableChart) ChartType() PatternType { return TypeTable }

// Transform maps a classified pattern into its chart shape. An explicit
// FieldMapping takes precedence over the heuristics whenever its named fields
// exist in the pattern's data. Array-valued fields are zipped position-wise;
// scalar fields broadcast onto every row. A pattern from which neither a
// category nor at least one value field can be resolved returns a descriptive
// error.
func Transform(p DataPattern, mapping *FieldMapping) (ChartData, error) {
	switch p.Type {
	case TypeTable:
		return transformTable(p), nil
	case TypeTimeSeries:
		return transformTimeSeries(p, mapping)
	case TypeDistribution:
		return transformDistribution(p, mapping)
	case TypeComparison:
		return transformComparison(p, mapping)
	default:
		return nil, fmt.Errorf("unknown pattern type %q", p.Type)
	}
}

func transformTable(p DataPattern) TableChart {
	headers := make([]string, len(p.Data))
	n := 0
	for i, f := range p.Data {
		headers[i] = f.Name
		if f.Len() > n {
			n = f.Len()
		}
	}
	rows := make([][]string, n)
	for i := range rows {
		row := make([]string, len(p.Data))
		for col, f := range p.Data {
			row[col] = f.At(i).Display()
		}
		rows[i] = row
	}
	return TableChart{Headers: headers, Rows: rows}
}

func transformTimeSeries(p DataPattern, mapping *FieldMapping) (ChartData, error) {
	valueFields := resolveValueFields(p, mapping, "")
	if len(valueFields) == 0 {
		return nil, fmt.Errorf("%w: pattern has fields %v", ErrNoValueField, fieldNames(p))
	}

	xField, ok := resolveCategory(p, mapping)
	if !ok {
		// A bare numeric series ({"sales": [3, 5, 8]}) still plots; the
		// x-axis degrades to the row index.
		return indexedTimeSeries(p, valueFields), nil
	}

	valueFields = exclude(valueFields, xField)
	if len(valueFields) == 0 {
		return nil, fmt.Errorf("%w: only field %q resolved", ErrNoValueField, xField)
	}

	rows := buildRows(p, append([]string{xField}, valueFields...))
	return TimeSeriesChart{XField: xField, Rows: rows, Series: colorize(valueFields)}, nil
}

func transformComparison(p DataPattern, mapping *FieldMapping) (ChartData, error) {
	category, ok := resolveCategory(p, mapping)
	if !ok {
		rows, perr := pivotScalars(p)
		if perr != nil {
			return nil, perr
		}
		return ComparisonChart{
			CategoryField: pivotCategoryField,
			Rows:          rows,
			Series:        colorize([]string{pivotValueField}),
		}, nil
	}

	valueFields := exclude(resolveValueFields(p, mapping, category), category)
	if len(valueFields) == 0 {
		return nil, fmt.Errorf("%w: pattern has fields %v", ErrNoValueField, fieldNames(p))
	}

	rows := buildRows(p, append([]string{category}, valueFields...))
	return ComparisonChart{CategoryField: category, Rows: rows, Series: colorize(valueFields)}, nil
}

func transformDistribution(p DataPattern, mapping *FieldMapping) (ChartData, error) {
	category, ok := resolveCategory(p, mapping)
	if !ok {
		rows, perr := pivotScalars(p)
		if perr != nil {
			return nil, perr
		}
		return DistributionChart{
			CategoryField: pivotCategoryField,
			ValueField:    pivotValueField,
			Rows:          rows,
		}, nil
	}

	valueFields := exclude(resolveValueFields(p, mapping, category), category)
	if len(valueFields) == 0 {
		return nil, fmt.Errorf("%w: pattern has fields %v", ErrNoValueField, fieldNames(p))
	}

	// A distribution uses a single value field; the first resolved wins.
	value := valueFields[0]
	rows := buildRows(p, []string{category, value})
	return DistributionChart{CategoryField: category, ValueField: value, Rows: rows}, nil
}

// Field names used when an all-scalar object is pivoted into rows.
const (
	pivotCategoryField = "category"
	pivotValueField    = "value"
)

// pivotScalars turns an object of numeric scalars ({"alpha": 40, "beta": 60})
// into one row per key. This is the common shape for distributions stated
// inline in prose, where the key names are the categories.
func pivotScalars(p DataPattern) ([]Row, error) {
	var rows []Row
	for _, f := range p.Data {
		if f.IsArray() {
			continue
		}
		num, ok := f.Scalar.Float()
		if !ok {
			continue
		}
		rows = append(rows, Row{
			pivotCategoryField: StringValue(f.Name),
			pivotValueField:    NumberValue(num),
		})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: pattern has fields %v", ErrNoCategoryField, fieldNames(p))
	}
	return rows, nil
}

// indexedTimeSeries plots value fields against a synthesized row index.
func indexedTimeSeries(p DataPattern, valueFields []string) TimeSeriesChart {
	n := 0
	for _, name := range valueFields {
		if f, ok := p.Field(name); ok && f.Len() > n {
			n = f.Len()
		}
	}
	rows := make([]Row, n)
	for i := range rows {
		row := Row{"index": StringValue(strconv.Itoa(i))}
		for _, name := range valueFields {
			f, _ := p.Field(name)
			row[name] = f.At(i)
		}
		rows[i] = row
	}
	return TimeSeriesChart{XField: "index", Rows: rows, Series: colorize(valueFields)}
}

// resolveCategory picks the category/x-axis field: the explicit mapping when
// its named field exists, otherwise the first string-valued field, otherwise
// the first temporally-named field.
func resolveCategory(p DataPattern, mapping *FieldMapping) (string, bool) {
	if mapping != nil {
		for _, name := range []string{mapping.XAxis, mapping.Category} {
			if name == "" {
				continue
			}
			if _, ok := p.Field(name); ok {
				return name, true
			}
		}
	}
	for _, f := range p.Data {
		if isStringField(f) {
			return f.Name, true
		}
	}
	for _, f := range p.Data {
		if containsAny(strings.ToLower(f.Name), DefaultTemporalTokens()) {
			return f.Name, true
		}
	}
	return "", false
}

// resolveValueFields picks the value series: the explicit mapping's YAxis (or
// Value) entries that exist in the data, otherwise every numeric field except
// the category.
func resolveValueFields(p DataPattern, mapping *FieldMapping, category string) []string {
	if mapping != nil {
		var named []string
		for _, name := range mapping.YAxis {
			if _, ok := p.Field(name); ok {
				named = append(named, name)
			}
		}
		if len(named) == 0 && mapping.Value != "" {
			if _, ok := p.Field(mapping.Value); ok {
				named = append(named, mapping.Value)
			}
		}
		if len(named) > 0 {
			return named
		}
	}

	var out []string
	for _, f := range p.Data {
		if f.Name == category {
			continue
		}
		if isNumericField(f) {
			out = append(out, f.Name)
		}
	}
	return out
}

// buildRows zips the named fields position-wise into row records. Arrays
// shorter than the longest field contribute nulls; scalars broadcast.
func buildRows(p DataPattern, names []string) []Row {
	n := 1
	for _, name := range names {
		if f, ok := p.Field(name); ok && f.Len() > n {
			n = f.Len()
		}
	}
	rows := make([]Row, n)
	for i := range rows {
		row := make(Row, len(names))
		for _, name := range names {
			if f, ok := p.Field(name); ok {
				row[name] = f.At(i)
			}
		}
		rows[i] = row
	}
	return rows
}

func colorize(fields []string) []Series {
	out := make([]Series, len(fields))
	for i, f := range fields {
		out[i] = Series{Field: f, Color: DefaultPalette[i%len(DefaultPalette)]}
	}
	return out
}

func isStringField(f Field) bool {
	if !f.IsArray() {
		return f.Scalar.Kind == ValueString && !f.Scalar.IsNumeric()
	}
	for _, v := range f.Array {
		if v.Kind != ValueString {
			return false
		}
	}
	return len(f.Array) > 0 && !allNumericStrings(f.Array)
}

func isNumericField(f Field) bool {
	if !f.IsArray() {
		return f.Scalar.IsNumeric()
	}
	numeric := 0
	for _, v := range f.Array {
		switch {
		case v.IsNumeric():
			numeric++
		case v.Kind == ValueNull:
			// Missing cells don't disqualify a series.
		default:
			return false
		}
	}
	return numeric > 0
}

func allNumericStrings(values []Value) bool {
	for _, v := range values {
		if !v.IsNumeric() {
			return false
		}
	}
	return true
}

func exclude(names []string, drop string) []string {
	out := names[:0]
	for _, n := range names {
		if n != drop {
			out = append(out, n)
		}
	}
	return out
}

func fieldNames(p DataPattern) []string {
	out := make([]string, len(p.Data))
	for i, f := range p.Data {
		out[i] = f.Name
	}
	return out
}
