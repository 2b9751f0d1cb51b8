package charts

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ValueKind discriminates the scalar kinds a Value can hold.
type ValueKind int

// Value kinds. ValueNull doubles as "missing": a cell that failed numeric
// parsing during table promotion is recorded as null so row alignment across
// series is preserved.
const (
	ValueNull ValueKind = iota
	ValueString
	ValueNumber
	ValueBool
)

// Value is a scalar parsed at the JSON or table boundary. Chart data never
// carries raw any-typed payloads past this point; everything is one of the
// four kinds above.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

// StringValue returns a string-kinded Value.
func StringValue(s string) Value { return Value{Kind: ValueString, Str: s} }

// NumberValue returns a number-kinded Value.
func NumberValue(f float64) Value { return Value{Kind: ValueNumber, Num: f} }

// BoolValue returns a bool-kinded Value.
func BoolValue(b bool) Value { return Value{Kind: ValueBool, Bool: b} }

// NullValue returns the null/missing Value.
func NullValue() Value { return Value{Kind: ValueNull} }

// IsNumeric reports whether v holds a number, either directly or as a string
// that parses as one after cleanup ("$1,234", "42%", "**17**").
func (v Value) IsNumeric() bool {
	switch v.Kind {
	case ValueNumber:
		return true
	case ValueString:
		_, ok := ParseNumber(v.Str)
		return ok
	default:
		return false
	}
}

// Float returns the numeric value of v, parsing string cells if needed.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case ValueNumber:
		return v.Num, true
	case ValueString:
		return ParseNumber(v.Str)
	default:
		return 0, false
	}
}

// Display renders v for tabular output.
func (v Value) Display() string {
	switch v.Kind {
	case ValueString:
		return v.Str
	case ValueNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

// MarshalJSON serializes v as the underlying scalar, so chart payloads stored
// in the session database round-trip as plain JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueString:
		return json.Marshal(v.Str)
	case ValueNumber:
		return json.Marshal(v.Num)
	case ValueBool:
		return json.Marshal(v.Bool)
	default:
		return []byte("null"), nil
	}
}

// Field is one named column of a DataPattern: either a single scalar or an
// array of scalars. A non-nil Array means array-valued; Scalar is ignored.
type Field struct {
	Name   string
	Scalar Value
	Array  []Value
}

// IsArray reports whether the field holds an array of values.
func (f Field) IsArray() bool { return f.Array != nil }

// Len returns the number of rows this field contributes: len(Array) for
// arrays, 1 for scalars.
func (f Field) Len() int {
	if f.IsArray() {
		return len(f.Array)
	}
	return 1
}

// At returns the value at row i. Scalars broadcast to every row; arrays
// shorter than i return null to keep row alignment.
func (f Field) At(i int) Value {
	if !f.IsArray() {
		return f.Scalar
	}
	if i < 0 || i >= len(f.Array) {
		return NullValue()
	}
	return f.Array[i]
}

// numericCleaner drops the decoration commonly wrapped around numbers in
// agent prose: markdown emphasis, currency symbols, percent signs, thousands
// separators and stray whitespace.
var numericCleaner = strings.NewReplacer(
	"*", "", "_", "", "`", "",
	"$", "", "€", "", "£", "", "¥", "",
	"%", "", ",", "", " ", "",
)

// ParseNumber parses s as a float after stripping markdown emphasis markers,
// currency symbols, percent signs and thousands separators. Returns false for
// empty or non-numeric input.
func ParseNumber(s string) (float64, bool) {
	cleaned := numericCleaner.Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// StripEmphasis removes markdown emphasis markers from a cell, leaving the
// text otherwise intact. Used for date columns where the content must stay
// verbatim.
func StripEmphasis(s string) string {
	return strings.TrimSpace(strings.NewReplacer("*", "", "_", "", "`", "").Replace(s))
}
