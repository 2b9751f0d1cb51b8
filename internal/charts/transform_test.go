package charts

import (
	"errors"
	"testing"
)

func seriesFields(s []Series) []string {
	out := make([]string, len(s))
	for i, e := range s {
		out[i] = e.Field
	}
	return out
}

func TestTransformTimeSeries(t *testing.T) {
	pattern := DataPattern{
		Type: TypeTimeSeries,
		Data: []Field{
			{Name: "month", Array: []Value{StringValue("Jan"), StringValue("Feb")}},
			{Name: "sales", Array: []Value{NumberValue(100), NumberValue(150)}},
			{Name: "costs", Array: []Value{NumberValue(80), NumberValue(90)}},
		},
	}

	t.Run("heuristic field selection", func(t *testing.T) {
		chart, err := Transform(pattern, nil)
		if err != nil {
			t.Fatal(err)
		}
		ts, ok := chart.(TimeSeriesChart)
		if !ok {
			t.Fatalf("got %T", chart)
		}
		if ts.XField != "month" {
			t.Errorf("x field = %q, want month", ts.XField)
		}
		if got := seriesFields(ts.Series); len(got) != 2 || got[0] != "sales" || got[1] != "costs" {
			t.Errorf("series = %v", got)
		}
		if len(ts.Rows) != 2 {
			t.Fatalf("rows = %d, want 2", len(ts.Rows))
		}
		if ts.Rows[1]["sales"].Num != 150 {
			t.Errorf("rows[1][sales] = %v", ts.Rows[1]["sales"])
		}
	})

	t.Run("explicit mapping overrides heuristics", func(t *testing.T) {
		chart, err := Transform(pattern, &FieldMapping{XAxis: "month", YAxis: []string{"costs"}})
		if err != nil {
			t.Fatal(err)
		}
		ts := chart.(TimeSeriesChart)
		if got := seriesFields(ts.Series); len(got) != 1 || got[0] != "costs" {
			t.Errorf("mapping should select only costs, got %v", got)
		}
	})

	t.Run("mapping naming absent fields falls back", func(t *testing.T) {
		chart, err := Transform(pattern, &FieldMapping{XAxis: "nope", YAxis: []string{"missing"}})
		if err != nil {
			t.Fatal(err)
		}
		ts := chart.(TimeSeriesChart)
		if ts.XField != "month" {
			t.Errorf("expected heuristic fallback, x = %q", ts.XField)
		}
	})

	t.Run("bare numeric series gets index axis", func(t *testing.T) {
		p := DataPattern{
			Type: TypeTimeSeries,
			Data: []Field{{Name: "load", Array: []Value{NumberValue(1), NumberValue(2), NumberValue(3)}}},
		}
		chart, err := Transform(p, nil)
		if err != nil {
			t.Fatal(err)
		}
		ts := chart.(TimeSeriesChart)
		if ts.XField != "index" || len(ts.Rows) != 3 {
			t.Errorf("index fallback broken: x=%q rows=%d", ts.XField, len(ts.Rows))
		}
	})

	t.Run("no value fields errors", func(t *testing.T) {
		p := DataPattern{
			Type: TypeTimeSeries,
			Data: []Field{{Name: "date", Array: []Value{StringValue("Jan")}}},
		}
		_, err := Transform(p, nil)
		if !errors.Is(err, ErrNoValueField) {
			t.Errorf("err = %v, want ErrNoValueField", err)
		}
	})
}

func TestTransformScalarBroadcast(t *testing.T) {
	p := DataPattern{
		Type: TypeComparison,
		Data: []Field{
			{Name: "region", Array: []Value{StringValue("north"), StringValue("south")}},
			{Name: "sales", Array: []Value{NumberValue(10), NumberValue(20)}},
			{Name: "target", Scalar: NumberValue(15)},
		},
	}
	chart, err := Transform(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	cmp := chart.(ComparisonChart)
	if len(cmp.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(cmp.Rows))
	}
	for i, row := range cmp.Rows {
		if row["target"].Num != 15 {
			t.Errorf("row %d: scalar not broadcast: %v", i, row["target"])
		}
	}
}

func TestTransformDistributionPivot(t *testing.T) {
	p := DataPattern{
		Type: TypeDistribution,
		Data: []Field{
			{Name: "alpha", Scalar: NumberValue(40)},
			{Name: "beta", Scalar: NumberValue(60)},
		},
	}
	chart, err := Transform(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	dist := chart.(DistributionChart)
	if len(dist.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(dist.Rows))
	}
	if dist.Rows[0][dist.CategoryField].Str != "alpha" || dist.Rows[0][dist.ValueField].Num != 40 {
		t.Errorf("pivot row 0 = %v", dist.Rows[0])
	}
}

func TestTransformDistributionUnresolvable(t *testing.T) {
	p := DataPattern{
		Type: TypeDistribution,
		Data: []Field{{Name: "note", Scalar: NullValue()}},
	}
	if _, err := Transform(p, nil); !errors.Is(err, ErrNoCategoryField) {
		t.Errorf("err = %v, want ErrNoCategoryField", err)
	}
}

func TestTransformTable(t *testing.T) {
	p := DataPattern{
		Type: TypeTable,
		Data: []Field{
			{Name: "Name", Array: []Value{StringValue("a"), StringValue("b")}},
			{Name: "Count", Array: []Value{NumberValue(1), NumberValue(2)}},
		},
	}
	chart, err := Transform(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	table := chart.(TableChart)
	if len(table.Headers) != 2 || table.Headers[1] != "Count" {
		t.Errorf("headers = %v", table.Headers)
	}
	if table.Rows[1][1] != "2" {
		t.Errorf("cell [1][1] = %q, want 2", table.Rows[1][1])
	}
}

func TestPaletteWraps(t *testing.T) {
	n := len(DefaultPalette) + 2
	fields := make([]string, n)
	for i := range fields {
		fields[i] = string(rune('a' + i))
	}
	series := colorize(fields)
	if series[n-1].Color != DefaultPalette[(n-1)%len(DefaultPalette)] {
		t.Errorf("palette did not wrap: %v", series[n-1])
	}
	for _, s := range series {
		if s.Color == "" {
			t.Errorf("series %s missing color", s.Field)
		}
	}
}
