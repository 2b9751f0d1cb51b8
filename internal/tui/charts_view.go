package tui

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chatviz/chatviz/internal/charts"
)

// Chart rendering dimensions.
const (
	maxBarWidth  = 30 // Widest horizontal bar in cells
	maxTableRows = 20 // Table rows shown before truncation notice
)

// sparkGlyphs are the eight block heights used for sparklines.
var sparkGlyphs = []rune("▁▂▃▄▅▆▇█")

// chartLabels maps chart shapes to display headings.
var chartLabels = map[charts.PatternType]string{
	charts.TypeTimeSeries:   "Time Series",
	charts.TypeComparison:   "Comparison",
	charts.TypeDistribution: "Distribution",
	charts.TypeTable:        "Table",
}

func chartLabel(t charts.PatternType) string {
	if label, ok := chartLabels[t]; ok {
		return label
	}
	return string(t)
}

// renderCharts renders extracted chart data as styled terminal blocks.
// Rendering is textual: sparklines for time series, horizontal bars for
// comparisons and distributions, aligned grids for tables.
func (t *TUI) renderCharts(data []charts.ChartData) string {
	var b strings.Builder
	for i, c := range data {
		if i > 0 {
			_, _ = b.WriteString("\n")
		}
		_, _ = b.WriteString(t.styles.ChartTitle.Render("◆ " + chartLabel(c.ChartType())))
		_, _ = b.WriteString("\n")

		switch chart := c.(type) {
		case charts.TableChart:
			_, _ = b.WriteString(t.renderTable(chart))
		case charts.TimeSeriesChart:
			_, _ = b.WriteString(t.renderTimeSeries(chart))
		case charts.ComparisonChart:
			_, _ = b.WriteString(t.renderComparison(chart))
		case charts.DistributionChart:
			_, _ = b.WriteString(t.renderDistribution(chart))
		}
	}
	return b.String()
}

// renderTable lays out the grid with space-padded columns.
func (t *TUI) renderTable(chart charts.TableChart) string {
	widths := make([]int, len(chart.Headers))
	for i, h := range chart.Headers {
		widths[i] = len([]rune(h))
	}
	for _, row := range chart.Rows {
		for i, cell := range row {
			if i < len(widths) && len([]rune(cell)) > widths[i] {
				widths[i] = len([]rune(cell))
			}
		}
	}

	var b strings.Builder
	_, _ = b.WriteString(t.styles.ChartAxis.Render(padRow(chart.Headers, widths)))
	_, _ = b.WriteString("\n")

	sep := make([]string, len(chart.Headers))
	for i := range sep {
		sep[i] = strings.Repeat("─", widths[i])
	}
	_, _ = b.WriteString(t.styles.Separator.Render(padRow(sep, widths)))
	_, _ = b.WriteString("\n")

	shown := chart.Rows
	truncated := 0
	if len(shown) > maxTableRows {
		truncated = len(shown) - maxTableRows
		shown = shown[:maxTableRows]
	}
	for _, row := range shown {
		_, _ = b.WriteString(padRow(row, widths))
		_, _ = b.WriteString("\n")
	}
	if truncated > 0 {
		_, _ = b.WriteString(t.styles.System.Render(fmt.Sprintf("… %d more rows", truncated)))
		_, _ = b.WriteString("\n")
	}
	return b.String()
}

// renderTimeSeries draws one sparkline per series with its value range.
func (t *TUI) renderTimeSeries(chart charts.TimeSeriesChart) string {
	var b strings.Builder
	for _, s := range chart.Series {
		values := seriesValues(chart.Rows, s.Field)
		if len(values) == 0 {
			continue
		}
		lo, hi := minMax(values)
		_, _ = b.WriteString(t.styles.ChartAxis.Render(s.Field + " "))
		_, _ = b.WriteString(t.styles.ChartBar.Render(sparkline(values)))
		_, _ = b.WriteString(t.styles.System.Render(fmt.Sprintf("  %s … %s", formatNumber(lo), formatNumber(hi))))
		_, _ = b.WriteString("\n")
	}
	if axis := axisSpan(chart.Rows, chart.XField); axis != "" {
		_, _ = b.WriteString(t.styles.System.Render(axis))
		_, _ = b.WriteString("\n")
	}
	return b.String()
}

// renderComparison draws horizontal bars grouped by category.
func (t *TUI) renderComparison(chart charts.ComparisonChart) string {
	var scale float64
	for _, s := range chart.Series {
		for _, v := range seriesValues(chart.Rows, s.Field) {
			if math.Abs(v) > scale {
				scale = math.Abs(v)
			}
		}
	}

	labelWidth := 0
	for _, row := range chart.Rows {
		if l := len([]rune(row[chart.CategoryField].Display())); l > labelWidth {
			labelWidth = l
		}
	}

	var b strings.Builder
	for _, row := range chart.Rows {
		label := row[chart.CategoryField].Display()
		for i, s := range chart.Series {
			v, ok := row[s.Field].Float()
			if !ok {
				continue
			}
			prefix := label
			if i > 0 {
				prefix = "" // Category label only on the first series line
			}
			_, _ = b.WriteString(t.styles.ChartAxis.Render(pad(prefix, labelWidth) + " "))
			_, _ = b.WriteString(t.styles.ChartBar.Render(bar(v, scale)))
			_, _ = b.WriteString(" ")
			_, _ = b.WriteString(formatNumber(v))
			if len(chart.Series) > 1 {
				_, _ = b.WriteString(t.styles.System.Render(" (" + s.Field + ")"))
			}
			_, _ = b.WriteString("\n")
		}
	}
	return b.String()
}

// renderDistribution draws bars with each category's share of the total.
func (t *TUI) renderDistribution(chart charts.DistributionChart) string {
	var total, scale float64
	for _, row := range chart.Rows {
		if v, ok := row[chart.ValueField].Float(); ok {
			total += v
			if math.Abs(v) > scale {
				scale = math.Abs(v)
			}
		}
	}

	labelWidth := 0
	for _, row := range chart.Rows {
		if l := len([]rune(row[chart.CategoryField].Display())); l > labelWidth {
			labelWidth = l
		}
	}

	var b strings.Builder
	for _, row := range chart.Rows {
		v, ok := row[chart.ValueField].Float()
		if !ok {
			continue
		}
		_, _ = b.WriteString(t.styles.ChartAxis.Render(pad(row[chart.CategoryField].Display(), labelWidth) + " "))
		_, _ = b.WriteString(t.styles.ChartBar.Render(bar(v, scale)))
		_, _ = b.WriteString(" ")
		_, _ = b.WriteString(formatNumber(v))
		if total != 0 {
			_, _ = b.WriteString(t.styles.System.Render(fmt.Sprintf(" %.1f%%", v/total*100)))
		}
		_, _ = b.WriteString("\n")
	}
	return b.String()
}

// sparkline maps values onto the eight block glyphs, one per value.
func sparkline(values []float64) string {
	lo, hi := minMax(values)
	span := hi - lo
	var b strings.Builder
	for _, v := range values {
		idx := 0
		if span > 0 {
			idx = int((v - lo) / span * float64(len(sparkGlyphs)-1))
		}
		_, _ = b.WriteRune(sparkGlyphs[idx])
	}
	return b.String()
}

// bar renders a horizontal bar proportional to value over scale.
// At least one cell is drawn for any non-zero value.
func bar(value, scale float64) string {
	if scale <= 0 {
		return ""
	}
	n := int(math.Round(math.Abs(value) / scale * maxBarWidth))
	if n == 0 && value != 0 {
		n = 1
	}
	return strings.Repeat("█", n)
}

func seriesValues(rows []charts.Row, field string) []float64 {
	values := make([]float64, 0, len(rows))
	for _, row := range rows {
		if v, ok := row[field].Float(); ok {
			values = append(values, v)
		}
	}
	return values
}

func minMax(values []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// axisSpan describes the x-axis range, e.g. "Jan → Dec (12 points)".
func axisSpan(rows []charts.Row, xField string) string {
	if len(rows) == 0 || xField == "" {
		return ""
	}
	first := rows[0][xField].Display()
	last := rows[len(rows)-1][xField].Display()
	if first == "" && last == "" {
		return ""
	}
	return fmt.Sprintf("%s → %s (%d points)", first, last, len(rows))
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', 4, 64)
}

func pad(s string, width int) string {
	if n := width - len([]rune(s)); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

func padRow(cells []string, widths []int) string {
	padded := make([]string, len(cells))
	for i, c := range cells {
		w := 0
		if i < len(widths) {
			w = widths[i]
		}
		padded[i] = pad(c, w)
	}
	return strings.TrimRight(strings.Join(padded, "  "), " ")
}
