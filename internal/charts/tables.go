package charts

import (
	"regexp"
	"strings"
)

// tableCandidate is a raw table pulled out of text before classification.
type tableCandidate struct {
	headers []string
	rows    [][]string
}

// separatorCellRe matches one markdown separator cell: dashes with optional
// alignment colons.
var separatorCellRe = regexp.MustCompile(`^:?-+:?$`)

// extractMarkdownTables finds pipe-delimited markdown tables. A table needs a
// header row with at least two non-empty cells, an immediately following
// separator row with the same cell count, and at least one data row matching
// the header's cell count exactly. A header/separator count mismatch rejects
// the candidate; a data row with a different cell count terminates the table.
func extractMarkdownTables(text string) []tableCandidate {
	lines := strings.Split(text, "\n")
	var tables []tableCandidate

	for i := 0; i < len(lines)-1; i++ {
		headers := splitMarkdownRow(lines[i])
		if countNonEmpty(headers) < 2 {
			continue
		}

		sep := splitMarkdownRow(lines[i+1])
		if len(sep) != len(headers) || !isSeparatorRow(sep) {
			continue
		}

		var rows [][]string
		j := i + 2
		for ; j < len(lines); j++ {
			row := splitMarkdownRow(lines[j])
			if len(row) != len(headers) {
				break
			}
			rows = append(rows, row)
		}
		if len(rows) >= 1 {
			tables = append(tables, tableCandidate{headers: headers, rows: rows})
		}
		i = j - 1
	}
	return tables
}

// splitMarkdownRow splits a pipe-delimited line into trimmed cells, dropping
// the empty edge cells produced by leading/trailing pipes. Returns nil for
// lines that are not pipe-delimited at all.
func splitMarkdownRow(line string) []string {
	if !strings.Contains(line, "|") {
		return nil
	}
	cells := strings.Split(line, "|")
	if len(cells) > 0 && strings.TrimSpace(cells[0]) == "" {
		cells = cells[1:]
	}
	if len(cells) > 0 && strings.TrimSpace(cells[len(cells)-1]) == "" {
		cells = cells[:len(cells)-1]
	}
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	if len(cells) == 0 {
		return nil
	}
	return cells
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if !separatorCellRe.MatchString(c) {
			return false
		}
	}
	return len(cells) > 0
}

func countNonEmpty(cells []string) int {
	n := 0
	for _, c := range cells {
		if c != "" {
			n++
		}
	}
	return n
}

// plainCellSplitRe splits a line on runs of two or more whitespace
// characters, the usual alignment gap in fixed-width terminal tables.
var plainCellSplitRe = regexp.MustCompile(`\s{2,}`)

// extractPlainTables finds whitespace-aligned tables in blank-line separated
// blocks. The first line of a block fixes the expected column count;
// subsequent rows are accepted with a tolerance of one cell more or less and
// padded or truncated to fit, absorbing ragged alignment. At least two data
// rows are required. Lines containing pipes are left to the markdown
// extractor.
func extractPlainTables(text string) []tableCandidate {
	var tables []tableCandidate

	for _, block := range strings.Split(text, "\n\n") {
		lines := nonEmptyLines(block)
		if len(lines) < 3 { // header + at least 2 data rows
			continue
		}

		headers := splitPlainRow(lines[0])
		if len(headers) < 2 {
			continue
		}

		expected := len(headers)
		var rows [][]string
		ok := true
		for _, line := range lines[1:] {
			cells := splitPlainRow(line)
			if len(cells) < expected-1 || len(cells) > expected+1 {
				ok = false
				break
			}
			rows = append(rows, fitRow(cells, expected))
		}
		if ok && len(rows) >= 2 {
			tables = append(tables, tableCandidate{headers: headers, rows: rows})
		}
	}
	return tables
}

func nonEmptyLines(block string) []string {
	var out []string
	for _, line := range strings.Split(block, "\n") {
		trimmed := strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		if strings.Contains(trimmed, "|") {
			// Markdown territory; bail out of plain-table parsing for
			// the whole block by returning nothing table-shaped.
			return nil
		}
		out = append(out, trimmed)
	}
	return out
}

func splitPlainRow(line string) []string {
	cells := plainCellSplitRe.Split(strings.TrimSpace(line), -1)
	out := cells[:0]
	for _, c := range cells {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// fitRow pads or truncates cells to exactly n entries.
func fitRow(cells []string, n int) []string {
	if len(cells) == n {
		return cells
	}
	if len(cells) > n {
		return cells[:n]
	}
	padded := make([]string, n)
	copy(padded, cells)
	return padded
}
