package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table renders aligned columns. Cell widths are measured with
// lipgloss.Width so styled cells line up with plain ones.
type Table struct {
	w       io.Writer
	styles  *TableStyles
	headers []string
	maxCell int
}

// NewTable creates a table with the given headers.
func NewTable(w io.Writer, headers []string) *Table {
	return &Table{w: w, styles: NewTableStyles(), headers: headers}
}

// WithMaxCell truncates cells wider than n with an ellipsis.
func (t *Table) WithMaxCell(n int) *Table {
	t.maxCell = n
	return t
}

// Render writes the header and rows.
func (t *Table) Render(rows [][]string) {
	if len(t.headers) == 0 {
		return
	}
	rows = t.truncate(rows)

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(widths) && i < len(row); i++ {
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	parts := make([]string, len(t.headers))
	for i, h := range t.headers {
		parts[i] = t.styles.Header.Render(pad(h, widths[i]))
	}
	_, _ = fmt.Fprintln(t.w, strings.TrimRight(strings.Join(parts, "  "), " "))

	for _, row := range rows {
		for i := range t.headers {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			parts[i] = t.styles.Cell.Render(pad(cell, widths[i]))
		}
		_, _ = fmt.Fprintln(t.w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}
}

func (t *Table) truncate(rows [][]string) [][]string {
	if t.maxCell < 2 {
		return rows
	}
	out := make([][]string, len(rows))
	for r, row := range rows {
		out[r] = make([]string, len(row))
		for i, cell := range row {
			if runes := []rune(cell); lipgloss.Width(cell) > t.maxCell && len(runes) == lipgloss.Width(cell) {
				cell = string(runes[:t.maxCell-1]) + "…"
			}
			out[r][i] = cell
		}
	}
	return out
}

// pad right-pads s to width visible cells.
func pad(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}
