package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// padToWidth pads or truncates text to a fixed display width.
// Width is measured in display columns, accounting for wide runes.
// If width <= 0, returns text unchanged.
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	currentWidth := runewidth.StringWidth(text)
	if currentWidth == width {
		return text
	}
	if currentWidth < width {
		return text + strings.Repeat(" ", width-currentWidth)
	}

	const ellipsis = "..."
	if width <= len(ellipsis) {
		return ellipsis[:width]
	}

	// A wide rune may leave the cut one column short.
	result := runewidth.Truncate(text, width-len(ellipsis), "") + ellipsis
	if w := runewidth.StringWidth(result); w < width {
		result += strings.Repeat(" ", width-w)
	}
	return result
}

// table writes aligned columns. A column width of 0 leaves the cell as is,
// so the last column can run to the end of the line.
type table struct {
	widths []int
	w      io.Writer
}

func newTable(w io.Writer, widths ...int) *table {
	return &table{widths: widths, w: w}
}

func (t *table) row(cells ...string) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		width := 0
		if i < len(t.widths) {
			width = t.widths[i]
		}
		parts[i] = padToWidth(cell, width)
	}
	fmt.Fprintln(t.w, strings.TrimRight(strings.Join(parts, "  "), " "))
}
