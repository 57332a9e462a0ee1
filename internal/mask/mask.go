// Package mask implements the masking transformer applied to columns the
// policy engine marks Mask. Temporal values are coarsened to the first day
// of their month; textual values are truncated to five characters plus a
// fixed marker; numeric values are rendered as text and truncated the same
// way, so a quasi-identifier stored as a number (a postal code, say) never
// passes through unmasked. Masking is NOT idempotent: applying it twice
// truncates again, so the orchestrator masks each column at most once per run.
package mask

import (
	"strconv"
	"time"

	"github.com/dativo-io/veil/internal/table"
)

// Marker is appended to every masked textual value.
const Marker = "***"

// keepRunes is how many leading characters survive textual masking.
const keepRunes = 5

// Cell masks a single value according to its type. Nulls pass through
// unchanged; numeric values come back as textual cells.
func Cell(c table.Cell) table.Cell {
	switch c.Kind() {
	case table.Temporal:
		return maskTemporal(c)
	case table.Textual:
		return maskTextual(c.Text())
	case table.Numeric:
		return maskTextual(strconv.FormatFloat(c.Number(), 'f', -1, 64))
	default:
		return c
	}
}

// Column masks every cell, returning a new column. The input is untouched.
// Masking a numeric column turns it textual, since the masked values are
// truncated strings rather than numbers.
func Column(col table.Column) table.Column {
	out := col.Clone()
	if out.DType == table.Numeric {
		out.DType = table.Textual
	}
	for i, c := range out.Cells {
		out.Cells[i] = Cell(c)
	}
	return out
}

// maskTemporal keeps year and month, pins the day to 1, and discards any
// sub-day precision.
func maskTemporal(c table.Cell) table.Cell {
	t := c.Time()
	return table.Time(time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()))
}

// maskTextual keeps the first five characters (by rune, not byte) and
// appends the marker. Values of five characters or fewer keep their full
// text, so output length is always min(len, 5) + 3.
func maskTextual(s string) table.Cell {
	runes := []rune(s)
	if len(runes) > keepRunes {
		runes = runes[:keepRunes]
	}
	return table.Text(string(runes) + Marker)
}
