// Package table provides the in-memory tabular model the sanitization
// pipeline operates on: an ordered set of uniquely named, null-aware columns
// where every column holds values of a single dtype class (numeric, temporal
// or textual) and all columns share the same row count.
package table

import (
	"fmt"
	"time"
)

// DType is the dtype class of a column.
type DType string

const (
	Numeric  DType = "numeric"
	Temporal DType = "temporal"
	Textual  DType = "textual"
)

// Cell is a single null-aware value. The zero Cell is null.
type Cell struct {
	null bool
	num  float64
	ts   time.Time
	text string
	kind DType
}

// Null returns a null cell.
func Null() Cell {
	return Cell{null: true}
}

// Number returns a numeric cell.
func Number(v float64) Cell {
	return Cell{num: v, kind: Numeric}
}

// Time returns a temporal cell.
func Time(t time.Time) Cell {
	return Cell{ts: t, kind: Temporal}
}

// Text returns a textual cell.
func Text(s string) Cell {
	return Cell{text: s, kind: Textual}
}

// IsNull reports whether the cell holds no value.
func (c Cell) IsNull() bool { return c.null || c.kind == "" }

// Kind returns the dtype class of the value, or "" for null cells.
func (c Cell) Kind() DType {
	if c.null {
		return ""
	}
	return c.kind
}

// Number returns the numeric value. Only meaningful for numeric cells.
func (c Cell) Number() float64 { return c.num }

// Time returns the temporal value. Only meaningful for temporal cells.
func (c Cell) Time() time.Time { return c.ts }

// Text returns the textual value. Only meaningful for textual cells.
func (c Cell) Text() string { return c.text }

// Equal reports whether two cells hold the same value (nulls are equal).
func (c Cell) Equal(o Cell) bool {
	if c.IsNull() || o.IsNull() {
		return c.IsNull() == o.IsNull()
	}
	if c.kind != o.kind {
		return false
	}
	switch c.kind {
	case Numeric:
		return c.num == o.num
	case Temporal:
		return c.ts.Equal(o.ts)
	default:
		return c.text == o.text
	}
}

// Column is an ordered sequence of cells sharing one dtype class.
type Column struct {
	Name  string
	DType DType
	Cells []Cell

	// layout is the time format the loader detected, used to render
	// temporal cells back out. Empty means the default date layout.
	layout string
}

// Clone returns a deep copy of the column.
func (c Column) Clone() Column {
	cells := make([]Cell, len(c.Cells))
	copy(cells, c.Cells)
	return Column{Name: c.Name, DType: c.DType, Cells: cells, layout: c.layout}
}

// NonNull returns the number of non-null cells.
func (c Column) NonNull() int {
	n := 0
	for _, cell := range c.Cells {
		if !cell.IsNull() {
			n++
		}
	}
	return n
}

// Table is an ordered set of uniquely named columns with equal row counts.
type Table struct {
	cols []Column
}

// New builds a table from columns, validating name uniqueness and that all
// columns have the same number of rows.
func New(cols ...Column) (*Table, error) {
	seen := make(map[string]struct{}, len(cols))
	rows := -1
	for _, c := range cols {
		if c.Name == "" {
			return nil, fmt.Errorf("table: column with empty name")
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("table: duplicate column %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		if rows == -1 {
			rows = len(c.Cells)
		} else if len(c.Cells) != rows {
			return nil, fmt.Errorf("table: column %q has %d rows, want %d", c.Name, len(c.Cells), rows)
		}
	}
	return &Table{cols: cols}, nil
}

// Rows returns the row count (0 for an empty table).
func (t *Table) Rows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return len(t.cols[0].Cells)
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Columns returns the columns in order. The slice is shared; callers must
// not mutate it.
func (t *Table) Columns() []Column {
	return t.cols
}

// Column returns the named column, or false if absent.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.cols {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Clone returns a deep copy. Phases operate on copies so the input table is
// never aliased by the output.
func (t *Table) Clone() *Table {
	cols := make([]Column, len(t.cols))
	for i, c := range t.cols {
		cols[i] = c.Clone()
	}
	return &Table{cols: cols}
}

// Drop removes the named column, reporting whether it was present.
func (t *Table) Drop(name string) bool {
	for i, c := range t.cols {
		if c.Name == name {
			t.cols = append(t.cols[:i], t.cols[i+1:]...)
			return true
		}
	}
	return false
}

// SetColumn replaces the column with the same name. The replacement must
// keep the row count unchanged.
func (t *Table) SetColumn(col Column) error {
	for i, c := range t.cols {
		if c.Name == col.Name {
			if len(col.Cells) != len(c.Cells) {
				return fmt.Errorf("table: replacing %q changes row count from %d to %d", col.Name, len(c.Cells), len(col.Cells))
			}
			if col.layout == "" {
				col.layout = c.layout
			}
			t.cols[i] = col
			return nil
		}
	}
	return fmt.Errorf("table: no column %q", col.Name)
}
