package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// Loader/writer errors. These are the only fatal failure classes at the
// table boundary; everything else in the pipeline degrades per column.
var (
	// ErrSourceMissing means the input table could not be obtained.
	ErrSourceMissing = errors.New("input table missing or unreadable")
	// ErrSinkFailure means the destination write failed. The in-memory
	// result is still intact when this is returned.
	ErrSinkFailure = errors.New("writing output table failed")
)

// temporalLayouts are tried in order during dtype inference. The detected
// layout is kept per column so values render back in the shape they came in.
var temporalLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
}

// ReadCSV parses a CSV stream with a header row into a Table, inferring each
// column's dtype from its non-empty values: all-float columns are numeric,
// all-date columns are temporal, everything else is textual. Empty fields
// are nulls and do not participate in inference. Ragged rows are a parse
// error: a row with a missing field cannot be told apart from a shifted one,
// so the loader refuses rather than guessing.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("parsing csv: no header row")
	}

	header := records[0]
	raw := make([][]string, len(header))
	for _, rec := range records[1:] {
		for i := range header {
			raw[i] = append(raw[i], rec[i])
		}
	}

	cols := make([]Column, len(header))
	for i, name := range header {
		cols[i] = inferColumn(name, raw[i])
	}
	return New(cols...)
}

// ReadCSVFile loads a table from a CSV file. A missing or unreadable file is
// an ErrSourceMissing, fatal to phase 1 before any mutation happens.
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceMissing, path, err)
	}
	defer f.Close()

	t, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceMissing, path, err)
	}
	return t, nil
}

// WriteCSV renders the table to a CSV stream with a header row. Nulls become
// empty fields. A single-column null row would render as a blank line, which
// csv.Reader skips on re-read; such rows are written as a quoted empty field
// so the round trip keeps every row.
func WriteCSV(t *Table, w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(t.Names()); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	cols := t.Columns()
	for row := 0; row < t.Rows(); row++ {
		rec := make([]string, len(cols))
		for i, c := range cols {
			rec[i] = renderCell(c, c.Cells[row])
		}
		if len(rec) == 1 && rec[0] == "" {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return fmt.Errorf("writing csv row %d: %w", row, err)
			}
			if _, err := io.WriteString(w, "\"\"\n"); err != nil {
				return fmt.Errorf("writing csv row %d: %w", row, err)
			}
			continue
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing csv row %d: %w", row, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the table to path. Failures are ErrSinkFailure; the
// table itself is untouched either way.
func WriteCSVFile(t *Table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSinkFailure, path, err)
	}
	if err := WriteCSV(t, f); err != nil {
		f.Close()
		return fmt.Errorf("%w: %s: %v", ErrSinkFailure, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSinkFailure, path, err)
	}
	return nil
}

func inferColumn(name string, values []string) Column {
	numeric := true
	layout := ""
	temporal := true

	for _, v := range values {
		if v == "" {
			continue
		}
		if numeric {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				numeric = false
			}
		}
		if temporal {
			if layout == "" {
				layout = detectLayout(v)
				if layout == "" {
					temporal = false
				}
			} else if _, err := time.Parse(layout, v); err != nil {
				temporal = false
			}
		}
	}

	cells := make([]Cell, len(values))
	switch {
	case numeric:
		for i, v := range values {
			if v == "" {
				cells[i] = Null()
				continue
			}
			f, _ := strconv.ParseFloat(v, 64)
			cells[i] = Number(f)
		}
		return Column{Name: name, DType: Numeric, Cells: cells}
	case temporal && layout != "":
		for i, v := range values {
			if v == "" {
				cells[i] = Null()
				continue
			}
			ts, _ := time.Parse(layout, v)
			cells[i] = Time(ts)
		}
		return Column{Name: name, DType: Temporal, Cells: cells, layout: layout}
	default:
		for i, v := range values {
			if v == "" {
				cells[i] = Null()
				continue
			}
			cells[i] = Text(v)
		}
		return Column{Name: name, DType: Textual, Cells: cells}
	}
}

func detectLayout(v string) string {
	for _, layout := range temporalLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return layout
		}
	}
	return ""
}

// Render formats a cell the way the CSV writer would, which is also the
// representation shown to the semantic classifier as a sample value.
func (c Column) Render(cell Cell) string {
	return renderCell(c, cell)
}

func renderCell(c Column, cell Cell) string {
	if cell.IsNull() {
		return ""
	}
	switch c.DType {
	case Numeric:
		return strconv.FormatFloat(cell.Number(), 'f', -1, 64)
	case Temporal:
		layout := c.layout
		if layout == "" {
			layout = temporalLayouts[0]
		}
		return cell.Time().Format(layout)
	default:
		return cell.Text()
	}
}
