// Package table implements the tabular data model of a zipsheet run:
// the raw table merged from all CSV files of an archive, the row
// predicate, and the filtered and normalized table that is written to
// the spreadsheet.
package table

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Cell is a single value of a RawTable.  The zero Cell is null (missing
// in the source file or empty in the CSV).
type Cell struct {
	Value string
	Valid bool
}

// String returns the textual form of the cell, "" for null.
func (c Cell) String() string {
	if !c.Valid {
		return ""
	}
	return c.Value
}

// Text returns a valid Cell holding s.
func Text(s string) Cell {
	return Cell{Value: s, Valid: true}
}

// RawTable is the concatenation of all CSV files of an archive.  Every
// row is aligned with Columns; rows shorter than Columns have null
// cells for the missing trailing columns.
type RawTable struct {
	Columns []string
	Rows    [][]Cell
}

// FilteredTable is the payload written to the spreadsheet.  It has no
// null cells and must not be modified once produced.
type FilteredTable struct {
	Header []string
	Rows   [][]string
	// Numeric tells, per column, whether the column is written as
	// numbers.  Nil means it is inferred from Rows.
	Numeric []bool
}

var (
	ErrMissingColumn = errors.New("missing column")
	ErrHeader        = errors.New("header mismatch")

	// Testing and debugging support.
	verbose = func(fmt string, args ...interface{}) {}
)

// Verbose provides a convenient way for the caller to enable verbose
// printing and control its format (mostly for debugging).
func Verbose(v func(string, ...interface{})) {
	verbose = v
}

// Cell returns the cell of row in column i, null if the row is short.
func (rt *RawTable) Cell(row []Cell, i int) Cell {
	if i < 0 || i >= len(row) {
		return Cell{}
	}
	return row[i]
}

// Index returns the index of the named column or -1.
func (rt *RawTable) Index(name string) int {
	for i, c := range rt.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Append adds rows read from a file with the given header.  Columns
// not seen before are appended to the table's columns (the union of all
// headers in order of first appearance) and rows are realigned to the
// table's columns.  If strict is set, a header different from the
// table's existing columns is an error.
func (rt *RawTable) Append(header []string, rows [][]Cell, strict bool) error {
	if strict && len(rt.Columns) != 0 && !equal(rt.Columns, header) {
		return fmt.Errorf("%w: got %q, want %q", ErrHeader, header, rt.Columns)
	}
	pos := make([]int, len(header))
	aligned := true
	for i, name := range header {
		idx := rt.Index(name)
		if idx == -1 {
			rt.Columns = append(rt.Columns, name)
			idx = len(rt.Columns) - 1
		}
		pos[i] = idx
		if idx != i {
			aligned = false
		}
	}
	if aligned {
		rt.Rows = append(rt.Rows, rows...)
		return nil
	}
	for _, row := range rows {
		out := make([]Cell, len(rt.Columns))
		for i, c := range row {
			if i < len(pos) {
				out[pos[i]] = c
			}
		}
		rt.Rows = append(rt.Rows, out)
	}
	return nil
}

// TrimColumns removes leading and trailing whitespace from all column
// names.
func (rt *RawTable) TrimColumns() {
	for i := range rt.Columns {
		rt.Columns[i] = strings.TrimSpace(rt.Columns[i])
	}
}

// Filter derives a FilteredTable from rt: it trims the column names,
// keeps the rows accepted by pred, projects them to columns, and turns
// null cells into empty strings.  Numeric columns are inferred from all
// rows of rt, kept or not, so that a column keeps its type whatever the
// predicate selects.  A projected or required predicate column that is
// absent from rt is an error wrapping ErrMissingColumn.
//
// A table without any column (an archive without CSV files) yields a
// table with the projection as header and no rows.
func Filter(rt *RawTable, pred Predicate, columns []string) (*FilteredTable, error) {
	ft := &FilteredTable{
		Header:  append([]string(nil), columns...),
		Rows:    [][]string{},
		Numeric: make([]bool, len(columns)),
	}
	if len(rt.Columns) == 0 {
		return ft, nil
	}
	rt.TrimColumns()
	match, err := pred.Bind(rt)
	if err != nil {
		return nil, err
	}
	proj := make([]int, len(columns))
	for i, name := range columns {
		if proj[i] = rt.Index(name); proj[i] == -1 {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
	}
	scan := newNumericScan(len(proj))
	for _, row := range rt.Rows {
		out := make([]string, len(proj))
		for i, idx := range proj {
			out[i] = rt.Cell(row, idx).String()
			scan.add(i, out[i])
		}
		if match(row) {
			ft.Rows = append(ft.Rows, out)
		}
	}
	ft.Numeric = scan.result()
	verbose("kept %d of %d rows", len(ft.Rows), len(rt.Rows))
	return ft, nil
}

// NumericColumns reports, for each column of ft, whether the column is
// written as numbers.  Unless ft.Numeric says otherwise, a column is
// numeric when every non-empty cell of it is a decimal number.  Columns
// without any non-empty cell are not numeric.
func (ft *FilteredTable) NumericColumns() []bool {
	if ft.Numeric != nil && len(ft.Numeric) == len(ft.Header) {
		return ft.Numeric
	}
	scan := newNumericScan(len(ft.Header))
	for _, row := range ft.Rows {
		for i, v := range row {
			scan.add(i, v)
		}
	}
	return scan.result()
}

// numericScan infers which columns hold only decimal numbers.
type numericScan struct {
	numeric []bool
	seen    []bool
}

func newNumericScan(n int) *numericScan {
	s := &numericScan{numeric: make([]bool, n), seen: make([]bool, n)}
	for i := range s.numeric {
		s.numeric[i] = true
	}
	return s
}

func (s *numericScan) add(i int, v string) {
	if i >= len(s.numeric) || v == "" || !s.numeric[i] {
		return
	}
	s.seen[i] = true
	if _, err := strconv.ParseFloat(v, 64); err != nil || !isDecimal(v) {
		s.numeric[i] = false
	}
}

func (s *numericScan) result() []bool {
	out := make([]bool, len(s.numeric))
	for i := range out {
		out[i] = s.numeric[i] && s.seen[i]
	}
	return out
}

// Values returns the rows of ft as spreadsheet values.  Cells of
// numeric columns are sent as numbers, everything else as strings.
func (ft *FilteredTable) Values() [][]interface{} {
	numeric := ft.NumericColumns()
	values := make([][]interface{}, 0, len(ft.Rows))
	for _, row := range ft.Rows {
		out := make([]interface{}, len(row))
		for i, v := range row {
			out[i] = v
			if v != "" && i < len(numeric) && numeric[i] {
				if n, err := strconv.ParseInt(v, 10, 64); err == nil {
					out[i] = n
				} else if f, err := strconv.ParseFloat(v, 64); err == nil {
					out[i] = f
				}
			}
		}
		values = append(values, out)
	}
	return values
}

// HeaderValues returns the header of ft as a single spreadsheet row.
func (ft *FilteredTable) HeaderValues() [][]interface{} {
	row := make([]interface{}, len(ft.Header))
	for i, h := range ft.Header {
		row[i] = h
	}
	return [][]interface{}{row}
}

// isDecimal rejects forms ParseFloat accepts but a CSV reader would
// keep as text, such as "NaN", "Inf", hex and underscores.
func isDecimal(s string) bool {
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case (r == '-' || r == '+') && i == 0:
		case r == '.' || r == 'e' || r == 'E':
		case (r == '-' || r == '+') && (s[i-1] == 'e' || s[i-1] == 'E'):
		default:
			return false
		}
	}
	return digits > 0
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
