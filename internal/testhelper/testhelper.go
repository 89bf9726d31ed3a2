// Package testhelper implements code that helps in unit and integration
// testing.  The helpers in this package include verbose logging (with
// colored details), an in-memory ZIP archive builder, and an in-memory
// spreadsheet that records every operation performed on it.
package testhelper

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/spxops/zipsheet/internal/publish"
)

const (
	ANSIGreen  = "\033[00;32m"
	ANSIBlue   = "\033[00;34m"
	ANSIPurple = "\033[00;35m"
	ANSIEnd    = "\033[0m"
)

var (
	ErrForced     = errors.New("forced failure")
	errBadAddress = errors.New("bad cell address")
)

// VLogf logs messages in verbose mode (mostly for debugging).  Messages
// are prefixed by "filename:line-number function()" printed in green and
// the message printed in blue for easier visual inspection.
func VLogf(format string, args ...interface{}) {
	pc, file, line, ok := runtime.Caller(1)
	if !ok {
		log.Printf(format, args...)
		return
	}
	details := runtime.FuncForPC(pc)
	if details == nil {
		log.Printf(format, args...)
		return
	}
	file = filepath.Base(file)
	idx := strings.LastIndex(details.Name(), "/")
	if idx == -1 {
		idx = 0
	} else {
		idx++
	}
	a := []interface{}{ANSIGreen, file, line, details.Name()[idx:], ANSIBlue}
	a = append(a, args...)
	log.Printf("%s%s:%d: %s(): %s"+format+"%s", append(a, ANSIEnd)...)
}

// Entry is a single file of a test archive.
type Entry struct {
	Name    string
	Content string
}

// Zip returns the contents of a ZIP archive holding the given entries
// in the given order.
func Zip(entries ...Entry) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			panic(err)
		}
		if _, err := w.Write([]byte(e.Content)); err != nil {
			panic(err)
		}
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Op is a single operation recorded by a fake worksheet.
type Op struct {
	Tab  string
	Kind string // "clear" or "update"
	Cell string
	Rows int
}

// String returns a compact description such as "Data:update:A2:3".
func (o Op) String() string {
	if o.Kind == "clear" {
		return o.Tab + ":clear"
	}
	return fmt.Sprintf("%s:update:%s:%d", o.Tab, o.Cell, o.Rows)
}

// Spreadsheet is an in-memory spreadsheet.  Each tab is a sparse grid
// addressed by 1-based row and column.  Failures can be injected by
// setting FailOn to the String() form of an operation, optionally
// followed by "#n" to select its n-th occurrence: the matching operation
// and every operation after it fail with ErrForced.
type Spreadsheet struct {
	Tabs   []string
	Cells  map[string]map[[2]int]interface{}
	Ops    []Op
	FailOn string
	failed bool
	seen   map[string]int
}

// NewSpreadsheet returns a spreadsheet with the given tabs.
func NewSpreadsheet(tabs ...string) *Spreadsheet {
	s := &Spreadsheet{Tabs: tabs, Cells: map[string]map[[2]int]interface{}{}}
	for _, tab := range tabs {
		s.Cells[tab] = map[[2]int]interface{}{}
	}
	return s
}

// Tab is a single tab of Spreadsheet.
type Tab struct {
	s    *Spreadsheet
	name string
}

// Worksheet returns the named tab or the first tab if name is empty.
func (s *Spreadsheet) Worksheet(ctx context.Context, name string) (publish.Worksheet, error) { //nolint:ireturn
	if name == "" && len(s.Tabs) > 0 {
		name = s.Tabs[0]
	}
	if _, ok := s.Cells[name]; !ok {
		return nil, fmt.Errorf("%q: %w", name, publish.ErrNoWorksheet)
	}
	return &Tab{s: s, name: name}, nil
}

func (s *Spreadsheet) record(op Op) error {
	if s.failed {
		return ErrForced
	}
	if s.seen == nil {
		s.seen = map[string]int{}
	}
	s.seen[op.String()]++
	if s.FailOn != "" {
		target, nth := s.FailOn, 1
		if idx := strings.LastIndex(target, "#"); idx != -1 {
			if n, err := strconv.Atoi(target[idx+1:]); err == nil {
				target, nth = target[:idx], n
			}
		}
		if op.String() == target && s.seen[target] == nth {
			s.failed = true
			return ErrForced
		}
	}
	s.Ops = append(s.Ops, op)
	return nil
}

// Title returns the name of the tab.
func (t *Tab) Title() string {
	return t.name
}

// Clear removes all values of the tab.
func (t *Tab) Clear(ctx context.Context) error {
	if err := t.s.record(Op{Tab: t.name, Kind: "clear"}); err != nil {
		return err
	}
	t.s.Cells[t.name] = map[[2]int]interface{}{}
	return nil
}

// Update writes values starting at the given A1-style cell address.
func (t *Tab) Update(ctx context.Context, cell string, values [][]interface{}) error {
	row, col, err := parseCell(cell)
	if err != nil {
		return err
	}
	if err := t.s.record(Op{Tab: t.name, Kind: "update", Cell: cell, Rows: len(values)}); err != nil {
		return err
	}
	for i, r := range values {
		for j, v := range r {
			t.s.Cells[t.name][[2]int{row + i, col + j}] = v
		}
	}
	return nil
}

// Value returns the value at the given 1-based row and column, nil if
// the cell is empty.
func (s *Spreadsheet) Value(tab string, row, col int) interface{} {
	return s.Cells[tab][[2]int{row, col}]
}

// Rows returns the number of the last non-empty row of the tab.
func (s *Spreadsheet) Rows(tab string) int {
	n := 0
	for k := range s.Cells[tab] {
		if k[0] > n {
			n = k[0]
		}
	}
	return n
}

// OpStrings returns the String() forms of all recorded operations.
func (s *Spreadsheet) OpStrings() []string {
	ops := make([]string, len(s.Ops))
	for i, op := range s.Ops {
		ops[i] = op.String()
	}
	return ops
}

// parseCell parses a cell address such as "B12" into its 1-based row
// and column.
func parseCell(cell string) (int, int, error) {
	col, i := 0, 0
	for ; i < len(cell) && cell[i] >= 'A' && cell[i] <= 'Z'; i++ {
		col = col*26 + int(cell[i]-'A'+1)
	}
	row := 0
	for j := i; j < len(cell); j++ {
		if cell[j] < '0' || cell[j] > '9' {
			return 0, 0, fmt.Errorf("%q: %w", cell, errBadAddress)
		}
		row = row*10 + int(cell[j]-'0')
	}
	if col == 0 || row == 0 {
		return 0, 0, fmt.Errorf("%q: %w", cell, errBadAddress)
	}
	return row, col, nil
}
