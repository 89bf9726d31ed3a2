// Package workbook implements a publish.Spreadsheet backed by a local
// .xlsx file, for runs without access to Google Sheets and for
// end-to-end tests.
//
// Every write is saved to disk before it returns, so a failed run
// leaves the file in the same state a remote spreadsheet would be in.
package workbook

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/spxops/zipsheet/internal/publish"
)

// Workbook is a local .xlsx file.
type Workbook struct {
	path    string
	file    *excelize.File
	created bool
}

// Tab is a single tab of a Workbook.
type Tab struct {
	wb   *Workbook
	name string
}

var (
	ErrOpen  = errors.New("failed to open workbook")
	ErrSave  = errors.New("failed to save workbook")
	ErrWrite = errors.New("failed to write workbook")

	// Testing and debugging support.
	verbose = func(fmt string, args ...interface{}) {}
)

// Verbose provides a convenient way for the caller to enable verbose
// printing and control its format (mostly for debugging).
func Verbose(v func(string, ...interface{})) {
	verbose = v
}

// Open opens the workbook at path.  If the file does not exist, a new
// workbook is created with the given tabs (empty names are ignored).
// Tabs are never added to an existing workbook.
func Open(path string, tabs ...string) (*Workbook, error) {
	if _, err := os.Stat(path); err == nil {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v: %v", ErrOpen, path, err)
		}
		verbose("opened workbook %v with tabs %v", path, f.GetSheetList())
		return &Workbook{path: path, file: f}, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	f := excelize.NewFile()
	first := f.GetSheetName(0)
	renamed := false
	for _, tab := range tabs {
		if tab == "" {
			continue
		}
		if idx, _ := f.GetSheetIndex(tab); idx != -1 {
			continue
		}
		if !renamed {
			if err := f.SetSheetName(first, tab); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrOpen, err)
			}
			renamed = true
			continue
		}
		if _, err := f.NewSheet(tab); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOpen, err)
		}
	}
	wb := &Workbook{path: path, file: f, created: true}
	if err := wb.save(); err != nil {
		return nil, err
	}
	verbose("created workbook %v with tabs %v", path, f.GetSheetList())
	return wb, nil
}

// Created reports whether Open created the file.
func (wb *Workbook) Created() bool {
	return wb.created
}

// Close closes the workbook.
func (wb *Workbook) Close() error {
	return wb.file.Close() //nolint:wrapcheck
}

// Worksheet implements publish.Spreadsheet.
func (wb *Workbook) Worksheet(ctx context.Context, name string) (publish.Worksheet, error) { //nolint:ireturn
	tabs := wb.file.GetSheetList()
	if name == "" && len(tabs) > 0 {
		return &Tab{wb: wb, name: tabs[0]}, nil
	}
	for _, tab := range tabs {
		if tab == name {
			return &Tab{wb: wb, name: tab}, nil
		}
	}
	return nil, fmt.Errorf("%v: %q: %w", wb.path, name, publish.ErrNoWorksheet)
}

// Rows returns the values of the tab, up to its last non-empty row.
func (wb *Workbook) Rows(name string) ([][]string, error) {
	rows, err := wb.file.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %v", ErrOpen, name, err)
	}
	return rows, nil
}

func (wb *Workbook) save() error {
	if err := wb.file.SaveAs(wb.path); err != nil {
		return fmt.Errorf("%w: %v: %v", ErrSave, wb.path, err)
	}
	return nil
}

// Title returns the name of the tab.
func (t *Tab) Title() string {
	return t.name
}

// Clear removes all rows of the tab.
func (t *Tab) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck
	}
	rows, err := t.wb.file.GetRows(t.name)
	if err != nil {
		return fmt.Errorf("%w: %v: %v", ErrWrite, t.name, err)
	}
	for r := len(rows); r >= 1; r-- {
		if err := t.wb.file.RemoveRow(t.name, r); err != nil {
			return fmt.Errorf("%w: %v: row %d: %v", ErrWrite, t.name, r, err)
		}
	}
	return t.wb.save()
}

// Update writes values starting at the given A1-style cell address.
func (t *Tab) Update(ctx context.Context, cell string, values [][]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck
	}
	col, row, err := excelize.CellNameToCoordinates(cell)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	for i := range values {
		name, err := excelize.CoordinatesToCellName(col, row+i)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWrite, err)
		}
		cells := blankToNil(values[i])
		if err := t.wb.file.SetSheetRow(t.name, name, &cells); err != nil {
			return fmt.Errorf("%w: %v!%v: %v", ErrWrite, t.name, name, err)
		}
	}
	return t.wb.save()
}

// blankToNil returns a copy of row with empty strings replaced by nil.
// A cell saved with an empty string value keeps that value when the
// cell is written again after the save.
func blankToNil(row []interface{}) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		if s, ok := v.(string); !ok || s != "" {
			out[i] = v
		}
	}
	return out
}
