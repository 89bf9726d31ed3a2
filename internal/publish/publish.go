// Package publish writes a filtered table into a spreadsheet tab.
//
// A publish run performs these writes, strictly in this order and one
// at a time:
//
//  1. The handshake cell (if configured) is set to blank.
//  2. The data tab is cleared.
//  3. The header is written to the first row.
//  4. The data rows are written below the header in batches of at most
//     Config.BatchRows rows, in ascending row order.
//  5. The handshake cell is set to Completed.
//
// The first failure ends the run, so a failed run leaves a prefix of the
// batches written and the handshake cell blank.  A crash after the last
// batch but before step 5 leaves complete data that is not marked as
// such; the handshake never shows Completed for incomplete data.
//
// The package assumes it is the only writer of the spreadsheet for the
// duration of a run.  Nothing enforces this: two concurrent runs against
// the same spreadsheet interleave their writes and the handshake cell
// no longer describes the data.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/spxops/zipsheet/internal/table"
)

// Completed is the handshake value written after all batches succeeded.
const Completed = "COMPLETED"

// Worksheet is a single tab of a spreadsheet.
type Worksheet interface {
	Title() string
	Clear(ctx context.Context) error
	Update(ctx context.Context, cell string, values [][]interface{}) error
}

// Spreadsheet opens tabs by name.  An empty name opens the first tab.
// Implementations return an error wrapping ErrNoWorksheet if the tab
// does not exist.
type Spreadsheet interface {
	Worksheet(ctx context.Context, name string) (Worksheet, error)
}

// Config defines publishing options.
type Config struct {
	DataTab       string // tab receiving the table, "" for the first tab
	HandshakeTab  string // tab holding the handshake cell, "" to disable the handshake
	HandshakeCell string // handshake cell address (e.g., A1)
	BatchRows     int    // maximum data rows per write
}

// Publisher writes filtered tables to a spreadsheet.
type Publisher struct {
	sheet Spreadsheet
	conf  Config
}

// Report describes a successful publish run.
type Report struct {
	Tab       string
	Rows      int
	Batches   int
	Handshake bool
}

var (
	DefaultBatchRows = 10000

	ErrConfig      = errors.New("invalid publish configuration")
	ErrNoWorksheet = errors.New("worksheet not found")
	ErrOpen        = errors.New("failed to open worksheet")
	ErrHandshake   = errors.New("failed to write handshake")
	ErrClear       = errors.New("failed to clear worksheet")
	ErrHeader      = errors.New("failed to write header")
	ErrBatch       = errors.New("failed to write batch")

	// Testing and debugging support.
	verbose = func(fmt string, args ...interface{}) {}
)

// Verbose provides a convenient way for the caller to enable verbose
// printing and control its format (mostly for debugging).
func Verbose(v func(string, ...interface{})) {
	verbose = v
}

// New returns a new Publisher instance.
func New(sheet Spreadsheet, conf Config) (*Publisher, error) {
	if sheet == nil {
		return nil, fmt.Errorf("%w: nil spreadsheet", ErrConfig)
	}
	if conf.BatchRows == 0 {
		conf.BatchRows = DefaultBatchRows
	}
	if conf.BatchRows < 0 {
		return nil, fmt.Errorf("%w: negative batch size %d", ErrConfig, conf.BatchRows)
	}
	if conf.HandshakeTab != "" && conf.HandshakeTab == conf.DataTab {
		return nil, fmt.Errorf("%w: handshake tab %q is the data tab", ErrConfig, conf.HandshakeTab)
	}
	if conf.HandshakeTab != "" && conf.HandshakeCell == "" {
		conf.HandshakeCell = "A1"
	}
	return &Publisher{sheet: sheet, conf: conf}, nil
}

// Publish writes ft to the data tab as described in the package
// documentation.
func (p *Publisher) Publish(ctx context.Context, ft *table.FilteredTable) (*Report, error) {
	// Open all tabs first so that a missing tab fails the run before
	// anything is written.
	data, err := p.open(ctx, p.conf.DataTab)
	if err != nil {
		return nil, err
	}
	var handshake Worksheet
	if p.conf.HandshakeTab != "" {
		if handshake, err = p.open(ctx, p.conf.HandshakeTab); err != nil {
			return nil, err
		}
		// Clearing the data tab would erase the handshake cell.
		if handshake.Title() == data.Title() {
			return nil, fmt.Errorf("%w: handshake tab %q is the data tab", ErrConfig, handshake.Title())
		}
		verbose("resetting handshake %v!%v", handshake.Title(), p.conf.HandshakeCell)
		if err := handshake.Update(ctx, p.conf.HandshakeCell, [][]interface{}{{""}}); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
		}
	}

	verbose("clearing %v", data.Title())
	if err := data.Clear(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v: %w", ErrClear, data.Title(), err)
	}
	if err := data.Update(ctx, "A1", ft.HeaderValues()); err != nil {
		return nil, fmt.Errorf("%w: %v: %w", ErrHeader, data.Title(), err)
	}

	values := ft.Values()
	batches := Batches(len(values), p.conf.BatchRows)
	for _, b := range batches {
		verbose("writing %v", b.Description())
		if err := data.Update(ctx, b.Cell(), values[b.Start:b.End]); err != nil {
			return nil, fmt.Errorf("%w: %v: %v: %w", ErrBatch, data.Title(), b.Description(), err)
		}
		if len(batches) > 1 {
			log.Printf("wrote %v of %d\n", b.Description(), len(batches))
		}
	}

	report := &Report{Tab: data.Title(), Rows: len(values), Batches: len(batches)}
	if handshake != nil {
		if err := handshake.Update(ctx, p.conf.HandshakeCell, [][]interface{}{{Completed}}); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
		}
		report.Handshake = true
		verbose("handshake %v!%v set to %v", handshake.Title(), p.conf.HandshakeCell, Completed)
	}
	return report, nil
}

// open opens the named tab.  Errors other than a missing tab are wrapped
// with ErrOpen.
func (p *Publisher) open(ctx context.Context, name string) (Worksheet, error) { //nolint:ireturn
	ws, err := p.sheet.Worksheet(ctx, name)
	if err != nil && !errors.Is(err, ErrNoWorksheet) {
		return nil, fmt.Errorf("%w: %q: %w", ErrOpen, name, err)
	}
	return ws, err
}
