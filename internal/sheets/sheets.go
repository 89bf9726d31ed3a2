// Package sheets implements a publish.Spreadsheet backed by the Google
// Sheets API.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/spxops/zipsheet/internal/publish"
	"github.com/spxops/zipsheet/internal/retry"
)

// Config defines Google Sheets options.
type Config struct {
	SpreadsheetID    string       // spreadsheet key
	ValueInputOption string       // RAW or USER_ENTERED
	Policy           retry.Policy // retry policy of every call
}

// Spreadsheet is a Google Sheets spreadsheet.
type Spreadsheet struct {
	conf    Config
	service *sheets.Service
}

// Tab is a single tab of a Spreadsheet.
type Tab struct {
	s     *Spreadsheet
	title string
}

var (
	ErrConfig = errors.New("invalid sheets configuration")
	ErrOpen   = errors.New("failed to open spreadsheet")

	// Testing and debugging support.
	sheetsNewService = sheets.NewService
	verbose          = func(fmt string, args ...interface{}) {}
)

// Verbose provides a convenient way for the caller to enable verbose
// printing and control its format (mostly for debugging).
func Verbose(v func(string, ...interface{})) {
	verbose = v
}

// New returns a new Spreadsheet.  Credentials and scopes are passed in
// opts.
func New(ctx context.Context, conf Config, opts ...option.ClientOption) (*Spreadsheet, error) {
	if conf.SpreadsheetID == "" {
		return nil, fmt.Errorf("%w: empty spreadsheet id", ErrConfig)
	}
	switch conf.ValueInputOption {
	case "":
		conf.ValueInputOption = "RAW"
	case "RAW", "USER_ENTERED":
	default:
		return nil, fmt.Errorf("%w: invalid value input option %q", ErrConfig, conf.ValueInputOption)
	}
	service, err := sheetsNewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &Spreadsheet{conf: conf, service: service}, nil
}

// Worksheet implements publish.Spreadsheet.
func (s *Spreadsheet) Worksheet(ctx context.Context, name string) (publish.Worksheet, error) { //nolint:ireturn
	var props []*sheets.SheetProperties
	err := retry.Do(ctx, s.conf.Policy, "sheets get "+s.conf.SpreadsheetID, func(ctx context.Context) error {
		resp, err := s.service.Spreadsheets.Get(s.conf.SpreadsheetID).
			Fields("sheets.properties(sheetId,title,index)").
			Context(ctx).
			Do()
		if err != nil {
			return err //nolint:wrapcheck
		}
		props = props[:0]
		for _, sh := range resp.Sheets {
			if sh.Properties != nil {
				props = append(props, sh.Properties)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	var found *sheets.SheetProperties
	for _, p := range props {
		if name == "" && (found == nil || p.Index < found.Index) {
			found = p
		}
		if name != "" && p.Title == name {
			found = p
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%v: %q: %w", s.conf.SpreadsheetID, name, publish.ErrNoWorksheet)
	}
	verbose("opened tab %q (sheet id %d)", found.Title, found.SheetId)
	return &Tab{s: s, title: found.Title}, nil
}

// Title returns the name of the tab.
func (t *Tab) Title() string {
	return t.title
}

// Clear removes all values of the tab.  Formatting is left untouched.
func (t *Tab) Clear(ctx context.Context) error {
	rng := QuoteTab(t.title)
	return retry.Do(ctx, t.s.conf.Policy, "sheets clear "+rng, func(ctx context.Context) error {
		_, err := t.s.service.Spreadsheets.Values.Clear(t.s.conf.SpreadsheetID, rng, &sheets.ClearValuesRequest{}).
			Context(ctx).
			Do()
		return err //nolint:wrapcheck
	})
}

// Update writes values starting at the given A1-style cell address.
func (t *Tab) Update(ctx context.Context, cell string, values [][]interface{}) error {
	rng := QuoteTab(t.title) + "!" + cell
	vr := &sheets.ValueRange{Values: values}
	return retry.Do(ctx, t.s.conf.Policy, "sheets update "+rng, func(ctx context.Context) error {
		_, err := t.s.service.Spreadsheets.Values.Update(t.s.conf.SpreadsheetID, rng, vr).
			ValueInputOption(t.s.conf.ValueInputOption).
			Context(ctx).
			Do()
		return err //nolint:wrapcheck
	})
}

// QuoteTab returns the tab name quoted for use in an A1 range.
func QuoteTab(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
