// Package archive extracts the CSV files of an in-memory ZIP archive and
// merges them into a single raw table.
//
// Entries are selected when their name ends with ".csv" in any letter
// case and are merged in the order they appear in the archive.  Each
// file is decoded as UTF-8 with an optional byte order mark and its
// first record names the columns.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/spxops/zipsheet/internal/table"
)

// Options controls how entries are parsed and merged.
type Options struct {
	Suffix        string // entry name suffix, matched case-insensitively
	Comma         rune   // field delimiter, ',' if zero
	StrictHeaders bool   // fail if a file's header differs from the first one
}

// Stats describes what was found in an archive.
type Stats struct {
	Entries  int      // total entries in the archive
	CSVFiles []string // names of the merged entries, in merge order
	Rows     int      // data rows merged
}

var (
	ErrOpen      = errors.New("failed to open archive")
	ErrEntry     = errors.New("failed to read archive entry")
	ErrParse     = errors.New("failed to parse CSV")
	ErrTooMany   = errors.New("has more fields than the header")
	ErrNoHeaders = errors.New("has an empty header")

	// Testing and debugging support.
	verbose = func(fmt string, args ...interface{}) {}
)

// Verbose provides a convenient way for the caller to enable verbose
// printing and control its format (mostly for debugging).
func Verbose(v func(string, ...interface{})) {
	verbose = v
}

// Merge opens the given archive contents and merges all of its CSV
// entries into one raw table.  An archive without CSV entries yields an
// empty table and no error.
func Merge(contents []byte, opts Options) (*table.RawTable, *Stats, error) {
	if opts.Suffix == "" {
		opts.Suffix = ".csv"
	}
	zr, err := zip.NewReader(bytes.NewReader(contents), int64(len(contents)))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	rt := &table.RawTable{}
	stats := &Stats{Entries: len(zr.File), CSVFiles: []string{}}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), strings.ToLower(opts.Suffix)) {
			verbose("skipping entry %v", f.Name)
			continue
		}
		header, rows, err := readEntry(f, opts.Comma)
		if err != nil {
			return nil, nil, err
		}
		if header == nil {
			verbose("skipping empty entry %v", f.Name)
			continue
		}
		if err := rt.Append(header, rows, opts.StrictHeaders); err != nil {
			return nil, nil, fmt.Errorf("%v: %w", f.Name, err)
		}
		verbose("merged %v: %d columns, %d rows", f.Name, len(header), len(rows))
		stats.CSVFiles = append(stats.CSVFiles, f.Name)
		stats.Rows += len(rows)
	}
	return rt, stats, nil
}

// readEntry parses a single archive entry.  It returns a nil header for
// an entry without any record.
func readEntry(f *zip.File, comma rune) ([]string, [][]table.Cell, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v: %v", ErrEntry, f.Name, err)
	}
	defer rc.Close()
	// UTF-8 with an optional BOM; a BOM is removed instead of becoming
	// part of the first column name.
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	r := csv.NewReader(transform.NewReader(rc, decoder))
	if comma != 0 {
		r.Comma = comma
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v: %v", ErrParse, f.Name, err)
	}
	// Column names are trimmed before files are merged so that "A " in
	// one file and "A" in another name the same column.
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	header = dedupe(header)
	if len(header) == 1 && header[0] == "" {
		return nil, nil, fmt.Errorf("%v: %w", f.Name, ErrNoHeaders)
	}
	rows := [][]table.Cell{}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v: %v", ErrParse, f.Name, err)
		}
		if len(record) > len(header) {
			line, _ := r.FieldPos(0)
			return nil, nil, fmt.Errorf("%v: line %d %w (%d > %d)", f.Name, line, ErrTooMany, len(record), len(header))
		}
		row := make([]table.Cell, len(record))
		for i, v := range record {
			if v != "" {
				row[i] = table.Text(v)
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// dedupe renames repeated column names "X" to "X.1", "X.2", and so on
// so that every column of a file can be addressed by name.  A suffix
// already used by another column is skipped: "X,X,X.1" becomes
// "X,X.1,X.1.1".
func dedupe(header []string) []string {
	counts := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, name := range header {
		for n := counts[name]; n > 0; n = counts[name] {
			counts[name] = n + 1
			name = name + "." + strconv.Itoa(n)
		}
		out[i] = name
		counts[name]++
	}
	return out
}
