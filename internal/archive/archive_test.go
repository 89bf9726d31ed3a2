package archive //nolint:testpackage

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/spxops/zipsheet/internal/table"
	"github.com/spxops/zipsheet/internal/testhelper"
)

func TestVerbose(t *testing.T) { //nolint:paralleltest
	Verbose(func(fmt string, args ...interface{}) {})
}

func text(values ...string) []table.Cell {
	row := make([]table.Cell, len(values))
	for i, v := range values {
		if v != "" {
			row[i] = table.Text(v)
		}
	}
	return row
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name        string
		entries     []testhelper.Entry
		opts        Options
		wantColumns []string
		wantRows    [][]table.Cell
		wantFiles   []string
		wantErr     error
	}{
		{
			name: "two files are concatenated in archive order",
			entries: []testhelper.Entry{
				{Name: "a.csv", Content: "A,B\n1,x\n2,y\n3,z\n"},
				{Name: "b.csv", Content: "A,B\n4,u\n5,v\n"},
			},
			wantColumns: []string{"A", "B"},
			wantRows:    [][]table.Cell{text("1", "x"), text("2", "y"), text("3", "z"), text("4", "u"), text("5", "v")},
			wantFiles:   []string{"a.csv", "b.csv"},
		},
		{
			name: "padded column names are merged with unpadded ones",
			entries: []testhelper.Entry{
				{Name: "a.csv", Content: "A , B\n1,x\n"},
				{Name: "b.csv", Content: "A,B\n2,y\n"},
			},
			wantColumns: []string{"A", "B"},
			wantRows:    [][]table.Cell{text("1", "x"), text("2", "y")},
			wantFiles:   []string{"a.csv", "b.csv"},
		},
		{
			name: "byte order mark is removed",
			entries: []testhelper.Entry{
				{Name: "a.csv", Content: "\ufeffTO Number,B\n1,x\n"},
			},
			wantColumns: []string{"TO Number", "B"},
			wantRows:    [][]table.Cell{text("1", "x")},
			wantFiles:   []string{"a.csv"},
		},
		{
			name: "suffix match ignores case and skips other entries",
			entries: []testhelper.Entry{
				{Name: "readme.txt", Content: "not a table"},
				{Name: "sub.csv/", Content: ""},
				{Name: "sub/DATA.CSV", Content: "A\n1\n"},
			},
			wantColumns: []string{"A"},
			wantRows:    [][]table.Cell{text("1")},
			wantFiles:   []string{"sub/DATA.CSV"},
		},
		{
			name: "archive without csv files",
			entries: []testhelper.Entry{
				{Name: "readme.txt", Content: "not a table"},
			},
			wantFiles: []string{},
		},
		{
			name: "empty file is skipped",
			entries: []testhelper.Entry{
				{Name: "empty.csv", Content: ""},
				{Name: "a.csv", Content: "A\n1\n"},
			},
			wantColumns: []string{"A"},
			wantRows:    [][]table.Cell{text("1")},
			wantFiles:   []string{"a.csv"},
		},
		{
			name: "short rows and empty fields are null",
			entries: []testhelper.Entry{
				{Name: "a.csv", Content: "A,B,C\n1,2\n,x,\n"},
			},
			wantColumns: []string{"A", "B", "C"},
			wantRows:    [][]table.Cell{text("1", "2"), text("", "x", "")},
			wantFiles:   []string{"a.csv"},
		},
		{
			name: "repeated column names are renamed",
			entries: []testhelper.Entry{
				{Name: "a.csv", Content: "A,A,B,A\n1,2,3,4\n"},
			},
			wantColumns: []string{"A", "A.1", "B", "A.2"},
			wantRows:    [][]table.Cell{text("1", "2", "3", "4")},
			wantFiles:   []string{"a.csv"},
		},
		{
			name: "divergent headers are merged",
			entries: []testhelper.Entry{
				{Name: "a.csv", Content: "A,B\n1,2\n"},
				{Name: "b.csv", Content: "B,C\n3,4\n"},
			},
			wantColumns: []string{"A", "B", "C"},
			wantRows:    [][]table.Cell{text("1", "2"), text("", "3", "4")},
			wantFiles:   []string{"a.csv", "b.csv"},
		},
		{
			name: "custom delimiter",
			entries: []testhelper.Entry{
				{Name: "a.csv", Content: "A;B\n\"1;2\";x\n"},
			},
			opts:        Options{Comma: ';'},
			wantColumns: []string{"A", "B"},
			wantRows:    [][]table.Cell{text("1;2", "x")},
			wantFiles:   []string{"a.csv"},
		},
		{
			name: "divergent headers in strict mode",
			entries: []testhelper.Entry{
				{Name: "a.csv", Content: "A,B\n1,2\n"},
				{Name: "b.csv", Content: "B,C\n3,4\n"},
			},
			opts:    Options{StrictHeaders: true},
			wantErr: table.ErrHeader,
		},
		{
			name: "too many fields",
			entries: []testhelper.Entry{
				{Name: "a.csv", Content: "A,B\n1,2\n1,2,3\n"},
			},
			wantErr: ErrTooMany,
		},
		{
			name: "blank header",
			entries: []testhelper.Entry{
				{Name: "a.csv", Content: "\"\"\n1\n"},
			},
			wantErr: ErrNoHeaders,
		},
	}
	for i, test := range tests {
		t.Logf(">>> test %02d: %v", i, test.name)
		rt, stats, err := Merge(testhelper.Zip(test.entries...), test.opts)
		if !errors.Is(err, test.wantErr) {
			t.Fatalf("Merge() = %v, want %v", err, test.wantErr)
		}
		if err != nil {
			continue
		}
		if diff := cmp.Diff(test.wantColumns, rt.Columns); diff != "" {
			t.Fatalf("Merge() columns mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(test.wantRows, rt.Rows); diff != "" {
			t.Fatalf("Merge() rows mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(test.wantFiles, stats.CSVFiles); diff != "" {
			t.Fatalf("Merge() files mismatch (-want +got):\n%s", diff)
		}
		if stats.Entries != len(test.entries) || stats.Rows != len(test.wantRows) {
			t.Fatalf("Merge() stats = %+v", stats)
		}
	}
}

func TestMergeInvalidArchive(t *testing.T) {
	for _, contents := range [][]byte{nil, []byte("PK not really a zip")} {
		if _, _, err := Merge(contents, Options{}); !errors.Is(err, ErrOpen) {
			t.Fatalf("Merge() = %v, want %v", err, ErrOpen)
		}
	}
}

func TestDedupe(t *testing.T) {
	tests := []struct {
		header []string
		want   []string
	}{
		{header: []string{"X", "Y", "X", "X", "Y"}, want: []string{"X", "Y", "X.1", "X.2", "Y.1"}},
		{header: []string{"X", "X", "X.1"}, want: []string{"X", "X.1", "X.1.1"}},
		{header: []string{"X.1", "X", "X"}, want: []string{"X.1", "X", "X.1.1"}},
		{header: []string{"A", "B"}, want: []string{"A", "B"}},
	}
	for i, test := range tests {
		t.Logf(">>> test %02d: %v", i, test.header)
		got := dedupe(test.header)
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Fatalf("dedupe() mismatch (-want +got):\n%s", diff)
		}
	}
}
