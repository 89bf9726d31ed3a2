package source //nolint:testpackage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/spxops/zipsheet/internal/retry"
	"github.com/spxops/zipsheet/internal/testhelper"
)

func TestVerbose(t *testing.T) { //nolint:paralleltest
	Verbose(func(fmt string, args ...interface{}) {})
}

type failingReader struct {
	data []byte
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestReadChunks(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 10)
	tests := []struct {
		chunkSize int
		wantCalls int
	}{
		{chunkSize: 7, wantCalls: 15},
		{chunkSize: 10, wantCalls: 10},
		{chunkSize: 1000, wantCalls: 1},
		{chunkSize: 0, wantCalls: 1},
	}
	for i, test := range tests {
		calls := 0
		var last int64
		got, err := ReadChunks(bytes.NewReader(data), test.chunkSize, int64(len(data)), func(read, total int64) {
			calls++
			if read <= last || total != int64(len(data)) {
				t.Fatalf("test %02d: progress(%d, %d) after %d", i, read, total, last)
			}
			last = read
		})
		if err != nil {
			t.Fatalf("test %02d: ReadChunks() = %v", i, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("test %02d: ReadChunks() returned %d bytes, want %d", i, len(got), len(data))
		}
		if calls != test.wantCalls {
			t.Fatalf("test %02d: progress called %d times, want %d", i, calls, test.wantCalls)
		}
	}

	_, err := ReadChunks(&failingReader{data: data[:5]}, 3, 0, nil)
	if !errors.Is(err, ErrDownload) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("ReadChunks() = %v, want %v", err, ErrDownload)
	}
}

func TestLogProgress(t *testing.T) { //nolint:paralleltest
	var lines []string
	saveVerbose := verbose
	defer func() { verbose = saveVerbose }()
	Verbose(func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	})
	LogProgress("a.zip")(50, 200)
	LogProgress("b.zip")(50, 0)
	want := []string{"a.zip: downloaded 50 of 200 bytes (25%)", "b.zip: downloaded 50 bytes"}
	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Fatalf("LogProgress() logged %q, want %q", lines, want)
	}
}

func TestDisk(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	files := []struct {
		name string
		age  time.Duration
	}{
		{name: "old.zip", age: 2 * time.Hour},
		{name: "new.zip", age: time.Hour},
		{name: "newer.txt", age: time.Minute},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte(f.name), 0o644); err != nil {
			t.Fatal(err)
		}
		mtime := now.Add(-f.age)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "dir.zip"), 0o755); err != nil {
		t.Fatal(err)
	}

	d, err := NewDisk(dir, ".zip", 4)
	if err != nil {
		t.Fatalf("NewDisk() = %v", err)
	}
	rf, err := d.Newest(context.Background())
	if err != nil {
		t.Fatalf("Newest() = %v", err)
	}
	if rf.Name != "new.zip" || rf.Size != int64(len("new.zip")) {
		t.Fatalf("Newest() = %+v, want new.zip", rf)
	}
	got, err := d.Download(context.Background(), rf)
	if err != nil || string(got) != "new.zip" {
		t.Fatalf("Download() = %q, %v", got, err)
	}

	d, _ = NewDisk(dir, ".csv", 0)
	if _, err := d.Newest(context.Background()); !errors.Is(err, ErrNoArchive) {
		t.Fatalf("Newest() = %v, want %v", err, ErrNoArchive)
	}
	d, _ = NewDisk(filepath.Join(dir, "missing"), ".zip", 0)
	if _, err := d.Newest(context.Background()); !errors.Is(err, ErrList) {
		t.Fatalf("Newest() = %v, want %v", err, ErrList)
	}
	if _, err := d.Download(context.Background(), &RemoteFile{ID: filepath.Join(dir, "gone.zip")}); !errors.Is(err, ErrDownload) {
		t.Fatalf("Download() = %v, want %v", err, ErrDownload)
	}
	if _, err := NewDisk("", ".zip", 0); !errors.Is(err, ErrConfig) {
		t.Fatalf("NewDisk() = %v, want %v", err, ErrConfig)
	}
}

// fakeDrive serves the subset of the Drive v3 API used by Drive.
type fakeDrive struct {
	listBody    string
	listStatus  []int // status codes of successive list calls, then 200
	listCalls   int
	lastQuery   string
	lastOrderBy string
	content     string
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/files":
		f.listCalls++
		f.lastQuery = r.URL.Query().Get("q")
		f.lastOrderBy = r.URL.Query().Get("orderBy")
		if f.listCalls <= len(f.listStatus) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.listStatus[f.listCalls-1])
			fmt.Fprint(w, `{"error":{"code":503,"message":"backend error"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, f.listBody)
	case r.URL.Path == "/files/f1" && r.URL.Query().Get("alt") == "media":
		fmt.Fprint(w, f.content)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":404,"message":"not found"}}`)
	}
}

func newTestDrive(t *testing.T, fake *fakeDrive) *Drive {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	policy := retry.Policy{Attempts: 3, Timeout: 5 * time.Second, Initial: time.Millisecond, Max: time.Millisecond}
	d, err := NewDrive(context.Background(), DriveConfig{
		FolderID:     "folder'1",
		NameContains: ".zip",
		ChunkSize:    3,
		List:         policy,
		Download:     policy,
	}, option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("NewDrive() = %v", err)
	}
	return d
}

func TestDrive(t *testing.T) {
	fake := &fakeDrive{
		listBody:   `{"files":[{"id":"f1","name":"report.zip","createdTime":"2024-05-01T10:00:00Z","size":"11"}]}`,
		listStatus: []int{http.StatusServiceUnavailable},
		content:    "hello world",
	}
	d := newTestDrive(t, fake)
	rf, err := d.Newest(context.Background())
	if err != nil {
		t.Fatalf("Newest() = %v", err)
	}
	wantCreated := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if rf.ID != "f1" || rf.Name != "report.zip" || rf.Size != 11 || !rf.Created.Equal(wantCreated) {
		t.Fatalf("Newest() = %+v", rf)
	}
	if fake.listCalls != 2 {
		t.Fatalf("list called %d times, want 2", fake.listCalls)
	}
	if want := `'folder\'1' in parents and name contains '.zip'`; fake.lastQuery != want {
		t.Fatalf("query = %q, want %q", fake.lastQuery, want)
	}
	if fake.lastOrderBy != "createdTime desc" {
		t.Fatalf("orderBy = %q", fake.lastOrderBy)
	}
	got, err := d.Download(context.Background(), rf)
	if err != nil || string(got) != "hello world" {
		t.Fatalf("Download() = %q, %v", got, err)
	}
	if _, err := d.Download(context.Background(), &RemoteFile{ID: "f2", Name: "gone.zip"}); !errors.Is(err, ErrDownload) {
		t.Fatalf("Download() = %v, want %v", err, ErrDownload)
	}
}

func TestDriveEmptyFolder(t *testing.T) {
	d := newTestDrive(t, &fakeDrive{listBody: `{"files":[]}`})
	if _, err := d.Newest(context.Background()); !errors.Is(err, ErrNoArchive) {
		t.Fatalf("Newest() = %v, want %v", err, ErrNoArchive)
	}
}

func TestDriveListFailure(t *testing.T) {
	fake := &fakeDrive{listStatus: []int{503, 503, 503}}
	d := newTestDrive(t, fake)
	_, err := d.Newest(context.Background())
	if !errors.Is(err, ErrList) || !errors.Is(err, retry.ErrAttempts) {
		t.Fatalf("Newest() = %v, want %v", err, ErrList)
	}
	if fake.listCalls != 3 {
		t.Fatalf("list called %d times, want 3", fake.listCalls)
	}
}

func TestNewDrive(t *testing.T) { //nolint:paralleltest
	if _, err := NewDrive(context.Background(), DriveConfig{NameContains: ".zip"}); !errors.Is(err, ErrConfig) {
		t.Fatalf("NewDrive() = %v, want %v", err, ErrConfig)
	}
	saveNewService := driveNewService
	defer func() { driveNewService = saveNewService }()
	driveNewService = func(ctx context.Context, opts ...option.ClientOption) (*drive.Service, error) {
		return nil, testhelper.ErrForced
	}
	if _, err := NewDrive(context.Background(), DriveConfig{FolderID: "f", NameContains: ".zip"}); !errors.Is(err, testhelper.ErrForced) {
		t.Fatalf("NewDrive() = %v, want %v", err, testhelper.ErrForced)
	}
}
