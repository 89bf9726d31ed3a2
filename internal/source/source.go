// Package source locates the newest archive in a storage folder and
// downloads it.
//
// A Source lists a single folder and picks the most recently created
// file whose name contains a configured substring.  When several files
// share the newest creation time, the one returned depends on the
// backend's ordering and should be treated as arbitrary.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// RemoteFile describes a file in a storage folder.
type RemoteFile struct {
	ID      string    // backend specific identifier
	Name    string    // display name
	Created time.Time // creation time
	Size    int64     // size in bytes if known, else 0
}

// Source is a storage folder from which archives are fetched.
type Source interface {
	// Newest returns the newest matching file or an error wrapping
	// ErrNoArchive if there is none.
	Newest(ctx context.Context) (*RemoteFile, error)
	// Download returns the complete contents of the file.
	Download(ctx context.Context, f *RemoteFile) ([]byte, error)
}

var (
	DefaultChunkSize = 100 * 1024 * 1024

	ErrNoArchive = errors.New("no matching archive")
	ErrList      = errors.New("failed to list folder")
	ErrDownload  = errors.New("failed to download file")
	ErrConfig    = errors.New("invalid source configuration")

	// Testing and debugging support.
	verbose = func(fmt string, args ...interface{}) {}
)

// Verbose provides a convenient way for the caller to enable verbose
// printing and control its format (mostly for debugging).
func Verbose(v func(string, ...interface{})) {
	verbose = v
}

// Progress is called after each chunk with the bytes read so far and
// the expected total (0 if unknown).
type Progress func(read, total int64)

// ReadChunks reads r to completion in chunks of at most chunkSize bytes
// and returns everything read.  The whole content is buffered in memory.
func ReadChunks(r io.Reader, chunkSize int, total int64, progress Progress) ([]byte, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	buf := &bytes.Buffer{}
	if total > 0 {
		buf.Grow(int(total))
	}
	for done := false; !done; {
		n, err := io.CopyN(buf, r, int64(chunkSize))
		switch {
		case errors.Is(err, io.EOF):
			done = true
		case err != nil:
			return nil, fmt.Errorf("%w: after %d bytes: %w", ErrDownload, buf.Len(), err)
		}
		if n > 0 && progress != nil {
			progress(int64(buf.Len()), total)
		}
	}
	return buf.Bytes(), nil
}

// LogProgress returns a Progress that reports the download of name
// through the verbose function.
func LogProgress(name string) Progress {
	return func(read, total int64) {
		if total > 0 {
			verbose("%v: downloaded %d of %d bytes (%d%%)", name, read, total, read*100/total)
			return
		}
		verbose("%v: downloaded %d bytes", name, read)
	}
}
