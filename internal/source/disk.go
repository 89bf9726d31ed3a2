package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Disk is a local directory used as a source, for local runs and
// end-to-end tests.  Files have no creation time on most filesystems so
// the modification time is used instead.
type Disk struct {
	dir          string
	nameContains string
	chunkSize    int
}

// NewDisk returns a new Disk source for the given directory.
func NewDisk(dir, nameContains string, chunkSize int) (*Disk, error) {
	if dir == "" || nameContains == "" {
		return nil, fmt.Errorf("%w: empty directory or name filter", ErrConfig)
	}
	return &Disk{dir: filepath.Clean(dir), nameContains: nameContains, chunkSize: chunkSize}, nil
}

// Newest implements Source.
func (d *Disk) Newest(ctx context.Context) (*RemoteFile, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrList, err)
	}
	var newest *RemoteFile
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.Contains(e.Name(), d.nameContains) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrList, err)
		}
		// ReadDir returns entries sorted by name so ties go to the
		// lexicographically first file.
		if newest == nil || fi.ModTime().After(newest.Created) {
			newest = &RemoteFile{
				ID:      filepath.Join(d.dir, e.Name()),
				Name:    e.Name(),
				Created: fi.ModTime(),
				Size:    fi.Size(),
			}
		}
	}
	if newest == nil {
		return nil, fmt.Errorf("directory %v: %w", d.dir, ErrNoArchive)
	}
	return newest, nil
}

// Download implements Source.
func (d *Disk) Download(ctx context.Context, rf *RemoteFile) ([]byte, error) {
	f, err := os.Open(rf.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer f.Close()
	return ReadChunks(f, d.chunkSize, rf.Size, LogProgress(rf.Name))
}
