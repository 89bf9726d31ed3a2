package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/spxops/zipsheet/internal/retry"
)

// DriveConfig defines Google Drive source options.
type DriveConfig struct {
	FolderID     string       // parent folder of the archives
	NameContains string       // substring the file name must contain (e.g., .zip)
	ChunkSize    int          // download chunk size in bytes
	List         retry.Policy // retry policy of the listing call
	Download     retry.Policy // retry policy of the download
}

// Drive is a Google Drive folder.
type Drive struct {
	conf    DriveConfig
	service *drive.Service
}

// Testing and debugging support.
var driveNewService = drive.NewService

// NewDrive returns a new Drive source.  Credentials and scopes are
// passed in opts.
func NewDrive(ctx context.Context, conf DriveConfig, opts ...option.ClientOption) (*Drive, error) {
	if conf.FolderID == "" || conf.NameContains == "" {
		return nil, fmt.Errorf("%w: empty folder or name filter", ErrConfig)
	}
	service, err := driveNewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &Drive{conf: conf, service: service}, nil
}

// Query returns the files.list query of the folder.
func (d *Drive) Query() string {
	return fmt.Sprintf("'%s' in parents and name contains '%s'", quote(d.conf.FolderID), quote(d.conf.NameContains))
}

// Newest implements Source.
func (d *Drive) Newest(ctx context.Context) (*RemoteFile, error) {
	var files []*drive.File
	verbose("listing drive folder: %v", d.Query())
	err := retry.Do(ctx, d.conf.List, "drive files.list", func(ctx context.Context) error {
		resp, err := d.service.Files.List().
			Q(d.Query()).
			Fields("files(id, name, createdTime, size)").
			OrderBy("createdTime desc").
			PageSize(1).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx).
			Do()
		if err != nil {
			return err //nolint:wrapcheck
		}
		files = resp.Files
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrList, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("drive folder %v: %w", d.conf.FolderID, ErrNoArchive)
	}
	f := files[0]
	rf := &RemoteFile{ID: f.Id, Name: f.Name, Size: f.Size}
	if f.CreatedTime != "" {
		if rf.Created, err = time.Parse(time.RFC3339, f.CreatedTime); err != nil {
			verbose("ignoring unparsable creation time %q of %v", f.CreatedTime, f.Name)
		}
	}
	return rf, nil
}

// Download implements Source.
func (d *Drive) Download(ctx context.Context, rf *RemoteFile) ([]byte, error) {
	var contents []byte
	err := retry.Do(ctx, d.conf.Download, "drive download "+rf.Name, func(ctx context.Context) error {
		resp, err := d.service.Files.Get(rf.ID).SupportsAllDrives(true).Context(ctx).Download()
		if err != nil {
			return err //nolint:wrapcheck
		}
		defer resp.Body.Close()
		contents, err = ReadChunks(resp.Body, d.conf.ChunkSize, rf.Size, LogProgress(rf.Name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %w", ErrDownload, rf.Name, err)
	}
	return contents, nil
}

// quote escapes a value for use inside a single-quoted query string.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
