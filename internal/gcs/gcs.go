// Package gcs implements an archive source backed by a Google Cloud
// Storage (GCS) bucket prefix.
//
// The client uses default application credentials unless options are
// passed to NewSource.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/googleapis/google-cloud-go-testing/storage/stiface"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/spxops/zipsheet/internal/retry"
	"github.com/spxops/zipsheet/internal/source"
)

// Config defines GCS source options.
type Config struct {
	Folder       string       // <bucket>/<prefix>
	NameContains string       // substring the object name must contain
	ChunkSize    int          // download chunk size in bytes
	List         retry.Policy // retry policy of the listing
	Download     retry.Policy // retry policy of the download
}

// Source is a GCS bucket prefix.
type Source struct {
	conf         Config
	bucket       string
	prefix       string
	client       stiface.Client
	bucketHandle stiface.BucketHandle
}

var (
	errCreateClient = errors.New("failed to create GCS client")

	// Testing and debugging support.
	storageNewClient = storage.NewClient
	verbose          = func(fmt string, args ...interface{}) {}
)

// Verbose provides a convenient way for the caller to enable verbose
// printing and control its format (mostly for debugging).
func Verbose(v func(string, ...interface{})) {
	verbose = v
}

// SplitFolder splits <bucket>/<prefix> into its bucket and prefix.
func SplitFolder(folder string) (string, string, error) {
	bucket, prefix, _ := strings.Cut(strings.TrimPrefix(folder, "gs://"), "/")
	if bucket == "" {
		return "", "", fmt.Errorf("%w: invalid GCS folder %q", source.ErrConfig, folder)
	}
	return bucket, prefix, nil
}

// NewSource returns a new GCS source for the configured folder.
func NewSource(ctx context.Context, conf Config, opts ...option.ClientOption) (*Source, error) {
	bucket, prefix, err := SplitFolder(conf.Folder)
	if err != nil {
		return nil, err
	}
	if conf.NameContains == "" {
		return nil, fmt.Errorf("%w: empty name filter", source.ErrConfig)
	}
	verbose("creating new storage client for %v", bucket)
	client, err := storageNewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCreateClient, err)
	}
	adaptClient := stiface.AdaptClient(client)
	return newSource(conf, bucket, prefix, adaptClient, adaptClient.Bucket(bucket)), nil
}

func newSource(conf Config, bucket, prefix string, client stiface.Client, bucketHandle stiface.BucketHandle) *Source {
	return &Source{
		conf:         conf,
		bucket:       bucket,
		prefix:       prefix,
		client:       client,
		bucketHandle: bucketHandle,
	}
}

// Newest implements source.Source.  Objects are listed in lexicographic
// order, so among objects created at the same time the first one wins.
func (s *Source) Newest(ctx context.Context) (*source.RemoteFile, error) {
	verbose("listing 'gs://%v/%v'", s.bucket, s.prefix)
	var newest *storage.ObjectAttrs
	err := retry.Do(ctx, s.conf.List, "gcs list", func(ctx context.Context) error {
		newest = nil
		it := s.bucketHandle.Objects(ctx, &storage.Query{Prefix: s.prefix})
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			if err != nil {
				return err //nolint:wrapcheck
			}
			name := strings.TrimPrefix(attrs.Name, s.prefix)
			if strings.HasSuffix(attrs.Name, "/") || !strings.Contains(name, s.conf.NameContains) {
				continue
			}
			if newest == nil || attrs.Created.After(newest.Created) {
				newest = attrs
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", source.ErrList, err)
	}
	if newest == nil {
		return nil, fmt.Errorf("'gs://%v/%v': %w", s.bucket, s.prefix, source.ErrNoArchive)
	}
	return &source.RemoteFile{
		ID:      newest.Name,
		Name:    newest.Name[strings.LastIndex(newest.Name, "/")+1:],
		Created: newest.Created,
		Size:    newest.Size,
	}, nil
}

// Download implements source.Source.
func (s *Source) Download(ctx context.Context, rf *source.RemoteFile) ([]byte, error) {
	verbose("downloading 'gs://%v/%v'", s.bucket, rf.ID)
	var contents []byte
	err := retry.Do(ctx, s.conf.Download, "gcs download "+rf.Name, func(ctx context.Context) error {
		reader, err := s.bucketHandle.Object(rf.ID).NewReader(ctx)
		if err != nil {
			return err //nolint:wrapcheck
		}
		defer reader.Close()
		contents, err = source.ReadChunks(reader, s.conf.ChunkSize, rf.Size, source.LogProgress(rf.Name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: 'gs://%v/%v': %w", source.ErrDownload, s.bucket, rf.ID, err)
	}
	verbose("'gs://%v/%v' %v bytes", s.bucket, rf.ID, len(contents))
	return contents, nil
}
