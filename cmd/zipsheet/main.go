// Package main implements zipsheet.
//
// zipsheet is a one-shot batch job meant to be run by a scheduler.  It
// finds the newest archive in a storage folder, merges the CSV files
// inside it, keeps the rows accepted by the predicate, replaces the
// contents of a spreadsheet tab with them, and posts a message to a
// SeaTalk group.
//
// We call fatal() instead of log.Fatal() so that the exit code reflects
// the kind of error and so that tests can recover from it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/spxops/zipsheet/internal/archive"
	"github.com/spxops/zipsheet/internal/gcs"
	"github.com/spxops/zipsheet/internal/metrics"
	"github.com/spxops/zipsheet/internal/pipeline"
	"github.com/spxops/zipsheet/internal/publish"
	"github.com/spxops/zipsheet/internal/seatalk"
	sheetsdest "github.com/spxops/zipsheet/internal/sheets"
	"github.com/spxops/zipsheet/internal/source"
	"github.com/spxops/zipsheet/internal/workbook"
)

// defaultDataTab is the data tab of new local workbooks when -data-tab
// is not specified.
const defaultDataTab = "Data"

var (
	fatal = func(err error) {
		log.Print(err)
		os.Exit(pipeline.ExitCode(err))
	}

	errUnknownSource = errors.New("unknown source")
)

func main() {
	log.SetFlags(log.Ltime)
	if err := parseAndValidateCLI(); err != nil {
		fatal(fmt.Errorf("%w: %w", pipeline.ErrConfig, err))
		return
	}

	ctx := context.Background()
	m := metrics.New()
	deps, cleanup, err := newDeps(ctx, m)
	if err != nil {
		fatal(err)
		return
	}
	result, err := pipeline.Run(ctx, pipelineConfig(), deps)
	cleanup()
	pushMetrics(m)
	if err != nil {
		fatal(err)
		return
	}
	summarize(result)
}

// pipelineConfig returns the pipeline configuration specified by the
// command line flags.
func pipelineConfig() pipeline.Config {
	return pipeline.Config{
		Archive: archive.Options{
			Suffix:        ".csv",
			Comma:         []rune(delimiter)[0],
			StrictHeaders: strictHeaders,
		},
		Predicate: predicate,
		Columns:   columns,
	}
}

// newDeps creates the clients of the source folder, the destination
// spreadsheet, and the webhook.  The returned function releases them.
func newDeps(ctx context.Context, m *metrics.Metrics) (pipeline.Deps, func(), error) {
	nop := func() {}
	opts := clientOptions()
	src, err := newSource(ctx, opts)
	if err != nil {
		return pipeline.Deps{}, nop, configError(err)
	}
	sheet, cleanup, err := newSpreadsheet(ctx, opts)
	if err != nil {
		return pipeline.Deps{}, nop, configError(err)
	}
	pub, err := publish.New(sheet, publish.Config{
		DataTab:       dataTab,
		HandshakeTab:  handshakeTab,
		HandshakeCell: handshakeCell,
		BatchRows:     batchRows,
	})
	if err != nil {
		cleanup()
		return pipeline.Deps{}, nop, configError(err)
	}
	notifier, err := seatalk.New(webhook, notifyTimeout, nil)
	if err != nil {
		cleanup()
		return pipeline.Deps{}, nop, configError(err)
	}
	return pipeline.Deps{Source: src, Publisher: pub, Notifier: notifier, Metrics: m}, cleanup, nil
}

// clientOptions returns the options of the Google API clients.  Without
// explicit credentials the clients use application default credentials.
func clientOptions() []option.ClientOption {
	key := serviceAccountKey()
	if key == "" {
		return nil
	}
	return []option.ClientOption{
		option.WithCredentialsJSON([]byte(key)),
		option.WithScopes(drive.DriveScope, sheets.SpreadsheetsScope, storage.ScopeReadOnly),
	}
}

// newSource returns the source selected by the -source flag.
func newSource(ctx context.Context, opts []option.ClientOption) (source.Source, error) { //nolint:ireturn
	switch sourceKind {
	case "drive":
		return source.NewDrive(ctx, source.DriveConfig{
			FolderID:     folderID,
			NameContains: nameContains,
			ChunkSize:    chunkSize,
			List:         policy(uploadTimeout),
			Download:     policy(downloadTimeout),
		}, opts...)
	case "gcs":
		return gcs.NewSource(ctx, gcs.Config{
			Folder:       folderID,
			NameContains: nameContains,
			ChunkSize:    chunkSize,
			List:         policy(uploadTimeout),
			Download:     policy(downloadTimeout),
		}, opts...)
	case "disk":
		return source.NewDisk(folderID, nameContains, chunkSize)
	}
	return nil, fmt.Errorf("%q: %w", sourceKind, errUnknownSource)
}

// newSpreadsheet returns the local workbook if one was specified and the
// Google Sheets spreadsheet otherwise.
func newSpreadsheet(ctx context.Context, opts []option.ClientOption) (publish.Spreadsheet, func(), error) { //nolint:ireturn
	if localWorkbook == "" {
		s, err := sheetsdest.New(ctx, sheetsdest.Config{
			SpreadsheetID:    sheetID,
			ValueInputOption: valueInputOption,
			Policy:           policy(uploadTimeout),
		}, opts...)
		return s, func() {}, err //nolint:wrapcheck
	}
	tab := dataTab
	if tab == "" {
		tab = defaultDataTab
	}
	wb, err := workbook.Open(localWorkbook, tab, handshakeTab)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck
	}
	if wb.Created() {
		log.Printf("created local workbook %v\n", localWorkbook)
	}
	return wb, func() {
		if err := wb.Close(); err != nil {
			log.Printf("WARNING: failed to close %v: %v\n", localWorkbook, err)
		}
	}, nil
}

// configError classifies err, treating errors of unknown kind as
// configuration errors since they happened before any remote call.
func configError(err error) error {
	err = pipeline.Classify(err)
	if pipeline.ExitCode(err) == 1 {
		return fmt.Errorf("%w: %w", pipeline.ErrConfig, err)
	}
	return err
}

// pushMetrics pushes the metrics of the run if a Pushgateway was
// specified.  Failures are only logged.
func pushMetrics(m *metrics.Metrics) {
	if pushgatewayURL == "" {
		return
	}
	if err := m.Push(pushgatewayURL, jobName); err != nil {
		log.Printf("WARNING: %v\n", err)
		return
	}
	log.Printf("pushed metrics to %v\n", pushgatewayURL)
}

// summarize logs the outcome of a successful run.
func summarize(result *pipeline.Result) {
	if result.NoOp {
		log.Printf("no archive matching %q in %v\n", nameContains, folderID)
		return
	}
	notified := "not notified"
	if result.Notified {
		notified = "notified"
	}
	log.Printf("done: %v: %d of %d rows published, %v\n", result.File.Name, result.Kept, result.Stats.Rows, notified)
}
