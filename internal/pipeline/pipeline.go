// Package pipeline runs a single zipsheet job: locate the newest archive,
// download it, merge its CSV files, filter the merged table, publish it
// to a spreadsheet, and announce the result.
//
// Every dependency is passed in explicitly so that tests can substitute
// fakes for the storage folder, the spreadsheet, and the webhook.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spxops/zipsheet/api"
	"github.com/spxops/zipsheet/internal/archive"
	"github.com/spxops/zipsheet/internal/metrics"
	"github.com/spxops/zipsheet/internal/publish"
	"github.com/spxops/zipsheet/internal/source"
	"github.com/spxops/zipsheet/internal/table"
)

// Publisher writes a filtered table to its destination.
type Publisher interface {
	Publish(ctx context.Context, ft *table.FilteredTable) (*publish.Report, error)
}

// Notifier announces a successful publication.
type Notifier interface {
	Send(ctx context.Context, msg *api.SeaTalkMessage) (int, error)
}

// Config defines what a run does with the archive.
type Config struct {
	Archive   archive.Options // how CSV entries are selected and parsed
	Predicate table.Predicate // rows to keep
	Columns   []string        // projection, in output order
}

// Deps are the external systems of a run.
type Deps struct {
	Source    source.Source
	Publisher Publisher
	Notifier  Notifier         // nil disables notifications
	Metrics   *metrics.Metrics // nil disables metrics
}

// Result describes a completed run.
type Result struct {
	NoOp     bool               // no archive was found
	File     *source.RemoteFile // archive that was processed
	Stats    *archive.Stats     // what was found in the archive
	Kept     int                // rows accepted by the predicate
	Report   *publish.Report    // what was written
	Notified bool               // the webhook accepted the request
}

var (
	// Error kinds.  Errors returned by Run wrap exactly one of them.
	ErrConfig    = errors.New("configuration error")
	ErrTransport = errors.New("transport error")
	ErrData      = errors.New("data error")

	// Testing and debugging support.
	verbose = func(fmt string, args ...interface{}) {}
)

// Verbose provides a convenient way for the caller to enable verbose
// printing and control its format (mostly for debugging).
func Verbose(v func(string, ...interface{})) {
	verbose = v
}

// Run runs a single job.  Not finding any archive is a successful no-op.
// Notification failures are logged and do not fail the run.
func Run(ctx context.Context, conf Config, deps Deps) (result *Result, err error) {
	if deps.Source == nil || deps.Publisher == nil || conf.Predicate == nil || len(conf.Columns) == 0 {
		return nil, fmt.Errorf("%w: incomplete pipeline", ErrConfig)
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}
	start := time.Now()
	defer func() {
		m.Duration.Observe(time.Since(start).Seconds())
		m.Runs.WithLabelValues(Outcome(result, err)).Inc()
	}()

	rf, err := deps.Source.Newest(ctx)
	if errors.Is(err, source.ErrNoArchive) {
		log.Printf("nothing to do: %v\n", err)
		return &Result{NoOp: true}, nil
	}
	if err != nil {
		return nil, Classify(err)
	}
	m.ArchivesFound.Inc()
	log.Printf("processing %v (created %v)\n", rf.Name, rf.Created.Format(time.RFC3339))

	contents, err := deps.Source.Download(ctx, rf)
	if err != nil {
		return nil, Classify(err)
	}
	m.BytesDownloaded.Add(float64(len(contents)))
	verbose("downloaded %v: %d bytes", rf.Name, len(contents))

	rt, stats, err := archive.Merge(contents, conf.Archive)
	if err != nil {
		return nil, Classify(fmt.Errorf("%v: %w", rf.Name, err))
	}
	m.CSVFiles.Set(float64(len(stats.CSVFiles)))
	m.RawRows.Set(float64(stats.Rows))
	if len(stats.CSVFiles) == 0 {
		log.Printf("WARNING: %v has no CSV files (%d entries), publishing the header only\n", rf.Name, stats.Entries)
	}
	log.Printf("merged %d CSV files: %d rows\n", len(stats.CSVFiles), stats.Rows)

	ft, err := table.Filter(rt, conf.Predicate, conf.Columns)
	if err != nil {
		return nil, Classify(fmt.Errorf("%v: %w", rf.Name, err))
	}
	m.KeptRows.Set(float64(len(ft.Rows)))
	log.Printf("kept %d of %d rows (%v)\n", len(ft.Rows), stats.Rows, conf.Predicate)

	report, err := deps.Publisher.Publish(ctx, ft)
	if err != nil {
		return nil, Classify(err)
	}
	m.BatchesWritten.Add(float64(report.Batches))
	m.LastSuccess.SetToCurrentTime()
	log.Printf("published %d rows to %v in %d batches\n", report.Rows, report.Tab, report.Batches)

	result = &Result{File: rf, Stats: stats, Kept: len(ft.Rows), Report: report}
	result.Notified = notify(ctx, deps.Notifier, m, api.NewDashboardUpdated(rf.Name, len(ft.Rows)))
	return result, nil
}

// notify sends msg and reports whether it was delivered.  Failures are
// only logged.
func notify(ctx context.Context, n Notifier, m *metrics.Metrics, msg *api.SeaTalkMessage) bool {
	if n == nil {
		m.Notifications.WithLabelValues("skipped").Inc()
		return false
	}
	status, err := n.Send(ctx, msg)
	if err != nil {
		m.Notifications.WithLabelValues("failed").Inc()
		log.Printf("WARNING: failed to send notification: %v\n", err)
		return false
	}
	m.Notifications.WithLabelValues("sent").Inc()
	verbose("notification sent, status %d", status)
	return true
}

// Classify wraps err with its error kind.  Errors that already carry a
// kind are returned unchanged.
func Classify(err error) error {
	if err == nil || errors.Is(err, ErrConfig) || errors.Is(err, ErrTransport) || errors.Is(err, ErrData) {
		return err
	}
	for _, k := range kinds {
		for _, sentinel := range k.sentinels {
			if errors.Is(err, sentinel) {
				return fmt.Errorf("%w: %w", k.kind, err)
			}
		}
	}
	return err
}

// kinds maps package errors to error kinds, checked in order.
var kinds = []struct {
	kind      error
	sentinels []error
}{
	{ErrConfig, []error{source.ErrConfig, publish.ErrConfig, publish.ErrNoWorksheet}},
	{ErrData, []error{
		archive.ErrOpen, archive.ErrEntry, archive.ErrParse, archive.ErrTooMany, archive.ErrNoHeaders,
		table.ErrMissingColumn, table.ErrHeader,
	}},
	{ErrTransport, []error{
		source.ErrList, source.ErrDownload,
		publish.ErrOpen, publish.ErrHandshake, publish.ErrClear, publish.ErrHeader, publish.ErrBatch,
		context.DeadlineExceeded,
	}},
}

// ExitCode returns the process exit code for the error returned by Run.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrConfig):
		return 2
	case errors.Is(err, ErrTransport):
		return 3
	case errors.Is(err, ErrData):
		return 4
	}
	return 1
}

// Outcome returns the metrics outcome label of a run.
func Outcome(result *Result, err error) string {
	switch {
	case err == nil && result != nil && result.NoOp:
		return metrics.OutcomeNoArchive
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrConfig):
		return metrics.OutcomeConfig
	case errors.Is(err, ErrTransport):
		return metrics.OutcomeTransport
	case errors.Is(err, ErrData):
		return metrics.OutcomeData
	}
	return metrics.OutcomeOther
}
