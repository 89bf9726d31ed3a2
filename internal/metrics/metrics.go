// Package metrics defines the Prometheus metrics of a zipsheet run.
//
// A run is a short lived batch job, so metrics live in a private
// registry and are pushed to a Pushgateway when the run ends instead of
// being scraped.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Run outcomes used as the value of the "outcome" label.
const (
	OutcomeSuccess   = "success"
	OutcomeNoArchive = "no_archive"
	OutcomeConfig    = "config_error"
	OutcomeTransport = "transport_error"
	OutcomeData      = "data_error"
	OutcomeOther     = "error"
)

// Metrics holds the metrics of a run.
type Metrics struct {
	Registry *prometheus.Registry

	ArchivesFound   prometheus.Counter
	BytesDownloaded prometheus.Counter
	CSVFiles        prometheus.Gauge
	RawRows         prometheus.Gauge
	KeptRows        prometheus.Gauge
	BatchesWritten  prometheus.Counter
	Notifications   *prometheus.CounterVec
	Runs            *prometheus.CounterVec
	LastSuccess     prometheus.Gauge
	Duration        prometheus.Histogram
}

var ErrPush = errors.New("failed to push metrics")

// New returns a new set of metrics registered in a new registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		ArchivesFound: f.NewCounter(prometheus.CounterOpts{
			Name: "zipsheet_archives_found_total",
			Help: "Number of archives located in the source folder.",
		}),
		BytesDownloaded: f.NewCounter(prometheus.CounterOpts{
			Name: "zipsheet_downloaded_bytes_total",
			Help: "Number of archive bytes downloaded.",
		}),
		CSVFiles: f.NewGauge(prometheus.GaugeOpts{
			Name: "zipsheet_csv_files",
			Help: "Number of CSV files merged from the archive.",
		}),
		RawRows: f.NewGauge(prometheus.GaugeOpts{
			Name: "zipsheet_raw_rows",
			Help: "Number of data rows merged from all CSV files.",
		}),
		KeptRows: f.NewGauge(prometheus.GaugeOpts{
			Name: "zipsheet_kept_rows",
			Help: "Number of rows accepted by the predicate.",
		}),
		BatchesWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "zipsheet_batches_written_total",
			Help: "Number of row batches written to the spreadsheet.",
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zipsheet_notifications_total",
			Help: "Number of webhook notifications by result.",
		}, []string{"result"}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zipsheet_runs_total",
			Help: "Number of runs by outcome.",
		}, []string{"outcome"}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "zipsheet_last_success_timestamp_seconds",
			Help: "Unix time of the last successful publication.",
		}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "zipsheet_run_duration_seconds",
			Help:    "Duration of runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

// Push pushes all metrics to the Pushgateway at url under the given job
// name, replacing the metrics previously pushed for the job.
func (m *Metrics) Push(url, job string) error {
	if err := push.New(url, job).Gatherer(m.Registry).Push(); err != nil {
		return fmt.Errorf("%w: %v", ErrPush, err)
	}
	return nil
}
