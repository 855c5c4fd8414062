// Package metrics turns a run ledger into a Prometheus textfile snapshot.
//
// The snapshot is written once at run end for the node-exporter textfile
// collector. Each export builds a fresh registry, so repeated runs in one
// process never leak state into each other.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/entrhq/uiharness/pkg/ledger"
	"github.com/entrhq/uiharness/pkg/logging"
	"github.com/entrhq/uiharness/pkg/model"
)

// DurationBuckets are the histogram buckets for per-test duration, in seconds.
var DurationBuckets = []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120}

// Snapshot is the aggregate view of one run.
type Snapshot struct {
	RunID     string
	Timestamp time.Time
	// RunDuration is the wall-clock duration of the whole run.
	RunDuration time.Duration

	// Total counts distinct tests; Counts holds their final results.
	Total  int
	Counts map[model.Result]int
	// Attempts counts every ledger entry, retries included.
	Attempts int
	Flaky    int

	// Durations holds every attempt's duration, in ledger order.
	Durations     []time.Duration
	DurationSum   time.Duration
	DurationCount int

	// Workers maps worker tags to the number of attempts they ran.
	Workers map[string]int
}

// Meta carries run-level facts the ledger does not hold.
type Meta struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Summarize aggregates outcomes into a Snapshot.
func Summarize(outcomes []model.TestOutcome, meta Meta) Snapshot {
	s := Snapshot{
		RunID:     meta.RunID,
		Timestamp: meta.FinishedAt,
		Counts:    make(map[model.Result]int, len(model.Results)),
		Attempts:  len(outcomes),
		Flaky:     len(ledger.Flaky(outcomes)),
		Workers:   make(map[string]int),
	}
	if !meta.StartedAt.IsZero() && !meta.FinishedAt.IsZero() {
		s.RunDuration = meta.FinishedAt.Sub(meta.StartedAt)
	}
	for _, r := range model.Results {
		s.Counts[r] = 0
	}

	final := ledger.Final(outcomes)
	s.Total = len(final)
	for _, o := range final {
		s.Counts[o.Result]++
	}

	for _, o := range outcomes {
		s.Durations = append(s.Durations, o.Duration)
		s.DurationSum += o.Duration
		s.DurationCount++
		if o.Worker != "" {
			s.Workers[o.Worker]++
		}
	}
	return s
}

// WriteError reports a failed metrics export. It is never fatal to a run.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write metrics to %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Exporter writes the textfile snapshot.
type Exporter struct {
	log *logging.Logger
}

// NewExporter creates an exporter that reports failures to log.
func NewExporter(log *logging.Logger) *Exporter {
	return &Exporter{log: log}
}

// Export summarizes the ledger and writes it to path. An empty path is a
// no-op. Failures are logged and returned as *WriteError for inspection;
// callers must not fail the run because of them.
func (e *Exporter) Export(l *ledger.Ledger, path string, meta Meta) error {
	if path == "" {
		return nil
	}

	snap := Summarize(l.Outcomes(), meta)
	if err := WriteTextfile(path, snap); err != nil {
		e.log.WithFields(logrus.Fields{
			"event": "metrics_write_failed",
			"path":  path,
		}).WithError(err).Error("metrics_write_failed")
		return err
	}

	e.log.WithFields(logrus.Fields{
		"event": "metrics_written",
		"path":  path,
		"total": snap.Total,
	}).Info("metrics_written")
	return nil
}

// WriteTextfile renders the snapshot in the Prometheus text format and
// writes it atomically to path.
func WriteTextfile(path string, snap Snapshot) error {
	reg, err := Registry(snap)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	// WriteToTextfile writes a temp file next to path and renames it, so a
	// scraper never sees a partial file.
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// Registry builds a fresh registry holding the snapshot.
func Registry(snap Snapshot) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()

	gauge := func(name, help string, value float64) error {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		g.Set(value)
		return reg.Register(g)
	}

	gauges := []struct {
		name  string
		help  string
		value float64
	}{
		{"qa_tests_total", "Total tests executed", float64(snap.Total)},
		{"qa_tests_passed", "Passed tests", float64(snap.Counts[model.ResultPassed])},
		{"qa_tests_failed", "Failed tests", float64(snap.Counts[model.ResultFailed])},
		{"qa_tests_errored", "Tests that errored outside their body", float64(snap.Counts[model.ResultError])},
		{"qa_tests_skipped", "Skipped tests", float64(snap.Counts[model.ResultSkipped])},
		{"qa_tests_flaky", "Tests that passed only after a retry", float64(snap.Flaky)},
		{"qa_test_attempts_total", "Test attempts including retries", float64(snap.Attempts)},
		{"qa_test_session_duration_seconds", "Wall-clock duration of the run in seconds", snap.RunDuration.Seconds()},
		{"qa_test_run_timestamp_seconds", "Unix time the run finished", unixSeconds(snap.Timestamp)},
	}
	for _, g := range gauges {
		if err := gauge(g.name, g.help, g.value); err != nil {
			return nil, err
		}
	}

	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qa_test_duration_seconds",
		Help:    "Per-attempt test duration in seconds",
		Buckets: DurationBuckets,
	})
	for _, d := range snap.Durations {
		hist.Observe(d.Seconds())
	}
	if err := reg.Register(hist); err != nil {
		return nil, err
	}

	if len(snap.Workers) > 0 {
		perWorker := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "qa_worker_tests_total",
			Help: "Test attempts executed per worker",
		}, []string{"worker"})
		workers := make([]string, 0, len(snap.Workers))
		for w := range snap.Workers {
			workers = append(workers, w)
		}
		sort.Strings(workers)
		for _, w := range workers {
			perWorker.WithLabelValues(w).Set(float64(snap.Workers[w]))
		}
		if err := reg.Register(perWorker); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}
