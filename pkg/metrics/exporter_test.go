package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/uiharness/pkg/ledger"
	"github.com/entrhq/uiharness/pkg/logging"
	"github.com/entrhq/uiharness/pkg/model"
)

func sampleLedger() *ledger.Ledger {
	l := ledger.New()
	l.Record(model.TestOutcome{TestID: "todo/add", Result: model.ResultPassed, Duration: 2 * time.Second})
	l.Record(model.TestOutcome{TestID: "todo/edit", Result: model.ResultFailed, Duration: 3 * time.Second})
	l.Record(model.TestOutcome{TestID: "todo/delete", Result: model.ResultPassed, Duration: time.Second})
	return l
}

func lines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestSummarize(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	snap := Summarize(sampleLedger().Outcomes(), Meta{
		RunID:      "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(10 * time.Second),
	})

	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, 2, snap.Counts[model.ResultPassed])
	assert.Equal(t, 1, snap.Counts[model.ResultFailed])
	assert.Equal(t, 0, snap.Counts[model.ResultSkipped])
	assert.Equal(t, 0, snap.Counts[model.ResultError])
	assert.Equal(t, 6*time.Second, snap.DurationSum)
	assert.Equal(t, 3, snap.DurationCount)
	assert.Equal(t, 10*time.Second, snap.RunDuration)
	assert.Empty(t, snap.Workers)
}

func TestSummarize_RetriesCollapse(t *testing.T) {
	snap := Summarize([]model.TestOutcome{
		{TestID: "a", Result: model.ResultFailed, Duration: time.Second, Worker: "gw0"},
		{TestID: "a", Result: model.ResultPassed, Duration: time.Second, Worker: "gw0"},
		{TestID: "b", Result: model.ResultSkipped, Worker: "gw1"},
	}, Meta{})

	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 3, snap.Attempts)
	assert.Equal(t, 1, snap.Flaky)
	assert.Equal(t, 1, snap.Counts[model.ResultPassed])
	assert.Equal(t, 0, snap.Counts[model.ResultFailed])
	assert.Equal(t, 1, snap.Counts[model.ResultSkipped])
	assert.Equal(t, map[string]int{"gw0": 2, "gw1": 1}, snap.Workers)
}

func TestExport_WritesTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "qa.prom")
	exporter := NewExporter(logging.Discard())

	err := exporter.Export(sampleLedger(), path, Meta{FinishedAt: time.Now()})
	require.NoError(t, err)

	got := lines(t, path)
	assert.Contains(t, got, "qa_tests_passed 2")
	assert.Contains(t, got, "qa_tests_failed 1")
	assert.Contains(t, got, "qa_tests_total 3")
	assert.Contains(t, got, "qa_tests_skipped 0")
	assert.Contains(t, got, "qa_tests_errored 0")
	assert.Contains(t, got, "qa_test_duration_seconds_sum 6")
	assert.Contains(t, got, "qa_test_duration_seconds_count 3")
	assert.Contains(t, got, "# TYPE qa_tests_total gauge")

	for _, line := range got {
		assert.NotContains(t, line, "qa_worker_tests_total")
	}
	assert.NoFileExists(t, path+".tmp")
}

func TestExport_Deterministic(t *testing.T) {
	dir := t.TempDir()
	meta := Meta{RunID: "r", FinishedAt: time.Unix(1700000000, 0)}
	exporter := NewExporter(logging.Discard())

	first := filepath.Join(dir, "a.prom")
	second := filepath.Join(dir, "b.prom")
	require.NoError(t, exporter.Export(sampleLedger(), first, meta))
	require.NoError(t, exporter.Export(sampleLedger(), second, meta))

	assert.Equal(t, lines(t, first), lines(t, second))
}

func TestExport_WorkerLabels(t *testing.T) {
	l := ledger.New()
	l.Record(model.TestOutcome{TestID: "a", Result: model.ResultPassed, Worker: "gw1"})
	l.Record(model.TestOutcome{TestID: "b", Result: model.ResultPassed, Worker: "gw0"})
	l.Record(model.TestOutcome{TestID: "c", Result: model.ResultPassed, Worker: "gw1"})

	path := filepath.Join(t.TempDir(), "qa.prom")
	require.NoError(t, NewExporter(logging.Discard()).Export(l, path, Meta{}))

	got := lines(t, path)
	assert.Contains(t, got, `qa_worker_tests_total{worker="gw0"} 1`)
	assert.Contains(t, got, `qa_worker_tests_total{worker="gw1"} 2`)
}

func TestExport_NoPathIsNoop(t *testing.T) {
	assert.NoError(t, NewExporter(logging.Discard()).Export(sampleLedger(), "", Meta{}))
}

func TestExport_UnwritableIsWriteError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))

	err := NewExporter(logging.Discard()).Export(sampleLedger(), filepath.Join(blocker, "qa.prom"), Meta{})
	require.Error(t, err)

	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Contains(t, writeErr.Path, "qa.prom")
}
