// Package report writes the structured results of a run for external
// renderers and prints a short summary for humans.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/entrhq/uiharness/pkg/config"
	"github.com/entrhq/uiharness/pkg/ledger"
	"github.com/entrhq/uiharness/pkg/metrics"
	"github.com/entrhq/uiharness/pkg/model"
)

// Results is the content of results.json.
type Results struct {
	RunID      string        `json:"runId"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Duration   time.Duration `json:"duration"`

	Config  ConfigSummary `json:"config"`
	Summary Counts        `json:"summary"`

	// Outcomes holds every attempt in ledger order.
	Outcomes []model.TestOutcome `json:"outcomes"`
}

// ConfigSummary is the part of the run configuration worth reporting.
type ConfigSummary struct {
	BaseURL      string          `json:"baseUrl"`
	Browser      config.Browser  `json:"browser"`
	Headless     bool            `json:"headless"`
	Viewport     config.Viewport `json:"viewport"`
	ArtifactsDir string          `json:"artifactsDir"`
	Screenshot   config.Mode     `json:"screenshot"`
	Trace        config.Mode     `json:"trace"`
	Video        config.Mode     `json:"video"`
	Workers      int             `json:"workers"`
	Retries      int             `json:"retries"`
	Filter       string          `json:"filter"`
}

// Counts are the final per-test results. Retried tests count once.
type Counts struct {
	Total    int      `json:"total"`
	Passed   int      `json:"passed"`
	Failed   int      `json:"failed"`
	Errored  int      `json:"errored"`
	Skipped  int      `json:"skipped"`
	Attempts int      `json:"attempts"`
	Flaky    []string `json:"flaky,omitempty"`
}

// Build assembles the results of a finished run.
func Build(runID string, cfg config.RunConfig, outcomes []model.TestOutcome, started, finished time.Time) *Results {
	snap := metrics.Summarize(outcomes, metrics.Meta{RunID: runID, StartedAt: started, FinishedAt: finished})

	return &Results{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   snap.RunDuration,
		Config: ConfigSummary{
			BaseURL:      cfg.BaseURL,
			Browser:      cfg.Browser,
			Headless:     cfg.Headless,
			Viewport:     cfg.Viewport,
			ArtifactsDir: cfg.ArtifactsDir,
			Screenshot:   cfg.Screenshot,
			Trace:        cfg.Trace,
			Video:        cfg.Video,
			Workers:      cfg.Workers,
			Retries:      cfg.Retries,
			Filter:       cfg.Filter,
		},
		Summary: Counts{
			Total:    snap.Total,
			Passed:   snap.Counts[model.ResultPassed],
			Failed:   snap.Counts[model.ResultFailed],
			Errored:  snap.Counts[model.ResultError],
			Skipped:  snap.Counts[model.ResultSkipped],
			Attempts: snap.Attempts,
			Flaky:    ledger.Flaky(outcomes),
		},
		Outcomes: append([]model.TestOutcome(nil), outcomes...),
	}
}

// Failed reports whether any test's final result is failed or error.
func (r *Results) Failed() bool {
	return r.Summary.Failed > 0 || r.Summary.Errored > 0
}

// WriteJSON writes results to path atomically, creating parent
// directories.
func WriteJSON(path string, results *Results) error {
	if results == nil {
		return fmt.Errorf("results are required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename results file: %w", err)
	}
	return nil
}

// ReadJSON loads a results file written by WriteJSON.
func ReadJSON(path string) (*Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	var results Results
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	return &results, nil
}
