// Package model defines the data types shared across the harness.
package model

import "time"

// Result is the conclusive outcome of one test execution.
type Result string

const (
	ResultPassed  Result = "passed"
	ResultFailed  Result = "failed"
	ResultError   Result = "error"
	ResultSkipped Result = "skipped"
)

// Results lists every result kind in reporting order.
var Results = []Result{ResultPassed, ResultFailed, ResultError, ResultSkipped}

// Unsuccessful reports whether the result counts as a failure for
// on-failure retention and for the run's exit status.
func (r Result) Unsuccessful() bool {
	return r == ResultFailed || r == ResultError
}

// ArtifactKind identifies a diagnostic artifact.
type ArtifactKind string

const (
	KindScreenshot ArtifactKind = "screenshot"
	KindTrace      ArtifactKind = "trace"
	KindConsoleLog ArtifactKind = "console-log"
	KindVideo      ArtifactKind = "video"
)

// ArtifactKinds lists every kind in the order artifacts are reported.
var ArtifactKinds = []ArtifactKind{KindScreenshot, KindTrace, KindConsoleLog, KindVideo}

// ArtifactRecord is one captured artifact. Retained is decided once by the
// retention policy; a record that is not retained has no file on disk.
type ArtifactRecord struct {
	Kind     ArtifactKind `json:"kind"`
	Path     string       `json:"path"`
	Retained bool         `json:"retained"`
}

// TestOutcome is one ledger entry.
type TestOutcome struct {
	TestID    string           `json:"testId"`
	Result    Result           `json:"result"`
	Duration  time.Duration    `json:"duration"`
	StartedAt time.Time        `json:"startedAt"`
	Artifacts []ArtifactRecord `json:"artifacts,omitempty"`
	Worker    string           `json:"worker,omitempty"`
	Attempt   int              `json:"attempt"`
	Reason    string           `json:"reason,omitempty"`
	TimedOut  bool             `json:"timedOut,omitempty"`
}
