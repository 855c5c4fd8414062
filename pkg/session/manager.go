// Package session owns the lifecycle of one test's browser session.
//
// Acquire opens an isolated session and starts every recording the
// configured modes may need. Release is the single teardown path: it
// captures end-of-test artifacts, closes the session and applies the
// retention policy. Release runs exactly once per TestContext, whatever
// way the test body exited.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/entrhq/uiharness/pkg/artifact"
	"github.com/entrhq/uiharness/pkg/config"
	"github.com/entrhq/uiharness/pkg/driver"
	"github.com/entrhq/uiharness/pkg/logging"
	"github.com/entrhq/uiharness/pkg/model"
)

// TestContext is the per-test state created by Acquire. It is owned by one
// test and never shared.
type TestContext struct {
	ID        string
	Slug      string
	Dir       string
	StartedAt time.Time
	Worker    string
	Attempt   int

	// Handle is the live session, exclusive to this test.
	Handle driver.Handle

	mu        sync.Mutex
	artifacts []model.ArtifactRecord

	releaseOnce sync.Once
	released    []model.ArtifactRecord
}

func (tc *TestContext) add(kind model.ArtifactKind, path string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.artifacts = append(tc.artifacts, model.ArtifactRecord{Kind: kind, Path: path})
}

// Artifacts returns the artifacts captured so far.
func (tc *TestContext) Artifacts() []model.ArtifactRecord {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]model.ArtifactRecord(nil), tc.artifacts...)
}

// Manager acquires and releases test sessions.
type Manager struct {
	cfg    config.RunConfig
	driver driver.Driver
	policy artifact.Policy
	log    *logging.Logger
}

// NewManager creates a session manager.
func NewManager(cfg config.RunConfig, drv driver.Driver, policy artifact.Policy, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.Discard()
	}
	return &Manager{
		cfg:    cfg,
		driver: drv,
		policy: policy,
		log:    log,
	}
}

// Acquire creates the test's artifact directory and opens a session for
// it. On failure nothing is left open and the error is a
// *driver.SessionAcquisitionError.
func (m *Manager) Acquire(ctx context.Context, testID, worker string, attempt int) (*TestContext, error) {
	tc := &TestContext{
		ID:        testID,
		Slug:      artifact.Slug(testID),
		Dir:       m.policy.Dir(testID, attempt),
		StartedAt: time.Now(),
		Worker:    worker,
		Attempt:   attempt,
	}

	fields := logrus.Fields{
		"event":   "test_start",
		"test_id": testID,
		"slug":    tc.Slug,
		"attempt": attempt,
	}
	if worker != "" {
		fields["worker"] = worker
	}
	m.log.WithFields(fields).Info("test_start")

	if err := os.MkdirAll(tc.Dir, 0750); err != nil {
		return nil, m.acquireFailed(tc, nil, "artifact_dir", err)
	}

	opts := driver.Options{
		Width:      m.cfg.Viewport.Width,
		Height:     m.cfg.Viewport.Height,
		Locale:     m.cfg.Locale,
		TimezoneID: m.cfg.TimezoneID,
		Timeout:    m.cfg.Timeout,
	}
	if m.policy.Captures(model.KindVideo) {
		opts.VideoDir = tc.Dir
	}

	handle, err := m.driver.Open(ctx, opts)
	if err != nil {
		return nil, m.acquireFailed(tc, nil, "open", err)
	}

	if m.policy.Captures(model.KindTrace) {
		if err := handle.StartTrace(); err != nil {
			return nil, m.acquireFailed(tc, handle, "trace", err)
		}
	}

	tc.Handle = handle
	return tc, nil
}

func (m *Manager) acquireFailed(tc *TestContext, handle driver.Handle, stage string, err error) error {
	if handle != nil {
		if closeErr := handle.Close(); closeErr != nil {
			m.log.WithError(closeErr).WithField("test_id", tc.ID).Warn("session_close_failed")
		}
	}
	if rmErr := artifact.RemoveDirIfEmpty(tc.Dir); rmErr != nil {
		m.log.WithError(rmErr).WithField("test_id", tc.ID).Warn("artifact_cleanup_failed")
	}

	acqErr := &driver.SessionAcquisitionError{Stage: stage, Err: err}
	m.log.WithFields(logrus.Fields{
		"event":   "session_acquisition_failed",
		"test_id": tc.ID,
		"stage":   stage,
	}).WithError(err).Error("session_acquisition_failed")
	return acqErr
}

// Release tears the session down and applies retention for result. It
// returns the retained artifacts in kind order. A second call returns the
// first call's artifacts without touching the session again.
func (m *Manager) Release(tc *TestContext, result model.Result) []model.ArtifactRecord {
	tc.releaseOnce.Do(func() {
		tc.released = m.release(tc, result)
	})
	return tc.released
}

func (m *Manager) release(tc *TestContext, result model.Result) []model.ArtifactRecord {
	var ioErrs []error
	h := tc.Handle

	// Everything that needs the live session happens before Close.
	if m.policy.Captures(model.KindTrace) {
		var dest string
		if m.policy.Keep(model.KindTrace, result) {
			dest, _ = m.policy.Path(tc.ID, tc.Attempt, model.KindTrace)
		}
		if err := h.StopTrace(dest); err != nil {
			ioErrs = append(ioErrs, &artifact.IOError{Op: "write", Kind: model.KindTrace, Path: dest, Err: err})
		} else if dest != "" {
			tc.add(model.KindTrace, dest)
		}
	}

	if m.policy.Keep(model.KindScreenshot, result) {
		dest, _ := m.policy.Path(tc.ID, tc.Attempt, model.KindScreenshot)
		if err := h.Screenshot(dest); err != nil {
			ioErrs = append(ioErrs, &artifact.IOError{Op: "write", Kind: model.KindScreenshot, Path: dest, Err: err})
		} else {
			tc.add(model.KindScreenshot, dest)
		}
	}

	if result.Unsuccessful() {
		if lines := h.ConsoleErrors(); len(lines) > 0 {
			dest, _ := m.policy.Path(tc.ID, tc.Attempt, model.KindConsoleLog)
			if err := artifact.WriteConsoleLog(dest, lines); err != nil {
				ioErrs = append(ioErrs, &artifact.IOError{Op: "write", Kind: model.KindConsoleLog, Path: dest, Err: err})
			} else {
				tc.add(model.KindConsoleLog, dest)
			}
		}
	}

	// The video path is only known while the session is open, but the file
	// is only complete once it is closed.
	if m.policy.Captures(model.KindVideo) {
		path, err := h.VideoPath()
		switch {
		case err != nil:
			ioErrs = append(ioErrs, &artifact.IOError{Op: "resolve", Kind: model.KindVideo, Err: err})
		case path != "":
			tc.add(model.KindVideo, path)
		}
	}

	if err := h.Close(); err != nil {
		m.log.WithError(err).WithField("test_id", tc.ID).Warn("session_close_failed")
	}

	records, errs := m.policy.Finalize(tc.Artifacts(), result)
	ioErrs = append(ioErrs, errs...)

	if err := artifact.RemoveDirIfEmpty(tc.Dir); err != nil {
		ioErrs = append(ioErrs, &artifact.IOError{Op: "delete", Path: tc.Dir, Err: err})
	}

	for _, err := range ioErrs {
		m.logIOError(tc, err)
	}

	kept := artifact.Retained(records)
	m.log.WithFields(logrus.Fields{
		"event":       "test_end",
		"test_id":     tc.ID,
		"result":      string(result),
		"duration_ms": time.Since(tc.StartedAt).Milliseconds(),
		"artifacts":   paths(kept),
	}).Info("test_end")
	return kept
}

func (m *Manager) logIOError(tc *TestContext, err error) {
	fields := logrus.Fields{
		"event":   "artifact_cleanup_failed",
		"test_id": tc.ID,
	}
	var ioErr *artifact.IOError
	if errors.As(err, &ioErr) {
		fields["op"] = ioErr.Op
		if ioErr.Kind != "" {
			fields["kind"] = string(ioErr.Kind)
		}
		if ioErr.Path != "" {
			fields["path"] = ioErr.Path
		}
	}
	m.log.WithFields(fields).WithError(err).Warn("artifact_cleanup_failed")
}

func paths(records []model.ArtifactRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, fmt.Sprintf("%s:%s", r.Kind, r.Path))
	}
	return out
}
