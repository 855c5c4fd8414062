package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/entrhq/uiharness/pkg/driver"
	"github.com/entrhq/uiharness/pkg/model"
)

// Body is a test body. A nil return passes, a *SkipError skips, any other
// error fails the test.
type Body func(ctx context.Context, page driver.Page) error

// SkipError marks a test as skipped.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	if e.Reason == "" {
		return "skipped"
	}
	return "skipped: " + e.Reason
}

// Skip returns an error that makes Run report the test as skipped.
func Skip(reason string) error {
	return &SkipError{Reason: reason}
}

// TimeoutError reports a body that outlived its time budget.
type TimeoutError struct {
	TestID  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("test %s timed out after %s", e.TestID, e.Timeout)
}

// PanicError wraps a panic raised by a test body.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("test body panicked: %v", e.Value)
}

// Verdict is what a body run amounts to.
type Verdict struct {
	Result   model.Result
	Err      error
	Duration time.Duration
}

// TimedOut reports whether the body hit its time budget.
func (v Verdict) TimedOut() bool {
	var timeout *TimeoutError
	return errors.As(v.Err, &timeout)
}

// Reason is the human-readable cause of a non-passing verdict.
func (v Verdict) Reason() string {
	if v.Err == nil {
		return ""
	}
	var skip *SkipError
	if errors.As(v.Err, &skip) {
		return skip.Reason
	}
	return v.Err.Error()
}

// Run executes body against the test's session within the configured test
// timeout. Panics are recovered and reported as error. Run never releases
// the session; callers defer Release right after Acquire.
func (m *Manager) Run(ctx context.Context, tc *TestContext, body Body) Verdict {
	runCtx := ctx
	if m.cfg.TestTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, m.cfg.TestTimeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		done <- body(runCtx, tc.Handle)
	}()

	var err error
	select {
	case err = <-done:
	case <-runCtx.Done():
		err = m.interrupted(ctx, runCtx, tc, done)
	}

	return Verdict{
		Result:   classify(err),
		Err:      err,
		Duration: time.Since(start),
	}
}

// cancelGrace is how long a body may take to return after the run is
// cancelled before its result is replaced by the cancellation.
const cancelGrace = 250 * time.Millisecond

// interrupted resolves a body whose context ended. A result the body already
// produced wins. A body still running after the timeout or the grace period
// fails fast once Release closes the session underneath it.
func (m *Manager) interrupted(ctx, runCtx context.Context, tc *TestContext, done <-chan error) error {
	select {
	case err := <-done:
		return err
	default:
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return &TimeoutError{TestID: tc.ID, Timeout: m.cfg.TestTimeout}
	}

	timer := time.NewTimer(cancelGrace)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ctx.Err()
	}
}

func classify(err error) model.Result {
	var (
		skip *SkipError
		pe   *PanicError
	)
	switch {
	case err == nil:
		return model.ResultPassed
	case errors.As(err, &skip):
		return model.ResultSkipped
	case errors.As(err, &pe):
		return model.ResultError
	case errors.Is(err, context.Canceled):
		return model.ResultError
	default:
		return model.ResultFailed
	}
}
