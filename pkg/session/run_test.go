package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/uiharness/pkg/config"
	"github.com/entrhq/uiharness/pkg/driver"
	"github.com/entrhq/uiharness/pkg/driver/drivertest"
	"github.com/entrhq/uiharness/pkg/model"
)

// runScoped mirrors how the runner drives a test: Release is deferred right
// after Acquire.
func runScoped(t *testing.T, m *Manager, body Body) (Verdict, *drivertest.Handle, []model.ArtifactRecord) {
	t.Helper()
	tc, err := m.Acquire(context.Background(), t.Name(), "", 0)
	require.NoError(t, err)
	h := fakeHandle(t, tc)

	var verdict Verdict
	var kept []model.ArtifactRecord
	func() {
		defer func() { kept = m.Release(tc, verdict.Result) }()
		verdict = m.Run(context.Background(), tc, body)
	}()
	return verdict, h, kept
}

func TestRun_Results(t *testing.T) {
	tests := []struct {
		name   string
		body   Body
		result model.Result
		reason string
	}{
		{
			name:   "pass",
			body:   func(ctx context.Context, page driver.Page) error { return page.Navigate("https://example.test/") },
			result: model.ResultPassed,
		},
		{
			name:   "fail",
			body:   func(ctx context.Context, page driver.Page) error { return errors.New("expected 2 items, found 1") },
			result: model.ResultFailed,
			reason: "expected 2 items, found 1",
		},
		{
			name:   "skip",
			body:   func(ctx context.Context, page driver.Page) error { return Skip("not on webkit") },
			result: model.ResultSkipped,
			reason: "not on webkit",
		},
		{
			name:   "panic",
			body:   func(ctx context.Context, page driver.Page) error { panic("nil page object") },
			result: model.ResultError,
			reason: "test body panicked: nil page object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, config.ModeOnFailure, config.ModeOff, config.ModeOff)
			verdict, h, _ := runScoped(t, newManager(cfg, drivertest.New()), tt.body)

			assert.Equal(t, tt.result, verdict.Result)
			assert.Equal(t, tt.reason, verdict.Reason())
			assert.False(t, verdict.TimedOut())
			assert.Equal(t, 1, h.CloseCount())
		})
	}
}

func TestRun_PanicKeepsFailureArtifacts(t *testing.T) {
	cfg := testConfig(t, config.ModeOnFailure, config.ModeOnFailure, config.ModeOff)
	verdict, h, kept := runScoped(t, newManager(cfg, drivertest.New()), func(ctx context.Context, page driver.Page) error {
		panic(errors.New("boom"))
	})

	assert.Equal(t, model.ResultError, verdict.Result)
	var pe *PanicError
	require.ErrorAs(t, verdict.Err, &pe)
	assert.NotEmpty(t, pe.Stack)
	assert.Equal(t, 1, h.CloseCount())
	require.Len(t, kept, 2)
	assert.Equal(t, model.KindScreenshot, kept[0].Kind)
	assert.Equal(t, model.KindTrace, kept[1].Kind)
}

func TestRun_Timeout(t *testing.T) {
	cfg := testConfig(t, config.ModeOnFailure, config.ModeOff, config.ModeOff)
	cfg.TestTimeout = 20 * time.Millisecond
	release := make(chan struct{})
	defer close(release)

	verdict, h, kept := runScoped(t, newManager(cfg, drivertest.New()), func(ctx context.Context, page driver.Page) error {
		<-release
		return nil
	})

	assert.Equal(t, model.ResultFailed, verdict.Result)
	assert.True(t, verdict.TimedOut())
	var timeout *TimeoutError
	require.ErrorAs(t, verdict.Err, &timeout)
	assert.Equal(t, 20*time.Millisecond, timeout.Timeout)
	assert.Equal(t, 1, h.CloseCount())
	require.Len(t, kept, 1)
	assert.Equal(t, model.KindScreenshot, kept[0].Kind)
}

func TestRun_BodySeesDeadline(t *testing.T) {
	cfg := testConfig(t, config.ModeOff, config.ModeOff, config.ModeOff)
	cfg.TestTimeout = time.Minute

	verdict, _, _ := runScoped(t, newManager(cfg, drivertest.New()), func(ctx context.Context, page driver.Page) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	})
	assert.Equal(t, model.ResultPassed, verdict.Result)
}

func TestRun_ParentCancelled(t *testing.T) {
	cfg := testConfig(t, config.ModeOff, config.ModeOff, config.ModeOff)
	m := newManager(cfg, drivertest.New())

	tc, err := m.Acquire(context.Background(), "a", "", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	verdict := m.Run(ctx, tc, func(ctx context.Context, page driver.Page) error {
		<-ctx.Done()
		return ctx.Err()
	})
	m.Release(tc, verdict.Result)

	assert.Equal(t, model.ResultError, verdict.Result)
	assert.False(t, verdict.TimedOut())
	assert.ErrorIs(t, verdict.Err, context.Canceled)
}

func TestRun_CancelWhileFinishingKeepsResult(t *testing.T) {
	cfg := testConfig(t, config.ModeOff, config.ModeOff, config.ModeOff)
	m := newManager(cfg, drivertest.New())

	for i := 0; i < 200; i++ {
		tc, err := m.Acquire(context.Background(), "a", "", 0)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		verdict := m.Run(ctx, tc, func(ctx context.Context, page driver.Page) error {
			cancel()
			return nil
		})
		m.Release(tc, verdict.Result)
		cancel()

		require.Equal(t, model.ResultPassed, verdict.Result, "iteration %d: %v", i, verdict.Err)
	}
}

func TestRun_CancelledBodyThatKeepsRunningIsError(t *testing.T) {
	cfg := testConfig(t, config.ModeOff, config.ModeOff, config.ModeOff)
	m := newManager(cfg, drivertest.New())

	tc, err := m.Acquire(context.Background(), "a", "", 0)
	require.NoError(t, err)

	stop := make(chan struct{})
	defer close(stop)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	verdict := m.Run(ctx, tc, func(ctx context.Context, page driver.Page) error {
		<-stop
		return nil
	})
	m.Release(tc, verdict.Result)

	assert.Equal(t, model.ResultError, verdict.Result)
	assert.ErrorIs(t, verdict.Err, context.Canceled)
	assert.GreaterOrEqual(t, time.Since(start), cancelGrace)
}
