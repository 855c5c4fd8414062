// Package runner executes a suite of cases against the session manager.
//
// Cases are fed to a fixed pool of workers. Within a worker, cases run
// one after another. Every attempt goes through Acquire, Run and a deferred
// Release before it is recorded, so no session outlives its test. Once the
// pool drains the ledger is exported as metrics and, when configured,
// results.json.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/uiharness/pkg/artifact"
	"github.com/entrhq/uiharness/pkg/config"
	"github.com/entrhq/uiharness/pkg/ledger"
	"github.com/entrhq/uiharness/pkg/logging"
	"github.com/entrhq/uiharness/pkg/metrics"
	"github.com/entrhq/uiharness/pkg/model"
	"github.com/entrhq/uiharness/pkg/report"
	"github.com/entrhq/uiharness/pkg/session"
)

// Case is one named test.
type Case struct {
	ID   string
	Body session.Body
}

// Select returns the cases whose id matches the glob pattern, in suite
// order. '/' separates path segments, so "todo/*" does not match
// "todo/a/b" while "**" matches every id. Duplicate ids, and distinct ids
// that share an artifact directory, are rejected.
func Select(cases []Case, pattern string) ([]Case, error) {
	if pattern == "" {
		pattern = config.DefaultFilter
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid test filter %q: %w", pattern, err)
	}

	seen := make(map[string]bool, len(cases))
	slugs := make(map[string]string, len(cases))
	var selected []Case
	for _, c := range cases {
		if seen[c.ID] {
			return nil, fmt.Errorf("duplicate test id %q", c.ID)
		}
		seen[c.ID] = true

		slug := artifact.Slug(c.ID)
		if other, ok := slugs[slug]; ok {
			return nil, fmt.Errorf("test ids %q and %q share artifact directory %q", other, c.ID, slug)
		}
		slugs[slug] = c.ID

		if g.Match(c.ID) {
			selected = append(selected, c)
		}
	}
	return selected, nil
}

// Summary describes a finished run.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    *report.Results
	// Cancelled is set when the run stopped before every case was scheduled.
	Cancelled bool
}

// Failed reports whether any test ended failed or error.
func (s *Summary) Failed() bool {
	return s.Results.Failed()
}

// Runner drives a suite run.
type Runner struct {
	cfg      config.RunConfig
	sessions *session.Manager
	ledger   *ledger.Ledger
	exporter *metrics.Exporter
	log      *logging.Logger
}

// New creates a runner with an empty ledger.
func New(cfg config.RunConfig, sessions *session.Manager, log *logging.Logger) *Runner {
	if log == nil {
		log = logging.Discard()
	}
	return &Runner{
		cfg:      cfg,
		sessions: sessions,
		ledger:   ledger.New(),
		exporter: metrics.NewExporter(log),
		log:      log,
	}
}

// Ledger returns the run's ledger.
func (r *Runner) Ledger() *ledger.Ledger {
	return r.ledger
}

// Run executes cases with the configured worker count. Cancelling ctx
// stops scheduling; tests already running are released and recorded. Run
// only returns an error for an invalid filter. Metrics and results write
// failures are logged.
func (r *Runner) Run(ctx context.Context, cases []Case) (*Summary, error) {
	selected, err := Select(cases, r.cfg.Filter)
	if err != nil {
		return nil, &config.ConfigurationError{Field: config.KeyFilter, Value: r.cfg.Filter, Reason: err.Error()}
	}

	started := time.Now()
	workers := r.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(selected) && len(selected) > 0 {
		workers = len(selected)
	}

	r.log.WithFields(logrus.Fields{
		"event":    "run_start",
		"tests":    len(selected),
		"filtered": len(cases) - len(selected),
		"workers":  workers,
		"retries":  r.cfg.Retries,
		"browser":  string(r.cfg.Browser),
		"base_url": r.cfg.BaseURL,
	}).Info("run_start")

	jobs := make(chan Case)
	g, gctx := errgroup.WithContext(ctx)

	scheduled := 0
	g.Go(func() error {
		defer close(jobs)
		for _, c := range selected {
			if gctx.Err() != nil {
				return nil
			}
			select {
			case jobs <- c:
				scheduled++
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		worker := r.workerTag(i)
		g.Go(func() error {
			for c := range jobs {
				r.runCase(ctx, c, worker)
			}
			return nil
		})
	}

	// Workers never return errors; Wait only synchronizes.
	_ = g.Wait()

	finished := time.Now()
	outcomes := r.ledger.Outcomes()
	summary := &Summary{
		RunID:      r.log.RunID(),
		StartedAt:  started,
		FinishedAt: finished,
		Results:    report.Build(r.log.RunID(), r.cfg, outcomes, started, finished),
		Cancelled:  scheduled < len(selected),
	}

	_ = r.exporter.Export(r.ledger, r.cfg.MetricsPath, metrics.Meta{
		RunID:      summary.RunID,
		StartedAt:  started,
		FinishedAt: finished,
	})

	if r.cfg.ResultsPath != "" {
		if err := report.WriteJSON(r.cfg.ResultsPath, summary.Results); err != nil {
			r.log.WithFields(logrus.Fields{
				"event": "results_write_failed",
				"path":  r.cfg.ResultsPath,
			}).WithError(err).Error("results_write_failed")
		}
	}

	s := summary.Results.Summary
	r.log.WithFields(logrus.Fields{
		"event":       "run_end",
		"total":       s.Total,
		"passed":      s.Passed,
		"failed":      s.Failed,
		"errored":     s.Errored,
		"skipped":     s.Skipped,
		"flaky":       len(s.Flaky),
		"cancelled":   summary.Cancelled,
		"duration_ms": finished.Sub(started).Milliseconds(),
	}).Info("run_end")

	return summary, nil
}

func (r *Runner) workerTag(i int) string {
	if r.cfg.Workers <= 1 {
		return ""
	}
	return fmt.Sprintf("gw%d", i)
}

// runCase runs a case until it passes, is skipped or runs out of retries.
// Every attempt is recorded.
func (r *Runner) runCase(ctx context.Context, c Case, worker string) {
	for attempt := 0; attempt <= r.cfg.Retries; attempt++ {
		outcome := r.attempt(ctx, c, worker, attempt)
		r.ledger.Record(outcome)

		if !outcome.Result.Unsuccessful() || ctx.Err() != nil {
			return
		}
		if attempt < r.cfg.Retries {
			r.log.WithFields(logrus.Fields{
				"event":   "test_retry",
				"test_id": c.ID,
				"attempt": attempt + 1,
			}).Warn("test_retry")
		}
	}
}

func (r *Runner) attempt(ctx context.Context, c Case, worker string, attempt int) model.TestOutcome {
	outcome := model.TestOutcome{
		TestID:    c.ID,
		StartedAt: time.Now(),
		Worker:    worker,
		Attempt:   attempt,
	}

	tc, err := r.sessions.Acquire(ctx, c.ID, worker, attempt)
	if err != nil {
		outcome.Result = model.ResultError
		outcome.Reason = err.Error()
		outcome.Duration = time.Since(outcome.StartedAt)
		return outcome
	}
	outcome.StartedAt = tc.StartedAt

	verdict := session.Verdict{Result: model.ResultError, Err: errors.New("test body did not complete")}
	func() {
		defer func() {
			outcome.Artifacts = r.sessions.Release(tc, verdict.Result)
		}()
		verdict = r.sessions.Run(ctx, tc, c.Body)
	}()

	outcome.Result = verdict.Result
	outcome.Reason = verdict.Reason()
	outcome.TimedOut = verdict.TimedOut()
	outcome.Duration = verdict.Duration
	return outcome
}
