// Package ledger records test outcomes for a run.
package ledger

import (
	"sync"

	"github.com/entrhq/uiharness/pkg/model"
)

// Ledger is the append-only sequence of outcomes for one run. Record is the
// single synchronization point between workers.
type Ledger struct {
	mu       sync.Mutex
	outcomes []model.TestOutcome
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Record appends one outcome. Outcomes are never deduplicated: a retried
// test appears once per attempt, in run order.
func (l *Ledger) Record(outcome model.TestOutcome) {
	outcome.Artifacts = append([]model.ArtifactRecord(nil), outcome.Artifacts...)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, outcome)
}

// Outcomes returns a copy of every recorded outcome in append order.
func (l *Ledger) Outcomes() []model.TestOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.TestOutcome(nil), l.outcomes...)
}

// Len returns the number of recorded outcomes.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.outcomes)
}

// Failed reports whether any recorded outcome is failed or error.
func (l *Ledger) Failed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range l.outcomes {
		if o.Result.Unsuccessful() {
			return true
		}
	}
	return false
}

// Final returns the last outcome per test id, in order of first
// appearance. Retries collapse into their final attempt.
func Final(outcomes []model.TestOutcome) []model.TestOutcome {
	index := make(map[string]int)
	var final []model.TestOutcome
	for _, o := range outcomes {
		if i, seen := index[o.TestID]; seen {
			final[i] = o
			continue
		}
		index[o.TestID] = len(final)
		final = append(final, o)
	}
	return final
}

// Flaky returns the ids of tests that were unsuccessful on some attempt and
// passed on a later one, in order of first appearance.
func Flaky(outcomes []model.TestOutcome) []string {
	failedBefore := make(map[string]bool)
	flagged := make(map[string]bool)
	var flaky []string
	for _, o := range outcomes {
		switch {
		case o.Result.Unsuccessful():
			failedBefore[o.TestID] = true
		case o.Result == model.ResultPassed && failedBefore[o.TestID] && !flagged[o.TestID]:
			flagged[o.TestID] = true
			flaky = append(flaky, o.TestID)
		}
	}
	return flaky
}
