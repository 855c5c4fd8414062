package ledger

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/uiharness/pkg/model"
)

func outcome(id string, result model.Result) model.TestOutcome {
	return model.TestOutcome{TestID: id, Result: result, Duration: time.Second}
}

func TestLedger_RecordKeepsOrderAndDuplicates(t *testing.T) {
	l := New()
	l.Record(outcome("a", model.ResultFailed))
	l.Record(outcome("b", model.ResultPassed))
	l.Record(outcome("a", model.ResultPassed))

	got := l.Outcomes()
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].TestID)
	assert.Equal(t, "b", got[1].TestID)
	assert.Equal(t, "a", got[2].TestID)
	assert.Equal(t, 3, l.Len())
	assert.True(t, l.Failed())
}

func TestLedger_OutcomesIsCopy(t *testing.T) {
	l := New()
	artifacts := []model.ArtifactRecord{{Kind: model.KindScreenshot, Path: "s.png", Retained: true}}
	o := outcome("a", model.ResultFailed)
	o.Artifacts = artifacts
	l.Record(o)

	artifacts[0].Path = "mutated"
	got := l.Outcomes()
	got[0].TestID = "changed"

	again := l.Outcomes()
	assert.Equal(t, "a", again[0].TestID)
	assert.Equal(t, "s.png", again[0].Artifacts[0].Path)
}

func TestLedger_FailedOnlyForUnsuccessful(t *testing.T) {
	l := New()
	assert.False(t, l.Failed())
	l.Record(outcome("a", model.ResultPassed))
	l.Record(outcome("b", model.ResultSkipped))
	assert.False(t, l.Failed())
	l.Record(outcome("c", model.ResultError))
	assert.True(t, l.Failed())
}

func TestLedger_ConcurrentRecord(t *testing.T) {
	const workers = 8
	const perWorker = 250

	l := New()
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				o := outcome(fmt.Sprintf("w%d/t%d", w, i), model.ResultPassed)
				o.Worker = fmt.Sprintf("gw%d", w)
				l.Record(o)
			}
		}(w)
	}
	wg.Wait()

	got := l.Outcomes()
	require.Len(t, got, workers*perWorker)

	seen := make(map[string]bool, len(got))
	lastPerWorker := make(map[string]int)
	for _, o := range got {
		assert.False(t, seen[o.TestID], "duplicate %s", o.TestID)
		seen[o.TestID] = true

		var w, i int
		_, err := fmt.Sscanf(o.TestID, "w%d/t%d", &w, &i)
		require.NoError(t, err)
		if last, ok := lastPerWorker[o.Worker]; ok {
			assert.Greater(t, i, last, "worker %s out of order", o.Worker)
		}
		lastPerWorker[o.Worker] = i
	}
}

func TestFinal(t *testing.T) {
	final := Final([]model.TestOutcome{
		outcome("a", model.ResultFailed),
		outcome("b", model.ResultPassed),
		outcome("a", model.ResultPassed),
	})
	require.Len(t, final, 2)
	assert.Equal(t, "a", final[0].TestID)
	assert.Equal(t, model.ResultPassed, final[0].Result)
	assert.Equal(t, "b", final[1].TestID)
}

func TestFlaky(t *testing.T) {
	flaky := Flaky([]model.TestOutcome{
		outcome("a", model.ResultFailed),
		outcome("b", model.ResultFailed),
		outcome("a", model.ResultPassed),
		outcome("b", model.ResultFailed),
		outcome("c", model.ResultPassed),
		outcome("d", model.ResultError),
		outcome("d", model.ResultPassed),
	})
	assert.Equal(t, []string{"a", "d"}, flaky)
}
