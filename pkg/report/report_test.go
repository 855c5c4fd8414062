package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/uiharness/pkg/config"
	"github.com/entrhq/uiharness/pkg/model"
)

func sampleResults() *Results {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := config.RunConfig{
		BaseURL:    config.DefaultBaseURL,
		Browser:    config.BrowserChromium,
		Headless:   true,
		Viewport:   config.Viewport{Width: 1280, Height: 720},
		Screenshot: config.ModeOnFailure,
		Trace:      config.ModeOn,
		Video:      config.ModeOff,
		Workers:    2,
		Retries:    1,
		Filter:     "todo/*",
	}
	outcomes := []model.TestOutcome{
		{TestID: "todo/add", Result: model.ResultPassed, Duration: 800 * time.Millisecond, Worker: "gw0"},
		{TestID: "todo/edit", Result: model.ResultFailed, Duration: 2 * time.Second, Worker: "gw1",
			Reason: "expected text \"buy milk\"\n  got \"buy bread\"",
			Artifacts: []model.ArtifactRecord{
				{Kind: model.KindScreenshot, Path: "/a/todo__edit/screenshot.png", Retained: true},
			}},
		{TestID: "todo/toggle", Result: model.ResultFailed, Duration: time.Second, Worker: "gw0"},
		{TestID: "todo/toggle", Result: model.ResultPassed, Duration: time.Second, Worker: "gw0", Attempt: 1},
		{TestID: "todo/routing", Result: model.ResultSkipped, Worker: "gw1", Reason: "not on webkit"},
	}
	return Build("run-42", cfg, outcomes, started, started.Add(5*time.Second))
}

func TestBuild(t *testing.T) {
	res := sampleResults()

	assert.Equal(t, "run-42", res.RunID)
	assert.Equal(t, 5*time.Second, res.Duration)
	assert.Equal(t, Counts{
		Total:    4,
		Passed:   2,
		Failed:   1,
		Skipped:  1,
		Attempts: 5,
		Flaky:    []string{"todo/toggle"},
	}, res.Summary)
	assert.Len(t, res.Outcomes, 5)
	assert.Equal(t, "todo/*", res.Config.Filter)
	assert.True(t, res.Failed())
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.json")
	res := sampleResults()

	require.NoError(t, WriteJSON(path, res))
	assert.NoFileExists(t, path+".tmp")

	loaded, err := ReadJSON(path)
	require.NoError(t, err)
	assert.Equal(t, res.Summary, loaded.Summary)
	assert.Equal(t, res.RunID, loaded.RunID)
	require.Len(t, loaded.Outcomes, 5)
	assert.Equal(t, "/a/todo__edit/screenshot.png", loaded.Outcomes[1].Artifacts[0].Path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"testId": "todo/edit"`)
	assert.Contains(t, string(data), `"result": "failed"`)
}

func TestWriteJSON_Nil(t *testing.T) {
	assert.Error(t, WriteJSON(filepath.Join(t.TempDir(), "r.json"), nil))
}

func TestTerminal_Render(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTerminal(&buf).Render(sampleResults()))
	out := buf.String()

	assert.Contains(t, out, "PASSED todo/add 800ms")
	assert.Contains(t, out, "FAILED todo/edit 2.0s")
	assert.Contains(t, out, `expected text "buy milk" got "buy bread"`)
	assert.Contains(t, out, "screenshot: /a/todo__edit/screenshot.png")
	assert.Contains(t, out, "PASSED todo/toggle 1.0s (attempt 2)")
	assert.Contains(t, out, "SKIPPED todo/routing")
	assert.Contains(t, out, "4 tests  2 passed  1 failed  0 errored  1 skipped")
	assert.Contains(t, out, "flaky: todo/toggle")
	assert.Contains(t, out, "finished in 5.0s")
	assert.Equal(t, 1, strings.Count(out, "todo/toggle 1.0s"))
}

func TestTerminal_RenderNil(t *testing.T) {
	assert.Error(t, NewTerminal(&bytes.Buffer{}).Render(nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b c", truncate("a\n  b\tc", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
