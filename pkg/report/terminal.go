package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/uiharness/pkg/ledger"
	"github.com/entrhq/uiharness/pkg/model"
)

// Terminal renders a run summary. Colors are only emitted when the
// writer is a color-capable terminal.
type Terminal struct {
	out io.Writer

	headerStyle  lipgloss.Style
	passStyle    lipgloss.Style
	failStyle    lipgloss.Style
	skipStyle    lipgloss.Style
	dimStyle     lipgloss.Style
	reasonLength int
}

// NewTerminal creates a summary renderer writing to out.
func NewTerminal(out io.Writer) *Terminal {
	r := lipgloss.NewRenderer(out)
	return &Terminal{
		out: out,

		headerStyle: r.NewStyle().Bold(true),
		passStyle: r.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#008000", Dark: "#55FF55"}),
		failStyle: r.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#D00000", Dark: "#FF5555"}).
			Bold(true),
		skipStyle: r.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#FFAA00"}),
		dimStyle: r.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"}),
		reasonLength: 100,
	}
}

// Render writes one line per test followed by the totals.
func (t *Terminal) Render(results *Results) error {
	if results == nil {
		return fmt.Errorf("results are required")
	}

	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, t.headerStyle.Render("=== UI Test Run ==="))
	fmt.Fprintln(t.out, t.dimStyle.Render(fmt.Sprintf("run %s  %s  %s",
		results.RunID, results.Config.Browser, results.Config.BaseURL)))
	fmt.Fprintln(t.out)

	for _, o := range ledger.Final(results.Outcomes) {
		line := fmt.Sprintf("%s %s %s", t.badge(o.Result), o.TestID, t.dimStyle.Render(formatDuration(o.Duration)))
		if o.Attempt > 0 {
			line += t.dimStyle.Render(fmt.Sprintf(" (attempt %d)", o.Attempt+1))
		}
		fmt.Fprintln(t.out, line)

		if o.Reason != "" && o.Result != model.ResultPassed {
			fmt.Fprintf(t.out, "    %s\n", truncate(o.Reason, t.reasonLength))
		}
		for _, a := range o.Artifacts {
			fmt.Fprintf(t.out, "    %s\n", t.dimStyle.Render(fmt.Sprintf("%s: %s", a.Kind, a.Path)))
		}
	}

	s := results.Summary
	fmt.Fprintln(t.out)
	fmt.Fprintf(t.out, "%s  %s  %s  %s  %s\n",
		t.headerStyle.Render(fmt.Sprintf("%d tests", s.Total)),
		t.passStyle.Render(fmt.Sprintf("%d passed", s.Passed)),
		t.failStyle.Render(fmt.Sprintf("%d failed", s.Failed)),
		t.failStyle.Render(fmt.Sprintf("%d errored", s.Errored)),
		t.skipStyle.Render(fmt.Sprintf("%d skipped", s.Skipped)),
	)
	if len(s.Flaky) > 0 {
		fmt.Fprintln(t.out, t.skipStyle.Render("flaky: "+strings.Join(s.Flaky, ", ")))
	}
	fmt.Fprintln(t.out, t.dimStyle.Render("finished in "+formatDuration(results.Duration)))
	return nil
}

func (t *Terminal) badge(r model.Result) string {
	label := strings.ToUpper(string(r))
	switch r {
	case model.ResultPassed:
		return t.passStyle.Render(label)
	case model.ResultSkipped:
		return t.skipStyle.Render(label)
	default:
		return t.failStyle.Render(label)
	}
}

func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	secs := float64(ms) / 1000.0
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	return fmt.Sprintf("%.1fm", secs/60.0)
}

func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
