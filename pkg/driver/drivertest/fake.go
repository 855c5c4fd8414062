// Package drivertest provides an in-memory driver.Driver for tests.
//
// Handles write real files for screenshots, traces and videos so retention
// logic can be verified on disk. Like Playwright, the video file only
// appears when the handle is closed.
package drivertest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/entrhq/uiharness/pkg/driver"
)

// ErrClosed is returned by handle operations after Close.
var ErrClosed = errors.New("drivertest: session closed")

// Driver is a fake driver.Driver.
type Driver struct {
	// OpenErr, when set, fails every Open call.
	OpenErr error
	// StartTraceErr, when set, fails StartTrace.
	StartTraceErr error
	// ScreenshotErr, when set, fails Screenshot.
	ScreenshotErr error
	// ConsoleErrors are reported by every handle.
	ConsoleErrors []string
	// NavigateTimeouts makes the first n navigations of every handle fail
	// with driver.ErrTimeout.
	NavigateTimeouts int

	mu      sync.Mutex
	handles []*Handle
	seq     atomic.Int64
}

// New returns an empty fake driver.
func New() *Driver {
	return &Driver{}
}

// Open implements driver.Driver.
func (d *Driver) Open(ctx context.Context, opts driver.Options) (driver.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}

	h := &Handle{
		driver:  d,
		id:      d.seq.Add(1),
		opts:    opts,
		console: append([]string(nil), d.ConsoleErrors...),
		url:     "about:blank",
		counts:  make(map[string]int),
		queued:  make(map[string][]int),
		texts:   make(map[string]string),
		checked: make(map[string]bool),
	}

	d.mu.Lock()
	d.handles = append(d.handles, h)
	d.mu.Unlock()
	return h, nil
}

// Handles returns every handle opened so far.
func (d *Driver) Handles() []*Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Handle(nil), d.handles...)
}

// OpenCount returns the number of sessions whose Close has not run.
func (d *Driver) OpenCount() int {
	n := 0
	for _, h := range d.Handles() {
		if h.CloseCount() == 0 {
			n++
		}
	}
	return n
}

// Handle is a fake driver.Handle.
type Handle struct {
	driver *Driver
	id     int64
	opts   driver.Options

	mu         sync.Mutex
	closes     int
	tracing    bool
	url        string
	console    []string
	counts     map[string]int
	queued     map[string][]int
	texts      map[string]string
	checked    map[string]bool
	navigated  int
	actions    []string
	videoAsked bool
}

// Options returns the options the handle was opened with.
func (h *Handle) Options() driver.Options {
	return h.opts
}

// CloseCount returns how many times Close was called.
func (h *Handle) CloseCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes
}

// Tracing reports whether a trace is being recorded.
func (h *Handle) Tracing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tracing
}

// VideoQueried reports whether VideoPath was called.
func (h *Handle) VideoQueried() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.videoAsked
}

// Actions returns the interaction log, e.g. "click .toggle".
func (h *Handle) Actions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.actions...)
}

// AddConsoleError appends a console error line.
func (h *Handle) AddConsoleError(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.console = append(h.console, line)
}

// SetCount fixes the value returned by Count and checked by ExpectCount.
func (h *Handle) SetCount(selector string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[selector] = n
}

// QueueCount makes the next Count calls for selector return values in
// order. ExpectCount ignores queued values.
func (h *Handle) QueueCount(selector string, values ...int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queued[selector] = append(h.queued[selector], values...)
}

// SetText fixes the value returned by Text and checked by ExpectText.
func (h *Handle) SetText(selector, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.texts[selector] = text
}

// SetCheckedState fixes the value returned by IsChecked.
func (h *Handle) SetCheckedState(selector string, checked bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checked[selector] = checked
}

func (h *Handle) record(format string, args ...interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closes > 0 {
		return ErrClosed
	}
	h.actions = append(h.actions, fmt.Sprintf(format, args...))
	return nil
}

func (h *Handle) Navigate(url string) error {
	if err := h.record("navigate %s", url); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.navigated++
	if h.navigated <= h.driver.NavigateTimeouts {
		return fmt.Errorf("navigate %s: %w", url, driver.ErrTimeout)
	}
	h.url = url
	return nil
}

func (h *Handle) Reload() error {
	return h.record("reload")
}

func (h *Handle) URL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url
}

func (h *Handle) Click(selector string) error       { return h.record("click %s", selector) }
func (h *Handle) DoubleClick(selector string) error { return h.record("dblclick %s", selector) }
func (h *Handle) Hover(selector string) error       { return h.record("hover %s", selector) }

func (h *Handle) Fill(selector, value string) error {
	return h.record("fill %s %q", selector, value)
}

func (h *Handle) Press(selector, key string) error {
	return h.record("press %s %s", selector, key)
}

func (h *Handle) SetChecked(selector string, checked bool) error {
	if err := h.record("check %s %t", selector, checked); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checked[selector] = checked
	return nil
}

func (h *Handle) Count(selector string) (int, error) {
	if err := h.record("count %s", selector); err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if q := h.queued[selector]; len(q) > 0 {
		h.queued[selector] = q[1:]
		return q[0], nil
	}
	return h.counts[selector], nil
}

func (h *Handle) Text(selector string) (string, error) {
	if err := h.record("text %s", selector); err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.texts[selector], nil
}

func (h *Handle) IsChecked(selector string) (bool, error) {
	if err := h.record("checked? %s", selector); err != nil {
		return false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.checked[selector], nil
}

func (h *Handle) ExpectVisible(selector string) error {
	return h.record("expect visible %s", selector)
}

func (h *Handle) ExpectCount(selector string, n int) error {
	if err := h.record("expect count %s %d", selector, n); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if got, ok := h.counts[selector]; ok && got != n {
		return fmt.Errorf("expected %d elements matching %s, found %d", n, selector, got)
	}
	return nil
}

func (h *Handle) ExpectText(selector, text string) error {
	if err := h.record("expect text %s %q", selector, text); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if got, ok := h.texts[selector]; ok && got != text {
		return fmt.Errorf("expected %s to have text %q, got %q", selector, text, got)
	}
	return nil
}

func (h *Handle) ExpectChecked(selector string, checked bool) error {
	if err := h.record("expect checked %s %t", selector, checked); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if got, ok := h.checked[selector]; ok && got != checked {
		return fmt.Errorf("expected %s checked=%t", selector, checked)
	}
	return nil
}

func (h *Handle) ExpectURL(pattern *regexp.Regexp) error {
	if err := h.record("expect url %s", pattern); err != nil {
		return err
	}
	if !pattern.MatchString(h.URL()) {
		return fmt.Errorf("url %q does not match %s", h.URL(), pattern)
	}
	return nil
}

func (h *Handle) StartTrace() error {
	if h.driver.StartTraceErr != nil {
		return h.driver.StartTraceErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tracing = true
	return nil
}

func (h *Handle) StopTrace(path string) error {
	h.mu.Lock()
	wasTracing := h.tracing
	h.tracing = false
	h.mu.Unlock()

	if !wasTracing {
		return errors.New("drivertest: tracing not started")
	}
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte("PK-fake-trace"), 0600)
}

func (h *Handle) Screenshot(path string) error {
	if h.driver.ScreenshotErr != nil {
		return h.driver.ScreenshotErr
	}
	if err := h.record("screenshot"); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("\x89PNG-fake"), 0600)
}

// VideoPath implements driver.Handle. It must be called before Close; the
// file itself only appears once Close runs.
func (h *Handle) VideoPath() (string, error) {
	if h.opts.VideoDir == "" {
		return "", nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closes > 0 {
		return "", ErrClosed
	}
	h.videoAsked = true
	return h.videoFile(), nil
}

func (h *Handle) videoFile() string {
	return filepath.Join(h.opts.VideoDir, fmt.Sprintf("video-%04d.webm", h.id))
}

func (h *Handle) ConsoleErrors() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.console...)
}

// Close implements driver.Handle. Recording videos are flushed to disk.
func (h *Handle) Close() error {
	h.mu.Lock()
	h.closes++
	first := h.closes == 1
	h.mu.Unlock()

	if first && h.opts.VideoDir != "" {
		return os.WriteFile(h.videoFile(), []byte("webm-fake"), 0600)
	}
	return nil
}
