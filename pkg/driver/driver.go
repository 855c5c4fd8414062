// Package driver defines the narrow browser capability the harness core
// depends on. The Playwright implementation lives in package browser; tests
// use the in-memory fake from package drivertest.
package driver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Options configures one isolated browser session.
type Options struct {
	Width      int
	Height     int
	Locale     string
	TimezoneID string

	// Timeout is the default action and navigation timeout.
	Timeout time.Duration

	// VideoDir enables video recording into the given directory when set.
	// Recording has to start when the session opens, before the test
	// outcome is known.
	VideoDir string
}

// Driver opens isolated sessions. Sessions opened concurrently must not
// share cookies or storage, even when they share a browser process.
type Driver interface {
	Open(ctx context.Context, opts Options) (Handle, error)
}

// Page is the page-interaction surface used by page objects and test
// bodies. Selectors use Playwright selector syntax.
type Page interface {
	Navigate(url string) error
	Reload() error
	URL() string

	Click(selector string) error
	DoubleClick(selector string) error
	Fill(selector, value string) error
	Press(selector, key string) error
	SetChecked(selector string, checked bool) error
	Hover(selector string) error

	Count(selector string) (int, error)
	Text(selector string) (string, error)
	IsChecked(selector string) (bool, error)

	ExpectVisible(selector string) error
	ExpectCount(selector string, n int) error
	ExpectText(selector, text string) error
	ExpectChecked(selector string, checked bool) error
	ExpectURL(pattern *regexp.Regexp) error
}

// Handle is one live session. It is owned by exactly one test.
type Handle interface {
	Page

	// StartTrace begins recording a trace.
	StartTrace() error
	// StopTrace ends the trace. The trace is written to path, or discarded
	// when path is empty.
	StopTrace(path string) error
	// Screenshot writes a full-page PNG to path.
	Screenshot(path string) error
	// VideoPath returns the path the video will be written to, or "" when
	// the session is not recording. The file is only complete after Close.
	VideoPath() (string, error)
	// ConsoleErrors returns console errors and uncaught page errors seen so
	// far, in arrival order.
	ConsoleErrors() []string
	// Close releases the session and flushes any recording.
	Close() error
}

// ErrTimeout is wrapped by drivers when an action or navigation hits its
// timeout.
var ErrTimeout = errors.New("driver timeout")

// SessionAcquisitionError reports that a session could not be opened.
type SessionAcquisitionError struct {
	Stage string
	Err   error
}

func (e *SessionAcquisitionError) Error() string {
	return fmt.Sprintf("session acquisition failed (%s): %v", e.Stage, e.Err)
}

func (e *SessionAcquisitionError) Unwrap() error {
	return e.Err
}

// Unavailable returns a Driver whose Open always fails with err. It stands
// in for a browser that could not be started, so every test still gets an
// outcome.
func Unavailable(err error) Driver {
	return unavailable{err: err}
}

type unavailable struct {
	err error
}

func (u unavailable) Open(ctx context.Context, _ Options) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("browser unavailable: %w", u.err)
}
