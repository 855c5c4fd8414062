// Package config resolves the immutable run configuration shared by every
// component of a suite run.
//
// Values come from three layers plus built-in defaults. For every field the
// first layer that supplies a value wins:
//
//  1. command-line flags
//  2. environment variables (optionally seeded from a .env file)
//  3. a YAML run file
//  4. defaults
//
// Validation happens once, inside Resolve. A RunConfig is a plain value and
// is never mutated afterwards, so it can be shared by concurrent workers.
package config

import (
	"fmt"
	"time"
)

// Mode is an artifact retention mode.
type Mode string

const (
	ModeOn        Mode = "on"
	ModeOff       Mode = "off"
	ModeOnFailure Mode = "on-failure"
)

// Browser identifies the browser engine to launch.
type Browser string

const (
	BrowserChromium Browser = "chromium"
	BrowserFirefox  Browser = "firefox"
	BrowserWebKit   Browser = "webkit"
)

var (
	validModes    = []Mode{ModeOff, ModeOn, ModeOnFailure}
	validBrowsers = []Browser{BrowserChromium, BrowserFirefox, BrowserWebKit}
)

// Viewport is the browser viewport size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (v Viewport) String() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// Default values, matching the TodoMVC demo setup.
const (
	DefaultBaseURL      = "https://demo.playwright.dev/todomvc/"
	DefaultBrowser      = BrowserChromium
	DefaultHeadless     = true
	DefaultViewport     = "1280x720"
	DefaultArtifactsDir = "artifacts"
	DefaultTimeoutMS    = 10_000
	DefaultTestTimeout  = 60_000
	DefaultMode         = ModeOnFailure
	DefaultLocale       = "en-US"
	DefaultTimezoneID   = "UTC"
	DefaultWorkers      = 1
	DefaultFilter       = "**"
	DefaultLogLevel     = "info"
)

// RunConfig is the resolved configuration for one suite run.
type RunConfig struct {
	BaseURL      string
	Browser      Browser
	Headless     bool
	SlowMo       time.Duration
	Viewport     Viewport
	ArtifactsDir string

	// Timeout bounds individual driver actions and navigations.
	Timeout time.Duration
	// TestTimeout bounds a whole test body.
	TestTimeout time.Duration

	Trace      Mode
	Video      Mode
	Screenshot Mode

	Locale     string
	TimezoneID string

	// MetricsPath is the Prometheus textfile destination. Empty disables export.
	MetricsPath string
	// ResultsPath is the results.json destination. Empty disables it.
	ResultsPath string

	Workers int
	Retries int
	Filter  string

	LogLevel string
	LogFile  string
}

// Headed reports whether the browser window is visible.
func (c RunConfig) Headed() bool {
	return !c.Headless
}
