// Package browser implements driver.Driver on top of Playwright.
//
// One browser process is launched per run. Every test gets its own browser
// context, so cookies and storage never leak between tests even when
// workers share the process.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/uiharness/pkg/config"
	"github.com/entrhq/uiharness/pkg/driver"
)

// Manager owns the Playwright instance and the shared browser.
type Manager struct {
	mu          sync.RWMutex
	playwright  *playwright.Playwright
	browser     playwright.Browser
	kind        config.Browser
	sessions    map[*Session]struct{}
	initialized bool
}

// LaunchOptions configures the shared browser.
type LaunchOptions struct {
	Browser  config.Browser
	Headless bool
	SlowMo   time.Duration
	// Install downloads the driver and browser binaries when missing.
	Install bool
}

// NewManager creates an uninitialized manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[*Session]struct{}),
	}
}

// Initialize starts Playwright and launches the browser. It must be called
// before Open. Calling it again is a no-op.
func (m *Manager) Initialize(opts LaunchOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	// Keep Playwright's own output away from the JSON log stream.
	runOpts := &playwright.RunOptions{
		Browsers: []string{string(opts.Browser)},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if opts.Install {
		if err := playwright.Install(runOpts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	browserType, err := selectBrowser(pw, opts.Browser)
	if err != nil {
		_ = pw.Stop()
		return err
	}

	browser, err := browserType.Launch(launchOptions(opts))
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("failed to launch %s: %w", opts.Browser, err)
	}

	m.playwright = pw
	m.browser = browser
	m.kind = opts.Browser
	m.initialized = true
	return nil
}

func selectBrowser(pw *playwright.Playwright, kind config.Browser) (playwright.BrowserType, error) {
	switch kind {
	case config.BrowserChromium, "":
		return pw.Chromium, nil
	case config.BrowserFirefox:
		return pw.Firefox, nil
	case config.BrowserWebKit:
		return pw.WebKit, nil
	default:
		return nil, fmt.Errorf("unsupported browser %q", kind)
	}
}

func launchOptions(opts LaunchOptions) playwright.BrowserTypeLaunchOptions {
	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.SlowMo > 0 {
		launch.SlowMo = playwright.Float(millis(opts.SlowMo))
	}
	return launch
}

func contextOptions(opts driver.Options) playwright.BrowserNewContextOptions {
	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.Width > 0 && opts.Height > 0 {
		ctxOpts.Viewport = &playwright.Size{Width: opts.Width, Height: opts.Height}
	}
	if opts.Locale != "" {
		ctxOpts.Locale = playwright.String(opts.Locale)
	}
	if opts.TimezoneID != "" {
		ctxOpts.TimezoneId = playwright.String(opts.TimezoneID)
	}
	if opts.VideoDir != "" {
		ctxOpts.RecordVideo = &playwright.RecordVideo{Dir: opts.VideoDir}
		if ctxOpts.Viewport != nil {
			ctxOpts.RecordVideo.Size = &playwright.Size{Width: opts.Width, Height: opts.Height}
		}
	}
	return ctxOpts
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Open creates an isolated context with a single page.
func (m *Manager) Open(ctx context.Context, opts driver.Options) (driver.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	browser := m.browser
	initialized := m.initialized
	m.mu.RUnlock()

	if !initialized {
		return nil, errors.New("browser manager not initialized")
	}

	bctx, err := browser.NewContext(contextOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	if opts.Timeout > 0 {
		bctx.SetDefaultTimeout(millis(opts.Timeout))
		bctx.SetDefaultNavigationTimeout(millis(opts.Timeout))
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	s := newSession(m, bctx, page, opts.Timeout, opts.VideoDir != "")

	m.mu.Lock()
	m.sessions[s] = struct{}{}
	m.mu.Unlock()
	return s, nil
}

func (m *Manager) forget(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, s)
}

// Kind returns the launched browser engine.
func (m *Manager) Kind() config.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.kind
}

// ActiveSessions returns the number of sessions that have not been closed.
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown closes leftover sessions, the browser and Playwright.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	// Session.Close takes the lock through forget.
	for _, s := range sessions {
		_ = s.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil
	}

	var errs []error
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if m.playwright != nil {
		if err := m.playwright.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	m.initialized = false
	m.browser = nil
	m.playwright = nil

	if len(errs) > 0 {
		return fmt.Errorf("failed to stop playwright: %v", errs)
	}
	return nil
}
