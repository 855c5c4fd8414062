package browser

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/uiharness/pkg/driver"
)

// Session is one test's browser context and page. It implements
// driver.Handle.
type Session struct {
	manager *Manager
	context playwright.BrowserContext
	page    playwright.Page
	expect  playwright.PlaywrightAssertions
	// recording is set when the context was created with a video dir.
	recording bool

	mu      sync.Mutex
	console []string

	closeOnce sync.Once
	closeErr  error
}

func newSession(m *Manager, bctx playwright.BrowserContext, page playwright.Page, timeout time.Duration, recording bool) *Session {
	s := &Session{
		manager:   m,
		context:   bctx,
		page:      page,
		recording: recording,
	}
	if timeout > 0 {
		s.expect = playwright.NewPlaywrightAssertions(millis(timeout))
	} else {
		s.expect = playwright.NewPlaywrightAssertions()
	}

	page.OnConsole(func(msg playwright.ConsoleMessage) {
		if line, ok := consoleLine(msg.Type(), msg.Text()); ok {
			s.appendConsole(line)
		}
	})
	page.OnPageError(func(err error) {
		s.appendConsole(pageErrorLine(err))
	})
	return s
}

// consoleLine formats a console message. Only errors are kept.
func consoleLine(kind, text string) (string, bool) {
	if kind != "error" {
		return "", false
	}
	return "[console] " + text, true
}

func pageErrorLine(err error) string {
	return "[pageerror] " + err.Error()
}

func (s *Session) appendConsole(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.console = append(s.console, line)
}

// ConsoleErrors returns the console and page errors seen so far.
func (s *Session) ConsoleErrors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.console...)
}

// Navigate loads url and waits for DOMContentLoaded.
func (s *Session) Navigate(url string) error {
	if _, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return navigationError(err)
	}
	return nil
}

// Reload reloads the current page.
func (s *Session) Reload() error {
	if _, err := s.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return navigationError(err)
	}
	return nil
}

// navigationError marks Playwright timeouts with driver.ErrTimeout so page
// objects can retry without importing Playwright.
func navigationError(err error) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("navigation failed: %w: %w", driver.ErrTimeout, err)
	}
	return fmt.Errorf("navigation failed: %w", err)
}

// URL returns the current page URL.
func (s *Session) URL() string {
	return s.page.URL()
}

func (s *Session) locator(selector string) playwright.Locator {
	return s.page.Locator(selector)
}

func (s *Session) Click(selector string) error {
	if err := s.locator(selector).Click(); err != nil {
		return fmt.Errorf("click %s failed: %w", selector, err)
	}
	return nil
}

func (s *Session) DoubleClick(selector string) error {
	if err := s.locator(selector).Dblclick(); err != nil {
		return fmt.Errorf("double click %s failed: %w", selector, err)
	}
	return nil
}

func (s *Session) Fill(selector, value string) error {
	if err := s.locator(selector).Fill(value); err != nil {
		return fmt.Errorf("fill %s failed: %w", selector, err)
	}
	return nil
}

func (s *Session) Press(selector, key string) error {
	if err := s.locator(selector).Press(key); err != nil {
		return fmt.Errorf("press %s on %s failed: %w", key, selector, err)
	}
	return nil
}

func (s *Session) SetChecked(selector string, checked bool) error {
	if err := s.locator(selector).SetChecked(checked); err != nil {
		return fmt.Errorf("set checked %s failed: %w", selector, err)
	}
	return nil
}

func (s *Session) Hover(selector string) error {
	if err := s.locator(selector).Hover(); err != nil {
		return fmt.Errorf("hover %s failed: %w", selector, err)
	}
	return nil
}

func (s *Session) Count(selector string) (int, error) {
	return s.locator(selector).Count()
}

func (s *Session) Text(selector string) (string, error) {
	return s.locator(selector).InnerText()
}

func (s *Session) IsChecked(selector string) (bool, error) {
	return s.locator(selector).IsChecked()
}

// Expectations retry until the assertion timeout, like Playwright's expect.

func (s *Session) ExpectVisible(selector string) error {
	return s.expect.Locator(s.locator(selector)).ToBeVisible()
}

func (s *Session) ExpectCount(selector string, n int) error {
	return s.expect.Locator(s.locator(selector)).ToHaveCount(n)
}

func (s *Session) ExpectText(selector, text string) error {
	return s.expect.Locator(s.locator(selector)).ToHaveText(text)
}

func (s *Session) ExpectChecked(selector string, checked bool) error {
	return expectChecked(s.expect.Locator(s.locator(selector)), checked)
}

func expectChecked(assertions playwright.LocatorAssertions, checked bool) error {
	if checked {
		return assertions.ToBeChecked()
	}
	return assertions.Not().ToBeChecked()
}

func (s *Session) ExpectURL(pattern *regexp.Regexp) error {
	return s.expect.Page(s.page).ToHaveURL(pattern)
}

// StartTrace records screenshots, DOM snapshots and sources.
func (s *Session) StartTrace() error {
	return s.context.Tracing().Start(playwright.TracingStartOptions{
		Screenshots: playwright.Bool(true),
		Snapshots:   playwright.Bool(true),
		Sources:     playwright.Bool(true),
	})
}

// StopTrace stops tracing, writing the archive to path when it is set.
func (s *Session) StopTrace(path string) error {
	if path == "" {
		return s.context.Tracing().Stop()
	}
	return s.context.Tracing().Stop(path)
}

// Screenshot writes a full-page screenshot to path.
func (s *Session) Screenshot(path string) error {
	_, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return err
}

// VideoPath returns the recording's destination, or "" when the context
// does not record video.
func (s *Session) VideoPath() (string, error) {
	if !s.recording {
		return "", nil
	}
	video := s.page.Video()
	if video == nil {
		return "", nil
	}
	return video.Path()
}

// Close closes the page and its context. Playwright finishes writing the
// video when the context closes.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		_ = s.page.Close()
		s.closeErr = s.context.Close()
		s.manager.forget(s)
	})
	return s.closeErr
}
