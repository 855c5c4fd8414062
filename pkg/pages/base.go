// Package pages holds page objects for the applications under test. Page
// objects keep selectors and waiting behavior out of test bodies.
package pages

import (
	"errors"
	"strings"

	"github.com/entrhq/uiharness/pkg/driver"
)

// BasePage carries the page and base URL shared by every page object.
type BasePage struct {
	Page    driver.Page
	BaseURL string
}

// Goto opens path under the base URL. A navigation timeout is retried once;
// the demo site is occasionally slow to answer.
func (b BasePage) Goto(path string) error {
	url := joinURL(b.BaseURL, path)
	err := b.Page.Navigate(url)
	if errors.Is(err, driver.ErrTimeout) {
		err = b.Page.Navigate(url)
	}
	return err
}

// ExpectVisible waits for selector to become visible.
func (b BasePage) ExpectVisible(selector string) error {
	return b.Page.ExpectVisible(selector)
}

func joinURL(base, path string) string {
	if path == "" {
		return base
	}
	if strings.HasSuffix(base, "/") && strings.HasPrefix(path, "/") {
		return base + strings.TrimPrefix(path, "/")
	}
	return base + path
}
