// Package artifact decides which diagnostic artifacts survive a test and
// where they live on disk.
package artifact

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/entrhq/uiharness/pkg/config"
	"github.com/entrhq/uiharness/pkg/model"
)

// File names inside a test's artifact directory. Videos keep the name the
// driver generated.
const (
	ScreenshotFile = "screenshot.png"
	TraceFile      = "trace.zip"
	ConsoleLogFile = "console-errors.txt"
)

// Decide reports whether an artifact of the given kind is kept. It is a pure
// function of mode and result. Console logs ignore mode and are only kept
// for unsuccessful tests.
func Decide(kind model.ArtifactKind, mode config.Mode, result model.Result) bool {
	if kind == model.KindConsoleLog {
		mode = config.ModeOnFailure
	}
	switch mode {
	case config.ModeOn:
		return true
	case config.ModeOnFailure:
		return result.Unsuccessful()
	default:
		return false
	}
}

// Policy binds the configured modes to an artifacts root.
type Policy struct {
	Root       string
	Screenshot config.Mode
	Trace      config.Mode
	Video      config.Mode
}

// NewPolicy builds the policy from a resolved run configuration.
func NewPolicy(cfg config.RunConfig) Policy {
	return Policy{
		Root:       cfg.ArtifactsDir,
		Screenshot: cfg.Screenshot,
		Trace:      cfg.Trace,
		Video:      cfg.Video,
	}
}

// ModeFor returns the configured mode for a kind.
func (p Policy) ModeFor(kind model.ArtifactKind) config.Mode {
	switch kind {
	case model.KindScreenshot:
		return p.Screenshot
	case model.KindTrace:
		return p.Trace
	case model.KindVideo:
		return p.Video
	default:
		return config.ModeOnFailure
	}
}

// Keep applies Decide with the configured mode for kind.
func (p Policy) Keep(kind model.ArtifactKind, result model.Result) bool {
	return Decide(kind, p.ModeFor(kind), result)
}

// Captures reports whether the kind has to be captured at all. Anything
// other than off must be recorded up front because the outcome is not
// known yet.
func (p Policy) Captures(kind model.ArtifactKind) bool {
	return p.ModeFor(kind) != config.ModeOff
}

// Dir returns the artifact directory of one attempt of a test. Retries get
// their own "-retryN" sibling so they never overwrite an earlier attempt.
func (p Policy) Dir(testID string, attempt int) string {
	name := Slug(testID)
	if attempt > 0 {
		name = fmt.Sprintf("%s-retry%d", name, attempt)
	}
	return filepath.Join(p.Root, name)
}

// Path returns the destination of a fixed-name artifact kind. Video has no
// fixed name and returns an error.
func (p Policy) Path(testID string, attempt int, kind model.ArtifactKind) (string, error) {
	var name string
	switch kind {
	case model.KindScreenshot:
		name = ScreenshotFile
	case model.KindTrace:
		name = TraceFile
	case model.KindConsoleLog:
		name = ConsoleLogFile
	default:
		return "", fmt.Errorf("artifact kind %s has no fixed file name", kind)
	}
	return filepath.Join(p.Dir(testID, attempt), name), nil
}

var unsafeChars = regexp.MustCompile(`[^\w.-]+`)

// Slug turns a test identifier into a filesystem-safe directory name.
func Slug(testID string) string {
	s := unsafeChars.ReplaceAllString(testID, "__")
	s = strings.Trim(s, "._")
	if s == "" {
		return "test"
	}
	return s
}
