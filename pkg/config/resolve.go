package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"
)

// Key names one configurable field. Keys double as YAML run-file keys.
type Key string

const (
	KeyBaseURL      Key = "base_url"
	KeyBrowser      Key = "browser"
	KeyHeadless     Key = "headless"
	KeySlowMo       Key = "slowmo_ms"
	KeyViewport     Key = "viewport"
	KeyArtifactsDir Key = "artifacts_dir"
	KeyTimeout      Key = "timeout_ms"
	KeyTestTimeout  Key = "test_timeout_ms"
	KeyTrace        Key = "trace"
	KeyVideo        Key = "video"
	KeyScreenshot   Key = "screenshot"
	KeyLocale       Key = "locale"
	KeyTimezoneID   Key = "timezone_id"
	KeyMetricsPath  Key = "metrics_path"
	KeyResultsPath  Key = "results_path"
	KeyWorkers      Key = "workers"
	KeyRetries      Key = "retries"
	KeyFilter       Key = "filter"
	KeyLogLevel     Key = "log_level"
	KeyLogFile      Key = "log_file"
)

// EnvNames maps each key to its environment variable.
var EnvNames = map[Key]string{
	KeyBaseURL:      "BASE_URL",
	KeyBrowser:      "BROWSER",
	KeyHeadless:     "HEADLESS",
	KeySlowMo:       "SLOWMO_MS",
	KeyViewport:     "VIEWPORT",
	KeyArtifactsDir: "ARTIFACTS_DIR",
	KeyTimeout:      "TIMEOUT_MS",
	KeyTestTimeout:  "TEST_TIMEOUT_MS",
	KeyTrace:        "TRACE",
	KeyVideo:        "VIDEO",
	KeyScreenshot:   "SCREENSHOT",
	KeyLocale:       "LOCALE",
	KeyTimezoneID:   "TIMEZONE_ID",
	KeyMetricsPath:  "METRICS_PATH",
	KeyResultsPath:  "RESULTS_PATH",
	KeyWorkers:      "WORKERS",
	KeyRetries:      "RETRIES",
	KeyFilter:       "TEST_FILTER",
	KeyLogLevel:     "LOG_LEVEL",
	KeyLogFile:      "LOG_FILE",
}

// Values holds raw values for one configuration layer. A key that is
// present supplies a value, even when that value is invalid.
type Values map[Key]string

// Lookup reads a single environment variable. It has the os.LookupEnv shape.
type Lookup func(name string) (string, bool)

// ConfigurationError reports an invalid or malformed configuration value.
type ConfigurationError struct {
	Field  Key
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// source walks the layers for one key.
type source struct {
	cli  Values
	env  Lookup
	file Values
}

func (s source) pick(key Key) (string, bool) {
	if v, ok := s.cli[key]; ok {
		return v, true
	}
	if s.env != nil {
		if v, ok := s.env(EnvNames[key]); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v, true
			}
		}
	}
	if v, ok := s.file[key]; ok {
		return v, true
	}
	return "", false
}

func (s source) str(key Key, def string) string {
	if v, ok := s.pick(key); ok {
		return v
	}
	return def
}

// Resolve merges the layers with precedence cli > env > file > default and
// validates the result. Any layer may be nil. Paths are returned as given;
// Resolve only reads the layers it is handed.
func Resolve(cli Values, env Lookup, file Values) (RunConfig, error) {
	src := source{cli: cli, env: env, file: file}
	cfg := RunConfig{
		BaseURL:      src.str(KeyBaseURL, DefaultBaseURL),
		ArtifactsDir: src.str(KeyArtifactsDir, DefaultArtifactsDir),
		Locale:       src.str(KeyLocale, DefaultLocale),
		TimezoneID:   src.str(KeyTimezoneID, DefaultTimezoneID),
		MetricsPath:  src.str(KeyMetricsPath, ""),
		ResultsPath:  src.str(KeyResultsPath, ""),
		LogFile:      src.str(KeyLogFile, ""),
		Filter:       src.str(KeyFilter, DefaultFilter),
	}

	var err error
	if cfg.Browser, err = parseBrowser(src.str(KeyBrowser, string(DefaultBrowser))); err != nil {
		return RunConfig{}, err
	}
	if cfg.Headless, err = resolveBool(src, KeyHeadless, DefaultHeadless); err != nil {
		return RunConfig{}, err
	}
	if cfg.SlowMo, err = resolveMillis(src, KeySlowMo, 0); err != nil {
		return RunConfig{}, err
	}
	if cfg.Timeout, err = resolveMillis(src, KeyTimeout, DefaultTimeoutMS); err != nil {
		return RunConfig{}, err
	}
	if cfg.TestTimeout, err = resolveMillis(src, KeyTestTimeout, DefaultTestTimeout); err != nil {
		return RunConfig{}, err
	}
	if cfg.Viewport, err = ParseViewport(src.str(KeyViewport, DefaultViewport)); err != nil {
		return RunConfig{}, err
	}
	if cfg.Trace, err = parseMode(KeyTrace, src.str(KeyTrace, string(DefaultMode))); err != nil {
		return RunConfig{}, err
	}
	if cfg.Video, err = parseMode(KeyVideo, src.str(KeyVideo, string(DefaultMode))); err != nil {
		return RunConfig{}, err
	}
	if cfg.Screenshot, err = parseMode(KeyScreenshot, src.str(KeyScreenshot, string(DefaultMode))); err != nil {
		return RunConfig{}, err
	}
	if cfg.Workers, err = resolveInt(src, KeyWorkers, DefaultWorkers); err != nil {
		return RunConfig{}, err
	}
	if cfg.Workers == 0 {
		return RunConfig{}, &ConfigurationError{Field: KeyWorkers, Value: "0", Reason: "must be >= 1"}
	}
	if cfg.Retries, err = resolveInt(src, KeyRetries, 0); err != nil {
		return RunConfig{}, err
	}
	if _, err := glob.Compile(cfg.Filter, '/'); err != nil {
		return RunConfig{}, &ConfigurationError{Field: KeyFilter, Value: cfg.Filter, Reason: err.Error()}
	}

	cfg.LogLevel = strings.ToLower(src.str(KeyLogLevel, DefaultLogLevel))
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return RunConfig{}, &ConfigurationError{Field: KeyLogLevel, Value: cfg.LogLevel, Reason: "unknown log level"}
	}

	return cfg, nil
}

// ParseViewport parses a WIDTHxHEIGHT string such as "1280x720".
func ParseViewport(value string) (Viewport, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	widthStr, heightStr, found := strings.Cut(normalized, "x")
	if !found {
		return Viewport{}, &ConfigurationError{Field: KeyViewport, Value: value, Reason: "must be WIDTHxHEIGHT"}
	}

	width, err := parseNonNegative(KeyViewport, widthStr)
	if err != nil {
		return Viewport{}, err
	}
	height, err := parseNonNegative(KeyViewport, heightStr)
	if err != nil {
		return Viewport{}, err
	}
	if width == 0 || height == 0 {
		return Viewport{}, &ConfigurationError{Field: KeyViewport, Value: value, Reason: "dimensions must be > 0"}
	}

	return Viewport{Width: width, Height: height}, nil
}

// ParseBool accepts 1/true/yes/y/on and 0/false/no/n/off, case-insensitively.
func ParseBool(key Key, value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, &ConfigurationError{Field: key, Value: value, Reason: "not a boolean"}
}

func parseBrowser(value string) (Browser, error) {
	b := Browser(strings.ToLower(strings.TrimSpace(value)))
	for _, valid := range validBrowsers {
		if b == valid {
			return b, nil
		}
	}
	return "", &ConfigurationError{
		Field:  KeyBrowser,
		Value:  value,
		Reason: fmt.Sprintf("expected one of %v", validBrowsers),
	}
}

func parseMode(key Key, value string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(value)))
	for _, valid := range validModes {
		if m == valid {
			return m, nil
		}
	}
	return "", &ConfigurationError{
		Field:  key,
		Value:  value,
		Reason: fmt.Sprintf("expected one of %v", validModes),
	}
}

func parseNonNegative(key Key, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, &ConfigurationError{Field: key, Value: value, Reason: "not an integer"}
	}
	if n < 0 {
		return 0, &ConfigurationError{Field: key, Value: value, Reason: "must be >= 0"}
	}
	return n, nil
}

func resolveBool(src source, key Key, def bool) (bool, error) {
	v, ok := src.pick(key)
	if !ok {
		return def, nil
	}
	return ParseBool(key, v)
}

func resolveInt(src source, key Key, def int) (int, error) {
	v, ok := src.pick(key)
	if !ok {
		return def, nil
	}
	return parseNonNegative(key, v)
}

func resolveMillis(src source, key Key, def int) (time.Duration, error) {
	ms, err := resolveInt(src, key, def)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}
