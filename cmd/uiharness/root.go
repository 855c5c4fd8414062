package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/entrhq/uiharness/pkg/artifact"
	"github.com/entrhq/uiharness/pkg/browser"
	"github.com/entrhq/uiharness/pkg/config"
	"github.com/entrhq/uiharness/pkg/driver"
	"github.com/entrhq/uiharness/pkg/logging"
	"github.com/entrhq/uiharness/pkg/report"
	"github.com/entrhq/uiharness/pkg/runner"
	"github.com/entrhq/uiharness/pkg/session"
	"github.com/entrhq/uiharness/pkg/suites/todo"
)

// flagSpec binds one string flag to a config key.
type flagSpec struct {
	name  string
	key   config.Key
	usage string
}

var stringFlags = []flagSpec{
	{"base-url", config.KeyBaseURL, "application under test (default " + config.DefaultBaseURL + ")"},
	{"browser", config.KeyBrowser, "chromium, firefox or webkit (default chromium)"},
	{"slowmo", config.KeySlowMo, "delay between browser operations in ms"},
	{"viewport", config.KeyViewport, "viewport as WIDTHxHEIGHT (default " + config.DefaultViewport + ")"},
	{"artifacts-dir", config.KeyArtifactsDir, "artifact root directory (default " + config.DefaultArtifactsDir + ")"},
	{"timeout", config.KeyTimeout, "action and navigation timeout in ms (default 10000)"},
	{"test-timeout", config.KeyTestTimeout, "per-test timeout in ms (default 60000)"},
	{"trace", config.KeyTrace, "trace retention: on, off or on-failure"},
	{"video", config.KeyVideo, "video retention: on, off or on-failure"},
	{"screenshot", config.KeyScreenshot, "screenshot retention: on, off or on-failure"},
	{"locale", config.KeyLocale, "browser locale (default " + config.DefaultLocale + ")"},
	{"timezone-id", config.KeyTimezoneID, "browser timezone (default " + config.DefaultTimezoneID + ")"},
	{"metrics-path", config.KeyMetricsPath, "Prometheus textfile destination"},
	{"results-path", config.KeyResultsPath, "results.json destination"},
	{"workers", config.KeyWorkers, "number of parallel workers (default 1)"},
	{"retries", config.KeyRetries, "retries for failed tests (default 0)"},
	{"filter", config.KeyFilter, "glob over test ids, * stays within one path segment (default **)"},
	{"log-level", config.KeyLogLevel, "debug, info, warn or error"},
	{"log-file", config.KeyLogFile, "append JSON logs to this file"},
}

// options holds the flags that are not run configuration.
type options struct {
	configFile string
	envFile    string
	install    bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "uiharness",
		Short:         "Run the browser UI suite",
		Long:          "uiharness runs the TodoMVC browser suite with Playwright and keeps traces, videos and screenshots per test.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Flags(), opts)
			if err != nil {
				return &exitError{code: exitConfigError, err: err}
			}
			return runSuite(cmd, cfg, opts)
		},
	}

	registerFlags(rootCmd.PersistentFlags(), opts)
	rootCmd.AddCommand(newListCommand(opts))
	return rootCmd
}

func newListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the test ids selected by the filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Flags(), opts)
			if err != nil {
				return &exitError{code: exitConfigError, err: err}
			}
			selected, err := runner.Select(todo.Cases(cfg.BaseURL), cfg.Filter)
			if err != nil {
				return &exitError{code: exitConfigError, err: err}
			}
			for _, c := range selected {
				fmt.Fprintln(cmd.OutOrStdout(), c.ID)
			}
			return nil
		},
	}
}

func registerFlags(fs *pflag.FlagSet, opts *options) {
	for _, f := range stringFlags {
		fs.String(f.name, "", f.usage)
	}
	fs.Bool("headless", config.DefaultHeadless, "run the browser without a window")
	fs.Bool("headed", false, "show the browser window (overrides --headless)")
	fs.StringVarP(&opts.configFile, "config", "c", "", "YAML run file")
	fs.StringVar(&opts.envFile, "env-file", ".env", "dotenv file seeded into the environment")
	fs.BoolVar(&opts.install, "install", false, "download the Playwright driver and browser first")
}

// cliValues collects the flags the operator actually set. Unset flags never
// shadow the environment or the run file.
func cliValues(fs *pflag.FlagSet) config.Values {
	values := config.Values{}
	for _, f := range stringFlags {
		if !fs.Changed(f.name) {
			continue
		}
		v, _ := fs.GetString(f.name)
		values[f.key] = v
	}
	if fs.Changed("headless") {
		v, _ := fs.GetBool("headless")
		values[config.KeyHeadless] = fmt.Sprint(v)
	}
	if fs.Changed("headed") {
		v, _ := fs.GetBool("headed")
		values[config.KeyHeadless] = fmt.Sprint(!v)
	}
	return values
}

func resolveConfig(fs *pflag.FlagSet, opts *options) (config.RunConfig, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return config.RunConfig{}, err
	}

	file, err := config.LoadFile(opts.configFile)
	if err != nil {
		return config.RunConfig{}, err
	}
	cfg, err := config.Resolve(cliValues(fs), config.EnvLookup(), file)
	if err != nil {
		return config.RunConfig{}, err
	}

	// Artifact records carry absolute paths.
	abs, err := filepath.Abs(cfg.ArtifactsDir)
	if err != nil {
		return config.RunConfig{}, &config.ConfigurationError{Field: config.KeyArtifactsDir, Value: cfg.ArtifactsDir, Reason: err.Error()}
	}
	cfg.ArtifactsDir = abs
	return cfg, nil
}

// startBrowser launches the shared browser and returns it with its
// shutdown func.
var startBrowser = func(opts browser.LaunchOptions) (driver.Driver, func() error, error) {
	mgr := browser.NewManager()
	if err := mgr.Initialize(opts); err != nil {
		return nil, nil, err
	}
	return mgr, mgr.Shutdown, nil
}

func runSuite(cmd *cobra.Command, cfg config.RunConfig, opts *options) error {
	log, err := logging.NewLogger(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if log == nil {
		return &exitError{code: exitConfigError, err: err}
	}
	defer func() { _ = log.Close() }()
	if err != nil {
		log.WithError(err).Warn("log_file_unavailable")
	}

	drv, shutdown, launchErr := startBrowser(browser.LaunchOptions{
		Browser:  cfg.Browser,
		Headless: cfg.Headless,
		SlowMo:   cfg.SlowMo,
		Install:  opts.install,
	})
	if launchErr != nil {
		// Tests still run so each one is recorded as error and the run's
		// metrics and results are written.
		log.WithFields(logrus.Fields{
			"event":   "browser_start_failed",
			"browser": string(cfg.Browser),
		}).WithError(launchErr).Error("browser_start_failed")
		drv = driver.Unavailable(launchErr)
	} else {
		defer func() {
			if err := shutdown(); err != nil {
				log.WithError(err).Warn("browser_shutdown_failed")
			}
		}()
	}

	sessions := session.NewManager(cfg, drv, artifact.NewPolicy(cfg), log)
	summary, err := runner.New(cfg, sessions, log).Run(cmd.Context(), todo.Cases(cfg.BaseURL))
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			return &exitError{code: exitConfigError, err: err}
		}
		return &exitError{code: exitTestsFailed, err: err}
	}

	if err := report.NewTerminal(os.Stdout).Render(summary.Results); err != nil {
		log.WithError(err).Warn("report_render_failed")
	}
	if summary.Failed() {
		return &exitError{code: exitTestsFailed}
	}
	return nil
}
