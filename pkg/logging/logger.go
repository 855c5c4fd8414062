// Package logging configures the structured run logger.
//
// Every run gets a run ID. Log lines are one JSON object each, written to
// stderr and, when a log file is configured, appended to that file as well.
// If the file cannot be opened the logger falls back to stderr only and
// returns the error so the caller can report it.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus logger bound to one run.
type Logger struct {
	*logrus.Entry

	runID     string
	file      *os.File
	logPath   string
	closeOnce sync.Once
}

// Options configures a new Logger.
type Options struct {
	// Level is a logrus level name. Empty means info.
	Level string
	// File is an optional path the log is appended to.
	File string
	// Output overrides stderr. Used by tests.
	Output io.Writer
}

// NewLogger creates the run logger. The returned logger is always usable,
// even when err reports a failed log file.
func NewLogger(opts Options) (*Logger, error) {
	base := logrus.New()
	base.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "ts",
			logrus.FieldKeyMsg:  "message",
		},
	})

	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	base.SetLevel(level)

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	base.SetOutput(out)

	runID := uuid.New().String()
	l := &Logger{
		Entry: base.WithField("run_id", runID),
		runID: runID,
	}

	if opts.File == "" {
		return l, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0750); err != nil {
		l.WithError(err).Warn("log_file_unavailable")
		return l, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		l.WithError(err).Warn("log_file_unavailable")
		return l, fmt.Errorf("failed to open log file: %w", err)
	}

	base.SetOutput(io.MultiWriter(out, file))
	l.file = file
	l.logPath = opts.File
	return l, nil
}

// Discard returns a logger that drops everything. Used by tests and
// library callers that do not care about logs.
func Discard() *Logger {
	l, _ := NewLogger(Options{Output: io.Discard})
	return l
}

// RunID returns the identifier attached to every line of this run.
func (l *Logger) RunID() string {
	return l.runID
}

// LogPath returns the log file path, or "" when logging to stderr only.
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}
