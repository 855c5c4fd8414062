// Package main provides uiharness, a browser-based UI test runner for CI.
//
// It resolves the run configuration from flags, environment, an optional
// .env file and an optional YAML run file, runs the built-in TodoMVC suite
// in Playwright and writes artifacts, metrics and results.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.1.0"

// Exit codes.
const (
	exitOK          = 0
	exitTestsFailed = 1
	exitConfigError = 2
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	// First signal stops scheduling new tests; running tests are torn down
	// normally so their artifacts survive.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nStopping after running tests finish...")
		cancel()
	}()

	code := execute(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

func execute(ctx context.Context, args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintln(os.Stderr, exit.err)
		}
		return exit.code
	}
	fmt.Fprintln(os.Stderr, err)
	return exitConfigError
}
