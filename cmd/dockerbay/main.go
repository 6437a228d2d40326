package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess          = 0
	ExitConfigError      = 1
	ExitTemplateError    = 2
	ExitDockerError      = 3
	ExitEnvironmentError = 4
	ExitCommandNotRun    = 127
)

// CommandError carries the exit code a failed command should end the
// process with.
type CommandError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *CommandError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: exit code %d", e.Op, e.ExitCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(newApp())
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			// A wrapped command that failed on its own has said enough.
			if cmdErr.Err != nil {
				fmt.Fprintf(os.Stderr, "dockerbay: %v\n", cmdErr)
			}
			return cmdErr.ExitCode
		}
		fmt.Fprintf(os.Stderr, "dockerbay: %v\n", err)
		return ExitConfigError
	}
	return ExitSuccess
}
