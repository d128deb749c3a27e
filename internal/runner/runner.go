package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/oshokin/update-manager/internal/logger"
)

// Command describes one external command invocation.
type Command struct {
	// Name is the executable to run.
	Name string
	// Args are the command arguments.
	Args []string
	// Dir is the working directory for the command.
	Dir string
	// Timeout bounds the whole invocation. Zero means no limit.
	Timeout time.Duration
}

// Result captures the outcome of a finished command.
// A non-zero exit code is a normal result, not an error:
// callers decide success or failure by inspecting ExitCode.
type Result struct {
	// ExitCode is the command's exit code, or -1 when it never started.
	ExitCode int
	// Stdout is the captured standard output as text.
	Stdout string
	// Stderr is the captured standard error as text.
	Stderr string
}

// ErrTimedOut is returned when a command exceeds its timeout.
// It is the only error Run signals for a command that started.
var ErrTimedOut = errors.New("command timed out")

// Runner executes external commands with output capture.
type Runner struct{}

// New returns a command runner.
func New() *Runner {
	return &Runner{}
}

// Run executes the command and waits for it to finish.
//
// Failures to even start the command (for example, executable not found)
// are folded into a Result with ExitCode -1 and the failure text in Stderr,
// so callers handle them the same way as any failed command.
func (r *Runner) Run(ctx context.Context, command Command) (*Result, error) {
	cmdCtx := ctx

	if command.Timeout > 0 {
		var cancel context.CancelFunc

		cmdCtx, cancel = context.WithTimeout(ctx, command.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer

	//nolint:gosec // The command comes from trusted sidecar configuration, not request input.
	cmd := exec.CommandContext(cmdCtx, command.Name, command.Args...)
	cmd.Dir = command.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.DebugKV(ctx, "Running command",
		"command", command.Name,
		"args", command.Args,
		"dir", command.Dir,
		"timeout", command.Timeout)

	err := cmd.Run()

	// The context expiring kills the process, which surfaces as an exit
	// error. Check the deadline first so the timeout takes precedence.
	if cmdCtx.Err() != nil && errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s: %s", ErrTimedOut, command.Timeout, command.Name)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &Result{
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}, nil
		}

		// The command never ran: fold the failure into an inspectable result.
		return &Result{
			ExitCode: -1,
			Stdout:   stdout.String(),
			Stderr:   err.Error(),
		}, nil
	}

	return &Result{
		ExitCode: 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}
