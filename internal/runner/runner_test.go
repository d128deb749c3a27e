//go:build unix

package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestRunner_Run_Success captures stdout of a zero-exit command.
func TestRunner_Run_Success(t *testing.T) {
	t.Parallel()

	result, err := New().Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "echo hello"},
		Timeout: 5 * time.Second,
	})

	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)
	require.Equal(t, "hello\n", result.Stdout)
	require.Empty(t, result.Stderr)
}

// TestRunner_Run_NonZeroExit verifies non-zero exits are results, not errors.
func TestRunner_Run_NonZeroExit(t *testing.T) {
	t.Parallel()

	result, err := New().Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "echo conflict >&2; exit 3"},
		Timeout: 5 * time.Second,
	})

	require.NoError(t, err)
	require.Equal(t, 3, result.ExitCode)
	require.Equal(t, "conflict\n", result.Stderr)
}

// TestRunner_Run_WorkingDirectory checks the command runs in the requested directory.
func TestRunner_Run_WorkingDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	result, err := New().Run(context.Background(), Command{
		Name:    "pwd",
		Dir:     dir,
		Timeout: 5 * time.Second,
	})

	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)
	require.Contains(t, result.Stdout, dir)
}

// TestRunner_Run_Timeout verifies ErrTimedOut is the only failure a started command signals.
func TestRunner_Run_Timeout(t *testing.T) {
	t.Parallel()

	start := time.Now()

	result, err := New().Run(context.Background(), Command{
		Name:    "sleep",
		Args:    []string{"30"},
		Timeout: 200 * time.Millisecond,
	})

	require.ErrorIs(t, err, ErrTimedOut)
	require.Nil(t, result)
	require.Less(t, time.Since(start), 10*time.Second)
}

// TestRunner_Run_CommandNotFound folds start failures into an inspectable result.
func TestRunner_Run_CommandNotFound(t *testing.T) {
	t.Parallel()

	result, err := New().Run(context.Background(), Command{
		Name:    "definitely-not-a-real-command-8b1f",
		Timeout: 5 * time.Second,
	})

	require.NoError(t, err)
	require.Equal(t, -1, result.ExitCode)
	require.NotEmpty(t, result.Stderr)
}
