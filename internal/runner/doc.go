// Package runner executes external commands with a working directory,
// a timeout and text capture of both output streams.
//
// Non-zero exits are normal, inspectable results. The only error a started
// command can produce is ErrTimedOut; commands that never start are folded
// into a Result with ExitCode -1.
package runner
