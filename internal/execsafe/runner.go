package execsafe

// #region imports
import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/kballard/go-shellquote"
)

// #endregion

// #region runner

// Runner turns operation command strings into subprocesses. The caller's
// context carries the timeout; a killed-by-deadline process surfaces as
// the context error, which the safe executor classifies.
type Runner struct {
	// Dir is the working directory for spawned commands, "" = inherit.
	Dir string
}

// #endregion

// #region run

// Run executes a command to completion and returns combined output.
// Used by the immediate and safe-mode strategies.
func (r *Runner) Run(ctx context.Context, command string) (string, error) {
	cmd, err := r.build(ctx, command)
	if err != nil {
		return "", err
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), r.classify(ctx, command, err, string(out))
	}
	return string(out), nil
}

// #endregion

// #region run-captured

// RunCaptured executes a command with stdout and stderr captured
// separately. Used by the optimized strategy's managed subprocess.
func (r *Runner) RunCaptured(ctx context.Context, command string) (stdout, stderr string, err error) {
	cmd, err := r.build(ctx, command)
	if err != nil {
		return "", "", err
	}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	stdout, stderr = outBuf.String(), errBuf.String()
	if runErr != nil {
		return stdout, stderr, r.classify(ctx, command, runErr, stderr)
	}
	return stdout, stderr, nil
}

// #endregion

// #region run-streaming

// RunStreaming executes a command with output wired straight to the
// terminal, no capture. Used by the user-guided strategy.
func (r *Runner) RunStreaming(ctx context.Context, command string) error {
	cmd, err := r.build(ctx, command)
	if err != nil {
		return err
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if runErr := cmd.Run(); runErr != nil {
		return r.classify(ctx, command, runErr, "")
	}
	return nil
}

// #endregion

// #region helpers

// build parses the command string into argv and prepares the subprocess.
func (r *Runner) build(ctx context.Context, command string) (*exec.Cmd, error) {
	argv, err := shellquote.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.Dir
	return cmd, nil
}

// classify maps a subprocess failure to the error taxonomy. Context
// expiry is returned as the context error so the safe executor sees the
// timeout; everything else becomes an ExecutionError.
func (r *Runner) classify(ctx context.Context, command string, runErr error, stderr string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		return &ExecutionError{Command: command, ExitCode: exitErr.ExitCode(), Stderr: stderr}
	}
	return fmt.Errorf("run %q: %w", command, runErr)
}

// #endregion
