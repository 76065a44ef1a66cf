// Package execsafe is the shared timeout/retry/loop-detection layer used
// by every strategy that touches a real subprocess. Only timeouts are
// retried; all other failures propagate immediately.
package execsafe

// #region imports
import (
	"fmt"
	"time"

	"opsched/internal/op"
)

// #endregion

// #region timeout-error

// TimeoutError reports that one attempt exceeded its policy timeout.
type TimeoutError struct {
	Type    op.OperationType
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation type %q timed out after %v", e.Type, e.Timeout)
}

// #endregion

// #region execution-error

// ExecutionError reports a subprocess that ran and failed.
type ExecutionError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExecutionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("command %q exited %d: %s", e.Command, e.ExitCode, firstLine(e.Stderr))
	}
	return fmt.Sprintf("command %q exited %d", e.Command, e.ExitCode)
}

// #endregion

// #region options

// Options configures one safe execution.
type Options struct {
	Type       op.OperationType
	MaxRetries int
	RetryDelay time.Duration // base delay; attempt n waits n × RetryDelay
	OnTimeout  func(TimeoutError)
	OnRetry    func(attempt int)
}

// #endregion

// #region collaborators

// TimeoutPolicy resolves the per-attempt timeout for an operation type.
type TimeoutPolicy interface {
	Timeout(typ op.OperationType) (time.Duration, error)
}

// Notifier receives timeout notifications.
type Notifier interface {
	NotifyTimeout(err TimeoutError)
}

// LoopDetector tracks liveness checkpoints per operation id.
type LoopDetector interface {
	Checkpoint(operationID string)
	Reset(operationID string)
}

// #endregion

// #region helpers

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

// #endregion
