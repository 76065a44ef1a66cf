package execsafe

// #region imports
import (
	"context"
	"errors"
	"log"
	"time"

	"opsched/internal/op"
)

// #endregion

// #region run-func

// RunFunc is one attempt of an operation. It must honor ctx cancellation;
// the executor classifies a deadline-exceeded attempt as a timeout.
type RunFunc func(ctx context.Context) error

// CheckpointRunFunc is a RunFunc that may call checkpoint() to report
// liveness to the loop detector.
type CheckpointRunFunc func(ctx context.Context, checkpoint func()) error

// #endregion

// #region executor

// Executor applies the per-type timeout and retry policy around attempts.
type Executor struct {
	policy   TimeoutPolicy
	notifier Notifier
	detector LoopDetector
}

// New creates an executor. notifier and detector may be nil.
func New(policy TimeoutPolicy, notifier Notifier, detector LoopDetector) *Executor {
	return &Executor{policy: policy, notifier: notifier, detector: detector}
}

// #endregion

// #region execute

// Execute runs one operation under the timeout/retry policy.
//
// user-input operations are awaited with no timeout: the one deliberate
// unbounded wait in the system. Every other type must have a timeout in
// the policy; a type without one is a configuration error surfaced here,
// never an unbounded run.
//
// Attempts are raced against the timeout. On timeout the notifier and
// OnTimeout hook fire, and while retries remain the executor waits
// RetryDelay times the attempt number before the next attempt,
// invoking OnRetry.
// Non-timeout errors propagate immediately without retry. Exhausting
// retries returns the last TimeoutError.
func (e *Executor) Execute(ctx context.Context, operationID string, run RunFunc, opts Options) error {
	if opts.Type == op.TypeUserInput {
		return run(ctx)
	}

	timeout, err := e.policy.Timeout(opts.Type)
	if err != nil {
		return err
	}

	var lastTimeout *TimeoutError
	for attempt := 1; attempt <= opts.MaxRetries+1; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := run(attemptCtx)
		timedOut := attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil
		cancel()

		if err == nil && !timedOut {
			return nil
		}
		if !timedOut {
			return err // non-timeout failures are not retried
		}

		terr := &TimeoutError{Type: opts.Type, Timeout: timeout}
		lastTimeout = terr
		log.Printf("[EXEC] %s: attempt %d timed out after %v", operationID, attempt, timeout)
		if e.notifier != nil {
			e.notifier.NotifyTimeout(*terr)
		}
		if opts.OnTimeout != nil {
			opts.OnTimeout(*terr)
		}

		if attempt > opts.MaxRetries {
			break
		}

		delay := opts.RetryDelay * time.Duration(attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt)
		}
	}

	return lastTimeout
}

// #endregion

// #region loop-detection

// ExecuteWithLoopDetection is Execute with a liveness checkpoint threaded
// into the attempt. On success the detector state for the operation is
// reset; on failure it is preserved for post-mortem analysis.
func (e *Executor) ExecuteWithLoopDetection(
	ctx context.Context,
	operationID string,
	run CheckpointRunFunc,
	opts Options,
) error {
	checkpoint := func() {
		if e.detector != nil {
			e.detector.Checkpoint(operationID)
		}
	}

	err := e.Execute(ctx, operationID, func(ctx context.Context) error {
		return run(ctx, checkpoint)
	}, opts)

	if err == nil && e.detector != nil {
		e.detector.Reset(operationID)
	}
	return err
}

// #endregion

// #region is-timeout

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var terr *TimeoutError
	return errors.As(err, &terr)
}

// #endregion
