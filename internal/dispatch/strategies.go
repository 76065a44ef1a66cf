package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"opsched/internal/decision"
	"opsched/internal/execsafe"
	"opsched/internal/op"
)

// #region run-strategy

// runStrategy executes the decided strategy. The returned result carries
// Output and partial telemetry; Execute fills in the rest.
func (s *Scheduler) runStrategy(ctx context.Context, o op.Operation, d decision.DecisionResult) (op.ExecutionResult, error) {
	switch d.Strategy.Execution {
	case op.StrategyImmediate:
		return s.runImmediate(ctx, o)
	case op.StrategyOptimized:
		return s.runOptimized(ctx, o, d.Strategy.Configuration)
	case op.StrategySafeMode:
		return s.runSafeMode(ctx, o)
	case op.StrategyUserGuided:
		return s.runUserGuided(ctx, o)
	default:
		return op.ExecutionResult{}, fmt.Errorf("no runner for strategy %q", d.Strategy.Execution)
	}
}

// #endregion

// #region immediate

// runImmediate is one attempt, no retries, combined output.
func (s *Scheduler) runImmediate(ctx context.Context, o op.Operation) (op.ExecutionResult, error) {
	var output string
	err := s.executor.Execute(ctx, o.ID, func(ctx context.Context) error {
		var runErr error
		output, runErr = s.runner.Run(ctx, o.Command)
		return runErr
	}, execsafe.Options{Type: o.Type, MaxRetries: 0})

	return op.ExecutionResult{Success: err == nil, Output: output}, err
}

// #endregion

// #region optimized

// runOptimized retries per the strategy configuration, keeps stdout and
// stderr apart, and checkpoints progress between attempts. Timeouts are
// retried inside the safe executor; subprocess exit failures are retried
// here with the same linear backoff, so either failure kind gets up to
// Retries+1 attempts before the last error surfaces.
func (s *Scheduler) runOptimized(ctx context.Context, o op.Operation, cfg decision.StrategyConfig) (op.ExecutionResult, error) {
	var stdout, stderr string
	progress := 0
	retryDelay := s.cfg.Policy.RetryDelay(o.Type)

	attempt := func() error {
		return s.executor.ExecuteWithLoopDetection(ctx, o.ID,
			func(ctx context.Context, checkpoint func()) error {
				var runErr error
				stdout, stderr, runErr = s.runner.RunCaptured(ctx, o.Command)
				if runErr == nil {
					checkpoint()
				}
				return runErr
			},
			execsafe.Options{
				Type:       o.Type,
				MaxRetries: cfg.Retries,
				RetryDelay: retryDelay,
				OnRetry: func(n int) {
					progress++
					s.emit(o.ID, op.StageRetry, fmt.Sprintf("retrying after timeout, attempt %d", n+1), 0)
				},
			})
	}

	err := attempt()
	for n := 1; n <= cfg.Retries; n++ {
		var execErr *execsafe.ExecutionError
		if !errors.As(err, &execErr) {
			break
		}
		progress++
		s.emit(o.ID, op.StageRetry, fmt.Sprintf("retrying after exit %d, attempt %d", execErr.ExitCode, n+1), 0)
		select {
		case <-time.After(retryDelay * time.Duration(n)):
		case <-ctx.Done():
			return op.ExecutionResult{}, ctx.Err()
		}
		err = attempt()
	}

	result := op.ExecutionResult{Success: err == nil, Output: stdout}
	result.UserInteraction.ProgressUpdates = progress
	if err != nil && stderr != "" {
		result.Output = stdout + stderr
	}
	return result, err
}

// #endregion

// #region safe-mode

// runSafeMode asks the guard before touching the shell, then makes a
// single attempt under the full policy timeout. No retries: if the
// careful path fails, a human should look at it.
func (s *Scheduler) runSafeMode(ctx context.Context, o op.Operation) (op.ExecutionResult, error) {
	if s.cfg.Guard != nil {
		verdict := s.cfg.Guard.CanExecuteAutomation(o.Command)
		if !verdict.Allowed {
			return op.ExecutionResult{}, &ApprovalDeniedError{
				OperationID:    o.ID,
				Recommendation: decision.Reject,
				Reason:         fmt.Sprintf("command vetoed: %s", verdict.Reason),
			}
		}
	}

	var output string
	err := s.executor.Execute(ctx, o.ID, func(ctx context.Context) error {
		var runErr error
		output, runErr = s.runner.Run(ctx, o.Command)
		return runErr
	}, execsafe.Options{Type: o.Type, MaxRetries: 0})

	return op.ExecutionResult{Success: err == nil, Output: output}, err
}

// #endregion

// #region user-guided

// Satisfaction reported for user-guided runs, on the 0–1 scale.
const (
	satisfactionGuidedOK     = 0.9
	satisfactionGuidedFailed = 0.3
)

// runUserGuided confirms with the user and then streams the command to
// the terminal with no timeout: the run is bounded by the human, not
// the policy.
func (s *Scheduler) runUserGuided(ctx context.Context, o op.Operation) (op.ExecutionResult, error) {
	approvals := 0
	if s.cfg.Approver != nil {
		approvals++
		ok, err := s.cfg.Approver.Confirm(ctx, fmt.Sprintf("run %s (%s)?", o.Name, o.Command))
		if err != nil {
			return op.ExecutionResult{}, fmt.Errorf("confirm %s: %w", o.Name, err)
		}
		if !ok {
			return op.ExecutionResult{}, &ApprovalDeniedError{
				OperationID:    o.ID,
				Recommendation: decision.RequestApproval,
				Reason:         "declined at confirmation prompt",
			}
		}
	}

	err := s.runner.RunStreaming(ctx, o.Command)

	satisfaction := satisfactionGuidedOK
	if err != nil {
		satisfaction = satisfactionGuidedFailed
	}
	result := op.ExecutionResult{Success: err == nil}
	result.UserInteraction.ApprovalsRequested = approvals
	result.UserInteraction.UserSatisfaction = &satisfaction
	return result, err
}

// #endregion
