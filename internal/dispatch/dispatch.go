// Package dispatch is the scheduler's front door. It merges the caller's
// context, asks the decision layer for a strategy, gates risky work
// behind approval, consults the result cache, runs the operation under
// the safe executor, and feeds the outcome back into the catalog.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"opsched/internal/cache"
	"opsched/internal/catalog"
	"opsched/internal/decision"
	"opsched/internal/execsafe"
	"opsched/internal/guard"
	"opsched/internal/history"
	"opsched/internal/op"
	"opsched/internal/policy"
	"opsched/internal/queue"
)

// #region errors

// ApprovalDeniedError reports an operation refused before execution.
type ApprovalDeniedError struct {
	OperationID    string
	Recommendation decision.Recommendation
	Reason         string
}

func (e *ApprovalDeniedError) Error() string {
	return fmt.Sprintf("operation %s denied (%s): %s", e.OperationID, e.Recommendation, e.Reason)
}

// InvalidOperationError reports a malformed operation rejected up front.
type InvalidOperationError struct {
	Field string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("invalid operation: %s is required", e.Field)
}

// #endregion

// #region approver

// Approver answers approval requests for gated operations. Implemented
// by the console package; tests substitute fakes.
type Approver interface {
	// RequestApproval presents a scored request and returns the verdict.
	RequestApproval(ctx context.Context, o op.Operation, score decision.ApprovalScore) (bool, error)
	// Confirm asks a short yes/no question before a user-guided run.
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// #endregion

// #region scheduler

// Config wires the scheduler's collaborators. Catalog, Policy and
// Learner are required; the rest degrade gracefully when nil.
type Config struct {
	Catalog  *catalog.Catalog
	Policy   *policy.Policy
	Guard    *guard.Guard
	Cache    *cache.Cache
	Learner  *history.Learner
	Approver Approver
	// Notifier is told about executor timeouts. May be nil.
	Notifier execsafe.Notifier

	// Adaptive false pins every decision to the optimized strategy.
	Adaptive bool
	// WorkDir is where commands run; empty means the process cwd.
	WorkDir string
	// LoadFn supplies the system-load estimate when the caller's
	// context leaves it unset.
	LoadFn func() op.SystemLoad
	// OnProgress receives typed progress events. May be nil.
	OnProgress func(op.Progress)
}

// Scheduler decides and executes operations.
type Scheduler struct {
	cfg      Config
	selector *decision.Selector
	runner   *execsafe.Runner
	executor *execsafe.Executor
	deferred *queue.Processor

	mu     sync.Mutex
	active map[string]op.Operation
}

// New validates the configuration and builds a scheduler. The deferred
// queue starts immediately; Close stops it.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("scheduler config: catalog is required")
	}
	if cfg.Policy == nil {
		return nil, fmt.Errorf("scheduler config: policy is required")
	}
	if cfg.Learner == nil {
		return nil, fmt.Errorf("scheduler config: learner is required")
	}

	s := &Scheduler{
		cfg:      cfg,
		selector: decision.NewSelector(cfg.Catalog, cfg.Adaptive),
		runner:   &execsafe.Runner{Dir: cfg.WorkDir},
		active:   make(map[string]op.Operation),
	}
	s.executor = execsafe.New(cfg.Policy, cfg.Notifier, execsafe.NewProgressDetector())

	loadFn := cfg.LoadFn
	if loadFn == nil {
		loadFn = func() op.SystemLoad { return op.LoadMedium }
	}
	s.deferred = queue.NewProcessor(func(ctx context.Context, o op.Operation, ectx op.ExecutionContext) (op.ExecutionResult, error) {
		return s.Execute(ctx, o, &ectx)
	}, loadFn)
	s.deferred.Start(context.Background())

	return s, nil
}

// Close stops the deferred queue, failing anything still waiting in it.
func (s *Scheduler) Close() {
	s.deferred.Stop()
}

// ActiveCount reports how many operations are running right now.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// #endregion

// #region execute

// Execute runs one operation end to end. Infrastructure refusals
// (unknown type, denied approval, dropped from queue, cancellation)
// come back as errors; a command that ran and failed comes back as a
// result with Success false so callers and batches can keep going.
func (s *Scheduler) Execute(ctx context.Context, o op.Operation, override *op.ExecutionContext) (op.ExecutionResult, error) {
	if o.Name == "" {
		return op.ExecutionResult{}, &InvalidOperationError{Field: "name"}
	}
	if o.Command == "" {
		return op.ExecutionResult{}, &InvalidOperationError{Field: "command"}
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	ectx := op.MergeContext(override)
	if (override == nil || override.SystemLoad == "") && s.cfg.LoadFn != nil {
		ectx.SystemLoad = s.cfg.LoadFn()
	}

	d, err := s.selector.Decide(o, ectx)
	if err != nil {
		return op.ExecutionResult{}, err
	}
	strategy := d.Strategy.Execution
	s.emit(o.ID, op.StageDecided, fmt.Sprintf("strategy %s: %s", strategy, d.Reasoning), 0)
	log.Printf("[DISPATCH] %s (%s) → %s, forecast %v at p=%.2f",
		o.Name, o.Type, strategy, d.ExpectedOutcome.Duration, d.ExpectedOutcome.SuccessProbability)

	approvals, err := s.gate(ctx, o, ectx, &d)
	if err != nil {
		return op.ExecutionResult{}, err
	}

	// Cache consult comes before the deferred branch: a fresh cached
	// result short-circuits even when load would otherwise park the run.
	cacheable := s.cfg.Cache != nil &&
		strategy != op.StrategyUserGuided &&
		o.Type != op.TypeEvolution
	key := cache.Key(o)
	if cacheable {
		if cached, ok := s.cfg.Cache.Get(key); ok {
			s.emit(o.ID, op.StageCacheHit, "served from result cache", 1)
			cached.OperationID = o.ID
			cached.Performance.CacheHits++
			return cached, nil
		}
	}

	if strategy == op.StrategyDeferred {
		return s.parkDeferred(ctx, o)
	}

	decisionID := uuid.NewString()
	s.cfg.Learner.RecordDecision(decisionID, o, ectx, d)

	s.setActive(o, true)
	started := time.Now()
	result, runErr := s.runStrategy(ctx, o, d)
	s.setActive(o, false)

	result.OperationID = o.ID
	result.Strategy = strategy
	result.Duration = time.Since(started)
	result.UserInteraction.ApprovalsRequested += approvals

	if runErr != nil {
		if ctx.Err() != nil {
			// Cancellation is the caller's doing, not a verdict on the
			// operation; surface it without recording an outcome.
			s.cfg.Learner.Discard(decisionID)
			return result, ctx.Err()
		}
		var denied *ApprovalDeniedError
		if errors.As(runErr, &denied) {
			// Vetoed or declined before the command ran; nothing to learn.
			s.cfg.Learner.Discard(decisionID)
			return op.ExecutionResult{}, runErr
		}
		result.Success = false
		result.Error = runErr.Error()
	}

	if s.cfg.Guard != nil && o.Command != "" {
		if err := s.cfg.Guard.RecordAttempt(o.Command, result.Success, result.Duration.Milliseconds(), runErr); err != nil {
			log.Printf("[DISPATCH] record attempt: %v", err)
		}
	}
	if err := s.cfg.Learner.RecordOutcome(decisionID, result); err != nil {
		log.Printf("[DISPATCH] record outcome: %v", err)
	}

	if cacheable && result.Success {
		ttl := s.cfg.Policy.CacheTTL(o.Type)
		s.cfg.Cache.Set(key, result, ttl, s.cfg.Policy.RelevantFiles(o.Type))
	}

	s.emit(o.ID, op.StageCompleted, fmt.Sprintf("success=%v in %v", result.Success, result.Duration.Round(time.Millisecond)), 1)
	return result, nil
}

// #endregion

// #region gate

// gate scores the operation and enforces the verdict where the run is
// unattended: autonomous contexts, and strategies whose interaction
// level demands an approval. Attended runs were initiated by a human
// and only have the score attached for the record. Returns how many
// human approvals were consumed.
func (s *Scheduler) gate(ctx context.Context, o op.Operation, ectx op.ExecutionContext, d *decision.DecisionResult) (int, error) {
	profile, err := s.cfg.Catalog.Get(o.Type)
	if err != nil {
		return 0, err
	}
	score := decision.CalculateApprovalScore(o, ectx, profile, profile.Safety.RiskLevel)
	d.Approval = &score

	enforced := ectx.AutomationLevel == op.AutomationAutonomous ||
		d.Strategy.Configuration.UserInteraction == op.InteractionApproval
	if !enforced {
		if score.Recommendation != decision.AutoApprove {
			log.Printf("[DISPATCH] %s scored %.1f (%s); attended run proceeds",
				o.Name, score.TotalScore, score.Recommendation)
		}
		return 0, nil
	}

	switch score.Recommendation {
	case decision.AutoApprove:
		return 0, nil
	case decision.Reject:
		return 0, &ApprovalDeniedError{
			OperationID:    o.ID,
			Recommendation: score.Recommendation,
			Reason:         fmt.Sprintf("score %.1f below any approval path", score.TotalScore),
		}
	}

	// request-approval and require-review both need a human.
	if s.cfg.Approver == nil {
		return 0, &ApprovalDeniedError{
			OperationID:    o.ID,
			Recommendation: score.Recommendation,
			Reason:         "human approval needed but no approver available",
		}
	}

	s.emit(o.ID, op.StageApproval, fmt.Sprintf("%s (score %.1f)", score.Recommendation, score.TotalScore), 0)
	granted, err := s.cfg.Approver.RequestApproval(ctx, o, score)
	if err != nil {
		return 1, fmt.Errorf("approval request: %w", err)
	}
	if !granted {
		return 1, &ApprovalDeniedError{
			OperationID:    o.ID,
			Recommendation: score.Recommendation,
			Reason:         "declined by user",
		}
	}
	return 1, nil
}

// #endregion

// #region deferred

// parkDeferred parks the operation on the queue and blocks until it drains.
func (s *Scheduler) parkDeferred(ctx context.Context, o op.Operation) (op.ExecutionResult, error) {
	s.emit(o.ID, op.StageDeferred, "queued until system load drops", 0)
	ch := s.deferred.Enqueue(o)
	select {
	case r := <-ch:
		return r.Result, r.Err
	case <-ctx.Done():
		s.deferred.Drop(o.ID)
		return op.ExecutionResult{}, ctx.Err()
	}
}

// DropDeferred removes a queued operation before it runs.
func (s *Scheduler) DropDeferred(operationID string) bool {
	return s.deferred.Drop(operationID)
}

// #endregion

// #region helpers

func (s *Scheduler) setActive(o op.Operation, on bool) {
	s.mu.Lock()
	if on {
		s.active[o.ID] = o
	} else {
		delete(s.active, o.ID)
	}
	s.mu.Unlock()
}

func (s *Scheduler) emit(operationID string, stage op.ProgressStage, msg string, fraction float64) {
	if s.cfg.OnProgress == nil {
		return
	}
	s.cfg.OnProgress(op.Progress{
		OperationID: operationID,
		Stage:       stage,
		Message:     msg,
		Fraction:    fraction,
	})
}

// #endregion
