package dispatch

import (
	"context"

	"opsched/internal/batch"
	"opsched/internal/cache"
	"opsched/internal/op"
)

// #region batch

// batchExec adapts the scheduler to the batch runner's executor shape.
type batchExec struct {
	s *Scheduler
}

func (b batchExec) Run(ctx context.Context, o op.Operation, ectx op.ExecutionContext) (op.ExecutionResult, error) {
	return b.s.Execute(ctx, o, &ectx)
}

// ExecuteBatch plans the group and runs it, returning the plan alongside
// one result per operation in plan order.
func (s *Scheduler) ExecuteBatch(ctx context.Context, ops []op.Operation, override *op.ExecutionContext) (batch.Plan, []op.ExecutionResult, error) {
	ectx := op.MergeContext(override)
	if (override == nil || override.SystemLoad == "") && s.cfg.LoadFn != nil {
		ectx.SystemLoad = s.cfg.LoadFn()
	}

	plan := batch.BuildPlan(ops, ectx)
	runner := batch.NewRunner(batchExec{s: s}, s.cfg.OnProgress)
	results, err := runner.Execute(ctx, plan, ectx)
	return plan, results, err
}

// #endregion

// #region status

// Status is a point-in-time view of the scheduler.
type Status struct {
	ActiveOperations int
	QueuedOperations int
	PendingOutcomes  int
	SystemLoad       op.SystemLoad
	Cache            cache.Stats
	Recommendations  []string
}

// Status reports what the scheduler is doing and what the recent
// history suggests changing.
func (s *Scheduler) Status() Status {
	st := Status{
		ActiveOperations: s.ActiveCount(),
		QueuedOperations: s.deferred.Len(),
		PendingOutcomes:  s.cfg.Learner.PendingCount(),
		SystemLoad:       op.LoadMedium,
		Recommendations:  s.cfg.Learner.Recommendations(),
	}
	if s.cfg.LoadFn != nil {
		st.SystemLoad = s.cfg.LoadFn()
	}
	if s.cfg.Cache != nil {
		st.Cache = s.cfg.Cache.Stats()
	}
	return st
}

// #endregion
