package batch

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	"opsched/internal/op"
)

// #region runner

// Executor runs one already-decided operation. Implemented by the
// dispatch layer; narrowed to an interface here so batches can be
// tested without a full scheduler.
type Executor interface {
	Run(ctx context.Context, o op.Operation, ectx op.ExecutionContext) (op.ExecutionResult, error)
}

// Runner executes a Plan through an Executor.
type Runner struct {
	exec       Executor
	onProgress func(op.Progress)
}

// NewRunner builds a runner. onProgress may be nil.
func NewRunner(exec Executor, onProgress func(op.Progress)) *Runner {
	return &Runner{exec: exec, onProgress: onProgress}
}

// #endregion

// #region execute

// Execute runs every operation in the plan and returns one result per
// operation, in plan order. A failed operation never cancels its
// siblings: failures are folded into their result slot and the batch
// runs to completion. The only returned error is context cancellation.
func (r *Runner) Execute(ctx context.Context, plan Plan, ectx op.ExecutionContext) ([]op.ExecutionResult, error) {
	log.Printf("[BATCH] %d operations, mode=%s (%s), estimated %v",
		len(plan.Ordered), plan.Mode, plan.Reason, plan.EstimatedDuration)

	switch plan.Mode {
	case ModeParallel:
		return r.runParallel(ctx, plan.Ordered, ectx)
	case ModeHybrid:
		return r.runHybrid(ctx, plan, ectx)
	default:
		return r.runSequential(ctx, plan.Ordered, ectx)
	}
}

func (r *Runner) runSequential(ctx context.Context, ops []op.Operation, ectx op.ExecutionContext) ([]op.ExecutionResult, error) {
	results := make([]op.ExecutionResult, 0, len(ops))
	for i, o := range ops {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, r.runOne(ctx, o, ectx))
		r.progress(o.ID, float64(i+1)/float64(len(ops)))
	}
	return results, nil
}

// maxParallel bounds batch fan-out so a wide batch cannot swamp the host.
const maxParallel = 4

func (r *Runner) runParallel(ctx context.Context, ops []op.Operation, ectx op.ExecutionContext) ([]op.ExecutionResult, error) {
	results := make([]op.ExecutionResult, len(ops))
	var g errgroup.Group
	g.SetLimit(maxParallel)
	for i, o := range ops {
		i, o := i, o
		g.Go(func() error {
			results[i] = r.runOne(ctx, o, ectx)
			r.progress(o.ID, 0)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

// runHybrid runs the critical-priority operations sequentially first,
// then fans out the remainder. The plan is priority-ordered, so the
// critical head is a prefix; results land by plan index, never by
// operation ID, which the dispatcher may assign only at execution time.
func (r *Runner) runHybrid(ctx context.Context, plan Plan, ectx op.ExecutionContext) ([]op.ExecutionResult, error) {
	split := 0
	for split < len(plan.Ordered) && plan.Ordered[split].Priority == op.PriorityP0 {
		split++
	}

	results, err := r.runSequential(ctx, plan.Ordered[:split], ectx)
	if err != nil {
		return results, err
	}
	tail, err := r.runParallel(ctx, plan.Ordered[split:], ectx)
	return append(results, tail...), err
}

// runOne folds an execution error into a failed result so the batch
// keeps its one-slot-per-operation shape.
func (r *Runner) runOne(ctx context.Context, o op.Operation, ectx op.ExecutionContext) op.ExecutionResult {
	result, err := r.exec.Run(ctx, o, ectx)
	if err != nil {
		log.Printf("[BATCH] %s failed: %v", o.Name, err)
		return op.ExecutionResult{
			OperationID: o.ID,
			Success:     false,
			Error:       err.Error(),
		}
	}
	return result
}

func (r *Runner) progress(operationID string, fraction float64) {
	if r.onProgress == nil {
		return
	}
	r.onProgress(op.Progress{
		OperationID: operationID,
		Stage:       op.StageCompleted,
		Message:     "batch slot finished",
		Fraction:    fraction,
	})
}

// #endregion
