package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"opsched/internal/op"
)

func mkOp(id string, typ op.OperationType, prio op.Priority) op.Operation {
	return op.Operation{ID: id, Name: id, Type: typ, Priority: prio, Command: "true"}
}

func TestBuildPlanModes(t *testing.T) {
	cases := []struct {
		name     string
		ops      []op.Operation
		load     op.SystemLoad
		wantMode Mode
		wantEst  time.Duration
	}{
		{
			name:     "all low risk runs parallel",
			ops:      []op.Operation{mkOp("a", op.TypeLint, op.PriorityP2), mkOp("b", op.TypeTest, op.PriorityP1)},
			load:     op.LoadLow,
			wantMode: ModeParallel,
			wantEst:  30 * time.Second,
		},
		{
			name:     "critical priority forces sequential",
			ops:      []op.Operation{mkOp("a", op.TypeLint, op.PriorityP0), mkOp("b", op.TypeTest, op.PriorityP2)},
			load:     op.LoadLow,
			wantMode: ModeSequential,
			wantEst:  60 * time.Second,
		},
		{
			name:     "high load forces sequential",
			ops:      []op.Operation{mkOp("a", op.TypeLint, op.PriorityP2)},
			load:     op.LoadHigh,
			wantMode: ModeSequential,
			wantEst:  30 * time.Second,
		},
		{
			name:     "resource-heavy type goes hybrid",
			ops:      []op.Operation{mkOp("a", op.TypeBuild, op.PriorityP1), mkOp("b", op.TypeLint, op.PriorityP2)},
			load:     op.LoadLow,
			wantMode: ModeHybrid,
			wantEst:  40 * time.Second,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ectx := op.DefaultContext()
			ectx.SystemLoad = tc.load
			plan := BuildPlan(tc.ops, ectx)
			if plan.Mode != tc.wantMode {
				t.Errorf("mode = %s, want %s", plan.Mode, tc.wantMode)
			}
			if plan.EstimatedDuration != tc.wantEst {
				t.Errorf("estimate = %v, want %v", plan.EstimatedDuration, tc.wantEst)
			}
		})
	}
}

func TestBuildPlanOrdersByPriorityStable(t *testing.T) {
	ops := []op.Operation{
		mkOp("low-1", op.TypeLint, op.PriorityP2),
		mkOp("crit", op.TypeTest, op.PriorityP0),
		mkOp("low-2", op.TypeLint, op.PriorityP2),
		mkOp("mid", op.TypeAnalysis, op.PriorityP1),
	}
	plan := BuildPlan(ops, op.DefaultContext())

	want := []string{"crit", "mid", "low-1", "low-2"}
	for i, o := range plan.Ordered {
		if o.ID != want[i] {
			t.Fatalf("order[%d] = %s, want %s (full: %+v)", i, o.ID, want[i], plan.Ordered)
		}
	}
}

// fakeExec records calls and fails configured operation IDs.
type fakeExec struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeExec) Run(ctx context.Context, o op.Operation, ectx op.ExecutionContext) (op.ExecutionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, o.Name)
	f.mu.Unlock()
	if f.fail[o.Name] {
		return op.ExecutionResult{}, errors.New("command exited 1")
	}
	id := o.ID
	if id == "" {
		// The dispatcher assigns IDs to ID-less operations at run time.
		id = "assigned-" + o.Name
	}
	return op.ExecutionResult{OperationID: id, Success: true}, nil
}

func TestSequentialRunsInOrderAndContinuesPastFailure(t *testing.T) {
	exec := &fakeExec{fail: map[string]bool{"b": true}}
	r := NewRunner(exec, nil)

	ops := []op.Operation{
		mkOp("a", op.TypeLint, op.PriorityP0),
		mkOp("b", op.TypeTest, op.PriorityP1),
		mkOp("c", op.TypeLint, op.PriorityP2),
	}
	plan := BuildPlan(ops, op.DefaultContext())
	results, err := r.Execute(context.Background(), plan, op.DefaultContext())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].OperationID != "a" || !results[0].Success {
		t.Errorf("slot 0 = %+v", results[0])
	}
	if results[1].OperationID != "b" || results[1].Success || results[1].Error == "" {
		t.Errorf("failed slot = %+v, want folded failure", results[1])
	}
	if results[2].OperationID != "c" || !results[2].Success {
		t.Errorf("operation after failure did not run: %+v", results[2])
	}
}

func TestParallelFailureDoesNotCancelSiblings(t *testing.T) {
	exec := &fakeExec{fail: map[string]bool{"b": true}}
	r := NewRunner(exec, nil)

	ops := []op.Operation{
		mkOp("a", op.TypeLint, op.PriorityP2),
		mkOp("b", op.TypeTest, op.PriorityP2),
		mkOp("c", op.TypeAnalysis, op.PriorityP2),
	}
	plan := BuildPlan(ops, op.DefaultContext())
	if plan.Mode != ModeParallel {
		t.Fatalf("precondition: expected parallel, got %s", plan.Mode)
	}

	results, err := r.Execute(context.Background(), plan, op.DefaultContext())
	if err != nil {
		t.Fatal(err)
	}
	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		}
	}
	if succeeded != 2 {
		t.Errorf("%d siblings succeeded, want 2 (one deliberate failure)", succeeded)
	}
	if len(exec.calls) != 3 {
		t.Errorf("executor saw %d calls, want 3", len(exec.calls))
	}
}

func TestHybridRunsCriticalHeadFirst(t *testing.T) {
	exec := &fakeExec{}
	r := NewRunner(exec, nil)

	// BuildPlan routes any P0 batch to sequential, so a hybrid plan with
	// a critical head only arises from a hand-built plan.
	plan := Plan{
		Ordered: []op.Operation{
			mkOp("crit", op.TypeTest, op.PriorityP0),
			mkOp("build", op.TypeBuild, op.PriorityP1),
			mkOp("lint", op.TypeLint, op.PriorityP2),
		},
		Mode: ModeHybrid,
	}

	results, err := r.Execute(context.Background(), plan, op.DefaultContext())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, o := range plan.Ordered {
		if results[i].OperationID != o.ID {
			t.Errorf("result slot %d = %s, want plan order %s", i, results[i].OperationID, o.ID)
		}
	}
	if exec.calls[0] != "crit" {
		t.Errorf("critical operation ran %v, want crit first", exec.calls)
	}
}

func TestHybridWithoutCriticalRunsAllConcurrently(t *testing.T) {
	exec := &fakeExec{}
	r := NewRunner(exec, nil)

	ops := []op.Operation{
		mkOp("build", op.TypeBuild, op.PriorityP1),
		mkOp("lint", op.TypeLint, op.PriorityP2),
	}
	plan := BuildPlan(ops, op.DefaultContext())
	if plan.Mode != ModeHybrid {
		t.Fatalf("precondition: expected hybrid, got %s", plan.Mode)
	}

	results, err := r.Execute(context.Background(), plan, op.DefaultContext())
	if err != nil {
		t.Fatal(err)
	}
	for i, o := range plan.Ordered {
		if results[i].OperationID != o.ID || !results[i].Success {
			t.Errorf("result slot %d = %+v, want success for %s", i, results[i], o.ID)
		}
	}
}

func TestHybridPlacesResultsWithoutIDs(t *testing.T) {
	exec := &fakeExec{}
	r := NewRunner(exec, nil)

	ops := []op.Operation{
		{Name: "build", Type: op.TypeBuild, Priority: op.PriorityP1, Command: "true"},
		{Name: "lint", Type: op.TypeLint, Priority: op.PriorityP2, Command: "true"},
	}
	plan := BuildPlan(ops, op.DefaultContext())
	if plan.Mode != ModeHybrid {
		t.Fatalf("precondition: expected hybrid, got %s", plan.Mode)
	}

	results, err := r.Execute(context.Background(), plan, op.DefaultContext())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for i := range results {
		if !results[i].Success || results[i].OperationID == "" {
			t.Errorf("slot %d = %+v, want a populated success", i, results[i])
		}
	}
}

// concurrencyExec tracks peak simultaneous Run calls.
type concurrencyExec struct {
	mu     sync.Mutex
	active int
	peak   int
}

func (c *concurrencyExec) Run(ctx context.Context, o op.Operation, ectx op.ExecutionContext) (op.ExecutionResult, error) {
	c.mu.Lock()
	c.active++
	if c.active > c.peak {
		c.peak = c.active
	}
	c.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	c.mu.Lock()
	c.active--
	c.mu.Unlock()
	return op.ExecutionResult{OperationID: o.ID, Success: true}, nil
}

func TestParallelFanOutIsBounded(t *testing.T) {
	exec := &concurrencyExec{}
	r := NewRunner(exec, nil)

	var ops []op.Operation
	for i := 0; i < 10; i++ {
		ops = append(ops, mkOp(fmt.Sprintf("op-%d", i), op.TypeLint, op.PriorityP2))
	}
	plan := BuildPlan(ops, op.DefaultContext())
	if plan.Mode != ModeParallel {
		t.Fatalf("precondition: expected parallel, got %s", plan.Mode)
	}

	results, err := r.Execute(context.Background(), plan, op.DefaultContext())
	if err != nil {
		t.Fatal(err)
	}
	for i, res := range results {
		if !res.Success {
			t.Errorf("slot %d = %+v, want success", i, res)
		}
	}
	if exec.peak > maxParallel {
		t.Errorf("peak concurrency %d exceeds limit %d", exec.peak, maxParallel)
	}
}

func TestSequentialProgressFractions(t *testing.T) {
	exec := &fakeExec{}
	var fractions []float64
	r := NewRunner(exec, func(p op.Progress) { fractions = append(fractions, p.Fraction) })

	ops := []op.Operation{
		mkOp("a", op.TypeLint, op.PriorityP0),
		mkOp("b", op.TypeTest, op.PriorityP0),
	}
	plan := BuildPlan(ops, op.DefaultContext())
	if _, err := r.Execute(context.Background(), plan, op.DefaultContext()); err != nil {
		t.Fatal(err)
	}
	if len(fractions) != 2 || fractions[0] != 0.5 || fractions[1] != 1.0 {
		t.Errorf("fractions %v, want [0.5 1.0]", fractions)
	}
}

func TestCancelledContextStopsSequentialBatch(t *testing.T) {
	exec := &fakeExec{}
	r := NewRunner(exec, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ops := []op.Operation{mkOp("a", op.TypeLint, op.PriorityP0)}
	plan := BuildPlan(ops, op.DefaultContext())
	if _, err := r.Execute(ctx, plan, op.DefaultContext()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
