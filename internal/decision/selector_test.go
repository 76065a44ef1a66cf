package decision

import (
	"testing"

	"opsched/internal/catalog"
	"opsched/internal/op"
)

func testOperation(typ op.OperationType) op.Operation {
	return op.Operation{
		ID:       "op-1",
		Name:     "check",
		Type:     typ,
		Command:  "true",
		Priority: op.PriorityP1,
	}
}

func TestGenerateCandidatesConditional(t *testing.T) {
	tests := []struct {
		name        string
		ctx         op.ExecutionContext
		wantCount   int
		wantGuided  bool
		wantDefer   bool
	}{
		{"baseline", op.ExecutionContext{SystemLoad: op.LoadMedium}, 3, false, false},
		{"user-present", op.ExecutionContext{UserPresent: true, SystemLoad: op.LoadMedium}, 4, true, false},
		{"high-load", op.ExecutionContext{SystemLoad: op.LoadHigh}, 4, false, true},
		{"both", op.ExecutionContext{UserPresent: true, SystemLoad: op.LoadHigh}, 5, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cands := GenerateCandidates(tt.ctx)
			if len(cands) != tt.wantCount {
				t.Fatalf("got %d candidates, want %d", len(cands), tt.wantCount)
			}
			// Fixed generation order is the tie-break: immediate, optimized,
			// safe-mode, then the conditionals.
			if cands[0].Execution != op.StrategyImmediate ||
				cands[1].Execution != op.StrategyOptimized ||
				cands[2].Execution != op.StrategySafeMode {
				t.Errorf("unexpected leading order: %v, %v, %v",
					cands[0].Execution, cands[1].Execution, cands[2].Execution)
			}
			hasGuided, hasDefer := false, false
			for _, c := range cands {
				switch c.Execution {
				case op.StrategyUserGuided:
					hasGuided = true
				case op.StrategyDeferred:
					hasDefer = true
				}
			}
			if hasGuided != tt.wantGuided {
				t.Errorf("user-guided generated = %v, want %v", hasGuided, tt.wantGuided)
			}
			if hasDefer != tt.wantDefer {
				t.Errorf("deferred generated = %v, want %v", hasDefer, tt.wantDefer)
			}
		})
	}
}

func TestDecideDeterministic(t *testing.T) {
	cat := catalog.New()
	sel := NewSelector(cat, true)
	ctx := op.MergeContext(nil)

	for _, typ := range op.KnownTypes() {
		first, err := sel.Decide(testOperation(typ), ctx)
		if err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
		for i := 0; i < 5; i++ {
			again, err := sel.Decide(testOperation(typ), ctx)
			if err != nil {
				t.Fatal(err)
			}
			if again.Strategy.Execution != first.Strategy.Execution {
				t.Errorf("%s: decision flapped %v → %v", typ, first.Strategy.Execution, again.Strategy.Execution)
			}
		}
	}
}

func TestDecideReturnsGeneratedCandidate(t *testing.T) {
	cat := catalog.New()
	sel := NewSelector(cat, true)

	contexts := []op.ExecutionContext{
		op.MergeContext(nil),
		op.MergeContext(&op.ExecutionContext{UserPresent: true}),
		op.MergeContext(&op.ExecutionContext{SystemLoad: op.LoadHigh}),
		op.MergeContext(&op.ExecutionContext{Priority: op.PriorityP0, TimeConstraints: op.TimeStrict}),
	}

	for _, ctx := range contexts {
		for _, typ := range op.KnownTypes() {
			res, err := sel.Decide(testOperation(typ), ctx)
			if err != nil {
				t.Fatal(err)
			}
			found := false
			for _, c := range GenerateCandidates(ctx) {
				if c.Execution == res.Strategy.Execution {
					found = true
				}
			}
			if !found {
				t.Errorf("%s: chose %v, not among generated candidates", typ, res.Strategy.Execution)
			}
			if res.Reasoning == "" {
				t.Error("reasoning must not be empty")
			}
		}
	}
}

func TestDecideUnknownType(t *testing.T) {
	sel := NewSelector(catalog.New(), true)
	_, err := sel.Decide(testOperation("deploy"), op.MergeContext(nil))
	if err == nil {
		t.Fatal("expected UnknownOperationError")
	}
}

func TestForecastBounds(t *testing.T) {
	cat := catalog.New()
	strategies := []op.ExecStrategy{
		op.StrategyImmediate, op.StrategyOptimized, op.StrategySafeMode,
		op.StrategyUserGuided, op.StrategyDeferred,
	}
	contexts := []op.ExecutionContext{
		op.MergeContext(nil),
		op.MergeContext(&op.ExecutionContext{SystemLoad: op.LoadHigh}),
	}

	for _, typ := range op.KnownTypes() {
		profile, err := cat.Get(typ)
		if err != nil {
			t.Fatal(err)
		}
		for _, strat := range strategies {
			for _, ctx := range contexts {
				out := forecast(strat, profile, ctx)
				if out.SuccessProbability < 0.1 || out.SuccessProbability > 0.95 {
					t.Errorf("%s/%s: success probability %.3f out of [0.1,0.95]",
						typ, strat, out.SuccessProbability)
				}
				if out.UserSatisfaction < 0.1 || out.UserSatisfaction > 1.0 {
					t.Errorf("%s/%s: satisfaction %.3f out of [0.1,1.0]",
						typ, strat, out.UserSatisfaction)
				}
				if out.Duration.Milliseconds() < minDurationMs {
					t.Errorf("%s/%s: duration %v under the %dms floor",
						typ, strat, out.Duration, minDurationMs)
				}
			}
		}
	}
}

func TestForecastHighLoadSlower(t *testing.T) {
	cat := catalog.New()
	profile, _ := cat.Get(op.TypeTest)

	normal := forecast(op.StrategyOptimized, profile, op.ExecutionContext{SystemLoad: op.LoadMedium})
	loaded := forecast(op.StrategyOptimized, profile, op.ExecutionContext{SystemLoad: op.LoadHigh})

	if loaded.Duration <= normal.Duration {
		t.Errorf("high load should lengthen the forecast: %v vs %v", loaded.Duration, normal.Duration)
	}
	if loaded.SuccessProbability >= normal.SuccessProbability {
		t.Errorf("high load should lower success probability: %.3f vs %.3f",
			loaded.SuccessProbability, normal.SuccessProbability)
	}
}

func TestKillSwitchPinsOptimized(t *testing.T) {
	sel := NewSelector(catalog.New(), false)

	for _, typ := range op.KnownTypes() {
		res, err := sel.Decide(testOperation(typ), op.MergeContext(nil))
		if err != nil {
			t.Fatal(err)
		}
		if res.Strategy.Execution != op.StrategyOptimized {
			t.Errorf("%s: non-adaptive selector chose %v, want optimized", typ, res.Strategy.Execution)
		}
	}
}
