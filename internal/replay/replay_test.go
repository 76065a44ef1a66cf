package replay

import (
	"fmt"
	"path/filepath"
	"testing"

	"opsched/internal/catalog"
	"opsched/internal/decision"
	"opsched/internal/history"
	"opsched/internal/op"
)

func seedStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.NewStore(filepath.Join(t.TempDir(), "sched.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	cat := catalog.New()
	selector := decision.NewSelector(cat, true)
	learner := history.NewLearner(cat, store)

	for i := 0; i < 5; i++ {
		o := op.Operation{
			ID:   fmt.Sprintf("op-%d", i),
			Name: fmt.Sprintf("lint-%d", i),
			Type: op.TypeLint,
		}
		ectx := op.DefaultContext()
		d, err := selector.Decide(o, ectx)
		if err != nil {
			t.Fatal(err)
		}
		learner.RecordDecision(fmt.Sprintf("d-%d", i), o, ectx, d)
	}
	return store
}

func TestReplayDeterministicAgainstFreshCatalog(t *testing.T) {
	store := seedStore(t)

	report, err := Run(store, catalog.New(), 100)
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 5 {
		t.Fatalf("replayed %d decisions, want 5", report.Total)
	}
	if report.Matched != 5 || len(report.Drifts) != 0 {
		t.Errorf("fresh catalog drifted: %+v", report)
	}
	if report.DriftRate() != 0 {
		t.Errorf("drift rate = %v, want 0", report.DriftRate())
	}
}

func TestReplayDetectsDrift(t *testing.T) {
	store, err := history.NewStore(filepath.Join(t.TempDir(), "sched.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	// Log decisions with adaptation off: everything pins to optimized.
	// A context that strongly favors the user makes the adaptive
	// selector choose user-guided instead, so replay must flag every
	// row as drifted.
	cat := catalog.New()
	pinned := decision.NewSelector(cat, false)
	learner := history.NewLearner(cat, store)

	ectx := op.ExecutionContext{
		Priority:        op.PriorityP1,
		UserPresent:     true,
		SystemLoad:      op.LoadLow,
		TimeConstraints: op.TimeNone,
		ErrorTolerance:  op.ToleranceMedium,
		AutomationLevel: op.AutomationManual,
	}
	for i := 0; i < 3; i++ {
		o := op.Operation{
			ID:   fmt.Sprintf("op-%d", i),
			Name: fmt.Sprintf("test-%d", i),
			Type: op.TypeTest,
		}
		d, err := pinned.Decide(o, ectx)
		if err != nil {
			t.Fatal(err)
		}
		learner.RecordDecision(fmt.Sprintf("d-%d", i), o, ectx, d)
	}

	report, err := Run(store, catalog.New(), 100)
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 3 {
		t.Fatalf("replayed %d decisions, want 3", report.Total)
	}
	if len(report.Drifts) != 3 {
		t.Fatalf("drifts = %d, want 3 (report %+v)", len(report.Drifts), report)
	}
	for _, d := range report.Drifts {
		if d.Logged != op.StrategyOptimized {
			t.Errorf("logged strategy %s, want optimized", d.Logged)
		}
		if d.Current != op.StrategyUserGuided {
			t.Errorf("replayed strategy %s, want user-guided", d.Current)
		}
	}
}
