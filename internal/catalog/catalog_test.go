package catalog

import (
	"errors"
	"testing"
	"time"

	"opsched/internal/op"
)

func TestGetUnknownType(t *testing.T) {
	c := New()
	_, err := c.Get("deploy")
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
	var unknown *UnknownOperationError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownOperationError, got %T", err)
	}
	if unknown.Type != "deploy" {
		t.Errorf("error carries type %q, want %q", unknown.Type, "deploy")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	c := New()
	p, err := c.Get(op.TypeLint)
	if err != nil {
		t.Fatal(err)
	}
	p.Performance.Speed = 1

	again, _ := c.Get(op.TypeLint)
	if again.Performance.Speed == 1 {
		t.Error("mutating a returned profile must not affect the catalog")
	}
}

func TestApplyOutcomeFailureReducesReliability(t *testing.T) {
	c := New()
	before, _ := c.Get(op.TypeTest)

	if err := c.ApplyOutcome(op.TypeTest, Outcome{Success: false}); err != nil {
		t.Fatal(err)
	}

	after, _ := c.Get(op.TypeTest)
	if after.Safety.Reliability >= before.Safety.Reliability {
		t.Errorf("reliability %.2f should strictly decrease from %.2f",
			after.Safety.Reliability, before.Safety.Reliability)
	}
}

func TestApplyOutcomeClampsAtFloor(t *testing.T) {
	c := New()
	// Hammer failures until reliability bottoms out.
	for i := 0; i < 100; i++ {
		if err := c.ApplyOutcome(op.TypeLint, Outcome{Success: false}); err != nil {
			t.Fatal(err)
		}
	}
	p, _ := c.Get(op.TypeLint)
	if p.Safety.Reliability < 1 {
		t.Errorf("reliability %.3f dropped below floor of 1", p.Safety.Reliability)
	}
}

func TestApplyOutcomeSuccessClampsAtCeiling(t *testing.T) {
	c := New()
	for i := 0; i < 200; i++ {
		if err := c.ApplyOutcome(op.TypeTypecheck, Outcome{Success: true}); err != nil {
			t.Fatal(err)
		}
	}
	p, _ := c.Get(op.TypeTypecheck)
	if p.Safety.Reliability > 5 {
		t.Errorf("reliability %.3f rose above ceiling of 5", p.Safety.Reliability)
	}
}

func TestApplyOutcomeOverrunReducesSpeed(t *testing.T) {
	c := New()
	before, _ := c.Get(op.TypeBuild)

	outcome := Outcome{
		Success:          true,
		ExpectedDuration: 10 * time.Second,
		Duration:         20 * time.Second, // 2x expected, past the 1.5x bar
	}
	if err := c.ApplyOutcome(op.TypeBuild, outcome); err != nil {
		t.Fatal(err)
	}

	after, _ := c.Get(op.TypeBuild)
	if after.Performance.Speed >= before.Performance.Speed {
		t.Errorf("speed %.2f should decrease from %.2f after overrun",
			after.Performance.Speed, before.Performance.Speed)
	}
}

func TestApplyOutcomeModestOverrunLeavesSpeed(t *testing.T) {
	c := New()
	before, _ := c.Get(op.TypeBuild)

	outcome := Outcome{
		Success:          true,
		ExpectedDuration: 10 * time.Second,
		Duration:         12 * time.Second, // 1.2x, under the bar
	}
	if err := c.ApplyOutcome(op.TypeBuild, outcome); err != nil {
		t.Fatal(err)
	}

	after, _ := c.Get(op.TypeBuild)
	if after.Performance.Speed != before.Performance.Speed {
		t.Errorf("speed changed %.2f → %.2f on a modest overrun",
			before.Performance.Speed, after.Performance.Speed)
	}
}

func TestApplyOutcomeLowSatisfactionReducesClarity(t *testing.T) {
	c := New()
	before, _ := c.Get(op.TypeAnalysis)

	tests := []struct {
		name         string
		satisfaction float64
		wantDrop     bool
	}{
		{"well-below-threshold", 0.3, true},
		{"just-below-threshold", 0.59, true},
		{"at-threshold", 0.6, false},
		{"high", 0.9, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			s := tt.satisfaction
			if err := c.ApplyOutcome(op.TypeAnalysis, Outcome{Success: true, Satisfaction: &s}); err != nil {
				t.Fatal(err)
			}
			after, _ := c.Get(op.TypeAnalysis)
			dropped := after.Usability.Clarity < before.Usability.Clarity
			if dropped != tt.wantDrop {
				t.Errorf("satisfaction %.2f: clarity drop = %v, want %v",
					tt.satisfaction, dropped, tt.wantDrop)
			}
		})
	}
}

func TestSeedCoversKnownTypes(t *testing.T) {
	c := New()
	for _, typ := range op.KnownTypes() {
		if _, err := c.Get(typ); err != nil {
			t.Errorf("seed catalog missing %q: %v", typ, err)
		}
	}
}
