package catalog

// #region imports
import (
	"fmt"
	"log"
	"sync"
	"time"

	"opsched/internal/op"
)

// #endregion

// #region risk-level

// RiskLevel grades how dangerous an operation type is when run unattended.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// #endregion

// #region profile

// PerformanceRating scores an operation type's runtime characteristics, [1,5].
type PerformanceRating struct {
	Speed       float64
	Resources   float64
	Scalability float64
}

// SafetyRating scores an operation type's failure characteristics.
type SafetyRating struct {
	Reliability float64 // [1,5]
	Reversible  bool
	RiskLevel   RiskLevel
}

// UsabilityRating scores an operation type's user-facing characteristics, [1,5].
type UsabilityRating struct {
	Clarity    float64
	Automation float64
	Feedback   float64
}

// Profile holds the learned/static quality ratings for one operation type.
// One profile per type, never deleted; mutated in place by outcome learning.
type Profile struct {
	Name        string
	Type        op.OperationType
	Performance PerformanceRating
	Safety      SafetyRating
	Usability   UsabilityRating
}

// #endregion

// #region unknown-error

// UnknownOperationError indicates a lookup for an unregistered operation
// type. This is a caller bug, not a runtime condition.
type UnknownOperationError struct {
	Type op.OperationType
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("unknown operation type %q", e.Type)
}

// #endregion

// #region seed

// seedProfiles returns the fixed startup catalog. Values reflect the
// typical behavior of each operation family: verification steps are fast
// and safe, builds and audits are heavier, evolution is slow and risky.
func seedProfiles() map[op.OperationType]*Profile {
	return map[op.OperationType]*Profile{
		op.TypeLint: {
			Name: "style check", Type: op.TypeLint,
			Performance: PerformanceRating{Speed: 5, Resources: 5, Scalability: 4},
			Safety:      SafetyRating{Reliability: 4, Reversible: true, RiskLevel: RiskLow},
			Usability:   UsabilityRating{Clarity: 4, Automation: 5, Feedback: 3},
		},
		op.TypeTypecheck: {
			Name: "static verification", Type: op.TypeTypecheck,
			Performance: PerformanceRating{Speed: 4, Resources: 4, Scalability: 4},
			Safety:      SafetyRating{Reliability: 5, Reversible: true, RiskLevel: RiskLow},
			Usability:   UsabilityRating{Clarity: 5, Automation: 5, Feedback: 4},
		},
		op.TypeTest: {
			Name: "test execution", Type: op.TypeTest,
			Performance: PerformanceRating{Speed: 3, Resources: 3, Scalability: 3},
			Safety:      SafetyRating{Reliability: 4, Reversible: true, RiskLevel: RiskLow},
			Usability:   UsabilityRating{Clarity: 4, Automation: 4, Feedback: 5},
		},
		op.TypeAudit: {
			Name: "security audit", Type: op.TypeAudit,
			Performance: PerformanceRating{Speed: 2, Resources: 2, Scalability: 3},
			Safety:      SafetyRating{Reliability: 4, Reversible: true, RiskLevel: RiskMedium},
			Usability:   UsabilityRating{Clarity: 3, Automation: 4, Feedback: 3},
		},
		op.TypeBuild: {
			Name: "build", Type: op.TypeBuild,
			Performance: PerformanceRating{Speed: 2, Resources: 2, Scalability: 2},
			Safety:      SafetyRating{Reliability: 4, Reversible: true, RiskLevel: RiskMedium},
			Usability:   UsabilityRating{Clarity: 4, Automation: 5, Feedback: 4},
		},
		op.TypeEvolution: {
			Name: "architecture evolution", Type: op.TypeEvolution,
			Performance: PerformanceRating{Speed: 1, Resources: 2, Scalability: 2},
			Safety:      SafetyRating{Reliability: 3, Reversible: false, RiskLevel: RiskCritical},
			Usability:   UsabilityRating{Clarity: 2, Automation: 2, Feedback: 2},
		},
		op.TypeAnalysis: {
			Name: "analysis", Type: op.TypeAnalysis,
			Performance: PerformanceRating{Speed: 3, Resources: 3, Scalability: 4},
			Safety:      SafetyRating{Reliability: 4, Reversible: true, RiskLevel: RiskLow},
			Usability:   UsabilityRating{Clarity: 3, Automation: 4, Feedback: 3},
		},
	}
}

// #endregion

// #region catalog

// Catalog owns one profile per operation type for the process lifetime.
// All access is serialized; Get returns a copy so callers never observe
// a mid-update profile.
type Catalog struct {
	mu       sync.Mutex
	profiles map[op.OperationType]*Profile
}

// New seeds the catalog with the fixed operation-type set.
func New() *Catalog {
	return &Catalog{profiles: seedProfiles()}
}

// Get returns a copy of the profile for the given type.
func (c *Catalog) Get(t op.OperationType) (Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.profiles[t]
	if !ok {
		return Profile{}, &UnknownOperationError{Type: t}
	}
	return *p, nil
}

// Types returns the registered operation types.
func (c *Catalog) Types() []op.OperationType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]op.OperationType, 0, len(c.profiles))
	for t := range c.profiles {
		out = append(out, t)
	}
	return out
}

// Snapshot returns copies of all profiles for inspection.
func (c *Catalog) Snapshot() []Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Profile, 0, len(c.profiles))
	for _, p := range c.profiles {
		out = append(out, *p)
	}
	return out
}

// #endregion

// #region outcome

// Outcome is the observed result of one run, fed back into the catalog.
// Satisfaction is on the 0–1 scale; nil means unreported.
type Outcome struct {
	Duration         time.Duration
	ExpectedDuration time.Duration
	Success          bool
	Satisfaction     *float64
}

// lowSatisfaction is 3/5 expressed on the 0–1 scale.
const lowSatisfaction = 0.6

// overrunFactor marks a run as slow when actual > factor × expected.
const overrunFactor = 1.5

// nudge is the per-update step applied to at most one field per dimension.
const nudge = 0.1

// #endregion

// #region apply-outcome

// ApplyOutcome nudges at most one field per dimension by ±0.1, clamped to
// [1,5]: speed down on overrun, reliability down on failure (up slightly on
// success), clarity down on low reported satisfaction.
func (c *Catalog) ApplyOutcome(t op.OperationType, outcome Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.profiles[t]
	if !ok {
		return &UnknownOperationError{Type: t}
	}

	if outcome.ExpectedDuration > 0 &&
		outcome.Duration > time.Duration(float64(outcome.ExpectedDuration)*overrunFactor) {
		p.Performance.Speed = clampRating(p.Performance.Speed - nudge)
		log.Printf("[LEARN] %s: slow run (%.0fms > %.1fx expected), speed → %.1f",
			t, float64(outcome.Duration.Milliseconds()), overrunFactor, p.Performance.Speed)
	}

	if !outcome.Success {
		p.Safety.Reliability = clampRating(p.Safety.Reliability - nudge)
		log.Printf("[LEARN] %s: failed run, reliability → %.1f", t, p.Safety.Reliability)
	} else {
		p.Safety.Reliability = clampRating(p.Safety.Reliability + nudge/2)
	}

	if outcome.Satisfaction != nil && *outcome.Satisfaction < lowSatisfaction {
		p.Usability.Clarity = clampRating(p.Usability.Clarity - nudge)
		log.Printf("[LEARN] %s: low satisfaction %.2f, clarity → %.1f",
			t, *outcome.Satisfaction, p.Usability.Clarity)
	}

	return nil
}

// SetReliability overwrites reliability directly, clamped. Used when
// warming the catalog from durable history.
func (c *Catalog) SetReliability(t op.OperationType, reliability float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.profiles[t]
	if !ok {
		return &UnknownOperationError{Type: t}
	}
	p.Safety.Reliability = clampRating(reliability)
	return nil
}

// #endregion

// #region helpers

// clampRating restricts a rating to [1,5].
func clampRating(v float64) float64 {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

// #endregion
