package decision

// #region imports
import (
	"fmt"
	"strings"
	"time"

	"opsched/internal/catalog"
	"opsched/internal/op"
)

// #endregion

// #region expected-outcome

// ExpectedOutcome is the selector's forecast for the chosen strategy.
type ExpectedOutcome struct {
	Duration           time.Duration
	SuccessProbability float64 // [0.1, 0.95]
	UserSatisfaction   float64 // [0.1, 1.0]
}

// #endregion

// #region decision-result

// DecisionResult is the selector's output: the winning candidate, the
// weights that produced it, a human-readable trace, and the forecast.
type DecisionResult struct {
	Strategy        CandidateStrategy
	Reasoning       string
	Tradeoffs       Weights
	ExpectedOutcome ExpectedOutcome
	Approval        *ApprovalScore // populated only for approval-gated runs
}

// #endregion

// #region selector

// Selector scores candidate strategies against the profile catalog.
// Adaptive=false pins every decision to optimized with default weights
// (kill switch, SCHEDULER_ADAPTIVE=false).
type Selector struct {
	catalog  *catalog.Catalog
	adaptive bool
}

// NewSelector creates a selector over the given catalog.
func NewSelector(cat *catalog.Catalog, adaptive bool) *Selector {
	return &Selector{catalog: cat, adaptive: adaptive}
}

// #endregion

// #region decide

// Decide looks up the profile, weighs the context, scores each candidate,
// and returns the winner. Repeated calls with identical inputs and an
// unchanged catalog are deterministic; ties go to the first-generated
// candidate because selection requires a strictly greater score.
func (s *Selector) Decide(operation op.Operation, ctx op.ExecutionContext) (DecisionResult, error) {
	profile, err := s.catalog.Get(operation.Type)
	if err != nil {
		return DecisionResult{}, err
	}

	weights, err := CalculateWeights(ctx)
	if err != nil {
		return DecisionResult{}, fmt.Errorf("weigh context: %w", err)
	}

	candidates := GenerateCandidates(ctx)

	if !s.adaptive {
		chosen := candidates[1] // optimized is always generated second
		return DecisionResult{
			Strategy:        chosen,
			Reasoning:       "adaptive selection disabled, pinned to optimized",
			Tradeoffs:       weights,
			ExpectedOutcome: forecast(chosen.Execution, profile, ctx),
		}, nil
	}

	best := candidates[0]
	bestScore := scoreCandidate(candidates[0], profile, weights)
	for _, cand := range candidates[1:] {
		score := scoreCandidate(cand, profile, weights)
		if score > bestScore {
			best = cand
			bestScore = score
		}
	}

	return DecisionResult{
		Strategy:        best,
		Reasoning:       reasoning(best, weights, ctx, bestScore),
		Tradeoffs:       weights,
		ExpectedOutcome: forecast(best.Execution, profile, ctx),
	}, nil
}

// #endregion

// #region scoring

// scoreCandidate averages each baseline dimension with the matching
// profile dimension, then weight-sums: performance pairs with speed,
// safety with reliability, usability with automation.
func scoreCandidate(c CandidateStrategy, p catalog.Profile, w Weights) float64 {
	perf := (c.basePerformance + p.Performance.Speed) / 2
	safety := (c.baseSafety + p.Safety.Reliability) / 2
	usability := (c.baseUsability + p.Usability.Automation) / 2
	return perf*w.Performance + safety*w.Safety + usability*w.Usability
}

// #endregion

// #region reasoning

// reasoning names the dominant weight and whichever context flags held.
func reasoning(best CandidateStrategy, w Weights, ctx op.ExecutionContext, score float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "selected %s (score %.3f): %s-weighted context", best.Execution, score, w.Dominant())

	var flags []string
	if ctx.UserPresent {
		flags = append(flags, "user present")
	}
	if ctx.SystemLoad == op.LoadHigh {
		flags = append(flags, "high load")
	}
	if ctx.TimeConstraints == op.TimeStrict {
		flags = append(flags, "strict time constraints")
	}
	if ctx.ErrorTolerance == op.ToleranceZero {
		flags = append(flags, "zero error tolerance")
	}
	if len(flags) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(flags, ", "))
	}
	return b.String()
}

// #endregion

// #region forecast

// baseDurationMs anchors the expected-duration formula.
const baseDurationMs = 30000

// minDurationMs is the floor for any forecast.
const minDurationMs = 5000

// forecast computes the expected outcome.
// Duration: max(5000, 30000 × (6 − speed) × strategy multiplier × load multiplier).
// Success and satisfaction are clamped to [0.1,0.95] and [0.1,1.0].
func forecast(strategy op.ExecStrategy, p catalog.Profile, ctx op.ExecutionContext) ExpectedOutcome {
	stratMult := 1.0
	switch strategy {
	case op.StrategyImmediate:
		stratMult = 0.7
	case op.StrategySafeMode:
		stratMult = 1.5
	case op.StrategyUserGuided:
		stratMult = 2.0
	case op.StrategyDeferred:
		stratMult = 0.9
	}

	loadMult := 1.0
	highLoad := ctx.SystemLoad == op.LoadHigh
	if highLoad {
		loadMult = 1.3
	}

	ms := float64(baseDurationMs) * (6 - p.Performance.Speed) * stratMult * loadMult
	if ms < minDurationMs {
		ms = minDurationMs
	}

	successDelta := 0.0
	switch strategy {
	case op.StrategyImmediate:
		successDelta = -0.1
	case op.StrategySafeMode:
		successDelta = 0.15
	}
	loadPenalty := 0.0
	if highLoad {
		loadPenalty = 0.1
	}
	success := clampRange(0.8+(p.Safety.Reliability-3)*0.1+successDelta-loadPenalty, 0.1, 0.95)

	satDelta := 0.0
	switch strategy {
	case op.StrategySafeMode:
		satDelta = -0.1
	case op.StrategyUserGuided:
		satDelta = 0.2
	case op.StrategyDeferred:
		satDelta = -0.15
	}
	satPenalty := 0.0
	if highLoad {
		satPenalty = 0.15
	}
	satisfaction := clampRange(0.7+(p.Usability.Clarity-3)*0.1+satDelta-satPenalty, 0.1, 1.0)

	return ExpectedOutcome{
		Duration:           time.Duration(ms) * time.Millisecond,
		SuccessProbability: success,
		UserSatisfaction:   satisfaction,
	}
}

// clampRange restricts v to [lo, hi].
func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion
