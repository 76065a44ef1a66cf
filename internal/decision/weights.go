package decision

// #region imports
import (
	"fmt"

	"opsched/internal/op"
)

// #endregion

// #region weights

// Weights is the performance/safety/usability tradeoff distribution for
// one decision. After normalization the three always sum to 1.
type Weights struct {
	Performance float64
	Safety      float64
	Usability   float64
}

// #endregion

// #region base-weights

// baseWeights returns the priority-dependent starting point, in
// (performance, safety, usability) order. P0 work favors safety.
func baseWeights(p op.Priority) Weights {
	switch p {
	case op.PriorityP0:
		return Weights{Performance: 0.3, Safety: 0.5, Usability: 0.2}
	case op.PriorityP1:
		return Weights{Performance: 0.35, Safety: 0.4, Usability: 0.25}
	default: // P2
		return Weights{Performance: 0.4, Safety: 0.3, Usability: 0.3}
	}
}

// #endregion

// #region calculate

// CalculateWeights turns an execution context into a normalized tradeoff
// distribution. Deltas may push individual weights negative before
// normalization; the sum is validated > 0 before dividing, and an
// adversarial context that zeroes the sum is rejected outright.
func CalculateWeights(ctx op.ExecutionContext) (Weights, error) {
	w := baseWeights(ctx.Priority)

	switch ctx.SystemLoad {
	case op.LoadHigh:
		w.Performance += 0.1
		w.Safety -= 0.05
		w.Usability -= 0.05
	case op.LoadLow:
		w.Performance -= 0.15
		w.Safety += 0.1
		w.Usability += 0.05
	}

	if ctx.UserPresent {
		w.Performance -= 0.1
		w.Safety -= 0.05
		w.Usability += 0.15
	} else {
		w.Performance += 0.1
		w.Safety += 0.05
		w.Usability -= 0.15
	}

	switch ctx.TimeConstraints {
	case op.TimeStrict:
		w.Performance += 0.2
		w.Safety -= 0.1
		w.Usability -= 0.1
	case op.TimeNone:
		w.Performance -= 0.25
		w.Safety += 0.15
		w.Usability += 0.1
	}

	sum := w.Performance + w.Safety + w.Usability
	if sum <= 0 {
		return Weights{}, fmt.Errorf("context weights sum to %.4f, must be > 0", sum)
	}

	w.Performance /= sum
	w.Safety /= sum
	w.Usability /= sum
	return w, nil
}

// #endregion

// #region dominant

// Dominant names the largest weight, used in decision reasoning.
func (w Weights) Dominant() string {
	switch {
	case w.Performance >= w.Safety && w.Performance >= w.Usability:
		return "performance"
	case w.Safety >= w.Usability:
		return "safety"
	default:
		return "usability"
	}
}

// #endregion
