package decision

// #region imports
import (
	"fmt"
	"math"

	"opsched/internal/catalog"
	"opsched/internal/op"
)

// #endregion

// #region types

// Recommendation is the approval-score verdict.
type Recommendation string

const (
	AutoApprove     Recommendation = "auto-approve"
	RequestApproval Recommendation = "request-approval"
	RequireReview   Recommendation = "require-review"
	Reject          Recommendation = "reject"
)

// SubScores carries the four approval components, each in [0,100].
type SubScores struct {
	Safety        float64
	Complexity    float64
	Impact        float64
	Reversibility float64
}

// ApprovalScore is the composite 0–100 readiness score gating whether an
// operation may auto-run. Independent of strategy selection; the
// dispatcher consults it only for approval-gated runs.
type ApprovalScore struct {
	TotalScore     float64
	SubScores      SubScores
	Recommendation Recommendation
	Confidence     float64 // [0.1, 1.0]
	Reasoning      []string
}

// #endregion

// #region weights

// Fixed combination weights for the four sub-scores.
const (
	approvalSafetyWeight        = 0.35
	approvalComplexityWeight    = 0.25
	approvalImpactWeight        = 0.25
	approvalReversibilityWeight = 0.15
)

// #endregion

// #region calculate

// CalculateApprovalScore scores an operation's readiness to run without a
// human. Sub-scores derive from the profile: safety from reliability minus
// a risk penalty, complexity from speed/scalability headroom, impact from
// risk level and automation level, reversibility from the profile flag.
func CalculateApprovalScore(
	operation op.Operation,
	ctx op.ExecutionContext,
	profile catalog.Profile,
	risk catalog.RiskLevel,
) ApprovalScore {
	sub := SubScores{
		Safety:        clampRange(profile.Safety.Reliability/5*100-riskPenalty(risk), 0, 100),
		Complexity:    clampRange((profile.Performance.Speed+profile.Performance.Scalability)/10*100, 0, 100),
		Impact:        impactScore(risk, ctx.AutomationLevel),
		Reversibility: reversibilityScore(profile.Safety.Reversible),
	}

	total := sub.Safety*approvalSafetyWeight +
		sub.Complexity*approvalComplexityWeight +
		sub.Impact*approvalImpactWeight +
		sub.Reversibility*approvalReversibilityWeight

	return ApprovalScore{
		TotalScore:     total,
		SubScores:      sub,
		Recommendation: Recommend(risk, total),
		Confidence:     approvalConfidence(sub),
		Reasoning: []string{
			fmt.Sprintf("safety %.0f (reliability %.1f, risk %s)", sub.Safety, profile.Safety.Reliability, risk),
			fmt.Sprintf("complexity %.0f (speed %.1f, scalability %.1f)", sub.Complexity, profile.Performance.Speed, profile.Performance.Scalability),
			fmt.Sprintf("impact %.0f (risk %s, automation %s)", sub.Impact, risk, ctx.AutomationLevel),
			fmt.Sprintf("reversibility %.0f (reversible=%v)", sub.Reversibility, profile.Safety.Reversible),
			fmt.Sprintf("total %.1f → %s", total, Recommend(risk, total)),
		},
	}
}

// #endregion

// #region recommend

// Recommend maps a risk level and total score to a verdict. Critical-risk
// operations can never do better than require-review.
func Recommend(risk catalog.RiskLevel, total float64) Recommendation {
	if risk == catalog.RiskCritical {
		if total >= 85 {
			return RequireReview
		}
		return Reject
	}
	switch {
	case total >= 85:
		return AutoApprove
	case total >= 70:
		return RequestApproval
	case total >= 50:
		return RequireReview
	default:
		return Reject
	}
}

// #endregion

// #region helpers

// riskPenalty is subtracted from the safety sub-score.
func riskPenalty(risk catalog.RiskLevel) float64 {
	switch risk {
	case catalog.RiskLow:
		return 0
	case catalog.RiskMedium:
		return 15
	case catalog.RiskHigh:
		return 30
	default: // critical
		return 50
	}
}

// impactScore rates how contained a bad run is; higher means less impact.
func impactScore(risk catalog.RiskLevel, automation op.AutomationLevel) float64 {
	score := 100.0
	switch risk {
	case catalog.RiskLow:
		score -= 10
	case catalog.RiskMedium:
		score -= 30
	case catalog.RiskHigh:
		score -= 55
	default:
		score -= 80
	}
	// Unattended runs widen the blast radius.
	if automation == op.AutomationAutonomous {
		score -= 10
	}
	return clampRange(score, 0, 100)
}

// reversibilityScore rates how recoverable a bad run is.
func reversibilityScore(reversible bool) float64 {
	if reversible {
		return 90
	}
	return 25
}

// approvalConfidence is high when the four sub-scores agree with each
// other; wide disagreement means the composite hides a conflict.
func approvalConfidence(sub SubScores) float64 {
	vals := []float64{sub.Safety, sub.Complexity, sub.Impact, sub.Reversibility}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	var variance float64
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(len(vals)))
	return clampRange(1-sd/50, 0.1, 1.0)
}

// #endregion
