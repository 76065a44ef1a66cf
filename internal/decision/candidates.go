package decision

// #region imports
import (
	"time"

	"opsched/internal/op"
)

// #endregion

// #region strategy-config

// StrategyConfig is the per-strategy execution policy applied by the
// dispatcher: how long each attempt may run, how often to retry, and how
// much the user participates.
type StrategyConfig struct {
	Timeout         time.Duration // 0 = no per-attempt timeout (user-guided only)
	Retries         int
	Parallelism     int
	Validation      op.ValidationLevel
	UserInteraction op.InteractionLevel
}

// #endregion

// #region candidate

// CandidateStrategy is one scored alternative the selector weighs.
type CandidateStrategy struct {
	Execution     op.ExecStrategy
	Configuration StrategyConfig

	// Fixed baseline ratings in (performance, safety, usability) order.
	basePerformance float64
	baseSafety      float64
	baseUsability   float64
}

// #endregion

// #region baselines

// strategyConfigs fixes each strategy's execution policy. Safe-mode gets
// the long timeout and strict validation; optimized is the only strategy
// that retries; user-guided is bounded by the user, not a timer.
var strategyConfigs = map[op.ExecStrategy]StrategyConfig{
	op.StrategyImmediate: {
		Timeout:         30 * time.Second,
		Retries:         0,
		Parallelism:     1,
		Validation:      op.ValidationMinimal,
		UserInteraction: op.InteractionNone,
	},
	op.StrategyOptimized: {
		Timeout:         60 * time.Second,
		Retries:         2,
		Parallelism:     1,
		Validation:      op.ValidationModerate,
		UserInteraction: op.InteractionProgress,
	},
	op.StrategySafeMode: {
		Timeout:         120 * time.Second,
		Retries:         0,
		Parallelism:     1,
		Validation:      op.ValidationStrict,
		UserInteraction: op.InteractionApproval,
	},
	op.StrategyUserGuided: {
		Timeout:         0,
		Retries:         0,
		Parallelism:     1,
		Validation:      op.ValidationModerate,
		UserInteraction: op.InteractionFullControl,
	},
	op.StrategyDeferred: {
		Timeout:         60 * time.Second,
		Retries:         1,
		Parallelism:     1,
		Validation:      op.ValidationModerate,
		UserInteraction: op.InteractionNone,
	},
}

// #endregion

// #region generate

// GenerateCandidates enumerates 3–5 candidates in fixed order: immediate,
// optimized, safe-mode, then user-guided (only when the user is present)
// and deferred (only under high load). The order is the tie-break.
func GenerateCandidates(ctx op.ExecutionContext) []CandidateStrategy {
	candidates := []CandidateStrategy{
		{
			Execution:       op.StrategyImmediate,
			Configuration:   strategyConfigs[op.StrategyImmediate],
			basePerformance: 5, baseSafety: 2, baseUsability: 3,
		},
		{
			Execution:       op.StrategyOptimized,
			Configuration:   strategyConfigs[op.StrategyOptimized],
			basePerformance: 4, baseSafety: 4, baseUsability: 4,
		},
		{
			Execution:       op.StrategySafeMode,
			Configuration:   strategyConfigs[op.StrategySafeMode],
			basePerformance: 2, baseSafety: 5, baseUsability: 3,
		},
	}

	if ctx.UserPresent {
		candidates = append(candidates, CandidateStrategy{
			Execution:       op.StrategyUserGuided,
			Configuration:   strategyConfigs[op.StrategyUserGuided],
			basePerformance: 3, baseSafety: 4, baseUsability: 5,
		})
	}

	if ctx.SystemLoad == op.LoadHigh {
		candidates = append(candidates, CandidateStrategy{
			Execution:       op.StrategyDeferred,
			Configuration:   strategyConfigs[op.StrategyDeferred],
			basePerformance: 2, baseSafety: 4, baseUsability: 2,
		})
	}

	return candidates
}

// #endregion
