package op

// #region imports
import (
	"time"
)

// #endregion

// #region operation-type

// OperationType classifies the semantic category of a development operation.
type OperationType string

const (
	TypeLint      OperationType = "lint"
	TypeTypecheck OperationType = "typecheck"
	TypeTest      OperationType = "test"
	TypeAudit     OperationType = "audit"
	TypeBuild     OperationType = "build"
	TypeEvolution OperationType = "evolution"
	TypeAnalysis  OperationType = "analysis"

	// TypeUserInput marks work bounded only by a human response.
	// The safe executor never applies a timeout to it.
	TypeUserInput OperationType = "user-input"
)

// KnownTypes lists every executable operation type the catalog seeds.
// TypeUserInput is excluded: it is a wait, not a command.
func KnownTypes() []OperationType {
	return []OperationType{
		TypeLint, TypeTypecheck, TypeTest, TypeAudit,
		TypeBuild, TypeEvolution, TypeAnalysis,
	}
}

// #endregion

// #region priority

// Priority orders operations by urgency.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
)

// Weight returns the sort weight used by the batch planner (P0 highest).
func (p Priority) Weight() int {
	switch p {
	case PriorityP0:
		return 3
	case PriorityP1:
		return 2
	default:
		return 1
	}
}

// #endregion

// #region system-load

// SystemLoad is the coarse load estimate consulted by weighting and gating.
type SystemLoad string

const (
	LoadLow    SystemLoad = "low"
	LoadMedium SystemLoad = "medium"
	LoadHigh   SystemLoad = "high"
)

// #endregion

// #region time-constraints

// TimeConstraints expresses how much time pressure the caller is under.
type TimeConstraints string

const (
	TimeNone     TimeConstraints = "none"
	TimeModerate TimeConstraints = "moderate"
	TimeStrict   TimeConstraints = "strict"
)

// #endregion

// #region error-tolerance

// ErrorTolerance expresses how acceptable a failed run is to the caller.
type ErrorTolerance string

const (
	ToleranceZero   ErrorTolerance = "zero"
	ToleranceLow    ErrorTolerance = "low"
	ToleranceMedium ErrorTolerance = "medium"
	ToleranceHigh   ErrorTolerance = "high"
)

// #endregion

// #region automation-level

// AutomationLevel expresses how much human oversight is expected.
type AutomationLevel string

const (
	AutomationManual     AutomationLevel = "manual"
	AutomationSupervised AutomationLevel = "supervised"
	AutomationAutonomous AutomationLevel = "autonomous"
)

// #endregion

// #region exec-strategy

// ExecStrategy identifies one of the five execution policies.
type ExecStrategy string

const (
	StrategyImmediate  ExecStrategy = "immediate"
	StrategyOptimized  ExecStrategy = "optimized"
	StrategySafeMode   ExecStrategy = "safe-mode"
	StrategyUserGuided ExecStrategy = "user-guided"
	StrategyDeferred   ExecStrategy = "deferred"
)

// #endregion

// #region validation-level

// ValidationLevel controls how strictly a strategy validates before running.
type ValidationLevel string

const (
	ValidationStrict   ValidationLevel = "strict"
	ValidationModerate ValidationLevel = "moderate"
	ValidationMinimal  ValidationLevel = "minimal"
)

// #endregion

// #region interaction-level

// InteractionLevel controls how much the user participates in a run.
type InteractionLevel string

const (
	InteractionNone        InteractionLevel = "none"
	InteractionProgress    InteractionLevel = "progress"
	InteractionApproval    InteractionLevel = "approval"
	InteractionFullControl InteractionLevel = "full-control"
)

// #endregion

// #region operation

// Operation is a named, black-box unit of development work backed by a
// shell command. Metadata participates in the result-cache key.
type Operation struct {
	ID       string
	Name     string
	Type     OperationType
	Command  string
	Priority Priority
	Metadata map[string]string
}

// #endregion

// #region execution-context

// ExecutionContext carries the caller-supplied situational parameters that
// bias strategy selection. Immutable per decision.
type ExecutionContext struct {
	Priority        Priority
	UserPresent     bool
	SystemLoad      SystemLoad
	TimeConstraints TimeConstraints
	ErrorTolerance  ErrorTolerance
	AutomationLevel AutomationLevel
}

// DefaultContext returns the context used when the caller supplies nothing.
func DefaultContext() ExecutionContext {
	return ExecutionContext{
		Priority:        PriorityP1,
		UserPresent:     false,
		SystemLoad:      LoadMedium,
		TimeConstraints: TimeModerate,
		ErrorTolerance:  ToleranceMedium,
		AutomationLevel: AutomationSupervised,
	}
}

// MergeContext fills unset enum fields of override from the defaults.
// A nil override yields the defaults unchanged. UserPresent is taken
// as given: false is a meaningful value, not "unset".
func MergeContext(override *ExecutionContext) ExecutionContext {
	merged := DefaultContext()
	if override == nil {
		return merged
	}
	if override.Priority != "" {
		merged.Priority = override.Priority
	}
	merged.UserPresent = override.UserPresent
	if override.SystemLoad != "" {
		merged.SystemLoad = override.SystemLoad
	}
	if override.TimeConstraints != "" {
		merged.TimeConstraints = override.TimeConstraints
	}
	if override.ErrorTolerance != "" {
		merged.ErrorTolerance = override.ErrorTolerance
	}
	if override.AutomationLevel != "" {
		merged.AutomationLevel = override.AutomationLevel
	}
	return merged
}

// #endregion

// #region execution-result

// PerformanceStats captures resource telemetry for one run.
type PerformanceStats struct {
	CPUUsage    float64
	MemoryUsage float64
	CacheHits   int
}

// InteractionStats captures how much the user was involved in one run.
type InteractionStats struct {
	ApprovalsRequested int
	ProgressUpdates    int
	UserSatisfaction   *float64 // 0–1 scale, nil when unreported
}

// ExecutionResult is produced once per operation invocation and never
// mutated after return.
type ExecutionResult struct {
	OperationID     string
	Success         bool
	Duration        time.Duration
	Strategy        ExecStrategy
	Output          string
	Error           string
	Performance     PerformanceStats
	UserInteraction InteractionStats
}

// #endregion

// #region progress

// ProgressStage labels the phase a progress event belongs to.
type ProgressStage string

const (
	StageDecided   ProgressStage = "decided"
	StageApproval  ProgressStage = "approval"
	StageCacheHit  ProgressStage = "cache-hit"
	StageAttempt   ProgressStage = "attempt"
	StageRetry     ProgressStage = "retry"
	StageDeferred  ProgressStage = "deferred"
	StageCompleted ProgressStage = "completed"
)

// Progress is a typed event emitted while an operation runs.
// Fraction is completed/total where a total is known, else 0.
type Progress struct {
	OperationID string
	Stage       ProgressStage
	Message     string
	Fraction    float64
}

// #endregion
