// Package batch plans and runs groups of operations. The planner orders
// by priority and picks an execution mode from the batch's risk and the
// current load; the runner executes the plan, sequentially or fanned
// out, without letting one failure cancel its siblings.
package batch

import (
	"fmt"
	"sort"
	"time"

	"opsched/internal/op"
)

// #region plan

// Mode is how a planned batch executes.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
	ModeHybrid     Mode = "hybrid"
)

// Plan is an ordered batch with its chosen mode and a duration estimate.
type Plan struct {
	Ordered           []op.Operation
	Mode              Mode
	EstimatedDuration time.Duration
	Reason            string
}

// Per-operation estimate used for batch planning.
const batchSlotMs = 30000

// Hybrid interleaves work, so its per-operation estimate is lower.
const hybridSlotMs = 20000

// #endregion

// #region build

// highResourceTypes cannot safely run fully parallel with anything else.
var highResourceTypes = map[op.OperationType]bool{
	op.TypeAudit:     true,
	op.TypeEvolution: true,
	op.TypeBuild:     true,
}

// BuildPlan orders operations by priority (stable, so submission order
// breaks ties) and selects a mode:
//
//	any P0 present or high load  → sequential
//	any high-resource type       → hybrid
//	otherwise                    → parallel
func BuildPlan(ops []op.Operation, ectx op.ExecutionContext) Plan {
	ordered := make([]op.Operation, len(ops))
	copy(ordered, ops)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority.Weight() > ordered[j].Priority.Weight()
	})

	n := len(ordered)
	hasCritical := false
	hasHighResource := false
	for _, o := range ordered {
		if o.Priority == op.PriorityP0 {
			hasCritical = true
		}
		if highResourceTypes[o.Type] {
			hasHighResource = true
		}
	}

	switch {
	case hasCritical || ectx.SystemLoad == op.LoadHigh:
		reason := "high system load"
		if hasCritical {
			reason = "critical-priority operation present"
		}
		return Plan{
			Ordered:           ordered,
			Mode:              ModeSequential,
			EstimatedDuration: time.Duration(n*batchSlotMs) * time.Millisecond,
			Reason:            reason,
		}
	case hasHighResource:
		return Plan{
			Ordered:           ordered,
			Mode:              ModeHybrid,
			EstimatedDuration: time.Duration(n*hybridSlotMs) * time.Millisecond,
			Reason:            "resource-heavy operation present",
		}
	default:
		// Fully parallel: the batch takes as long as one slot.
		return Plan{
			Ordered:           ordered,
			Mode:              ModeParallel,
			EstimatedDuration: batchSlotMs * time.Millisecond,
			Reason:            fmt.Sprintf("%d independent low-risk operations", n),
		}
	}
}

// #endregion
