// Package replay re-decides logged operations with the current selector.
// Matching strategies confirm selection is deterministic; drifts show
// where selection behavior changed since the decision was logged, for
// example after a weighting or baseline revision.
package replay

import (
	"fmt"

	"opsched/internal/catalog"
	"opsched/internal/decision"
	"opsched/internal/history"
	"opsched/internal/op"
)

// #region report

// Drift is one logged decision the current selector would make
// differently.
type Drift struct {
	DecisionID    string
	OperationName string
	OperationType op.OperationType
	Logged        op.ExecStrategy
	Current       op.ExecStrategy
}

// Report summarizes a replay run.
type Report struct {
	Total   int
	Matched int
	Drifts  []Drift
}

// DriftRate is the fraction of decisions that changed.
func (r Report) DriftRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(len(r.Drifts)) / float64(r.Total)
}

// #endregion

// #region run

// Run replays up to limit logged decisions through a selector backed by
// cat. Pass a freshly seeded catalog to verify determinism, or the
// live learned catalog to measure how far learning has moved selection.
func Run(store *history.Store, cat *catalog.Catalog, limit int) (Report, error) {
	logged, err := store.Decisions(limit)
	if err != nil {
		return Report{}, fmt.Errorf("load decision log: %w", err)
	}

	selector := decision.NewSelector(cat, true)
	report := Report{Total: len(logged)}

	for _, d := range logged {
		o := op.Operation{
			ID:   d.DecisionID,
			Name: d.OperationName,
			Type: d.OperationType,
		}
		redecided, err := selector.Decide(o, d.Context)
		if err != nil {
			return report, fmt.Errorf("replay decision %s: %w", d.DecisionID, err)
		}
		if redecided.Strategy.Execution == d.Strategy {
			report.Matched++
			continue
		}
		report.Drifts = append(report.Drifts, Drift{
			DecisionID:    d.DecisionID,
			OperationName: d.OperationName,
			OperationType: d.OperationType,
			Logged:        d.Strategy,
			Current:       redecided.Strategy.Execution,
		})
	}
	return report, nil
}

// #endregion
