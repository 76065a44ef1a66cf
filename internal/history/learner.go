package history

import (
	"fmt"
	"log"
	"sync"
	"time"

	"opsched/internal/catalog"
	"opsched/internal/decision"
	"opsched/internal/op"
)

// #region entry

// Entry is one decision and, once completed, its outcome.
type Entry struct {
	DecisionID    string
	OperationName string
	OperationType op.OperationType
	Strategy      op.ExecStrategy
	Reasoning     string
	Expected      decision.ExpectedOutcome
	DecidedAt     time.Time

	Completed    bool
	Success      bool
	Duration     time.Duration
	Satisfaction *float64
}

// maxEntries bounds the in-memory history. The SQLite store remains the
// durable record; this cap only protects long-lived processes.
const maxEntries = 1024

// recommendationWindow is how many recent completed entries the
// self-assessment scans.
const recommendationWindow = 20

// #endregion

// #region learner

// Learner correlates decisions with outcomes and feeds them back into
// the catalog. A nil store disables persistence but not learning.
type Learner struct {
	mu      sync.Mutex
	catalog *catalog.Catalog
	store   *Store
	pending map[string]Entry
	entries []Entry
}

func NewLearner(c *catalog.Catalog, store *Store) *Learner {
	return &Learner{
		catalog: c,
		store:   store,
		pending: make(map[string]Entry),
	}
}

// #endregion

// #region record-decision

// RecordDecision registers a decision awaiting its outcome. The entry
// stays pending until RecordOutcome arrives with the same decision ID.
func (l *Learner) RecordDecision(id string, o op.Operation, ctx op.ExecutionContext, d decision.DecisionResult) {
	e := Entry{
		DecisionID:    id,
		OperationName: o.Name,
		OperationType: o.Type,
		Strategy:      d.Strategy.Execution,
		Reasoning:     d.Reasoning,
		Expected:      d.ExpectedOutcome,
		DecidedAt:     time.Now(),
	}

	l.mu.Lock()
	l.pending[id] = e
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.RecordDecision(e, ctx); err != nil {
			log.Printf("[HISTORY] persist decision %s: %v", id, err)
		}
	}
}

// #endregion

// #region record-outcome

// RecordOutcome completes a pending decision, updates the catalog's
// profile for the operation type, and persists the row.
func (l *Learner) RecordOutcome(id string, result op.ExecutionResult) error {
	l.mu.Lock()
	e, ok := l.pending[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("no pending decision %q", id)
	}
	delete(l.pending, id)
	l.completeLocked(&e, result)
	l.mu.Unlock()

	return l.finish(e)
}

// Discard drops a pending decision that will never complete, such as a
// cancelled or vetoed run.
func (l *Learner) Discard(id string) {
	l.mu.Lock()
	delete(l.pending, id)
	l.mu.Unlock()
}

// RecordOutcomeByName is the fallback for callers that lost the decision
// ID: it completes the most recent pending entry for the operation name.
func (l *Learner) RecordOutcomeByName(name string, result op.ExecutionResult) error {
	l.mu.Lock()
	var best *Entry
	bestID := ""
	for id, e := range l.pending {
		if e.OperationName != name {
			continue
		}
		if best == nil || e.DecidedAt.After(best.DecidedAt) {
			copied := e
			best = &copied
			bestID = id
		}
	}
	if best == nil {
		l.mu.Unlock()
		return fmt.Errorf("no pending decision for operation %q", name)
	}
	delete(l.pending, bestID)
	l.completeLocked(best, result)
	l.mu.Unlock()

	return l.finish(*best)
}

// completeLocked fills in outcome fields and appends under l.mu.
func (l *Learner) completeLocked(e *Entry, result op.ExecutionResult) {
	e.Completed = true
	e.Success = result.Success
	e.Duration = result.Duration
	e.Satisfaction = result.UserInteraction.UserSatisfaction

	l.entries = append(l.entries, *e)
	if len(l.entries) > maxEntries {
		l.entries = l.entries[len(l.entries)-maxEntries:]
	}
}

// finish runs the side effects that do not need l.mu.
func (l *Learner) finish(e Entry) error {
	if l.store != nil {
		if err := l.store.RecordOutcome(e); err != nil {
			log.Printf("[HISTORY] persist outcome %s: %v", e.DecisionID, err)
		}
	}
	return l.catalog.ApplyOutcome(e.OperationType, catalog.Outcome{
		Duration:         e.Duration,
		ExpectedDuration: e.Expected.Duration,
		Success:          e.Success,
		Satisfaction:     e.Satisfaction,
	})
}

// #endregion

// #region accessors

// Entries returns a copy of the completed history, oldest first.
func (l *Learner) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// PendingCount reports how many decisions still await an outcome.
func (l *Learner) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// #endregion

// #region recommendations

// Recommendations inspects the recent completed history and reports
// systemic findings: chronic overruns, repeated failures, and sustained
// low satisfaction. Empty when the history looks healthy.
func (l *Learner) Recommendations() []string {
	l.mu.Lock()
	window := l.entries
	if len(window) > recommendationWindow {
		window = window[len(window)-recommendationWindow:]
	}
	overruns, failures, unhappy := 0, 0, 0
	for _, e := range window {
		if e.Expected.Duration > 0 &&
			float64(e.Duration) >= 1.5*float64(e.Expected.Duration) {
			overruns++
		}
		if !e.Success {
			failures++
		}
		if e.Satisfaction != nil && *e.Satisfaction < 0.6 {
			unhappy++
		}
	}
	l.mu.Unlock()

	var recs []string
	if overruns > 3 {
		recs = append(recs, fmt.Sprintf(
			"performance: %d of the last %d operations ran at 1.5x their forecast or worse; consider less aggressive strategies or revisiting timeouts",
			overruns, len(window)))
	}
	if failures > 2 {
		recs = append(recs, fmt.Sprintf(
			"safety: %d of the last %d operations failed; consider safe-mode or stricter validation",
			failures, len(window)))
	}
	if unhappy > 3 {
		recs = append(recs, fmt.Sprintf(
			"usability: %d of the last %d operations scored below 0.6 satisfaction; consider more user involvement",
			unhappy, len(window)))
	}
	return recs
}

// #endregion
