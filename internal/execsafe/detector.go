package execsafe

// #region imports
import (
	"sync"
	"time"
)

// #endregion

// #region detector

// ProgressDetector is an in-process LoopDetector: it counts checkpoints
// per operation id and remembers when each last reported liveness.
type ProgressDetector struct {
	mu       sync.Mutex
	counts   map[string]int
	lastSeen map[string]time.Time
}

// NewProgressDetector creates an empty detector.
func NewProgressDetector() *ProgressDetector {
	return &ProgressDetector{
		counts:   make(map[string]int),
		lastSeen: make(map[string]time.Time),
	}
}

// Checkpoint records a liveness report for an operation.
func (d *ProgressDetector) Checkpoint(operationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts[operationID]++
	d.lastSeen[operationID] = time.Now()
}

// Reset clears detector state for an operation after a successful run.
func (d *ProgressDetector) Reset(operationID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.counts, operationID)
	delete(d.lastSeen, operationID)
}

// Checkpoints returns how many liveness reports an operation has made.
// Non-zero state after a failure is kept for post-mortem analysis.
func (d *ProgressDetector) Checkpoints(operationID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[operationID]
}

// Stalled reports whether an operation has checkpointed at least once
// but not within the given window.
func (d *ProgressDetector) Stalled(operationID string, window time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lastSeen[operationID]
	if !ok {
		return false
	}
	return time.Since(last) > window
}

// #endregion
