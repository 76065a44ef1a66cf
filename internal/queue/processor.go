// Package queue defers operations until system load allows them. The
// processor wakes on a fixed tick and, when load is not high, pops
// exactly one queued operation per tick so deferred work trickles out
// instead of stampeding.
package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"opsched/internal/op"
)

// #region types

// drainInterval is how often the processor considers popping work.
const drainInterval = 5 * time.Second

// RunFunc executes one dequeued operation. The queue injects the
// context it wants the run evaluated under, so dequeued work is
// re-decided for the calmer conditions that let it through.
type RunFunc func(ctx context.Context, o op.Operation, ectx op.ExecutionContext) (op.ExecutionResult, error)

// Result is delivered on the channel returned by Enqueue.
type Result struct {
	Result op.ExecutionResult
	Err    error
}

type queued struct {
	operation  op.Operation
	enqueuedAt time.Time
	resultCh   chan Result
}

// DroppedError is returned on the result channel when a queued
// operation is removed before it ran.
type DroppedError struct {
	OperationID string
}

func (e *DroppedError) Error() string {
	return fmt.Sprintf("operation %s dropped from queue before execution", e.OperationID)
}

// #endregion

// #region processor

// Processor is the deferred-work queue. FIFO, one pop per tick.
type Processor struct {
	mu    sync.Mutex
	items []*queued

	run      RunFunc
	loadFn   func() op.SystemLoad
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewProcessor builds a processor draining through run, consulting
// loadFn before each pop.
func NewProcessor(run RunFunc, loadFn func() op.SystemLoad) *Processor {
	return &Processor{
		run:      run,
		loadFn:   loadFn,
		interval: drainInterval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the drain loop.
func (p *Processor) Start(ctx context.Context) {
	go func() {
		defer close(p.doneCh)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.drainOne(ctx)
			}
		}
	}()
}

// Stop ends the drain loop and fails every still-queued operation with
// a DroppedError so no caller blocks forever.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh

	p.mu.Lock()
	remaining := p.items
	p.items = nil
	p.mu.Unlock()

	for _, q := range remaining {
		q.resultCh <- Result{Err: &DroppedError{OperationID: q.operation.ID}}
	}
}

// #endregion

// #region enqueue

// Enqueue appends the operation and returns a channel that receives
// exactly one Result when it eventually runs or is dropped.
func (p *Processor) Enqueue(o op.Operation) <-chan Result {
	q := &queued{
		operation:  o,
		enqueuedAt: time.Now(),
		resultCh:   make(chan Result, 1),
	}
	p.mu.Lock()
	p.items = append(p.items, q)
	n := len(p.items)
	p.mu.Unlock()

	log.Printf("[QUEUE] deferred %s (%s), %d queued", o.Name, o.ID, n)
	return q.resultCh
}

// Drop removes a queued operation by ID. Returns false when the
// operation is not queued (already popped or never enqueued).
func (p *Processor) Drop(operationID string) bool {
	p.mu.Lock()
	var dropped *queued
	for i, q := range p.items {
		if q.operation.ID == operationID {
			dropped = q
			p.items = append(p.items[:i], p.items[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	if dropped == nil {
		return false
	}
	dropped.resultCh <- Result{Err: &DroppedError{OperationID: operationID}}
	return true
}

// Len reports how many operations are waiting.
func (p *Processor) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// #endregion

// #region drain

// drainOne pops at most one operation if load permits.
func (p *Processor) drainOne(ctx context.Context) {
	if p.loadFn != nil && p.loadFn() == op.LoadHigh {
		return
	}

	p.mu.Lock()
	if len(p.items) == 0 {
		p.mu.Unlock()
		return
	}
	q := p.items[0]
	p.items = p.items[1:]
	p.mu.Unlock()

	log.Printf("[QUEUE] draining %s after %v queued", q.operation.Name, time.Since(q.enqueuedAt).Round(time.Millisecond))

	// The operation was deferred because conditions were bad; when it
	// finally runs, decide it afresh for the quiet window.
	ectx := op.DefaultContext()
	ectx.SystemLoad = op.LoadLow

	result, err := p.run(ctx, q.operation, ectx)
	q.resultCh <- Result{Result: result, Err: err}
}

// #endregion
