package queue

import (
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"opsched/internal/op"
)

// #region load-monitor

// loadSampleInterval is how often the monitor re-reads system load.
const loadSampleInterval = 10 * time.Second

// LoadMonitor periodically samples the 1-minute load average and the
// scheduler's own active-operation count, and folds them into the
// coarse low/medium/high estimate the decision weights consume.
type LoadMonitor struct {
	mu      sync.Mutex
	current op.SystemLoad

	activeFn func() int
	ratioFn  func() float64
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLoadMonitor builds a monitor. activeFn reports how many operations
// the scheduler is currently running; nil means zero.
func NewLoadMonitor(activeFn func() int) *LoadMonitor {
	if activeFn == nil {
		activeFn = func() int { return 0 }
	}
	return &LoadMonitor{
		current:  op.LoadMedium,
		activeFn: activeFn,
		ratioFn:  loadAvgRatio,
		interval: loadSampleInterval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the sampling loop. Call Stop to end it.
func (m *LoadMonitor) Start() {
	m.sample()
	go func() {
		defer close(m.doneCh)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.sample()
			}
		}
	}()
}

// Stop ends the sampling loop and waits for it to exit.
func (m *LoadMonitor) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

// Current returns the latest estimate.
func (m *LoadMonitor) Current() op.SystemLoad {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// #endregion

// #region sampling

func (m *LoadMonitor) sample() {
	ratio := m.ratioFn()
	active := m.activeFn()

	next := op.LoadLow
	switch {
	case ratio >= 1.0 || active >= 4:
		next = op.LoadHigh
	case ratio >= 0.5 || active >= 2:
		next = op.LoadMedium
	}

	m.mu.Lock()
	changed := next != m.current
	m.current = next
	m.mu.Unlock()

	if changed {
		log.Printf("[LOAD] system load now %s (loadavg/cpu=%.2f active=%d)", next, ratio, active)
	}
}

// loadAvgRatio returns the 1-minute load average divided by CPU count.
// On platforms without /proc it returns 0, leaving active-operation
// count as the only signal.
func loadAvgRatio() float64 {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0
	}
	load1, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return load1 / float64(runtime.NumCPU())
}

// #endregion
