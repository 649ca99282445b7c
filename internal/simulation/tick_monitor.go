package simulation

import (
	"sync"
	"time"
)

// TickReport describes the autoplay ticks observed so far.
type TickReport struct {
	Ticks    int
	Turns    float64 // simulation updates handed to the advancer, signed
	Average  time.Duration
	Slowest  time.Duration
	Overruns int // ticks that took longer than their step
	Budget   time.Duration
}

// Utilisation is the average share of the step budget spent advancing.
func (r TickReport) Utilisation() float64 {
	if r.Budget <= 0 {
		return 0
	}
	return float64(r.Average) / float64(r.Budget)
}

// TickMonitor accumulates how long advancing the shown match takes per tick.
type TickMonitor struct {
	mu     sync.Mutex
	report TickReport
	total  time.Duration
}

// NewTickMonitor returns an empty monitor.
func NewTickMonitor() *TickMonitor {
	return &TickMonitor{}
}

// Observe records one tick that advanced by updates and took elapsed out of budget.
func (m *TickMonitor) Observe(elapsed, budget time.Duration, updates float64) {
	if m == nil || elapsed <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.report.Ticks++
	m.report.Turns += updates
	m.report.Budget = budget
	m.total += elapsed
	m.report.Average = m.total / time.Duration(m.report.Ticks)
	m.report.Slowest = max(m.report.Slowest, elapsed)
	if budget > 0 && elapsed > budget {
		m.report.Overruns++
	}
}

// Report returns a copy of the accumulated statistics.
func (m *TickMonitor) Report() TickReport {
	if m == nil {
		return TickReport{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report
}
