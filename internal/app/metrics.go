package app

import (
	"sync/atomic"
	"time"
)

// Metrics counts the work done by the sync loop.
type Metrics struct {
	ticks          atomic.Uint64
	refreshes      atomic.Uint64
	fullRefreshes  atomic.Uint64
	reloads        atomic.Uint64
	conflicts      atomic.Uint64
	gitRuns        atomic.Uint64
	gitOwed        atomic.Uint64
	autosaveWrites atomic.Uint64
	autosaveErrors atomic.Uint64
	lspEvents      atomic.Uint64

	startTime time.Time
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// Snapshot returns a point-in-time copy of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Uptime:         time.Since(m.startTime),
		Ticks:          m.ticks.Load(),
		Refreshes:      m.refreshes.Load(),
		FullRefreshes:  m.fullRefreshes.Load(),
		Reloads:        m.reloads.Load(),
		Conflicts:      m.conflicts.Load(),
		GitRuns:        m.gitRuns.Load(),
		GitOwed:        m.gitOwed.Load(),
		AutosaveWrites: m.autosaveWrites.Load(),
		AutosaveErrors: m.autosaveErrors.Load(),
		LSPEvents:      m.lspEvents.Load(),
	}
}

// Reset clears all counters.
func (m *Metrics) Reset() {
	m.ticks.Store(0)
	m.refreshes.Store(0)
	m.fullRefreshes.Store(0)
	m.reloads.Store(0)
	m.conflicts.Store(0)
	m.gitRuns.Store(0)
	m.gitOwed.Store(0)
	m.autosaveWrites.Store(0)
	m.autosaveErrors.Store(0)
	m.lspEvents.Store(0)
	m.startTime = time.Now()
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	Uptime         time.Duration
	Ticks          uint64
	Refreshes      uint64
	FullRefreshes  uint64
	Reloads        uint64
	Conflicts      uint64
	GitRuns        uint64
	GitOwed        uint64
	AutosaveWrites uint64
	AutosaveErrors uint64
	LSPEvents      uint64
}
