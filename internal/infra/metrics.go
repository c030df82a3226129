package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	tradesSettled  atomic.Uint64
	syncCycles     atomic.Uint64
	holderCycles   atomic.Uint64
	tokensSynced   atomic.Uint64
	errorsTotal    atomic.Uint64

	// Latency tracking (settlement path)
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeSubscribers atomic.Int32
}

// RecordSettlement records a settled trade with its latency.
func (m *Metrics) RecordSettlement(latencyNs int64) {
	m.tradesSettled.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordSyncCycle records a completed reconciliation cycle.
func (m *Metrics) RecordSyncCycle() {
	m.syncCycles.Add(1)
}

// RecordHolderCycle records a completed holder aggregation cycle.
func (m *Metrics) RecordHolderCycle() {
	m.holderCycles.Add(1)
}

// RecordTokenSynced records one token successfully reconciled.
func (m *Metrics) RecordTokenSynced() {
	m.tokensSynced.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// IncrementSubscribers increments active broadcast subscribers by 1.
func (m *Metrics) IncrementSubscribers() {
	m.activeSubscribers.Add(1)
}

// DecrementSubscribers decrements active broadcast subscribers by 1.
func (m *Metrics) DecrementSubscribers() {
	m.activeSubscribers.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	TradesSettled     uint64
	SyncCycles        uint64
	HolderCycles      uint64
	TokensSynced      uint64
	ErrorsTotal       uint64
	AvgLatencyNs      int64
	ActiveSubscribers int32
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		TradesSettled:     m.tradesSettled.Load(),
		SyncCycles:        m.syncCycles.Load(),
		HolderCycles:      m.holderCycles.Load(),
		TokensSynced:      m.tokensSynced.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		AvgLatencyNs:      avgLatency,
		ActiveSubscribers: m.activeSubscribers.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.tradesSettled.Store(0)
	m.syncCycles.Store(0)
	m.holderCycles.Store(0)
	m.tokensSynced.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeSubscribers.Store(0)
}
