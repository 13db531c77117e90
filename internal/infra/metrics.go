package infra

import (
	"sync/atomic"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Session
	connectAttempts  atomic.Uint64
	handshakeRetries atomic.Uint64

	// Resolution
	resolveAttempts atomic.Uint64
	resolveFailures atomic.Uint64

	// Snapshot
	snapshotPolls    atomic.Uint64
	snapshotTimeouts atomic.Uint64

	// History
	historyWindows       atomic.Uint64
	historyWindowRetries atomic.Uint64
	historyWindowFailed  atomic.Uint64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordConnectAttempt records one Connect call.
func (m *Metrics) RecordConnectAttempt() {
	m.connectAttempts.Add(1)
}

// RecordHandshakeRetry records a handshake retried after a timeout.
func (m *Metrics) RecordHandshakeRetry() {
	m.handshakeRetries.Add(1)
}

// RecordResolveAttempt records one resolution strategy attempt.
func (m *Metrics) RecordResolveAttempt() {
	m.resolveAttempts.Add(1)
}

// RecordResolveFailure records a query that exhausted every strategy.
func (m *Metrics) RecordResolveFailure() {
	m.resolveFailures.Add(1)
}

// RecordSnapshotPoll records one snapshot sampling attempt.
func (m *Metrics) RecordSnapshotPoll() {
	m.snapshotPolls.Add(1)
}

// RecordSnapshotTimeout records a poll loop that expired with no data.
func (m *Metrics) RecordSnapshotTimeout() {
	m.snapshotTimeouts.Add(1)
}

// RecordHistoryWindow records one issued sub-window request.
func (m *Metrics) RecordHistoryWindow() {
	m.historyWindows.Add(1)
}

// RecordHistoryWindowRetry records a sub-window retried after a failure.
func (m *Metrics) RecordHistoryWindowRetry() {
	m.historyWindowRetries.Add(1)
}

// RecordHistoryWindowFailed records a sub-window that failed both attempts.
func (m *Metrics) RecordHistoryWindowFailed() {
	m.historyWindowFailed.Add(1)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	ConnectAttempts      uint64 `json:"connect_attempts"`
	HandshakeRetries     uint64 `json:"handshake_retries"`
	ResolveAttempts      uint64 `json:"resolve_attempts"`
	ResolveFailures      uint64 `json:"resolve_failures"`
	SnapshotPolls        uint64 `json:"snapshot_polls"`
	SnapshotTimeouts     uint64 `json:"snapshot_timeouts"`
	HistoryWindows       uint64 `json:"history_windows"`
	HistoryWindowRetries uint64 `json:"history_window_retries"`
	HistoryWindowFailed  uint64 `json:"history_window_failed"`
}

// Snapshot returns a consistent-enough copy for reporting.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		ConnectAttempts:      m.connectAttempts.Load(),
		HandshakeRetries:     m.handshakeRetries.Load(),
		ResolveAttempts:      m.resolveAttempts.Load(),
		ResolveFailures:      m.resolveFailures.Load(),
		SnapshotPolls:        m.snapshotPolls.Load(),
		SnapshotTimeouts:     m.snapshotTimeouts.Load(),
		HistoryWindows:       m.historyWindows.Load(),
		HistoryWindowRetries: m.historyWindowRetries.Load(),
		HistoryWindowFailed:  m.historyWindowFailed.Load(),
	}
}

// Reset zeroes all counters. Intended for tests.
func (m *Metrics) Reset() {
	m.connectAttempts.Store(0)
	m.handshakeRetries.Store(0)
	m.resolveAttempts.Store(0)
	m.resolveFailures.Store(0)
	m.snapshotPolls.Store(0)
	m.snapshotTimeouts.Store(0)
	m.historyWindows.Store(0)
	m.historyWindowRetries.Store(0)
	m.historyWindowFailed.Store(0)
}
