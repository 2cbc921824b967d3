package server

import (
	"sync/atomic"
	"time"

	"github.com/Brownie44l1/staticd/internal/response"
)

// Metrics holds server runtime counters
type Metrics struct {
	ConnectionsTotal  atomic.Int64
	ActiveConnections atomic.Int64
	RequestsTotal     atomic.Int64
	NotFoundTotal     atomic.Int64
	IdleTimeouts      atomic.Int64
	Disconnects       atomic.Int64
	ReadFailures      atomic.Int64
	WriteFailures     atomic.Int64

	TotalLatencyNs atomic.Int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) ConnectionOpened() {
	m.ConnectionsTotal.Add(1)
	m.ActiveConnections.Add(1)
}

func (m *Metrics) ConnectionClosed() {
	m.ActiveConnections.Add(-1)
}

// RecordResponse records a response that was sent
func (m *Metrics) RecordResponse(status response.StatusCode, duration time.Duration) {
	m.RequestsTotal.Add(1)
	m.TotalLatencyNs.Add(duration.Nanoseconds())

	if status == response.StatusNotFound {
		m.NotFoundTotal.Add(1)
	}
}

// AverageLatency returns average request latency
func (m *Metrics) AverageLatency() time.Duration {
	totalReqs := m.RequestsTotal.Load()
	if totalReqs == 0 {
		return 0
	}

	avgNs := m.TotalLatencyNs.Load() / totalReqs
	return time.Duration(avgNs)
}

// MetricsSnapshot is a point-in-time copy of Metrics
type MetricsSnapshot struct {
	ConnectionsTotal  int64
	ActiveConnections int64
	RequestsTotal     int64
	NotFoundTotal     int64
	IdleTimeouts      int64
	Disconnects       int64
	ReadFailures      int64
	WriteFailures     int64
	AverageLatency    time.Duration
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		ConnectionsTotal:  m.ConnectionsTotal.Load(),
		ActiveConnections: m.ActiveConnections.Load(),
		RequestsTotal:     m.RequestsTotal.Load(),
		NotFoundTotal:     m.NotFoundTotal.Load(),
		IdleTimeouts:      m.IdleTimeouts.Load(),
		Disconnects:       m.Disconnects.Load(),
		ReadFailures:      m.ReadFailures.Load(),
		WriteFailures:     m.WriteFailures.Load(),
		AverageLatency:    m.AverageLatency(),
	}
}
