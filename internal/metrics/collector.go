// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Stream metrics (only for streaming operations)
	TotalDeltas int64
	TotalBytes  int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64

	// Stream stats (nil if not applicable)
	TotalDeltas *int64
	TotalBytes  *int64
	AvgDeltas   *float64
}

// Snapshot represents the full client statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	Generation    *OperationSnapshot
	StoreUpsert   *OperationSnapshot
	StoreList     *OperationSnapshot
	VoiceCapture  *OperationSnapshot
	LLMStream     *OperationSnapshot
}

// Operation names for the collector.
const (
	OpGeneration   = "generation_stream"
	OpStoreUpsert  = "store_upsert"
	OpStoreList    = "store_list"
	OpVoiceCapture = "voice_capture"
	OpLLMStream    = "llm_stream"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime: time.Duration(math.MaxInt64),
		}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordStream records timing plus delta and byte counts for a streaming
// operation.
func (c *Collector) RecordStream(op string, duration time.Duration, deltas, bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}

	m.TotalDeltas += deltas
	m.TotalBytes += bytes
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeStream bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includeStream && (m.TotalDeltas > 0 || m.TotalBytes > 0) {
		deltas := m.TotalDeltas
		bytes := m.TotalBytes
		avg := float64(m.TotalDeltas) / float64(m.Count)

		snap.TotalDeltas = &deltas
		snap.TotalBytes = &bytes
		snap.AvgDeltas = &avg
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Generation:    snapshotOp(c.ops[OpGeneration], true),
		StoreUpsert:   snapshotOp(c.ops[OpStoreUpsert], false),
		StoreList:     snapshotOp(c.ops[OpStoreList], false),
		VoiceCapture:  snapshotOp(c.ops[OpVoiceCapture], false),
		LLMStream:     snapshotOp(c.ops[OpLLMStream], true),
	}
}
