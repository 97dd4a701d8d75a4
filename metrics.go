package kmeansmr

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting pipeline metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordStage is called after each stage. records is the number of
	// records the stage wrote, err is nil if successful.
	RecordStage(stage Stage, duration time.Duration, records int64, err error)

	// RecordPublish is called after each centroid publish.
	RecordPublish(round uint64, k int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordStage(Stage, time.Duration, int64, error)   {}
func (NoopMetricsCollector) RecordPublish(uint64, int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	StageCount        atomic.Int64
	StageErrors       atomic.Int64
	StageRecords      atomic.Int64
	StageTotalNanos   atomic.Int64
	RefineRounds      atomic.Int64
	PublishCount      atomic.Int64
	PublishErrors     atomic.Int64
	PublishTotalNanos atomic.Int64
	LastRound         atomic.Uint64
}

// RecordStage implements MetricsCollector.
func (b *BasicMetricsCollector) RecordStage(stage Stage, duration time.Duration, records int64, err error) {
	b.StageCount.Add(1)
	b.StageTotalNanos.Add(duration.Nanoseconds())
	b.StageRecords.Add(records)
	if stage == StageRefine {
		b.RefineRounds.Add(1)
	}
	if err != nil {
		b.StageErrors.Add(1)
	}
}

// RecordPublish implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPublish(round uint64, _ int, duration time.Duration, err error) {
	b.PublishCount.Add(1)
	b.PublishTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PublishErrors.Add(1)
		return
	}
	b.LastRound.Store(round)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		StageCount:      b.StageCount.Load(),
		StageErrors:     b.StageErrors.Load(),
		StageRecords:    b.StageRecords.Load(),
		StageAvgNanos:   avg(b.StageTotalNanos.Load(), b.StageCount.Load()),
		RefineRounds:    b.RefineRounds.Load(),
		PublishCount:    b.PublishCount.Load(),
		PublishErrors:   b.PublishErrors.Load(),
		PublishAvgNanos: avg(b.PublishTotalNanos.Load(), b.PublishCount.Load()),
		LastRound:       b.LastRound.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	StageCount      int64
	StageErrors     int64
	StageRecords    int64
	StageAvgNanos   int64
	RefineRounds    int64
	PublishCount    int64
	PublishErrors   int64
	PublishAvgNanos int64
	LastRound       uint64
}
