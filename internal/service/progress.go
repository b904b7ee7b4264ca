package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/timmy/sentiscope/internal/logger"
)

// ProgressEventType distinguishes the two progress notifications of a batch.
type ProgressEventType string

const (
	EventBatchStart    ProgressEventType = "batch_start"
	EventBatchComplete ProgressEventType = "batch_complete"
)

// ProgressEvent is pushed to the reporter around every batch.
type ProgressEvent struct {
	Type           ProgressEventType `json:"type"`
	JobID          string            `json:"job_id"`
	BatchIndex     int               `json:"batch_index"`
	TotalBatches   int               `json:"total_batches"`
	ProcessedCount int               `json:"processed_count"`
	TotalCount     int               `json:"total_count"`
	Communities    []string          `json:"communities"`
	ElapsedMs      int64             `json:"elapsed_ms"`
	// EtaMs extrapolates the remaining time from completed batches; 0 when unknown.
	EtaMs int64 `json:"eta_ms"`
}

// ProgressReporter observes a running harvest. Implementations must return
// quickly; the orchestrator calls them inline between batches.
type ProgressReporter interface {
	Report(ctx context.Context, event ProgressEvent)
}

// ReporterFunc adapts a function to ProgressReporter.
type ReporterFunc func(ctx context.Context, event ProgressEvent)

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, event ProgressEvent) {
	f(ctx, event)
}

// MultiReporter fans one event out to several reporters in order.
type MultiReporter []ProgressReporter

// Report forwards the event to every non-nil reporter.
func (m MultiReporter) Report(ctx context.Context, event ProgressEvent) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, event)
		}
	}
}

// LogReporter writes each event to the context logger.
type LogReporter struct{}

// Report logs the event.
func (LogReporter) Report(ctx context.Context, event ProgressEvent) {
	logger.With(logger.Fields{
		logger.FieldBatch: event.BatchIndex,
		"total_batches":   event.TotalBatches,
		"processed":       event.ProcessedCount,
		"total":           event.TotalCount,
		"eta_ms":          event.EtaMs,
	}).Info(ctx, "Harvest %s %d/%d", event.Type, event.BatchIndex, event.TotalBatches)
}

// ChannelReporter publishes events into a buffered channel for a consumer
// that pulls them. Events are dropped instead of blocking when the buffer
// is full.
type ChannelReporter struct {
	mu      sync.RWMutex
	ch      chan ProgressEvent
	closed  bool
	dropped atomic.Int64
}

// NewChannelReporter creates a reporter with the given buffer size.
// Parameters:
//   - buffer: channel capacity; values < 1 use 1.
// Returns:
//   - *ChannelReporter: reporter whose Events channel the caller drains.
func NewChannelReporter(buffer int) *ChannelReporter {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelReporter{ch: make(chan ProgressEvent, buffer)}
}

// Report enqueues the event without blocking.
func (c *ChannelReporter) Report(_ context.Context, event ProgressEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- event:
	default:
		c.dropped.Add(1)
	}
}

// Events returns the receive side of the channel.
func (c *ChannelReporter) Events() <-chan ProgressEvent {
	return c.ch
}

// Dropped returns how many events were discarded because the buffer was full.
func (c *ChannelReporter) Dropped() int64 {
	return c.dropped.Load()
}

// Close closes the events channel. Later reports are ignored.
func (c *ChannelReporter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

// estimateRemaining extrapolates the time left from the average batch duration.
func estimateRemaining(elapsedMs int64, completedBatches, totalBatches int) int64 {
	if completedBatches <= 0 || completedBatches >= totalBatches {
		return 0
	}
	perBatch := elapsedMs / int64(completedBatches)
	return perBatch * int64(totalBatches-completedBatches)
}
