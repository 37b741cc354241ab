// Package pipeline defines the normalized event that the ledger and the
// analyzer emit and the alerting engine consumes.
package pipeline

import (
	"context"
	"sync"
	"time"
)

// Priority of an event or alert.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Event types emitted by the pipeline components.
const (
	EventActivityRecorded  = "activity_recorded"
	EventTaskCreated       = "task_created"
	EventTaskStatusChanged = "task_status_changed"
	EventFileChanged       = "file_changed"
	EventHighImpactChange  = "high_impact_change"
	EventThresholdExceeded = "threshold_exceeded"
	EventMonitoringStarted = "monitoring_started"
	EventMonitoringStopped = "monitoring_stopped"
	EventReportGenerated   = "report_generated"
	EventTest              = "test"
)

// Event is a normalized pipeline event.
type Event struct {
	Type        string         `json:"type"`
	ProjectPath string         `json:"project_path,omitempty"`
	AgentID     string         `json:"agent_id,omitempty"`
	Message     string         `json:"message"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Priority    Priority       `json:"priority"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Sink receives pipeline events. Implementations must not block for long;
// emission is best-effort and errors are the sink's to log.
type Sink interface {
	HandleEvent(ctx context.Context, e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event)

func (f SinkFunc) HandleEvent(ctx context.Context, e Event) { f(ctx, e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) {})

// Fanout delivers each event to every registered sink in registration order.
// It is safe for concurrent use; sinks may be added after emitters start.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

// Add registers a sink.
func (f *Fanout) Add(s Sink) {
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
}

func (f *Fanout) HandleEvent(ctx context.Context, e Event) {
	f.mu.RLock()
	sinks := append([]Sink(nil), f.sinks...)
	f.mu.RUnlock()
	for _, s := range sinks {
		s.HandleEvent(ctx, e)
	}
}

// OrDiscard returns s, or Discard when s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}
