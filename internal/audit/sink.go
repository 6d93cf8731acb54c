// Package audit defines the mutation event stream emitted by the
// authorization engine and the sinks that consume it.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Actions emitted by the authorization engine, one per successful mutation.
const (
	ActionRoleCreated       = "role:created"
	ActionRoleReparented    = "role:reparented"
	ActionPermissionCreated = "permission:created"
	ActionPermissionGranted = "permission:assigned"
	ActionPermissionRevoked = "permission:removed"
	ActionRoleAssigned      = "role:assigned"
	ActionRoleRemoved       = "role:removed"
)

// Event describes a single successful mutation of the authorization stores.
type Event struct {
	ID           string         `json:"id"`
	Action       string         `json:"action"`
	RoleID       string         `json:"role_id,omitempty"`
	PermissionID string         `json:"permission_id,omitempty"`
	SubjectID    string         `json:"subject_id,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	At           time.Time      `json:"at"`
}

// NewEvent stamps an event with an identifier and timestamp.
func NewEvent(action string) Event {
	return Event{
		ID:     uuid.NewString(),
		Action: action,
		At:     time.Now().UTC(),
	}
}

// Sink receives one event per successful mutation, synchronously, before the
// mutation call returns. A failing sink must never roll back the mutation
// that triggered it.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink backed by the given logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record logs the event.
func (s *LogSink) Record(ctx context.Context, ev Event) error {
	if s == nil || s.logger == nil {
		return nil
	}
	s.logger.InfoContext(ctx, "authz mutation",
		slog.String("event_id", ev.ID),
		slog.String("action", ev.Action),
		slog.String("role_id", ev.RoleID),
		slog.String("permission_id", ev.PermissionID),
		slog.String("subject_id", ev.SubjectID),
	)
	return nil
}

// FanoutSink forwards each event to every child sink. The first error is
// returned after all sinks have been attempted.
type FanoutSink struct {
	sinks []Sink
}

// NewFanoutSink combines sinks; nil entries are skipped.
func NewFanoutSink(sinks ...Sink) *FanoutSink {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &FanoutSink{sinks: kept}
}

// Record delivers the event to all child sinks.
func (s *FanoutSink) Record(ctx context.Context, ev Event) error {
	var first error
	for _, child := range s.sinks {
		if err := child.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// MemorySink captures events for inspection in tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record appends the event.
func (s *MemorySink) Record(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of everything recorded so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Reset clears recorded events.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
