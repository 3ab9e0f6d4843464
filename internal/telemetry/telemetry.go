// Package telemetry delivers lifecycle events to dashboards, logs and the
// local activity store.
package telemetry

import (
	"context"
	"errors"
	"time"
)

// Kind groups events by the endpoint that receives them.
type Kind string

const (
	KindActivity     Kind = "activity"
	KindMetric       Kind = "metric"
	KindNotification Kind = "notification"
)

// Event is one telemetry record.
type Event struct {
	Kind        Kind           `json:"kind"`
	Type        string         `json:"type"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	AgentID     string         `json:"agent_id,omitempty"`
	Priority    string         `json:"priority,omitempty"`
	Value       *float64       `json:"value,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Time        time.Time      `json:"timestamp"`
}

// Activity builds an activity event.
func Activity(typ, title, description, agentID string, metadata map[string]any) Event {
	return Event{
		Kind:        KindActivity,
		Type:        typ,
		Title:       title,
		Description: description,
		AgentID:     agentID,
		Metadata:    metadata,
		Time:        time.Now(),
	}
}

// Metric builds a named numeric measurement.
func Metric(name string, value float64, metadata map[string]any) Event {
	return Event{
		Kind:     KindMetric,
		Type:     name,
		Value:    &value,
		Metadata: metadata,
		Time:     time.Now(),
	}
}

// Notification builds a user-facing notification.
func Notification(typ, title, message, priority string) Event {
	return Event{
		Kind:        KindNotification,
		Type:        typ,
		Title:       title,
		Description: message,
		Priority:    priority,
		Time:        time.Now(),
	}
}

// Sink receives events.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Emit(ctx context.Context, e Event) error { return f(ctx, e) }

// Nop discards events.
var Nop Sink = SinkFunc(func(context.Context, Event) error { return nil })

type multi []Sink

// Multi fans out to every non-nil sink. All sinks are tried; their errors
// are joined.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	if len(m) == 0 {
		return Nop
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}

func (m multi) Emit(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
