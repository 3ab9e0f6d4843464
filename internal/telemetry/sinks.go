package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marcus/agentrouter/internal/db"
	"github.com/marcus/agentrouter/internal/logging"
)

// HTTPSink posts events as JSON to a dashboard:
// activities to /activity, metrics to /metrics, notifications to /notifications.
type HTTPSink struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSink creates a sink for the dashboard at baseURL.
func NewHTTPSink(baseURL string, client *http.Client) *HTTPSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSink{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func endpoint(k Kind) string {
	switch k {
	case KindMetric:
		return "/metrics"
	case KindNotification:
		return "/notifications"
	default:
		return "/activity"
	}
}

// Emit posts e. Non-2xx responses are errors.
func (s *HTTPSink) Emit(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+endpoint(e.Kind), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting %s event: %w", e.Kind, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("posting %s event: dashboard returned %s", e.Kind, resp.Status)
	}
	return nil
}

// LogSink writes events to a logger.
type LogSink struct {
	log *logging.Logger
}

// NewLogSink creates a sink logging to l.
func NewLogSink(l *logging.Logger) *LogSink {
	return &LogSink{log: l}
}

func (s *LogSink) Emit(_ context.Context, e Event) error {
	fields := map[string]any{
		"kind": string(e.Kind),
		"type": e.Type,
	}
	if e.AgentID != "" {
		fields["agent_id"] = e.AgentID
	}
	if e.Value != nil {
		fields["value"] = *e.Value
	}
	if e.Priority != "" {
		fields["priority"] = e.Priority
	}
	for k, v := range e.Metadata {
		fields["meta_"+k] = v
	}

	msg := e.Title
	if msg == "" {
		msg = e.Type
	}
	if e.Kind == KindNotification && (e.Priority == "high" || e.Priority == "critical") {
		s.log.WarnCtx(msg, fields)
		return nil
	}
	s.log.InfoCtx(msg, fields)
	return nil
}

// StoreSink persists events to the activity database.
type StoreSink struct {
	db *db.DB
}

// NewStoreSink creates a sink writing to database.
func NewStoreSink(database *db.DB) *StoreSink {
	return &StoreSink{db: database}
}

func (s *StoreSink) Emit(ctx context.Context, e Event) error {
	_, err := s.db.InsertEvent(ctx, db.EventRow{
		Kind:        string(e.Kind),
		Type:        e.Type,
		Title:       e.Title,
		Description: e.Description,
		AgentID:     e.AgentID,
		Priority:    e.Priority,
		Value:       e.Value,
		Metadata:    e.Metadata,
		CreatedAt:   e.Time,
	})
	return err
}
