package kafka

import (
	"context"
	"strings"
	"time"
)

// EventType names a domain event
type EventType string

const (
	EventIntegrationConnected EventType = "integration.connected"
	EventSyncCompleted        EventType = "sync.completed"
	EventSyncFailed           EventType = "sync.failed"
	EventWebhookProcessed     EventType = "webhook.processed"
	EventWebhookFailed        EventType = "webhook.failed"
	EventAlertToggled         EventType = "alert.toggled"
)

// IsFailure reports whether the event records a failed operation
func (t EventType) IsFailure() bool {
	return strings.HasSuffix(string(t), ".failed")
}

// Event is the envelope for every domain event
type Event struct {
	Type      EventType      `json:"type"`
	TenantID  string         `json:"tenant_id"`
	Platform  string         `json:"platform,omitempty"`
	AccountID string         `json:"account_id,omitempty"`
	Status    string         `json:"status,omitempty"`
	Error     string         `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`

	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// Key is the partition key
func (e *Event) Key() string {
	return e.TenantID + ":" + e.Platform + ":" + e.AccountID
}

// Publisher publishes domain events
type Publisher interface {
	Publish(ctx context.Context, evt *Event) error
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *Event) error { return nil }
