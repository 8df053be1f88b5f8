package market

import (
	"encoding/json"
	"time"
)

// Audit event names, one per order transition.
const (
	EventOrderCreated       = "created"
	EventCreditsUnavailable = "credits_unavailable"
	EventPaymentDeclined    = "payment_declined"
	EventOrderConfirmed     = "confirmed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// AuditEvent records one order state transition. FromStatus is empty for the
// creation event.
type AuditEvent struct {
	OrderID    string            `json:"order_id"`
	Event      string            `json:"event"`
	FromStatus Status            `json:"from_status,omitempty"`
	ToStatus   Status            `json:"to_status"`
	Actor      string            `json:"actor,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
