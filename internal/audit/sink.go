// Package audit publishes order-transition events. Recording is best-effort:
// nothing in here may fail the flow that called it.
package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/verdex/carbonmarket/internal/kafka"
	"github.com/verdex/carbonmarket/internal/market"
)

type Sink interface {
	Record(ctx context.Context, ev market.AuditEvent)
}

// KafkaSink wraps the async producer. Publish only enqueues; broker errors
// are logged in the producer loop and never reach the caller.
type KafkaSink struct {
	Producer *kafkax.Producer
	Service  string
}

func (s *KafkaSink) Record(ctx context.Context, ev market.AuditEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("audit marshal: %v", err)
		return
	}
	env := market.Envelope{
		EventID:       uuid.NewString(),
		EventType:     ev.Event,
		EventVersion:  1,
		OccurredAt:    ev.OccurredAt,
		Producer:      s.Service,
		CorrelationID: ev.OrderID,
		Payload:       payload,
	}
	s.Producer.Publish(market.PartitionKey(ev.OrderID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(ev.Event)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// Nop is for tests and for running without a broker.
type Nop struct{}

func (Nop) Record(context.Context, market.AuditEvent) {}
