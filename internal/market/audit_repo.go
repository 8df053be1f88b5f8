package market

import "context"

// AuditRepo persists order-transition events consumed from the audit topic.
// Insert is idempotent on event_id, so redelivered messages are harmless.
type AuditRepo struct{ DB DB }

func (r *AuditRepo) Insert(ctx context.Context, eventID, producer string, ev AuditEvent) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO audit_events (event_id, order_id, event, from_status, to_status,
		                          actor, metadata, producer, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, ev.OrderID, ev.Event, string(ev.FromStatus), string(ev.ToStatus),
		ev.Actor, ev.Metadata, producer, ev.OccurredAt)
	return err
}
