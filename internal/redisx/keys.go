package redisx

import "time"

const (
	// Cache order status, scoped to the owning company:
	// order_status:{company_id}:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
