package redisx

import "time"

const (
	// Cheap order status lookups, keyed by the owning buyer:
	// order_status:{buyer_id}:{order_number} -> PENDING|PAID|CANCELLED
	KeyOrderStatus = "order_status:%s:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
