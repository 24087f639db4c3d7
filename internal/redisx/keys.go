package redisx

import "time"

const (
	// Idempotency for order placement: idem:order:place:{key} -> order_id
	KeyIdemOrderPlace = "idem:order:place:%s"

	// Cache of order status: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%d"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
