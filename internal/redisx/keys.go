package redisx

import "time"

const (
	// Webhook event dedup fast path: dedup:{service}:{event_id}.
	// The processed_events table stays authoritative; this key only
	// short-circuits repeat deliveries.
	KeyEventDedup = "dedup:%s:%s"

	// Cached order status for GET /orders/{id}: order_status:{order_id}
	KeyOrderStatus = "order_status:%s"
)

var (
	TTLDedup       = 48 * time.Hour
	TTLStatusCache = 5 * time.Minute
)
