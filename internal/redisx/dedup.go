package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Deduper is the best-effort duplicate-event filter in front of the durable
// processed_events check. Redis being down never blocks processing; Seen just
// answers false.
type Deduper struct {
	R       *redis.Client
	Service string
}

func (d *Deduper) Seen(ctx context.Context, eventID string) bool {
	if d == nil || d.R == nil {
		return false
	}
	ok, err := Exists(ctx, d.R, fmt.Sprintf(KeyEventDedup, d.Service, eventID))
	return err == nil && ok
}

func (d *Deduper) Mark(ctx context.Context, eventID string) {
	if d == nil || d.R == nil {
		return
	}
	_ = d.R.Set(ctx, fmt.Sprintf(KeyEventDedup, d.Service, eventID), "1", TTLDedup).Err()
}
