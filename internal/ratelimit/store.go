// Package ratelimit enforces per-client fixed-window request and token
// budgets over a pluggable key-value store.
package ratelimit

import (
	"context"
	"time"
)

// Store is the persistence behind the limiter. Get returns nil with no error
// when the key is absent. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Record is one client's state within the current window.
type Record struct {
	WindowStart int64   `json:"windowStart"`
	Timestamps  []int64 `json:"timestamps"`
	TokenCount  int     `json:"tokenCount"`
}
