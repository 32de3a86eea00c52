// Package cache defines the key-value layer that session state is stored in.
package cache

import (
	"context"
	"time"
)

// Layer is a byte-oriented key-value store with per-entry expiry.
// Implementations must be safe for concurrent use.
type Layer interface {
	// Get returns the stored bytes or ErrKeyNotFound once the entry is
	// missing or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl means the layer default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Name identifies the layer in logs and metrics.
	Name() string

	Close() error
}

// Counter is implemented by layers that can report their live entry count.
type Counter interface {
	Len(ctx context.Context) (int, error)
}

// Pinger is implemented by layers backed by a remote server.
type Pinger interface {
	Ping(ctx context.Context) error
}
