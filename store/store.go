// Package store provides a minimal capability interface over an external
// key-value service, with a Redis implementation and an in-process one.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the backing service cannot be reached
var ErrUnavailable = errors.New("store unavailable")

// Getter reads single values
type Getter interface {
	// Get returns the value at key. A missing or expired key is reported
	// with ok=false and a nil error.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
}

// Setter writes single values
type Setter interface {
	// Set overwrites key unconditionally. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Counter provides atomic integer counters
type Counter interface {
	// Incr adds delta to the counter at key, creating it at delta if absent,
	// and returns the new value.
	Incr(ctx context.Context, key string, delta int64) (int64, error)
}

// Lister provides append-only ordered lists
type Lister interface {
	// Append pushes value onto the end of the list at key
	Append(ctx context.Context, key string, value []byte) error
	// List returns the whole list at key, empty if absent
	List(ctx context.Context, key string) ([][]byte, error)
}

// Store combines all operations the cache components need
type Store interface {
	Getter
	Setter
	Counter
	Lister

	// FlushAll removes every key. Only test setup calls this.
	FlushAll(ctx context.Context) error
	// Ping checks the backend is reachable
	Ping(ctx context.Context) error
}
