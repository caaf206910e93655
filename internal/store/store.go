// Package store persists queue item snapshots so the daemon can restore
// its queue across restarts. Backends are selected by URL; records are
// opaque JSON blobs keyed by item id.
package store

import (
	"context"
	"time"
)

// keyPrefix namespaces queue records in shared backends.
const keyPrefix = "queue_item:"

// Store is the queue persistence backend. A ttl of zero means the record
// never expires; terminal items are written with a finite ttl so history
// ages out on its own.
type Store interface {
	Put(ctx context.Context, id string, data []byte, ttl time.Duration) error
	Get(ctx context.Context, id string) ([]byte, bool, error)
	Delete(ctx context.Context, id string) error
	// Scan visits every live record. Iteration order is unspecified; a
	// non-nil error from fn aborts the scan.
	Scan(ctx context.Context, fn func(id string, data []byte) error) error
	Close() error
}
