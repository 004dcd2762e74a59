// Package balancecache provides the advisory cache in front of balance reads.
//
// A Backend stores opaque bytes. Typed wraps a Backend for a single key namespace whose
// values all share one Go type, so no runtime type tags are stored alongside values.
package balancecache

import (
	"context"
	"encoding/json"
	"time"
)

// Backend is a byte oriented key/value store with optional expiry.
type Backend interface {
	// Get returns the value stored under key. ok is false on a miss.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes the keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

// Typed is a cache namespace holding values of type V.
type Typed[V any] struct {
	backend Backend
	prefix  string
	ttl     time.Duration
}

// NewTyped returns the namespace prefix on backend. Every key passed to the returned
// cache is stored as prefix+key.
func NewTyped[V any](backend Backend, prefix string, ttl time.Duration) *Typed[V] {
	return &Typed[V]{
		backend: backend,
		prefix:  prefix,
		ttl:     ttl,
	}
}

// Get returns the cached value for key. hit is false on a miss. A value that no longer
// decodes as V is treated as a miss.
func (c *Typed[V]) Get(ctx context.Context, key string) (value V, hit bool, err error) {
	raw, ok, err := c.backend.Get(ctx, c.prefix+key)
	if err != nil || !ok {
		return value, false, err
	}

	if err := json.Unmarshal(raw, &value); err != nil {
		var zero V
		return zero, false, nil
	}

	return value, true, nil
}

// Put stores value under key.
func (c *Typed[V]) Put(ctx context.Context, key string, value V) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.backend.Set(ctx, c.prefix+key, raw, c.ttl)
}

// Evict removes the keys.
func (c *Typed[V]) Evict(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.prefix + k
	}

	return c.backend.Delete(ctx, prefixed...)
}
