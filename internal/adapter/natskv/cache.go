// Package natskv implements the cache port on a NATS JetStream KV bucket so
// several orchestrator processes can share one discovery snapshot.
package natskv

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// headerLen is the size of the expiry prefix stored before every value.
const headerLen = 8

// Cache wraps a KeyValue bucket. The bucket TTL is an upper bound; per-key
// TTLs are enforced by an expiry prefix on each stored value.
type Cache struct {
	kv  jetstream.KeyValue
	now func() time.Time
}

// New creates a KV-backed cache.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv, now: time.Now}
}

// Get returns the value for key unless it is absent or expired.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	value, expires, valid := decode(entry.Value())
	if !valid {
		return nil, false, nil
	}
	if !expires.IsZero() && !c.now().Before(expires) {
		return nil, false, nil
	}
	return value, true, nil
}

// Set stores value under key. A zero ttl defers expiry to the bucket.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = c.now().Add(ttl)
	}
	_, err := c.kv.Put(ctx, key, encode(value, expires))
	return err
}

// Delete removes key from the bucket.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

func encode(value []byte, expires time.Time) []byte {
	buf := make([]byte, headerLen+len(value))
	if !expires.IsZero() {
		binary.BigEndian.PutUint64(buf, uint64(expires.UnixNano()))
	}
	copy(buf[headerLen:], value)
	return buf
}

func decode(raw []byte) (value []byte, expires time.Time, ok bool) {
	if len(raw) < headerLen {
		return nil, time.Time{}, false
	}
	if ns := binary.BigEndian.Uint64(raw); ns != 0 {
		expires = time.Unix(0, int64(ns))
	}
	return raw[headerLen:], expires, true
}
