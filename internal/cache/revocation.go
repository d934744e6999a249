// Package cache keeps short-lived security state in Redis.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationCache remembers access-token hashes whose sessions were revoked,
// so protected requests can be refused without a database round trip. The
// database stays authoritative; a nil client turns every call into a no-op.
type RevocationCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRevocationCache returns a cache writing keys as "<prefix>:<hash>".
func NewRevocationCache(rdb *redis.Client, prefix string) *RevocationCache {
	if prefix == "" {
		prefix = "revoked"
	}
	return &RevocationCache{rdb: rdb, prefix: prefix}
}

func (c *RevocationCache) key(hash string) string { return c.prefix + ":" + hash }

// Revoke records hash for ttl. Non-positive ttls are ignored since the
// token has already expired.
func (c *RevocationCache) Revoke(ctx context.Context, hash string, ttl time.Duration) error {
	if c.rdb == nil || ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, c.key(hash), 1, ttl).Err()
}

// IsRevoked reports whether hash was recorded and has not yet aged out.
func (c *RevocationCache) IsRevoked(ctx context.Context, hash string) (bool, error) {
	if c.rdb == nil {
		return false, nil
	}
	n, err := c.rdb.Exists(ctx, c.key(hash)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
