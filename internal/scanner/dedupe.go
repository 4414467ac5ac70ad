package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper claims record fingerprints for a TTL. Claim reports false when the
// fingerprint was already claimed and has not expired.
type Deduper interface {
	Claim(ctx context.Context, fingerprint string) (bool, error)
	Release(ctx context.Context, fingerprint string) error
}

const keyScanSeen = "scanner:seen:"

type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

func (d *MemoryDeduper) Claim(_ context.Context, fingerprint string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for fp, exp := range d.seen {
		if now.After(exp) {
			delete(d.seen, fp)
		}
	}
	if _, ok := d.seen[fingerprint]; ok {
		return false, nil
	}
	d.seen[fingerprint] = now.Add(d.ttl)
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, fingerprint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, fingerprint)
	return nil
}

type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, fingerprint string) (bool, error) {
	return d.rdb.SetNX(ctx, redisKey(fingerprint), 1, d.ttl).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, fingerprint string) error {
	return d.rdb.Del(ctx, redisKey(fingerprint)).Err()
}

func redisKey(fingerprint string) string {
	return keyScanSeen + fingerprint
}
