package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker remembers revoked token ids until the token would have expired.
// Revoke returns ErrRevoked when jti was already revoked, so only one caller
// can spend a token.
type Revoker interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	Revoked(ctx context.Context, jti string) (bool, error)
}

// RedisRevoker keeps revoked ids as expiring Redis keys.
type RedisRevoker struct {
	rdb    redis.Cmdable
	prefix string
	now    func() time.Time
}

func NewRedisRevoker(rdb redis.Cmdable) *RedisRevoker {
	return &RedisRevoker{rdb: rdb, prefix: "auth:revoked:", now: time.Now}
}

func (r *RedisRevoker) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	ok, err := r.rdb.SetNX(ctx, r.prefix+jti, 1, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrRevoked
	}
	return nil
}

func (r *RedisRevoker) Revoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.prefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRevoker is the in-process Revoker used when Redis is not configured.
type MemoryRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{revoked: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryRevoker) Revoke(_ context.Context, jti string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, exp := range m.revoked {
		if !exp.After(now) {
			delete(m.revoked, id)
		}
	}
	if !until.After(now) {
		return nil
	}
	if _, ok := m.revoked[jti]; ok {
		return ErrRevoked
	}
	m.revoked[jti] = until
	return nil
}

func (m *MemoryRevoker) Revoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.revoked[jti]
	return ok && exp.After(m.now()), nil
}
