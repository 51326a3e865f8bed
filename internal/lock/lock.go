// Package lock provides the per-group lease that keeps two crawlers from
// syncing the same group at once.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Release when the lease expired or was taken over.
var ErrNotHeld = errors.New("lock not held")

// Locker hands out expiring leases keyed by name.
type Locker interface {
	// TryAcquire takes the lease for key, returning ok=false without waiting
	// when somebody else holds it.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (lease Lease, ok bool, err error)
}

// Lease is a held lock.
type Lease interface {
	// Refresh extends the lease to ttl from now. It fails with ErrNotHeld once
	// the lease expired or was taken over.
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

func randToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// RedisLocker keeps leases in Redis with SET NX PX so they are shared by
// every process pointed at the same server.
type RedisLocker struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisLocker returns a Locker storing keys under prefix.
func NewRedisLocker(rdb redis.UniversalClient, prefix string) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: prefix}
}

// unlockScript deletes the key only while it still carries our token.
var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// refreshScript moves the expiry only while the key still carries our token.
var refreshScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	token, err := randToken()
	if err != nil {
		return nil, false, err
	}
	full := l.prefix + key
	ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", full, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{rdb: l.rdb, key: full, token: token}, true, nil
}

type redisLease struct {
	rdb   redis.UniversalClient
	key   string
	token string
}

func (r *redisLease) Refresh(ctx context.Context, ttl time.Duration) error {
	n, err := refreshScript.Run(ctx, r.rdb, []string{r.key}, r.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to refresh lock %s: %w", r.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (r *redisLease) Release(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, r.rdb, []string{r.key}, r.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", r.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// LocalLocker is an in-process Locker for single-instance deployments.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localEntry
	nowFn func() time.Time
}

type localEntry struct {
	token   string
	expires time.Time
}

// NewLocalLocker returns an empty in-process Locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localEntry), nowFn: time.Now}
}

func (l *LocalLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	token, err := randToken()
	if err != nil {
		return nil, false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFn()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, false, nil
	}
	l.held[key] = localEntry{token: token, expires: now.Add(ttl)}
	return &localLease{l: l, key: key, token: token}, true, nil
}

type localLease struct {
	l     *LocalLocker
	key   string
	token string
}

func (r *localLease) Refresh(_ context.Context, ttl time.Duration) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	now := r.l.nowFn()
	e, ok := r.l.held[r.key]
	if !ok || e.token != r.token || !now.Before(e.expires) {
		return ErrNotHeld
	}
	r.l.held[r.key] = localEntry{token: r.token, expires: now.Add(ttl)}
	return nil
}

func (r *localLease) Release(context.Context) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	e, ok := r.l.held[r.key]
	if !ok || e.token != r.token {
		return ErrNotHeld
	}
	delete(r.l.held, r.key)
	return nil
}
