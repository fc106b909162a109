// Package lock provides short-lived keyed locks so that one generation is
// polled by at most one worker at a time.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another holder owns the key.
var ErrHeld = errors.New("lock held")

const releaseScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"

// Keyed hands out locks by name. release is always safe to call once.
type Keyed interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// Locker is a single redis lock owned by value.
type Locker struct {
	client redis.UniversalClient
	key    string
	value  string
}

func NewLocker(client redis.UniversalClient, key, value string) *Locker {
	return &Locker{client: client, key: key, value: value}
}

func (l *Locker) Lock(ctx context.Context, ttl time.Duration) error {
	ok, err := l.client.SetNX(ctx, l.key, l.value, ttl).Result()
	if err != nil {
		return fmt.Errorf("lock %s: %w", l.key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrHeld, l.key)
	}
	return nil
}

// Unlock deletes the key only if it still carries our value.
func (l *Locker) Unlock(ctx context.Context) error {
	n, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("unlock %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("unlock %s: expired or not the holder", l.key)
	}
	return nil
}

// RedisKeyed shares locks across processes.
type RedisKeyed struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisKeyed(client redis.UniversalClient, prefix string) *RedisKeyed {
	return &RedisKeyed{client: client, prefix: prefix}
}

func (r *RedisKeyed) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l := NewLocker(r.client, r.prefix+key, uuid.NewString())
	if err := l.Lock(ctx, ttl); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			// The key expires on its own if this fails.
			_ = l.Unlock(context.WithoutCancel(ctx))
		})
	}, nil
}

// LocalKeyed is an in-process Keyed for single-instance deployments.
type LocalKeyed struct {
	mu   sync.Mutex
	held map[string]localHold
	seq  uint64
	now  func() time.Time
}

type localHold struct {
	token   uint64
	expires time.Time
}

func NewLocalKeyed() *LocalKeyed {
	return &LocalKeyed{held: make(map[string]localHold), now: time.Now}
}

func (l *LocalKeyed) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.held[key]; ok && now.Before(h.expires) {
		return nil, fmt.Errorf("%w: %s", ErrHeld, key)
	}
	l.seq++
	token := l.seq
	l.held[key] = localHold{token: token, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if h, ok := l.held[key]; ok && h.token == token {
				delete(l.held, key)
			}
		})
	}, nil
}

var (
	_ Keyed = (*RedisKeyed)(nil)
	_ Keyed = (*LocalKeyed)(nil)
)
