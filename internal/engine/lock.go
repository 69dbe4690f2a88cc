package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/google/uuid"
)

// PollLock keeps two pollers from running the same tick at once.
//
// TryAcquire never blocks waiting for the holder. ok=false means another
// poller holds the lock and this tick should be skipped.
type PollLock interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// LocalPollLock serialises ticks within one process.
type LocalPollLock struct {
	mu sync.Mutex
}

// NewLocalPollLock creates an unheld in-process lock.
func NewLocalPollLock() *LocalPollLock {
	return &LocalPollLock{}
}

// TryAcquire implements PollLock.
func (l *LocalPollLock) TryAcquire(context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}

// DefaultLeaseTTL bounds how long a crashed poller can hold the Redis lease.
const DefaultLeaseTTL = 2 * time.Minute

// releaseScript deletes the lease only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisPollLock is a SETNX lease shared by every process polling the same
// database. The lease expires after ttl if its holder dies mid-tick.
type RedisPollLock struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisPollLock creates a lease under "<namespace>:poll:lock".
func NewRedisPollLock(client redis.UniversalClient, namespace string, ttl time.Duration) *RedisPollLock {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &RedisPollLock{
		client: client,
		key:    namespaceKey(namespace, "poll", "lock"),
		ttl:    ttl,
	}
}

// NewRedisClient builds a client for the given comma-separated addresses.
func NewRedisClient(addrs string) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: strings.Split(addrs, ","),
	})
}

// TryAcquire implements PollLock.
func (l *RedisPollLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// Best effort; an unreleased lease expires after ttl.
		_ = releaseScript.Run(context.Background(), l.client, []string{l.key}, owner).Err()
	}
	return release, true, nil
}

func namespaceKey(namespace string, args ...string) string {
	if namespace == "" {
		namespace = "autoboard"
	}
	return fmt.Sprintf("%s:%s", namespace, strings.Join(args, ":"))
}
