package job

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
)

// LockKey guards the contingency drain across instances.
const LockKey = "billing:contingency-sync"

// ErrLockNotObtained is returned by RunOnce when another worker is draining the queue.
var ErrLockNotObtained = errors.New("contingency sync lock held by another worker")

// RunLocker serializes sync runs across processes. Release is called once the run ends.
type RunLocker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// RedisRunLocker is a RunLocker on top of redislock.
type RedisRunLocker struct {
	client *redislock.Client
}

func NewRedisRunLocker(client redislock.RedisClient) *RedisRunLocker {
	return &RedisRunLocker{client: redislock.New(client)}
}

func (l *RedisRunLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockNotObtained
	}
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}
