package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "billing:idempotency:"

// RedisStore shares reservations between instances. Expiry is delegated to redis key TTLs.
type RedisStore struct {
	client redis.Cmdable
	opts   Options
}

func NewRedisStore(client redis.Cmdable, opts Options) *RedisStore {
	return &RedisStore{client: client, opts: opts.withDefaults()}
}

var _ Store = (*RedisStore)(nil)

func redisKey(tenantID, key string) string {
	return redisKeyPrefix + tenantID + ":" + key
}

func (s *RedisStore) Reserve(ctx context.Context, tenantID, key, payloadHash string) (bool, error) {
	b, err := s.encode(Entry{PayloadHash: payloadHash})
	if err != nil {
		return false, err
	}
	ok, err := s.client.SetNX(ctx, redisKey(tenantID, key), b, s.opts.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis reserve: %w", err)
	}
	return ok, nil
}

// FindEntry treats an undecodable value as unknown and drops it so the key can be reserved again.
func (s *RedisStore) FindEntry(ctx context.Context, tenantID, key string) (*Entry, error) {
	k := redisKey(tenantID, key)
	raw, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		if delErr := s.client.Del(ctx, k).Err(); delErr != nil {
			return nil, fmt.Errorf("redis drop corrupt entry: %w", delErr)
		}
		return nil, nil
	}
	return &e, nil
}

func (s *RedisStore) AwaitCompletion(ctx context.Context, tenantID, key string, timeout time.Duration) (*Entry, error) {
	return awaitCompletion(ctx, func(ctx context.Context) (*Entry, error) {
		return s.FindEntry(ctx, tenantID, key)
	}, timeout, s.opts.PollInterval)
}

func (s *RedisStore) Complete(ctx context.Context, tenantID, key, payloadHash, documentID string) error {
	b, err := s.encode(Entry{DocumentID: documentID, PayloadHash: payloadHash})
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKey(tenantID, key), b, s.opts.TTL).Err(); err != nil {
		return fmt.Errorf("redis complete: %w", err)
	}
	return nil
}

func (s *RedisStore) Invalidate(ctx context.Context, tenantID, key string) error {
	if err := s.client.Del(ctx, redisKey(tenantID, key)).Err(); err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}

func (s *RedisStore) encode(e Entry) ([]byte, error) {
	e.ExpiresAt = s.opts.Now().Add(s.opts.TTL).UTC()
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}
	return b, nil
}
