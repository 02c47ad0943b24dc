package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rotateScript = `
local value = redis.call("GET", KEYS[1])
if not value then
  return false
end
redis.call("DEL", KEYS[1])
redis.call("SET", KEYS[2], value, "PX", ARGV[1])
return value
`

var rotateLua = redis.NewScript(rotateScript)

const deleteIfEqualScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var deleteIfEqualLua = redis.NewScript(deleteIfEqualScript)

const sweepBatch = 256

// RedisStore implements [TokenStore], [Rotator], [Creator] and [Sweeper]
// on top of a go-redis client. The client's connection pool serves
// concurrent callers.
type RedisStore struct {
	redis redis.UniversalClient
}

// NewRedisStore wraps client. The client is owned by the caller.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if err := s.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// SetIfAbsent writes key only when it is not already live.
func (s *RedisStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	ok, err := s.redis.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

// Rotate atomically reads oldKey, deletes it and writes its value under
// newKey with ttl. A missing oldKey yields [ErrNotFound] and writes nothing.
//
// Both keys are touched by one script, so on Redis Cluster they must hash
// to the same slot.
func (s *RedisStore) Rotate(ctx context.Context, oldKey, newKey string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}

	value, err := rotateLua.Run(ctx, s.redis, []string{oldKey, newKey}, ttl.Milliseconds()).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return value, nil
}

// DeleteByValue scans prefix* and deletes the keys holding value. It is a
// best-effort sweep: keys written while the scan runs may be missed.
func (s *RedisStore) DeleteByValue(ctx context.Context, prefix, value string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, prefix+"*", sweepBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		for _, key := range keys {
			n, err := deleteIfEqualLua.Run(ctx, s.redis, []string{key}, value).Int()
			if err != nil {
				return deleted, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			deleted += n
		}

		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// Ping reports whether the backend is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
