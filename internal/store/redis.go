package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// queueIndexKey is the set of queue names seen by Push. Queue discovery
// reads this index instead of scanning the keyspace, because an empty Redis
// list key disappears and would hide idle queues from the sweep.
const queueIndexKey = "queues:index"

// releaseScript deletes a lock key only while it still holds the caller's
// token, so an expired-and-reacquired lock is never released by the old
// holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisConfig holds connection settings for the Redis fabric.
type RedisConfig struct {
	// Addrs is the candidate address list, tried in order.
	Addrs       []string
	DB          int
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

// RedisStore implements Store on a single Redis instance.
type RedisStore struct {
	client *redis.Client
}

// NewRedis connects to the first reachable address from the candidate list,
// retrying the whole list with exponential backoff before giving up.
func NewRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("redis: no addresses configured")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 3 * time.Second
	}

	maxRounds := 3
	baseDelay := 500 * time.Millisecond

	var lastErr error
	for round := 0; round < maxRounds; round++ {
		for _, addr := range cfg.Addrs {
			client := redis.NewClient(&redis.Options{
				Addr:        addr,
				DB:          cfg.DB,
				DialTimeout: cfg.DialTimeout,
				ReadTimeout: cfg.ReadTimeout,
			})

			pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
			err := client.Ping(pingCtx).Err()
			cancel()
			if err == nil {
				slog.Info("Connected to Redis", "addr", addr, "db", cfg.DB)
				return &RedisStore{client: client}, nil
			}

			slog.Warn("Redis candidate unreachable", "addr", addr, "error", err)
			lastErr = err
			_ = client.Close()
		}

		if round < maxRounds-1 {
			delay := baseDelay * time.Duration(1<<round)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("redis: no reachable address in %v: %w", cfg.Addrs, lastErr)
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Append(ctx context.Context, key string, value []byte) (int64, error) {
	n, err := s.client.Append(ctx, key, string(value)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis append %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) Len(ctx context.Context, key string) (int64, error) {
	n, err := s.client.StrLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis strlen %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) GetDel(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis getdel %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) HIncrBy(ctx context.Context, key, field string, delta int64) error {
	if err := s.client.HIncrBy(ctx, key, field, delta).Err(); err != nil {
		return fmt.Errorf("redis hincrby %s.%s: %w", key, field, err)
	}
	return nil
}

func (s *RedisStore) HSet(ctx context.Context, key, field, value string) error {
	if err := s.client.HSet(ctx, key, field, value).Err(); err != nil {
		return fmt.Errorf("redis hset %s.%s: %w", key, field, err)
	}
	return nil
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", key, err)
	}
	return m, nil
}

func (s *RedisStore) Push(ctx context.Context, queue string, value []byte) error {
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, queue, value)
	pipe.SAdd(ctx, queueIndexKey, queue)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis push %s: %w", queue, err)
	}
	return nil
}

func (s *RedisStore) Pop(ctx context.Context, queues []string, wait time.Duration) (string, []byte, error) {
	res, err := s.client.BRPop(ctx, wait, queues...).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("redis brpop: %w", err)
	}
	// BRPOP returns [queue, value].
	return res[0], []byte(res[1]), nil
}

func (s *RedisStore) Queues(ctx context.Context, prefix string) ([]string, error) {
	names, err := s.client.SMembers(ctx, queueIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis queue index: %w", err)
	}
	matched := names[:0]
	for _, name := range names {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			matched = append(matched, name)
		}
	}
	return matched, nil
}

func (s *RedisStore) Publish(ctx context.Context, channel string, value []byte) error {
	if err := s.client.Publish(ctx, channel, value).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

func (s *RedisStore) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	ps := s.client.Subscribe(ctx, channel)
	// Force the SUBSCRIBE round trip so a dead connection fails here, not
	// silently in the receive loop.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	return &Subscription{
		C:     out,
		close: func() { _ = ps.Close() },
	}, nil
}

func (s *RedisStore) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return s.SetNX(ctx, key, []byte(token), ttl)
}

func (s *RedisStore) ReleaseLock(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, s.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis release lock %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
