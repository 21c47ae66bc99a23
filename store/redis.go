package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on top of a single Redis database
type RedisStore struct {
	rdb redis.UniversalClient
}

// RedisOptions holds connection settings for NewRedisStore
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects to Redis. The connection is lazy; call Ping to
// verify it.
func NewRedisStore(opts RedisOptions) *RedisStore {
	return &RedisStore{
		rdb: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
	}
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Set implements Setter (SET key value [EX seconds])
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrap("set", key, err)
	}
	return nil
}

// Get implements Getter
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("get", key, err)
	}
	return b, true, nil
}

// Incr implements Counter (INCRBY)
func (s *RedisStore) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := s.rdb.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, wrap("incrby", key, err)
	}
	return n, nil
}

// Append implements Lister (RPUSH)
func (s *RedisStore) Append(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.RPush(ctx, key, value).Err(); err != nil {
		return wrap("rpush", key, err)
	}
	return nil
}

// List implements Lister (LRANGE key 0 -1)
func (s *RedisStore) List(ctx context.Context, key string) ([][]byte, error) {
	vals, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, wrap("lrange", key, err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

// FlushAll clears the selected database (FLUSHDB)
func (s *RedisStore) FlushAll(ctx context.Context) error {
	if err := s.rdb.FlushDB(ctx).Err(); err != nil {
		return wrap("flushdb", "", err)
	}
	return nil
}

// Ping implements Store
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return wrap("ping", "", err)
	}
	return nil
}

// Close releases the underlying connection pool
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// wrap marks transport failures as ErrUnavailable. Reply errors from the
// server (wrong type, not an integer) mean the backend answered, so they are
// passed through without the marker.
func wrap(op, key string, err error) error {
	var rerr redis.Error
	if errors.As(err, &rerr) {
		return fmt.Errorf("redis %s %q: %w", op, key, err)
	}
	return fmt.Errorf("%w: redis %s %q: %w", ErrUnavailable, op, key, err)
}

var _ Store = (*RedisStore)(nil)
