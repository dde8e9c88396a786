package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions locate the Redis server.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// Redis shares snapshots between service instances.
type Redis struct {
	rdb *redis.Client
}

var _ Cache = (*Redis)(nil)

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, o RedisOptions) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: redis ping %s: %w", ErrUnavailable, o.Addr, err)
	}
	return &Redis{rdb: rdb}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %w", ErrUnavailable, key, err)
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrUnavailable, key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: del %s: %w", ErrUnavailable, key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
