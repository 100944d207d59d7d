// Package redisstore wraps the Redis operations used by the document backends.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/spatial-entities/internal/core/observability"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithMinIdleConns(n int) Option {
	return func(o *redis.Options) { o.MinIdleConns = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

type Client struct {
	rdb *redis.Client
}

func observe(op string, start time.Time) {
	observability.ObserveBackendLatency("redis", op, time.Since(start).Seconds())
}

func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     64,
		MinIdleConns: 4,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observe("ping", start)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Ping reports whether the server answers.
func (c *Client) Ping(ctx context.Context) error {
	defer observe("ping", time.Now())
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// MGet returns a map of found keys to their values
func (c *Client) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	defer observe("mget", time.Now())
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}

	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis MGET %d keys: %w", len(keys), err)
	}

	out := make(map[string][]byte, len(vals))
	for i, v := range vals {
		if v == nil {
			continue // missing key
		}
		switch t := v.(type) {
		case string:
			out[keys[i]] = []byte(t)
		case []byte:
			out[keys[i]] = t
		default:
			out[keys[i]] = fmt.Append(nil, t)
		}
	}
	return out, nil
}

func (c *Client) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	defer observe("set", time.Now())
	if err := c.rdb.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %q: %w", key, err)
	}
	return nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	defer observe("del", time.Now())
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis DEL %d keys: %w", len(keys), err)
	}
	return nil
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	defer observe("smembers", time.Now())
	out, err := c.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS %q: %w", key, err)
	}
	return out, nil
}

func (c *Client) SIsMember(ctx context.Context, key, member string) (bool, error) {
	defer observe("sismember", time.Now())
	ok, err := c.rdb.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("redis SISMEMBER %q: %w", key, err)
	}
	return ok, nil
}

// SUnion returns the members of all sets; missing keys count as empty sets.
func (c *Client) SUnion(ctx context.Context, keys ...string) ([]string, error) {
	defer observe("sunion", time.Now())
	if len(keys) == 0 {
		return nil, nil
	}
	out, err := c.rdb.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SUNION %d keys: %w", len(keys), err)
	}
	return out, nil
}

func (c *Client) SCard(ctx context.Context, key string) (int64, error) {
	defer observe("scard", time.Now())
	n, err := c.rdb.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis SCARD %q: %w", key, err)
	}
	return n, nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

// Batch collects writes that Exec applies in one MULTI/EXEC transaction.
type Batch struct {
	ops []func(ctx context.Context, p redis.Pipeliner)
}

func (b *Batch) Len() int { return len(b.ops) }

func (b *Batch) Set(key string, val []byte, ttl time.Duration) {
	b.ops = append(b.ops, func(ctx context.Context, p redis.Pipeliner) { p.Set(ctx, key, val, ttl) })
}

func (b *Batch) Del(keys ...string) {
	if len(keys) == 0 {
		return
	}
	b.ops = append(b.ops, func(ctx context.Context, p redis.Pipeliner) { p.Del(ctx, keys...) })
}

func (b *Batch) SAdd(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	args := toArgs(members)
	b.ops = append(b.ops, func(ctx context.Context, p redis.Pipeliner) { p.SAdd(ctx, key, args...) })
}

func (b *Batch) SRem(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	args := toArgs(members)
	b.ops = append(b.ops, func(ctx context.Context, p redis.Pipeliner) { p.SRem(ctx, key, args...) })
}

func toArgs(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func (c *Client) Exec(ctx context.Context, b *Batch) error {
	defer observe("exec", time.Now())
	if b == nil || len(b.ops) == 0 {
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, op := range b.ops {
			op(ctx, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis EXEC %d ops: %w", len(b.ops), err)
	}
	return nil
}
