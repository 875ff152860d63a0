package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces cache keys in a shared Redis.
const DefaultRedisPrefix = "mawaqit:times:"

// RedisOptions configures a RedisTier.
type RedisOptions struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
	// TTL expires entries; zero keeps them until deleted.
	TTL time.Duration
}

// RedisTier stores entries as JSON values under Prefix + Key.String().
type RedisTier struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisTier connects to Redis and verifies the connection.
func NewRedisTier(ctx context.Context, opts RedisOptions) (*RedisTier, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisTierFromClient(rdb, opts.Prefix, opts.TTL), nil
}

// NewRedisTierFromClient wraps an existing client.
func NewRedisTierFromClient(rdb *redis.Client, prefix string, ttl time.Duration) *RedisTier {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisTier{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Name identifies the tier in logs.
func (r *RedisTier) Name() string {
	return "redis"
}

func (r *RedisTier) redisKey(key Key) string {
	return r.prefix + key.String()
}

// Get retrieves an entry by key.
func (r *RedisTier) Get(ctx context.Context, key Key) (Entry, bool, error) {
	raw, err := r.rdb.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("corrupt redis entry %s: %w", key, err)
	}
	return e, true, nil
}

// Put stores entry.
func (r *RedisTier) Put(ctx context.Context, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	if err := r.rdb.Set(ctx, r.redisKey(entry.Key), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes the entry for key.
func (r *RedisTier) Delete(ctx context.Context, key Key) error {
	if err := r.rdb.Del(ctx, r.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Latest scans keys sharing key's date and location prefix.
func (r *RedisTier) Latest(ctx context.Context, key Key) (Entry, bool, error) {
	pattern := r.prefix + key.LocationPrefix() + "*"

	var best Entry
	found := false
	iter := r.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		raw, err := r.rdb.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Entry{}, false, fmt.Errorf("redis get: %w", err)
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		if !found || e.StoredAt.After(best.StoredAt) {
			best, found = e, true
		}
	}
	if err := iter.Err(); err != nil {
		return Entry{}, false, fmt.Errorf("redis scan: %w", err)
	}
	return best, found, nil
}

// Close closes the client.
func (r *RedisTier) Close() error {
	return r.rdb.Close()
}
