package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"rpcdrift/internal/serialkey"
)

//go:generate mockgen -source=redis.go -destination=mock/redis_client.go -package=mock

// RedisClient is the subset of the go-redis client used by the Redis store
type RedisClient interface {
	// Get retrieves a value by key
	Get(ctx context.Context, key string) *redis.StringCmd

	// Set stores a value with expiration
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd

	// Exists counts how many of keys exist
	Exists(ctx context.Context, keys ...string) *redis.IntCmd

	// Del deletes one or more keys
	Del(ctx context.Context, keys ...string) *redis.IntCmd

	// Scan iterates keys matching a pattern
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// DefaultRedisPrefix namespaces every key written by the Redis store
const DefaultRedisPrefix = "rpcdrift:"

const redisScanCount = 256

// RedisConfig configures a Redis store
type RedisConfig struct {
	Prefix string
	TTL    time.Duration
	Logger zerolog.Logger
}

// Redis is a Store backed by Redis or KeyDB. Values are JSON encoded, so
// they come back as generic JSON values (numbers as json.Number).
// Capacity and eviction are left to the server's maxmemory policy.
type Redis struct {
	client RedisClient
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedis creates a new Redis store
func NewRedis(client RedisClient, cfg RedisConfig) *Redis {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    cfg.TTL,
		logger: cfg.Logger.With().Str("component", "redis-store").Logger(),
	}
}

func (s *Redis) redisKey(key any) (string, error) {
	_, ks, err := encodeKey(key)
	if err != nil {
		return "", err
	}
	return s.prefix + ks, nil
}

// Has implements Store
func (s *Redis) Has(ctx context.Context, key any) (bool, error) {
	rk, err := s.redisKey(key)
	if err != nil {
		return false, err
	}
	n, err := s.client.Exists(ctx, rk).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Get implements Store
func (s *Redis) Get(ctx context.Context, key any) (any, bool, error) {
	rk, err := s.redisKey(key)
	if err != nil {
		return nil, false, err
	}
	return s.get(ctx, rk)
}

func (s *Redis) get(ctx context.Context, rk string) (any, bool, error) {
	data, err := s.client.Get(ctx, rk).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	value, err := decodeValue(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode cached value: %w", err)
	}
	return value, true, nil
}

// Set implements Store
func (s *Redis) Set(ctx context.Context, key any, value any) error {
	rk, err := s.redisKey(key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	if err := s.client.Set(ctx, rk, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements Store
func (s *Redis) Delete(ctx context.Context, key any) error {
	rk, err := s.redisKey(key)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, rk).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear implements Store. Only keys under the store prefix are removed.
func (s *Redis) Clear(ctx context.Context) error {
	keys, err := s.scan(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	s.logger.Debug().Int("keys", len(keys)).Msg("store cleared")
	return nil
}

// Entries implements Store
func (s *Redis) Entries(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := s.each(ctx, func(e Entry) bool {
		entries = append(entries, e)
		return true
	})
	return entries, err
}

// Find implements Store
func (s *Redis) Find(ctx context.Context, pred func(Entry) bool) (Entry, bool, error) {
	var found Entry
	var ok bool
	err := s.each(ctx, func(e Entry) bool {
		if pred(e) {
			found, ok = e, true
			return false
		}
		return true
	})
	return found, ok, err
}

// each loads every entry under the prefix and calls fn until it returns false.
// Keys that disappear between SCAN and GET are skipped.
func (s *Redis) each(ctx context.Context, fn func(Entry) bool) error {
	keys, err := s.scan(ctx)
	if err != nil {
		return err
	}
	for _, rk := range keys {
		k, err := serialkey.Parse(strings.TrimPrefix(rk, s.prefix))
		if err != nil {
			s.logger.Warn().Err(err).Str("key", rk).Msg("skipping unparsable key")
			continue
		}
		value, found, err := s.get(ctx, rk)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if !fn(Entry{Key: k, Value: value}) {
			return nil
		}
	}
	return nil
}

func (s *Redis) scan(ctx context.Context) ([]string, error) {
	match := escapeGlob(s.prefix) + "*"
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, redisScanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func decodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// escapeGlob escapes characters that have meaning in a SCAN MATCH pattern
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
