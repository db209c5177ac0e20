// Package redisfetch provides a batch fetch function backed by redis: each
// chunk of keys is read with a single MGET.
package redisfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/civicsource/fetch-helpers/pkg/batch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	redisMGetTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_redis_mget_total",
		Help: "Total redis MGET calls by result",
	}, []string{"result"})

	redisKeysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_redis_keys_total",
		Help: "Total keys looked up in redis by result",
	}, []string{"result"})
)

// Entry is one item read from redis. It marshals as its raw value.
type Entry struct {
	Key   string
	Value json.RawMessage
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	return e.Value, nil
}

// KeyOf is the batch.KeyFunc for entries.
func KeyOf(e Entry) string {
	return e.Key
}

// Source reads JSON items stored under prefix+key.
type Source struct {
	redis  *redis.Client
	prefix string
	logger zerolog.Logger
}

// New creates a new redis source.
func New(redisClient *redis.Client, prefix string, logger zerolog.Logger) *Source {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Source{
		redis:  redisClient,
		prefix: prefix,
		logger: logger.With().Str("component", "redis-source").Logger(),
	}
}

// Fetch reads all keys with one MGET. Missing keys and values that are not
// valid JSON are left out of the response, so the coordinator rejects them as
// not found. Extra arguments are ignored.
func (s *Source) Fetch(ctx context.Context, keys []string, extra ...any) (batch.Response[Entry], error) {
	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = s.prefix + key
	}

	values, err := s.redis.MGet(ctx, redisKeys...).Result()
	if err != nil {
		redisMGetTotal.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Int("keys", len(keys)).Msg("Redis MGET failed")
		return batch.Response[Entry]{}, fmt.Errorf("redis mget: %w", err)
	}
	redisMGetTotal.WithLabelValues("ok").Inc()

	entries := make([]Entry, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			redisKeysTotal.WithLabelValues("miss").Inc()
			continue
		}
		if !json.Valid([]byte(str)) {
			redisKeysTotal.WithLabelValues("miss").Inc()
			s.logger.Warn().Str("key", redisKeys[i]).Msg("Skipping non-JSON value")
			continue
		}
		redisKeysTotal.WithLabelValues("hit").Inc()
		entries = append(entries, Entry{Key: keys[i], Value: json.RawMessage(str)})
	}

	s.logger.Debug().
		Int("keys", len(keys)).
		Int("found", len(entries)).
		Msg("Fetched batch from redis")

	return batch.Items(entries...), nil
}

// Put stores a JSON item under key. A zero ttl means no expiration.
func (s *Source) Put(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %q is not valid json", key)
	}
	if err := s.redis.Set(ctx, s.prefix+key, []byte(value), ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks the redis connection.
func (s *Source) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}
