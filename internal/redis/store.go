package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/grandmasters-wiki/internal/config"
)

const keyPrefix = "gmwiki:"

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// JSONStore keeps JSON encoded values in Redis hashes under one namespace.
// Each key holds the fields payload and fetched_at (unix millis).
type JSONStore[V any] struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	logger    *slog.Logger
}

// NewJSONStore creates a store whose keys expire ttl after each save.
// A zero ttl keeps keys until they are deleted.
func NewJSONStore[V any](client *redis.Client, namespace string, ttl time.Duration, logger *slog.Logger) *JSONStore[V] {
	return &JSONStore[V]{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
		logger:    logger,
	}
}

func (s *JSONStore[V]) key(k string) string {
	return keyPrefix + s.namespace + ":" + k
}

// Load reads the value stored under k
func (s *JSONStore[V]) Load(ctx context.Context, k string) (V, time.Time, bool, error) {
	var zero V

	fields, err := s.client.HGetAll(ctx, s.key(k)).Result()
	if err != nil {
		return zero, time.Time{}, false, fmt.Errorf("loading %s: %w", k, err)
	}
	if len(fields) == 0 {
		return zero, time.Time{}, false, nil
	}

	var v V
	if err := json.Unmarshal([]byte(fields["payload"]), &v); err != nil {
		return zero, time.Time{}, false, fmt.Errorf("decoding %s: %w", k, err)
	}

	ms, err := strconv.ParseInt(fields["fetched_at"], 10, 64)
	if err != nil {
		return zero, time.Time{}, false, fmt.Errorf("parsing fetched_at of %s: %w", k, err)
	}
	return v, time.UnixMilli(ms), true, nil
}

// Save writes v under k and refreshes its expiry
func (s *JSONStore[V]) Save(ctx context.Context, k string, v V, fetchedAt time.Time) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", k, err)
	}

	key := s.key(k)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "payload", string(payload), "fetched_at", fetchedAt.UnixMilli())
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving %s: %w", k, err)
	}
	return nil
}

// Delete removes k
func (s *JSONStore[V]) Delete(ctx context.Context, k string) error {
	if err := s.client.Del(ctx, s.key(k)).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", k, err)
	}
	return nil
}

// Clear removes every key in the namespace
func (s *JSONStore[V]) Clear(ctx context.Context) error {
	pattern := keyPrefix + s.namespace + ":*"
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()

	var batch []string
	deleted := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return err
		}
		deleted += len(batch)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			if err := flush(); err != nil {
				return fmt.Errorf("clearing %s: %w", s.namespace, err)
			}
		}
	}
	if err := iter.Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("scanning %s: %w", s.namespace, err)
	}
	if err := flush(); err != nil {
		return fmt.Errorf("clearing %s: %w", s.namespace, err)
	}

	s.logger.Debug("cleared redis namespace", "namespace", s.namespace, "keys", deleted)
	return nil
}
