package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dayplan/internal/config"
	"dayplan/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockPrefix      = "dayplan:lock:"
	rateLimitPrefix = "dayplan:rate_limit:"
	deadLetterKey   = "dayplan:sync:deadletter"

	// deadLetterCap bounds the dead-letter list.
	deadLetterCap = 1000
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisRepository struct {
	client *redis.Client
}

// NewRedisClient builds a client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

// Acquire takes key for ttl with SET NX PX. ok is false when someone else
// holds it. release is a no-op once the lock has expired and been taken over.
func (r *RedisRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if r.client == nil {
		return nil, false, errors.New("redis client is nil")
	}

	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, lockPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The caller's ctx may already be done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, r.client, []string{lockPrefix + key}, token).Err()
	}
	return release, true, nil
}

// PushDeadLetter records an entry that ran out of retries.
func (r *RedisRepository) PushDeadLetter(ctx context.Context, entry *models.SyncQueueEntry) error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, deadLetterKey, data)
	pipe.LTrim(ctx, deadLetterKey, 0, deadLetterCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push dead letter: %w", err)
	}
	return nil
}

// DeadLetters returns the newest dead-lettered entries first.
func (r *RedisRepository) DeadLetters(ctx context.Context, limit int) ([]models.SyncQueueEntry, error) {
	if r.client == nil {
		return nil, errors.New("redis client is nil")
	}
	if limit <= 0 {
		limit = 50
	}
	raw, err := r.client.LRange(ctx, deadLetterKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters: %w", err)
	}

	entries := make([]models.SyncQueueEntry, 0, len(raw))
	for _, item := range raw {
		var entry models.SyncQueueEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *RedisRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errors.New("redis client is nil")
	}
	k := rateLimitPrefix + key
	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, k, window)
	}

	return count <= int64(limit), nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
