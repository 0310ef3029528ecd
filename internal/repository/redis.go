package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"slotkeeper/internal/config"
	"slotkeeper/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	settingsKey    = "booking_settings"
	slotLockPrefix = "slot_lock:"
	rateLimitKey   = "rate_limit:"
)

// ErrLockTimeout is returned when a slot lock could not be taken before ctx expired.
var ErrLockTimeout = errors.New("slot lock wait timed out")

// releaseScript deletes the lock only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisStore keeps the shared settings cache, slot locks and rate-limit
// counters, so several API replicas agree on them.
type RedisStore struct {
	client       *redis.Client
	settingsTTL  time.Duration
	pollInterval time.Duration
}

func NewRedisStore(client *redis.Client, settingsTTL time.Duration) *RedisStore {
	return &RedisStore{
		client:       client,
		settingsTTL:  settingsTTL,
		pollInterval: 10 * time.Millisecond,
	}
}

func (r *RedisStore) GetSettings(ctx context.Context) (*models.BookingSettings, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, settingsKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings from redis: %w", err)
	}

	var settings models.BookingSettings
	if err := json.Unmarshal([]byte(val), &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return &settings, nil
}

func (r *RedisStore) SetSettings(ctx context.Context, settings *models.BookingSettings) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := r.client.Set(ctx, settingsKey, data, r.settingsTTL).Err(); err != nil {
		return fmt.Errorf("failed to set settings in redis: %w", err)
	}
	return nil
}

func (r *RedisStore) InvalidateSettings(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, settingsKey).Err(); err != nil {
		return fmt.Errorf("failed to delete settings from redis: %w", err)
	}
	return nil
}

// Acquire polls SET NX until the lock is taken or ctx is done.
func (r *RedisStore) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	lockKey := slotLockPrefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
			}
			return nil, fmt.Errorf("failed to acquire slot lock: %w", err)
		}
		if ok {
			return r.releaser(lockKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-time.After(r.pollInterval):
		}
	}
}

func (r *RedisStore) releaser(lockKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// владелец уже мог отменить свой ctx, поэтому отдельный таймаут
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, r.client, []string{lockKey}, token).Err()
		})
	}
}

func (r *RedisStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	redisKey := rateLimitKey + key
	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, redisKey, window)
	}

	return count <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
