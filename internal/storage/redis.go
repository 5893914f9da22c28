package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dalfonso89/currency-rates-service/internal/config"
)

// RedisStorage keeps payloads in redis with a fixed time-to-live
type RedisStorage struct {
	client *redis.Client
	expire time.Duration
}

// NewRedisStorage wraps an existing client
func NewRedisStorage(client *redis.Client, expire time.Duration) *RedisStorage {
	return &RedisStorage{
		client: client,
		expire: expire,
	}
}

// NewRedisStorageFromURL connects to the server in settings.URL and checks it is reachable
func NewRedisStorageFromURL(ctx context.Context, settings config.RedisConfig) (*RedisStorage, error) {
	options, err := redis.ParseURL(settings.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if settings.ConnectTimeout > 0 {
		options.DialTimeout = settings.ConnectTimeout
	}

	pingTimeout := options.DialTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}

	client := redis.NewClient(options)

	pingContext, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingContext).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStorage(client, settings.KeyExpire), nil
}

func (redisStorage *RedisStorage) Kind() Kind {
	return KindRedis
}

func (redisStorage *RedisStorage) Key(date time.Time, currency string) string {
	return DeriveKey(KindRedis, date, currency)
}

// Fetch returns the payload under key; an expired or unknown key is a miss
func (redisStorage *RedisStorage) Fetch(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := redisStorage.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, &StorageError{Backend: KindRedis, Op: "fetch", Key: key, Err: err}
	}
	return payload, true, nil
}

// Store sets key to payload with the configured expiry
func (redisStorage *RedisStorage) Store(ctx context.Context, key string, payload []byte) ([]byte, error) {
	if err := redisStorage.client.Set(ctx, key, payload, redisStorage.expire).Err(); err != nil {
		return nil, &StorageError{Backend: KindRedis, Op: "store", Key: key, Err: err}
	}
	return payload, nil
}

// Ping checks if Redis is reachable
func (redisStorage *RedisStorage) Ping(ctx context.Context) error {
	return redisStorage.client.Ping(ctx).Err()
}

// Close closes the Redis connection pool
func (redisStorage *RedisStorage) Close() error {
	return redisStorage.client.Close()
}
