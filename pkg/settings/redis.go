package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/kumarabd/gokit/logger"
	"github.com/redis/go-redis/v9"
)

type redisKV struct {
	client *redis.Client
}

func (r *redisKV) get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to GET %s from redis: %w", key, err)
	}
	return v, nil
}

func (r *redisKV) set(ctx context.Context, values map[string]string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, k, v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save settings to redis: %w", err)
	}
	return nil
}

func (r *redisKV) del(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to DEL %s from redis: %w", key, err)
	}
	return nil
}

// NewRedis connects to redis and checks the connection.
func NewRedis(ctx context.Context, config *Config, log *logger.Handler) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.RedisAddr, err)
	}
	return NewRedisWithClient(client, log), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, log *logger.Handler) Store {
	return &store{kv: &redisKV{client: client}, log: log}
}
