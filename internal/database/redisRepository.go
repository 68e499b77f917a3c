package database

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

type redisTemplateRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisRepository(ctx context.Context, client *redis.Client, prefix string) (TemplateRepository, error) {
	// Проверка подключения
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &redisTemplateRepository{client: client, prefix: prefix}, nil
}

func (r *redisTemplateRepository) Get(ctx context.Context, key, def string) (string, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (r *redisTemplateRepository) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.prefix+key, value, 0).Err()
}
