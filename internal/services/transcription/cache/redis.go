package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"jumpcut/internal/domain"
)

const redisKeyPrefix = "jumpcut:transcript:"

// Redis stores word lists as JSON under a prefixed key.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) ([]domain.Word, bool, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var words []domain.Word
	if err := json.Unmarshal(data, &words); err != nil {
		return nil, false, err
	}
	return words, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, words []domain.Word, ttl time.Duration) error {
	data, err := json.Marshal(words)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
