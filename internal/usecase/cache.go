package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/example/id-verify/internal/ocr"
)

// TokenCache stores extracted token lists keyed by card-image hash so a user
// retry does not pay for re-extracting an unchanged image. Only derived OCR
// results are cached, never session state.
type TokenCache interface {
	PutTokens(ctx context.Context, key string, tokens []ocr.Token, ttl time.Duration) error
	// GetTokens reports found=false on a miss; a non-nil error means the
	// cache itself failed.
	GetTokens(ctx context.Context, key string) ([]ocr.Token, bool, error)
}

// RedisTokenCache is a TokenCache backed by go-redis, serializing token
// lists as JSON.
type RedisTokenCache struct {
	client *redis.Client
}

// NewRedisTokenCache constructs a Redis-backed token cache.
func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{client: client}
}

// PutTokens writes one side's token list under the given key.
func (c *RedisTokenCache) PutTokens(ctx context.Context, key string, tokens []ocr.Token, ttl time.Duration) error {
	serialized, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, string(serialized), ttl).Err()
}

// GetTokens reads one side's token list, treating redis.Nil as a plain miss.
func (c *RedisTokenCache) GetTokens(ctx context.Context, key string) ([]ocr.Token, bool, error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var tokens []ocr.Token
	if err := json.Unmarshal([]byte(value), &tokens); err != nil {
		return nil, false, err
	}
	return tokens, true, nil
}
