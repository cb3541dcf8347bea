package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"SaxoBridge/internal/domain/models"
	"SaxoBridge/internal/domain/repository"
)

// RedisCredentialStore keeps records as JSON strings under "<prefix>:cred:<key>".
type RedisCredentialStore struct {
	client *redis.Client
	prefix string
}

func NewRedisCredentialStore(client *redis.Client, prefix string) repository.CredentialStore {
	return &RedisCredentialStore{client: client, prefix: prefix + ":cred:"}
}

func (s *RedisCredentialStore) Load(ctx context.Context, key string) (*models.TokenRecord, error) {
	b, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get credentials: %w", err)
	}
	var rec models.TokenRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode credentials %s: %w", key, err)
	}
	return &rec, nil
}

// Save stores rec without expiry; stale records are removed by the token manager.
func (s *RedisCredentialStore) Save(ctx context.Context, key string, rec *models.TokenRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, b, 0).Err(); err != nil {
		return fmt.Errorf("redis set credentials: %w", err)
	}
	return nil
}

func (s *RedisCredentialStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del credentials: %w", err)
	}
	return nil
}

func (s *RedisCredentialStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan credentials: %w", err)
	}
	return keys, nil
}
