package service

import (
	"context"
	"fmt"
	"time"

	"go-clinic-appointment/pkg/jwt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TokenStore is the allow-list of issued tokens. A token absent from the
// store is treated as revoked even if its signature is valid.
type TokenStore interface {
	Store(ctx context.Context, userID uuid.UUID, tokenType jwt.TokenType, tokenID string, ttl time.Duration) error
	Exists(ctx context.Context, userID uuid.UUID, tokenType jwt.TokenType, tokenID string) (bool, error)
	Revoke(ctx context.Context, userID uuid.UUID, tokenType jwt.TokenType, tokenID string) error
}

type redisTokenStore struct {
	client *redis.Client
}

func NewRedisTokenStore(client *redis.Client) TokenStore {
	return &redisTokenStore{client: client}
}

// tokenKey yields access_token:<user>:<id> or refresh_token:<user>:<id>
func tokenKey(userID uuid.UUID, tokenType jwt.TokenType, tokenID string) string {
	return fmt.Sprintf("%s_token:%s:%s", tokenType, userID.String(), tokenID)
}

func (s *redisTokenStore) Store(ctx context.Context, userID uuid.UUID, tokenType jwt.TokenType, tokenID string, ttl time.Duration) error {
	return s.client.Set(ctx, tokenKey(userID, tokenType, tokenID), "valid", ttl).Err()
}

func (s *redisTokenStore) Exists(ctx context.Context, userID uuid.UUID, tokenType jwt.TokenType, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, tokenKey(userID, tokenType, tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisTokenStore) Revoke(ctx context.Context, userID uuid.UUID, tokenType jwt.TokenType, tokenID string) error {
	return s.client.Del(ctx, tokenKey(userID, tokenType, tokenID)).Err()
}
