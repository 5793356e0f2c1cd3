// Package directory keeps the user-facing lookups the appointment core reads
// but never owns: device push tokens and the set of faculty members.
package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"faculty_meetings_backend/platform/apperr"

	"github.com/redis/go-redis/v9"
)

const pushTokenKeyPrefix = "push:token:"

// TokenStore holds one push token per user. A later registration replaces the
// earlier one, and tokens expire after the configured TTL unless refreshed.
type TokenStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTokenStore creates a token store. A ttl of zero keeps tokens forever.
func NewTokenStore(rdb *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{rdb: rdb, ttl: ttl}
}

func pushTokenKey(userID string) string {
	return pushTokenKeyPrefix + userID
}

// Get returns the user's current token and whether one is registered.
func (s *TokenStore) Get(ctx context.Context, userID string) (string, bool, error) {
	token, err := s.rdb.Get(ctx, pushTokenKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

// Set registers token for userID, replacing any previous token.
func (s *TokenStore) Set(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperr.Validation("token is required")
	}
	return s.rdb.Set(ctx, pushTokenKey(userID), token, s.ttl).Err()
}

// Remove forgets the user's token. Removing a missing token is not an error.
func (s *TokenStore) Remove(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, pushTokenKey(userID)).Err()
}
