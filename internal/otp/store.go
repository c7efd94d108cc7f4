// Package otp stores one-time codes in Redis, keyed by purpose and identity.
// A code issued for one purpose never validates for another: the purpose is
// part of the key, not an attribute of the value.
package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Purpose scopes a code to the flow that issued it
type Purpose string

const (
	PurposeRegister       Purpose = "register"
	PurposeLogin          Purpose = "login"
	PurposePasswordUpdate Purpose = "password-update"
)

// Store errors
var (
	// ErrNotFound covers both never-issued and expired codes; Redis TTL
	// makes the two indistinguishable, which is the behavior we want
	ErrNotFound = errors.New("otp not found or expired")
	// ErrMismatch indicates a live code exists but the supplied value is wrong
	ErrMismatch = errors.New("otp does not match")
)

// Store keeps at most one live code per identity+purpose pair
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewStore creates a Store with the given code lifetime
func NewStore(client redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(purpose Purpose, identity string) string {
	return fmt.Sprintf("otp:%s:%s", purpose, strings.ToLower(identity))
}

// Put stores a code, overwriting any previous code for the same
// identity+purpose and restarting the TTL
func (s *Store) Put(ctx context.Context, purpose Purpose, identity, code string) error {
	return s.client.Set(ctx, s.key(purpose, identity), code, s.ttl).Err()
}

// Consume verifies and deletes the code in one step (one-time use).
// A wrong supplied code leaves the stored code in place until it expires.
func (s *Store) Consume(ctx context.Context, purpose Purpose, identity, supplied string) error {
	key := s.key(purpose, identity)

	stored, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return err
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) != 1 {
		return ErrMismatch
	}

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return err
	}
	return nil
}

// Delete drops any live code for the pair. Used to roll back an issued code
// when the notification send fails.
func (s *Store) Delete(ctx context.Context, purpose Purpose, identity string) error {
	return s.client.Del(ctx, s.key(purpose, identity)).Err()
}
