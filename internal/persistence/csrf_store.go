package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/funding-auth/internal/auth"
)

// CsrfStore keeps CSRF fingerprints in Redis, one string key per binding.
type CsrfStore struct {
	client    redis.Cmdable
	prefix    string
	opTimeout time.Duration
}

// NewCsrfStore builds a store over client. Every call is bounded by opTimeout in addition
// to the caller's context; a non-positive opTimeout leaves only the caller's deadline.
func NewCsrfStore(client redis.Cmdable, prefix string, opTimeout time.Duration) *CsrfStore {
	return &CsrfStore{client: client, prefix: prefix, opTimeout: opTimeout}
}

// Put overwrites the binding for key. ttl should equal the bound token's lifetime.
func (s *CsrfStore) Put(ctx context.Context, key, fingerprint string, ttl time.Duration) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.client.Set(ctx, s.prefix+key, fingerprint, ttl).Err()
}

// Get returns the stored fingerprint or auth.ErrCsrfBindingNotFound.
func (s *CsrfStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", auth.ErrCsrfBindingNotFound
		}
		return "", err
	}
	return val, nil
}

func (s *CsrfStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}
