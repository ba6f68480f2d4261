package auth

import (
	"context"
	"time"
)

// CsrfStore persists account→fingerprint bindings in a shared cache. Implementations are
// class-agnostic; callers namespace keys through SigningKeyStrategy.BindingKey.
//
// Get must return ErrCsrfBindingNotFound when no binding exists. Put overwrites any
// previous binding (last writer wins).
type CsrfStore interface {
	Put(ctx context.Context, key, fingerprint string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// StoreFailurePolicy selects how CSRF issuance reacts when the binding cannot be written.
type StoreFailurePolicy string

const (
	// FailClosed aborts issuance; the token is never signed. This is the default.
	FailClosed StoreFailurePolicy = "fail_closed"
	// FailOpen issues the token without a binding. Validation of that token will report
	// a missing binding.
	FailOpen StoreFailurePolicy = "fail_open"
)

// ParseStoreFailurePolicy validates a configured policy name. Empty selects FailClosed.
func ParseStoreFailurePolicy(raw string) (StoreFailurePolicy, bool) {
	switch StoreFailurePolicy(raw) {
	case "", FailClosed:
		return FailClosed, true
	case FailOpen:
		return FailOpen, true
	}
	return "", false
}
