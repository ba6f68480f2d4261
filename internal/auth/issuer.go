package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/funding-auth/internal/domain"
)

// DefaultAdminTTL applies when no admin token lifetime is configured.
const DefaultAdminTTL = time.Hour

// IssuedToken is a signed token together with the claims it carries.
type IssuedToken struct {
	Token  string
	Claims ClaimSet
	// Bound is false only for CSRF tokens issued under FailOpen after a failed store write.
	Bound bool
}

// TokenIssuer builds new signed tokens.
type TokenIssuer struct {
	admin    SigningKeyStrategy
	store    CsrfStore
	adminTTL time.Duration
	policy   StoreFailurePolicy
	logger   *zap.Logger
	now      func() time.Time
}

// IssuerOption customises a TokenIssuer.
type IssuerOption func(*TokenIssuer)

// WithStoreFailurePolicy overrides the default FailClosed policy.
func WithStoreFailurePolicy(policy StoreFailurePolicy) IssuerOption {
	return func(i *TokenIssuer) { i.policy = policy }
}

// WithIssuerLogger attaches a logger for store failures.
func WithIssuerLogger(logger *zap.Logger) IssuerOption {
	return func(i *TokenIssuer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithIssuerClock replaces time.Now.
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *TokenIssuer) { i.now = now }
}

// NewTokenIssuer builds an issuer signing admin tokens with the given strategy.
func NewTokenIssuer(admin SigningKeyStrategy, store CsrfStore, adminTTL time.Duration, opts ...IssuerOption) *TokenIssuer {
	if adminTTL <= 0 {
		adminTTL = DefaultAdminTTL
	}
	issuer := &TokenIssuer{
		admin:    admin,
		store:    store,
		adminTTL: adminTTL,
		policy:   FailClosed,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer
}

// AdminTTL reports the lifetime given to admin access tokens.
func (i *TokenIssuer) AdminTTL() time.Duration {
	return i.adminTTL
}

// IssueAdminToken signs an admin access token for identity. No CSRF binding is written.
func (i *TokenIssuer) IssueAdminToken(identity domain.Identity) (IssuedToken, error) {
	if identity.Username == "" {
		return IssuedToken{}, ErrMissingSubject
	}
	now := tokenTime(i.now())
	claims := ClaimSet{
		Subject:   identity.Username,
		Issuer:    i.admin.Issuer(),
		IssuedAt:  now,
		ExpiresAt: now.Add(i.adminTTL),
	}
	token, err := Encode(claims, i.admin)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: token, Claims: claims, Bound: true}, nil
}

// IssueCsrfToken records the cft fingerprint from csrfClaims under the strategy's binding key
// and signs a token embedding the same claims. The store write happens before signing; its
// failure is handled according to the issuer's StoreFailurePolicy.
func (i *TokenIssuer) IssueCsrfToken(
	ctx context.Context,
	strategy SigningKeyStrategy,
	identity domain.Identity,
	csrfClaims map[string]any,
	ttl time.Duration,
) (IssuedToken, error) {
	if identity.Username == "" {
		return IssuedToken{}, ErrMissingSubject
	}
	fingerprint, ok := fingerprintValue(csrfClaims[claimFingerprint])
	if !ok {
		return IssuedToken{}, fmt.Errorf("%w: %s", ErrMissingClaim, claimFingerprint)
	}
	if ttl <= 0 {
		return IssuedToken{}, fmt.Errorf("csrf token ttl must be positive, got %s", ttl)
	}
	if _, err := strategy.SignKey(); err != nil {
		return IssuedToken{}, err
	}

	extra := make(map[string]any, len(csrfClaims))
	for k, v := range csrfClaims {
		switch k {
		case claimSubject, claimIssuer, claimIssuedAt, claimExpiresAt, claimFingerprint:
			continue
		}
		extra[k] = v
	}
	if len(extra) == 0 {
		extra = nil
	}

	bound := true
	key := strategy.BindingKey(identity.Username)
	if err := i.store.Put(ctx, key, fingerprint, ttl); err != nil {
		if i.policy != FailOpen {
			return IssuedToken{}, fmt.Errorf("%w: write binding: %w", ErrCsrfStore, err)
		}
		bound = false
		i.logger.Warn("csrf binding not stored; issuing unbound token",
			zap.String("class", string(strategy.Class())),
			zap.String("account", identity.Username),
			zap.Error(err),
		)
	}

	now := tokenTime(i.now())
	claims := ClaimSet{
		Subject:         identity.Username,
		Issuer:          strategy.Issuer(),
		IssuedAt:        now,
		ExpiresAt:       now.Add(ttl),
		CsrfFingerprint: fingerprint,
		Extra:           extra,
	}
	token, err := Encode(claims, strategy)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: token, Claims: claims, Bound: bound}, nil
}

// IsStoreFailure reports whether err came from a failed CSRF store call.
func IsStoreFailure(err error) bool {
	return errors.Is(err, ErrCsrfStore)
}

// tokenTime drops what the wire format cannot carry so returned claims match the token.
func tokenTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
