package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/spec-kit/funding-auth/internal/domain"
)

// Verdict is the outcome of a validation call. Err is nil exactly when Valid is true.
type Verdict struct {
	Valid  bool
	Reason Reason
	Err    error
	// Claims holds whatever was decoded before the verdict was reached.
	Claims ClaimSet
}

func accept(claims ClaimSet) Verdict {
	return Verdict{Valid: true, Reason: ReasonValid, Claims: claims}
}

func reject(claims ClaimSet, err error) Verdict {
	return Verdict{Reason: ReasonFor(err), Err: err, Claims: claims}
}

// TokenValidator applies subject, expiry, issuer and CSRF-binding rules on top of Decode.
type TokenValidator struct {
	admin  SigningKeyStrategy
	member SigningKeyStrategy
	store  CsrfStore
	now    func() time.Time
}

// ValidatorOption customises a TokenValidator.
type ValidatorOption func(*TokenValidator)

// WithValidatorClock replaces time.Now.
func WithValidatorClock(now func() time.Time) ValidatorOption {
	return func(v *TokenValidator) { v.now = now }
}

// NewTokenValidator builds a validator. member may be nil when no external key is
// configured; member validation then rejects with a key configuration reason.
func NewTokenValidator(admin, member SigningKeyStrategy, store CsrfStore, opts ...ValidatorOption) *TokenValidator {
	v := &TokenValidator{admin: admin, member: member, store: store, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Strategy returns the strategy for a token class.
func (v *TokenValidator) Strategy(class domain.TokenClass) (SigningKeyStrategy, error) {
	var strategy SigningKeyStrategy
	switch class {
	case domain.TokenClassAdmin:
		strategy = v.admin
	case domain.TokenClassMember:
		strategy = v.member
	default:
		return nil, fmt.Errorf("unknown token class %q", class)
	}
	if strategy == nil {
		return nil, keyError(string(class), "no signing key strategy configured", nil)
	}
	return strategy, nil
}

// ValidateAdminToken checks a locally signed admin access token for expectedUsername.
func (v *TokenValidator) ValidateAdminToken(token, expectedUsername string) Verdict {
	return v.validateClass(domain.TokenClassAdmin, token, expectedUsername)
}

// ValidateMemberToken checks an externally signed member access token for expectedUsername.
func (v *TokenValidator) ValidateMemberToken(token, expectedUsername string) Verdict {
	return v.validateClass(domain.TokenClassMember, token, expectedUsername)
}

func (v *TokenValidator) validateClass(class domain.TokenClass, token, expectedUsername string) Verdict {
	strategy, err := v.Strategy(class)
	if err != nil {
		return reject(ClaimSet{}, err)
	}
	return v.ValidateAccessToken(strategy, token, expectedUsername)
}

// ValidateAccessToken runs decode, subject, expiry and issuer checks in that order and
// stops at the first failure.
func (v *TokenValidator) ValidateAccessToken(strategy SigningKeyStrategy, token, expectedUsername string) Verdict {
	claims, err := Decode(token, strategy)
	if err != nil {
		return reject(ClaimSet{}, err)
	}
	if claims.Subject == "" || claims.Subject != expectedUsername {
		return reject(claims, ErrSubjectMismatch)
	}
	if err := v.checkExpiry(claims); err != nil {
		return reject(claims, err)
	}
	if claims.Issuer != strategy.Issuer() {
		return reject(claims, issuerMismatch(strategy, claims))
	}
	return accept(claims)
}

// ValidateCsrfToken checks a CSRF-binding token of the given class against the fingerprint
// stored for its subject. A missing binding is always a rejection.
func (v *TokenValidator) ValidateCsrfToken(ctx context.Context, csrfToken string, class domain.TokenClass) Verdict {
	strategy, err := v.Strategy(class)
	if err != nil {
		return reject(ClaimSet{}, err)
	}

	claims, err := Decode(csrfToken, strategy)
	if err != nil {
		return reject(ClaimSet{}, err)
	}
	if claims.Subject == "" {
		return reject(claims, fmt.Errorf("%w: token has no subject", ErrTokenMalformed))
	}
	if claims.CsrfFingerprint == "" {
		return reject(claims, fmt.Errorf("%w: %s", ErrMissingClaim, claimFingerprint))
	}
	if err := v.checkExpiry(claims); err != nil {
		return reject(claims, err)
	}
	if claims.Issuer != strategy.Issuer() {
		return reject(claims, issuerMismatch(strategy, claims))
	}

	stored, err := v.store.Get(ctx, strategy.BindingKey(claims.Subject))
	switch {
	case errors.Is(err, ErrCsrfBindingNotFound):
		return reject(claims, ErrCsrfBindingNotFound)
	case err != nil:
		return reject(claims, fmt.Errorf("%w: read binding: %w", ErrCsrfStore, err))
	case stored == "":
		return reject(claims, ErrCsrfBindingNotFound)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(claims.CsrfFingerprint)) != 1 {
		return reject(claims, ErrCsrfMismatch)
	}
	return accept(claims)
}

// checkExpiry accepts only tokens whose expiry is strictly after now.
func (v *TokenValidator) checkExpiry(claims ClaimSet) error {
	if !claims.ExpiresAt.After(v.now()) {
		return ErrTokenExpired
	}
	return nil
}

func issuerMismatch(strategy SigningKeyStrategy, claims ClaimSet) error {
	return fmt.Errorf("%w: %s token from %q", ErrIssuerMismatch, strategy.Class(), claims.Issuer)
}
