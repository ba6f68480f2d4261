package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/funding-auth/internal/domain"
)

var issuerNow = time.Date(2024, 3, 1, 12, 0, 0, 500, time.UTC)

func newTestIssuer(t *testing.T, store CsrfStore, opts ...IssuerOption) (*TokenIssuer, *TokenValidator, *SymmetricStrategy) {
	t.Helper()
	admin := newAdminStrategy(t)
	opts = append([]IssuerOption{WithIssuerClock(fixedClock(issuerNow))}, opts...)
	issuer := NewTokenIssuer(admin, store, time.Hour, opts...)
	validator := NewTokenValidator(admin, newAuthority(t).strategy, store, WithValidatorClock(fixedClock(issuerNow.Add(time.Minute))))
	return issuer, validator, admin
}

func TestIssueAdminToken(t *testing.T) {
	store := newMemoryStore()
	issuer, validator, _ := newTestIssuer(t, store)

	issued, err := issuer.IssueAdminToken(domain.Identity{Username: "alice"})
	require.NoError(t, err)

	assert.Equal(t, "alice", issued.Claims.Subject)
	assert.Equal(t, DefaultInternalIssuer, issued.Claims.Issuer)
	assert.Equal(t, issuerNow.Truncate(time.Second), issued.Claims.IssuedAt)
	assert.Equal(t, issued.Claims.IssuedAt.Add(time.Hour), issued.Claims.ExpiresAt)
	assert.Empty(t, issued.Claims.CsrfFingerprint)
	assert.Zero(t, store.puts, "access tokens never touch the csrf store")

	verdict := validator.ValidateAdminToken(issued.Token, "alice")
	assert.True(t, verdict.Valid, "reason %s", verdict.Reason)
	assert.Equal(t, issued.Claims, verdict.Claims)
}

func TestIssueAdminToken_DefaultTTL(t *testing.T) {
	issuer := NewTokenIssuer(newAdminStrategy(t), newMemoryStore(), 0)
	assert.Equal(t, DefaultAdminTTL, issuer.AdminTTL())
}

func TestIssueAdminToken_MissingUsername(t *testing.T) {
	issuer, _, _ := newTestIssuer(t, newMemoryStore())

	_, err := issuer.IssueAdminToken(domain.Identity{})
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestIssueCsrfToken_RoundTrip(t *testing.T) {
	store := newMemoryStore()
	issuer, validator, admin := newTestIssuer(t, store)

	issued, err := issuer.IssueCsrfToken(context.Background(), admin, domain.Identity{Username: "alice"},
		map[string]any{"cft": "abc", "origin": "console"}, 24*time.Hour)
	require.NoError(t, err)

	assert.True(t, issued.Bound)
	assert.Equal(t, "abc", issued.Claims.CsrfFingerprint)
	assert.Equal(t, map[string]any{"origin": "console"}, issued.Claims.Extra)
	assert.Equal(t, issued.Claims.IssuedAt.Add(24*time.Hour), issued.Claims.ExpiresAt)
	assert.Equal(t, "abc", store.data["alice_funding_admin"])

	verdict := validator.ValidateCsrfToken(context.Background(), issued.Token, domain.TokenClassAdmin)
	assert.True(t, verdict.Valid, "reason %s", verdict.Reason)
}

func TestIssueCsrfToken_ReissueInvalidatesPrevious(t *testing.T) {
	store := newMemoryStore()
	issuer, validator, admin := newTestIssuer(t, store)
	ctx := context.Background()

	first, err := issuer.IssueCsrfToken(ctx, admin, domain.Identity{Username: "alice"}, map[string]any{"cft": "abc"}, time.Hour)
	require.NoError(t, err)
	second, err := issuer.IssueCsrfToken(ctx, admin, domain.Identity{Username: "alice"}, map[string]any{"cft": "xyz"}, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, ReasonCsrfMismatch, validator.ValidateCsrfToken(ctx, first.Token, domain.TokenClassAdmin).Reason)
	assert.True(t, validator.ValidateCsrfToken(ctx, second.Token, domain.TokenClassAdmin).Valid)
}

func TestIssueCsrfToken_RejectsWithoutSideEffects(t *testing.T) {
	tests := []struct {
		name     string
		identity domain.Identity
		claims   map[string]any
		ttl      time.Duration
		member   bool
		want     error
	}{
		{name: "missing cft", identity: domain.Identity{Username: "alice"}, claims: map[string]any{"other": "x"}, ttl: time.Hour, want: ErrMissingClaim},
		{name: "nil claims", identity: domain.Identity{Username: "alice"}, ttl: time.Hour, want: ErrMissingClaim},
		{name: "empty cft", identity: domain.Identity{Username: "alice"}, claims: map[string]any{"cft": ""}, ttl: time.Hour, want: ErrMissingClaim},
		{name: "missing username", claims: map[string]any{"cft": "abc"}, ttl: time.Hour, want: ErrMissingSubject},
		{name: "member strategy is verify only", identity: domain.Identity{Username: "alice"}, claims: map[string]any{"cft": "abc"}, ttl: time.Hour, member: true, want: ErrVerifyOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			issuer, _, admin := newTestIssuer(t, store)
			var strategy SigningKeyStrategy = admin
			if tt.member {
				strategy = newAuthority(t).strategy
			}

			_, err := issuer.IssueCsrfToken(context.Background(), strategy, tt.identity, tt.claims, tt.ttl)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, store.puts)
		})
	}
}

func TestIssueCsrfToken_NonPositiveTTL(t *testing.T) {
	store := newMemoryStore()
	issuer, _, admin := newTestIssuer(t, store)

	_, err := issuer.IssueCsrfToken(context.Background(), admin, domain.Identity{Username: "alice"}, map[string]any{"cft": "abc"}, 0)
	assert.Error(t, err)
	assert.Zero(t, store.puts)
}

func TestIssueCsrfToken_StoreFailurePolicies(t *testing.T) {
	storeErr := errors.New("redis: connection refused")

	t.Run("fail closed", func(t *testing.T) {
		store := newMemoryStore()
		store.putErr = storeErr
		issuer, _, admin := newTestIssuer(t, store)

		issued, err := issuer.IssueCsrfToken(context.Background(), admin, domain.Identity{Username: "alice"}, map[string]any{"cft": "abc"}, time.Hour)
		require.Error(t, err)
		assert.True(t, IsStoreFailure(err))
		assert.ErrorIs(t, err, storeErr)
		assert.Empty(t, issued.Token)
	})

	t.Run("fail open", func(t *testing.T) {
		store := newMemoryStore()
		store.putErr = storeErr
		issuer, validator, admin := newTestIssuer(t, store, WithStoreFailurePolicy(FailOpen))

		issued, err := issuer.IssueCsrfToken(context.Background(), admin, domain.Identity{Username: "alice"}, map[string]any{"cft": "abc"}, time.Hour)
		require.NoError(t, err)
		assert.False(t, issued.Bound)
		assert.NotEmpty(t, issued.Token)

		verdict := validator.ValidateCsrfToken(context.Background(), issued.Token, domain.TokenClassAdmin)
		assert.Equal(t, ReasonCsrfNotFound, verdict.Reason)
	})
}

func TestIssueCsrfToken_ConcurrentLastWriterWins(t *testing.T) {
	store := newMemoryStore()
	issuer, validator, admin := newTestIssuer(t, store)
	ctx := context.Background()

	const writers = 16
	tokens := make([]string, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			issued, err := issuer.IssueCsrfToken(ctx, admin, domain.Identity{Username: "alice"},
				map[string]any{"cft": fmt.Sprintf("fp-%d", i)}, time.Hour)
			if err == nil {
				tokens[i] = issued.Token
			}
		}(i)
	}
	wg.Wait()

	valid := 0
	for i, token := range tokens {
		require.NotEmpty(t, token, "writer %d", i)
		verdict := validator.ValidateCsrfToken(ctx, token, domain.TokenClassAdmin)
		if verdict.Valid {
			valid++
			assert.Equal(t, store.data["alice_funding_admin"], verdict.Claims.CsrfFingerprint)
			continue
		}
		assert.Equal(t, ReasonCsrfMismatch, verdict.Reason)
	}
	assert.Equal(t, 1, valid)
}
