package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/funding-auth/internal/auth"
	"github.com/spec-kit/funding-auth/internal/config"
	"github.com/spec-kit/funding-auth/internal/domain"
	"github.com/spec-kit/funding-auth/internal/events"
	"github.com/spec-kit/funding-auth/internal/observability"
	"github.com/spec-kit/funding-auth/internal/repository"
)

// ErrAuditDisabled is returned when issuance history is requested without a database.
var ErrAuditDisabled = errors.New("issuance audit not configured")

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// TokenService coordinates issuance, validation and refresh flows.
type TokenService struct {
	issuer    *auth.TokenIssuer
	validator *auth.TokenValidator
	refresher *auth.RefreshClient
	csrfTTL   time.Duration
	audit     repository.IssuanceRepository
	events    events.Dispatcher
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// TokenDependencies encapsulates collaborators for the token service. Audit serves
// issuance history reads; Events receives one EventTokenIssued per issued token.
type TokenDependencies struct {
	Store      auth.CsrfStore
	Audit      repository.IssuanceRepository
	Events     events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	HTTPClient *http.Client
	Clock      func() time.Time
}

// NewTokenService resolves keys from configuration and builds the service. Any key problem
// is returned as *auth.KeyConfigurationError and should stop startup.
func NewTokenService(cfg config.Config, deps TokenDependencies) (*TokenService, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Store == nil {
		return nil, errors.New("csrf store is required")
	}

	keys := auth.NewKeyProvider(cfg.Auth.SecretKey, cfg.Auth.ExternalKey)
	symmetric, err := keys.SymmetricKey()
	if err != nil {
		return nil, err
	}
	admin, err := auth.NewSymmetricStrategy(symmetric, cfg.Auth.InternalIssuer, cfg.Auth.ServiceID)
	if err != nil {
		return nil, err
	}
	external, err := keys.ExternalPublicKey()
	if err != nil {
		return nil, err
	}
	member, err := auth.NewAsymmetricPublicStrategy(external, cfg.Auth.ExternalIssuer)
	if err != nil {
		return nil, err
	}

	policy, ok := auth.ParseStoreFailurePolicy(cfg.Auth.CsrfStorePolicy)
	if !ok {
		return nil, errors.New("unknown csrf store failure policy: " + cfg.Auth.CsrfStorePolicy)
	}

	issuerOpts := []auth.IssuerOption{
		auth.WithStoreFailurePolicy(policy),
		auth.WithIssuerLogger(logger.Named("issuer")),
	}
	var validatorOpts []auth.ValidatorOption
	if deps.Clock != nil {
		issuerOpts = append(issuerOpts, auth.WithIssuerClock(deps.Clock))
		validatorOpts = append(validatorOpts, auth.WithValidatorClock(deps.Clock))
	}

	refreshOpts := []auth.RefreshOption{
		auth.WithHTTPClient(&http.Client{Timeout: cfg.Refresh.Timeout()}),
	}
	if deps.HTTPClient != nil {
		refreshOpts = append(refreshOpts, auth.WithHTTPClient(deps.HTTPClient))
	}
	if cfg.Refresh.BreakerEnabled {
		refreshOpts = append(refreshOpts, auth.WithCircuitBreaker(cfg.Auth.ServiceID+"-refresh"))
	}

	logger.Info("token service configured",
		zap.String("internal_issuer", admin.Issuer()),
		zap.String("external_issuer", member.Issuer()),
		zap.Strings("member_algorithms", member.ValidMethods()),
		zap.Duration("admin_ttl", cfg.Auth.AdminTokenTTL()),
		zap.Duration("csrf_ttl", cfg.Auth.CsrfTokenTTL()),
		zap.String("csrf_store_policy", string(policy)),
	)

	return &TokenService{
		issuer:    auth.NewTokenIssuer(admin, deps.Store, cfg.Auth.AdminTokenTTL(), issuerOpts...),
		validator: auth.NewTokenValidator(admin, member, deps.Store, validatorOpts...),
		refresher: auth.NewRefreshClient(cfg.Refresh.ServerURL, cfg.Auth.ServiceID, refreshOpts...),
		csrfTTL:   cfg.Auth.CsrfTokenTTL(),
		audit:     deps.Audit,
		events:    deps.Events,
		metrics:   deps.Metrics,
		logger:    logger,
	}, nil
}

// IssueAdminToken signs an admin access token.
func (s *TokenService) IssueAdminToken(ctx context.Context, identity domain.Identity) (auth.IssuedToken, error) {
	issued, err := s.issuer.IssueAdminToken(identity)
	if err != nil {
		s.logger.Warn("admin token issuance failed", zap.String("account", identity.Username), zap.Error(err))
		return auth.IssuedToken{}, err
	}
	s.recordIssued(ctx, domain.TokenClassAdmin, domain.TokenKindAccess, issued)
	return issued, nil
}

// IssueAdminCsrfToken signs an admin CSRF token bound to fingerprint. An empty fingerprint
// is replaced by a freshly generated one.
func (s *TokenService) IssueAdminCsrfToken(ctx context.Context, identity domain.Identity, fingerprint string) (auth.IssuedToken, error) {
	if fingerprint == "" {
		fingerprint = NewFingerprint()
	}
	return s.IssueCsrfToken(ctx, domain.TokenClassAdmin, identity, map[string]any{"cft": fingerprint})
}

// IssueCsrfToken signs a CSRF token of the given class with the configured CSRF lifetime.
// Member-class issuance fails with auth.ErrVerifyOnly: member tokens come from the external
// authority.
func (s *TokenService) IssueCsrfToken(ctx context.Context, class domain.TokenClass, identity domain.Identity, csrfClaims map[string]any) (auth.IssuedToken, error) {
	strategy, err := s.validator.Strategy(class)
	if err != nil {
		return auth.IssuedToken{}, err
	}
	issued, err := s.issuer.IssueCsrfToken(ctx, strategy, identity, csrfClaims, s.csrfTTL)
	if err != nil {
		if auth.IsStoreFailure(err) {
			s.metrics.RecordStoreFailure("put")
		}
		s.logger.Warn("csrf token issuance failed",
			zap.String("class", string(class)),
			zap.String("account", identity.Username),
			zap.Error(err),
		)
		return auth.IssuedToken{}, err
	}
	if !issued.Bound {
		s.metrics.RecordStoreFailure("put")
	}
	s.recordIssued(ctx, class, domain.TokenKindCsrf, issued)
	return issued, nil
}

// ValidateAccessToken validates an access token of the given class for username.
func (s *TokenService) ValidateAccessToken(class domain.TokenClass, token, username string) auth.Verdict {
	var verdict auth.Verdict
	switch class {
	case domain.TokenClassAdmin:
		verdict = s.validator.ValidateAdminToken(token, username)
	case domain.TokenClassMember:
		verdict = s.validator.ValidateMemberToken(token, username)
	default:
		verdict = auth.Verdict{Reason: auth.ReasonUnknown, Err: fmt.Errorf("unknown token class %q", class)}
	}
	s.recordVerdict(class, domain.TokenKindAccess, verdict)
	return verdict
}

// ValidateCsrfToken validates a CSRF token of the given class against its stored binding.
func (s *TokenService) ValidateCsrfToken(ctx context.Context, class domain.TokenClass, token string) auth.Verdict {
	verdict := s.validator.ValidateCsrfToken(ctx, token, class)
	if verdict.Reason == auth.ReasonCsrfStoreUnavailable {
		s.metrics.RecordStoreFailure("get")
	}
	s.recordVerdict(class, domain.TokenKindCsrf, verdict)
	return verdict
}

// Refresh exchanges a refresh token for a new access token at the authentication server.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	token, err := s.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		outcome := "error"
		var refreshErr *auth.RefreshFailedError
		if errors.As(err, &refreshErr) && refreshErr.StatusCode != 0 {
			outcome = strconv.Itoa(refreshErr.StatusCode)
		}
		s.metrics.RecordRefresh(outcome)
		s.logger.Warn("token refresh failed", zap.String("outcome", outcome), zap.Error(err))
		return "", err
	}
	s.metrics.RecordRefresh("ok")
	return token, nil
}

// RecentIssuances lists audit records for account, newest first.
func (s *TokenService) RecentIssuances(ctx context.Context, account string, limit int) ([]domain.IssuanceRecord, error) {
	if s.audit == nil {
		return nil, ErrAuditDisabled
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.audit.ListByAccount(ctx, account, limit)
}

// AdminTTL reports the admin access token lifetime.
func (s *TokenService) AdminTTL() time.Duration {
	return s.issuer.AdminTTL()
}

func (s *TokenService) recordVerdict(class domain.TokenClass, kind domain.TokenKind, verdict auth.Verdict) {
	s.metrics.RecordValidation(string(class), string(kind), string(verdict.Reason))
	if verdict.Valid {
		return
	}
	fields := []zap.Field{
		zap.String("class", string(class)),
		zap.String("kind", string(kind)),
		zap.String("reason", string(verdict.Reason)),
		zap.String("account", verdict.Claims.Subject),
	}
	switch verdict.Reason {
	case auth.ReasonKeyConfiguration, auth.ReasonCsrfStoreUnavailable:
		s.logger.Error("token validation could not complete", append(fields, zap.Error(verdict.Err))...)
	case auth.ReasonIssuerMismatch, auth.ReasonCsrfMismatch, auth.ReasonCsrfNotFound:
		s.logger.Warn("token rejected", fields...)
	default:
		s.logger.Debug("token rejected", fields...)
	}
}

func (s *TokenService) recordIssued(ctx context.Context, class domain.TokenClass, kind domain.TokenKind, issued auth.IssuedToken) {
	s.metrics.RecordIssued(string(class), string(kind), issued.Bound)
	if s.events == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTokenIssued,
		Account:   issued.Claims.Subject,
		Timestamp: issued.Claims.IssuedAt,
		Payload: events.TokenIssuedPayload{Record: domain.IssuanceRecord{
			Class:            class,
			Kind:             kind,
			Account:          issued.Claims.Subject,
			TokenFingerprint: TokenFingerprint(issued.Token),
			Bound:            issued.Bound,
			IssuedAt:         issued.Claims.IssuedAt,
			ExpiresAt:        issued.Claims.ExpiresAt,
		}},
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("issuance event handling failed",
			zap.String("class", string(class)),
			zap.String("account", event.Account),
			zap.Error(err),
		)
	}
}

// NewFingerprint returns a random CSRF fingerprint.
func NewFingerprint() string {
	return uuid.NewString()
}

// TokenFingerprint identifies a token in logs and audit records without storing it.
func TokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
