package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/funding-auth/internal/api/dto"
	"github.com/spec-kit/funding-auth/internal/auth"
	"github.com/spec-kit/funding-auth/internal/domain"
	"github.com/spec-kit/funding-auth/internal/service"
	apperrors "github.com/spec-kit/funding-auth/pkg/util"
)

const refreshTokenHeader = "refresh-token"

// TokenHandler exposes token issuance, validation and refresh endpoints.
type TokenHandler struct {
	tokens *service.TokenService
}

// NewTokenHandler constructs handler.
func NewTokenHandler(tokens *service.TokenService) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

// IssueAdminToken handles POST /auth/admin/token.
func (h *TokenHandler) IssueAdminToken(c *fiber.Ctx) error {
	var req dto.IssueTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return apperrors.NewValidationError("username required", nil)
	}

	issued, err := h.tokens.IssueAdminToken(c.UserContext(), domain.Identity{Username: username})
	if err != nil {
		return issuanceError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": tokenResponse(issued)})
}

// IssueAdminCsrf handles POST /auth/admin/csrf.
func (h *TokenHandler) IssueAdminCsrf(c *fiber.Ctx) error {
	var req dto.IssueCsrfRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return apperrors.NewValidationError("username required", nil)
	}

	issued, err := h.tokens.IssueAdminCsrfToken(c.UserContext(), domain.Identity{Username: username}, req.Fingerprint)
	if err != nil {
		return issuanceError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.CsrfTokenResponse{
		TokenResponse: tokenResponse(issued),
		Fingerprint:   issued.Claims.CsrfFingerprint,
		Bound:         issued.Bound,
	}})
}

// ValidateToken handles POST /auth/tokens/validate. Rejections are reported in the body
// with status 200; only unusable requests and server-side faults produce errors.
func (h *TokenHandler) ValidateToken(c *fiber.Ctx) error {
	var req dto.ValidateTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	class, ok := domain.ParseTokenClass(req.Class)
	if !ok {
		return apperrors.NewValidationError("class must be admin or member", map[string]any{"class": req.Class})
	}
	if req.Token == "" || req.Username == "" {
		return apperrors.NewValidationError("token and username required", nil)
	}

	verdict := h.tokens.ValidateAccessToken(class, req.Token, req.Username)
	if err := verdictError(verdict); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": verdictResponse(verdict)})
}

// ValidateCsrf handles POST /auth/csrf/validate.
func (h *TokenHandler) ValidateCsrf(c *fiber.Ctx) error {
	var req dto.ValidateCsrfRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	class, ok := domain.ParseTokenClass(req.Class)
	if !ok {
		return apperrors.NewValidationError("class must be admin or member", map[string]any{"class": req.Class})
	}
	if req.Token == "" {
		return apperrors.NewValidationError("token required", nil)
	}

	verdict := h.tokens.ValidateCsrfToken(c.UserContext(), class, req.Token)
	if err := verdictError(verdict); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": verdictResponse(verdict)})
}

// Refresh handles POST /auth/refresh.
func (h *TokenHandler) Refresh(c *fiber.Ctx) error {
	refreshToken := c.Get(refreshTokenHeader)
	if refreshToken == "" && len(c.Body()) > 0 {
		var req dto.RefreshRequest
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
		refreshToken = req.RefreshToken
	}
	if refreshToken == "" {
		return apperrors.NewValidationError("refresh token required", nil)
	}

	accessToken, err := h.tokens.Refresh(c.UserContext(), refreshToken)
	if err != nil {
		var refreshErr *auth.RefreshFailedError
		if errors.As(err, &refreshErr) && refreshErr.StatusCode == http.StatusUnauthorized {
			return apperrors.NewUpstreamError("REFRESH_REJECTED", http.StatusUnauthorized, err)
		}
		return apperrors.NewUpstreamError("REFRESH_FAILED", http.StatusBadGateway, err)
	}
	return c.JSON(fiber.Map{"data": dto.RefreshResponse{AccessToken: accessToken}})
}

// ListIssuances handles GET /auth/admin/issuances/:account.
func (h *TokenHandler) ListIssuances(c *fiber.Ctx) error {
	account := c.Params("account")
	if account == "" {
		return apperrors.NewValidationError("account required", nil)
	}

	records, err := h.tokens.RecentIssuances(c.UserContext(), account, c.QueryInt("limit", 0))
	if err != nil {
		if errors.Is(err, service.ErrAuditDisabled) {
			return apperrors.NewServiceUnavailable("issuance audit not configured", err)
		}
		return apperrors.NewInternalError(err)
	}

	resp := make([]dto.IssuanceRecordResponse, 0, len(records))
	for _, r := range records {
		resp = append(resp, dto.IssuanceRecordResponse{
			ID:               r.ID,
			Class:            string(r.Class),
			Kind:             string(r.Kind),
			Account:          r.Account,
			TokenFingerprint: r.TokenFingerprint,
			Bound:            r.Bound,
			IssuedAt:         r.IssuedAt,
			ExpiresAt:        r.ExpiresAt,
		})
	}
	return c.JSON(fiber.Map{"data": resp})
}

func tokenResponse(issued auth.IssuedToken) dto.TokenResponse {
	return dto.TokenResponse{
		Token:     issued.Token,
		Subject:   issued.Claims.Subject,
		Issuer:    issued.Claims.Issuer,
		IssuedAt:  issued.Claims.IssuedAt,
		ExpiresAt: issued.Claims.ExpiresAt,
	}
}

func verdictResponse(verdict auth.Verdict) dto.VerdictResponse {
	resp := dto.VerdictResponse{
		Valid:   verdict.Valid,
		Reason:  string(verdict.Reason),
		Subject: verdict.Claims.Subject,
	}
	if !verdict.Claims.ExpiresAt.IsZero() {
		exp := verdict.Claims.ExpiresAt
		resp.ExpiresAt = &exp
	}
	return resp
}

// verdictError turns verdicts that say nothing about the token itself into server errors.
func verdictError(verdict auth.Verdict) error {
	switch verdict.Reason {
	case auth.ReasonKeyConfiguration:
		return apperrors.NewInternalError(verdict.Err)
	case auth.ReasonCsrfStoreUnavailable:
		return apperrors.NewServiceUnavailable("csrf store unavailable", verdict.Err)
	}
	return nil
}

func issuanceError(err error) error {
	switch {
	case errors.Is(err, auth.ErrMissingSubject), errors.Is(err, auth.ErrMissingClaim):
		return apperrors.NewValidationError(err.Error(), nil)
	case errors.Is(err, auth.ErrCsrfStore):
		return apperrors.NewServiceUnavailable("csrf store unavailable", err)
	default:
		return apperrors.NewInternalError(err)
	}
}
