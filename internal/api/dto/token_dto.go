package dto

import "time"

// IssueTokenRequest payload for admin access token issuance.
type IssueTokenRequest struct {
	Username string `json:"username"`
}

// IssueCsrfRequest payload for admin CSRF token issuance. Fingerprint is generated when empty.
type IssueCsrfRequest struct {
	Username    string `json:"username"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// TokenResponse describes an issued token.
type TokenResponse struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	Issuer    string    `json:"issuer"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CsrfTokenResponse describes an issued CSRF token and its binding.
type CsrfTokenResponse struct {
	TokenResponse
	Fingerprint string `json:"fingerprint"`
	Bound       bool   `json:"bound"`
}

// ValidateTokenRequest payload for access token validation.
type ValidateTokenRequest struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Class    string `json:"class"`
}

// ValidateCsrfRequest payload for CSRF token validation.
type ValidateCsrfRequest struct {
	Token string `json:"token"`
	Class string `json:"class"`
}

// VerdictResponse reports a validation outcome.
type VerdictResponse struct {
	Valid     bool       `json:"valid"`
	Reason    string     `json:"reason"`
	Subject   string     `json:"subject,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// RefreshRequest payload for refresh-token exchange. The refresh-token header takes
// precedence when both are present.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshResponse carries the new access token.
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}

// IssuanceRecordResponse is one audit entry.
type IssuanceRecordResponse struct {
	ID               string    `json:"id"`
	Class            string    `json:"class"`
	Kind             string    `json:"kind"`
	Account          string    `json:"account"`
	TokenFingerprint string    `json:"token_fingerprint"`
	Bound            bool      `json:"bound"`
	IssuedAt         time.Time `json:"issued_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}
