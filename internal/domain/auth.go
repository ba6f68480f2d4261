package domain

import (
	"strings"
	"time"
)

// TokenClass differentiates locally signed admin tokens from externally signed member tokens.
type TokenClass string

const (
	TokenClassAdmin  TokenClass = "ADMIN"
	TokenClassMember TokenClass = "MEMBER"
)

// ParseTokenClass accepts the class names used on the wire, case-insensitively.
func ParseTokenClass(raw string) (TokenClass, bool) {
	switch {
	case strings.EqualFold(raw, string(TokenClassAdmin)):
		return TokenClassAdmin, true
	case strings.EqualFold(raw, string(TokenClassMember)):
		return TokenClassMember, true
	}
	return "", false
}

// TokenKind separates access tokens from CSRF-binding tokens.
type TokenKind string

const (
	TokenKindAccess TokenKind = "ACCESS"
	TokenKindCsrf   TokenKind = "CSRF"
)

// Identity is the caller-supplied account a token is issued for. Only Username is read
// by the token subsystem.
type Identity struct {
	Username    string
	Authorities []string
}

// IssuanceRecord is the audit entry written for every issued token.
type IssuanceRecord struct {
	ID               string
	Class            TokenClass
	Kind             TokenKind
	Account          string
	TokenFingerprint string
	Bound            bool
	IssuedAt         time.Time
	ExpiresAt        time.Time
	CreatedAt        time.Time
}
