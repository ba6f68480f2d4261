package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	claimSubject     = "sub"
	claimIssuer      = "iss"
	claimIssuedAt    = "iat"
	claimExpiresAt   = "exp"
	claimFingerprint = "cft"
)

// ClaimSet is the decoded payload of a token. It is a value type and is never mutated
// once built.
type ClaimSet struct {
	Subject         string
	Issuer          string
	IssuedAt        time.Time
	ExpiresAt       time.Time
	CsrfFingerprint string
	// Extra holds any other claims carried by the token.
	Extra map[string]any
}

// Encode signs claims with the strategy's key and returns the compact JWS form.
func Encode(claims ClaimSet, strategy SigningKeyStrategy) (string, error) {
	key, err := strategy.SignKey()
	if err != nil {
		return "", err
	}

	mapClaims := jwt.MapClaims{}
	for k, v := range claims.Extra {
		mapClaims[k] = v
	}
	mapClaims[claimSubject] = claims.Subject
	mapClaims[claimIssuer] = claims.Issuer
	mapClaims[claimIssuedAt] = jwt.NewNumericDate(claims.IssuedAt)
	mapClaims[claimExpiresAt] = jwt.NewNumericDate(claims.ExpiresAt)
	if claims.CsrfFingerprint != "" {
		mapClaims[claimFingerprint] = claims.CsrfFingerprint
	} else {
		delete(mapClaims, claimFingerprint)
	}

	token := jwt.NewWithClaims(strategy.SigningMethod(), mapClaims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", strategy.Class(), err)
	}
	return signed, nil
}

// Decode verifies the signature and returns the raw claims. Expiry is not checked here.
func Decode(tokenStr string, strategy SigningKeyStrategy) (ClaimSet, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods(strategy.ValidMethods()),
		jwt.WithoutClaimsValidation(),
		jwt.WithJSONNumber(),
	)
	parsed, err := parser.Parse(tokenStr, func(*jwt.Token) (interface{}, error) {
		key, err := strategy.VerifyKey()
		if err != nil {
			var keyErr *KeyConfigurationError
			if errors.As(err, &keyErr) {
				return nil, keyErr
			}
			return nil, keyError(string(strategy.Class()), "verification key unavailable", err)
		}
		return key, nil
	})
	if err != nil {
		return ClaimSet{}, classifyParseError(err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return ClaimSet{}, fmt.Errorf("%w: unexpected claims type", ErrTokenMalformed)
	}
	return claimSetFrom(mapClaims)
}

func classifyParseError(err error) error {
	var keyErr *KeyConfigurationError
	switch {
	case errors.As(err, &keyErr):
		return keyErr
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}

func claimSetFrom(mapClaims jwt.MapClaims) (ClaimSet, error) {
	var claims ClaimSet
	var err error

	if claims.Subject, err = mapClaims.GetSubject(); err != nil {
		return ClaimSet{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if claims.Issuer, err = mapClaims.GetIssuer(); err != nil {
		return ClaimSet{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	iat, err := mapClaims.GetIssuedAt()
	if err != nil {
		return ClaimSet{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if iat != nil {
		claims.IssuedAt = iat.Time.UTC()
	}
	exp, err := mapClaims.GetExpirationTime()
	if err != nil {
		return ClaimSet{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if exp != nil {
		claims.ExpiresAt = exp.Time.UTC()
	}
	if raw, ok := mapClaims[claimFingerprint]; ok {
		fingerprint, ok := fingerprintValue(raw)
		if !ok {
			return ClaimSet{}, fmt.Errorf("%w: cft claim is empty", ErrTokenMalformed)
		}
		claims.CsrfFingerprint = fingerprint
	}

	for k, v := range mapClaims {
		switch k {
		case claimSubject, claimIssuer, claimIssuedAt, claimExpiresAt, claimFingerprint:
			continue
		}
		if claims.Extra == nil {
			claims.Extra = make(map[string]any)
		}
		claims.Extra[k] = v
	}
	return claims, nil
}

// fingerprintValue renders a cft claim value as a string. Decoded tokens carry numbers as
// json.Number, so numeric fingerprints keep their exact digits.
func fingerprintValue(raw any) (string, bool) {
	var s string
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		s = v
	case json.Number:
		s = v.String()
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		s = fmt.Sprint(v)
	}
	return s, s != ""
}

// ExtractAccount returns the subject of a verified token without applying business rules.
func ExtractAccount(tokenStr string, strategy SigningKeyStrategy) (string, error) {
	claims, err := Decode(tokenStr, strategy)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ExtractCsrfClaim returns the cft claim of a verified token.
func ExtractCsrfClaim(tokenStr string, strategy SigningKeyStrategy) (string, error) {
	claims, err := Decode(tokenStr, strategy)
	if err != nil {
		return "", err
	}
	if claims.CsrfFingerprint == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingClaim, claimFingerprint)
	}
	return claims.CsrfFingerprint, nil
}
