package auth

import (
	"errors"
	"fmt"
)

var (
	ErrKeyConfiguration    = errors.New("key configuration invalid")
	ErrTokenMalformed      = errors.New("token malformed")
	ErrSignatureInvalid    = errors.New("token signature invalid")
	ErrTokenExpired        = errors.New("token expired")
	ErrSubjectMismatch     = errors.New("token subject mismatch")
	ErrIssuerMismatch      = errors.New("token issuer mismatch")
	ErrCsrfBindingNotFound = errors.New("csrf binding not found")
	ErrCsrfMismatch        = errors.New("csrf fingerprint mismatch")
	ErrCsrfStore           = errors.New("csrf store unavailable")
	ErrMissingClaim        = errors.New("required claim missing")
	ErrMissingSubject      = errors.New("identity has no username")
	ErrVerifyOnly          = errors.New("signing key strategy is verify-only")
	ErrRefreshFailed       = errors.New("access token refresh failed")
)

// KeyConfigurationError reports a signing key that cannot be built from configuration.
type KeyConfigurationError struct {
	Key    string
	Reason string
	Err    error
}

func (e *KeyConfigurationError) Error() string {
	msg := fmt.Sprintf("%s key: %s", e.Key, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *KeyConfigurationError) Unwrap() error {
	return e.Err
}

func (e *KeyConfigurationError) Is(target error) bool {
	return target == ErrKeyConfiguration
}

func keyError(key, reason string, err error) *KeyConfigurationError {
	return &KeyConfigurationError{Key: key, Reason: reason, Err: err}
}

// RefreshFailedError carries the upstream status (0 for transport failures) of a failed refresh.
type RefreshFailedError struct {
	StatusCode int
	Err        error
}

func (e *RefreshFailedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("refresh failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("refresh failed: %v", e.Err)
}

func (e *RefreshFailedError) Unwrap() error {
	return e.Err
}

func (e *RefreshFailedError) Is(target error) bool {
	return target == ErrRefreshFailed
}

// Reason is the stable code attached to every validation verdict.
type Reason string

const (
	ReasonValid                Reason = "valid"
	ReasonMalformed            Reason = "token_malformed"
	ReasonSignatureInvalid     Reason = "signature_invalid"
	ReasonKeyConfiguration     Reason = "key_configuration"
	ReasonSubjectMismatch      Reason = "subject_mismatch"
	ReasonExpired              Reason = "token_expired"
	ReasonIssuerMismatch       Reason = "issuer_mismatch"
	ReasonMissingClaim         Reason = "missing_claim"
	ReasonCsrfNotFound         Reason = "csrf_binding_not_found"
	ReasonCsrfMismatch         Reason = "csrf_mismatch"
	ReasonCsrfStoreUnavailable Reason = "csrf_store_unavailable"
	ReasonUnknown              Reason = "unknown"
)

// ReasonFor maps an error from this package onto its reason code.
func ReasonFor(err error) Reason {
	switch {
	case err == nil:
		return ReasonValid
	case errors.Is(err, ErrKeyConfiguration):
		return ReasonKeyConfiguration
	case errors.Is(err, ErrTokenMalformed):
		return ReasonMalformed
	case errors.Is(err, ErrSignatureInvalid):
		return ReasonSignatureInvalid
	case errors.Is(err, ErrSubjectMismatch):
		return ReasonSubjectMismatch
	case errors.Is(err, ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, ErrIssuerMismatch):
		return ReasonIssuerMismatch
	case errors.Is(err, ErrMissingClaim):
		return ReasonMissingClaim
	case errors.Is(err, ErrCsrfBindingNotFound):
		return ReasonCsrfNotFound
	case errors.Is(err, ErrCsrfMismatch):
		return ReasonCsrfMismatch
	case errors.Is(err, ErrCsrfStore):
		return ReasonCsrfStoreUnavailable
	default:
		return ReasonUnknown
	}
}
