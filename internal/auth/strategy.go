package auth

import (
	"crypto/ecdsa"
	"crypto/rsa"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/funding-auth/internal/domain"
)

const (
	DefaultInternalIssuer = "https://funding.com"
	DefaultExternalIssuer = "https://almagest-auth.com"
	DefaultServiceID      = "funding"
)

// SigningKeyStrategy supplies everything that differs between the admin and member token
// classes, so issuance and validation are written once.
type SigningKeyStrategy interface {
	Class() domain.TokenClass
	Issuer() string
	// BindingKey is the CSRF store key for an account of this class.
	BindingKey(account string) string
	SigningMethod() jwt.SigningMethod
	// ValidMethods lists the algorithms accepted when verifying.
	ValidMethods() []string
	SignKey() (any, error)
	VerifyKey() (any, error)
}

// SymmetricStrategy signs and verifies admin tokens with a local HMAC secret.
type SymmetricStrategy struct {
	secret        []byte
	issuer        string
	bindingSuffix string
}

// NewSymmetricStrategy builds the admin strategy. serviceID namespaces the CSRF binding key
// as <account>_<serviceID>_admin.
func NewSymmetricStrategy(key SigningKey, issuer, serviceID string) (*SymmetricStrategy, error) {
	if key.kind != KeySymmetric || len(key.secret) == 0 {
		return nil, keyError("symmetric", "strategy requires a symmetric key", nil)
	}
	if issuer == "" {
		issuer = DefaultInternalIssuer
	}
	if serviceID == "" {
		serviceID = DefaultServiceID
	}
	return &SymmetricStrategy{
		secret:        key.secret,
		issuer:        issuer,
		bindingSuffix: "_" + serviceID + "_admin",
	}, nil
}

func (s *SymmetricStrategy) Class() domain.TokenClass { return domain.TokenClassAdmin }

func (s *SymmetricStrategy) Issuer() string { return s.issuer }

func (s *SymmetricStrategy) BindingKey(account string) string { return account + s.bindingSuffix }

func (s *SymmetricStrategy) SigningMethod() jwt.SigningMethod { return jwt.SigningMethodHS256 }

func (s *SymmetricStrategy) ValidMethods() []string {
	return []string{jwt.SigningMethodHS256.Alg()}
}

func (s *SymmetricStrategy) SignKey() (any, error) { return s.secret, nil }

func (s *SymmetricStrategy) VerifyKey() (any, error) { return s.secret, nil }

// AsymmetricPublicStrategy verifies member tokens issued by the external authority.
// It never signs.
type AsymmetricPublicStrategy struct {
	public  any
	methods []string
	issuer  string
}

// NewAsymmetricPublicStrategy builds the member strategy from a verification key.
func NewAsymmetricPublicStrategy(key SigningKey, issuer string) (*AsymmetricPublicStrategy, error) {
	if key.kind != KeyAsymmetricPublic || key.public == nil {
		return nil, keyError("external", "strategy requires a public key", nil)
	}
	var methods []string
	switch k := key.public.(type) {
	case *rsa.PublicKey:
		methods = []string{
			jwt.SigningMethodRS256.Alg(),
			jwt.SigningMethodRS384.Alg(),
			jwt.SigningMethodRS512.Alg(),
		}
	case *ecdsa.PublicKey:
		alg, err := ecdsaMethod(k.Curve)
		if err != nil {
			return nil, err
		}
		methods = []string{alg}
	default:
		return nil, keyError("external", "unsupported public key type", nil)
	}
	if issuer == "" {
		issuer = DefaultExternalIssuer
	}
	return &AsymmetricPublicStrategy{public: key.public, methods: methods, issuer: issuer}, nil
}

func (s *AsymmetricPublicStrategy) Class() domain.TokenClass { return domain.TokenClassMember }

func (s *AsymmetricPublicStrategy) Issuer() string { return s.issuer }

// BindingKey is the bare account: member bindings are written by the external authority.
func (s *AsymmetricPublicStrategy) BindingKey(account string) string { return account }

func (s *AsymmetricPublicStrategy) SigningMethod() jwt.SigningMethod {
	return jwt.GetSigningMethod(s.methods[0])
}

func (s *AsymmetricPublicStrategy) ValidMethods() []string { return s.methods }

func (s *AsymmetricPublicStrategy) SignKey() (any, error) { return nil, ErrVerifyOnly }

func (s *AsymmetricPublicStrategy) VerifyKey() (any, error) { return s.public, nil }
