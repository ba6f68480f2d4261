package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"
)

// minSymmetricKeyBytes matches the HS256 key size requirement.
const minSymmetricKeyBytes = 32

// KeyKind names the two disjoint SigningKey variants.
type KeyKind int

const (
	KeySymmetric KeyKind = iota + 1
	KeyAsymmetricPublic
)

func (k KeyKind) String() string {
	switch k {
	case KeySymmetric:
		return "symmetric"
	case KeyAsymmetricPublic:
		return "asymmetric-public"
	default:
		return "unknown"
	}
}

// SigningKey is either a shared HMAC secret or a verification-only public key.
type SigningKey struct {
	kind   KeyKind
	secret []byte
	public crypto.PublicKey
}

// Kind reports which variant the key is.
func (k SigningKey) Kind() KeyKind {
	return k.kind
}

// KeyProvider resolves signing keys from configured secrets. It holds no mutable state.
type KeyProvider struct {
	secret           string
	externalMaterial string
}

// NewKeyProvider builds a provider over a base64 symmetric secret and the external
// authority's key material (PEM or base64 DER).
func NewKeyProvider(secret, externalMaterial string) *KeyProvider {
	return &KeyProvider{secret: secret, externalMaterial: externalMaterial}
}

// SymmetricKey decodes the configured secret into the admin-token HMAC key.
func (p *KeyProvider) SymmetricKey() (SigningKey, error) {
	raw := strings.TrimSpace(p.secret)
	if raw == "" {
		return SigningKey{}, keyError("symmetric", "secret not configured", nil)
	}
	decoded, err := decodeBase64(raw)
	if err != nil {
		return SigningKey{}, keyError("symmetric", "secret is not valid base64", err)
	}
	if len(decoded) < minSymmetricKeyBytes {
		return SigningKey{}, keyError("symmetric",
			fmt.Sprintf("secret is %d bits, need at least %d", len(decoded)*8, minSymmetricKeyBytes*8), nil)
	}
	return SigningKey{kind: KeySymmetric, secret: decoded}, nil
}

// ExternalPublicKey derives the verification key for member tokens. Private key material is
// accepted for compatibility with existing deployments; only its public half is retained.
func (p *KeyProvider) ExternalPublicKey() (SigningKey, error) {
	raw := strings.TrimSpace(p.externalMaterial)
	if raw == "" {
		return SigningKey{}, keyError("external", "key material not configured", nil)
	}
	der, err := keyDER(raw)
	if err != nil {
		return SigningKey{}, keyError("external", "key material is not PEM or base64 DER", err)
	}
	pub, err := parsePublicKey(der)
	if err != nil {
		return SigningKey{}, err
	}
	return SigningKey{kind: KeyAsymmetricPublic, public: pub}, nil
}

func keyDER(raw string) ([]byte, error) {
	if block, _ := pem.Decode([]byte(raw)); block != nil {
		return block.Bytes, nil
	}
	return decodeBase64(raw)
}

func parsePublicKey(der []byte) (crypto.PublicKey, error) {
	if pub, err := x509.ParsePKIXPublicKey(der); err == nil {
		return supportedPublicKey(pub)
	}
	if priv, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		signer, ok := priv.(crypto.Signer)
		if !ok {
			return nil, keyError("external", fmt.Sprintf("unsupported algorithm %T", priv), nil)
		}
		return supportedPublicKey(signer.Public())
	}
	if priv, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return &priv.PublicKey, nil
	}
	if pub, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return pub, nil
	}
	if priv, err := x509.ParseECPrivateKey(der); err == nil {
		return supportedPublicKey(&priv.PublicKey)
	}
	return nil, keyError("external", "unrecognised key encoding", nil)
}

func supportedPublicKey(pub crypto.PublicKey) (crypto.PublicKey, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return k, nil
	case *ecdsa.PublicKey:
		if _, err := ecdsaMethod(k.Curve); err != nil {
			return nil, err
		}
		return k, nil
	default:
		return nil, keyError("external", fmt.Sprintf("unsupported algorithm %T", pub), nil)
	}
}

func ecdsaMethod(curve elliptic.Curve) (string, error) {
	switch curve {
	case elliptic.P256():
		return "ES256", nil
	case elliptic.P384():
		return "ES384", nil
	case elliptic.P521():
		return "ES512", nil
	default:
		return "", keyError("external", "unsupported elliptic curve", nil)
	}
}

func decodeBase64(raw string) ([]byte, error) {
	raw = strings.Join(strings.Fields(raw), "")
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	var firstErr error
	for _, enc := range encodings {
		decoded, err := enc.DecodeString(raw)
		if err == nil {
			return decoded, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
