package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

var (
	rsaOnce sync.Once
	rsaKey  *rsa.PrivateKey
)

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	rsaOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		rsaKey = key
	})
	return rsaKey
}

func pkcs8PEM(t *testing.T, key any) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func newAdminStrategy(t *testing.T) *SymmetricStrategy {
	t.Helper()
	key, err := NewKeyProvider(testSecret, "").SymmetricKey()
	require.NoError(t, err)
	strategy, err := NewSymmetricStrategy(key, "", "")
	require.NoError(t, err)
	return strategy
}

// authority plays the external identity provider that signs member tokens.
type authority struct {
	key      *rsa.PrivateKey
	strategy *AsymmetricPublicStrategy
}

func newAuthority(t *testing.T) authority {
	t.Helper()
	priv := testRSAKey(t)
	key, err := NewKeyProvider("", pkcs8PEM(t, priv)).ExternalPublicKey()
	require.NoError(t, err)
	strategy, err := NewAsymmetricPublicStrategy(key, "")
	require.NoError(t, err)
	return authority{key: priv, strategy: strategy}
}

func (a authority) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
	require.NoError(t, err)
	return token
}

func memberClaims(subject string, exp time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"sub": subject,
		"iss": DefaultExternalIssuer,
		"iat": exp.Add(-time.Hour).Unix(),
		"exp": exp.Unix(),
	}
}

type memoryStore struct {
	mu     sync.Mutex
	data   map[string]string
	putErr error
	getErr error
	puts   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (s *memoryStore) Put(_ context.Context, key, fingerprint string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.putErr != nil {
		return s.putErr
	}
	s.data[key] = fingerprint
	return nil
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", s.getErr
	}
	val, ok := s.data[key]
	if !ok {
		return "", ErrCsrfBindingNotFound
	}
	return val, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
