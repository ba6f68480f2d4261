package auth

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/funding-auth/pkg/util"
)

// IssuanceKeyHeader carries the shared key that authorises token issuance calls.
const IssuanceKeyHeader = "X-Issuance-Key"

// IssuanceGuard restricts issuance endpoints to callers holding the configured key.
type IssuanceGuard struct {
	key []byte
}

// NewIssuanceGuard constructs the guard. An empty key yields nil: issuance routes are then
// not registered at all.
func NewIssuanceGuard(key string) *IssuanceGuard {
	if key == "" {
		return nil
	}
	return &IssuanceGuard{key: []byte(key)}
}

// Handle rejects requests without a matching issuance key.
func (g *IssuanceGuard) Handle(c *fiber.Ctx) error {
	presented := c.Get(IssuanceKeyHeader)
	if presented == "" {
		return apperrors.NewUnauthorized("missing issuance key")
	}
	if subtle.ConstantTimeCompare([]byte(presented), g.key) != 1 {
		return apperrors.NewUnauthorized("invalid issuance key")
	}
	return c.Next()
}
