package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/funding-auth/internal/api/http/handlers"
	"github.com/spec-kit/funding-auth/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health        *handlers.HealthHandler
	Tokens        *handlers.TokenHandler
	Metrics       http.Handler
	IssuanceGuard *auth.IssuanceGuard
}

// RegisterRoutes wires HTTP routes. Issuance routes exist only when an issuance guard is configured.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	if cfg.Health != nil {
		app.Get("/health/live", cfg.Health.Live)
		app.Get("/health/ready", cfg.Health.Ready)
	}
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/tokens/validate", cfg.Tokens.ValidateToken)
	authGroup.Post("/csrf/validate", cfg.Tokens.ValidateCsrf)
	authGroup.Post("/refresh", cfg.Tokens.Refresh)

	if cfg.IssuanceGuard == nil {
		return
	}
	admin := authGroup.Group("/admin", cfg.IssuanceGuard.Handle)
	admin.Post("/token", cfg.Tokens.IssueAdminToken)
	admin.Post("/csrf", cfg.Tokens.IssueAdminCsrf)
	admin.Get("/issuances/:account", cfg.Tokens.ListIssuances)
}
