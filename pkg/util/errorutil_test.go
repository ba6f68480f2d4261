package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestToDomainError(t *testing.T) {
	cause := errors.New("redis: connection refused")

	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{name: "domain error passes through", err: fmt.Errorf("wrapped: %w", NewValidationError("bad", nil)), code: "VALIDATION_FAILED", status: http.StatusBadRequest},
		{name: "unauthorized", err: NewUnauthorized("missing issuance key"), code: "UNAUTHORIZED", status: http.StatusUnauthorized},
		{name: "dependency unavailable", err: NewServiceUnavailable("csrf store unavailable", cause), code: "DEPENDENCY_UNAVAILABLE", status: http.StatusServiceUnavailable},
		{name: "upstream", err: NewUpstreamError("REFRESH_FAILED", http.StatusBadGateway, cause), code: "REFRESH_FAILED", status: http.StatusBadGateway},
		{name: "fiber error", err: fiber.ErrNotFound, code: "HTTP_404", status: http.StatusNotFound},
		{name: "no rows", err: pgx.ErrNoRows, code: "NOT_FOUND", status: http.StatusNotFound},
		{name: "anything else", err: cause, code: "INTERNAL_ERROR", status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			domainErr := ToDomainError(tt.err)
			assert.Equal(t, tt.code, domainErr.Code)
			assert.Equal(t, tt.status, domainErr.HTTPStatus)
		})
	}

	assert.Nil(t, ToDomainError(nil))
}

func TestDomainError_UnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewServiceUnavailable("csrf store unavailable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "csrf store unavailable: boom", err.Error())
}
