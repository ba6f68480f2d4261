package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const (
	refreshPath          = "/api/v1/a1/auth/refresh"
	refreshTokenHeader   = "refresh-token"
	serviceHeader        = "service"
	defaultRefreshWait   = 5 * time.Second
	maxRefreshBodyBytes  = 64 << 10
	breakerMinRequests   = 5
	breakerFailureRatio  = 0.6
	breakerOpenTimeout   = 30 * time.Second
	breakerCountInterval = time.Minute
)

// RefreshClient exchanges a refresh token for a new access token at the authentication
// server. It never retries and keeps no local state beyond the optional breaker.
type RefreshClient struct {
	endpoint   string
	serviceID  string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// RefreshOption customises a RefreshClient.
type RefreshOption func(*RefreshClient)

// WithHTTPClient replaces the default client (5s timeout). The client is copied and never
// follows redirects: a 3xx is reported as a failed refresh.
func WithHTTPClient(client *http.Client) RefreshOption {
	return func(c *RefreshClient) {
		if client != nil {
			c.httpClient = withoutRedirects(client)
		}
	}
}

func withoutRedirects(client *http.Client) *http.Client {
	clone := *client
	clone.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &clone
}

// WithCircuitBreaker guards the upstream with a breaker. Only transport failures and 5xx
// responses count against it.
func WithCircuitBreaker(name string) RefreshOption {
	return func(c *RefreshClient) {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     name,
			Interval: breakerCountInterval,
			Timeout:  breakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < breakerMinRequests {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= breakerFailureRatio
			},
			IsSuccessful: func(err error) bool {
				var refreshErr *RefreshFailedError
				if errors.As(err, &refreshErr) {
					return refreshErr.StatusCode >= 400 && refreshErr.StatusCode < 500
				}
				return err == nil
			},
		})
	}
}

// NewRefreshClient builds a client for the authentication server at baseURL.
func NewRefreshClient(baseURL, serviceID string, opts ...RefreshOption) *RefreshClient {
	if serviceID == "" {
		serviceID = DefaultServiceID
	}
	c := &RefreshClient{
		endpoint:   strings.TrimRight(baseURL, "/") + refreshPath,
		serviceID:  serviceID,
		httpClient: withoutRedirects(&http.Client{Timeout: defaultRefreshWait}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh posts refreshToken to the authentication server and returns the new access token.
// Any non-2xx status or transport failure yields a *RefreshFailedError.
func (c *RefreshClient) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return "", &RefreshFailedError{Err: fmt.Errorf("%w: refresh token", ErrMissingClaim)}
	}
	if c.breaker == nil {
		return c.exchange(ctx, refreshToken)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.exchange(ctx, refreshToken)
	})
	if err != nil {
		var refreshErr *RefreshFailedError
		if errors.As(err, &refreshErr) {
			return "", refreshErr
		}
		return "", &RefreshFailedError{Err: err}
	}
	return result.(string), nil
}

func (c *RefreshClient) exchange(ctx context.Context, refreshToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, http.NoBody)
	if err != nil {
		return "", &RefreshFailedError{Err: err}
	}
	req.Header.Set(refreshTokenHeader, refreshToken)
	req.Header.Set(serviceHeader, c.serviceID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &RefreshFailedError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRefreshBodyBytes))
	if err != nil {
		return "", &RefreshFailedError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &RefreshFailedError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("authentication server returned %s", resp.Status),
		}
	}

	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", &RefreshFailedError{StatusCode: resp.StatusCode, Err: errors.New("empty access token in response")}
	}
	return token, nil
}
