package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/jrsteele09/go-chamados-sync/internal/logging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	loginPath   = "/login"
	refreshPath = "/refresh"
	logoutPath  = "/logout"

	defaultTimeout  = 15 * time.Second
	requestIDHeader = "X-Request-ID"
)

// HTTPClient is the Client implementation for the JSON auth API.
type HTTPClient struct {
	rc     *resty.Client
	logger zerolog.Logger
}

var _ Client = (*HTTPClient)(nil)

// HTTPClientOption configures an HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l zerolog.Logger) HTTPClientOption {
	return func(c *HTTPClient) {
		c.logger = l
	}
}

// WithTimeout sets the per request timeout.
func WithTimeout(d time.Duration) HTTPClientOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.rc.SetTimeout(d)
		}
	}
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		c.rc = resty.NewWithClient(hc).
			SetBaseURL(c.rc.BaseURL).
			SetTimeout(c.rc.GetClient().Timeout)
	}
}

// NewHTTPClient creates a client rooted at baseURL, e.g. https://host/api/auth.
func NewHTTPClient(baseURL string, opts ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		rc: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(defaultTimeout),
		logger: logging.Component(log.Logger, "auth"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.rc.SetHeader("Accept", "application/json")
	return c
}

func (c *HTTPClient) Login(ctx context.Context, identifier, secret string) (*TokenResponse, error) {
	return c.exchange(ctx, loginPath, loginRequest{Identifier: identifier, Secret: secret})
}

func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, apperrors.ErrInvalidCredentials
	}
	return c.exchange(ctx, refreshPath, refreshRequest{RefreshToken: refreshToken})
}

func (c *HTTPClient) Logout(ctx context.Context, accessToken string) error {
	resp, err := c.request(ctx).
		SetAuthToken(accessToken).
		Post(logoutPath)
	if err != nil {
		return apperrors.Join(apperrors.ErrNetworkUnreachable, err)
	}
	if resp.IsError() {
		return errors.Wrap(classifyStatus(resp.StatusCode()), "logout rejected")
	}
	return nil
}

func (c *HTTPClient) exchange(ctx context.Context, path string, body any) (*TokenResponse, error) {
	resp, err := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err != nil {
		c.logger.Debug().Err(err).Str("path", path).Msg("auth request failed")
		return nil, apperrors.Join(apperrors.ErrNetworkUnreachable, err)
	}

	if resp.IsError() || resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		c.logger.Debug().Int("status", resp.StatusCode()).Str("path", path).Msg("auth request rejected")
		return nil, classifyStatus(resp.StatusCode())
	}

	tokens, err := decodeTokenResponse(resp.Body())
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode token response")
	}
	return tokens, nil
}

func (c *HTTPClient) request(ctx context.Context) *resty.Request {
	return c.rc.R().
		SetContext(ctx).
		SetHeader(requestIDHeader, uuid.NewString())
}
