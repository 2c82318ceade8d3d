package authfake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-chamados-sync/auth"
	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
)

// Client is a scriptable auth.Client. Unset funcs fail with ErrServerFault.
type Client struct {
	LoginFunc   func(ctx context.Context, identifier, secret string) (*auth.TokenResponse, error)
	RefreshFunc func(ctx context.Context, refreshToken string) (*auth.TokenResponse, error)
	LogoutFunc  func(ctx context.Context, accessToken string) error

	mu           sync.Mutex
	loginCalls   int
	refreshCalls int
	logoutCalls  int
	logoutTokens []string
}

var _ auth.Client = (*Client)(nil)

func (c *Client) Login(ctx context.Context, identifier, secret string) (*auth.TokenResponse, error) {
	c.mu.Lock()
	c.loginCalls++
	c.mu.Unlock()
	if c.LoginFunc == nil {
		return nil, apperrors.ErrServerFault
	}
	return c.LoginFunc(ctx, identifier, secret)
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*auth.TokenResponse, error) {
	c.mu.Lock()
	c.refreshCalls++
	c.mu.Unlock()
	if c.RefreshFunc == nil {
		return nil, apperrors.ErrServerFault
	}
	return c.RefreshFunc(ctx, refreshToken)
}

func (c *Client) Logout(ctx context.Context, accessToken string) error {
	c.mu.Lock()
	c.logoutCalls++
	c.logoutTokens = append(c.logoutTokens, accessToken)
	c.mu.Unlock()
	if c.LogoutFunc == nil {
		return nil
	}
	return c.LogoutFunc(ctx, accessToken)
}

func (c *Client) LoginCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginCalls
}

func (c *Client) RefreshCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshCalls
}

func (c *Client) LogoutCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logoutCalls
}

// LogoutTokens returns the access tokens passed to Logout, in call order.
func (c *Client) LogoutTokens() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.logoutTokens...)
}
