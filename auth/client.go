package auth

import "context"

// Client talks to the remote authentication endpoint.
type Client interface {
	// Login exchanges an identifier and secret for tokens.
	Login(ctx context.Context, identifier, secret string) (*TokenResponse, error)
	// Refresh exchanges a refresh credential for a new token pair.
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
	// Logout revokes the session server side. Callers treat it as best effort.
	Logout(ctx context.Context, accessToken string) error
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}
