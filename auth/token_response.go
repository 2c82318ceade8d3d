package auth

import (
	"encoding/json"

	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/jrsteele09/go-chamados-sync/internal/utils"
)

// TokenResponse is the body returned by the login and refresh endpoints.
type TokenResponse struct {
	// AccessToken is the JWT sent as "Authorization: Bearer <token>" on ticket
	// queries and at push channel connect time.
	AccessToken string `json:"accessToken"`

	// RefreshToken is an opaque credential exchanged at /refresh for a new
	// access token. It may rotate on each exchange.
	RefreshToken string `json:"refreshToken"`

	// ExpiresIn is the access token lifetime in seconds. It is a hint only:
	// validity is always taken from the token's own exp claim.
	ExpiresIn int `json:"expiresIn"`

	// Identity describes the logged in user for display purposes.
	Identity Identity `json:"identity"`
}

// Identity is the informational user profile attached to a session. It is never
// used for authorization decisions.
type Identity struct {
	Email       string  `json:"email"`
	DisplayName string  `json:"displayName"`
	Login       string  `json:"login,omitempty"`
	Company     string  `json:"company,omitempty"`
	Claims      []Claim `json:"claims,omitempty"`
}

// Claim is a type/value pair carried in the identity block.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// wireIdentity accepts both the canonical identity and the legacy "userToken"
// block (firstName, nomeEmpresa).
type wireIdentity struct {
	Email       string  `json:"email"`
	DisplayName string  `json:"displayName"`
	FirstName   string  `json:"firstName"`
	Login       string  `json:"login"`
	Company     string  `json:"company"`
	NomeEmpresa string  `json:"nomeEmpresa"`
	Claims      []Claim `json:"claims"`
}

type wireTokenBody struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresIn    int           `json:"expiresIn"`
	Identity     *wireIdentity `json:"identity"`
	UserToken    *wireIdentity `json:"userToken"`
}

type wireTokenResponse struct {
	wireTokenBody
	Data *wireTokenBody `json:"data"`
}

// decodeTokenResponse reads either the flat body or the body wrapped in "data".
// A body without an access token is a server fault.
func decodeTokenResponse(body []byte) (*TokenResponse, error) {
	var wire wireTokenResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apperrors.Join(apperrors.ErrServerFault, err)
	}

	tb := &wire.wireTokenBody
	if wire.Data != nil && wire.Data.AccessToken != "" {
		tb = wire.Data
	}
	if tb.AccessToken == "" {
		return nil, apperrors.Wrapf(apperrors.ErrServerFault, "token response missing access token")
	}

	resp := &TokenResponse{
		AccessToken:  tb.AccessToken,
		RefreshToken: tb.RefreshToken,
		ExpiresIn:    tb.ExpiresIn,
	}
	id := tb.Identity
	if id == nil {
		id = tb.UserToken
	}
	if id != nil {
		resp.Identity = Identity{
			Email:       id.Email,
			DisplayName: utils.FirstNonEmpty(id.DisplayName, id.FirstName, id.Login),
			Login:       id.Login,
			Company:     utils.FirstNonEmpty(id.Company, id.NomeEmpresa),
			Claims:      id.Claims,
		}
	}
	return resp, nil
}
