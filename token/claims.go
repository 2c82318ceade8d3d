package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/jrsteele09/go-chamados-sync/internal/utils"
)

// Role claim names seen in access tokens issued by the ticket backend.
var roleClaimNames = []string{
	"roles",
	"role",
	"http://schemas.microsoft.com/ws/2008/06/identity/claims/role",
}

// Claims holds what the client reads out of an access token. It is decoded
// without verifying the signature: the server validates the token on every
// request, the client only needs the expiry and display identity.
type Claims struct {
	ID        string    // jti
	Subject   string    // sub
	Email     string    // email
	Name      string    // name or unique_name
	Roles     []string  // roles claim, whichever name the issuer used
	IssuedAt  time.Time // iat, zero when absent
	ExpiresAt time.Time // exp, always set
}

// Parse decodes the claims of a JWT. Tokens that are not three dot separated
// segments, have undecodable segments, or have no exp claim are rejected with
// ErrInvalidToken.
func Parse(rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, apperrors.ErrInvalidToken
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, apperrors.Join(apperrors.ErrInvalidToken, err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "unexpected claims type %T", parsed.Claims)
	}

	exp, err := mapClaims.GetExpirationTime()
	if err != nil {
		return nil, apperrors.Join(apperrors.ErrInvalidToken, err)
	}
	if exp == nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "token missing exp claim")
	}

	claims := &Claims{ExpiresAt: exp.Time}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	claims.Subject, _ = mapClaims.GetSubject()
	claims.ID, _ = mapClaims["jti"].(string)
	claims.Email, _ = mapClaims["email"].(string)

	name, _ := mapClaims["name"].(string)
	uniqueName, _ := mapClaims["unique_name"].(string)
	claims.Name = utils.FirstNonEmpty(name, uniqueName)

	for _, key := range roleClaimNames {
		if roles := utils.ToStringSlice(mapClaims[key]); len(roles) > 0 {
			claims.Roles = roles
			break
		}
	}
	return claims, nil
}

// ValidAt reports whether the token has not yet expired at now.
func (c *Claims) ValidAt(now time.Time) bool {
	return c != nil && now.Before(c.ExpiresAt)
}

// ValidAt is the one-shot form of Parse followed by Claims.ValidAt. It never
// panics; malformed tokens are simply not valid.
func ValidAt(rawToken string, now time.Time) bool {
	claims, err := Parse(rawToken)
	if err != nil {
		return false
	}
	return claims.ValidAt(now)
}
