package devserver

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/pkg/errors"
)

const (
	refreshTokenLength = 32
	refreshTokenExpiry = 7 * 24 * time.Hour
)

// storedRefreshToken is the server side record behind an opaque refresh token.
type storedRefreshToken struct {
	AccountID string
	Iat       time.Time
}

// issuedTokens is a login or refresh result.
type issuedTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// tokenIssuer signs access tokens, keeps one refresh token per account and
// remembers revoked access tokens until they expire.
type tokenIssuer struct {
	keys    *KeyPair
	ttl     time.Duration
	nowFunc func() time.Time

	mu        sync.Mutex
	refresh   map[string]storedRefreshToken
	byAccount map[string]string
	revoked   map[string]time.Time // jti to exp
}

func newTokenIssuer(keys *KeyPair, ttl time.Duration, nowFunc func() time.Time) *tokenIssuer {
	return &tokenIssuer{
		keys:      keys,
		ttl:       ttl,
		nowFunc:   nowFunc,
		refresh:   make(map[string]storedRefreshToken),
		byAccount: make(map[string]string),
		revoked:   make(map[string]time.Time),
	}
}

// Issue creates a new token pair for account, replacing its refresh token.
func (t *tokenIssuer) Issue(account *Account) (*issuedTokens, error) {
	now := t.nowFunc()
	claims := jwt.MapClaims{
		"sub":   account.ID,
		"email": account.Email,
		"name":  account.FirstName,
		"roles": account.Roles,
		"iat":   now.Unix(),
		"exp":   now.Add(t.ttl).Unix(),
		"jti":   uuid.NewString(),
	}
	accessToken, err := t.keys.Sign(claims)
	if err != nil {
		return nil, err
	}

	tokenBytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, errors.Wrap(err, "failed to generate random bytes")
	}
	refreshToken := hex.EncodeToString(tokenBytes)

	t.mu.Lock()
	if existing, ok := t.byAccount[account.ID]; ok {
		delete(t.refresh, existing)
	}
	t.refresh[refreshToken] = storedRefreshToken{AccountID: account.ID, Iat: now}
	t.byAccount[account.ID] = refreshToken
	t.mu.Unlock()

	return &issuedTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(t.ttl / time.Second),
	}, nil
}

// Redeem consumes a refresh token and returns the account id it was issued to.
func (t *tokenIssuer) Redeem(refreshToken string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stored, ok := t.refresh[refreshToken]
	if !ok {
		return "", apperrors.Wrapf(apperrors.ErrInvalidCredentials, "unknown refresh token")
	}
	delete(t.refresh, refreshToken)
	delete(t.byAccount, stored.AccountID)
	if t.nowFunc().Sub(stored.Iat) > refreshTokenExpiry {
		return "", apperrors.Wrapf(apperrors.ErrInvalidCredentials, "refresh token expired")
	}
	return stored.AccountID, nil
}

// Authenticate verifies an access token and returns its claims.
func (t *tokenIssuer) Authenticate(rawToken string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, t.keys.verificationKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(t.nowFunc),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, apperrors.Join(apperrors.ErrInvalidToken, err)
	}

	jti, _ := claims["jti"].(string)
	t.mu.Lock()
	_, revoked := t.revoked[jti]
	t.mu.Unlock()
	if revoked {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "token revoked")
	}
	return claims, nil
}

// Revoke invalidates the access token and the account's refresh token.
func (t *tokenIssuer) Revoke(claims jwt.MapClaims) {
	jti, _ := claims["jti"].(string)
	sub, _ := claims.GetSubject()
	exp, _ := claims.GetExpirationTime()

	t.mu.Lock()
	defer t.mu.Unlock()
	if jti != "" && exp != nil {
		t.revoked[jti] = exp.Time
	}
	if existing, ok := t.byAccount[sub]; ok {
		delete(t.refresh, existing)
		delete(t.byAccount, sub)
	}
	t.cleanupLocked()
}

func (t *tokenIssuer) cleanupLocked() {
	now := t.nowFunc()
	for jti, exp := range t.revoked {
		if now.After(exp) {
			delete(t.revoked, jti)
		}
	}
}
