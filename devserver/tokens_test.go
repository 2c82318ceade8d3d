package devserver

import (
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/jrsteele09/go-chamados-sync/token"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T, now *time.Time) *tokenIssuer {
	t.Helper()
	keys, err := GenerateRSAKeyPair("test-key", 2048)
	require.NoError(t, err)
	return newTokenIssuer(keys, time.Minute, func() time.Time { return *now })
}

func TestTokenIssuer_IssueAndAuthenticate(t *testing.T) {
	now := time.Now()
	issuer := newTestIssuer(t, &now)
	account := &Account{ID: "acc-1", Email: "alice@example.com", FirstName: "Alice", Roles: []string{"agent"}}

	issued, err := issuer.Issue(account)
	require.NoError(t, err)
	require.Equal(t, 60, issued.ExpiresIn)
	require.Len(t, issued.RefreshToken, refreshTokenLength*2)

	claims, err := token.Parse(issued.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "acc-1", claims.Subject)
	require.Equal(t, "Alice", claims.Name)
	require.Equal(t, []string{"agent"}, claims.Roles)

	verified, err := issuer.Authenticate(issued.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", verified["email"])

	now = now.Add(2 * time.Minute)
	_, err = issuer.Authenticate(issued.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestTokenIssuer_RejectsForeignSignature(t *testing.T) {
	now := time.Now()
	issuer := newTestIssuer(t, &now)
	other := newTestIssuer(t, &now)

	issued, err := other.Issue(&Account{ID: "acc-1"})
	require.NoError(t, err)

	_, err = issuer.Authenticate(issued.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestTokenIssuer_RefreshTokensAreSingleUse(t *testing.T) {
	now := time.Now()
	issuer := newTestIssuer(t, &now)
	account := &Account{ID: "acc-1"}

	first, err := issuer.Issue(account)
	require.NoError(t, err)
	second, err := issuer.Issue(account)
	require.NoError(t, err)

	_, err = issuer.Redeem(first.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials, "a newer login replaces the refresh token")

	id, err := issuer.Redeem(second.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, "acc-1", id)

	_, err = issuer.Redeem(second.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestTokenIssuer_RefreshTokenExpires(t *testing.T) {
	now := time.Now()
	issuer := newTestIssuer(t, &now)

	issued, err := issuer.Issue(&Account{ID: "acc-1"})
	require.NoError(t, err)

	now = now.Add(refreshTokenExpiry + time.Second)
	_, err = issuer.Redeem(issued.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestTokenIssuer_Revoke(t *testing.T) {
	now := time.Now()
	issuer := newTestIssuer(t, &now)

	issued, err := issuer.Issue(&Account{ID: "acc-1"})
	require.NoError(t, err)
	claims, err := issuer.Authenticate(issued.AccessToken)
	require.NoError(t, err)

	issuer.Revoke(claims)

	_, err = issuer.Authenticate(issued.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	_, err = issuer.Redeem(issued.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}
