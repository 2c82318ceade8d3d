package token_test

import (
	"encoding/base64"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/jrsteele09/go-chamados-sync/token"
	"github.com/jrsteele09/go-chamados-sync/token/tokenfake"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	minter := tokenfake.NewHMAC("secret")

	t.Run("identity and expiry", func(t *testing.T) {
		raw := minter.Issue("ana", time.Hour, map[string]any{
			"roles": []string{"agent", "admin"},
			"name":  "Ana Souza",
		})
		claims, err := token.Parse(raw)
		require.NoError(t, err)
		require.Equal(t, "ana", claims.Subject)
		require.Equal(t, "ana@example.com", claims.Email)
		require.Equal(t, "Ana Souza", claims.Name)
		require.Equal(t, []string{"agent", "admin"}, claims.Roles)
		require.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 2*time.Second)
	})

	t.Run("dotnet role claim and unique_name", func(t *testing.T) {
		raw := minter.Issue("bia", time.Hour, map[string]any{
			"name":        "",
			"unique_name": "bia.lima",
			"http://schemas.microsoft.com/ws/2008/06/identity/claims/role": "Suporte",
		})
		claims, err := token.Parse(raw)
		require.NoError(t, err)
		require.Equal(t, "bia.lima", claims.Name)
		require.Equal(t, []string{"Suporte"}, claims.Roles)
	})

	t.Run("missing exp", func(t *testing.T) {
		raw, err := minter.Sign(map[string]any{"sub": "x"})
		require.NoError(t, err)
		_, err = token.Parse(raw)
		require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	})

	malformed := []string{
		"",
		"   ",
		"not-a-jwt",
		"a.b",
		"a.b.c",
		"eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte("{not json")) + ".sig",
		"eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(`{"exp":"tomorrow"}`)) + ".sig",
	}
	for _, raw := range malformed {
		_, err := token.Parse(raw)
		require.ErrorIs(t, err, apperrors.ErrInvalidToken, "token %q", raw)
	}
}

func TestValidAt(t *testing.T) {
	minter := tokenfake.NewHMAC("secret")
	now := time.Now()

	for _, ttl := range []time.Duration{time.Second * 30, time.Hour, 24 * time.Hour} {
		require.True(t, token.ValidAt(minter.Issue("u", ttl, nil), now), "future exp %s", ttl)
	}
	for _, ttl := range []time.Duration{-time.Second * 5, -time.Hour, -24 * time.Hour} {
		require.False(t, token.ValidAt(minter.Issue("u", ttl, nil), now), "past exp %s", ttl)
	}

	require.NotPanics(t, func() {
		require.False(t, token.ValidAt("%%%.###.!!!", now))
	})
}
