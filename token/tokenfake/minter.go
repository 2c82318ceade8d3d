package tokenfake

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Minter issues signed access tokens for tests and local fakes.
type Minter struct {
	method  jwt.SigningMethod
	secret  []byte
	key     *rsa.PrivateKey
	keyID   string
	NowFunc func() time.Time
}

// NewHMAC returns a Minter signing with HS256.
func NewHMAC(secret string) *Minter {
	return &Minter{method: jwt.SigningMethodHS256, secret: []byte(secret), NowFunc: time.Now}
}

// NewRSA returns a Minter signing with RS256 under a freshly generated key.
func NewRSA(keyID string) (*Minter, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return &Minter{method: jwt.SigningMethodRS256, key: key, keyID: keyID, NowFunc: time.Now}, nil
}

// Sign signs the given claims as-is.
func (m *Minter) Sign(claims jwt.MapClaims) (string, error) {
	t := jwt.NewWithClaims(m.method, claims)
	if m.keyID != "" {
		t.Header["kid"] = m.keyID
	}
	var signingKey any = m.secret
	if m.key != nil {
		signingKey = m.key
	}
	signed, err := t.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Issue returns a token for sub expiring ttl from now (negative ttl gives an
// already expired token). extra claims override the defaults. It panics if
// signing fails, which only happens with a broken key.
func (m *Minter) Issue(sub string, ttl time.Duration, extra map[string]any) string {
	now := m.NowFunc()
	claims := jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.com",
		"name":  sub,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
		"jti":   uuid.New().String(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	signed, err := m.Sign(claims)
	if err != nil {
		panic(err)
	}
	return signed
}

// JWKS returns the public key set for an RSA minter.
func (m *Minter) JWKS() ([]byte, error) {
	if m.key == nil {
		return nil, fmt.Errorf("JWKS only supported for RSA minters")
	}
	pub := m.key.PublicKey
	return json.Marshal(map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"use": "sig",
			"alg": "RS256",
			"kid": m.keyID,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}
