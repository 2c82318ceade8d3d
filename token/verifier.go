package token

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
)

// Verifier checks the signature of an access token.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) error
}

// KeySetVerifier verifies token signatures against a remote JSON Web Key Set.
// Keys are fetched lazily and cached by the underlying key set.
type KeySetVerifier struct {
	keySet *oidc.RemoteKeySet
}

var _ Verifier = (*KeySetVerifier)(nil)

// NewKeySetVerifier creates a verifier for the JWKS published at jwksURL. ctx
// governs key fetches for the lifetime of the verifier.
func NewKeySetVerifier(ctx context.Context, jwksURL string) *KeySetVerifier {
	return &KeySetVerifier{keySet: oidc.NewRemoteKeySet(ctx, jwksURL)}
}

func (v *KeySetVerifier) Verify(ctx context.Context, rawToken string) error {
	if _, err := v.keySet.VerifySignature(ctx, rawToken); err != nil {
		return apperrors.Join(apperrors.ErrInvalidToken, err)
	}
	return nil
}
