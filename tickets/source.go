package tickets

import "context"

// Source queries the ticket service.
type Source interface {
	// Fetch returns one page. Errors are classified with the fetch sentinels:
	// ErrUnauthorized, ErrForbidden, ErrNetworkUnreachable, ErrServerFault and
	// ErrMalformedResponse.
	Fetch(ctx context.Context, q Query) (*Envelope, error)
}
