package auth

import (
	"fmt"
	"net/http"

	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
)

// classifyStatus maps a non-2xx status from the auth endpoints onto the auth
// error taxonomy. Rejections of the submitted credential are
// ErrInvalidCredentials, anything else is ErrServerFault.
func classifyStatus(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.ErrInvalidCredentials
	}
	return apperrors.Join(apperrors.ErrServerFault, fmt.Errorf("unexpected status %d", status))
}
