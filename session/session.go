package session

import (
	"time"

	"github.com/jrsteele09/go-chamados-sync/auth"
)

// Identity is the display profile of the logged in user.
type Identity = auth.Identity

// Session is a read-only snapshot of the active session.
type Session struct {
	Token     string    // Bearer access token
	ExpiresAt time.Time // exp claim of Token
	Identity  Identity  // Informational only
}

// ValidAt reports whether the snapshot's token is present and unexpired at now.
func (s *Session) ValidAt(now time.Time) bool {
	return s != nil && s.Token != "" && now.Before(s.ExpiresAt)
}
