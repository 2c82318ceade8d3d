package config

import (
	"time"

	"github.com/spf13/viper"
)

type SessionConfig interface {
	GetAuthBaseURL() string
	GetSessionFile() string
	GetSessionPassphrase() string
	GetJWKSURL() string
	GetRemoteLogoutTimeout() time.Duration
}

type Session struct {
	v *viper.Viper
}

var _ SessionConfig = Session{}

func (s Session) GetAuthBaseURL() string {
	return s.v.GetString("auth.base_url")
}

// GetSessionFile is where the access token, refresh token and identity persist
// between runs.
func (s Session) GetSessionFile() string {
	return s.v.GetString("session.file")
}

// GetSessionPassphrase enables encryption of the session file when non-empty.
func (s Session) GetSessionPassphrase() string {
	return s.v.GetString("session.passphrase")
}

// GetJWKSURL enables signature verification of issued tokens when non-empty.
func (s Session) GetJWKSURL() string {
	return s.v.GetString("session.jwks_url")
}

func (s Session) GetRemoteLogoutTimeout() time.Duration {
	return durationOr(s.v, "session.logout_timeout", 5*time.Second)
}
