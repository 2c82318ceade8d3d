package config

import (
	"time"

	"github.com/spf13/viper"
)

// DevServerConfig configures the local in-memory backend used for development.
type DevServerConfig interface {
	GetDevServerAddrs() []string
	GetDevLogin() string
	GetDevPassword() string
	GetDevTokenTTL() time.Duration
	GetDevSeedTickets() int
}

type DevServer struct {
	v *viper.Viper
}

var _ DevServerConfig = DevServer{}

// GetDevServerAddrs lists every address the dev backend listens on. The same
// handler serves all of them so the default auth and ticket URLs both resolve.
func (d DevServer) GetDevServerAddrs() []string {
	return d.v.GetStringSlice("devserver.addrs")
}

func (d DevServer) GetDevLogin() string {
	return d.v.GetString("devserver.login")
}

func (d DevServer) GetDevPassword() string {
	return d.v.GetString("devserver.password")
}

func (d DevServer) GetDevTokenTTL() time.Duration {
	return durationOr(d.v, "devserver.token_ttl", 15*time.Minute)
}

func (d DevServer) GetDevSeedTickets() int {
	n := d.v.GetInt("devserver.seed_tickets")
	if n < 0 {
		return 0
	}
	return n
}
