package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const envPrefix = "CHAMADOS"

type Config interface {
	EnvConfig
	SessionConfig
	ChannelConfig
	StoreConfig
	DevServerConfig
}

type mainConfig struct {
	EnvVars
	Session
	Channel
	Store
	DevServer
}

type options struct {
	file      string
	overrides map[string]any
}

// Option customises how the configuration is loaded.
type Option func(*options)

// WithConfigFile reads the given YAML/JSON/TOML file on top of the defaults.
// Environment variables still take precedence over file values.
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.file = path
	}
}

// WithOverride forces a key (e.g. "hub.url") to a value. Used by the CLI for
// flags and by tests.
func WithOverride(key string, value any) Option {
	return func(o *options) {
		if o.overrides == nil {
			o.overrides = make(map[string]any)
		}
		o.overrides[key] = value
	}
}

// New loads configuration from defaults, an optional file and CHAMADOS_*
// environment variables.
func New(opts ...Option) (Config, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if o.file != "" {
		v.SetConfigFile(o.file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "config.New read %s", o.file)
		}
	}

	for k, val := range o.overrides {
		v.Set(k, val)
	}

	return mainConfig{
		EnvVars:   EnvVars{v: v},
		Session:   Session{v: v},
		Channel:   Channel{v: v},
		Store:     Store{v: v},
		DevServer: DevServer{v: v},
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "Chamados")
	v.SetDefault("app.env", "DEV")
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("http.timeout", "15s")

	v.SetDefault("auth.base_url", "http://localhost:5001/api/v1/login")
	v.SetDefault("session.file", defaultSessionFile())
	v.SetDefault("session.passphrase", "")
	v.SetDefault("session.jwks_url", "")
	v.SetDefault("session.logout_timeout", "5s")

	v.SetDefault("hub.url", "ws://localhost:5002/hubs/chamados")
	v.SetDefault("channel.backoff", []string{"0s", "2s", "10s", "30s"})
	v.SetDefault("channel.max_backoff", "30s")
	v.SetDefault("channel.max_retries", 20)
	v.SetDefault("channel.handshake_timeout", "10s")
	v.SetDefault("channel.keep_alive", "15s")
	v.SetDefault("channel.events", []string{"BroadcastMessage", "ChamadoAtualizado", "NovoChamado"})

	v.SetDefault("tickets.base_url", "http://localhost:5002/api/chamados")
	v.SetDefault("tickets.page_size", 10)
	v.SetDefault("tickets.timeout", "15s")

	v.SetDefault("devserver.addrs", []string{":5001", ":5002"})
	v.SetDefault("devserver.login", "demo")
	v.SetDefault("devserver.password", "demo")
	v.SetDefault("devserver.token_ttl", "15m")
	v.SetDefault("devserver.seed_tickets", 23)
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".chamados-session.json"
	}
	return filepath.Join(dir, "chamados", "session.json")
}
