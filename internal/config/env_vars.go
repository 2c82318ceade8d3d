package config

import (
	"time"

	"github.com/spf13/viper"
)

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetMetricsAddr() string
	GetHTTPTimeout() time.Duration
}

type EnvVars struct {
	v *viper.Viper
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.v.GetString("app.name")
}

// GetEnv returns the deployment environment, "DEV" when unset.
func (e EnvVars) GetEnv() string {
	env := e.v.GetString("app.env")
	if env == "" {
		return "DEV"
	}
	return env
}

func (e EnvVars) GetLogLevel() string {
	return e.v.GetString("log.level")
}

// GetMetricsAddr is the listen address for the Prometheus handler. Empty disables it.
func (e EnvVars) GetMetricsAddr() string {
	return e.v.GetString("metrics.addr")
}

func (e EnvVars) GetHTTPTimeout() time.Duration {
	return durationOr(e.v, "http.timeout", 15*time.Second)
}

func durationOr(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	d := v.GetDuration(key)
	if d <= 0 {
		return fallback
	}
	return d
}
