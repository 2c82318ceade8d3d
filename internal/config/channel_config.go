package config

import (
	"time"

	"github.com/spf13/viper"
)

type ChannelConfig interface {
	GetHubURL() string
	GetBackoffTiers() []time.Duration
	GetMaxBackoff() time.Duration
	GetMaxRetries() int
	GetHandshakeTimeout() time.Duration
	GetKeepAlive() time.Duration
	GetRecognizedEvents() []string
}

type Channel struct {
	v *viper.Viper
}

var _ ChannelConfig = Channel{}

func (c Channel) GetHubURL() string {
	return c.v.GetString("hub.url")
}

// GetBackoffTiers returns the retry delays indexed by consecutive failure count.
// Entries that do not parse as durations are skipped.
func (c Channel) GetBackoffTiers() []time.Duration {
	raw := c.v.GetStringSlice("channel.backoff")
	tiers := make([]time.Duration, 0, len(raw))
	for _, s := range raw {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			continue
		}
		tiers = append(tiers, d)
	}
	return tiers
}

func (c Channel) GetMaxBackoff() time.Duration {
	return durationOr(c.v, "channel.max_backoff", 30*time.Second)
}

// GetMaxRetries is the number of consecutive failed attempts before giving up.
// Zero retries forever.
func (c Channel) GetMaxRetries() int {
	n := c.v.GetInt("channel.max_retries")
	if n < 0 {
		return 0
	}
	return n
}

func (c Channel) GetHandshakeTimeout() time.Duration {
	return durationOr(c.v, "channel.handshake_timeout", 10*time.Second)
}

// GetKeepAlive is the ping interval on a live connection. Zero turns pings off.
func (c Channel) GetKeepAlive() time.Duration {
	d := c.v.GetDuration("channel.keep_alive")
	if d < 0 {
		return 0
	}
	return d
}

func (c Channel) GetRecognizedEvents() []string {
	return c.v.GetStringSlice("channel.events")
}
