package realtime

import "time"

// Backoff is a tiered reconnect schedule. The n-th consecutive failure waits
// Tiers[n-1], the last tier repeating, never more than Max.
type Backoff struct {
	Tiers      []time.Duration
	Max        time.Duration
	MaxRetries int // consecutive failures before giving up; 0 retries forever
}

// DefaultBackoff reconnects immediately, then after 2s, 10s and 30s.
func DefaultBackoff() Backoff {
	return Backoff{
		Tiers:      []time.Duration{0, 2 * time.Second, 10 * time.Second, 30 * time.Second},
		Max:        30 * time.Second,
		MaxRetries: 20,
	}
}

// Delay returns the wait before the next attempt after failures consecutive
// failures. It is non-decreasing in failures as long as Tiers is sorted.
func (b Backoff) Delay(failures int) time.Duration {
	if failures < 1 || len(b.Tiers) == 0 {
		return 0
	}
	i := failures - 1
	if i >= len(b.Tiers) {
		i = len(b.Tiers) - 1
	}
	d := b.Tiers[i]
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if d < 0 {
		d = 0
	}
	return d
}

// GaveUp reports whether failures exhausts the retry budget.
func (b Backoff) GaveUp(failures int) bool {
	return b.MaxRetries > 0 && failures > b.MaxRetries
}
