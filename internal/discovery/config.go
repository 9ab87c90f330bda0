package discovery

import "time"

// Config holds the per-interface timer settings from §4.C, each
// independently bounded.
type Config struct {
	AnnounceInterval time.Duration
	QueryInterval    time.Duration
	CleanupInterval  time.Duration
}

// DefaultConfig returns the §4.C defaults: 15s announce, 300s steady
// query interval, 30s cleanup.
func DefaultConfig() Config {
	return Config{
		AnnounceInterval: 15 * time.Second,
		QueryInterval:    300 * time.Second,
		CleanupInterval:  30 * time.Second,
	}
}

// Clamp enforces §4.C's configured bounds in place: announce
// [5s, 10min], query [5s, 1h], cleanup [10s, 5min].
func (c *Config) Clamp() {
	c.AnnounceInterval = clampDuration(c.AnnounceInterval, 5*time.Second, 10*time.Minute)
	c.QueryInterval = clampDuration(c.QueryInterval, 5*time.Second, time.Hour)
	c.CleanupInterval = clampDuration(c.CleanupInterval, 10*time.Second, 5*time.Minute)
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
