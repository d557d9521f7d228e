package allocation

import (
	"fmt"
	"strings"
	"time"
)

// Mode decides what happens to already-committed lines when a later line of
// a multi-item operation fails.
type Mode string

const (
	// ModeIndependent keeps committed lines and reports the failing one.
	ModeIndependent Mode = "independent"
	// ModeCompensate reverses committed lines (in reverse order) before reporting.
	ModeCompensate Mode = "compensate"
)

// ParseMode maps a config value to a Mode. Empty means ModeIndependent.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeIndependent:
		return ModeIndependent, nil
	case ModeCompensate:
		return ModeCompensate, nil
	default:
		return "", fmt.Errorf("unknown fulfilment mode %q", s)
	}
}

// Config tunes the allocation service.
type Config struct {
	Mode Mode
	// MaxRetries bounds re-runs of the read-compute-write cycle after a conflict.
	MaxRetries int
	// RetryBase is the first backoff interval; later ones grow exponentially.
	RetryBase time.Duration
	// RetryMax caps a single backoff interval.
	RetryMax time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Mode:       ModeIndependent,
		MaxRetries: 5,
		RetryBase:  20 * time.Millisecond,
		RetryMax:   500 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = d.RetryBase
	}
	if c.RetryMax < c.RetryBase {
		c.RetryMax = max(d.RetryMax, c.RetryBase)
	}
	return c
}
