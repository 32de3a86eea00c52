package resilience

import (
	"time"
)

// Config configures a Guard.
type Config struct {
	// Timeout bounds each guarded call. Zero disables the deadline.
	Timeout time.Duration

	CircuitBreakerConfig CircuitBreakerConfig

	// Ignore reports errors that are expected outcomes rather than faults,
	// such as cache misses or insufficient funds. They do not count toward
	// tripping the breaker.
	Ignore func(err error) bool
}

// CircuitBreakerConfig mirrors the gobreaker settings.
type CircuitBreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32

	// Interval after which closed-state counts are cleared. Zero never clears.
	Interval time.Duration

	// Timeout spent open before moving to half-open.
	Timeout time.Duration

	// ReadyToTrip decides whether to open after a failure. Nil trips after
	// 5 consecutive failures.
	ReadyToTrip func(counts Counts) bool
}

// Counts holds the numbers of requests and their successes/failures.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// DefaultConfig trips after 5 consecutive failures and lets a trial request through after 10s.
func DefaultConfig() Config {
	return Config{
		Timeout: 5 * time.Second,
		CircuitBreakerConfig: CircuitBreakerConfig{
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		},
	}
}

// WithTimeout returns a copy with the call timeout replaced.
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}

// WithIgnore returns a copy that treats errors matching fn as non-failures.
func (c Config) WithIgnore(fn func(err error) bool) Config {
	c.Ignore = fn
	return c
}
