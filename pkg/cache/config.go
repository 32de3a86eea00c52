package cache

import "time"

// LayerConfig holds the naming and TTL limits shared by layer implementations.
type LayerConfig struct {
	Name string

	// DefaultTTL applies when Set is called with a zero ttl.
	DefaultTTL time.Duration

	// MaxTTL caps requested TTLs. Zero means no cap.
	MaxTTL time.Duration
}

// Validate checks the TTL bounds.
func (c *LayerConfig) Validate() error {
	if c.Name == "" {
		return ErrInvalidValue
	}
	if c.DefaultTTL < 0 || c.MaxTTL < 0 {
		return ErrInvalidValue
	}
	if c.MaxTTL > 0 && c.DefaultTTL > c.MaxTTL {
		return ErrInvalidValue
	}
	return nil
}

// EffectiveTTL resolves a requested ttl against the defaults and cap.
func (c *LayerConfig) EffectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = c.DefaultTTL
	}
	if c.MaxTTL > 0 && ttl > c.MaxTTL {
		return c.MaxTTL
	}
	return ttl
}
