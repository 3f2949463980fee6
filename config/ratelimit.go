package config

import "time"

type RateLimitConfig struct {
	Enabled        bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Capacity       int           `env:"RATE_LIMIT_CAPACITY" envDefault:"60"`
	RefillTokens   int           `env:"RATE_LIMIT_REFILL_TOKENS" envDefault:"1"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"1s"`
	TTL            time.Duration `env:"RATE_LIMIT_TTL" envDefault:"10m"`
	Prefix         string        `env:"RATE_LIMIT_PREFIX" envDefault:"rl"`
}

// Normalize clamps values that would make the limiter misbehave.
func (c RateLimitConfig) Normalize() RateLimitConfig {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
	return c
}
