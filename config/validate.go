package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"portfolium/crypto"
)

// Validate checks the configuration for values the daemon cannot start with.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config must not be nil")
	}
	if strings.TrimSpace(c.GenesisFile) == "" {
		return fmt.Errorf("GenesisFile must be set")
	}
	for name, limit := range c.RateLimits {
		if limit.RatePerSecond < 0 || limit.Burst < 0 {
			return fmt.Errorf("RateLimits.%s: rate and burst must not be negative", name)
		}
	}
	if c.Worker.Enabled {
		if _, err := crypto.ParseAccount(c.Worker.Portfolio); err != nil {
			return fmt.Errorf("Worker.Portfolio: %w", err)
		}
		if strings.TrimSpace(c.Worker.ApplicationKeystorePath) == "" {
			return fmt.Errorf("Worker.ApplicationKeystorePath must be set")
		}
		for symbol, raw := range c.Worker.Prices {
			price, err := decimal.NewFromString(strings.TrimSpace(raw))
			if err != nil || price.Sign() <= 0 {
				return fmt.Errorf("Worker.Prices.%s: invalid price %q", symbol, raw)
			}
		}
	}
	return nil
}
