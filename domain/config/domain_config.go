package config

import (
	"fmt"
	"time"
)

// DomainConfig holds the configurable editing and dashboard rules.
type DomainConfig struct {
	// Document constraints
	DefaultGraphTitle string
	MaxTitleLength    int
	MaxNodesPerGraph  int
	MaxEdgesPerGraph  int

	// Editor behaviour
	NewNodeSpread  float64 // new nodes land at a random point in [0, spread)²
	AutosaveDelay  time.Duration
	SaveTimeout    time.Duration // a save running longer is logged as slow
	FlushOnClose   bool
	SessionIdleTTL time.Duration

	// Dashboard
	ProfileSearchLimit       int
	MaxUsernameLength        int
	RequireContactForSharing bool
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		DefaultGraphTitle: "Untitled Graph",
		MaxTitleLength:    200,
		MaxNodesPerGraph:  5000,
		MaxEdgesPerGraph:  20000,

		NewNodeSpread:  400,
		AutosaveDelay:  2 * time.Second,
		SaveTimeout:    15 * time.Second,
		FlushOnClose:   false,
		SessionIdleTTL: 30 * time.Minute,

		ProfileSearchLimit:       10,
		MaxUsernameLength:        64,
		RequireContactForSharing: true,
	}
}

// Validate checks the configuration for nonsensical values.
func (c *DomainConfig) Validate() error {
	if c.MaxTitleLength <= 0 {
		return fmt.Errorf("max title length must be positive")
	}
	if c.AutosaveDelay <= 0 {
		return fmt.Errorf("autosave delay must be positive")
	}
	if c.SaveTimeout <= 0 {
		return fmt.Errorf("save timeout must be positive")
	}
	if c.ProfileSearchLimit <= 0 {
		return fmt.Errorf("profile search limit must be positive")
	}
	if c.NewNodeSpread <= 0 {
		return fmt.Errorf("new node spread must be positive")
	}
	return nil
}
