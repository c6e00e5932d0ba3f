// Package config loads the tunables that shape Master and Allocator
// behavior: role weights, the default filter duration, the slave
// whitelist, and timing knobs. Citadel loads these from a YAML file
// (gopkg.in/yaml.v3) the way the rest of the stack reaches for a real
// parsing library instead of rolling flag-only configuration. The
// cobra flags in cmd/citadeld choose which file to load; no flag
// overrides a field the file sets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RoleWeight pins a role's DRF fair-share weight. Roles absent from
// this list default to weight 1.0.
type RoleWeight struct {
	Role   string  `yaml:"role"`
	Weight float64 `yaml:"weight"`
}

// AllocatorConfig controls the DRF allocator's policy knobs.
type AllocatorConfig struct {
	Roles []RoleWeight `yaml:"roles"`

	// RefuseSeconds is loaded from the file but not read by the
	// allocator or the master: a decline without a filter gets one lasting
	// types.DefaultRefuseSeconds regardless of this value.
	RefuseSeconds float64 `yaml:"refuse_seconds"`

	// AllocationInterval is how often the allocator runs a fresh DRF
	// round over slaves with free resources.
	AllocationInterval time.Duration `yaml:"allocation_interval"`

	// Whitelist restricts which slave hostnames are eligible for offers.
	// An empty list means every admitted slave is eligible.
	Whitelist []string `yaml:"whitelist"`
}

// MasterConfig controls the Master actor's timing and addressing.
type MasterConfig struct {
	// PID is an "id@host:port" address loaded from the file. Nothing
	// reads it: cmd/citadeld builds the master's PID from its --pid-id,
	// --host and --port flags instead.
	PID string `yaml:"pid"`

	// FrameworkFailoverGrace bounds how long a disconnected framework's
	// tasks are kept alive awaiting a new scheduler driver before the
	// framework is removed outright. Applied only when a framework's own
	// FrameworkInfo.FailoverTimeout is unset; a framework that declares
	// its own failover timeout is measured against that instead.
	FrameworkFailoverGrace time.Duration `yaml:"framework_failover_grace"`

	// SlaveLivenessTimeout bounds how long a slave may go without a ping
	// before the master marks it removed.
	SlaveLivenessTimeout time.Duration `yaml:"slave_liveness_timeout"`

	// OfferTimeout bounds how long an offer may sit unanswered before the
	// master rescinds it and recovers its resources to the allocator.
	OfferTimeout time.Duration `yaml:"offer_timeout"`
}

// Config is the root of the YAML file: one Allocator section and one
// Master section.
type Config struct {
	Allocator AllocatorConfig `yaml:"allocator"`
	Master    MasterConfig    `yaml:"master"`
}

// Default returns the configuration Citadel runs with when no file is
// supplied, matching the defaults the original allocator.hpp documents
// for refuse_seconds and allocation interval.
func Default() Config {
	return Config{
		Allocator: AllocatorConfig{
			RefuseSeconds:      5.0,
			AllocationInterval: time.Second,
		},
		Master: MasterConfig{
			FrameworkFailoverGrace: 0,
			SlaveLivenessTimeout:   75 * time.Second,
			OfferTimeout:           5 * time.Minute,
		},
	}
}

// Load reads and parses a YAML config file, applying it on top of
// Default so a partial file only overrides what it mentions.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %q: %w", path, err)
	}
	return cfg, nil
}

// WeightFor returns the configured weight for a role, defaulting to
// 1.0 when the role has no explicit entry.
func (c AllocatorConfig) WeightFor(role string) float64 {
	for _, rw := range c.Roles {
		if rw.Role == role {
			if rw.Weight <= 0 {
				return 1.0
			}
			return rw.Weight
		}
	}
	return 1.0
}

// WhitelistAllows reports whether a slave hostname may receive offers.
// An empty whitelist allows everything.
func (c AllocatorConfig) WhitelistAllows(hostname string) bool {
	if len(c.Whitelist) == 0 {
		return true
	}
	for _, h := range c.Whitelist {
		if h == hostname {
			return true
		}
	}
	return false
}
