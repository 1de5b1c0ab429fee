// Package config loads the focus process's YAML configuration file into a
// Config struct, the way other_examples/k13d's loader reads and validates a
// YAML manifest with gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// XMPPConfig holds the connection parameters for the focus's own XMPP
// client identity and the MUC services it joins.
type XMPPConfig struct {
	Domain        string `yaml:"domain"`
	FocusJID      string `yaml:"focus_jid"`
	MucService    string `yaml:"muc_service"`
	BridgeMuc     string `yaml:"bridge_muc"`
	JibriMuc      string `yaml:"jibri_muc"`
	TrustedDomain string `yaml:"trusted_domain"`
}

// BridgeSelectionConfig names the selector.Strategy to use and its tunables.
type BridgeSelectionConfig struct {
	Strategy        string        `yaml:"strategy"` // one of single-bridge, split-bridge, region-based, region-based-cascade
	FailureCooldown time.Duration `yaml:"failure_cooldown"`
	RampupInterval  time.Duration `yaml:"rampup_interval"`
	RampupAlpha     float64       `yaml:"rampup_alpha"`
	VersionPin      string        `yaml:"version_pin,omitempty"`
}

// JibriConfig holds JibriDispatcher's pending-timeout/retry tunables.
type JibriConfig struct {
	PendingTimeout time.Duration `yaml:"pending_timeout"`
	NumRetries     int           `yaml:"num_retries"`
	// TimeoutSweepPoll is how often the registry sweeps every room's
	// dispatcher for sessions stuck Pending past PendingTimeout.
	TimeoutSweepPoll time.Duration `yaml:"timeout_sweep_poll"`
}

// AuthConfig holds the authentication session store's lifetime and sweep
// interval.
type AuthConfig struct {
	SessionLifetime time.Duration `yaml:"session_lifetime"`
	EvictionPoll    time.Duration `yaml:"eviction_poll"`
}

// HTTPConfig holds the admin HTTP surface's bind address.
type HTTPConfig struct {
	BindAddress string `yaml:"bind_address"`
}

// ColibriConfig holds the colibri control-protocol network timeout.
type ColibriConfig struct {
	NetworkTimeout time.Duration `yaml:"network_timeout"`
}

// Config is the top-level shape of the process's YAML configuration file.
type Config struct {
	XMPP      XMPPConfig            `yaml:"xmpp"`
	Selection BridgeSelectionConfig `yaml:"bridge_selection"`
	Jibri     JibriConfig           `yaml:"jibri"`
	Auth      AuthConfig            `yaml:"auth"`
	HTTP      HTTPConfig            `yaml:"http"`
	Colibri   ColibriConfig         `yaml:"colibri"`
}

// defaults fills in zero-valued fields with conservative operational
// defaults, applied after unmarshaling so a YAML file only needs to
// override what it cares about.
func (c *Config) defaults() {
	if c.Selection.Strategy == "" {
		c.Selection.Strategy = "region-based-cascade"
	}
	if c.Selection.FailureCooldown == 0 {
		c.Selection.FailureCooldown = 30 * time.Second
	}
	if c.Selection.RampupInterval == 0 {
		c.Selection.RampupInterval = 10 * time.Second
	}
	if c.Selection.RampupAlpha == 0 {
		c.Selection.RampupAlpha = 0.5
	}
	if c.Jibri.PendingTimeout == 0 {
		c.Jibri.PendingTimeout = 90 * time.Second
	}
	if c.Jibri.NumRetries == 0 {
		c.Jibri.NumRetries = 1
	}
	if c.Jibri.TimeoutSweepPoll == 0 {
		c.Jibri.TimeoutSweepPoll = 10 * time.Second
	}
	if c.Auth.SessionLifetime == 0 {
		c.Auth.SessionLifetime = 24 * time.Hour
	}
	if c.Auth.EvictionPoll == 0 {
		c.Auth.EvictionPoll = time.Minute
	}
	if c.HTTP.BindAddress == "" {
		c.HTTP.BindAddress = ":8080"
	}
	if c.Colibri.NetworkTimeout == 0 {
		c.Colibri.NetworkTimeout = 10 * time.Second
	}
}

// validate checks the required fields that have no sensible default.
func (c *Config) validate() error {
	if c.XMPP.Domain == "" {
		return fmt.Errorf("config: xmpp.domain is required")
	}
	if c.XMPP.FocusJID == "" {
		return fmt.Errorf("config: xmpp.focus_jid is required")
	}
	if c.XMPP.MucService == "" {
		return fmt.Errorf("config: xmpp.muc_service is required")
	}
	switch c.Selection.Strategy {
	case "single-bridge", "split-bridge", "region-based", "region-based-cascade":
	default:
		return fmt.Errorf("config: bridge_selection.strategy %q is not one of single-bridge, split-bridge, region-based, region-based-cascade", c.Selection.Strategy)
	}
	return nil
}

// Load reads and parses the YAML file at path, applies defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
