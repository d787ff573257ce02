package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DefaultModule           = "sui_red_envelope"
	DefaultReconnectDelay   = 5 * time.Second
	DefaultRPCTimeout       = 30 * time.Second
	DefaultPropagationDelay = 2 * time.Second
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "pgx"
	}

	for i := range c.Networks {
		if c.Networks[i].Module == "" {
			c.Networks[i].Module = DefaultModule
		}
		if c.Networks[i].ReconnectDelay == 0 {
			c.Networks[i].ReconnectDelay = DefaultReconnectDelay
		}
		if c.Networks[i].RPCTimeout == 0 {
			c.Networks[i].RPCTimeout = DefaultRPCTimeout
		}
	}

	if c.Resync.PropagationDelay == 0 {
		c.Resync.PropagationDelay = DefaultPropagationDelay
	}
	if c.Resync.PollInterval == 0 {
		c.Resync.PollInterval = 5 * time.Second
	}
	if c.Resync.MaxAttempts == 0 {
		c.Resync.MaxAttempts = 5
	}
}

// Validate checks that every enabled network can be connected to.
func (c *AppConfig) Validate() error {
	seen := make(map[string]bool)
	for _, n := range c.Networks {
		if n.Name == "" {
			return fmt.Errorf("network entry missing name")
		}
		if seen[string(n.Name)] {
			return fmt.Errorf("duplicate network %q", n.Name)
		}
		seen[string(n.Name)] = true

		if !n.IsEnabled() {
			continue
		}
		if n.RPCURL == "" {
			return fmt.Errorf("network %s: rpc_url is required", n.Name)
		}
		if n.WSURL == "" {
			return fmt.Errorf("network %s: ws_url is required", n.Name)
		}
		if n.PackageID == "" {
			return fmt.Errorf("network %s: package_id is required", n.Name)
		}
	}
	return nil
}
