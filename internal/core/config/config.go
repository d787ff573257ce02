package config

import (
	"time"

	"github.com/vietddude/envelope-indexer/internal/core/domain"
	redisclient "github.com/vietddude/envelope-indexer/internal/infra/redis"
	"github.com/vietddude/envelope-indexer/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Networks []NetworkConfig    `yaml:"networks"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
	Resync   ResyncConfig       `yaml:"resync"`
}

// ServerConfig holds HTTP and gRPC health server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 = gRPC health service disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// NetworkConfig holds the endpoints and contract location for one network.
type NetworkConfig struct {
	Name           domain.Network `yaml:"name"`
	Enabled        *bool          `yaml:"enabled"` // nil = enabled
	RPCURL         string         `yaml:"rpc_url"`
	WSURL          string         `yaml:"ws_url"`
	PackageID      string         `yaml:"package_id"`
	Module         string         `yaml:"module"`
	ReconnectDelay time.Duration  `yaml:"reconnect_delay"`
	RPCTimeout     time.Duration  `yaml:"rpc_timeout"`
}

// IsEnabled reports whether the network should be ingested.
func (n NetworkConfig) IsEnabled() bool {
	return n.Enabled == nil || *n.Enabled
}

// ResyncConfig tunes the reconciliation path.
type ResyncConfig struct {
	// PropagationDelay is waited before fetching a parent envelope during causal repair.
	PropagationDelay time.Duration `yaml:"propagation_delay"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	MaxAttempts      int           `yaml:"max_attempts"`
}

// EnabledNetworks returns the networks that have ingestion switched on.
func (c *AppConfig) EnabledNetworks() []NetworkConfig {
	out := make([]NetworkConfig, 0, len(c.Networks))
	for _, n := range c.Networks {
		if n.IsEnabled() {
			out = append(out, n)
		}
	}
	return out
}

// Network looks up a network by name.
func (c *AppConfig) Network(name domain.Network) (NetworkConfig, bool) {
	for _, n := range c.Networks {
		if n.Name == name {
			return n, true
		}
	}
	return NetworkConfig{}, false
}
