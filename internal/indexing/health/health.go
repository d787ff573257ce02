// Package health provides system health monitoring and status reporting.
package health

import (
	"time"

	"github.com/vietddude/envelope-indexer/internal/infra/rpc/provider"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// worse returns the more severe of two statuses.
func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// NetworkHealth contains ingestion health for one network.
type NetworkHealth struct {
	Network     string       `json:"network"`
	Status      SystemStatus `json:"status"`
	State       string       `json:"state"`
	StateSince  time.Time    `json:"state_since"`
	LastEventAt *time.Time   `json:"last_event_at,omitempty"`
	Events      int64        `json:"events"`
	Reconnects  int          `json:"reconnects"`
	QueueDepth  int          `json:"queue_depth"`
	// Provider is the health of the fullnode RPC endpoint, when registered.
	Provider *provider.HealthStatus `json:"provider,omitempty"`
}

// DependencyHealth is the result of pinging a backing service.
type DependencyHealth struct {
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus                `json:"system_status"`
	Networks     map[string]NetworkHealth    `json:"networks"`
	Dependencies map[string]DependencyHealth `json:"dependencies,omitempty"`
	CheckedAt    time.Time                   `json:"checked_at"`
}
