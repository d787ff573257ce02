package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/envelope-indexer/internal/core/domain"
	"github.com/vietddude/envelope-indexer/internal/indexing/supervisor"
	"github.com/vietddude/envelope-indexer/internal/infra/rpc/provider"
)

const (
	// dependencyCheckInterval rate limits pings of backing services.
	dependencyCheckInterval = 10 * time.Second
	// disconnectedCritical is how long a network may stay unsubscribed
	// before it is reported critical.
	disconnectedCritical = time.Minute
	// queueDegraded is the resync backlog above which a network is degraded.
	queueDegraded = 100
)

// Dependency is a backing service the indexer needs.
type Dependency struct {
	Name string
	// Critical dependencies make the whole system critical when they fail.
	Critical bool
	Check    func(ctx context.Context) error
}

// ProviderHealth reports the health of a network's RPC endpoint.
type ProviderHealth interface {
	GetHealth() provider.HealthStatus
}

type networkState struct {
	state       supervisor.State
	stateSince  time.Time
	lastEventAt time.Time
	events      int64
	reconnects  int
	queueDepth  int
	provider    ProviderHealth
}

// Monitor aggregates health status from the supervisors, resync workers and
// backing services. It implements supervisor.Observer and
// resync.DepthObserver.
type Monitor struct {
	mu           sync.RWMutex
	networks     map[domain.Network]*networkState
	dependencies []Dependency
	lastCheck    time.Time
	lastDeps     map[string]DependencyHealth
	listeners    []func(HealthReport)
	now          func() time.Time
	log          *slog.Logger
}

// NewMonitor creates a new health monitor.
func NewMonitor(networks []domain.Network, dependencies ...Dependency) *Monitor {
	m := &Monitor{
		networks:     make(map[domain.Network]*networkState, len(networks)),
		dependencies: dependencies,
		now:          time.Now,
		log:          slog.Default().With("component", "health"),
	}
	for _, n := range networks {
		m.networks[n] = &networkState{state: supervisor.StateDisconnected, stateSince: m.now()}
	}
	return m
}

func (m *Monitor) network(n domain.Network) *networkState {
	st, ok := m.networks[n]
	if !ok {
		st = &networkState{state: supervisor.StateDisconnected, stateSince: m.now()}
		m.networks[n] = st
	}
	return st
}

// SetState records a supervisor state transition.
func (m *Monitor) SetState(n domain.Network, state supervisor.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.network(n)
	if st.state != state {
		st.state = state
		st.stateSince = m.now()
	}
}

// RecordEvent records an event received on the live stream.
func (m *Monitor) RecordEvent(n domain.Network, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.network(n)
	st.lastEventAt = at
	st.events++
}

// RecordReconnect counts a subscription session that ended.
func (m *Monitor) RecordReconnect(n domain.Network) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.network(n).reconnects++
}

// SetQueueDepth records the resync backlog of a network.
func (m *Monitor) SetQueueDepth(n domain.Network, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.network(n).queueDepth = depth
}

// SetProvider registers the RPC endpoint of a network. An unavailable
// endpoint degrades the network.
func (m *Monitor) SetProvider(n domain.Network, p ProviderHealth) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.network(n).provider = p
}

// OnReport registers fn to receive every report produced by Start.
func (m *Monitor) OnReport(fn func(HealthReport)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// CheckHealth builds a health report for all networks.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	deps := m.checkDependencies(ctx)

	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	report := HealthReport{
		SystemStatus: StatusHealthy,
		Networks:     make(map[string]NetworkHealth, len(m.networks)),
		Dependencies: deps,
		CheckedAt:    now,
	}

	for n, st := range m.networks {
		health := NetworkHealth{
			Network:    n.String(),
			Status:     StatusHealthy,
			State:      string(st.state),
			StateSince: st.stateSince,
			Events:     st.events,
			Reconnects: st.reconnects,
			QueueDepth: st.queueDepth,
		}
		if !st.lastEventAt.IsZero() {
			at := st.lastEventAt
			health.LastEventAt = &at
		}

		switch st.state {
		case supervisor.StateSubscribed:
		case supervisor.StateStopped:
			health.Status = StatusCritical
		default:
			health.Status = StatusDegraded
			if now.Sub(st.stateSince) > disconnectedCritical {
				health.Status = StatusCritical
			}
		}
		if st.queueDepth > queueDegraded {
			health.Status = worse(health.Status, StatusDegraded)
		}
		if st.provider != nil {
			ph := st.provider.GetHealth()
			health.Provider = &ph
			if !ph.Available {
				health.Status = worse(health.Status, StatusDegraded)
			}
		}

		report.Networks[n.String()] = health
		report.SystemStatus = worse(report.SystemStatus, health.Status)
	}

	for _, dep := range deps {
		report.SystemStatus = worse(report.SystemStatus, dep.Status)
	}
	return report
}

// checkDependencies pings backing services at most once per interval.
func (m *Monitor) checkDependencies(ctx context.Context) map[string]DependencyHealth {
	m.mu.RLock()
	if m.lastDeps != nil && m.now().Sub(m.lastCheck) < dependencyCheckInterval {
		deps := m.lastDeps
		m.mu.RUnlock()
		return deps
	}
	m.mu.RUnlock()

	deps := make(map[string]DependencyHealth, len(m.dependencies))
	for _, dep := range m.dependencies {
		result := DependencyHealth{Status: StatusHealthy}
		if err := dep.Check(ctx); err != nil {
			result.Status = StatusDegraded
			if dep.Critical {
				result.Status = StatusCritical
			}
			result.Error = err.Error()
		}
		deps[dep.Name] = result
	}

	m.mu.Lock()
	m.lastDeps = deps
	m.lastCheck = m.now()
	m.mu.Unlock()
	return deps
}

// Start periodically evaluates health, logs status changes and notifies
// listeners until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := SystemStatus("")
	for {
		report := m.CheckHealth(ctx)
		if report.SystemStatus != last {
			m.log.Info("System health changed", "from", last, "to", report.SystemStatus)
			last = report.SystemStatus
		}

		m.mu.RLock()
		listeners := append([]func(HealthReport)(nil), m.listeners...)
		m.mu.RUnlock()
		for _, fn := range listeners {
			fn(report)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
