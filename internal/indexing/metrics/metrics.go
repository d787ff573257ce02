package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsReceived tracks notification frames that carried an event
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envelope_indexer_events_received_total",
			Help: "Total number of contract events received from the subscription",
		},
		[]string{"network"},
	)

	// EventsApplied tracks events by kind and outcome (applied, duplicate, ignored, failed)
	EventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envelope_indexer_events_applied_total",
			Help: "Total number of contract events processed by outcome",
		},
		[]string{"network", "kind", "outcome"},
	)

	// DecodeErrors tracks events dropped because they could not be decoded
	DecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envelope_indexer_decode_errors_total",
			Help: "Total number of events dropped by the decoder",
		},
		[]string{"network"},
	)

	// DecodeDefaultedFields tracks payload fields replaced by their zero value
	DecodeDefaultedFields = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envelope_indexer_decode_defaulted_fields_total",
			Help: "Total number of malformed event fields that fell back to zero",
		},
		[]string{"network", "field"},
	)

	// DecrementAnomalies tracks claims whose guarded decrement matched no row
	DecrementAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envelope_indexer_decrement_anomalies_total",
			Help: "Total number of claims recorded against an envelope with no shares left",
		},
		[]string{"network"},
	)

	// SubscriptionState is 1 for the current state of each network's subscription
	SubscriptionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "envelope_indexer_subscription_state",
			Help: "Current subscription state per network (1 = active state)",
		},
		[]string{"network", "state"},
	)

	// SubscriptionReconnects tracks sessions that ended and were re-established
	SubscriptionReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envelope_indexer_subscription_reconnects_total",
			Help: "Total number of subscription reconnect attempts",
		},
		[]string{"network", "reason"},
	)

	// ResyncTotal tracks resync runs by kind and outcome
	ResyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envelope_indexer_resync_total",
			Help: "Total number of resync operations",
		},
		[]string{"network", "kind", "outcome"},
	)

	// ResyncQueueDepth tracks jobs waiting in the delayed resync queue
	ResyncQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "envelope_indexer_resync_queue_depth",
			Help: "Number of resync jobs waiting in the queue",
		},
		[]string{"network"},
	)

	// RPCCallsTotal tracks RPC calls per network and method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envelope_indexer_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"network", "provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per network and provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envelope_indexer_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"network", "provider", "error_type"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "envelope_indexer_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"network", "provider", "method"},
	)

	// DBConnectionPoolUsage tracks the percentage of open connections in use
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "envelope_indexer_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)

// SubscriptionStates lists the label values used by SubscriptionState.
var SubscriptionStates = []string{"connecting", "subscribed", "disconnected", "stopped"}

// SetSubscriptionState marks state as the only active state for network.
func SetSubscriptionState(network, state string) {
	for _, s := range SubscriptionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		SubscriptionState.WithLabelValues(network, s).Set(v)
	}
}
