package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session Metrics
var (
	// SessionsActive tracks sessions currently held in the registry
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_sessions_active",
			Help: "Number of sessions currently registered",
		},
	)

	// SessionsAccepted counts accepted connections
	SessionsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_sessions_accepted_total",
			Help: "Total accepted client connections",
		},
	)

	// SessionsPruned counts dead sessions removed at broadcast time
	SessionsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_sessions_pruned_total",
			Help: "Total dead sessions pruned from the registry",
		},
	)

	// AcceptErrors counts failed accept calls by kind (temporary/fatal)
	AcceptErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_accept_errors_total",
			Help: "Total accept errors by kind",
		},
		[]string{"kind"},
	)
)

// Broadcast Metrics
var (
	// MessagesEnqueued counts lines accepted into the broadcast queue
	MessagesEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_enqueued_total",
			Help: "Total client lines enqueued for broadcast",
		},
	)

	// PacketsBroadcast counts packets fanned out to at least one session
	PacketsBroadcast = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_packets_broadcast_total",
			Help: "Total broadcast packets sent to live sessions",
		},
	)

	// PacketsDiscarded counts packets drained while no session was live
	PacketsDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_packets_discarded_total",
			Help: "Total packets discarded because no session was live",
		},
	)

	// Deliveries counts per-session packet writes by result (ok/error)
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Total per-session packet deliveries by result",
		},
		[]string{"result"},
	)

	// TickDuration tracks broadcast tick duration in seconds
	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_tick_duration_seconds",
			Help:    "Broadcast tick duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
	)
)
