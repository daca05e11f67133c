package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// The gauges/counters this proxy exposes, following
// the teacher's server/backend.go style of a package-level promauto
// declaration per metric rather than a custom registry wrapper.
var (
	ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mcwake",
		Name:      "active_sessions",
		Help:      "Number of currently connected client sessions per server",
	}, []string{"server_id"})

	StartAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcwake",
		Name:      "start_attempts_total",
		Help:      "Number of times a server start was attempted",
	}, []string{"server_id"})

	StartFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcwake",
		Name:      "start_failures_total",
		Help:      "Number of server starts that failed or timed out",
	}, []string{"server_id"})

	IdleReapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcwake",
		Name:      "idle_reaps_total",
		Help:      "Number of times a server was stopped for being idle",
	}, []string{"server_id"})
)
