// Package metrics provides Prometheus metrics for the ferry server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	observerSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fileferry_observer_sessions_active",
			Help: "Number of connected browser observer sessions",
		},
	)

	agentConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fileferry_agent_connected",
			Help: "Whether an agent session is currently connected (0 or 1)",
		},
	)

	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileferry_download_commands_total",
			Help: "Total download command submissions by result",
		},
		[]string{"result"},
	)

	statusEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileferry_status_events_total",
			Help: "Total file status transitions recorded by the registry",
		},
		[]string{"status"},
	)
)

// SetObserverSessions records the current observer session count.
func SetObserverSessions(n int) {
	observerSessionsActive.Set(float64(n))
}

// SetAgentConnected records whether the agent session is live.
func SetAgentConnected(connected bool) {
	if connected {
		agentConnected.Set(1)
	} else {
		agentConnected.Set(0)
	}
}

// RecordCommand records a download command submission outcome.
// result is one of "accepted", "not_found", "agent_unavailable".
func RecordCommand(result string) {
	commandsTotal.WithLabelValues(result).Inc()
}

// RecordStatusEvent records a registry status transition.
func RecordStatusEvent(status string) {
	statusEventsTotal.WithLabelValues(status).Inc()
}
