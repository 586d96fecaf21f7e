// Package metrics exposes the server's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GroupOps counts membership-engine mutations by operation.
	GroupOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pantrio_group_operations_total",
		Help: "Group mutations processed, by operation and outcome.",
	}, []string{"op", "outcome"})

	// PantryWrites counts pantry mutations by operation.
	PantryWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pantrio_pantry_writes_total",
		Help: "Pantry mutations processed, by operation.",
	}, []string{"op"})

	// ChatMessages counts messages appended to chat logs.
	ChatMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pantrio_chat_messages_total",
		Help: "Chat messages appended across all groups.",
	})

	// LiveSessions tracks currently open websocket group sessions.
	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pantrio_live_sessions",
		Help: "Open websocket group sessions.",
	})

	// Signups counts account registrations.
	Signups = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pantrio_signups_total",
		Help: "Accounts registered.",
	})
)

// Outcome labels for GroupOps.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Handler serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
