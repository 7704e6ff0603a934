// Package metrics provides Prometheus instrumentation for the chat gateway.
// It exposes gauges for connection and room counts, counters for message
// throughput, and histograms for delivery latency tracking.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// MessagesTotal counts the total number of messages processed, labeled by
	// type: "sent", "delivered", or "rejected".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Total number of messages processed",
	}, []string{"type"}) // type = "sent", "delivered", "rejected"

	// DeliveryLatency records the time from a send_message receipt to local
	// fan-out completion, in seconds.
	DeliveryLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_delivery_latency_seconds",
		Help:    "Message delivery latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// ActiveRooms tracks the current number of rooms with at least one local
	// subscriber.
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_active_rooms",
		Help: "Current number of rooms with local subscribers",
	})

	// TypingSignalsTotal counts relayed typing start/stop signals.
	TypingSignalsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_typing_signals_total",
		Help: "Total number of typing signals relayed",
	})

	// NotificationsTotal counts notifications fanned out to clients.
	NotificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_notifications_total",
		Help: "Total number of notifications fanned out",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		MessagesTotal,
		DeliveryLatency,
		ActiveRooms,
		TypingSignalsTotal,
		NotificationsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
