// Package metrics holds the relay's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sphincter"

var (
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rooms_active",
		Help:      "Rooms with a connected producer.",
	})

	RoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rooms_created_total",
		Help:      "Rooms opened since start.",
	})

	SubscribersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscribers_active",
		Help:      "Connected WebSocket subscribers across all rooms.",
	})

	FanoutPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fanout_published_total",
		Help:      "Producer chunks published to room fan-out channels.",
	})

	FanoutDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fanout_dropped_total",
		Help:      "Fan-out messages skipped by lagging subscribers.",
	})

	InboundMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inbound_messages_total",
		Help:      "Subscriber messages written to producers.",
	})

	IdentifyIntercepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "identify_intercepted_total",
		Help:      "Identify requests answered from the room cache.",
	})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
