// Package metrics exposes Prometheus counters for the chat core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hearth_messages_created_total",
		Help: "Messages created across all rooms.",
	})

	MessagesDestroyed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hearth_messages_destroyed_total",
		Help: "Messages destroyed, including bulk retirement.",
	})

	MessagesMoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hearth_messages_moved_total",
		Help: "Messages relocated between rooms.",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hearth_events_published_total",
		Help: "Change events published to the broadcaster, by kind.",
	}, []string{"kind"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hearth_http_request_duration_seconds",
		Help:    "HTTP request latency by method and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
)
