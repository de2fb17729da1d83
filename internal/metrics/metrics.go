// Package metrics registers the plane's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesPublished counts messages sent on the egress socket.
	MessagesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docstream_messages_published_total",
		Help: "Messages published on the node's egress socket.",
	})

	// MessagesDelivered counts messages returned to pollers after
	// filtering and projection.
	MessagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docstream_messages_delivered_total",
		Help: "Messages delivered to pollers.",
	})

	// MessagesFiltered counts messages dropped by a subscription filter.
	MessagesFiltered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docstream_messages_filtered_total",
		Help: "Messages dropped by subscription filters.",
	})

	// SubscriptionsReaped counts subscriptions closed by the reaper.
	SubscriptionsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docstream_subscriptions_reaped_total",
		Help: "Idle subscriptions closed by the background reaper.",
	})

	// SubscriptionsActive tracks the registry size.
	SubscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docstream_subscriptions_active",
		Help: "Currently registered subscriptions.",
	})
)
