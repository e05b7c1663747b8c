package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "support_chat"

var (
	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_subscriptions",
		Help:      "Change-feed subscriptions currently in the active state.",
	})

	SubscriptionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscription_errors_total",
		Help:      "Change-feed subscriptions that failed to connect or broke.",
	}, []string{"topic"})

	FeedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_events_total",
		Help:      "Change-feed events delivered to workspaces.",
	}, []string{"table", "type"})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_sent_total",
		Help:      "Messages persisted, by sender type.",
	}, []string{"sender_type"})

	OpenWorkspaces = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_workspaces",
		Help:      "Connected dashboard workspaces.",
	})

	BillingConfirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "billing_confirmations_total",
		Help:      "Subscription confirmation attempts by outcome.",
	}, []string{"result"})

	WebsocketCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "websocket_commands_total",
		Help:      "Inbound websocket commands by type and outcome.",
	}, []string{"type", "result"})
)
