package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "liane", Name: "events_dispatched_total", Help: "Trip events dispatched, by kind"},
		[]string{"kind"},
	)
	ListenerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "liane", Name: "listener_failures_total", Help: "Best-effort listener failures, by kind"},
		[]string{"kind"},
	)
	MatchesComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "liane", Name: "matches_computed_total", Help: "Match computations, by outcome"},
		[]string{"outcome"},
	)
	MatchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{Namespace: "liane", Name: "match_latency_seconds", Help: "ComputeMatch latency", Buckets: prometheus.DefBuckets},
	)
	PingsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "liane", Name: "pings_accepted_total", Help: "Member pings accepted"},
	)
	PingsRejected = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "liane", Name: "pings_rejected_total", Help: "Member pings rejected"},
	)
	SweepCancellations = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "liane", Name: "sweep_cancellations_total", Help: "Trips auto-cancelled by the status sweep"},
	)
	NotificationsSent = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "liane", Name: "notifications_sent_total", Help: "Notification intents delivered to the sink"},
	)
	NotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "liane", Name: "notifications_dropped_total", Help: "Notification intents dropped (full queue or send failure)"},
	)
)
