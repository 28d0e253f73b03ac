package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pool", Name: "rides_created_total", Help: "Total rides offered"})
	RideJoins    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pool", Name: "ride_joins_total", Help: "Total join requests recorded"})
	RideAccepts  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pool", Name: "ride_accepts_total", Help: "Total join requests accepted"})
	RideRejects  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pool", Name: "ride_rejects_total", Help: "Total join requests rejected"})
	RideUpdates  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pool", Name: "ride_updates_total", Help: "Total ride updates"})
	RideDeletes  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pool", Name: "ride_deletes_total", Help: "Total rides removed"})

	SearchRequests = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pool", Name: "search_requests_total", Help: "Total proximity searches"})
	SearchMatches  = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ride_pool",
		Name:      "search_matches",
		Help:      "Rides matched per search",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50},
	})
	SearchLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ride_pool", Name: "search_latency_seconds", Help: "Search latency seconds"})

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_pool", Name: "notifications_created_total", Help: "Notifications persisted"},
		[]string{"type"},
	)
	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_pool", Name: "notification_failures_total", Help: "Notifications that failed validation or persistence"},
		[]string{"type"},
	)
	NotificationsPurged = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_pool", Name: "notifications_purged_total", Help: "Expired notifications removed by the janitor"})

	RealtimeSessions = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_pool", Name: "realtime_sessions", Help: "Open websocket sessions"})
	EventsPublished  = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_pool", Name: "events_published_total", Help: "Ride events handed to the event stream"},
		[]string{"result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_pool", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_pool",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
