package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rehab_portal"

var (
	// BackendRequests counts backend calls by operation and outcome
	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_requests_total",
		Help:      "Backend API calls by operation and HTTP status class.",
	}, []string{"operation", "status"})

	// SessionEvents counts session lifecycle transitions
	SessionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_events_total",
		Help:      "Session lifecycle events (login, logout, expired, restored).",
	}, []string{"event"})

	// StaleResults counts async results discarded because their selection changed
	StaleResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_results_discarded_total",
		Help:      "Fetch results dropped because the triggering selection is no longer current.",
	}, []string{"stage"})

	// SyncFailures counts failed background writes and checks in the trackers
	SyncFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tracker_sync_failures_total",
		Help:      "Optimistic tracker writes or checks that failed after local state was shown.",
	}, []string{"kind"})

	// Bookings counts booking attempts by outcome
	Bookings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bookings_total",
		Help:      "Appointment booking attempts by outcome.",
	}, []string{"outcome"})
)
