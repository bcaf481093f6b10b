package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Directions provider requests, by trigger (start, refresh) and result (ok, error)
	RouteFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guidance_route_fetches_total",
		Help: "Total number of route requests sent to the directions provider",
	}, []string{"trigger", "result"})

	// Provider latency
	RouteFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "guidance_route_fetch_duration_seconds",
		Help:    "Time taken by the directions provider to return a route",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	})

	// Responses dropped because a newer request or a cancellation superseded them
	StaleResponsesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guidance_stale_responses_total",
		Help: "Total number of route responses discarded as superseded",
	})

	// Route cache lookups, by result (hit, miss, error)
	RouteCacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guidance_route_cache_lookups_total",
		Help: "Total number of route cache lookups",
	}, []string{"result"})

	RouteCacheWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guidance_route_cache_writes_total",
		Help: "Total number of route cache writes",
	}, []string{"result"})

	// Session outcomes (started, offline, unavailable, arrived, cancelled)
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guidance_sessions_total",
		Help: "Total number of guidance session transitions by outcome",
	}, []string{"outcome"})

	OffRouteTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guidance_off_route_total",
		Help: "Total number of times the traveler left the active route",
	})

	InstructionsAnnouncedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guidance_instructions_announced_total",
		Help: "Total number of maneuver instructions marked as announced",
	})

	PositionFixesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guidance_position_fixes_total",
		Help: "Total number of position fixes received, by disposition",
	}, []string{"disposition"})

	CameraCommandsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guidance_camera_commands_total",
		Help: "Total number of camera commands forwarded to the renderer",
	})
)
