package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/dpup/delivery-guidance/internal/lib/geo"
	"github.com/dpup/delivery-guidance/internal/lib/routing"
	"github.com/dpup/delivery-guidance/internal/metrics"
)

// fingerprintPrecision is the number of decimal places kept when keying
// routes; four places is roughly 11 meters at the equator.
const fingerprintPrecision = 4

// RouteEntry is the persisted form of a fetched route. Geometry is stored as
// an encoded polyline to keep entries small.
type RouteEntry struct {
	Geometry        string                 `json:"geometry"`
	DurationMinutes float64                `json:"duration_minutes"`
	DistanceKm      float64                `json:"distance_km"`
	Steps           []routing.ManeuverStep `json:"steps,omitempty"`
}

// EntryFromRoute converts a parsed route into its cache entry
func EntryFromRoute(route *routing.Route) RouteEntry {
	return RouteEntry{
		Geometry:        geo.EncodePolyline(route.Geometry),
		DurationMinutes: route.TotalDurationSeconds / 60,
		DistanceKm:      route.TotalDistanceMeters / 1000,
		Steps:           route.Steps,
	}
}

// Route rebuilds a parsed route from the entry
func (e RouteEntry) Route() (*routing.Route, error) {
	var geometry geo.Polyline
	if e.Geometry != "" {
		decoded, err := geo.DecodePolyline(e.Geometry)
		if err != nil {
			return nil, fmt.Errorf("failed to decode cached geometry: %w", err)
		}
		geometry = decoded
	}
	return &routing.Route{
		Geometry:             geometry,
		Steps:                e.Steps,
		TotalDistanceMeters:  e.DistanceKm * 1000,
		TotalDurationSeconds: e.DurationMinutes * 60,
	}, nil
}

// Fingerprint derives the cache key for an origin/destination pair. Both
// coordinates are rounded so that nearby requests share an entry.
func Fingerprint(origin, destination geo.Coordinate) string {
	return fmt.Sprintf("route:%.4f,%.4f->%.4f,%.4f",
		round(origin.Longitude), round(origin.Latitude),
		round(destination.Longitude), round(destination.Latitude))
}

func round(v float64) float64 {
	scale := math.Pow10(fingerprintPrecision)
	r := math.Round(v*scale) / scale
	if r == 0 {
		// Avoid distinct keys for -0 and 0
		return 0
	}
	return r
}

// RouteCache persists the last route fetched for each origin/destination
// fingerprint so guidance can start without connectivity.
type RouteCache struct {
	store Store
}

// NewRouteCache creates a route cache on top of store
func NewRouteCache(store Store) *RouteCache {
	return &RouteCache{store: store}
}

// Get returns the entry for the fingerprint of origin and destination
func (c *RouteCache) Get(ctx context.Context, origin, destination geo.Coordinate) (RouteEntry, bool, error) {
	data, found, err := c.store.Get(ctx, Fingerprint(origin, destination))
	if err != nil {
		metrics.RouteCacheLookupsTotal.WithLabelValues("error").Inc()
		return RouteEntry{}, false, fmt.Errorf("route cache lookup failed: %w", err)
	}
	if !found {
		metrics.RouteCacheLookupsTotal.WithLabelValues("miss").Inc()
		return RouteEntry{}, false, nil
	}

	var entry RouteEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		metrics.RouteCacheLookupsTotal.WithLabelValues("error").Inc()
		return RouteEntry{}, false, fmt.Errorf("failed to decode cached route: %w", err)
	}

	metrics.RouteCacheLookupsTotal.WithLabelValues("hit").Inc()
	return entry, true, nil
}

// Put stores entry under the fingerprint of origin and destination, replacing
// any previous entry.
func (c *RouteCache) Put(ctx context.Context, origin, destination geo.Coordinate, entry RouteEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		metrics.RouteCacheWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to encode route: %w", err)
	}
	if err := c.store.Set(ctx, Fingerprint(origin, destination), data); err != nil {
		metrics.RouteCacheWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("route cache write failed: %w", err)
	}
	metrics.RouteCacheWritesTotal.WithLabelValues("ok").Inc()
	return nil
}
