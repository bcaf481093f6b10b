package guidance

import (
	"math"
	"time"

	"github.com/dpup/delivery-guidance/internal/lib/geo"
	"github.com/dpup/delivery-guidance/internal/lib/routing"
)

// remapRadiusMeters is how far a maneuver may move between two versions of a
// route and still be treated as the same maneuver.
const remapRadiusMeters = 25.0

// The functions below are the scheduler's transitions. Each takes a session
// value and returns the next one without side effects.

// begin returns the navigating session for a freshly resolved route
func begin(id string, origin geo.Coordinate, target Target, route *routing.Route, offline bool, now time.Time) Session {
	return Session{
		ID:              id,
		State:           StateNavigating,
		Target:          target,
		Origin:          origin,
		Route:           route,
		Offline:         offline,
		Position:        origin,
		Bearing:         initialBearing(origin, route),
		bearingAnchor:   origin,
		RemainingMeters: route.TotalDistanceMeters,
		StartedAt:       now,
	}
}

// withFix applies a position fix to a navigating session. The bearing only
// follows the fix once it has moved more than minDisplacement meters from the
// point the bearing was last taken at.
func (s Session) withFix(fix PositionFix, minDisplacement float64) Session {
	next := s
	next.Position = fix.Coordinate
	next.LastFixAt = fix.At

	if geo.Distance(s.bearingAnchor, fix.Coordinate) > minDisplacement {
		next.Bearing = geo.Bearing(s.bearingAnchor, fix.Coordinate)
		next.bearingAnchor = fix.Coordinate
	}

	if s.Route != nil {
		progress := routing.Advance(fix.Coordinate, s.Route.Geometry, s.Segment)
		next.Segment = progress.Segment
		next.RemainingMeters = decimeters(progress.Remaining)
		next.OffRoute = routing.IsOffRoute(fix.Coordinate, s.Route.Geometry)
	}
	return next
}

// withRoute swaps in a refreshed route fetched from the current position. The
// route is now network-sourced, so the offline flag clears.
func (s Session) withRoute(route *routing.Route) Session {
	next := s
	next.Route = route
	next.Offline = false
	next.LastAnnounced = remapAnnounced(s.LastAnnounced, s.Route, route)
	next.RemainingMeters = route.TotalDistanceMeters
	next.Segment = 0
	next.OffRoute = routing.IsOffRoute(s.Position, route.Geometry)
	return next
}

// withAnnounced records the step the speech sink actually spoke
func (s Session) withAnnounced(id routing.StepID) Session {
	next := s
	next.LastAnnounced = &id
	return next
}

// finish moves the session into a terminal state, dropping the route and the
// announcement bookkeeping.
func (s Session) finish(outcome State) Session {
	next := s
	next.State = outcome
	next.Route = nil
	next.Segment = 0
	next.LastAnnounced = nil
	next.OffRoute = false
	return next
}

// arrived reports whether the remaining distance is within threshold
func (s Session) arrived(threshold float64) bool {
	return s.RemainingMeters <= threshold
}

func initialBearing(origin geo.Coordinate, route *routing.Route) float64 {
	switch g := route.Geometry; {
	case len(g) >= 2:
		return geo.Bearing(g[0], g[1])
	case len(g) == 1:
		return geo.Bearing(origin, g[0])
	default:
		return 0
	}
}

// decimeters rounds a distance so threshold comparisons are not decided by
// floating point noise.
func decimeters(meters float64) float64 {
	return math.Round(meters*10) / 10
}

// remapAnnounced finds the step of the new route that corresponds to the last
// announced step of the old one.
func remapAnnounced(last *routing.StepID, previous, next *routing.Route) *routing.StepID {
	if last == nil || previous == nil {
		return nil
	}
	step, ok := previous.Step(*last)
	if !ok {
		return nil
	}
	match, ok := next.StepNear(step.Location, remapRadiusMeters)
	if !ok || match.ManeuverType != step.ManeuverType {
		return nil
	}
	id := match.ID
	return &id
}
