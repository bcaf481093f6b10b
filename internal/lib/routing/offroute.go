package routing

import (
	"math"

	"github.com/dpup/delivery-guidance/internal/lib/geo"
)

// IsOffRoute reports whether position is farther than OffRouteThresholdMeters
// from the nearest vertex of geometry. It is a predicate only; deciding when to
// recalculate is left to the caller.
func IsOffRoute(position geo.Coordinate, geometry geo.Polyline) bool {
	return Deviation(position, geometry) > OffRouteThresholdMeters
}

// Deviation returns the distance in meters from position to the nearest vertex
// of geometry. An empty geometry has nothing to deviate from and returns 0.
func Deviation(position geo.Coordinate, geometry geo.Polyline) float64 {
	if len(geometry) == 0 {
		return 0
	}
	_, d := geo.Nearest(position, geometry)
	return d
}

// TrackLookBackMeters is how far behind the previous match Advance still
// accepts a position, to absorb GPS jitter against the direction of travel.
const TrackLookBackMeters = 50.0

// Progress is a position matched onto a route geometry
type Progress struct {
	// Segment is the index of the first vertex of the matched segment
	Segment   int
	Remaining float64
}

// Advance matches position onto geometry, resuming from the segment matched
// for the previous fix. Segments are searched forward from shortly behind
// that segment, and the first stretch within OffRouteThresholdMeters wins, so
// a route that doubles back close to itself (a loop around the block, a
// U-shaped approach) is not matched to its later part before the traveler
// gets there. If nothing ahead is close enough, the whole geometry is
// searched.
func Advance(position geo.Coordinate, geometry geo.Polyline, from int) Progress {
	switch len(geometry) {
	case 0:
		return Progress{}
	case 1:
		return Progress{Remaining: geo.Distance(position, geometry[0])}
	}

	last := len(geometry) - 2
	from = max(0, min(from, last))

	start := from
	for behind := 0.0; start > 0; start-- {
		behind += geo.Distance(geometry[start-1], geometry[start])
		if behind > TrackLookBackMeters {
			break
		}
	}

	segment := -1
	for i := start; i <= last; i++ {
		d, _ := segmentDistance(position, geometry, i)
		if d > OffRouteThresholdMeters {
			continue
		}
		// Follow the match while the next segment is closer still
		segment = i
		for segment < last {
			next, _ := segmentDistance(position, geometry, segment+1)
			if next >= d {
				break
			}
			segment, d = segment+1, next
		}
		break
	}
	if segment < 0 {
		segment = nearestSegment(position, geometry)
	}

	return Progress{Segment: segment, Remaining: remainingFrom(position, geometry, segment)}
}

// segmentDistance returns the distance from position to segment i and the
// projected point on it.
func segmentDistance(position geo.Coordinate, geometry geo.Polyline, i int) (float64, geo.Coordinate) {
	a, b := geometry[i], geometry[i+1]
	p := geo.Interpolate(a, b, geo.ProjectOnSegment(position, a, b))
	return geo.Distance(position, p), p
}

func nearestSegment(position geo.Coordinate, geometry geo.Polyline) int {
	segment := 0
	best := math.Inf(1)
	for i := 0; i < len(geometry)-1; i++ {
		if d, _ := segmentDistance(position, geometry, i); d < best {
			best, segment = d, i
		}
	}
	return segment
}

func remainingFrom(position geo.Coordinate, geometry geo.Polyline, segment int) float64 {
	_, projected := segmentDistance(position, geometry, segment)
	return geo.Distance(projected, geometry[segment+1]) + geometry[segment+1:].Length()
}
