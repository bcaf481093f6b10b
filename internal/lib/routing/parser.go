package routing

import (
	"math"

	"github.com/dpup/delivery-guidance/internal/lib/geo"
)

// ParseRoute flattens a provider response into a Route with cumulative step
// distances. It never fails: a response with no legs or no steps produces a
// geometry-only Route with zero steps.
func ParseRoute(raw RawRoute) Route {
	route := Route{
		Geometry: validGeometry(raw.Geometry),
	}

	cumulative := 0.0
	stepDistance, stepDuration := 0.0, 0.0
	for legIndex, leg := range raw.Legs {
		for stepIndex, rawStep := range leg.Steps {
			distance := nonNegative(rawStep.DistanceMeters)
			duration := nonNegative(rawStep.DurationSeconds)

			maneuverType, modifier, text := describeManeuver(rawStep.ManeuverType, rawStep.Modifier, rawStep.Name)
			route.Steps = append(route.Steps, ManeuverStep{
				ID:                       StepID{Leg: legIndex, Step: stepIndex},
				ManeuverType:             maneuverType,
				Modifier:                 modifier,
				InstructionText:          text,
				StreetName:               rawStep.Name,
				DistanceMeters:           distance,
				DurationSeconds:          duration,
				Location:                 rawStep.Location,
				CumulativeDistanceMeters: cumulative,
			})

			// Recorded value is the distance travelled before this step
			cumulative += distance
			stepDistance += distance
			stepDuration += duration
		}
	}

	// Fall back to step maneuver locations when the provider sent no usable geometry
	if len(route.Geometry) < 2 && len(route.Steps) >= 2 {
		points := make(geo.Polyline, 0, len(route.Steps))
		for _, s := range route.Steps {
			if s.Location.Valid() {
				points = append(points, s.Location)
			}
		}
		if len(points) >= 2 {
			route.Geometry = points
		}
	}

	switch {
	case raw.DistanceMeters > 0:
		route.TotalDistanceMeters = raw.DistanceMeters
	case stepDistance > 0:
		route.TotalDistanceMeters = stepDistance
	default:
		route.TotalDistanceMeters = route.Geometry.Length()
	}

	if raw.DurationSeconds > 0 {
		route.TotalDurationSeconds = raw.DurationSeconds
	} else {
		route.TotalDurationSeconds = stepDuration
	}

	return route
}

// validGeometry drops vertices outside the valid WGS84 range
func validGeometry(points geo.Polyline) geo.Polyline {
	if len(points) == 0 {
		return nil
	}
	valid := make(geo.Polyline, 0, len(points))
	for _, p := range points {
		if p.Valid() {
			valid = append(valid, p)
		}
	}
	return valid
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
