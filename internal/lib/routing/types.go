package routing

import (
	"fmt"

	"github.com/dpup/delivery-guidance/internal/lib/geo"
)

// Thresholds used by instruction selection and deviation detection (meters)
const (
	InstructionRangeMeters  = 500.0 // steps further than this are not considered
	AnnounceDistanceMeters  = 200.0 // announce a step once within this distance
	ImminentDistanceMeters  = 50.0  // "about to execute" treatment
	OffRouteThresholdMeters = 50.0  // deviation from the route geometry
)

// StepID identifies a maneuver step by its leg and its position within that leg
type StepID struct {
	Leg  int `json:"leg"`
	Step int `json:"step"`
}

func (id StepID) String() string {
	return fmt.Sprintf("%d:%d", id.Leg, id.Step)
}

// ManeuverStep is a single parsed instruction unit of a route
type ManeuverStep struct {
	ID                       StepID         `json:"id"`
	ManeuverType             string         `json:"maneuver_type"`
	Modifier                 string         `json:"modifier,omitempty"`
	InstructionText          string         `json:"instruction"`
	StreetName               string         `json:"street_name,omitempty"`
	DistanceMeters           float64        `json:"distance_meters"`
	DurationSeconds          float64        `json:"duration_seconds"`
	Location                 geo.Coordinate `json:"location"`
	CumulativeDistanceMeters float64        `json:"cumulative_distance_meters"`
}

// Route is an immutable, parsed route. A refreshed route replaces the previous
// value wholesale; fields are never mutated after parsing.
type Route struct {
	Geometry             geo.Polyline   `json:"geometry"`
	Steps                []ManeuverStep `json:"steps"`
	TotalDistanceMeters  float64        `json:"total_distance_meters"`
	TotalDurationSeconds float64        `json:"total_duration_seconds"`
}

// HasGuidance reports whether the route carries turn-by-turn steps. A route
// without steps is geometry-only.
func (r *Route) HasGuidance() bool {
	return len(r.Steps) > 0
}

// Step returns the step with the given id
func (r *Route) Step(id StepID) (ManeuverStep, bool) {
	for _, s := range r.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return ManeuverStep{}, false
}

// StepNear returns the step whose maneuver location lies within the given
// distance of location, preferring the closest.
func (r *Route) StepNear(location geo.Coordinate, withinMeters float64) (ManeuverStep, bool) {
	var best ManeuverStep
	found := false
	bestDistance := withinMeters
	for _, s := range r.Steps {
		d := geo.Distance(location, s.Location)
		if d <= bestDistance {
			best, bestDistance, found = s, d, true
		}
	}
	return best, found
}

// RawRoute is a provider response before parsing. Provider clients translate
// their wire formats into this shape.
type RawRoute struct {
	Legs            []RawLeg
	Geometry        geo.Polyline
	DistanceMeters  float64
	DurationSeconds float64
}

// RawLeg is an ordered list of steps between two waypoints
type RawLeg struct {
	Steps []RawStep
}

// RawStep carries the provider's maneuver metadata for one step
type RawStep struct {
	ManeuverType    string
	Modifier        string
	Name            string
	DistanceMeters  float64
	DurationSeconds float64
	Location        geo.Coordinate
}

// Instruction is the output of SelectNext: the upcoming step plus trigger flags
type Instruction struct {
	Step           ManeuverStep `json:"step"`
	DistanceMeters float64      `json:"distance_meters"`
	Imminent       bool         `json:"imminent"`
	ShouldAnnounce bool         `json:"should_announce"`
}
