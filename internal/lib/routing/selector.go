package routing

import (
	"github.com/dpup/delivery-guidance/internal/lib/geo"
)

// SelectNext picks the instruction to display for the current position.
//
// Among steps whose maneuver location is within InstructionRangeMeters, the
// closest wins (earliest in traversal order on ties). It returns nil when no
// step is in range. The function is pure: callers own lastAnnounced and update
// it only when they actually announce the returned step.
func SelectNext(position geo.Coordinate, steps []ManeuverStep, lastAnnounced *StepID) *Instruction {
	bestIndex := -1
	bestDistance := 0.0

	for i, step := range steps {
		d := geo.Distance(position, step.Location)
		if d > InstructionRangeMeters {
			continue
		}
		if bestIndex == -1 || d < bestDistance {
			bestIndex, bestDistance = i, d
		}
	}

	if bestIndex == -1 {
		return nil
	}

	step := steps[bestIndex]
	alreadyAnnounced := lastAnnounced != nil && *lastAnnounced == step.ID

	return &Instruction{
		Step:           step,
		DistanceMeters: bestDistance,
		Imminent:       bestDistance <= ImminentDistanceMeters,
		ShouldAnnounce: !alreadyAnnounced && bestDistance <= AnnounceDistanceMeters,
	}
}
