package guidance

import (
	"time"

	"github.com/dpup/delivery-guidance/internal/lib/geo"
	"github.com/dpup/delivery-guidance/internal/lib/routing"
)

// State is the guidance scheduler's lifecycle state
type State int

const (
	StateIdle State = iota
	StateNavigating
	StateArrived
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNavigating:
		return "navigating"
	case StateArrived:
		return "arrived"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Target is the destination of a guidance session
type Target struct {
	Location geo.Coordinate `json:"location"`
	Label    string         `json:"label"`
}

// PositionFix is a single position sample from the device
type PositionFix struct {
	Coordinate geo.Coordinate `json:"coordinate"`
	At         time.Time      `json:"at"`
}

// offlineSuffix marks sessions running on a cached route
const offlineSuffix = " (offline)"

// Session is the single guidance session owned by a Scheduler. Values are
// replaced wholesale on every transition; the Route pointer is shared and
// never mutated.
type Session struct {
	ID     string         `json:"id"`
	State  State          `json:"state"`
	Target Target         `json:"target"`
	Origin geo.Coordinate `json:"origin"`
	Route  *routing.Route `json:"route,omitempty"`

	// Offline is set when the route came from the cache after a failed fetch
	Offline       bool            `json:"offline"`
	LastAnnounced *routing.StepID `json:"last_announced,omitempty"`

	Position      geo.Coordinate `json:"position"`
	LastFixAt     time.Time      `json:"last_fix_at"`
	Bearing       float64        `json:"bearing"`
	bearingAnchor geo.Coordinate

	// Segment is the route segment the last fix was matched to. Matching
	// resumes from it, so progress only moves backwards by a few meters.
	Segment         int       `json:"segment"`
	RemainingMeters float64   `json:"remaining_meters"`
	OffRoute        bool      `json:"off_route"`
	StartedAt       time.Time `json:"started_at"`
}

// Navigating reports whether the session is actively guiding
func (s Session) Navigating() bool {
	return s.State == StateNavigating
}

// Label is the user-facing session label
func (s Session) Label() string {
	if s.Offline {
		return s.Target.Label + offlineSuffix
	}
	return s.Target.Label
}
