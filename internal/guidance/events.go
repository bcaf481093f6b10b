package guidance

import (
	"context"

	"github.com/dpup/delivery-guidance/internal/lib/routing"
)

// EventType identifies what a scheduler event reports
type EventType int

const (
	// EventStateChanged carries Previous and State
	EventStateChanged EventType = iota
	// EventRouteChanged carries the newly active Route
	EventRouteChanged
	// EventInstruction carries the upcoming Instruction for a position fix
	EventInstruction
	// EventOffRoute fires when the traveler leaves the route geometry
	EventOffRoute
)

func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state_changed"
	case EventRouteChanged:
		return "route_changed"
	case EventInstruction:
		return "instruction"
	case EventOffRoute:
		return "off_route"
	default:
		return "unknown"
	}
}

// Event is delivered to listeners after the scheduler has released its lock,
// so handlers may call back into the scheduler (MarkAnnounced in particular).
type Event struct {
	Type      EventType
	SessionID string
	Label     string

	Previous State
	State    State

	Route   *routing.Route
	Offline bool

	Instruction     *routing.Instruction
	DeviationMeters float64
}

// Listener receives scheduler events. This is where speech and UI sinks plug in.
type Listener interface {
	HandleEvent(ctx context.Context, event Event)
}

// ListenerFunc adapts a function to the Listener interface
type ListenerFunc func(ctx context.Context, event Event)

func (f ListenerFunc) HandleEvent(ctx context.Context, event Event) {
	f(ctx, event)
}

func stateChanged(session Session, previous State) Event {
	return Event{
		Type:      EventStateChanged,
		SessionID: session.ID,
		Label:     session.Label(),
		Previous:  previous,
		State:     session.State,
	}
}

func routeChanged(session Session) Event {
	return Event{
		Type:      EventRouteChanged,
		SessionID: session.ID,
		Label:     session.Label(),
		State:     session.State,
		Route:     session.Route,
		Offline:   session.Offline,
	}
}
