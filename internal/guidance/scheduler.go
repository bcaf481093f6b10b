package guidance

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	prefaberrors "github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"github.com/google/uuid"

	"github.com/dpup/delivery-guidance/internal/cache"
	"github.com/dpup/delivery-guidance/internal/lib/geo"
	"github.com/dpup/delivery-guidance/internal/lib/routing"
	"github.com/dpup/delivery-guidance/internal/metrics"
)

var (
	// ErrGuidanceUnavailable is returned by Start when the route could not be
	// fetched and no cached route exists for the trip.
	ErrGuidanceUnavailable = errors.New("guidance unavailable")

	// ErrCancelled is returned by Start when the session was cancelled or
	// superseded before its route resolved.
	ErrCancelled = errors.New("guidance cancelled")

	// ErrInvalidCoordinate is returned by Start when the origin or target lies
	// outside valid latitude/longitude ranges.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)

// Provider fetches a route between two coordinates. Any error is treated as a
// uniform fetch failure.
type Provider interface {
	Route(ctx context.Context, origin, destination geo.Coordinate) (*routing.RawRoute, error)
}

// RouteCache persists the last route fetched per origin/destination pair
type RouteCache interface {
	Get(ctx context.Context, origin, destination geo.Coordinate) (cache.RouteEntry, bool, error)
	Put(ctx context.Context, origin, destination geo.Coordinate, entry cache.RouteEntry) error
}

// Camera receives follow updates from the scheduler
type Camera interface {
	Update(position geo.Coordinate, bearing float64)
	Follow(position geo.Coordinate)
	Recenter()
}

// Policy tunes the scheduler
type Policy struct {
	RefreshInterval        time.Duration
	ArrivalThresholdMeters float64
	// RerouteDeviationMeters, when positive, triggers an immediate refresh once
	// the traveler strays further than this from the route. Otherwise
	// deviations are corrected on the next periodic refresh.
	RerouteDeviationMeters    float64
	BearingDisplacementMeters float64
}

// DefaultPolicy returns the standard guidance policy
func DefaultPolicy() Policy {
	return Policy{
		RefreshInterval:           8 * time.Second,
		ArrivalThresholdMeters:    50,
		BearingDisplacementMeters: 5,
	}
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithCache enables cache writes after fetches and cache fallback on Start
func WithCache(c RouteCache) Option {
	return func(s *Scheduler) { s.cache = c }
}

// WithCamera attaches a camera follow controller
func WithCamera(c Camera) Option {
	return func(s *Scheduler) { s.camera = c }
}

// WithListener registers an event listener
func WithListener(l Listener) Option {
	return func(s *Scheduler) { s.listeners = append(s.listeners, l) }
}

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithExecutor replaces how background work is run. The default starts a
// goroutine per task.
func WithExecutor(spawn func(func())) Option {
	return func(s *Scheduler) { s.spawn = spawn }
}

// WithPolicy replaces the default policy
func WithPolicy(p Policy) Option {
	return func(s *Scheduler) { s.policy = p }
}

// WithLogger sets the logger used when the caller's context carries none
func WithLogger(l logging.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithIDGenerator replaces the session id generator
func WithIDGenerator(f func() string) Option {
	return func(s *Scheduler) { s.newID = f }
}

// Scheduler owns the single guidance session and serializes every transition
// on it. Position fixes, refresh ticks and fetch completions may arrive from
// different goroutines; network calls are made without holding the lock so
// fixes keep being processed against the current route while a fetch is in
// flight.
type Scheduler struct {
	provider  Provider
	cache     RouteCache
	camera    Camera
	listeners []Listener
	clock     Clock
	spawn     func(func())
	policy    Policy
	newID     func() string
	logger    logging.Logger

	mu          sync.Mutex
	session     Session
	lastOutcome State
	// seq increases on every fetch and every termination; a fetch result is
	// applied only if seq has not moved since it was issued.
	seq         uint64
	cancelFetch context.CancelFunc
	loop        *refreshLoop

	// outbox holds events in transition order until they are delivered;
	// delivering is set while some goroutine is draining it.
	outbox     []Event
	delivering bool
}

// NewScheduler creates an idle scheduler
func NewScheduler(provider Provider, opts ...Option) *Scheduler {
	s := &Scheduler{
		provider: provider,
		clock:    RealClock{},
		policy:   DefaultPolicy(),
		newID:    uuid.NewString,
		logger:   logging.NewDevLogger(),
	}
	s.spawn = s.goSafe
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins guidance from origin to target. A session already in progress
// is cancelled first. The call returns once the route has been resolved from
// the provider or, failing that, the cache.
func (s *Scheduler) Start(ctx context.Context, origin geo.Coordinate, target Target) (Session, error) {
	if !origin.Valid() || !target.Location.Valid() {
		return Session{}, ErrInvalidCoordinate
	}
	ctx = s.scoped(ctx)

	s.Cancel(ctx)

	s.mu.Lock()
	seq := s.nextFetchLocked()
	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancelFetch = cancel
	s.mu.Unlock()
	defer cancel()

	route, fetchErr := s.fetch(fetchCtx, origin, target.Location, "start")
	offline := false
	if fetchErr != nil {
		logging.Warnw(ctx, "Guidance: route fetch failed, trying cache",
			"error", fetchErr, "target", target.Label)
		route = s.cachedRoute(ctx, origin, target.Location)
		if route == nil {
			if s.superseded(seq) {
				return Session{}, ErrCancelled
			}
			metrics.SessionsTotal.WithLabelValues("unavailable").Inc()
			return Session{}, fmt.Errorf("%w: %w", ErrGuidanceUnavailable, fetchErr)
		}
		offline = true
	}

	s.mu.Lock()
	if s.seq != seq {
		s.mu.Unlock()
		metrics.StaleResponsesTotal.Inc()
		return Session{}, ErrCancelled
	}
	s.cancelFetch = nil

	session := begin(s.newID(), origin, target, route, offline, s.clock.Now())
	s.session = session
	events := []Event{stateChanged(session, StateIdle), routeChanged(session)}

	if session.arrived(s.policy.ArrivalThresholdMeters) {
		// Origin and destination are effectively the same place
		events = append(events, s.finishLocked(ctx, StateArrived)...)
		session = session.finish(StateArrived)
	} else {
		s.startLoopLocked(ctx)
	}
	s.enqueueLocked(events)
	s.mu.Unlock()

	if offline {
		metrics.SessionsTotal.WithLabelValues("offline").Inc()
	} else {
		metrics.SessionsTotal.WithLabelValues("started").Inc()
		s.storeRoute(ctx, origin, target.Location, route)
	}
	logging.Infow(ctx, "Guidance: session started",
		"session_id", session.ID, "target", session.Label(), "offline", offline,
		"distance_meters", route.TotalDistanceMeters, "steps", len(route.Steps))

	if s.camera != nil && session.Navigating() {
		s.camera.Update(origin, session.Bearing)
	}
	s.deliver(ctx)
	return session, nil
}

// UpdatePosition processes a position fix against the active route and returns
// the upcoming instruction, if any. Fixes older than the last accepted fix are
// dropped.
func (s *Scheduler) UpdatePosition(ctx context.Context, fix PositionFix) *routing.Instruction {
	if !fix.Coordinate.Valid() {
		metrics.PositionFixesTotal.WithLabelValues("invalid").Inc()
		return nil
	}
	ctx = s.scoped(ctx)

	s.mu.Lock()
	if !s.session.Navigating() {
		s.mu.Unlock()
		metrics.PositionFixesTotal.WithLabelValues("idle").Inc()
		return nil
	}
	if events, broken := s.enforceInvariantLocked(ctx); broken {
		s.enqueueLocked(events)
		s.mu.Unlock()
		s.deliver(ctx)
		return nil
	}
	if !fix.At.IsZero() && fix.At.Before(s.session.LastFixAt) {
		s.mu.Unlock()
		metrics.PositionFixesTotal.WithLabelValues("out_of_order").Inc()
		return nil
	}

	previous := s.session
	next := previous.withFix(fix, s.policy.BearingDisplacementMeters)
	s.session = next

	var events []Event
	instruction := routing.SelectNext(fix.Coordinate, next.Route.Steps, next.LastAnnounced)
	if instruction != nil {
		events = append(events, Event{
			Type:        EventInstruction,
			SessionID:   next.ID,
			Label:       next.Label(),
			State:       next.State,
			Instruction: instruction,
		})
	}

	rerouteNow := false
	if next.OffRoute && !previous.OffRoute {
		deviation := routing.Deviation(fix.Coordinate, next.Route.Geometry)
		metrics.OffRouteTotal.Inc()
		events = append(events, Event{
			Type:            EventOffRoute,
			SessionID:       next.ID,
			Label:           next.Label(),
			State:           next.State,
			DeviationMeters: deviation,
		})
		rerouteNow = s.policy.RerouteDeviationMeters > 0 && deviation > s.policy.RerouteDeviationMeters
	}

	if next.arrived(s.policy.ArrivalThresholdMeters) {
		events = append(events, s.finishLocked(ctx, StateArrived)...)
		rerouteNow = false
	}
	navigating := s.session.Navigating()
	s.enqueueLocked(events)
	s.mu.Unlock()

	metrics.PositionFixesTotal.WithLabelValues("applied").Inc()
	if s.camera != nil && navigating {
		s.camera.Follow(fix.Coordinate)
	}
	s.deliver(ctx)

	if rerouteNow {
		refreshCtx := context.WithoutCancel(ctx)
		s.spawn(func() {
			_ = s.refresh(refreshCtx, "reroute")
		})
	}
	return instruction
}

// Refresh requests a new route from the current position to the target. Only
// the most recently issued request may replace the active route. On failure
// the current route stays in effect and the error is returned for logging.
func (s *Scheduler) Refresh(ctx context.Context) error {
	return s.refresh(s.scoped(ctx), "refresh")
}

func (s *Scheduler) refresh(ctx context.Context, trigger string) error {
	s.mu.Lock()
	if !s.session.Navigating() {
		s.mu.Unlock()
		return nil
	}
	if events, broken := s.enforceInvariantLocked(ctx); broken {
		s.enqueueLocked(events)
		s.mu.Unlock()
		s.deliver(ctx)
		return nil
	}
	if s.session.OffRoute && trigger == "refresh" {
		trigger = "off_route"
	}
	// The previous request, if still outstanding, can no longer win
	if s.cancelFetch != nil {
		s.cancelFetch()
	}
	seq := s.nextFetchLocked()
	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancelFetch = cancel
	origin := s.session.Position
	destination := s.session.Target.Location
	s.mu.Unlock()
	defer cancel()

	route, err := s.fetch(fetchCtx, origin, destination, trigger)

	s.mu.Lock()
	if s.seq != seq || !s.session.Navigating() {
		s.mu.Unlock()
		metrics.StaleResponsesTotal.Inc()
		logging.Debugw(ctx, "Guidance: discarding superseded route response", "trigger", trigger)
		return nil
	}
	s.cancelFetch = nil
	if err != nil {
		s.mu.Unlock()
		logging.Warnw(ctx, "Guidance: route refresh failed, keeping current route",
			"error", err, "trigger", trigger)
		return err
	}

	next := s.session.withRoute(route)
	s.session = next
	events := []Event{routeChanged(next)}
	if next.arrived(s.policy.ArrivalThresholdMeters) {
		events = append(events, s.finishLocked(ctx, StateArrived)...)
	}
	s.enqueueLocked(events)
	s.mu.Unlock()

	s.storeRoute(ctx, origin, destination, route)
	s.deliver(ctx)
	return nil
}

// Cancel ends the current session. It is idempotent, and it also abandons a
// Start whose route has not resolved yet. Late fetch results are discarded.
func (s *Scheduler) Cancel(ctx context.Context) {
	ctx = s.scoped(ctx)

	s.mu.Lock()
	var events []Event
	if s.session.Navigating() {
		events = s.finishLocked(ctx, StateCancelled)
	} else {
		if s.cancelFetch != nil {
			s.cancelFetch()
			s.cancelFetch = nil
		}
		s.seq++
	}
	s.enqueueLocked(events)
	s.mu.Unlock()

	s.deliver(ctx)
}

// Recenter is the user's re-center action: it ends any active session like
// Cancel and returns the camera to a neutral top-down view.
func (s *Scheduler) Recenter(ctx context.Context) {
	if s.State() != StateNavigating {
		s.Cancel(ctx)
		if s.camera != nil {
			s.camera.Recenter()
		}
		return
	}
	// The terminal state change recenters the camera
	s.Cancel(ctx)
}

// MarkAnnounced records that the speech sink spoke the given step so it is not
// announced again. Unknown steps are ignored.
func (s *Scheduler) MarkAnnounced(id routing.StepID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.Navigating() || s.session.Route == nil {
		return false
	}
	if _, ok := s.session.Route.Step(id); !ok {
		return false
	}
	s.session = s.session.withAnnounced(id)
	metrics.InstructionsAnnouncedTotal.Inc()
	return true
}

// Snapshot returns a copy of the current session
func (s *Scheduler) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// State returns the current lifecycle state
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.State
}

// LastOutcome returns how the most recent session ended (StateArrived or
// StateCancelled), or StateIdle if none has ended yet.
func (s *Scheduler) LastOutcome() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOutcome
}

// fetch requests and parses a route. A route without usable geometry is a
// failure unless it is short enough to count as already arrived.
func (s *Scheduler) fetch(ctx context.Context, origin, destination geo.Coordinate, trigger string) (*routing.Route, error) {
	started := s.clock.Now()
	raw, err := s.provider.Route(ctx, origin, destination)
	metrics.RouteFetchDuration.Observe(s.clock.Now().Sub(started).Seconds())
	if err == nil && raw == nil {
		err = errors.New("provider returned no route")
	}
	if err != nil {
		metrics.RouteFetchesTotal.WithLabelValues(trigger, "error").Inc()
		return nil, err
	}

	route := routing.ParseRoute(*raw)
	if len(route.Geometry) < 2 && route.TotalDistanceMeters > s.policy.ArrivalThresholdMeters {
		metrics.RouteFetchesTotal.WithLabelValues(trigger, "error").Inc()
		return nil, errors.New("route has no usable geometry")
	}

	metrics.RouteFetchesTotal.WithLabelValues(trigger, "ok").Inc()
	return &route, nil
}

func (s *Scheduler) cachedRoute(ctx context.Context, origin, destination geo.Coordinate) *routing.Route {
	if s.cache == nil {
		return nil
	}
	entry, found, err := s.cache.Get(ctx, origin, destination)
	if err != nil {
		logging.Warnw(ctx, "Guidance: route cache lookup failed", "error", err)
		return nil
	}
	if !found {
		return nil
	}
	route, err := entry.Route()
	if err != nil {
		logging.Warnw(ctx, "Guidance: cached route is unreadable", "error", err)
		return nil
	}
	return route
}

// storeRoute writes the route to the cache without blocking the caller. Routes
// without a line to follow are not worth keeping for offline starts.
func (s *Scheduler) storeRoute(ctx context.Context, origin, destination geo.Coordinate, route *routing.Route) {
	if s.cache == nil || len(route.Geometry) < 2 {
		return
	}
	entry := cache.EntryFromRoute(route)
	writeCtx := context.WithoutCancel(ctx)
	s.spawn(func() {
		if err := s.cache.Put(writeCtx, origin, destination, entry); err != nil {
			logging.Warnw(writeCtx, "Guidance: failed to cache route", "error", err)
		}
	})
}

// finishLocked ends the navigating session with the given outcome and returns
// the resulting events. The scheduler is Idle afterwards.
func (s *Scheduler) finishLocked(ctx context.Context, outcome State) []Event {
	previous := s.session
	s.stopLoopLocked()
	if s.cancelFetch != nil {
		s.cancelFetch()
		s.cancelFetch = nil
	}
	s.seq++

	finished := previous.finish(outcome)
	s.session = Session{}
	s.lastOutcome = outcome

	metrics.SessionsTotal.WithLabelValues(outcome.String()).Inc()
	logging.Infow(ctx, "Guidance: session ended",
		"session_id", previous.ID, "outcome", outcome.String(), "target", previous.Label())

	idle := finished
	idle.State = StateIdle
	return []Event{
		stateChanged(finished, previous.State),
		stateChanged(idle, outcome),
	}
}

// enforceInvariantLocked cancels a navigating session that has lost its route
func (s *Scheduler) enforceInvariantLocked(ctx context.Context) ([]Event, bool) {
	if s.session.Route != nil {
		return nil, false
	}
	logging.Errorw(ctx, "Guidance: navigating without a route, cancelling", "session_id", s.session.ID)
	return s.finishLocked(ctx, StateCancelled), true
}

func (s *Scheduler) nextFetchLocked() uint64 {
	s.seq++
	return s.seq
}

func (s *Scheduler) superseded(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq != seq
}

// scoped attaches the scheduler's logger unless ctx already carries one
func (s *Scheduler) scoped(ctx context.Context) context.Context {
	if logging.FromContext(ctx) != nil {
		return ctx
	}
	return logging.With(ctx, s.logger)
}

// enqueueLocked queues events for delivery in the order the transitions that
// produced them were applied.
func (s *Scheduler) enqueueLocked(events []Event) {
	s.outbox = append(s.outbox, events...)
}

// deliver drains the outbox to the camera and listeners. Must be called
// without the lock held. Only one goroutine drains at a time, so listeners see
// events in transition order; a call made while another goroutine (or a
// listener further up the stack) is draining leaves its events to that drain.
func (s *Scheduler) deliver(ctx context.Context) {
	s.mu.Lock()
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	s.mu.Unlock()

	drained := false
	defer func() {
		// A panicking listener must not wedge later deliveries
		if !drained {
			s.mu.Lock()
			s.delivering = false
			s.mu.Unlock()
		}
	}()

	for {
		s.mu.Lock()
		if len(s.outbox) == 0 {
			s.outbox = nil
			s.delivering = false
			drained = true
			s.mu.Unlock()
			return
		}
		event := s.outbox[0]
		s.outbox = s.outbox[1:]
		s.mu.Unlock()

		s.dispatch(ctx, event)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, event Event) {
	if event.Type == EventStateChanged && s.camera != nil &&
		(event.State == StateArrived || event.State == StateCancelled) {
		s.camera.Recenter()
	}
	for _, l := range s.listeners {
		l.HandleEvent(ctx, event)
	}
}

// goSafe runs f on a new goroutine, logging instead of crashing on panic
func (s *Scheduler) goSafe(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err, _ := prefaberrors.ParseStack(debug.Stack())
				skipFrames := 3
				numFrames := 5
				logging.Errorw(logging.With(context.Background(), s.logger), "Guidance: recovered from panic in background task",
					"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
			}
		}()
		f()
	}()
}
