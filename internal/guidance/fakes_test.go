package guidance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dpup/delivery-guidance/internal/lib/geo"
	"github.com/dpup/delivery-guidance/internal/lib/routing"
)

// fakeClock is a manually advanced Clock
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{interval: d, ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward, firing due timers in order. Callbacks run
// without the clock's lock held.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		sort.SliceStable(c.timers, func(i, j int) bool { return c.timers[i].at.Before(c.timers[j].at) })
		if len(c.timers) == 0 || c.timers[0].at.After(target) {
			c.now = target
			c.mu.Unlock()
			return
		}
		t := c.timers[0]
		c.timers = c.timers[1:]
		c.now = t.at
		c.mu.Unlock()

		t.f()
	}
}

// Tick delivers a tick to every live ticker
func (c *fakeClock) Tick() {
	c.mu.Lock()
	tickers := append([]*fakeTicker(nil), c.tickers...)
	now := c.now
	c.mu.Unlock()

	for _, t := range tickers {
		t.mu.Lock()
		stopped := t.stopped
		t.mu.Unlock()
		if stopped {
			continue
		}
		select {
		case t.ch <- now:
		default:
		}
	}
}

func (c *fakeClock) liveTickers() int {
	c.mu.Lock()
	tickers := append([]*fakeTicker(nil), c.tickers...)
	c.mu.Unlock()

	n := 0
	for _, t := range tickers {
		t.mu.Lock()
		if !t.stopped {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

type fakeTimer struct {
	clock *fakeClock
	at    time.Time
	f     func()
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	for i, pending := range t.clock.timers {
		if pending == t {
			t.clock.timers = append(t.clock.timers[:i], t.clock.timers[i+1:]...)
			return true
		}
	}
	return false
}

type fakeTicker struct {
	mu       sync.Mutex
	interval time.Duration
	ch       chan time.Time
	stopped  bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// fakeProvider answers route requests through a per-call function
type fakeProvider struct {
	mu      sync.Mutex
	origins []geo.Coordinate
	respond func(ctx context.Context, call int, origin, destination geo.Coordinate) (*routing.RawRoute, error)
}

func (p *fakeProvider) Route(ctx context.Context, origin, destination geo.Coordinate) (*routing.RawRoute, error) {
	p.mu.Lock()
	call := len(p.origins)
	p.origins = append(p.origins, origin)
	respond := p.respond
	p.mu.Unlock()

	if respond == nil {
		return nil, errors.New("no response configured")
	}
	return respond(ctx, call, origin, destination)
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.origins)
}

func (p *fakeProvider) origin(call int) geo.Coordinate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.origins[call]
}

func respondWith(raw *routing.RawRoute) func(context.Context, int, geo.Coordinate, geo.Coordinate) (*routing.RawRoute, error) {
	return func(context.Context, int, geo.Coordinate, geo.Coordinate) (*routing.RawRoute, error) {
		return raw, nil
	}
}

func failWith(err error) func(context.Context, int, geo.Coordinate, geo.Coordinate) (*routing.RawRoute, error) {
	return func(context.Context, int, geo.Coordinate, geo.Coordinate) (*routing.RawRoute, error) {
		return nil, err
	}
}

// eventRecorder collects scheduler events
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) HandleEvent(ctx context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *eventRecorder) states() []State {
	var out []State
	for _, e := range r.ofType(EventStateChanged) {
		out = append(out, e.State)
	}
	return out
}

// fakeCamera records calls made by the scheduler
type fakeCamera struct {
	mu        sync.Mutex
	updates   int
	follows   []geo.Coordinate
	recenters int
}

func (c *fakeCamera) Update(position geo.Coordinate, bearing float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates++
}

func (c *fakeCamera) Follow(position geo.Coordinate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.follows = append(c.follows, position)
}

func (c *fakeCamera) Recenter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recenters++
}

func (c *fakeCamera) recenterCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recenters
}

// recordingRenderer captures camera commands
type recordingRenderer struct {
	mu       sync.Mutex
	commands []CameraCommand
}

func (r *recordingRenderer) MoveCamera(cmd CameraCommand) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
}

func (r *recordingRenderer) sent() []CameraCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CameraCommand(nil), r.commands...)
}

func inline(f func()) { f() }
