package guidance

import (
	"sync"
	"time"

	"github.com/dpup/delivery-guidance/internal/lib/geo"
	"github.com/dpup/delivery-guidance/internal/metrics"
)

// CameraCommand is a single camera move sent to the map renderer
type CameraCommand struct {
	Center  geo.Coordinate
	Bearing float64
	Zoom    float64
	Pitch   float64
}

// Renderer moves the map camera. Implementations must not call back into the
// controller.
type Renderer interface {
	MoveCamera(cmd CameraCommand)
}

// CameraSettings tunes the follow behaviour
type CameraSettings struct {
	DebounceWindow        time.Duration
	MinDisplacementMeters float64
	Zoom                  float64
	Pitch                 float64
}

// DefaultCameraSettings returns the standard follow settings
func DefaultCameraSettings() CameraSettings {
	return CameraSettings{
		DebounceWindow:        100 * time.Millisecond,
		MinDisplacementMeters: 5,
		Zoom:                  17,
		Pitch:                 45,
	}
}

// CameraFollowController forwards position updates to the renderer with a
// trailing-edge debounce: the first sample opens a window, and when it closes
// the most recent sample is sent. At most one command goes out per window.
type CameraFollowController struct {
	renderer Renderer
	clock    Clock
	settings CameraSettings

	mu         sync.Mutex
	pending    *CameraCommand
	timer      Timer
	generation uint64 // invalidates timers that fire after a Recenter or Close
	anchor     geo.Coordinate
	hasAnchor  bool
	bearing    float64
	center     geo.Coordinate
	closed     bool
}

// NewCameraFollowController creates a controller sending to renderer
func NewCameraFollowController(renderer Renderer, clock Clock, settings CameraSettings) *CameraFollowController {
	return &CameraFollowController{
		renderer: renderer,
		clock:    clock,
		settings: settings,
	}
}

// Follow schedules a camera move to position, deriving the bearing from the
// direction of travel once the position has moved far enough.
func (c *CameraFollowController) Follow(position geo.Coordinate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	switch {
	case !c.hasAnchor:
		c.anchor, c.hasAnchor = position, true
	case geo.Distance(c.anchor, position) > c.settings.MinDisplacementMeters:
		c.bearing = geo.Bearing(c.anchor, position)
		c.anchor = position
	}
	c.scheduleLocked(position)
}

// Update schedules a camera move with an explicit bearing. The bearing is
// ignored while the position stays within the minimum displacement of the
// last accepted one.
func (c *CameraFollowController) Update(position geo.Coordinate, bearing float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if !c.hasAnchor || geo.Distance(c.anchor, position) > c.settings.MinDisplacementMeters {
		c.bearing = bearing
		c.anchor, c.hasAnchor = position, true
	}
	c.scheduleLocked(position)
}

// Recenter drops any pending move and immediately sends a neutral top-down
// view of the last known position.
func (c *CameraFollowController) Recenter() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.resetLocked()
	c.hasAnchor = false
	c.bearing = 0
	c.sendLocked(CameraCommand{Center: c.center, Zoom: c.settings.Zoom})
}

// Close stops the controller; later updates are ignored
func (c *CameraFollowController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetLocked()
	c.closed = true
}

func (c *CameraFollowController) scheduleLocked(position geo.Coordinate) {
	c.center = position
	c.pending = &CameraCommand{
		Center:  position,
		Bearing: c.bearing,
		Zoom:    c.settings.Zoom,
		Pitch:   c.settings.Pitch,
	}
	if c.timer != nil {
		return
	}
	generation := c.generation
	c.timer = c.clock.AfterFunc(c.settings.DebounceWindow, func() {
		c.flush(generation)
	})
}

func (c *CameraFollowController) flush(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation || c.closed {
		return
	}
	c.timer = nil
	if c.pending == nil {
		return
	}
	cmd := *c.pending
	c.pending = nil
	c.sendLocked(cmd)
}

func (c *CameraFollowController) resetLocked() {
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = nil
}

func (c *CameraFollowController) sendLocked(cmd CameraCommand) {
	c.renderer.MoveCamera(cmd)
	metrics.CameraCommandsTotal.Inc()
}
