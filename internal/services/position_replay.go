package services

import (
	"context"
	"time"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/delivery-guidance/internal/guidance"
	"github.com/dpup/delivery-guidance/internal/lib/geo"
	"github.com/dpup/delivery-guidance/internal/lib/routing"
)

// PositionSink consumes position fixes; *guidance.Scheduler satisfies it
type PositionSink interface {
	UpdatePosition(ctx context.Context, fix guidance.PositionFix) *routing.Instruction
}

// PositionReplay drives along a route geometry at a constant speed, emitting
// a position fix per interval. It stands in for a device GPS when simulating
// deliveries.
type PositionReplay struct {
	clock    guidance.Clock
	speed    float64 // meters per second
	interval time.Duration
}

// NewPositionReplay creates a replay at the given speed and fix interval
func NewPositionReplay(clock guidance.Clock, speedMetersPerSecond float64, interval time.Duration) *PositionReplay {
	return &PositionReplay{
		clock:    clock,
		speed:    speedMetersPerSecond,
		interval: interval,
	}
}

// Fixes returns the fixes a traveler on geometry would report, starting at
// the first vertex at start and ending exactly on the last vertex.
func (r *PositionReplay) Fixes(geometry geo.Polyline, start time.Time) []guidance.PositionFix {
	if len(geometry) == 0 || r.speed <= 0 || r.interval <= 0 {
		return nil
	}

	total := geometry.Length()
	step := r.speed * r.interval.Seconds()

	var fixes []guidance.PositionFix
	at := start
	// Stop a millimeter short so rounding never yields a duplicate final fix
	for travelled := 0.0; total-travelled > 1e-3; travelled += step {
		fixes = append(fixes, guidance.PositionFix{Coordinate: pointAlong(geometry, travelled), At: at})
		at = at.Add(r.interval)
	}
	fixes = append(fixes, guidance.PositionFix{Coordinate: geometry.Last(), At: at})
	return fixes
}

// Run feeds fixes to sink, one per tick, until the geometry is exhausted or
// ctx is cancelled.
func (r *PositionReplay) Run(ctx context.Context, geometry geo.Polyline, sink PositionSink) error {
	ctx = logging.EnsureLogger(ctx)
	fixes := r.Fixes(geometry, r.clock.Now())
	if len(fixes) == 0 {
		return nil
	}

	logging.Infow(ctx, "Replay: starting drive",
		"fixes", len(fixes), "distance_meters", geometry.Length(), "speed_mps", r.speed)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for i, fix := range fixes {
		if i > 0 {
			select {
			case <-ctx.Done():
				logging.Infow(ctx, "Replay: stopped", "emitted", i)
				return ctx.Err()
			case <-ticker.C():
			}
		}
		sink.UpdatePosition(ctx, fix)
	}

	logging.Infow(ctx, "Replay: drive complete", "emitted", len(fixes))
	return nil
}

// pointAlong returns the point the given distance along geometry, clamped to
// its ends.
func pointAlong(geometry geo.Polyline, meters float64) geo.Coordinate {
	if meters <= 0 {
		return geometry.First()
	}
	for i := 0; i < len(geometry)-1; i++ {
		a, b := geometry[i], geometry[i+1]
		segment := geo.Distance(a, b)
		if meters <= segment {
			if segment == 0 {
				return a
			}
			return geo.Interpolate(a, b, meters/segment)
		}
		meters -= segment
	}
	return geometry.Last()
}
