package guidance

import (
	"context"
	"runtime/debug"

	prefaberrors "github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
)

// refreshLoop periodically re-requests the route while a session navigates
type refreshLoop struct {
	ticker   Ticker
	stopChan chan struct{}
}

// startLoopLocked begins periodic refreshes for the current session. The loop
// outlives the context of the Start call that created it and ends when the
// session does.
func (s *Scheduler) startLoopLocked(ctx context.Context) {
	s.stopLoopLocked()

	loop := &refreshLoop{
		ticker:   s.clock.NewTicker(s.policy.RefreshInterval),
		stopChan: make(chan struct{}),
	}
	s.loop = loop

	loopCtx := context.WithoutCancel(ctx)
	logging.Debugw(loopCtx, "Guidance: starting periodic refresh", "interval", s.policy.RefreshInterval)
	go s.runRefreshLoop(loopCtx, loop)
}

// stopLoopLocked stops the refresh loop, if any. Safe to call repeatedly.
func (s *Scheduler) stopLoopLocked() {
	if s.loop == nil {
		return
	}
	close(s.loop.stopChan)
	s.loop = nil
}

func (s *Scheduler) runRefreshLoop(ctx context.Context, loop *refreshLoop) {
	defer func() {
		if r := recover(); r != nil {
			err, _ := prefaberrors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Guidance refresh: recovered from panic",
				"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
		}
	}()
	defer loop.ticker.Stop()

	for {
		select {
		case <-loop.stopChan:
			logging.Debugw(ctx, "Guidance: periodic refresh stopped")
			return
		case <-loop.ticker.C():
			// Each tick gets its own task so a slow provider cannot delay the
			// next tick; the newer request supersedes the older one.
			s.spawn(func() {
				_ = s.Refresh(ctx)
			})
		}
	}
}
