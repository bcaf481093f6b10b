package main

import (
	"context"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/delivery-guidance/internal/guidance"
)

// logRenderer stands in for the map view
type logRenderer struct {
	ctx context.Context
}

func (r *logRenderer) MoveCamera(cmd guidance.CameraCommand) {
	logging.Debugw(r.ctx, "camera",
		"lat", cmd.Center.Latitude, "lon", cmd.Center.Longitude,
		"bearing", cmd.Bearing, "zoom", cmd.Zoom, "pitch", cmd.Pitch)
}

// announcer logs scheduler events and "speaks" instructions once each
type announcer struct {
	scheduler *guidance.Scheduler
}

func (a *announcer) HandleEvent(ctx context.Context, event guidance.Event) {
	switch event.Type {
	case guidance.EventStateChanged:
		logging.Infow(ctx, "navsim: state changed",
			"session_id", event.SessionID, "from", event.Previous, "to", event.State, "target", event.Label)

	case guidance.EventRouteChanged:
		if event.Route == nil {
			return
		}
		logging.Infow(ctx, "navsim: route",
			"target", event.Label, "offline", event.Offline,
			"distance_meters", event.Route.TotalDistanceMeters,
			"duration_seconds", event.Route.TotalDurationSeconds,
			"steps", len(event.Route.Steps))

	case guidance.EventInstruction:
		inst := event.Instruction
		if inst == nil || !inst.ShouldAnnounce {
			return
		}
		if a.scheduler.MarkAnnounced(inst.Step.ID) {
			logging.Infow(ctx, "navsim: announce",
				"text", inst.Step.InstructionText, "in_meters", inst.DistanceMeters, "step", inst.Step.ID)
		}

	case guidance.EventOffRoute:
		logging.Warnw(ctx, "navsim: off route", "deviation_meters", event.DeviationMeters)
	}
}
