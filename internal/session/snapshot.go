package session

import (
	"pinball-gacha/server/internal/physics"
	"pinball-gacha/server/internal/sim"
)

// Snapshot deep-copies the observable state for broadcast. Idle and failed
// sessions expose phase and configuration only; an aborted world is never
// shown again.
func (s *Session) Snapshot() sim.Snapshot {
	snap := sim.Snapshot{
		Session:       s.id,
		Phase:         s.phase,
		Tick:          s.tick,
		Frame:         s.frame,
		Config:        s.configView(),
		FailureReason: s.failure,
	}
	if s.world == nil {
		return snap
	}

	snap.Spawned = s.pending
	snap.InPlay = s.inPlay()
	snap.Balls = make([]sim.BallView, 0, s.pending)
	for _, b := range s.balls {
		if !b.spawned {
			continue
		}
		if !b.exited {
			if view, err := s.world.View(b.body); err == nil {
				b.pos = view.Pos
				b.vel = view.Vel
			}
		}
		snap.Balls = append(snap.Balls, sim.BallView{
			Name:     b.name,
			SpawnSeq: b.spawnSeq,
			X:        b.pos.X(),
			Y:        b.pos.Y(),
			VX:       b.vel.X(),
			VY:       b.vel.Y(),
			Exited:   b.exited,
			ExitSeq:  b.exitSeq,
		})
	}

	for _, body := range s.world.Bodies() {
		if body.Kind == physics.KindBall {
			continue
		}
		view := sim.ObstacleView{
			ID:        uint64(body.ID),
			Kind:      string(body.Kind),
			X:         body.Pos.X(),
			Y:         body.Pos.Y(),
			Angle:     body.Angle,
			Color:     body.Color,
			VisualTag: body.VisualTag,
			Sensor:    body.Sensor,
		}
		switch body.Shape.Type {
		case physics.ShapeCircle:
			view.Radius = body.Shape.Radius
		case physics.ShapeBox:
			view.HalfW = body.Shape.HalfW
			view.HalfH = body.Shape.HalfH
		}
		if bumper, ok := s.bumpers[body.ID]; ok && bumper.FlashDuration() > 0 {
			view.Flash = bumper.FlashTimer() / bumper.FlashDuration()
		}
		snap.Obstacles = append(snap.Obstacles, view)
	}

	snap.Arrivals = s.led.Snapshot()
	snap.LiveOrder = s.led.Query(s.cfg.Policy)
	if result, ok := s.resolver.Result(); ok {
		snap.Result = &result
	}
	return snap
}

// configView echoes the staged configuration while idle and the sealed one
// once a round starts.
func (s *Session) configView() sim.ConfigView {
	cfg := s.staged
	name := ""
	if s.phase != sim.PhaseIdle {
		cfg = s.cfg
		name = s.layoutName
	}
	if name == "" && cfg.Layout != nil {
		name = cfg.Layout.Name
	}
	return sim.ConfigView{
		Policy:    cfg.Policy,
		Trigger:   cfg.Trigger,
		DrawCount: cfg.DrawCount,
		Seed:      cfg.Seed,
		MaxFrames: cfg.MaxFrames,
		Layout:    name,
	}
}
