package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"pinball-gacha/server/internal/gacha"
	"pinball-gacha/server/internal/physics"
	"pinball-gacha/server/internal/sim"
	"pinball-gacha/server/logging/gameplay"
	"pinball-gacha/server/logging/simulation"
)

// Step advances one frame: spawn pending balls, update behaviors, step the
// physics world, dispatch contacts, classify exits, evaluate the trigger.
// Idle and failed sessions do not move. A settled session keeps stepping so
// leftover balls play out, but the sealed result never changes. When an
// integrity violation surfaces mid-frame the frame is discarded wholesale.
func (s *Session) Step(dt float64) {
	if s.phase != sim.PhaseRunning && s.phase != sim.PhaseSettled {
		return
	}
	s.tick++
	if s.phase == sim.PhaseRunning {
		s.frame++
		if err := s.spawnPending(); err != nil {
			s.fail("ball spawn failure", err.Error())
			return
		}
	}

	for _, behavior := range s.field.Behaviors {
		if err := behavior.Update(s.world, dt); err != nil {
			if errors.Is(err, physics.ErrInvalidShape) {
				// A rejected transient leaves the machine intact.
				s.logf("[session] transient rejected tick=%d: %v", s.tick, err)
				s.deps.Metrics.Add("session.transients.rejected.total", 1)
				continue
			}
			s.fail("obstacle integrity failure", err.Error())
			return
		}
	}

	result, err := s.world.Step(dt)
	if err != nil {
		if !errors.Is(err, physics.ErrStepFailure) {
			s.fail("physics integrity failure", err.Error())
			return
		}
		payload := simulation.StepRecoveredPayload{Detail: err.Error()}
		if result.Recovered != nil {
			payload.ClampedBodies = result.Recovered.ClampedBodies
			payload.RestoredBodies = result.Recovered.RestoredBodies
		}
		simulation.StepRecovered(context.Background(), s.deps.Publisher, s.id, s.tick, payload)
		s.deps.Metrics.Add("physics.recoveries.total", 1)
	}

	for _, contact := range result.Contacts {
		if err := s.dispatchContact(contact); err != nil {
			s.fail("obstacle integrity failure", err.Error())
			return
		}
	}

	for _, exit := range result.Exits {
		if err := s.recordExit(exit); err != nil {
			s.fail("arrival ledger integrity failure", err.Error())
			return
		}
	}

	if s.phase == sim.PhaseRunning {
		s.checkTrigger()
	}
}

// spawnPending drops the next staged ball once the stagger interval has
// elapsed. Spawning stops while the roster is exhausted.
func (s *Session) spawnPending() error {
	if s.pending >= len(s.balls) {
		return nil
	}
	s.sinceSpawn++
	if s.sinceSpawn < s.cfg.SpawnEveryTicks {
		return nil
	}
	s.sinceSpawn = 0

	b := s.balls[s.pending]
	pos := mgl64.Vec2{
		-spawnHalfSpan + s.spawnRNG.Float64()*2*spawnHalfSpan,
		s.world.Bounds().Height/2 - spawnDrop,
	}
	id, err := s.world.Register(physics.BodyDescriptor{
		Kind:          physics.KindBall,
		Shape:         physics.CircleShape(ballRadius),
		Pos:           pos,
		Motion:        physics.MotionDynamic,
		Restitution:   ballRestitution,
		Friction:      ballFriction,
		Density:       ballDensity,
		LinearDamping: ballDamping,
		OwnerTag:      "session",
		VisualTag:     "ball",
		Color:         b.color,
	})
	if err != nil {
		return fmt.Errorf("spawn %s: %w", b.id, err)
	}
	b.body = id
	b.spawned = true
	b.pos = pos
	s.byBody[id] = b
	s.pending++

	gameplay.BallSpawned(context.Background(), s.deps.Publisher, s.id, b.id, s.tick, gameplay.BallSpawnedPayload{
		Name:     b.name,
		SpawnSeq: uint64(b.spawnSeq),
		X:        pos.X(),
		Y:        pos.Y(),
	})
	return nil
}

// dispatchContact routes a contact to the behaviors owning either body.
func (s *Session) dispatchContact(contact physics.ContactEvent) error {
	handlerA := s.field.Handlers[contact.A]
	if handlerA != nil {
		if err := handlerA.OnContact(s.world, contact); err != nil {
			return err
		}
	}
	if handlerB := s.field.Handlers[contact.B]; handlerB != nil && handlerB != handlerA {
		if err := handlerB.OnContact(s.world, contact); err != nil {
			return err
		}
	}
	return nil
}

// recordExit appends an arrival for an exited participant ball and removes
// its body. A second exit report for the same ball is an anomaly but the
// transition is idempotent: it is logged and dropped before the ledger. A
// ledger rejection is returned to the caller and fails the session.
func (s *Session) recordExit(exit physics.ExitEvent) error {
	b, ok := s.byBody[exit.Body]
	if !ok {
		// Not a participant ball; nothing to record.
		return nil
	}
	if b.exited {
		gameplay.DuplicateExit(context.Background(), s.deps.Publisher, s.id, b.id, s.tick)
		s.deps.Metrics.Add("session.duplicate_exits.total", 1)
		return nil
	}

	arrival, err := s.led.Record(b.id, b.name, s.tick, string(exit.Reason))
	if err != nil {
		return fmt.Errorf("%s: %w", b.id, err)
	}
	b.exited = true
	b.exitSeq = arrival.Seq
	b.pos = exit.Pos
	b.vel = mgl64.Vec2{}
	if err := s.world.Remove(exit.Body); err != nil {
		return fmt.Errorf("remove %s: %w", b.id, err)
	}

	gameplay.BallExited(context.Background(), s.deps.Publisher, s.id, b.id, s.tick, gameplay.BallExitedPayload{
		Name:    b.name,
		ExitSeq: uint64(arrival.Seq),
	})
	return nil
}

// checkTrigger seals the result when the configured condition holds, or
// when the stall-safety cap runs out.
func (s *Session) checkTrigger() {
	if s.resolver.Resolved() {
		return
	}

	allSpawned := s.pending >= len(s.balls)
	switch {
	case s.resolver.Trigger().Kind == gacha.TriggerAllExited && !allSpawned:
		// The roster is still launching; all_exited cannot fire yet.
	case s.resolver.Satisfied(s.pending, s.led.Len()):
		s.resolve(false)
		return
	}

	if s.cfg.MaxFrames > 0 && s.frame >= s.cfg.MaxFrames {
		simulation.StallForced(context.Background(), s.deps.Publisher, s.id, s.tick, simulation.StallForcedPayload{
			Frame:     s.frame,
			MaxFrames: s.cfg.MaxFrames,
			InPlay:    s.inPlay(),
		})
		s.deps.Metrics.Add("session.stall_forced.total", 1)
		s.resolve(true)
	}
}

func (s *Session) resolve(forced bool) {
	result := s.resolver.Resolve(s.led, s.tick, forced)
	s.phase = sim.PhaseSettled
	gameplay.GachaResolved(context.Background(), s.deps.Publisher, s.id, s.tick, gameplay.GachaResolvedPayload{
		Policy: string(result.Policy),
		Picks:  result.Picks,
		Forced: result.Forced,
	})
	s.deps.Metrics.Add("session.resolved.total", 1)
}

func (s *Session) inPlay() int {
	count := 0
	for _, b := range s.balls {
		if b.spawned && !b.exited {
			count++
		}
	}
	return count
}
