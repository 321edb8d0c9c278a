// Package session owns one pinball round end to end: it builds the machine
// from a layout document, drops one ball per participant, records goal
// arrivals into the ledger, and seals the gacha result when the configured
// trigger fires. A Session implements sim.EngineCore so the fixed-timestep
// loop can drive it; every method runs on the loop goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"pinball-gacha/server/internal/gacha"
	"pinball-gacha/server/internal/layout"
	"pinball-gacha/server/internal/ledger"
	"pinball-gacha/server/internal/obstacles"
	"pinball-gacha/server/internal/physics"
	"pinball-gacha/server/internal/sim"
	"pinball-gacha/server/logging"
	"pinball-gacha/server/logging/gameplay"
)

// ball tracks one participant through Spawned -> InPlay -> Exited.
type ball struct {
	id       string
	name     string
	color    string
	body     physics.BodyID
	spawnSeq int
	spawned  bool
	exited   bool
	// exitSeq is -1 until the ledger assigns one.
	exitSeq int
	pos     mgl64.Vec2
	vel     mgl64.Vec2
}

// Session is the per-round aggregate. The staged configuration survives
// resets and failed rounds; everything else is rebuilt by each start.
type Session struct {
	deps   sim.Deps
	staged Config

	id         string
	phase      sim.Phase
	cfg        Config
	tick       uint64
	frame      uint64
	world      *physics.World
	field      *layout.Field
	led        *ledger.Ledger
	resolver   *gacha.Resolver
	balls      []*ball
	byBody     map[physics.BodyID]*ball
	bumpers    map[physics.BodyID]*obstacles.Bumper
	pending    int
	sinceSpawn int
	layoutName string
	failure    string
	spawnRNG   *rand.Rand
}

// New constructs an idle session with cfg staged for the first start.
func New(deps sim.Deps, cfg Config) *Session {
	return &Session{
		deps:   deps,
		staged: cfg.normalized(),
		phase:  sim.PhaseIdle,
	}
}

// Deps exposes the injected collaborators to the loop.
func (s *Session) Deps() sim.Deps {
	return s.deps
}

// Phase reports the current lifecycle phase.
func (s *Session) Phase() sim.Phase {
	return s.phase
}

// Apply consumes the commands staged for this tick in arrival order. Every
// command is attempted; the first error is returned so one bad command
// cannot shadow the rest of the batch.
func (s *Session) Apply(commands []sim.Command) error {
	var firstErr error
	for i := range commands {
		if err := s.applyCommand(&commands[i]); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.logf("[session] %s from %q rejected: %v", commands[i].Type, commands[i].ActorID, err)
		}
	}
	return firstErr
}

func (s *Session) applyCommand(cmd *sim.Command) error {
	switch cmd.Type {
	case sim.CommandStart:
		if cmd.Start == nil {
			return errors.New("session: start command carries no payload")
		}
		return s.start(cmd.Start)

	case sim.CommandSetPolicy:
		if s.phase == sim.PhaseRunning {
			return fmt.Errorf("set policy: %w", ErrSessionActive)
		}
		if cmd.Policy == nil || !cmd.Policy.Policy.Valid() {
			return fmt.Errorf("session: invalid policy payload")
		}
		s.staged.Policy = cmd.Policy.Policy
		return nil

	case sim.CommandSetTrigger:
		if s.phase == sim.PhaseRunning {
			return fmt.Errorf("set trigger: %w", ErrSessionActive)
		}
		if cmd.Trigger == nil {
			return errors.New("session: trigger command carries no payload")
		}
		trigger := gacha.Trigger{Kind: cmd.Trigger.Kind, Quota: cmd.Trigger.Quota}
		if err := trigger.Validate(); err != nil {
			return err
		}
		s.staged.Trigger = trigger
		return nil

	case sim.CommandSetDrawCount:
		if s.phase == sim.PhaseRunning {
			return fmt.Errorf("set draw count: %w", ErrSessionActive)
		}
		if cmd.DrawCount == nil || cmd.DrawCount.Count < 1 {
			return errors.New("session: draw count must be at least 1")
		}
		s.staged.DrawCount = cmd.DrawCount.Count
		return nil

	case sim.CommandReset:
		s.reset()
		return nil
	}
	return fmt.Errorf("session: unknown command type %q", cmd.Type)
}

// start applies the staged configuration and builds a fresh round. The old
// round is discarded only once the new one is viable, so a bad layout or
// roster leaves the previous state intact.
func (s *Session) start(cmd *sim.StartCommand) error {
	if s.phase == sim.PhaseRunning {
		return fmt.Errorf("start: %w", ErrSessionActive)
	}

	names := cleanNames(cmd.Participants)
	if len(names) == 0 {
		return errors.New("session: start requires at least one participant")
	}

	cfg := s.staged
	if cmd.Seed != nil {
		cfg.Seed = *cmd.Seed
	}
	cfg = cfg.normalized()
	if cfg.Seed == 0 {
		cfg.Seed = s.freshSeed()
	}
	if len(names) > cfg.MaxParticipants {
		s.logf("[session] trimming roster from %d to the cap of %d", len(names), cfg.MaxParticipants)
		names = names[:cfg.MaxParticipants]
	}

	doc := layout.StandardLayout()
	if cfg.Layout != nil {
		doc = cfg.Layout.Normalized()
	}
	tuning := physics.DefaultTuning()
	if doc.Tuning != nil {
		tuning = doc.Tuning.Normalized()
	}
	if cfg.Tuning != nil {
		tuning = cfg.Tuning.Normalized()
	}

	world := physics.NewWorld(tuning, doc.Bounds)
	field, err := layout.Build(world, doc, sim.NewDeterministicRNG(cfg.Seed, "spawner"))
	if err != nil {
		return fmt.Errorf("session: build machine: %w", err)
	}
	resolver, err := gacha.NewResolver(cfg.Policy, cfg.Trigger, cfg.DrawCount)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	s.id = uuid.NewString()
	s.phase = sim.PhaseRunning
	s.cfg = cfg
	s.tick = 0
	s.frame = 0
	s.world = world
	s.field = field
	s.led = ledger.New(s.deps.Metrics)
	s.resolver = resolver
	s.balls = make([]*ball, 0, len(names))
	s.byBody = make(map[physics.BodyID]*ball, len(names))
	s.bumpers = make(map[physics.BodyID]*obstacles.Bumper, len(field.Bumpers))
	for _, bumper := range field.Bumpers {
		for _, id := range bumper.BodyIDs() {
			s.bumpers[id] = bumper
		}
	}
	s.pending = 0
	// Primed so the first frame spawns immediately.
	s.sinceSpawn = cfg.SpawnEveryTicks
	s.layoutName = doc.Name
	s.failure = ""
	s.spawnRNG = sim.NewDeterministicRNG(cfg.Seed, "balls")

	for i, name := range names {
		s.balls = append(s.balls, &ball{
			id:       fmt.Sprintf("ball-%d", i),
			name:     name,
			color:    ballPalette[i%len(ballPalette)],
			spawnSeq: i,
			exitSeq:  -1,
		})
	}

	gameplay.SessionStarted(context.Background(), s.deps.Publisher, s.id, s.tick, gameplay.SessionStartedPayload{
		Seed:         cfg.Seed,
		Policy:       string(cfg.Policy),
		Trigger:      string(cfg.Trigger.Kind),
		Quota:        cfg.Trigger.Quota,
		DrawCount:    cfg.DrawCount,
		Participants: len(names),
	})
	s.deps.Metrics.Add("session.started.total", 1)
	return nil
}

// reset discards the current round wholesale and returns to idle. The
// staged configuration survives for the next start.
func (s *Session) reset() {
	if s.phase == sim.PhaseIdle {
		return
	}
	gameplay.SessionReset(context.Background(), s.deps.Publisher, s.id, s.tick)
	s.deps.Metrics.Add("session.reset.total", 1)
	s.clear()
}

// fail latches the session into the failed phase. Clients see a generic
// reason; the detail goes to the operational log and the event stream. The
// aborted world is discarded so no half-updated frame is ever observable.
func (s *Session) fail(reason, detail string) {
	s.logf("[session] failed tick=%d: %s", s.tick, detail)
	gameplay.SessionFailed(context.Background(), s.deps.Publisher, s.id, s.tick, gameplay.SessionFailedPayload{
		Reason: reason,
	})
	s.deps.Metrics.Add("session.failed.total", 1)

	id, tick, frame := s.id, s.tick, s.frame
	s.clear()
	s.id = id
	s.tick = tick
	s.frame = frame
	s.phase = sim.PhaseFailed
	s.failure = reason
}

func (s *Session) clear() {
	s.id = ""
	s.phase = sim.PhaseIdle
	s.tick = 0
	s.frame = 0
	s.world = nil
	s.field = nil
	s.led = nil
	s.resolver = nil
	s.balls = nil
	s.byBody = nil
	s.bumpers = nil
	s.pending = 0
	s.sinceSpawn = 0
	s.layoutName = ""
	s.failure = ""
	s.spawnRNG = nil
}

// Result returns the sealed gacha outcome for the current round.
func (s *Session) Result() (gacha.Result, error) {
	switch s.phase {
	case sim.PhaseIdle:
		return gacha.Result{}, ErrNoSession
	case sim.PhaseFailed:
		return gacha.Result{}, ErrSessionFailed
	}
	if result, ok := s.resolver.Result(); ok {
		return result, nil
	}
	return gacha.Result{}, ErrNotResolved
}

func (s *Session) freshSeed() int64 {
	if s.deps.RNG != nil {
		if v := s.deps.RNG.Int63(); v > 0 {
			return v
		}
	}
	clock := s.deps.Clock
	if clock == nil {
		clock = logging.SystemClock{}
	}
	seed := clock.Now().UnixNano()
	if seed == 0 {
		seed = 1
	}
	return seed
}

func (s *Session) logf(format string, args ...any) {
	if s.deps.Logger == nil {
		return
	}
	s.deps.Logger.Printf(format, args...)
}

var _ sim.EngineCore = (*Session)(nil)
