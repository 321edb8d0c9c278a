package obstacles

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"pinball-gacha/server/internal/physics"
)

// BumperConfig describes one elastic bumper. BoostFactor scales the ball's
// approach speed into the scripted kick; the world tuning's BumperBoostCap
// bounds the result.
type BumperConfig struct {
	Pos           mgl64.Vec2
	Radius        float64
	Restitution   float64
	FlashBoost    float64
	BoostFactor   float64
	FlashDuration float64
	Color         string
}

// Bumper is a static circle that pulses on contact: the flash timer resets
// to its maximum, the ball receives a capped scripted kick along the contact
// normal, and the bumper's restitution stays boosted until the flash decays.
type Bumper struct {
	id  physics.BodyID
	pos mgl64.Vec2

	baseRestitution float64
	flashBoost      float64
	boostFactor     float64
	flashDuration   float64
	flashTimer      float64
}

// NewBumper registers the bumper body and returns the behavior that owns it.
func NewBumper(w *physics.World, cfg BumperConfig) (*Bumper, error) {
	if cfg.Radius <= 0 {
		cfg.Radius = 14
	}
	if cfg.Restitution <= 0 {
		cfg.Restitution = 1.0
	}
	if cfg.FlashBoost <= 0 {
		cfg.FlashBoost = 1.5
	}
	if cfg.BoostFactor < 0 {
		cfg.BoostFactor = 0
	}
	if cfg.FlashDuration <= 0 {
		cfg.FlashDuration = 0.25
	}

	id, err := w.Register(physics.BodyDescriptor{
		Kind:        physics.KindBumper,
		Shape:       physics.CircleShape(cfg.Radius),
		Pos:         cfg.Pos,
		Motion:      physics.MotionStatic,
		Restitution: cfg.Restitution,
		OwnerTag:    "bumper",
		Color:       cfg.Color,
	})
	if err != nil {
		return nil, fmt.Errorf("register bumper: %w", err)
	}
	return &Bumper{
		id:              id,
		pos:             cfg.Pos,
		baseRestitution: cfg.Restitution,
		flashBoost:      cfg.FlashBoost,
		boostFactor:     cfg.BoostFactor,
		flashDuration:   cfg.FlashDuration,
	}, nil
}

// Update decays the flash timer, clamped at zero, and restores the base
// restitution once the flash ends.
func (b *Bumper) Update(w *physics.World, dt float64) error {
	if b.flashTimer == 0 {
		return nil
	}
	b.flashTimer -= dt
	if b.flashTimer <= 0 {
		b.flashTimer = 0
		return w.SetRestitution(b.id, b.baseRestitution)
	}
	return nil
}

// OnContact pulses the bumper. The kick scales with the ball's approach
// speed along the contact normal, min(BoostFactor·|v_n|, BumperBoostCap),
// and fires only while the ball is closing: solver substeps can report a
// lingering contact after separation, and those must not pulse again.
func (b *Bumper) OnContact(w *physics.World, ev physics.ContactEvent) error {
	if ev.A != b.id && ev.B != b.id {
		return nil
	}

	// The dynamic side of the pair drives the manifold, so the ball is A
	// whenever the bumper is B, and the normal points ball-to-bumper.
	ball := ev.A
	kickDir := ev.Normal.Mul(-1)
	if ev.A == b.id {
		ball = ev.B
		kickDir = ev.Normal
	}

	view, err := w.View(ball)
	if err != nil {
		return err
	}
	// Approach speed toward the bumper: positive while closing.
	approach := -view.Vel.Dot(kickDir)
	if approach <= 0 {
		return nil
	}

	if b.flashTimer == 0 {
		if err := w.SetRestitution(b.id, b.baseRestitution*b.flashBoost); err != nil {
			return err
		}
	}
	b.flashTimer = b.flashDuration

	boost := b.boostFactor * approach
	if limit := w.Tuning().BumperBoostCap; boost > limit {
		boost = limit
	}
	if boost > 0 {
		if err := w.Nudge(ball, kickDir.Mul(boost)); err != nil {
			return err
		}
	}
	return nil
}

// FlashTimer reports the remaining flash time for snapshots.
func (b *Bumper) FlashTimer() float64 {
	return b.flashTimer
}

// FlashDuration reports the configured maximum flash time.
func (b *Bumper) FlashDuration() float64 {
	return b.flashDuration
}

// BodyIDs lists the single bumper body.
func (b *Bumper) BodyIDs() []physics.BodyID {
	return []physics.BodyID{b.id}
}

var _ ContactHandler = (*Bumper)(nil)
