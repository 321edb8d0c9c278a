package obstacles

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"pinball-gacha/server/internal/physics"
)

// SeesawConfig describes one free-tilting plank.
type SeesawConfig struct {
	Pos           mgl64.Vec2
	HalfLength    float64
	HalfThickness float64
	Density       float64
	Damping       float64
	Color         string
}

// Seesaw is a kinematic plank pinned at its center. Ball contacts convert to
// angular impulses around the pivot, so the plank spins freely under traffic
// while its transform stays scripted.
type Seesaw struct {
	id  physics.BodyID
	pos mgl64.Vec2

	angle   float64
	omega   float64
	inertia float64
	damping float64
}

// NewSeesaw registers the plank body and returns the behavior that owns it.
func NewSeesaw(w *physics.World, cfg SeesawConfig) (*Seesaw, error) {
	if cfg.HalfLength <= 0 {
		cfg.HalfLength = 50
	}
	if cfg.HalfThickness <= 0 {
		cfg.HalfThickness = 4
	}
	if cfg.Density <= 0 {
		cfg.Density = 1
	}
	if cfg.Damping <= 0 {
		cfg.Damping = 0.4
	}

	id, err := w.Register(physics.BodyDescriptor{
		Kind:        physics.KindSeesaw,
		Shape:       physics.BoxShape(cfg.HalfLength, cfg.HalfThickness),
		Pos:         cfg.Pos,
		Motion:      physics.MotionKinematic,
		Restitution: 0.4,
		OwnerTag:    "seesaw",
		Color:       cfg.Color,
	})
	if err != nil {
		return nil, fmt.Errorf("register seesaw: %w", err)
	}

	length, thickness := 2*cfg.HalfLength, 2*cfg.HalfThickness
	mass := cfg.Density * length * thickness
	inertia := mass * (length*length + thickness*thickness) / 12

	return &Seesaw{
		id:      id,
		pos:     cfg.Pos,
		inertia: inertia,
		damping: cfg.Damping,
	}, nil
}

// Update integrates the tilt and writes the plank's pose.
func (s *Seesaw) Update(w *physics.World, dt float64) error {
	if s.damping > 0 {
		s.omega /= 1 + s.damping*dt
	}
	s.angle = math.Mod(s.angle+s.omega*dt, 2*math.Pi)
	if err := w.SetTransform(s.id, s.pos, s.angle); err != nil {
		return err
	}
	return w.SetAngularVelocity(s.id, s.omega)
}

// OnContact converts the contact impulse into an angular impulse about the
// pivot.
func (s *Seesaw) OnContact(w *physics.World, ev physics.ContactEvent) error {
	if ev.A != s.id && ev.B != s.id {
		return nil
	}
	if s.inertia <= 0 {
		return nil
	}

	// The plank receives the impulse along the normal when it is B; flip the
	// direction when the manifold listed it first.
	impulse := ev.Normal.Mul(ev.Impulse)
	if ev.A == s.id {
		impulse = impulse.Mul(-1)
	}
	r := ev.Point.Sub(s.pos)
	s.omega += (r.X()*impulse.Y() - r.Y()*impulse.X()) / s.inertia
	return nil
}

// Angle reports the plank tilt for snapshots.
func (s *Seesaw) Angle() float64 {
	return s.angle
}

// BodyIDs lists the single plank body.
func (s *Seesaw) BodyIDs() []physics.BodyID {
	return []physics.BodyID{s.id}
}

var _ ContactHandler = (*Seesaw)(nil)
