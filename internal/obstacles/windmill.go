package obstacles

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"pinball-gacha/server/internal/physics"
)

// SpeedLevel names the three windmill speeds from the standard machine.
type SpeedLevel string

const (
	SpeedSlow   SpeedLevel = "slow"
	SpeedNormal SpeedLevel = "normal"
	SpeedFast   SpeedLevel = "fast"
)

// AngularSpeed maps a level to its magnitude in radians per second.
func (l SpeedLevel) AngularSpeed() (float64, error) {
	switch l {
	case SpeedSlow:
		return 1.0, nil
	case SpeedNormal:
		return 3.0, nil
	case SpeedFast:
		return 5.0, nil
	}
	return 0, fmt.Errorf("unrecognized windmill speed level %q", l)
}

// WindmillConfig describes one rotating windmill. Speed carries the sign:
// negative spins clockwise.
type WindmillConfig struct {
	Pos       mgl64.Vec2
	Speed     float64
	Arms      int
	ArmLength float64
	ArmWidth  float64
	HubRadius float64
	Color     string
}

// Windmill is a kinematic compound body whose angular velocity is written
// directly each frame; collision impulses never alter its spin.
type Windmill struct {
	pos   mgl64.Vec2
	speed float64
	angle float64

	hub  physics.BodyID
	arms []physics.BodyID
	ids  []physics.BodyID
}

// NewWindmill registers the hub and arm bodies and returns the behavior
// that owns them.
func NewWindmill(w *physics.World, cfg WindmillConfig) (*Windmill, error) {
	if cfg.Arms < 1 {
		cfg.Arms = 1
	}
	if cfg.ArmLength <= 0 {
		cfg.ArmLength = 60
	}
	if cfg.ArmWidth <= 0 {
		cfg.ArmWidth = 8
	}
	if cfg.HubRadius <= 0 {
		cfg.HubRadius = 6
	}

	mill := &Windmill{pos: cfg.Pos, speed: cfg.Speed}

	hub, err := w.Register(physics.BodyDescriptor{
		Kind:        physics.KindWindmillHub,
		Shape:       physics.CircleShape(cfg.HubRadius),
		Pos:         cfg.Pos,
		Motion:      physics.MotionKinematic,
		Restitution: 0.5,
		OwnerTag:    "windmill",
		Color:       cfg.Color,
	})
	if err != nil {
		return nil, fmt.Errorf("register windmill hub: %w", err)
	}
	mill.hub = hub
	mill.ids = append(mill.ids, hub)

	// Each arm is one box through the pivot, covering two opposing blades.
	for i := 0; i < cfg.Arms; i++ {
		arm, err := w.Register(physics.BodyDescriptor{
			Kind:        physics.KindWindmillArm,
			Shape:       physics.BoxShape(cfg.ArmLength, cfg.ArmWidth/2),
			Pos:         cfg.Pos,
			Angle:       mill.armAngle(i, cfg.Arms),
			AngularVel:  cfg.Speed,
			Motion:      physics.MotionKinematic,
			Restitution: 0.5,
			OwnerTag:    "windmill",
			Color:       cfg.Color,
		})
		if err != nil {
			return nil, fmt.Errorf("register windmill arm %d: %w", i, err)
		}
		mill.arms = append(mill.arms, arm)
		mill.ids = append(mill.ids, arm)
	}
	return mill, nil
}

func (m *Windmill) armAngle(i, total int) float64 {
	return m.angle + float64(i)*math.Pi/float64(total)
}

// Update advances the rotation and writes the new orientation into the
// world. The angle is wrapped mod 2π.
func (m *Windmill) Update(w *physics.World, dt float64) error {
	m.angle = wrapAngle(m.angle + m.speed*dt)
	for i, arm := range m.arms {
		if err := w.SetTransform(arm, m.pos, m.armAngle(i, len(m.arms))); err != nil {
			return err
		}
		if err := w.SetAngularVelocity(arm, m.speed); err != nil {
			return err
		}
	}
	return nil
}

// Angle reports the current rotation for snapshots.
func (m *Windmill) Angle() float64 {
	return m.angle
}

// BodyIDs lists the hub and arms.
func (m *Windmill) BodyIDs() []physics.BodyID {
	return m.ids
}

var _ Behavior = (*Windmill)(nil)
