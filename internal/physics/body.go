package physics

import (
	"github.com/go-gl/mathgl/mgl64"
)

// BodyID is a stable handle to a registered body. IDs are never reused
// within a world's lifetime.
type BodyID uint64

// BodyKind classifies bodies for event routing and snapshots.
type BodyKind string

const (
	KindBall        BodyKind = "ball"
	KindPin         BodyKind = "pin"
	KindWindmillHub BodyKind = "windmill_hub"
	KindWindmillArm BodyKind = "windmill_arm"
	KindSeesaw      BodyKind = "seesaw"
	KindBumper      BodyKind = "bumper"
	KindDeflector   BodyKind = "deflector"
	KindWall        BodyKind = "wall"
	KindTransient   BodyKind = "transient"
	KindGoalSensor  BodyKind = "goal_sensor"
)

// Motion selects how a body participates in integration.
type Motion int

const (
	// MotionStatic bodies never move.
	MotionStatic Motion = iota
	// MotionKinematic bodies are positioned by their owning behavior; they
	// affect dynamic bodies through their surface velocity but receive no
	// impulses themselves.
	MotionKinematic
	// MotionDynamic bodies integrate gravity and impulses.
	MotionDynamic
)

// BodyDescriptor is the registration input for a new body.
type BodyDescriptor struct {
	Kind          BodyKind
	Shape         Shape
	Pos           mgl64.Vec2
	Angle         float64
	Vel           mgl64.Vec2
	AngularVel    float64
	Motion        Motion
	Restitution   float64
	Friction      float64
	Density       float64
	LinearDamping float64
	Sensor        bool
	// OwnerTag names the behavior authorized to write this body's transform.
	OwnerTag string
	// VisualTag carries presentation hints (e.g. transient shape names).
	VisualTag string
	Color     string
}

// Body is the world's internal record for one collider.
type Body struct {
	ID            BodyID
	Kind          BodyKind
	Shape         Shape
	Pos           mgl64.Vec2
	Angle         float64
	Vel           mgl64.Vec2
	AngularVel    float64
	Motion        Motion
	Restitution   float64
	Friction      float64
	Density       float64
	LinearDamping float64
	Sensor        bool
	OwnerTag      string
	VisualTag     string
	Color         string

	mass       float64
	invMass    float64
	inertia    float64
	invInertia float64

	// prevPos holds the last known-good position for step recovery.
	prevPos mgl64.Vec2
}

func newBody(id BodyID, desc BodyDescriptor) *Body {
	b := &Body{
		ID:            id,
		Kind:          desc.Kind,
		Shape:         desc.Shape,
		Pos:           desc.Pos,
		Angle:         desc.Angle,
		Vel:           desc.Vel,
		AngularVel:    desc.AngularVel,
		Motion:        desc.Motion,
		Restitution:   desc.Restitution,
		Friction:      desc.Friction,
		Density:       desc.Density,
		LinearDamping: desc.LinearDamping,
		Sensor:        desc.Sensor,
		OwnerTag:      desc.OwnerTag,
		VisualTag:     desc.VisualTag,
		Color:         desc.Color,
		prevPos:       desc.Pos,
	}
	if b.Motion == MotionDynamic {
		density := b.Density
		if density <= 0 {
			density = 1
		}
		b.mass = density * b.Shape.area()
		if b.mass > 0 {
			b.invMass = 1 / b.mass
		}
		b.inertia = b.Shape.momentFactor(b.mass)
		if b.inertia > 0 {
			b.invInertia = 1 / b.inertia
		}
	}
	return b
}

// Mass reports the derived mass; zero for static and kinematic bodies.
func (b *Body) Mass() float64 {
	return b.mass
}

// velocityAt returns the body's velocity at a world-space point, including
// the rotational component. Kinematic bodies contribute their scripted
// surface velocity here, which is how windmill arms bat balls away.
func (b *Body) velocityAt(point mgl64.Vec2) mgl64.Vec2 {
	if b.Motion == MotionStatic {
		return mgl64.Vec2{}
	}
	r := point.Sub(b.Pos)
	return b.Vel.Add(perp(r).Mul(b.AngularVel))
}

// applyImpulse changes a dynamic body's velocity; no-op otherwise.
func (b *Body) applyImpulse(impulse, point mgl64.Vec2) {
	if b.Motion != MotionDynamic || b.invMass == 0 {
		return
	}
	b.Vel = b.Vel.Add(impulse.Mul(b.invMass))
	r := point.Sub(b.Pos)
	b.AngularVel += cross(r, impulse) * b.invInertia
}

// aabb returns a loose world-space bounding box (center ± bounding radius).
func (b *Body) aabb() (min, max mgl64.Vec2) {
	r := b.Shape.boundingRadius()
	return mgl64.Vec2{b.Pos.X() - r, b.Pos.Y() - r}, mgl64.Vec2{b.Pos.X() + r, b.Pos.Y() + r}
}

func aabbOverlap(minA, maxA, minB, maxB mgl64.Vec2) bool {
	return minA.X() <= maxB.X() && maxA.X() >= minB.X() &&
		minA.Y() <= maxB.Y() && maxA.Y() >= minB.Y()
}
