package physics

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Bounds delimits the play field. Coordinates are center-origin with +y up,
// so the goal band sits below y = GoalY near the bottom chute.
type Bounds struct {
	Width      float64 `json:"width" yaml:"width"`
	Height     float64 `json:"height" yaml:"height"`
	GoalY      float64 `json:"goalY" yaml:"goalY"`
	KillMargin float64 `json:"killMargin" yaml:"killMargin"`
}

// DefaultBounds reproduces the standard 500x800 machine with the goal band
// 50 units above the floor.
func DefaultBounds() Bounds {
	return Bounds{Width: 500, Height: 800, GoalY: -350, KillMargin: 100}
}

// Normalized clamps degenerate bounds back to the defaults.
func (b Bounds) Normalized() Bounds {
	def := DefaultBounds()
	if !isFinite(b.Width) || b.Width <= 0 {
		b.Width = def.Width
	}
	if !isFinite(b.Height) || b.Height <= 0 {
		b.Height = def.Height
	}
	if !isFinite(b.GoalY) || b.GoalY <= -b.Height/2 || b.GoalY >= b.Height/2 {
		b.GoalY = -b.Height/2 + 50
	}
	if !isFinite(b.KillMargin) || b.KillMargin < 0 {
		b.KillMargin = def.KillMargin
	}
	return b
}

// ContactEvent reports one resolved contact. Normal points from A to B.
type ContactEvent struct {
	A       BodyID
	B       BodyID
	Normal  mgl64.Vec2
	Impulse float64
	Point   mgl64.Vec2
}

// ExitReason distinguishes goal arrivals from escapes through gaps.
type ExitReason string

const (
	ExitGoal        ExitReason = "goal"
	ExitOutOfBounds ExitReason = "out_of_bounds"
)

// ExitEvent reports that a ball left the play field. The world emits at most
// one exit per body.
type ExitEvent struct {
	Body   BodyID
	Pos    mgl64.Vec2
	Reason ExitReason
}

// Recovery summarizes a step-failure recovery pass.
type Recovery struct {
	ClampedBodies  int
	RestoredBodies int
}

// StepResult exposes the events produced by one Step call. The backing
// buffers are reused on the next call: consume them before stepping again.
type StepResult struct {
	Contacts  []ContactEvent
	Exits     []ExitEvent
	Recovered *Recovery
}

// BodyView is a read-only copy of a body's public state.
type BodyView struct {
	ID          BodyID
	Kind        BodyKind
	Shape       Shape
	Pos         mgl64.Vec2
	Angle       float64
	Vel         mgl64.Vec2
	AngularVel  float64
	Motion      Motion
	Sensor      bool
	Restitution float64
	OwnerTag    string
	VisualTag   string
	Color       string
}

// World owns the rigid-body state and produces contact and exit events for
// each step. It is not safe for concurrent use; a single goroutine drives it.
type World struct {
	tuning Tuning
	bounds Bounds

	bodies map[BodyID]*Body
	// order preserves registration order so stepping is deterministic;
	// iterating the map would randomize contact resolution order.
	order  []*Body
	nextID BodyID

	contacts []ContactEvent
	exits    []ExitEvent
	exited   map[BodyID]struct{}
}

// NewWorld constructs an empty world with normalized tuning and bounds.
func NewWorld(tuning Tuning, bounds Bounds) *World {
	return &World{
		tuning: tuning.Normalized(),
		bounds: bounds.Normalized(),
		bodies: make(map[BodyID]*Body),
		exited: make(map[BodyID]struct{}),
	}
}

// Tuning returns the normalized tuning captured at construction.
func (w *World) Tuning() Tuning {
	return w.tuning
}

// Bounds returns the normalized play-field bounds.
func (w *World) Bounds() Bounds {
	return w.bounds
}

// Register validates the descriptor and adds a body, returning its stable
// handle. Dynamic bodies must use circle colliders; the solver resolves
// dynamic contacts against circles only.
func (w *World) Register(desc BodyDescriptor) (BodyID, error) {
	if err := desc.Shape.validate(); err != nil {
		return 0, err
	}
	if desc.Motion == MotionDynamic && desc.Shape.Type != ShapeCircle {
		return 0, fmt.Errorf("%w: dynamic bodies must use circle colliders, got %s", ErrInvalidShape, desc.Shape.Type)
	}
	if !isFinite(desc.Pos.X()) || !isFinite(desc.Pos.Y()) {
		return 0, fmt.Errorf("%w: non-finite position %v", ErrInvalidShape, desc.Pos)
	}

	w.nextID++
	id := w.nextID
	body := newBody(id, desc)
	w.bodies[id] = body
	w.order = append(w.order, body)
	return id, nil
}

// Remove detaches a body. Subsequent references to the id fail with
// ErrUnknownBody.
func (w *World) Remove(id BodyID) error {
	if _, ok := w.bodies[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBody, id)
	}
	delete(w.bodies, id)
	for i, b := range w.order {
		if b.ID == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return nil
}

// View returns a read-only copy of the body's state.
func (w *World) View(id BodyID) (BodyView, error) {
	b, ok := w.bodies[id]
	if !ok {
		return BodyView{}, fmt.Errorf("%w: %d", ErrUnknownBody, id)
	}
	return viewOf(b), nil
}

// Bodies lists every registered body in registration order.
func (w *World) Bodies() []BodyView {
	views := make([]BodyView, 0, len(w.order))
	for _, b := range w.order {
		views = append(views, viewOf(b))
	}
	return views
}

// SetTransform writes a kinematic body's pose. Behaviors own this call for
// the bodies they registered.
func (w *World) SetTransform(id BodyID, pos mgl64.Vec2, angle float64) error {
	b, ok := w.bodies[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBody, id)
	}
	b.Pos = pos
	b.prevPos = pos
	b.Angle = angle
	return nil
}

// SetAngularVelocity writes a body's angular velocity.
func (w *World) SetAngularVelocity(id BodyID, omega float64) error {
	b, ok := w.bodies[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBody, id)
	}
	b.AngularVel = omega
	return nil
}

// SetRestitution rewrites a body's restitution, used by pulse behaviors
// whose bounciness changes while flashing.
func (w *World) SetRestitution(id BodyID, restitution float64) error {
	b, ok := w.bodies[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBody, id)
	}
	if isFinite(restitution) && restitution >= 0 {
		b.Restitution = restitution
	}
	return nil
}

// ApplyImpulse adds an instantaneous velocity change to a dynamic body,
// bounded only by the world speed clamp on the next step.
func (w *World) ApplyImpulse(id BodyID, impulse mgl64.Vec2) error {
	b, ok := w.bodies[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBody, id)
	}
	b.applyImpulse(impulse, b.Pos)
	return nil
}

// Nudge adds directly to a dynamic body's velocity, ignoring mass. Bumper
// kicks are scripted velocity boosts, not physical impulses.
func (w *World) Nudge(id BodyID, deltaV mgl64.Vec2) error {
	b, ok := w.bodies[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBody, id)
	}
	if b.Motion == MotionDynamic {
		b.Vel = b.Vel.Add(deltaV)
	}
	return nil
}

// Step advances the simulation by dt, split across the configured substeps.
// The returned result's buffers are valid until the next Step call. A
// numerical blow-up is recovered in place (velocities clamped or zeroed,
// positions restored) and reported via ErrStepFailure; the world state is
// consistent either way.
func (w *World) Step(dt float64) (StepResult, error) {
	w.contacts = w.contacts[:0]
	w.exits = w.exits[:0]

	if dt <= 0 || !isFinite(dt) {
		return StepResult{Contacts: w.contacts, Exits: w.exits}, nil
	}

	for _, b := range w.order {
		b.prevPos = b.Pos
	}

	sub := dt / float64(w.tuning.Substeps)
	gravity := w.tuning.Gravity.Vec()
	for s := 0; s < w.tuning.Substeps; s++ {
		w.integrate(sub, gravity)
		w.collide()
		w.clampSpeeds()
	}

	recovery := w.recoverNonFinite()
	w.scanExits()

	result := StepResult{Contacts: w.contacts, Exits: w.exits}
	var err error
	if recovery.ClampedBodies > 0 || recovery.RestoredBodies > 0 {
		result.Recovered = &recovery
		err = fmt.Errorf("%w: clamped=%d restored=%d", ErrStepFailure, recovery.ClampedBodies, recovery.RestoredBodies)
	}
	return result, err
}

func (w *World) integrate(dt float64, gravity mgl64.Vec2) {
	for _, b := range w.order {
		if b.Motion != MotionDynamic {
			continue
		}
		b.Vel = b.Vel.Add(gravity.Mul(dt))
		if b.LinearDamping > 0 {
			b.Vel = b.Vel.Mul(1 / (1 + b.LinearDamping*dt))
		}
		b.Pos = b.Pos.Add(b.Vel.Mul(dt))
		b.Angle += b.AngularVel * dt
	}
}

func (w *World) collide() {
	for i, a := range w.order {
		if a.Motion != MotionDynamic || a.Sensor {
			continue
		}
		for j, b := range w.order {
			if i == j || b.Sensor {
				continue
			}
			// Dynamic pairs resolve once; the lower index drives the test.
			if b.Motion == MotionDynamic && j < i {
				continue
			}
			m := detect(a, b)
			if m == nil {
				continue
			}
			impulse := resolve(m, w.tuning)
			w.contacts = append(w.contacts, ContactEvent{
				A:       a.ID,
				B:       b.ID,
				Normal:  m.normal,
				Impulse: impulse,
				Point:   m.point,
			})
		}
	}
}

func (w *World) clampSpeeds() {
	max := w.tuning.MaxSpeed
	for _, b := range w.order {
		if b.Motion != MotionDynamic {
			continue
		}
		speedSq := b.Vel.Dot(b.Vel)
		if isFinite(speedSq) && speedSq > max*max {
			b.Vel = b.Vel.Mul(max / math.Sqrt(speedSq))
		}
	}
}

func (w *World) recoverNonFinite() Recovery {
	var rec Recovery
	for _, b := range w.order {
		if b.Motion != MotionDynamic {
			continue
		}
		if !isFinite(b.Vel.X()) || !isFinite(b.Vel.Y()) {
			b.Vel = mgl64.Vec2{}
			rec.ClampedBodies++
		}
		if !isFinite(b.AngularVel) {
			b.AngularVel = 0
			rec.ClampedBodies++
		}
		if !isFinite(b.Pos.X()) || !isFinite(b.Pos.Y()) {
			b.Pos = b.prevPos
			rec.RestoredBodies++
		}
		if !isFinite(b.Angle) {
			b.Angle = 0
			rec.RestoredBodies++
		}
	}
	return rec
}

// scanExits emits one ExitEvent per ball that entered the goal band, touched
// a goal sensor, or escaped past the kill margin.
func (w *World) scanExits() {
	halfW := w.bounds.Width / 2
	halfH := w.bounds.Height / 2
	margin := w.bounds.KillMargin

	for _, b := range w.order {
		if b.Kind != KindBall || b.Motion != MotionDynamic {
			continue
		}
		if _, done := w.exited[b.ID]; done {
			continue
		}

		var reason ExitReason
		switch {
		case b.Pos.Y() < w.bounds.GoalY:
			reason = ExitGoal
		case math.Abs(b.Pos.X()) > halfW+margin || math.Abs(b.Pos.Y()) > halfH+margin:
			reason = ExitOutOfBounds
		default:
			if w.touchesGoalSensor(b) {
				reason = ExitGoal
			}
		}
		if reason == "" {
			continue
		}
		w.exited[b.ID] = struct{}{}
		w.exits = append(w.exits, ExitEvent{Body: b.ID, Pos: b.Pos, Reason: reason})
	}
}

func (w *World) touchesGoalSensor(ball *Body) bool {
	for _, b := range w.order {
		if !b.Sensor || b.Kind != KindGoalSensor {
			continue
		}
		if overlaps(ball, b) {
			return true
		}
	}
	return false
}

func viewOf(b *Body) BodyView {
	return BodyView{
		ID:          b.ID,
		Kind:        b.Kind,
		Shape:       b.Shape,
		Pos:         b.Pos,
		Angle:       b.Angle,
		Vel:         b.Vel,
		AngularVel:  b.AngularVel,
		Motion:      b.Motion,
		Sensor:      b.Sensor,
		Restitution: b.Restitution,
		OwnerTag:    b.OwnerTag,
		VisualTag:   b.VisualTag,
		Color:       b.Color,
	}
}
