package physics

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func testBallDescriptor(pos mgl64.Vec2) BodyDescriptor {
	return BodyDescriptor{
		Kind:          KindBall,
		Shape:         CircleShape(8),
		Pos:           pos,
		Motion:        MotionDynamic,
		Restitution:   0.7,
		Friction:      0,
		Density:       1,
		LinearDamping: 0.1,
	}
}

func TestRegisterRejectsDegenerateShapes(t *testing.T) {
	w := NewWorld(DefaultTuning(), DefaultBounds())

	cases := []struct {
		name string
		desc BodyDescriptor
	}{
		{"zero radius circle", BodyDescriptor{Kind: KindPin, Shape: CircleShape(0), Motion: MotionStatic}},
		{"negative box", BodyDescriptor{Kind: KindWall, Shape: BoxShape(-1, 5), Motion: MotionStatic}},
		{"two vertex polygon", BodyDescriptor{Kind: KindWall, Shape: PolygonShape(mgl64.Vec2{0, 0}, mgl64.Vec2{1, 0}), Motion: MotionStatic}},
		{"clockwise polygon", BodyDescriptor{Kind: KindWall, Shape: PolygonShape(mgl64.Vec2{0, 0}, mgl64.Vec2{0, 1}, mgl64.Vec2{1, 0}), Motion: MotionStatic}},
		{"concave polygon", BodyDescriptor{Kind: KindWall, Shape: PolygonShape(mgl64.Vec2{0, 0}, mgl64.Vec2{4, 0}, mgl64.Vec2{1, 1}, mgl64.Vec2{4, 4}), Motion: MotionStatic}},
		{"dynamic box", BodyDescriptor{Kind: KindTransient, Shape: BoxShape(5, 5), Motion: MotionDynamic}},
		{"nan position", BodyDescriptor{Kind: KindPin, Shape: CircleShape(5), Pos: mgl64.Vec2{math.NaN(), 0}, Motion: MotionStatic}},
	}
	for _, tc := range cases {
		if _, err := w.Register(tc.desc); !errors.Is(err, ErrInvalidShape) {
			t.Fatalf("%s: expected ErrInvalidShape, got %v", tc.name, err)
		}
	}
	if len(w.Bodies()) != 0 {
		t.Fatalf("rejected registrations must not mutate the world, have %d bodies", len(w.Bodies()))
	}

	if _, err := w.Register(BodyDescriptor{
		Kind:   KindWall,
		Shape:  PolygonShape(mgl64.Vec2{0, 0}, mgl64.Vec2{4, 0}, mgl64.Vec2{2, 3}),
		Motion: MotionStatic,
	}); err != nil {
		t.Fatalf("expected CCW triangle to register, got %v", err)
	}
}

func TestRemovedBodyYieldsUnknownBody(t *testing.T) {
	w := NewWorld(DefaultTuning(), DefaultBounds())
	id, err := w.Register(testBallDescriptor(mgl64.Vec2{0, 0}))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := w.Remove(id); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if _, err := w.View(id); !errors.Is(err, ErrUnknownBody) {
		t.Fatalf("View after remove: expected ErrUnknownBody, got %v", err)
	}
	if err := w.SetTransform(id, mgl64.Vec2{}, 0); !errors.Is(err, ErrUnknownBody) {
		t.Fatalf("SetTransform after remove: expected ErrUnknownBody, got %v", err)
	}
	if err := w.SetAngularVelocity(id, 1); !errors.Is(err, ErrUnknownBody) {
		t.Fatalf("SetAngularVelocity after remove: expected ErrUnknownBody, got %v", err)
	}
	if err := w.Nudge(id, mgl64.Vec2{1, 0}); !errors.Is(err, ErrUnknownBody) {
		t.Fatalf("Nudge after remove: expected ErrUnknownBody, got %v", err)
	}
	if err := w.Remove(id); !errors.Is(err, ErrUnknownBody) {
		t.Fatalf("second Remove: expected ErrUnknownBody, got %v", err)
	}
}

func TestBallBouncesOffFloor(t *testing.T) {
	w := NewWorld(DefaultTuning(), DefaultBounds())

	floor, err := w.Register(BodyDescriptor{
		Kind:        KindWall,
		Shape:       BoxShape(200, 10),
		Pos:         mgl64.Vec2{0, -200},
		Motion:      MotionStatic,
		Restitution: 0.7,
	})
	if err != nil {
		t.Fatalf("register floor: %v", err)
	}
	ball, err := w.Register(testBallDescriptor(mgl64.Vec2{0, -150}))
	if err != nil {
		t.Fatalf("register ball: %v", err)
	}

	sawContact := false
	bounced := false
	for i := 0; i < 240; i++ {
		result, err := w.Step(1.0 / 60)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		for _, c := range result.Contacts {
			if c.A == ball && c.B == floor {
				sawContact = true
			}
		}
		view, err := w.View(ball)
		if err != nil {
			t.Fatalf("view ball: %v", err)
		}
		if sawContact && view.Vel.Y() > 0 {
			bounced = true
			break
		}
	}
	if !sawContact {
		t.Fatalf("expected a ball-floor contact event")
	}
	if !bounced {
		t.Fatalf("expected the ball to bounce upward after contact")
	}

	view, _ := w.View(ball)
	if view.Pos.Y() < -200 {
		t.Fatalf("ball tunneled through the floor: y=%v", view.Pos.Y())
	}
}

func TestKinematicSurfaceVelocityTransfers(t *testing.T) {
	bounceSpeed := func(floorVel mgl64.Vec2) float64 {
		w := NewWorld(DefaultTuning(), DefaultBounds())
		_, err := w.Register(BodyDescriptor{
			Kind:        KindWall,
			Shape:       BoxShape(200, 10),
			Pos:         mgl64.Vec2{0, -200},
			Vel:         floorVel,
			Motion:      MotionKinematic,
			Restitution: 0.7,
		})
		if err != nil {
			t.Fatalf("register floor: %v", err)
		}
		ball, err := w.Register(testBallDescriptor(mgl64.Vec2{0, -150}))
		if err != nil {
			t.Fatalf("register ball: %v", err)
		}
		for i := 0; i < 240; i++ {
			if _, err := w.Step(1.0 / 60); err != nil {
				t.Fatalf("step: %v", err)
			}
			view, _ := w.View(ball)
			if view.Vel.Y() > 0 {
				return view.Vel.Y()
			}
		}
		t.Fatalf("ball never bounced off floor with vel %v", floorVel)
		return 0
	}

	still := bounceSpeed(mgl64.Vec2{})
	moving := bounceSpeed(mgl64.Vec2{0, 120})
	if moving <= still {
		t.Fatalf("expected a rising kinematic floor to bounce harder: still=%v moving=%v", still, moving)
	}
}

func TestSpeedClamp(t *testing.T) {
	w := NewWorld(DefaultTuning(), DefaultBounds())
	ball, err := w.Register(testBallDescriptor(mgl64.Vec2{0, 0}))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := w.Nudge(ball, mgl64.Vec2{1e6, 0}); err != nil {
		t.Fatalf("nudge: %v", err)
	}
	if _, err := w.Step(1.0 / 60); err != nil {
		t.Fatalf("step: %v", err)
	}
	view, _ := w.View(ball)
	if speed := view.Vel.Len(); speed > DefaultTuning().MaxSpeed+1e-6 {
		t.Fatalf("speed %v exceeds clamp %v", speed, DefaultTuning().MaxSpeed)
	}
}

func TestStepRecoversFromNonFiniteState(t *testing.T) {
	w := NewWorld(DefaultTuning(), DefaultBounds())
	ball, err := w.Register(testBallDescriptor(mgl64.Vec2{0, 0}))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := w.Nudge(ball, mgl64.Vec2{math.NaN(), 0}); err != nil {
		t.Fatalf("nudge: %v", err)
	}

	result, err := w.Step(1.0 / 60)
	if !errors.Is(err, ErrStepFailure) {
		t.Fatalf("expected ErrStepFailure, got %v", err)
	}
	if result.Recovered == nil || result.Recovered.ClampedBodies == 0 {
		t.Fatalf("expected recovery report, got %+v", result.Recovered)
	}

	view, _ := w.View(ball)
	if !isFinite(view.Pos.X()) || !isFinite(view.Pos.Y()) || !isFinite(view.Vel.X()) || !isFinite(view.Vel.Y()) {
		t.Fatalf("state still non-finite after recovery: %+v", view)
	}

	if _, err := w.Step(1.0 / 60); err != nil {
		t.Fatalf("step after recovery: %v", err)
	}
}

func TestExitEventsEmittedOnce(t *testing.T) {
	w := NewWorld(DefaultTuning(), DefaultBounds())

	t.Run("goal band", func(t *testing.T) {
		ball, err := w.Register(testBallDescriptor(mgl64.Vec2{0, -360}))
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		result, err := w.Step(1.0 / 60)
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if len(result.Exits) != 1 || result.Exits[0].Body != ball || result.Exits[0].Reason != ExitGoal {
			t.Fatalf("expected one goal exit for the ball, got %+v", result.Exits)
		}

		result, err = w.Step(1.0 / 60)
		if err != nil {
			t.Fatalf("second step: %v", err)
		}
		if len(result.Exits) != 0 {
			t.Fatalf("exit must be emitted once, got %+v", result.Exits)
		}
	})

	t.Run("out of bounds", func(t *testing.T) {
		ball, err := w.Register(testBallDescriptor(mgl64.Vec2{700, 0}))
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		result, err := w.Step(1.0 / 60)
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		found := false
		for _, exit := range result.Exits {
			if exit.Body == ball {
				if exit.Reason != ExitOutOfBounds {
					t.Fatalf("expected out_of_bounds, got %s", exit.Reason)
				}
				found = true
			}
		}
		if !found {
			t.Fatalf("expected an exit for the escaped ball, got %+v", result.Exits)
		}
	})
}

func TestGoalSensorTriggersExit(t *testing.T) {
	w := NewWorld(DefaultTuning(), DefaultBounds())
	_, err := w.Register(BodyDescriptor{
		Kind:   KindGoalSensor,
		Shape:  BoxShape(60, 10),
		Pos:    mgl64.Vec2{0, -300},
		Motion: MotionStatic,
		Sensor: true,
	})
	if err != nil {
		t.Fatalf("register sensor: %v", err)
	}
	ball, err := w.Register(testBallDescriptor(mgl64.Vec2{0, -298}))
	if err != nil {
		t.Fatalf("register ball: %v", err)
	}

	result, err := w.Step(1.0 / 60)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(result.Exits) != 1 || result.Exits[0].Body != ball || result.Exits[0].Reason != ExitGoal {
		t.Fatalf("expected sensor goal exit, got %+v", result.Exits)
	}
	if len(result.Contacts) != 0 {
		t.Fatalf("sensors must not produce contacts, got %+v", result.Contacts)
	}
}

func TestStepDeterminism(t *testing.T) {
	build := func() (*World, BodyID) {
		w := NewWorld(DefaultTuning(), DefaultBounds())
		for i := 0; i < 5; i++ {
			if _, err := w.Register(BodyDescriptor{
				Kind:        KindPin,
				Shape:       CircleShape(5),
				Pos:         mgl64.Vec2{float64(-100 + i*50), -50},
				Motion:      MotionStatic,
				Restitution: 1.5,
			}); err != nil {
				t.Fatalf("register pin: %v", err)
			}
		}
		ball, err := w.Register(testBallDescriptor(mgl64.Vec2{3, 200}))
		if err != nil {
			t.Fatalf("register ball: %v", err)
		}
		return w, ball
	}

	w1, b1 := build()
	w2, b2 := build()
	for i := 0; i < 180; i++ {
		if _, err := w1.Step(1.0 / 60); err != nil {
			t.Fatalf("w1 step: %v", err)
		}
		if _, err := w2.Step(1.0 / 60); err != nil {
			t.Fatalf("w2 step: %v", err)
		}
	}
	v1, _ := w1.View(b1)
	v2, _ := w2.View(b2)
	if v1.Pos != v2.Pos || v1.Vel != v2.Vel {
		t.Fatalf("identical worlds diverged: %+v vs %+v", v1, v2)
	}
}
