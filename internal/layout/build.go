package layout

import (
	"fmt"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"

	"pinball-gacha/server/internal/obstacles"
	"pinball-gacha/server/internal/physics"
)

// Field is the built machine: the static bodies registered with the world
// and the behaviors driving the moving parts. Behaviors update in document
// order so a rebuild from the same document replays identically.
type Field struct {
	Behaviors []obstacles.Behavior
	// Handlers routes contact events to the behavior owning the struck body.
	Handlers map[physics.BodyID]obstacles.ContactHandler

	Windmills []*obstacles.Windmill
	Seesaws   []*obstacles.Seesaw
	Bumpers   []*obstacles.Bumper
	Spawners  []*obstacles.EventSpawner

	GoalID    physics.BodyID
	StaticIDs []physics.BodyID
}

// Build registers every body the document describes and wires the behaviors
// that own the moving ones. The random source feeds the spawners and must be
// seeded by the caller.
func Build(w *physics.World, doc Document, rng *rand.Rand) (*Field, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	field := &Field{Handlers: make(map[physics.BodyID]obstacles.ContactHandler)}

	for i, wall := range doc.Walls {
		id, err := w.Register(physics.BodyDescriptor{
			Kind:        physics.KindWall,
			Shape:       physics.BoxShape(wall.HalfW, wall.HalfH),
			Pos:         wall.Pos.Vec(),
			Angle:       mgl64.DegToRad(wall.AngleDeg),
			Motion:      physics.MotionStatic,
			Restitution: wall.Restitution,
			OwnerTag:    "layout",
		})
		if err != nil {
			return nil, fmt.Errorf("layout: register wall %d: %w", i, err)
		}
		field.StaticIDs = append(field.StaticIDs, id)
	}

	for i, pin := range doc.Pins {
		restitution, err := Restitution(pin.Elasticity)
		if err != nil {
			return nil, fmt.Errorf("layout: pin %d: %w", i, err)
		}
		id, err := w.Register(physics.BodyDescriptor{
			Kind:        physics.KindPin,
			Shape:       physics.CircleShape(pin.Radius),
			Pos:         pin.Pos.Vec(),
			Motion:      physics.MotionStatic,
			Restitution: restitution,
			OwnerTag:    "layout",
		})
		if err != nil {
			return nil, fmt.Errorf("layout: register pin %d: %w", i, err)
		}
		field.StaticIDs = append(field.StaticIDs, id)
	}

	for i, def := range doc.Deflectors {
		restitution, err := Restitution(def.Elasticity)
		if err != nil {
			return nil, fmt.Errorf("layout: deflector %d: %w", i, err)
		}
		id, err := w.Register(physics.BodyDescriptor{
			Kind:        physics.KindDeflector,
			Shape:       physics.BoxShape(def.HalfLength, def.HalfThick),
			Pos:         def.Pos.Vec(),
			Angle:       mgl64.DegToRad(def.AngleDeg),
			Motion:      physics.MotionStatic,
			Restitution: restitution,
			OwnerTag:    "layout",
			Color:       def.Color,
		})
		if err != nil {
			return nil, fmt.Errorf("layout: register deflector %d: %w", i, err)
		}
		field.StaticIDs = append(field.StaticIDs, id)
	}

	if doc.Goal != nil {
		id, err := w.Register(physics.BodyDescriptor{
			Kind:     physics.KindGoalSensor,
			Shape:    physics.BoxShape(doc.Goal.HalfW, doc.Goal.HalfH),
			Pos:      doc.Goal.Pos.Vec(),
			Motion:   physics.MotionStatic,
			Sensor:   true,
			OwnerTag: "layout",
		})
		if err != nil {
			return nil, fmt.Errorf("layout: register goal sensor: %w", err)
		}
		field.GoalID = id
	}

	for i, def := range doc.Windmills {
		speed, err := def.Speed.AngularSpeed()
		if err != nil {
			return nil, fmt.Errorf("layout: windmill %d: %w", i, err)
		}
		if def.Clockwise {
			speed = -speed
		}
		mill, err := obstacles.NewWindmill(w, obstacles.WindmillConfig{
			Pos:       def.Pos.Vec(),
			Speed:     speed,
			Arms:      def.Arms,
			ArmLength: def.ArmLength,
			ArmWidth:  def.ArmWidth,
			HubRadius: def.HubRadius,
			Color:     def.Color,
		})
		if err != nil {
			return nil, fmt.Errorf("layout: windmill %d: %w", i, err)
		}
		field.Windmills = append(field.Windmills, mill)
		field.Behaviors = append(field.Behaviors, mill)
	}

	for i, def := range doc.Seesaws {
		saw, err := obstacles.NewSeesaw(w, obstacles.SeesawConfig{
			Pos:           def.Pos.Vec(),
			HalfLength:    def.HalfLength,
			HalfThickness: def.HalfThick,
			Damping:       def.Damping,
			Color:         def.Color,
		})
		if err != nil {
			return nil, fmt.Errorf("layout: seesaw %d: %w", i, err)
		}
		field.Seesaws = append(field.Seesaws, saw)
		field.Behaviors = append(field.Behaviors, saw)
		for _, id := range saw.BodyIDs() {
			field.Handlers[id] = saw
		}
	}

	for i, def := range doc.Bumpers {
		bumper, err := obstacles.NewBumper(w, obstacles.BumperConfig{
			Pos:           def.Pos.Vec(),
			Radius:        def.Radius,
			Restitution:   def.Restitution,
			FlashBoost:    def.FlashBoost,
			BoostFactor:   def.BoostFactor,
			FlashDuration: def.FlashDuration,
			Color:         def.Color,
		})
		if err != nil {
			return nil, fmt.Errorf("layout: bumper %d: %w", i, err)
		}
		field.Bumpers = append(field.Bumpers, bumper)
		field.Behaviors = append(field.Behaviors, bumper)
		for _, id := range bumper.BodyIDs() {
			field.Handlers[id] = bumper
		}
	}

	for i, def := range doc.Spawners {
		spawner, err := obstacles.NewEventSpawner(obstacles.EventSpawnerConfig{
			Region: obstacles.SpawnRegion{
				MinX: def.Region.MinX,
				MaxX: def.Region.MaxX,
				MinY: def.Region.MinY,
				MaxY: def.Region.MaxY,
			},
			Interval:      def.Interval,
			Lifetime:      def.Lifetime,
			MaxPopulation: def.MaxPopulation,
			MinSize:       def.MinSize,
			MaxSize:       def.MaxSize,
		}, rng)
		if err != nil {
			return nil, fmt.Errorf("layout: spawner %d: %w", i, err)
		}
		field.Spawners = append(field.Spawners, spawner)
		field.Behaviors = append(field.Behaviors, spawner)
	}

	return field, nil
}
