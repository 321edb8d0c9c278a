// Package layout defines the designer-authored machine description: bounds,
// walls, pins, moving obstacles, spawners, and the goal sensor. Documents are
// authored in YAML, validated against a generated JSON schema, and built into
// a physics world plus the behaviors that drive it.
package layout

import (
	"fmt"
	"strings"

	"pinball-gacha/server/internal/obstacles"
	"pinball-gacha/server/internal/physics"
)

// Version is the document revision this package reads and writes.
const Version = 1

// elasticity maps a designer-facing level to a restitution coefficient. The
// values come from the standard machine: level 3 and up inject energy.
var elasticity = map[int]float64{
	1: 0.8,
	2: 1.0,
	3: 1.5,
	4: 2.0,
	5: 3.0,
}

// Restitution resolves an elasticity level. Levels outside 1..5 are invalid.
func Restitution(level int) (float64, error) {
	r, ok := elasticity[level]
	if !ok {
		return 0, fmt.Errorf("layout: elasticity level %d outside 1..5", level)
	}
	return r, nil
}

// Document is the full machine description as it appears on disk.
type Document struct {
	Version    int              `json:"version" yaml:"version" jsonschema:"title=Document version,minimum=1,required"`
	Name       string           `json:"name" yaml:"name" jsonschema:"title=Machine name,minLength=1,required"`
	Bounds     physics.Bounds   `json:"bounds" yaml:"bounds" jsonschema:"title=Play-field bounds"`
	Tuning     *physics.Tuning  `json:"tuning,omitempty" yaml:"tuning,omitempty" jsonschema:"title=Solver tuning overrides"`
	Walls      []Wall           `json:"walls,omitempty" yaml:"walls,omitempty"`
	Pins       []Pin            `json:"pins,omitempty" yaml:"pins,omitempty"`
	Deflectors []Deflector      `json:"deflectors,omitempty" yaml:"deflectors,omitempty"`
	Windmills  []WindmillDef    `json:"windmills,omitempty" yaml:"windmills,omitempty"`
	Seesaws    []SeesawDef      `json:"seesaws,omitempty" yaml:"seesaws,omitempty"`
	Bumpers    []BumperDef      `json:"bumpers,omitempty" yaml:"bumpers,omitempty"`
	Spawners   []SpawnerDef     `json:"spawners,omitempty" yaml:"spawners,omitempty"`
	Goal       *Goal            `json:"goal,omitempty" yaml:"goal,omitempty" jsonschema:"title=Goal sensor"`
}

// Wall is a static box, optionally rotated. Angles are authored in degrees.
type Wall struct {
	Pos         physics.Vec2JSON `json:"pos" yaml:"pos" jsonschema:"required"`
	HalfW       float64          `json:"halfW" yaml:"halfW" jsonschema:"exclusiveMinimum=0,required"`
	HalfH       float64          `json:"halfH" yaml:"halfH" jsonschema:"exclusiveMinimum=0,required"`
	AngleDeg    float64          `json:"angleDeg,omitempty" yaml:"angleDeg,omitempty"`
	Restitution float64          `json:"restitution,omitempty" yaml:"restitution,omitempty" jsonschema:"minimum=0"`
}

// Pin is a fixed stud the balls carom off.
type Pin struct {
	Pos        physics.Vec2JSON `json:"pos" yaml:"pos" jsonschema:"required"`
	Radius     float64          `json:"radius,omitempty" yaml:"radius,omitempty" jsonschema:"minimum=0"`
	Elasticity int              `json:"elasticity" yaml:"elasticity" jsonschema:"minimum=1,maximum=5,required"`
}

// Deflector is an angled static box with a pin-style elasticity level.
type Deflector struct {
	Pos        physics.Vec2JSON `json:"pos" yaml:"pos" jsonschema:"required"`
	HalfLength float64          `json:"halfLength" yaml:"halfLength" jsonschema:"exclusiveMinimum=0,required"`
	HalfThick  float64          `json:"halfThick,omitempty" yaml:"halfThick,omitempty" jsonschema:"minimum=0"`
	AngleDeg   float64          `json:"angleDeg" yaml:"angleDeg" jsonschema:"required"`
	Elasticity int              `json:"elasticity" yaml:"elasticity" jsonschema:"minimum=1,maximum=5,required"`
	Color      string           `json:"color,omitempty" yaml:"color,omitempty"`
}

// WindmillDef places one rotating windmill.
type WindmillDef struct {
	Pos       physics.Vec2JSON    `json:"pos" yaml:"pos" jsonschema:"required"`
	Speed     obstacles.SpeedLevel `json:"speed" yaml:"speed" jsonschema:"enum=slow,enum=normal,enum=fast,required"`
	Clockwise bool                `json:"clockwise,omitempty" yaml:"clockwise,omitempty"`
	Arms      int                 `json:"arms,omitempty" yaml:"arms,omitempty" jsonschema:"minimum=1,maximum=4"`
	ArmLength float64             `json:"armLength,omitempty" yaml:"armLength,omitempty" jsonschema:"minimum=0"`
	ArmWidth  float64             `json:"armWidth,omitempty" yaml:"armWidth,omitempty" jsonschema:"minimum=0"`
	HubRadius float64             `json:"hubRadius,omitempty" yaml:"hubRadius,omitempty" jsonschema:"minimum=0"`
	Color     string              `json:"color,omitempty" yaml:"color,omitempty"`
}

// SeesawDef places one free-tilting plank.
type SeesawDef struct {
	Pos       physics.Vec2JSON `json:"pos" yaml:"pos" jsonschema:"required"`
	HalfLength float64         `json:"halfLength,omitempty" yaml:"halfLength,omitempty" jsonschema:"minimum=0"`
	HalfThick  float64         `json:"halfThick,omitempty" yaml:"halfThick,omitempty" jsonschema:"minimum=0"`
	Damping    float64         `json:"damping,omitempty" yaml:"damping,omitempty" jsonschema:"minimum=0"`
	Color      string          `json:"color,omitempty" yaml:"color,omitempty"`
}

// BumperDef places one pulsing bumper.
type BumperDef struct {
	Pos           physics.Vec2JSON `json:"pos" yaml:"pos" jsonschema:"required"`
	Radius        float64          `json:"radius,omitempty" yaml:"radius,omitempty" jsonschema:"minimum=0"`
	Restitution   float64          `json:"restitution,omitempty" yaml:"restitution,omitempty" jsonschema:"minimum=0"`
	FlashBoost    float64          `json:"flashBoost,omitempty" yaml:"flashBoost,omitempty" jsonschema:"minimum=0"`
	BoostFactor   float64          `json:"boostFactor,omitempty" yaml:"boostFactor,omitempty" jsonschema:"title=Kick scale over approach speed,minimum=0"`
	FlashDuration float64          `json:"flashDuration,omitempty" yaml:"flashDuration,omitempty" jsonschema:"minimum=0"`
	Color         string           `json:"color,omitempty" yaml:"color,omitempty"`
}

// SpawnerDef places one transient-shape generator.
type SpawnerDef struct {
	Region        Region  `json:"region" yaml:"region" jsonschema:"required"`
	Interval      float64 `json:"interval,omitempty" yaml:"interval,omitempty" jsonschema:"minimum=0"`
	Lifetime      float64 `json:"lifetime,omitempty" yaml:"lifetime,omitempty" jsonschema:"minimum=0"`
	MaxPopulation int     `json:"maxPopulation,omitempty" yaml:"maxPopulation,omitempty" jsonschema:"minimum=1"`
	MinSize       float64 `json:"minSize,omitempty" yaml:"minSize,omitempty" jsonschema:"minimum=0"`
	MaxSize       float64 `json:"maxSize,omitempty" yaml:"maxSize,omitempty" jsonschema:"minimum=0"`
}

// Region is an axis-aligned rectangle in world coordinates.
type Region struct {
	MinX float64 `json:"minX" yaml:"minX" jsonschema:"required"`
	MaxX float64 `json:"maxX" yaml:"maxX" jsonschema:"required"`
	MinY float64 `json:"minY" yaml:"minY" jsonschema:"required"`
	MaxY float64 `json:"maxY" yaml:"maxY" jsonschema:"required"`
}

// Goal is the sensor box balls must reach. The world's goal band catches
// anything the sensor misses.
type Goal struct {
	Pos   physics.Vec2JSON `json:"pos" yaml:"pos" jsonschema:"required"`
	HalfW float64          `json:"halfW" yaml:"halfW" jsonschema:"exclusiveMinimum=0,required"`
	HalfH float64          `json:"halfH" yaml:"halfH" jsonschema:"exclusiveMinimum=0,required"`
}

// Normalized fills defaults so downstream code never sees zero values where
// the machine expects the standard dimensions.
func (d Document) Normalized() Document {
	if d.Version == 0 {
		d.Version = Version
	}
	d.Bounds = d.Bounds.Normalized()
	for i := range d.Pins {
		if d.Pins[i].Radius <= 0 {
			d.Pins[i].Radius = 5
		}
	}
	for i := range d.Walls {
		if d.Walls[i].Restitution <= 0 {
			d.Walls[i].Restitution = 0.5
		}
	}
	for i := range d.Deflectors {
		if d.Deflectors[i].HalfThick <= 0 {
			d.Deflectors[i].HalfThick = 4
		}
	}
	return d
}

// Validate reports the first structural problem in the document. Defaults
// are assumed to be filled in already; call Normalized first.
func (d Document) Validate() error {
	if d.Version != Version {
		return fmt.Errorf("layout: unsupported document version %d, want %d", d.Version, Version)
	}
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("layout: document missing name")
	}
	for i, pin := range d.Pins {
		if pin.Radius <= 0 {
			return fmt.Errorf("layout: pin %d has non-positive radius %v", i, pin.Radius)
		}
		if _, err := Restitution(pin.Elasticity); err != nil {
			return fmt.Errorf("layout: pin %d: %w", i, err)
		}
	}
	for i, wall := range d.Walls {
		if wall.HalfW <= 0 || wall.HalfH <= 0 {
			return fmt.Errorf("layout: wall %d has degenerate extents %vx%v", i, wall.HalfW, wall.HalfH)
		}
	}
	for i, def := range d.Deflectors {
		if def.HalfLength <= 0 {
			return fmt.Errorf("layout: deflector %d has non-positive length", i)
		}
		if _, err := Restitution(def.Elasticity); err != nil {
			return fmt.Errorf("layout: deflector %d: %w", i, err)
		}
	}
	for i, mill := range d.Windmills {
		if _, err := mill.Speed.AngularSpeed(); err != nil {
			return fmt.Errorf("layout: windmill %d: %w", i, err)
		}
		if mill.Arms < 0 || mill.Arms > 4 {
			return fmt.Errorf("layout: windmill %d has %d arms, want 1..4", i, mill.Arms)
		}
	}
	for i, sp := range d.Spawners {
		if sp.Region.MaxX <= sp.Region.MinX || sp.Region.MaxY <= sp.Region.MinY {
			return fmt.Errorf("layout: spawner %d has an empty region", i)
		}
		if sp.MaxSize > 0 && sp.MaxSize < sp.MinSize {
			return fmt.Errorf("layout: spawner %d has maxSize below minSize", i)
		}
	}
	if d.Goal != nil {
		if d.Goal.HalfW <= 0 || d.Goal.HalfH <= 0 {
			return fmt.Errorf("layout: goal sensor has degenerate extents")
		}
	}
	return nil
}
