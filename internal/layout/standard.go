package layout

import (
	"pinball-gacha/server/internal/obstacles"
	"pinball-gacha/server/internal/physics"
)

// pinLevels skews the pin field toward soft studs with an occasional
// energetic one, indexed by a deterministic hash of the grid position.
var pinLevels = [10]int{1, 1, 1, 1, 2, 2, 2, 3, 4, 5}

// StandardLayout returns the built-in 500x800 machine: walled field with a
// center chute, a staggered pin grid, three windmills, two bumpers, a seesaw
// over the chute, and a transient spawner above the pin field.
func StandardLayout() Document {
	doc := Document{
		Version: Version,
		Name:    "standard",
		Bounds:  physics.Bounds{Width: 500, Height: 800, GoalY: -350, KillMargin: 100},
		Walls: []Wall{
			// Side walls and roof.
			{Pos: physics.Vec2JSON{X: -246, Y: 0}, HalfW: 4, HalfH: 400},
			{Pos: physics.Vec2JSON{X: 246, Y: 0}, HalfW: 4, HalfH: 400},
			{Pos: physics.Vec2JSON{X: 0, Y: 396}, HalfW: 250, HalfH: 4},
			// Floor segments leave a 120-wide chute in the middle.
			{Pos: physics.Vec2JSON{X: -155, Y: -396}, HalfW: 95, HalfH: 4},
			{Pos: physics.Vec2JSON{X: 155, Y: -396}, HalfW: 95, HalfH: 4},
			// Chute guides.
			{Pos: physics.Vec2JSON{X: -60, Y: -372}, HalfW: 4, HalfH: 28},
			{Pos: physics.Vec2JSON{X: 60, Y: -372}, HalfW: 4, HalfH: 28},
			// Funnel planks angled toward the chute.
			{Pos: physics.Vec2JSON{X: -145, Y: -300}, HalfW: 90, HalfH: 4, AngleDeg: -35},
			{Pos: physics.Vec2JSON{X: 145, Y: -300}, HalfW: 90, HalfH: 4, AngleDeg: 35},
		},
		Deflectors: []Deflector{
			{Pos: physics.Vec2JSON{X: -170, Y: -40}, HalfLength: 40, AngleDeg: 30, Elasticity: 4, Color: "#ff8a65"},
			{Pos: physics.Vec2JSON{X: 170, Y: -120}, HalfLength: 40, AngleDeg: -30, Elasticity: 4, Color: "#ff8a65"},
		},
		Windmills: []WindmillDef{
			{Pos: physics.Vec2JSON{X: 0, Y: 60}, Speed: obstacles.SpeedNormal, Arms: 2, ArmLength: 55, Color: "#4fc3f7"},
			{Pos: physics.Vec2JSON{X: -130, Y: 160}, Speed: obstacles.SpeedSlow, Clockwise: true, Arms: 2, ArmLength: 45, Color: "#4fc3f7"},
			{Pos: physics.Vec2JSON{X: 130, Y: -60}, Speed: obstacles.SpeedFast, Arms: 2, ArmLength: 45, Color: "#4fc3f7"},
		},
		Seesaws: []SeesawDef{
			{Pos: physics.Vec2JSON{X: 0, Y: -290}, HalfLength: 55, HalfThick: 4, Damping: 0.5, Color: "#ba68c8"},
		},
		Bumpers: []BumperDef{
			{Pos: physics.Vec2JSON{X: -90, Y: -240}, Radius: 14, Restitution: 1.0, FlashBoost: 1.5, BoostFactor: 1.2, FlashDuration: 0.25, Color: "#ffd54f"},
			{Pos: physics.Vec2JSON{X: 90, Y: -240}, Radius: 14, Restitution: 1.0, FlashBoost: 1.5, BoostFactor: 1.2, FlashDuration: 0.25, Color: "#ffd54f"},
		},
		Spawners: []SpawnerDef{
			{
				Region:        Region{MinX: -200, MaxX: 200, MinY: 260, MaxY: 330},
				Interval:      2.5,
				Lifetime:      8,
				MaxPopulation: 10,
				MinSize:       15,
				MaxSize:       25,
			},
		},
		Goal: &Goal{Pos: physics.Vec2JSON{X: 0, Y: -380}, HalfW: 56, HalfH: 16},
	}
	doc.Pins = standardPins(doc)
	return doc.Normalized()
}

// standardPins lays a staggered grid between the funnel and the spawner
// band, skipping positions that would crowd a moving obstacle.
func standardPins(doc Document) []Pin {
	var pins []Pin
	row := 0
	for y := -180.0; y <= 220; y += 40 {
		xs := []float64{-180, -120, -60, 0, 60, 120, 180}
		if row%2 == 1 {
			xs = []float64{-150, -90, -30, 30, 90, 150}
		}
		for col, x := range xs {
			if tooCloseToObstacle(doc, x, y) {
				continue
			}
			level := pinLevels[(row*7+col*3)%len(pinLevels)]
			pins = append(pins, Pin{
				Pos:        physics.Vec2JSON{X: x, Y: y},
				Radius:     5,
				Elasticity: level,
			})
		}
		row++
	}
	return pins
}

func tooCloseToObstacle(doc Document, x, y float64) bool {
	for _, mill := range doc.Windmills {
		clearance := mill.ArmLength + 25
		if clearance < 70 {
			clearance = 70
		}
		if sqDist(x, y, mill.Pos.X, mill.Pos.Y) < clearance*clearance {
			return true
		}
	}
	for _, bumper := range doc.Bumpers {
		if sqDist(x, y, bumper.Pos.X, bumper.Pos.Y) < 40*40 {
			return true
		}
	}
	for _, def := range doc.Deflectors {
		clearance := def.HalfLength + 20
		if sqDist(x, y, def.Pos.X, def.Pos.Y) < clearance*clearance {
			return true
		}
	}
	return false
}

func sqDist(ax, ay, bx, by float64) float64 {
	dx, dy := ax-bx, ay-by
	return dx*dx + dy*dy
}
