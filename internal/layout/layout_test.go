package layout

import (
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pinball-gacha/server/internal/obstacles"
	"pinball-gacha/server/internal/physics"
)

func TestStandardLayoutValidates(t *testing.T) {
	doc := StandardLayout()
	if err := doc.Validate(); err != nil {
		t.Fatalf("standard layout failed validation: %v", err)
	}
	if len(doc.Pins) == 0 {
		t.Fatalf("standard layout has no pins")
	}
	if doc.Goal == nil {
		t.Fatalf("standard layout has no goal sensor")
	}

	// Pins must keep clear of the windmill sweep.
	for _, pin := range doc.Pins {
		for _, mill := range doc.Windmills {
			clearance := mill.ArmLength + 25
			if clearance < 70 {
				clearance = 70
			}
			if sqDist(pin.Pos.X, pin.Pos.Y, mill.Pos.X, mill.Pos.Y) < clearance*clearance {
				t.Fatalf("pin at (%v,%v) crowds the windmill at (%v,%v)", pin.Pos.X, pin.Pos.Y, mill.Pos.X, mill.Pos.Y)
			}
		}
	}
}

func TestRestitutionLevels(t *testing.T) {
	wants := map[int]float64{1: 0.8, 2: 1.0, 3: 1.5, 4: 2.0, 5: 3.0}
	for level, want := range wants {
		got, err := Restitution(level)
		if err != nil {
			t.Fatalf("Restitution(%d): %v", level, err)
		}
		if got != want {
			t.Fatalf("Restitution(%d) = %v, want %v", level, got, want)
		}
	}
	for _, level := range []int{0, 6, -1} {
		if _, err := Restitution(level); err == nil {
			t.Fatalf("Restitution(%d) should fail", level)
		}
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	data := []byte(`
version: 1
name: minimal
pins:
  - pos: {x: 0, y: 100}
    elasticity: 2
walls:
  - pos: {x: 0, y: -396}
    halfW: 250
    halfH: 4
`)
	doc, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Pins[0].Radius != 5 {
		t.Fatalf("pin radius default = %v, want 5", doc.Pins[0].Radius)
	}
	if doc.Walls[0].Restitution != 0.5 {
		t.Fatalf("wall restitution default = %v, want 0.5", doc.Walls[0].Restitution)
	}
	if doc.Bounds.Width != 500 || doc.Bounds.Height != 800 {
		t.Fatalf("bounds default = %+v, want the standard field", doc.Bounds)
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"bad elasticity", "version: 1\nname: m\npins:\n  - pos: {x: 0, y: 0}\n    elasticity: 9\n"},
		{"missing name", "version: 1\npins: []\n"},
		{"unknown windmill speed", "version: 1\nname: m\nwindmills:\n  - pos: {x: 0, y: 0}\n    speed: warp\n"},
		{"empty spawner region", "version: 1\nname: m\nspawners:\n  - region: {minX: 10, maxX: 10, minY: 0, maxY: 5}\n"},
		{"future version", "version: 99\nname: m\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.data)); err == nil {
				t.Fatalf("expected %s to be rejected", tc.name)
			}
		})
	}
}

func TestLoadFallsBackToStandard(t *testing.T) {
	doc, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if doc.Name != "standard" {
		t.Fatalf("empty path should load the standard machine, got %q", doc.Name)
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine.yaml")
	data := []byte("version: 1\nname: custom\nbumpers:\n  - pos: {x: 10, y: -200}\n    radius: 12\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Name != "custom" {
		t.Fatalf("name = %q, want custom", doc.Name)
	}
	if len(doc.Bumpers) != 1 || doc.Bumpers[0].Radius != 12 {
		t.Fatalf("bumpers did not survive the round trip: %+v", doc.Bumpers)
	}
}

func TestBuildRegistersMachine(t *testing.T) {
	doc := StandardLayout()
	w := physics.NewWorld(physics.DefaultTuning(), doc.Bounds)
	field, err := Build(w, doc, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantStatics := len(doc.Walls) + len(doc.Pins) + len(doc.Deflectors)
	if len(field.StaticIDs) != wantStatics {
		t.Fatalf("registered %d static bodies, want %d", len(field.StaticIDs), wantStatics)
	}
	if field.GoalID == 0 {
		t.Fatalf("goal sensor was not registered")
	}
	goal, err := w.View(field.GoalID)
	if err != nil {
		t.Fatalf("view goal: %v", err)
	}
	if !goal.Sensor || goal.Kind != physics.KindGoalSensor {
		t.Fatalf("goal body = %+v, want a goal sensor", goal)
	}

	if len(field.Windmills) != len(doc.Windmills) {
		t.Fatalf("built %d windmills, want %d", len(field.Windmills), len(doc.Windmills))
	}
	if len(field.Spawners) != len(doc.Spawners) {
		t.Fatalf("built %d spawners, want %d", len(field.Spawners), len(doc.Spawners))
	}

	// Every bumper and seesaw body must route its contacts somewhere.
	handlers := 0
	for _, bumper := range field.Bumpers {
		for _, id := range bumper.BodyIDs() {
			if field.Handlers[id] == nil {
				t.Fatalf("bumper body %d has no contact handler", id)
			}
			handlers++
		}
	}
	for _, saw := range field.Seesaws {
		for _, id := range saw.BodyIDs() {
			if field.Handlers[id] == nil {
				t.Fatalf("seesaw body %d has no contact handler", id)
			}
			handlers++
		}
	}
	if handlers != len(field.Handlers) {
		t.Fatalf("handler table holds %d entries, want %d", len(field.Handlers), handlers)
	}

	// Clockwise windmills must spin negative.
	for i, def := range doc.Windmills {
		view, err := w.View(field.Windmills[i].BodyIDs()[1])
		if err != nil {
			t.Fatalf("view windmill arm: %v", err)
		}
		if def.Clockwise && view.AngularVel >= 0 {
			t.Fatalf("windmill %d should spin clockwise, angular velocity %v", i, view.AngularVel)
		}
		if !def.Clockwise && view.AngularVel <= 0 {
			t.Fatalf("windmill %d should spin counterclockwise, angular velocity %v", i, view.AngularVel)
		}
	}
}

func TestSchemaValidatesDocuments(t *testing.T) {
	schemaJSON, err := json.MarshalIndent(Schema(), "", "  ")
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	path := filepath.Join(t.TempDir(), "layout.schema.json")
	if err := os.WriteFile(path, schemaJSON, 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	schema, err := CompileSchema(path)
	if err != nil {
		t.Fatalf("CompileSchema: %v", err)
	}

	if err := ValidateAgainstSchema(StandardLayout(), schema); err != nil {
		t.Fatalf("standard layout should satisfy its own schema: %v", err)
	}

	bad := StandardLayout()
	bad.Pins = []Pin{{Pos: physics.Vec2JSON{X: 0, Y: 0}, Radius: 5, Elasticity: 9}}
	err = ValidateAgainstSchema(bad, schema)
	if err == nil {
		t.Fatalf("elasticity 9 should violate the schema")
	}
	if !strings.Contains(err.Error(), "schema violation") {
		t.Fatalf("unexpected error shape: %v", err)
	}
}

func TestBundledSchemaCompiles(t *testing.T) {
	data, err := SchemaJSON()
	if err != nil {
		t.Fatalf("SchemaJSON: %v", err)
	}
	if !strings.Contains(string(data), "Pinball Machine Layout") {
		t.Fatalf("schema document lost its title")
	}

	schema, err := bundledSchema()
	if err != nil {
		t.Fatalf("bundledSchema: %v", err)
	}
	if err := ValidateAgainstSchema(StandardLayout(), schema); err != nil {
		t.Fatalf("standard layout should satisfy the bundled schema: %v", err)
	}
}

func TestBuildHonorsSpeedLevels(t *testing.T) {
	w := physics.NewWorld(physics.DefaultTuning(), physics.DefaultBounds())
	doc := Document{
		Version: Version,
		Name:    "speeds",
		Windmills: []WindmillDef{
			{Pos: physics.Vec2JSON{X: 0, Y: 0}, Speed: obstacles.SpeedFast, Arms: 1},
		},
	}.Normalized()
	field, err := Build(w, doc, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	arm := field.Windmills[0].BodyIDs()[1]
	view, err := w.View(arm)
	if err != nil {
		t.Fatalf("view arm: %v", err)
	}
	if view.AngularVel != 5.0 {
		t.Fatalf("fast windmill angular velocity = %v, want 5.0", view.AngularVel)
	}
}
