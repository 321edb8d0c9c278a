package obstacles

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"

	"pinball-gacha/server/internal/physics"
)

// SpawnRegion bounds the area transient bodies appear in.
type SpawnRegion struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

// EventSpawnerConfig describes one timed generator of transient decorations.
type EventSpawnerConfig struct {
	Region        SpawnRegion
	Interval      float64
	Lifetime      float64
	MaxPopulation int
	MinSize       float64
	MaxSize       float64
	Restitution   float64
	Density       float64
}

var transientShapes = []string{"circle", "square", "triangle", "star"}

type transient struct {
	id  physics.BodyID
	age float64
}

// EventSpawner periodically drops a transient body at a seeded-random spot
// inside its region. Transients are evicted when their lifetime expires or
// when the population cap is reached, oldest first, so the world never grows
// without bound.
type EventSpawner struct {
	cfg   EventSpawnerConfig
	rng   *rand.Rand
	timer float64

	live []transient
}

// NewEventSpawner builds the behavior. The random source must be seeded by
// the caller; spawn positions and shapes are reproducible per seed.
func NewEventSpawner(cfg EventSpawnerConfig, rng *rand.Rand) (*EventSpawner, error) {
	if rng == nil {
		return nil, fmt.Errorf("event spawner requires a seeded random source")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2.0
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = 8.0
	}
	if cfg.MaxPopulation <= 0 {
		cfg.MaxPopulation = 12
	}
	if cfg.MinSize <= 0 {
		cfg.MinSize = 15
	}
	if cfg.MaxSize < cfg.MinSize {
		cfg.MaxSize = 25
	}
	if cfg.Restitution <= 0 {
		cfg.Restitution = 0.6
	}
	if cfg.Density <= 0 {
		cfg.Density = 1.5
	}
	return &EventSpawner{cfg: cfg, rng: rng, timer: cfg.Interval}, nil
}

// Update ages the population, evicts the expired, and spawns when the timer
// elapses.
func (s *EventSpawner) Update(w *physics.World, dt float64) error {
	for i := range s.live {
		s.live[i].age += dt
	}
	if err := s.evictExpired(w); err != nil {
		return err
	}

	s.timer -= dt
	for s.timer <= 0 {
		if err := s.spawn(w); err != nil {
			return err
		}
		s.timer += s.cfg.Interval
	}
	return nil
}

func (s *EventSpawner) evictExpired(w *physics.World) error {
	kept := s.live[:0]
	for _, tr := range s.live {
		if tr.age >= s.cfg.Lifetime {
			if err := w.Remove(tr.id); err != nil {
				return fmt.Errorf("evict transient %d: %w", tr.id, err)
			}
			continue
		}
		kept = append(kept, tr)
	}
	s.live = kept
	return nil
}

func (s *EventSpawner) spawn(w *physics.World) error {
	// Enforce the cap before adding: drop the oldest to make room.
	for len(s.live) >= s.cfg.MaxPopulation {
		oldest := s.live[0]
		if err := w.Remove(oldest.id); err != nil {
			return fmt.Errorf("evict transient %d at cap: %w", oldest.id, err)
		}
		s.live = s.live[1:]
	}

	size := s.cfg.MinSize + s.rng.Float64()*(s.cfg.MaxSize-s.cfg.MinSize)
	pos := mgl64.Vec2{
		s.cfg.Region.MinX + s.rng.Float64()*(s.cfg.Region.MaxX-s.cfg.Region.MinX),
		s.cfg.Region.MinY + s.rng.Float64()*(s.cfg.Region.MaxY-s.cfg.Region.MinY),
	}
	visual := transientShapes[s.rng.Intn(len(transientShapes))]
	color := neonColor(s.rng)

	id, err := w.Register(physics.BodyDescriptor{
		Kind:          physics.KindTransient,
		Shape:         physics.CircleShape(size / 2),
		Pos:           pos,
		Motion:        physics.MotionDynamic,
		Restitution:   s.cfg.Restitution,
		Density:       s.cfg.Density,
		LinearDamping: 0.1,
		OwnerTag:      "event_spawner",
		VisualTag:     visual,
		Color:         color,
	})
	if err != nil {
		return fmt.Errorf("spawn transient: %w", err)
	}
	s.live = append(s.live, transient{id: id})
	return nil
}

// Population reports the live transient count.
func (s *EventSpawner) Population() int {
	return len(s.live)
}

// BodyIDs lists the live transient bodies.
func (s *EventSpawner) BodyIDs() []physics.BodyID {
	ids := make([]physics.BodyID, 0, len(s.live))
	for _, tr := range s.live {
		ids = append(ids, tr.id)
	}
	return ids
}

// neonColor picks a saturated hue, matching the original machine's
// decorations.
func neonColor(rng *rand.Rand) string {
	h := rng.Float64() * 360
	r, g, b := hsvToRGB(h, 0.9, 1.0)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func hsvToRGB(h, s, v float64) (uint8, uint8, uint8) {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return uint8((r + m) * 255), uint8((g + m) * 255), uint8((b + m) * 255)
}

var _ Behavior = (*EventSpawner)(nil)
