package physics

import "github.com/go-gl/mathgl/mgl64"

// MixRule selects how restitution and friction combine when two bodies touch.
// The rule is fixed per world so trajectories are reproducible for a seed.
type MixRule string

const (
	MixMin      MixRule = "min"
	MixMax      MixRule = "max"
	MixMultiply MixRule = "multiply"
	MixAverage  MixRule = "average"
)

func (r MixRule) combine(a, b float64) float64 {
	switch r {
	case MixMin:
		if a < b {
			return a
		}
		return b
	case MixMax:
		if a > b {
			return a
		}
		return b
	case MixMultiply:
		return a * b
	default:
		return (a + b) / 2
	}
}

func (r MixRule) valid() bool {
	switch r {
	case MixMin, MixMax, MixMultiply, MixAverage:
		return true
	}
	return false
}

// Tuning carries the numeric knobs of the solver. Values are gameplay
// configuration, not engine constants: they must round-trip through session
// configuration unchanged.
type Tuning struct {
	Gravity           Vec2JSON `json:"gravity" yaml:"gravity"`
	MaxSpeed          float64  `json:"maxSpeed" yaml:"maxSpeed"`
	RestitutionMix    MixRule  `json:"restitutionMix" yaml:"restitutionMix"`
	FrictionMix       MixRule  `json:"frictionMix" yaml:"frictionMix"`
	Substeps          int      `json:"substeps" yaml:"substeps"`
	CorrectionPercent float64  `json:"correctionPercent" yaml:"correctionPercent"`
	CorrectionSlop    float64  `json:"correctionSlop" yaml:"correctionSlop"`
	// BumperBoostCap bounds any scripted bumper kick so energy injection
	// can never outrun the speed clamp.
	BumperBoostCap float64 `json:"bumperBoostCap" yaml:"bumperBoostCap"`
}

// Vec2JSON is a serializable vector for configuration surfaces.
type Vec2JSON struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Vec converts to the solver's vector type.
func (v Vec2JSON) Vec() mgl64.Vec2 {
	return mgl64.Vec2{v.X, v.Y}
}

// DefaultTuning returns the standard machine feel: pixel-scale gravity, the
// original speed clamp, and averaged material mixing.
func DefaultTuning() Tuning {
	return Tuning{
		Gravity:           Vec2JSON{X: 0, Y: -981},
		MaxSpeed:          3000,
		RestitutionMix:    MixAverage,
		FrictionMix:       MixAverage,
		Substeps:          4,
		CorrectionPercent: 0.4,
		CorrectionSlop:    0.005,
		BumperBoostCap:    900,
	}
}

// Normalized clamps out-of-range values back to safe defaults.
func (t Tuning) Normalized() Tuning {
	def := DefaultTuning()
	if t.Gravity == (Vec2JSON{}) {
		t.Gravity = def.Gravity
	}
	if !isFinite(t.MaxSpeed) || t.MaxSpeed <= 0 {
		t.MaxSpeed = def.MaxSpeed
	}
	if !t.RestitutionMix.valid() {
		t.RestitutionMix = def.RestitutionMix
	}
	if !t.FrictionMix.valid() {
		t.FrictionMix = def.FrictionMix
	}
	if t.Substeps < 1 {
		t.Substeps = def.Substeps
	}
	if t.Substeps > 16 {
		t.Substeps = 16
	}
	if !isFinite(t.CorrectionPercent) || t.CorrectionPercent <= 0 || t.CorrectionPercent > 1 {
		t.CorrectionPercent = def.CorrectionPercent
	}
	if !isFinite(t.CorrectionSlop) || t.CorrectionSlop < 0 {
		t.CorrectionSlop = def.CorrectionSlop
	}
	if !isFinite(t.BumperBoostCap) || t.BumperBoostCap <= 0 {
		t.BumperBoostCap = def.BumperBoostCap
	}
	return t
}
