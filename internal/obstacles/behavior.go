// Package obstacles implements the per-frame logic for the closed set of
// dynamic play-field obstacles: windmills rotate, bumpers pulse, seesaws
// tilt, and event spawners emit transient decorations. Each behavior owns
// the bodies it registered; nothing else writes their transforms.
package obstacles

import (
	"math"

	"pinball-gacha/server/internal/physics"
)

// Behavior is the per-frame update hook shared by every obstacle.
type Behavior interface {
	// Update advances the obstacle by dt seconds, writing body transforms
	// through the world it registered them with.
	Update(w *physics.World, dt float64) error
	// BodyIDs lists the bodies this behavior owns, for contact routing.
	BodyIDs() []physics.BodyID
}

// ContactHandler marks behaviors that react to contacts involving their
// bodies. The session routes each ContactEvent to the owner of the struck
// body.
type ContactHandler interface {
	Behavior
	OnContact(w *physics.World, ev physics.ContactEvent) error
}

// wrapAngle normalizes an angle into [0, 2π).
func wrapAngle(angle float64) float64 {
	wrapped := math.Mod(angle, 2*math.Pi)
	if wrapped < 0 {
		wrapped += 2 * math.Pi
	}
	return wrapped
}
