package sim

import (
	"math/rand"

	"pinball-gacha/server/internal/telemetry"
	"pinball-gacha/server/logging"
)

// Deps carries shared infrastructure dependencies required by the session
// engine and the loop that drives it.
type Deps struct {
	Logger    telemetry.Logger
	Metrics   *telemetry.Counters
	Clock     logging.Clock
	Publisher logging.Publisher
	RNG       *rand.Rand
}
