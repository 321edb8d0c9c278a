package sim

import (
	"pinball-gacha/server/internal/gacha"
	"pinball-gacha/server/internal/ledger"
)

// Phase tracks where a session sits in its bounded lifetime.
type Phase string

const (
	// PhaseIdle means no session is running; configuration commands apply.
	PhaseIdle Phase = "idle"
	// PhaseRunning means balls are live and the pipeline is capturing exits.
	PhaseRunning Phase = "running"
	// PhaseSettled means the gacha result is sealed and frames only decay.
	PhaseSettled Phase = "settled"
	// PhaseFailed means an unrecoverable error aborted the session.
	PhaseFailed Phase = "failed"
)

// BallView mirrors one ball for rendering and the live order display.
type BallView struct {
	Name     string  `json:"name"`
	SpawnSeq int     `json:"spawnSeq"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	VX       float64 `json:"vx"`
	VY       float64 `json:"vy"`
	Exited   bool    `json:"exited"`
	// ExitSeq is -1 while the ball is in play.
	ExitSeq int `json:"exitSeq"`
}

// ObstacleView mirrors one non-ball body. Radius is set for circles, the
// half extents for boxes. Flash carries the bumper pulse as a 0..1 fraction.
type ObstacleView struct {
	ID        uint64  `json:"id"`
	Kind      string  `json:"kind"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Angle     float64 `json:"angle"`
	Radius    float64 `json:"radius,omitempty"`
	HalfW     float64 `json:"halfW,omitempty"`
	HalfH     float64 `json:"halfH,omitempty"`
	Color     string  `json:"color,omitempty"`
	VisualTag string  `json:"visualTag,omitempty"`
	Sensor    bool    `json:"sensor,omitempty"`
	Flash     float64 `json:"flash,omitempty"`
}

// ConfigView echoes the immutable session configuration for clients.
type ConfigView struct {
	Policy    ledger.Policy `json:"policy"`
	Trigger   gacha.Trigger `json:"trigger"`
	DrawCount int           `json:"drawCount"`
	Seed      int64         `json:"seed"`
	MaxFrames uint64        `json:"maxFrames"`
	Layout    string        `json:"layout"`
}

// Snapshot captures the state exposed to non-simulation callers once per
// tick: enough for rendering, the live arrival board, and the sealed result.
type Snapshot struct {
	Session   string           `json:"session,omitempty"`
	Phase     Phase            `json:"phase"`
	Tick      uint64           `json:"tick"`
	Frame     uint64           `json:"frame"`
	Spawned   int              `json:"spawned"`
	InPlay    int              `json:"inPlay"`
	Balls     []BallView       `json:"balls,omitempty"`
	Obstacles []ObstacleView   `json:"obstacles,omitempty"`
	Arrivals  []ledger.Arrival `json:"arrivals,omitempty"`
	// LiveOrder ranks the arrivals so far under the active policy.
	LiveOrder []ledger.BallRef `json:"liveOrder,omitempty"`
	Result    *gacha.Result `json:"result,omitempty"`
	Config    ConfigView    `json:"config"`
	// FailureReason is set when Phase is failed.
	FailureReason string `json:"failureReason,omitempty"`
}
