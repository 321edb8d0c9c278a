package session

import (
	"strings"

	"pinball-gacha/server/internal/gacha"
	"pinball-gacha/server/internal/layout"
	"pinball-gacha/server/internal/ledger"
	"pinball-gacha/server/internal/physics"
)

// Ball physical constants. The standard machine is tuned around these; a
// layout can reshape the field but not the balls.
const (
	ballRadius      = 8.0
	ballRestitution = 0.7
	ballFriction    = 0.0
	ballDensity     = 1.0
	ballDamping     = 0.1

	// Balls drop in a band across the top of the field: x jittered inside
	// ±spawnHalfSpan, y a fixed distance below the roof.
	spawnHalfSpan = 100.0
	spawnDrop     = 20.0
)

// ballPalette colors participant balls in spawn order.
var ballPalette = []string{
	"#ff5252", "#ffb142", "#fffa65", "#32ff7e", "#18dcff",
	"#7d5fff", "#ff4d94", "#c56cf0", "#3ae374", "#67e6dc",
}

// Config is the session configuration surface. It is editable between
// sessions and sealed when a start command applies it; configuration
// commands arriving mid-session are rejected.
type Config struct {
	Policy    ledger.Policy
	Trigger   gacha.Trigger
	DrawCount int

	// Seed feeds the deterministic RNG hierarchy. Zero picks a fresh seed
	// when the session starts.
	Seed int64

	// MaxFrames is the stall-safety cap: a session still unresolved after
	// this many frames has its trigger forced. Zero disables the cap.
	MaxFrames uint64

	// SpawnEveryTicks staggers ball spawns so participants do not overlap
	// at birth.
	SpawnEveryTicks int

	// MaxParticipants truncates oversized rosters at start.
	MaxParticipants int

	// Layout overrides the standard machine when set.
	Layout *layout.Document

	// Tuning overrides the physics solver settings. It wins over the layout
	// document's own tuning block.
	Tuning *physics.Tuning
}

// DefaultConfig is the out-of-the-box setup: first-in policy, resolve once
// every ball has exited, draw one winner, force the trigger after two
// minutes of frames.
func DefaultConfig() Config {
	return Config{
		Policy:          ledger.FirstIn,
		Trigger:         gacha.Trigger{Kind: gacha.TriggerAllExited},
		DrawCount:       1,
		MaxFrames:       7200,
		SpawnEveryTicks: 3,
		MaxParticipants: 40,
	}
}

// normalized clamps the tunables into their working ranges.
func (c Config) normalized() Config {
	if !c.Policy.Valid() {
		c.Policy = ledger.FirstIn
	}
	if c.Trigger.Kind == "" {
		c.Trigger.Kind = gacha.TriggerAllExited
	}
	if c.Trigger.Kind == gacha.TriggerQuotaReached && c.Trigger.Quota < 1 {
		c.Trigger.Quota = 1
	}
	if c.DrawCount < 1 {
		c.DrawCount = 1
	}
	if c.SpawnEveryTicks < 1 {
		c.SpawnEveryTicks = 3
	}
	if c.MaxParticipants < 1 {
		c.MaxParticipants = 40
	}
	return c
}

// ParseParticipants splits raw roster input into ball names: one name per
// line or comma-separated, whitespace trimmed, empties dropped. Repeated
// names are allowed; each occurrence gets its own ball.
func ParseParticipants(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ','
	})
	return cleanNames(fields)
}

// cleanNames trims a pre-split roster, dropping blank entries.
func cleanNames(raw []string) []string {
	names := make([]string, 0, len(raw))
	for _, field := range raw {
		if name := strings.TrimSpace(field); name != "" {
			names = append(names, name)
		}
	}
	return names
}
