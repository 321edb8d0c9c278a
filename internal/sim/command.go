package sim

import (
	"time"

	"pinball-gacha/server/internal/gacha"
	"pinball-gacha/server/internal/ledger"
)

// CommandType enumerates the supported session commands.
type CommandType string

const (
	// CommandStart begins a session with the staged configuration.
	CommandStart CommandType = "Start"
	// CommandSetPolicy stages the gacha query policy for the next session.
	CommandSetPolicy CommandType = "SetPolicy"
	// CommandSetTrigger stages the resolution trigger for the next session.
	CommandSetTrigger CommandType = "SetTrigger"
	// CommandSetDrawCount stages the draw count K for the next session.
	CommandSetDrawCount CommandType = "SetDrawCount"
	// CommandReset discards the running session and returns to idle.
	CommandReset CommandType = "Reset"
)

// StartCommand carries the participant roster and an optional seed override.
type StartCommand struct {
	Participants []string `json:"participants"`
	Seed         *int64   `json:"seed,omitempty"`
}

// SetPolicyCommand stages a ledger query policy.
type SetPolicyCommand struct {
	Policy ledger.Policy `json:"policy"`
}

// SetTriggerCommand stages a resolution trigger.
type SetTriggerCommand struct {
	Kind  gacha.TriggerKind `json:"kind"`
	Quota int               `json:"quota,omitempty"`
}

// SetDrawCountCommand stages the number of winners to draw.
type SetDrawCountCommand struct {
	Count int `json:"count"`
}

// Command represents an intent captured for processing on the next tick.
type Command struct {
	OriginTick uint64               `json:"originTick"`
	ActorID    string               `json:"actorId"`
	Type       CommandType          `json:"type"`
	IssuedAt   time.Time            `json:"issuedAt"`
	Start      *StartCommand        `json:"start,omitempty"`
	Policy     *SetPolicyCommand    `json:"policy,omitempty"`
	Trigger    *SetTriggerCommand   `json:"trigger,omitempty"`
	DrawCount  *SetDrawCountCommand `json:"drawCount,omitempty"`
}
