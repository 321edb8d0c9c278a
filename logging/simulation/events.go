package simulation

import (
	"context"

	"pinball-gacha/server/logging"
)

const (
	// EventTickBudgetOverrun is emitted when the simulation loop exceeds the allotted tick budget.
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
	// EventStepRecovered is emitted after the physics step recovers from a numerical failure.
	EventStepRecovered logging.EventType = "simulation.step_recovered"
	// EventStallForced is emitted when the stall-safety frame cap forces the gacha trigger.
	EventStallForced logging.EventType = "simulation.stall_forced"
)

// TickBudgetOverrunPayload captures timing details for a tick budget breach.
type TickBudgetOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
}

// StepRecoveredPayload counts the bodies touched by a recovery pass.
type StepRecoveredPayload struct {
	ClampedBodies  int    `json:"clampedBodies"`
	RestoredBodies int    `json:"restoredBodies"`
	Detail         string `json:"detail,omitempty"`
}

// StallForcedPayload records the frame cap that fired.
type StallForcedPayload struct {
	Frame     uint64 `json:"frame"`
	MaxFrames uint64 `json:"maxFrames"`
	InPlay    int    `json:"inPlay"`
}

// TickBudgetOverrun publishes a warning when a tick runs long.
func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetOverrunPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventTickBudgetOverrun,
		Tick:     tick,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySystem,
		Payload:  payload,
	})
}

// StepRecovered publishes the outcome of a physics recovery pass.
func StepRecovered(ctx context.Context, pub logging.Publisher, session string, tick uint64, payload StepRecoveredPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventStepRecovered,
		Tick:     tick,
		Session:  session,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityWarn,
		Category: logging.CategoryPhysics,
		Payload:  payload,
	})
}

// StallForced publishes the stall-safety trigger.
func StallForced(ctx context.Context, pub logging.Publisher, session string, tick uint64, payload StallForcedPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventStallForced,
		Tick:     tick,
		Session:  session,
		Actor:    logging.EntityRef{ID: session, Kind: logging.EntityKindSession},
		Severity: logging.SeverityWarn,
		Category: logging.CategorySystem,
		Payload:  payload,
	})
}

func publish(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, event)
}
