package gameplay

import (
	"context"

	"pinball-gacha/server/internal/ledger"
	"pinball-gacha/server/logging"
)

const (
	// EventSessionStarted is emitted once per session after the world is built.
	EventSessionStarted logging.EventType = "session.started"
	// EventSessionFailed is emitted when an integrity violation aborts a session.
	EventSessionFailed logging.EventType = "session.failed"
	// EventSessionReset is emitted when a session is discarded wholesale.
	EventSessionReset logging.EventType = "session.reset"
	// EventBallSpawned is emitted when a participant ball enters play.
	EventBallSpawned logging.EventType = "ball.spawned"
	// EventBallExited is emitted when a ball reaches the goal and is recorded.
	EventBallExited logging.EventType = "ball.exited"
	// EventDuplicateExit flags a second exit report for an already-exited ball.
	EventDuplicateExit logging.EventType = "ball.duplicate_exit"
	// EventGachaResolved is emitted once the draw trigger fires.
	EventGachaResolved logging.EventType = "gacha.resolved"
)

// SessionStartedPayload captures the immutable configuration of a new session.
type SessionStartedPayload struct {
	Seed         int64  `json:"seed"`
	Policy       string `json:"policy"`
	Trigger      string `json:"trigger"`
	Quota        int    `json:"quota,omitempty"`
	DrawCount    int    `json:"drawCount"`
	Participants int    `json:"participants"`
}

// BallSpawnedPayload records where a ball entered the field.
type BallSpawnedPayload struct {
	Name     string  `json:"name"`
	SpawnSeq uint64  `json:"spawnSeq"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// BallExitedPayload records an arrival ledger append.
type BallExitedPayload struct {
	Name    string `json:"name"`
	ExitSeq uint64 `json:"exitSeq"`
}

// GachaResolvedPayload carries the final draw.
type GachaResolvedPayload struct {
	Policy string           `json:"policy"`
	Picks  []ledger.BallRef `json:"picks"`
	Forced bool             `json:"forced,omitempty"`
}

// SessionFailedPayload names the integrity violation that ended the session.
type SessionFailedPayload struct {
	Reason string `json:"reason"`
}

// SessionStarted publishes the session start event.
func SessionStarted(ctx context.Context, pub logging.Publisher, session string, tick uint64, payload SessionStartedPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventSessionStarted,
		Tick:     tick,
		Session:  session,
		Actor:    logging.EntityRef{ID: session, Kind: logging.EntityKindSession},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryGameplay,
		Payload:  payload,
	})
}

// SessionFailed publishes the generic failure state shown to clients.
func SessionFailed(ctx context.Context, pub logging.Publisher, session string, tick uint64, payload SessionFailedPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventSessionFailed,
		Tick:     tick,
		Session:  session,
		Actor:    logging.EntityRef{ID: session, Kind: logging.EntityKindSession},
		Severity: logging.SeverityError,
		Category: logging.CategoryGameplay,
		Payload:  payload,
	})
}

// SessionReset publishes a wholesale session discard.
func SessionReset(ctx context.Context, pub logging.Publisher, session string, tick uint64) {
	publish(ctx, pub, logging.Event{
		Type:     EventSessionReset,
		Tick:     tick,
		Session:  session,
		Actor:    logging.EntityRef{ID: session, Kind: logging.EntityKindSession},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryGameplay,
	})
}

// BallSpawned publishes a spawn transition.
func BallSpawned(ctx context.Context, pub logging.Publisher, session, ballID string, tick uint64, payload BallSpawnedPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventBallSpawned,
		Tick:     tick,
		Session:  session,
		Actor:    logging.EntityRef{ID: ballID, Kind: logging.EntityKindBall},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryGameplay,
		Payload:  payload,
	})
}

// BallExited publishes an arrival.
func BallExited(ctx context.Context, pub logging.Publisher, session, ballID string, tick uint64, payload BallExitedPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventBallExited,
		Tick:     tick,
		Session:  session,
		Actor:    logging.EntityRef{ID: ballID, Kind: logging.EntityKindBall},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryGameplay,
		Payload:  payload,
	})
}

// DuplicateExit publishes the anomaly raised when an exit event names a ball
// that already exited. The transition itself is a no-op.
func DuplicateExit(ctx context.Context, pub logging.Publisher, session, ballID string, tick uint64) {
	publish(ctx, pub, logging.Event{
		Type:     EventDuplicateExit,
		Tick:     tick,
		Session:  session,
		Actor:    logging.EntityRef{ID: ballID, Kind: logging.EntityKindBall},
		Severity: logging.SeverityWarn,
		Category: logging.CategoryGameplay,
	})
}

// GachaResolved publishes the cached draw result.
func GachaResolved(ctx context.Context, pub logging.Publisher, session string, tick uint64, payload GachaResolvedPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventGachaResolved,
		Tick:     tick,
		Session:  session,
		Actor:    logging.EntityRef{ID: session, Kind: logging.EntityKindSession},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryGameplay,
		Payload:  payload,
	})
}

func publish(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, event)
}
