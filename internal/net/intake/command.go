// Package intake turns decoded client messages into staged simulation
// commands. Validation here is structural only; the session applies its own
// rules when the command is drained at a tick boundary.
package intake

import (
	"time"

	"pinball-gacha/server/internal/gacha"
	"pinball-gacha/server/internal/ledger"
	"pinball-gacha/server/internal/net/proto"
	"pinball-gacha/server/internal/session"
	"pinball-gacha/server/internal/sim"
)

// Rejection reasons surfaced to clients alongside queue pressure reasons
// from the loop.
const (
	RejectUnknownType    = "unknown_type"
	RejectInvalidPayload = "invalid_payload"
)

// Queue stages commands for the next simulation tick.
type Queue interface {
	Enqueue(sim.Command) (bool, string)
}

// CommandContext carries the collaborators needed to stage a command.
type CommandContext struct {
	Queue Queue
	Tick  func() uint64
	Now   func() time.Time
}

// StageCommand validates a client message, stamps origin metadata, and
// enqueues the resulting command. It returns the staged command, whether it
// was accepted, and a rejection reason when it was not.
func StageCommand(ctx CommandContext, viewerID string, msg proto.ClientMessage) (sim.Command, bool, string) {
	var zero sim.Command

	command, ok, reason := buildCommand(msg)
	if !ok {
		return zero, false, reason
	}

	command.ActorID = viewerID
	if ctx.Tick != nil {
		command.OriginTick = ctx.Tick()
	}
	if ctx.Now != nil {
		command.IssuedAt = ctx.Now()
	} else {
		command.IssuedAt = time.Now()
	}

	if ctx.Queue == nil {
		return zero, false, sim.CommandRejectQueueFull
	}
	if ok, reason := ctx.Queue.Enqueue(command); !ok {
		return zero, false, reason
	}
	return command, true, ""
}

func buildCommand(msg proto.ClientMessage) (sim.Command, bool, string) {
	var zero sim.Command
	switch msg.Type {
	case proto.TypeStart:
		names := session.ParseParticipants(msg.Participants)
		if len(names) == 0 {
			return zero, false, RejectInvalidPayload
		}
		return sim.Command{
			Type:  sim.CommandStart,
			Start: &sim.StartCommand{Participants: names, Seed: msg.Seed},
		}, true, ""
	case proto.TypeSetPolicy:
		policy := ledger.Policy(msg.Policy)
		if !policy.Valid() {
			return zero, false, RejectInvalidPayload
		}
		return sim.Command{
			Type:   sim.CommandSetPolicy,
			Policy: &sim.SetPolicyCommand{Policy: policy},
		}, true, ""
	case proto.TypeSetQuota:
		trigger, ok := buildTrigger(msg)
		if !ok {
			return zero, false, RejectInvalidPayload
		}
		return sim.Command{
			Type:    sim.CommandSetTrigger,
			Trigger: &sim.SetTriggerCommand{Kind: trigger.Kind, Quota: trigger.Quota},
		}, true, ""
	case proto.TypeSetDrawCount:
		if msg.DrawCount == nil || *msg.DrawCount < 1 {
			return zero, false, RejectInvalidPayload
		}
		return sim.Command{
			Type:      sim.CommandSetDrawCount,
			DrawCount: &sim.SetDrawCountCommand{Count: *msg.DrawCount},
		}, true, ""
	case proto.TypeReset:
		return sim.Command{Type: sim.CommandReset}, true, ""
	}
	return zero, false, RejectUnknownType
}

// buildTrigger maps the wire quota message onto a trigger. A bare quota
// implies quota_reached; an explicit all_exited ignores the quota field.
func buildTrigger(msg proto.ClientMessage) (gacha.Trigger, bool) {
	quota := 0
	if msg.Quota != nil {
		quota = *msg.Quota
	}
	switch gacha.TriggerKind(msg.Trigger) {
	case gacha.TriggerAllExited:
		return gacha.Trigger{Kind: gacha.TriggerAllExited}, true
	case gacha.TriggerQuotaReached:
		if quota < 1 {
			return gacha.Trigger{}, false
		}
		return gacha.Trigger{Kind: gacha.TriggerQuotaReached, Quota: quota}, true
	}
	if msg.Trigger == "" && quota >= 1 {
		return gacha.Trigger{Kind: gacha.TriggerQuotaReached, Quota: quota}, true
	}
	return gacha.Trigger{}, false
}
