package intake

import (
	"testing"
	"time"

	"pinball-gacha/server/internal/gacha"
	"pinball-gacha/server/internal/ledger"
	"pinball-gacha/server/internal/net/proto"
	"pinball-gacha/server/internal/sim"
)

type recordingQueue struct {
	commands []sim.Command
	reject   string
}

func (q *recordingQueue) Enqueue(cmd sim.Command) (bool, string) {
	if q.reject != "" {
		return false, q.reject
	}
	q.commands = append(q.commands, cmd)
	return true, ""
}

func stageContext(q Queue) CommandContext {
	return CommandContext{
		Queue: q,
		Tick:  func() uint64 { return 77 },
		Now:   func() time.Time { return time.UnixMilli(1000) },
	}
}

func ptrInt(v int) *int       { return &v }
func ptrInt64(v int64) *int64 { return &v }

func TestStageCommandMapsMessageTypes(t *testing.T) {
	cases := []struct {
		name string
		msg  proto.ClientMessage
		want sim.CommandType
	}{
		{"start", proto.ClientMessage{Type: proto.TypeStart, Participants: "ami\nben"}, sim.CommandStart},
		{"set_policy", proto.ClientMessage{Type: proto.TypeSetPolicy, Policy: string(ledger.LastIn)}, sim.CommandSetPolicy},
		{"set_quota", proto.ClientMessage{Type: proto.TypeSetQuota, Trigger: string(gacha.TriggerAllExited)}, sim.CommandSetTrigger},
		{"set_draw_count", proto.ClientMessage{Type: proto.TypeSetDrawCount, DrawCount: ptrInt(2)}, sim.CommandSetDrawCount},
		{"reset", proto.ClientMessage{Type: proto.TypeReset}, sim.CommandReset},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			queue := &recordingQueue{}
			cmd, ok, reason := StageCommand(stageContext(queue), "viewer-1", tc.msg)
			if !ok {
				t.Fatalf("expected %s to stage, got reject %q", tc.name, reason)
			}
			if cmd.Type != tc.want {
				t.Fatalf("expected command type %q, got %q", tc.want, cmd.Type)
			}
			if cmd.ActorID != "viewer-1" {
				t.Fatalf("expected actor stamp viewer-1, got %q", cmd.ActorID)
			}
			if cmd.OriginTick != 77 {
				t.Fatalf("expected origin tick 77, got %d", cmd.OriginTick)
			}
			if cmd.IssuedAt != time.UnixMilli(1000) {
				t.Fatalf("expected issued-at stamp, got %v", cmd.IssuedAt)
			}
			if len(queue.commands) != 1 {
				t.Fatalf("expected one enqueued command, got %d", len(queue.commands))
			}
		})
	}
}

func TestStageCommandPayloads(t *testing.T) {
	queue := &recordingQueue{}
	ctx := stageContext(queue)

	start := proto.ClientMessage{
		Type:         proto.TypeStart,
		Participants: "ami, ben\ncho",
		Seed:         ptrInt64(9),
	}
	cmd, ok, reason := StageCommand(ctx, "viewer-1", start)
	if !ok {
		t.Fatalf("start rejected: %s", reason)
	}
	if cmd.Start == nil {
		t.Fatalf("expected start payload")
	}
	if len(cmd.Start.Participants) != 3 || cmd.Start.Participants[2] != "cho" {
		t.Fatalf("unexpected roster %v", cmd.Start.Participants)
	}
	if cmd.Start.Seed == nil || *cmd.Start.Seed != 9 {
		t.Fatalf("expected seed 9, got %v", cmd.Start.Seed)
	}

	quota := proto.ClientMessage{Type: proto.TypeSetQuota, Quota: ptrInt(4)}
	cmd, ok, reason = StageCommand(ctx, "viewer-1", quota)
	if !ok {
		t.Fatalf("quota rejected: %s", reason)
	}
	if cmd.Trigger == nil || cmd.Trigger.Kind != gacha.TriggerQuotaReached || cmd.Trigger.Quota != 4 {
		t.Fatalf("expected quota trigger 4, got %+v", cmd.Trigger)
	}

	policy := proto.ClientMessage{Type: proto.TypeSetPolicy, Policy: string(ledger.FirstIn)}
	cmd, ok, reason = StageCommand(ctx, "viewer-1", policy)
	if !ok {
		t.Fatalf("policy rejected: %s", reason)
	}
	if cmd.Policy == nil || cmd.Policy.Policy != ledger.FirstIn {
		t.Fatalf("expected first_in policy payload, got %+v", cmd.Policy)
	}
}

func TestStageCommandRejections(t *testing.T) {
	cases := []struct {
		name   string
		msg    proto.ClientMessage
		reason string
	}{
		{"unknown type", proto.ClientMessage{Type: "dance"}, RejectUnknownType},
		{"heartbeat is not a command", proto.ClientMessage{Type: proto.TypeHeartbeat}, RejectUnknownType},
		{"blank roster", proto.ClientMessage{Type: proto.TypeStart, Participants: " \n "}, RejectInvalidPayload},
		{"bad policy", proto.ClientMessage{Type: proto.TypeSetPolicy, Policy: "coin_flip"}, RejectInvalidPayload},
		{"quota trigger without count", proto.ClientMessage{Type: proto.TypeSetQuota, Trigger: string(gacha.TriggerQuotaReached)}, RejectInvalidPayload},
		{"zero quota", proto.ClientMessage{Type: proto.TypeSetQuota, Quota: ptrInt(0)}, RejectInvalidPayload},
		{"zero draw count", proto.ClientMessage{Type: proto.TypeSetDrawCount, DrawCount: ptrInt(0)}, RejectInvalidPayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			queue := &recordingQueue{}
			_, ok, reason := StageCommand(stageContext(queue), "viewer-1", tc.msg)
			if ok {
				t.Fatalf("expected rejection")
			}
			if reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, reason)
			}
			if len(queue.commands) != 0 {
				t.Fatalf("rejected message must not reach the queue")
			}
		})
	}
}

func TestStageCommandSurfacesQueuePressure(t *testing.T) {
	queue := &recordingQueue{reject: sim.CommandRejectQueueLimit}
	_, ok, reason := StageCommand(stageContext(queue), "viewer-1", proto.ClientMessage{Type: proto.TypeReset})
	if ok {
		t.Fatalf("expected queue rejection to propagate")
	}
	if reason != sim.CommandRejectQueueLimit {
		t.Fatalf("expected queue_limit reason, got %q", reason)
	}
}

func TestStageCommandWithoutQueueRejects(t *testing.T) {
	ctx := CommandContext{Tick: func() uint64 { return 1 }}
	_, ok, reason := StageCommand(ctx, "viewer-1", proto.ClientMessage{Type: proto.TypeReset})
	if ok {
		t.Fatalf("expected rejection with nil queue")
	}
	if reason != sim.CommandRejectQueueFull {
		t.Fatalf("expected queue_full reason, got %q", reason)
	}
}
