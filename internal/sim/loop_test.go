package sim

import (
	"testing"
	"time"
)

// fakeCore records the calls the loop makes so tests can assert ordering.
type fakeCore struct {
	deps     Deps
	applied  [][]Command
	deltas   []float64
	snapshot Snapshot
}

func (f *fakeCore) Apply(cmds []Command) error {
	copied := make([]Command, len(cmds))
	copy(copied, cmds)
	f.applied = append(f.applied, copied)
	return nil
}

func (f *fakeCore) Step(dt float64) {
	f.deltas = append(f.deltas, dt)
}

func (f *fakeCore) Snapshot() Snapshot {
	return f.snapshot
}

func (f *fakeCore) Deps() Deps {
	return f.deps
}

func TestAdvanceAppliesStagedCommandsInOrder(t *testing.T) {
	core := &fakeCore{snapshot: Snapshot{Phase: PhaseRunning, Tick: 7}}
	loop := NewLoop(core, LoopConfig{CommandCapacity: 8}, LoopHooks{})

	for _, actor := range []string{"a", "b", "c"} {
		if ok, reason := loop.Enqueue(Command{ActorID: actor, Type: CommandReset}); !ok {
			t.Fatalf("enqueue %s rejected: %s", actor, reason)
		}
	}

	result := loop.Advance(LoopTickContext{Tick: 7, Now: time.Unix(0, 0), Delta: 0.016})
	if len(core.applied) != 1 {
		t.Fatalf("Apply called %d times, want 1", len(core.applied))
	}
	batch := core.applied[0]
	if len(batch) != 3 || batch[0].ActorID != "a" || batch[2].ActorID != "c" {
		t.Fatalf("commands applied out of order: %+v", batch)
	}
	if len(core.deltas) != 1 || core.deltas[0] != 0.016 {
		t.Fatalf("Step deltas = %v, want [0.016]", core.deltas)
	}
	if result.Snapshot.Phase != PhaseRunning {
		t.Fatalf("result snapshot = %+v, want the core's snapshot", result.Snapshot)
	}
	if loop.Pending() != 0 {
		t.Fatalf("queue should be empty after Advance, has %d", loop.Pending())
	}
}

func TestEnqueueThrottlesPerActor(t *testing.T) {
	core := &fakeCore{}
	var dropped []string
	loop := NewLoop(core, LoopConfig{CommandCapacity: 64, PerActorLimit: 2}, LoopHooks{
		OnCommandDrop: func(reason string, cmd Command) {
			dropped = append(dropped, reason)
		},
	})

	for i := 0; i < 2; i++ {
		if ok, _ := loop.Enqueue(Command{ActorID: "spam", Type: CommandStart}); !ok {
			t.Fatalf("enqueue %d should succeed under the limit", i)
		}
	}
	ok, reason := loop.Enqueue(Command{ActorID: "spam", Type: CommandStart})
	if ok {
		t.Fatalf("third command should be throttled")
	}
	if reason != CommandRejectQueueLimit {
		t.Fatalf("reject reason = %q, want %q", reason, CommandRejectQueueLimit)
	}
	if len(dropped) != 1 || dropped[0] != CommandRejectQueueLimit {
		t.Fatalf("drop hook saw %v", dropped)
	}

	// Another actor is not affected by the throttle.
	if ok, _ := loop.Enqueue(Command{ActorID: "other", Type: CommandStart}); !ok {
		t.Fatalf("other actor should not be throttled")
	}

	// Draining resets the per-actor accounting.
	loop.DrainCommands()
	if ok, _ := loop.Enqueue(Command{ActorID: "spam", Type: CommandStart}); !ok {
		t.Fatalf("throttle should reset after a drain")
	}
}

func TestEnqueueReportsQueueFull(t *testing.T) {
	core := &fakeCore{}
	loop := NewLoop(core, LoopConfig{CommandCapacity: 1}, LoopHooks{})
	if ok, _ := loop.Enqueue(Command{ActorID: "a"}); !ok {
		t.Fatalf("first enqueue should succeed")
	}
	ok, reason := loop.Enqueue(Command{ActorID: "b"})
	if ok || reason != CommandRejectQueueFull {
		t.Fatalf("full buffer should reject with %q, got ok=%v reason=%q", CommandRejectQueueFull, ok, reason)
	}
}

func TestQueueWarningFiresAtStepMultiples(t *testing.T) {
	core := &fakeCore{}
	var warnings []int
	loop := NewLoop(core, LoopConfig{CommandCapacity: 16, WarningStep: 4}, LoopHooks{
		OnQueueWarning: func(length int) {
			warnings = append(warnings, length)
		},
	})
	for i := 0; i < 8; i++ {
		if ok, _ := loop.Enqueue(Command{ActorID: "a", Type: CommandReset}); !ok {
			t.Fatalf("enqueue %d rejected", i)
		}
	}
	if len(warnings) != 2 || warnings[0] != 4 || warnings[1] != 8 {
		t.Fatalf("warnings = %v, want [4 8]", warnings)
	}
}

func TestNewEngineRequiresCore(t *testing.T) {
	if _, err := NewEngine(nil); err != ErrMissingCore {
		t.Fatalf("NewEngine(nil) error = %v, want ErrMissingCore", err)
	}
	loop, err := NewEngine(&fakeCore{}, WithLoopConfig(LoopConfig{TickRate: 30}))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if loop.Config().TickRate != 30 {
		t.Fatalf("tick rate = %d, want 30", loop.Config().TickRate)
	}
	if loop.Config().CommandCapacity != DefaultLoopConfig().CommandCapacity {
		t.Fatalf("zero capacity should normalize to the default")
	}
}
