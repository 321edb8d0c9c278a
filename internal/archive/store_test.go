package archive

import (
	"context"
	"os"
	"testing"
	"time"

	"pinball-gacha/server/internal/gacha"
	"pinball-gacha/server/internal/ledger"
	"pinball-gacha/server/internal/sim"
	"pinball-gacha/server/internal/telemetry"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{Dir: t.TempDir()}, telemetry.LoggerFunc(t.Logf), telemetry.NewCounters())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func settledSnapshot(session string, tick uint64) sim.Snapshot {
	return sim.Snapshot{
		Session: session,
		Phase:   sim.PhaseSettled,
		Tick:    tick,
		Frame:   tick,
		Spawned: 3,
		Balls: []sim.BallView{
			{Name: "ami", SpawnSeq: 0, Exited: true, ExitSeq: 0},
			{Name: "ben", SpawnSeq: 1, Exited: true, ExitSeq: 1},
			{Name: "cho", SpawnSeq: 2, Exited: true, ExitSeq: 2},
		},
		Arrivals: []ledger.Arrival{
			{Ball: "ball-0", Name: "ami", Seq: 0, Tick: tick - 20, Reason: "goal"},
			{Ball: "ball-1", Name: "ben", Seq: 1, Tick: tick - 10, Reason: "goal"},
			{Ball: "ball-2", Name: "cho", Seq: 2, Tick: tick, Reason: "goal"},
		},
		Result: &gacha.Result{
			Policy:       ledger.FirstIn,
			Picks:        []ledger.BallRef{{Ball: "ball-0", Name: "ami"}},
			DrawCount:    1,
			Trigger:      gacha.TriggerAllExited,
			ResolvedTick: tick,
		},
		Config: sim.ConfigView{
			Policy:    ledger.FirstIn,
			Trigger:   gacha.Trigger{Kind: gacha.TriggerAllExited},
			DrawCount: 1,
			Seed:      42,
			Layout:    "standard",
		},
	}
}

func TestSettledSessionIsIndexed(t *testing.T) {
	store := openTestStore(t)

	started := time.UnixMilli(5000)
	snap := settledSnapshot("round-1", 300)
	store.SessionStarted(snap, started)
	store.SessionSettled(snap)

	ctx := context.Background()
	if err := store.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	records, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	rec := records[0]
	if rec.ID != "round-1" {
		t.Fatalf("unexpected id %q", rec.ID)
	}
	if rec.Seed != 42 || rec.Policy != string(ledger.FirstIn) || rec.TriggerKind != string(gacha.TriggerAllExited) {
		t.Fatalf("config mismatch: %+v", rec)
	}
	if rec.Layout != "standard" || rec.Spawned != 3 || rec.Arrivals != 3 {
		t.Fatalf("round shape mismatch: %+v", rec)
	}
	if rec.StartedAt != 5000 || rec.SettledTick != 300 || rec.Forced {
		t.Fatalf("outcome mismatch: %+v", rec)
	}
	if len(rec.Result) == 0 {
		t.Fatalf("expected result payload")
	}

	arrivals, err := store.ArrivalsFor(ctx, "round-1")
	if err != nil {
		t.Fatalf("ArrivalsFor: %v", err)
	}
	if len(arrivals) != 3 {
		t.Fatalf("expected 3 arrivals, got %d", len(arrivals))
	}
	for i, a := range arrivals {
		if a.Seq != i {
			t.Fatalf("arrival %d out of order: %+v", i, a)
		}
	}
	if arrivals[0].Name != "ami" || arrivals[2].Name != "cho" {
		t.Fatalf("arrival names mismatch: %+v", arrivals)
	}
}

func TestCloseDrainsQueuedWrites(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(Config{Dir: dir}, telemetry.LoggerFunc(t.Logf), telemetry.NewCounters())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for i := 0; i < 5; i++ {
		snap := settledSnapshot("round-"+string(rune('a'+i)), uint64(100*(i+1)))
		store.SessionStarted(snap, time.UnixMilli(int64(i)))
		store.SessionSettled(snap)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(Config{Dir: dir}, telemetry.LoggerFunc(t.Logf), telemetry.NewCounters())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	records, err := reopened.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records after close, got %d", len(records))
	}
}

func TestReplayLogRoundTrips(t *testing.T) {
	store := openTestStore(t)

	snap := settledSnapshot("round-replay", 120)
	running := snap
	running.Phase = sim.PhaseRunning
	running.Result = nil

	store.SessionStarted(running, time.UnixMilli(1))
	for tick := uint64(1); tick <= 3; tick++ {
		frame := running
		frame.Tick = tick
		frame.Frame = tick
		store.Frame(frame)
	}
	store.SessionSettled(snap)

	ctx := context.Background()
	if err := store.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	frames, err := ReadReplay(ReplayPath(store.dir, "round-replay"))
	if err != nil {
		t.Fatalf("ReadReplay: %v", err)
	}
	// Opening frame, three broadcast frames, settle frame.
	if len(frames) != 5 {
		t.Fatalf("expected 5 frames, got %d", len(frames))
	}
	if frames[0].Phase != sim.PhaseRunning {
		t.Fatalf("first frame should be the opening snapshot, got %q", frames[0].Phase)
	}
	last := frames[len(frames)-1]
	if last.Phase != sim.PhaseSettled || last.Result == nil {
		t.Fatalf("final frame should carry the settle result")
	}
	if last.Result.Picks[0].Name != "ami" {
		t.Fatalf("unexpected picks %v", last.Result.Picks)
	}
	for i := 1; i <= 3; i++ {
		if frames[i].Tick != uint64(i) {
			t.Fatalf("frame %d carries tick %d", i, frames[i].Tick)
		}
	}
}

func TestFramesAfterSettleAreIgnored(t *testing.T) {
	store := openTestStore(t)

	snap := settledSnapshot("round-late", 50)
	store.SessionStarted(snap, time.UnixMilli(1))
	store.SessionSettled(snap)

	late := snap
	late.Tick = 999
	store.Frame(late)

	ctx := context.Background()
	if err := store.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	frames, err := ReadReplay(ReplayPath(store.dir, "round-late"))
	if err != nil {
		t.Fatalf("ReadReplay: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected sealed log to stay at 2 frames, got %d", len(frames))
	}
}

func TestClosedSessionLeavesNoIndexRow(t *testing.T) {
	store := openTestStore(t)

	snap := settledSnapshot("round-abort", 20)
	running := snap
	running.Phase = sim.PhaseRunning
	running.Result = nil

	store.SessionStarted(running, time.UnixMilli(1))
	store.Frame(running)
	store.SessionClosed("round-abort")

	ctx := context.Background()
	if err := store.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	records, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("aborted round must not be indexed, got %d records", len(records))
	}

	// The partial replay survives for inspection.
	if _, err := os.Stat(ReplayPath(store.dir, "round-abort")); err != nil {
		t.Fatalf("expected replay file: %v", err)
	}
	frames, err := ReadReplay(ReplayPath(store.dir, "round-abort"))
	if err != nil {
		t.Fatalf("ReadReplay: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 partial frames, got %d", len(frames))
	}
}

func TestNilStoreIgnoresCalls(t *testing.T) {
	var store *Store
	store.SessionStarted(sim.Snapshot{Session: "x"}, time.Now())
	store.Frame(sim.Snapshot{Session: "x"})
	store.SessionSettled(sim.Snapshot{Session: "x"})
	store.SessionClosed("x")
	if store.Drops() != 0 {
		t.Fatalf("nil store cannot drop")
	}
	if records, err := store.Recent(context.Background(), 5); err != nil || records != nil {
		t.Fatalf("nil store Recent should be empty, got %v %v", records, err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}
