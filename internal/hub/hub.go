// Package hub fans the simulation out to websocket viewers. One hub owns one
// session wrapped in a fixed-timestep loop; subscribers receive state frames
// on a cadence plus immediate deltas for arrivals and the sealed result. The
// latest snapshot is cached after every tick so HTTP handlers never touch
// session state owned by the loop goroutine.
package hub

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pinball-gacha/server/internal/archive"
	"pinball-gacha/server/internal/gacha"
	"pinball-gacha/server/internal/net/proto"
	"pinball-gacha/server/internal/session"
	"pinball-gacha/server/internal/sim"
	"pinball-gacha/server/logging/simulation"
)

// Config tunes broadcast cadence and subscriber handling.
type Config struct {
	// Loop configures the tick loop wrapped around the session.
	Loop sim.LoopConfig
	// BroadcastEvery is the tick interval between state frames. Arrival and
	// result deltas always push immediately.
	BroadcastEvery int
	// WriteTimeout bounds each websocket write.
	WriteTimeout time.Duration
	// HistorySize caps the broadcast diagnostics ring.
	HistorySize int
}

// DefaultConfig broadcasts every third tick of a 60 Hz loop.
func DefaultConfig() Config {
	return Config{
		Loop:           sim.DefaultLoopConfig(),
		BroadcastEvery: 3,
		WriteTimeout:   5 * time.Second,
		HistorySize:    64,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.BroadcastEvery < 1 {
		c.BroadcastEvery = def.BroadcastEvery
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.HistorySize < 1 {
		c.HistorySize = def.HistorySize
	}
	return c
}

// Hub connects the session loop to its viewers and the archive.
type Hub struct {
	cfg     Config
	deps    sim.Deps
	core    *session.Session
	loop    *sim.Loop
	archive *archive.Store

	mu          sync.Mutex
	subscribers map[string]*Subscriber

	nextViewer atomic.Uint64
	sequence   atomic.Uint64
	tick       atomic.Uint64

	snapMu   sync.RWMutex
	lastSnap sim.Snapshot

	// Transition tracking, touched only from the loop goroutine.
	lastSession  string
	lastPhase    sim.Phase
	lastArrivals int

	history *broadcastHistory

	running  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New wires a hub around the session. The archive store may be nil.
func New(cfg Config, core *session.Session, store *archive.Store) *Hub {
	cfg = cfg.normalized()
	h := &Hub{
		cfg:         cfg,
		deps:        core.Deps(),
		core:        core,
		archive:     store,
		subscribers: make(map[string]*Subscriber),
		history:     newBroadcastHistory(cfg.HistorySize),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	h.loop = sim.NewLoop(core, cfg.Loop, sim.LoopHooks{
		AfterStep: h.afterStep,
	})
	snap := core.Snapshot()
	h.lastSnap = snap
	h.lastSession = snap.Session
	h.lastPhase = snap.Phase
	h.lastArrivals = len(snap.Arrivals)
	return h
}

// Run drives the simulation loop until Stop is called.
func (h *Hub) Run() {
	if !h.running.CompareAndSwap(false, true) {
		return
	}
	defer close(h.done)
	h.loop.Run(h.stop)
}

// Stop halts the loop and disconnects every viewer.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	if h.running.Load() {
		<-h.done
	}
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.subscribers = make(map[string]*Subscriber)
	h.mu.Unlock()
	for _, sub := range subs {
		sub.close()
	}
}

// Enqueue stages a command for the next tick.
func (h *Hub) Enqueue(cmd sim.Command) (bool, string) {
	return h.loop.Enqueue(cmd)
}

// Tick returns the most recently completed tick.
func (h *Hub) Tick() uint64 {
	return h.tick.Load()
}

// Subscribe writes the hello frame and then registers the viewer. The hello
// goes out before the subscriber joins the broadcast map, so no state frame
// can land on the socket ahead of it.
func (h *Hub) Subscribe(conn Conn) (*Subscriber, error) {
	id := fmt.Sprintf("viewer-%d", h.nextViewer.Add(1))
	sub := newSubscriber(id, conn, h.cfg.WriteTimeout)

	hello, err := proto.EncodeHello(id, time.Now().UnixMilli(), h.LatestSnapshot())
	if err != nil {
		return nil, fmt.Errorf("hub: encode hello: %w", err)
	}
	if err := sub.Send(hello); err != nil {
		return nil, fmt.Errorf("hub: write hello: %w", err)
	}

	h.mu.Lock()
	h.subscribers[id] = sub
	total := len(h.subscribers)
	h.mu.Unlock()

	go sub.writeLoop(h.dropSubscriber)

	h.deps.Metrics.Store("hub.subscribers", uint64(total))
	h.logf("[hub] %s connected, %d viewers", id, total)
	return sub, nil
}

// Disconnect removes a viewer and closes its connection.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	total := len(h.subscribers)
	h.mu.Unlock()
	if !ok {
		return
	}
	sub.close()
	h.deps.Metrics.Store("hub.subscribers", uint64(total))
	h.logf("[hub] %s disconnected, %d viewers", id, total)
}

// LatestSnapshot returns the snapshot cached after the most recent tick.
// Callers must treat it as read-only; it is shared between readers.
func (h *Hub) LatestSnapshot() sim.Snapshot {
	h.snapMu.RLock()
	defer h.snapMu.RUnlock()
	return h.lastSnap
}

// Result returns the sealed draw for the current round, if resolved.
func (h *Hub) Result() (gacha.Result, bool) {
	snap := h.LatestSnapshot()
	if snap.Result == nil {
		return gacha.Result{}, false
	}
	return *snap.Result, true
}

// ViewerDiagnostics reports per-connection health.
type ViewerDiagnostics struct {
	ID            string `json:"id"`
	ConnectedAt   int64  `json:"connectedAt"`
	LastHeartbeat int64  `json:"lastHeartbeat,omitempty"`
	RTTMillis     int64  `json:"rttMillis,omitempty"`
	AckedSequence uint64 `json:"ackedSequence"`
	DroppedFrames uint64 `json:"droppedFrames"`
}

// DiagnosticsSnapshot aggregates hub health for the diagnostics endpoint.
type DiagnosticsSnapshot struct {
	Status          string              `json:"status"`
	ServerTime      int64               `json:"serverTime"`
	Session         string              `json:"session,omitempty"`
	Phase           string              `json:"phase"`
	Tick            uint64              `json:"tick"`
	Frame           uint64              `json:"frame"`
	TickRate        int                 `json:"tickRate"`
	BroadcastEvery  int                 `json:"broadcastEvery"`
	PendingCommands int                 `json:"pendingCommands"`
	ArchiveDrops    uint64              `json:"archiveDrops,omitempty"`
	Viewers         []ViewerDiagnostics `json:"viewers"`
	Broadcasts      []BroadcastRecord   `json:"broadcasts"`
	Counters        map[string]uint64   `json:"counters,omitempty"`
}

// Diagnostics collects the current hub state for operators.
func (h *Hub) Diagnostics() DiagnosticsSnapshot {
	snap := h.LatestSnapshot()

	subs := h.snapshotSubscribers()
	viewers := make([]ViewerDiagnostics, 0, len(subs))
	for _, sub := range subs {
		viewers = append(viewers, ViewerDiagnostics{
			ID:            sub.ID(),
			ConnectedAt:   sub.ConnectedAt().UnixMilli(),
			LastHeartbeat: sub.LastHeartbeat(),
			RTTMillis:     sub.RTTMillis(),
			AckedSequence: sub.AckedSequence(),
			DroppedFrames: sub.Drops(),
		})
	}

	return DiagnosticsSnapshot{
		Status:          "ok",
		ServerTime:      time.Now().UnixMilli(),
		Session:         snap.Session,
		Phase:           string(snap.Phase),
		Tick:            snap.Tick,
		Frame:           snap.Frame,
		TickRate:        h.loop.Config().TickRate,
		BroadcastEvery:  h.cfg.BroadcastEvery,
		PendingCommands: h.loop.Pending(),
		ArchiveDrops:    h.archive.Drops(),
		Viewers:         viewers,
		Broadcasts:      h.history.tail(0),
		Counters:        h.deps.Metrics.Snapshot(),
	}
}

// afterStep runs on the loop goroutine after every tick: it records the
// tick, reacts to round transitions, feeds the archive, broadcasts on
// cadence, and caches the snapshot for readers.
func (h *Hub) afterStep(result sim.LoopStepResult) {
	snap := result.Snapshot
	h.tick.Store(result.Tick)

	h.observeTransitions(snap, result.Now)

	if result.Budget > 0 && result.Duration > result.Budget {
		simulation.TickBudgetOverrun(context.Background(), h.deps.Publisher, result.Tick, simulation.TickBudgetOverrunPayload{
			DurationMillis: result.Duration.Milliseconds(),
			BudgetMillis:   result.Budget.Milliseconds(),
			Ratio:          float64(result.Duration) / float64(result.Budget),
		})
		h.deps.Metrics.Add("hub.tick_budget_overruns.total", 1)
	}

	if result.Tick%uint64(h.cfg.BroadcastEvery) == 0 {
		h.broadcast(snap, result.Now)
		if snap.Phase == sim.PhaseRunning {
			h.archive.Frame(snap)
		}
	}

	h.snapMu.Lock()
	h.lastSnap = snap
	h.snapMu.Unlock()
}

// observeTransitions compares the snapshot against the previous tick and
// pushes the deltas: arrival appends, the sealed result, and archive
// lifecycle calls.
func (h *Hub) observeTransitions(snap sim.Snapshot, now time.Time) {
	prevSession, prevPhase, prevArrivals := h.lastSession, h.lastPhase, h.lastArrivals
	h.lastSession, h.lastPhase, h.lastArrivals = snap.Session, snap.Phase, len(snap.Arrivals)

	newRound := snap.Session != prevSession
	if newRound {
		if prevSession != "" && prevPhase == sim.PhaseRunning {
			h.archive.SessionClosed(prevSession)
		}
		if snap.Session != "" {
			h.archive.SessionStarted(snap, now)
		}
		prevArrivals = 0
	}

	if snap.Session != "" && len(snap.Arrivals) > prevArrivals {
		for _, arrival := range snap.Arrivals[prevArrivals:] {
			data, err := proto.EncodeArrival(snap.Session, arrival)
			if err != nil {
				h.logf("[hub] encode arrival: %v", err)
				continue
			}
			h.pushControl(data)
			h.deps.Metrics.Add("hub.arrival_deltas.total", 1)
		}
	}

	if snap.Phase == prevPhase && !newRound {
		return
	}
	switch snap.Phase {
	case sim.PhaseSettled:
		if snap.Result == nil {
			return
		}
		if data, err := proto.EncodeResult(snap.Session, *snap.Result); err == nil {
			h.pushControl(data)
		} else {
			h.logf("[hub] encode result: %v", err)
		}
		h.archive.SessionSettled(snap)
		h.deps.Metrics.Add("hub.results.total", 1)
	case sim.PhaseFailed:
		h.archive.SessionClosed(snap.Session)
	}
}

// broadcast encodes one state frame and offers it to every viewer.
func (h *Hub) broadcast(snap sim.Snapshot, now time.Time) {
	seq := h.sequence.Add(1)
	data, err := proto.EncodeState(seq, now.UnixMilli(), snap)
	if err != nil {
		h.logf("[hub] encode state: %v", err)
		return
	}
	subs := h.snapshotSubscribers()
	for _, sub := range subs {
		sub.OfferState(data)
	}
	h.history.record(BroadcastRecord{
		Sequence:   seq,
		Tick:       snap.Tick,
		Phase:      string(snap.Phase),
		Bytes:      len(data),
		Viewers:    len(subs),
		ServerTime: now.UnixMilli(),
	})
	h.deps.Metrics.Add("hub.broadcasts.total", 1)
}

// pushControl writes a delta to every viewer immediately. A failed write
// drops that viewer.
func (h *Hub) pushControl(data []byte) {
	for _, sub := range h.snapshotSubscribers() {
		if err := sub.Send(data); err != nil {
			h.dropSubscriber(sub, err)
		}
	}
}

func (h *Hub) snapshotSubscribers() []*Subscriber {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()
	return subs
}

func (h *Hub) dropSubscriber(sub *Subscriber, err error) {
	h.logf("[hub] dropping %s: %v", sub.ID(), err)
	h.Disconnect(sub.ID())
}

func (h *Hub) logf(format string, args ...any) {
	if h.deps.Logger != nil {
		h.deps.Logger.Printf(format, args...)
	}
}
