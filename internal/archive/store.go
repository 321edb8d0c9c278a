// Package archive persists settled rounds to disk. A sqlite index records
// each session's configuration, outcome, and arrival order; a per-session
// zstd-compressed JSONL replay log captures the broadcast frames. Writes
// flow through a single goroutine and are dropped rather than ever stalling
// the simulation loop. A nil *Store ignores every call.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"pinball-gacha/server/internal/ledger"
	"pinball-gacha/server/internal/sim"
	"pinball-gacha/server/internal/telemetry"
)

const defaultQueueSize = 128

// Config locates the archive on disk.
type Config struct {
	// Dir holds the sqlite index and the replays/ directory.
	Dir string
	// QueueSize bounds pending write jobs before drops begin.
	QueueSize int
}

// Store is the session archive. Exported methods are safe for concurrent use
// and never block: jobs queue onto a buffered channel consumed by one writer
// goroutine that owns the database handle and the open replay logs.
type Store struct {
	db      *sql.DB
	dir     string
	logger  telemetry.Logger
	metrics *telemetry.Counters

	jobs chan func()
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64

	// Owned by the writer goroutine.
	runs map[string]*activeRun
}

type activeRun struct {
	startedAt time.Time
	replay    *replayLog
}

// Open prepares the archive directory and sqlite index and starts the writer.
func Open(cfg Config, logger telemetry.Logger, metrics *telemetry.Counters) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("archive: directory not set")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if err := os.MkdirAll(filepath.Join(cfg.Dir, "replays"), 0o755); err != nil {
		return nil, fmt.Errorf("archive: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(cfg.Dir, "sessions.db"))
	if err != nil {
		return nil, fmt.Errorf("archive: open index: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: pragmas: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: schema: %w", err)
	}

	s := &Store{
		db:      db,
		dir:     cfg.Dir,
		logger:  logger,
		metrics: metrics,
		jobs:    make(chan func(), cfg.QueueSize),
		quit:    make(chan struct{}),
		runs:    make(map[string]*activeRun),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only write pattern; NORMAL sync is enough for a
	// secondary record of rounds.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			policy TEXT NOT NULL,
			trigger_kind TEXT NOT NULL,
			quota INTEGER NOT NULL,
			draw_count INTEGER NOT NULL,
			layout TEXT NOT NULL,
			spawned INTEGER NOT NULL,
			arrivals INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			settled_tick INTEGER NOT NULL,
			forced INTEGER NOT NULL,
			result TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);`,
		`CREATE TABLE IF NOT EXISTS arrivals (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			ball TEXT NOT NULL,
			name TEXT NOT NULL,
			tick INTEGER NOT NULL,
			reason TEXT NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SessionStarted opens the replay log for a fresh round.
func (s *Store) SessionStarted(snap sim.Snapshot, startedAt time.Time) {
	if s == nil || snap.Session == "" {
		return
	}
	s.submit(func() { s.startRun(snap, startedAt) })
}

// Frame appends one broadcast snapshot to the round's replay log. Frames for
// unknown or already sealed sessions are ignored.
func (s *Store) Frame(snap sim.Snapshot) {
	if s == nil || snap.Session == "" {
		return
	}
	s.submit(func() { s.appendFrame(snap) })
}

// SessionSettled writes the index row plus arrival order and seals the
// replay log with the settle snapshot as its final frame.
func (s *Store) SessionSettled(snap sim.Snapshot) {
	if s == nil || snap.Session == "" || snap.Result == nil {
		return
	}
	s.submit(func() { s.settleRun(snap) })
}

// SessionClosed seals the replay log for a round that ended without
// settling, after a failure or a reset. No index row is written.
func (s *Store) SessionClosed(sessionID string) {
	if s == nil || sessionID == "" {
		return
	}
	s.submit(func() { s.closeRun(sessionID) })
}

// Dir returns the archive root.
func (s *Store) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

// Drops reports how many write jobs were discarded because the queue was full.
func (s *Store) Drops() uint64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

// Sync blocks until previously queued writes have been applied.
func (s *Store) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.jobs <- func() { close(done) }:
	case <-s.quit:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains pending jobs, seals open replay logs, and closes the index.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.quit)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *Store) submit(job func()) {
	if s.closed.Load() {
		return
	}
	select {
	case s.jobs <- job:
	default:
		count := s.dropped.Add(1)
		s.metrics.Add("archive.jobs.dropped.total", 1)
		// Log at power-of-two counts to bound the noise.
		if count&(count-1) == 0 {
			s.logf("[archive] dropped %d writes, queue full", count)
		}
	}
}

func (s *Store) loop() {
	for {
		select {
		case job := <-s.jobs:
			job()
		case <-s.quit:
			for {
				select {
				case job := <-s.jobs:
					job()
				default:
					s.sealAll()
					return
				}
			}
		}
	}
}

func (s *Store) sealAll() {
	for id, run := range s.runs {
		if err := run.replay.close(); err != nil {
			s.logf("[archive] close replay %s: %v", id, err)
		}
	}
	s.runs = make(map[string]*activeRun)
}

func (s *Store) startRun(snap sim.Snapshot, startedAt time.Time) {
	if old, ok := s.runs[snap.Session]; ok {
		_ = old.replay.close()
		delete(s.runs, snap.Session)
	}
	run := &activeRun{startedAt: startedAt}
	log, err := newReplayLog(ReplayPath(s.dir, snap.Session))
	if err != nil {
		s.logf("[archive] open replay %s: %v", snap.Session, err)
	} else {
		run.replay = log
		if err := log.append(snap); err != nil {
			s.logf("[archive] replay %s: %v", snap.Session, err)
		}
	}
	s.runs[snap.Session] = run
	s.metrics.Add("archive.sessions.started.total", 1)
}

func (s *Store) appendFrame(snap sim.Snapshot) {
	run, ok := s.runs[snap.Session]
	if !ok || run.replay == nil {
		return
	}
	if err := run.replay.append(snap); err != nil {
		s.logf("[archive] replay %s: %v", snap.Session, err)
		_ = run.replay.close()
		run.replay = nil
		return
	}
	s.metrics.Add("archive.frames.total", 1)
}

func (s *Store) settleRun(snap sim.Snapshot) {
	run, ok := s.runs[snap.Session]
	if !ok {
		run = &activeRun{}
	}
	if run.replay != nil {
		if err := run.replay.append(snap); err != nil {
			s.logf("[archive] replay %s: %v", snap.Session, err)
		}
		if err := run.replay.close(); err != nil {
			s.logf("[archive] close replay %s: %v", snap.Session, err)
		}
		run.replay = nil
	}
	if err := s.insertSettled(snap, run.startedAt); err != nil {
		s.logf("[archive] index %s: %v", snap.Session, err)
		s.metrics.Add("archive.index.errors.total", 1)
	} else {
		s.metrics.Add("archive.sessions.settled.total", 1)
	}
	delete(s.runs, snap.Session)
}

func (s *Store) closeRun(sessionID string) {
	run, ok := s.runs[sessionID]
	if !ok {
		return
	}
	if err := run.replay.close(); err != nil {
		s.logf("[archive] close replay %s: %v", sessionID, err)
	}
	delete(s.runs, sessionID)
}

func (s *Store) insertSettled(snap sim.Snapshot, startedAt time.Time) error {
	result, err := json.Marshal(snap.Result)
	if err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	forced := 0
	if snap.Result.Forced {
		forced = 1
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO sessions(id,seed,policy,trigger_kind,quota,draw_count,layout,spawned,arrivals,started_at,settled_tick,forced,result)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		snap.Session,
		snap.Config.Seed,
		string(snap.Config.Policy),
		string(snap.Config.Trigger.Kind),
		snap.Config.Trigger.Quota,
		snap.Config.DrawCount,
		snap.Config.Layout,
		snap.Spawned,
		len(snap.Arrivals),
		startedAt.UnixMilli(),
		int64(snap.Result.ResolvedTick),
		forced,
		string(result),
	); err != nil {
		return err
	}
	for _, a := range snap.Arrivals {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO arrivals(session_id,seq,ball,name,tick,reason) VALUES(?,?,?,?,?,?)`,
			snap.Session, a.Seq, a.Ball, a.Name, int64(a.Tick), a.Reason,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SessionRecord is one settled round from the index.
type SessionRecord struct {
	ID          string          `json:"id"`
	Seed        int64           `json:"seed"`
	Policy      string          `json:"policy"`
	TriggerKind string          `json:"trigger"`
	Quota       int             `json:"quota"`
	DrawCount   int             `json:"drawCount"`
	Layout      string          `json:"layout"`
	Spawned     int             `json:"spawned"`
	Arrivals    int             `json:"arrivals"`
	StartedAt   int64           `json:"startedAt"`
	SettledTick uint64          `json:"settledTick"`
	Forced      bool            `json:"forced"`
	Result      json.RawMessage `json:"result"`
}

// Recent lists the latest settled rounds, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]SessionRecord, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,seed,policy,trigger_kind,quota,draw_count,layout,spawned,arrivals,started_at,settled_tick,forced,result
		 FROM sessions ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var settledTick int64
		var forced int
		var result string
		if err := rows.Scan(
			&rec.ID, &rec.Seed, &rec.Policy, &rec.TriggerKind, &rec.Quota, &rec.DrawCount,
			&rec.Layout, &rec.Spawned, &rec.Arrivals, &rec.StartedAt, &settledTick, &forced, &result,
		); err != nil {
			return nil, err
		}
		rec.SettledTick = uint64(settledTick)
		rec.Forced = forced != 0
		rec.Result = json.RawMessage(result)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ArrivalsFor lists the recorded arrival order for one settled session.
func (s *Store) ArrivalsFor(ctx context.Context, sessionID string) ([]ledger.Arrival, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ball,name,seq,tick,reason FROM arrivals WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var arrivals []ledger.Arrival
	for rows.Next() {
		var a ledger.Arrival
		var tick int64
		if err := rows.Scan(&a.Ball, &a.Name, &a.Seq, &tick, &a.Reason); err != nil {
			return nil, err
		}
		a.Tick = uint64(tick)
		arrivals = append(arrivals, a)
	}
	return arrivals, rows.Err()
}

func (s *Store) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
