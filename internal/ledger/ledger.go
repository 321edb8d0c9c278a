// Package ledger keeps the append-only arrival record that gacha resolution
// ranks. Insertion order is exit order; entries are never reordered or
// rewritten after the fact.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"pinball-gacha/server/internal/telemetry"
)

// ErrDuplicateBall flags a second record for a ball that already arrived.
// The lifecycle manager guarantees one exit per ball, so a duplicate here is
// a session-fatal integrity violation, not a recoverable condition.
var ErrDuplicateBall = errors.New("duplicate ball arrival")

// Policy selects how the ledger is read back for ranking.
type Policy string

const (
	// FirstIn ranks by ascending exit sequence: earliest arrivals first.
	FirstIn Policy = "first_in"
	// LastIn ranks by descending exit sequence: latest arrivals first.
	LastIn Policy = "last_in"
)

// Valid reports whether the policy is one of the known query modes.
func (p Policy) Valid() bool {
	return p == FirstIn || p == LastIn
}

// BallRef identifies one ranked ball. Ball is the unique identifier the
// draw is keyed on; Name is the participant label carried alongside for
// presentation and may repeat across balls.
type BallRef struct {
	Ball string `json:"ball"`
	Name string `json:"name"`
}

// Arrival is one exited ball. Seq starts at zero and increases by one per
// arrival, so ties are impossible by construction. Ball is the unique ball
// id; Name is the participant label shown to clients and may repeat across
// balls.
type Arrival struct {
	Ball   string `json:"ball"`
	Name   string `json:"name"`
	Seq    int    `json:"seq"`
	Tick   uint64 `json:"tick"`
	Reason string `json:"reason"`
}

// Ledger is the session's arrival record. Safe for concurrent readers; the
// session goroutine is the only writer.
type Ledger struct {
	mu       sync.RWMutex
	arrivals []Arrival
	index    map[string]int
	counters *telemetry.Counters
}

// New constructs an empty ledger. Counters may be nil.
func New(counters *telemetry.Counters) *Ledger {
	return &Ledger{
		index:    make(map[string]int),
		counters: counters,
	}
}

// Record appends an arrival for the given ball, assigning the next exit
// sequence number. A ball that already has an entry fails with
// ErrDuplicateBall and leaves the ledger unchanged.
func (l *Ledger) Record(ball, name string, tick uint64, reason string) (Arrival, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.index[ball]; exists {
		l.counters.Add("ledger.duplicates.total", 1)
		return Arrival{}, fmt.Errorf("%w: %s", ErrDuplicateBall, ball)
	}

	arrival := Arrival{
		Ball:   ball,
		Name:   name,
		Seq:    len(l.arrivals),
		Tick:   tick,
		Reason: reason,
	}
	l.index[ball] = arrival.Seq
	l.arrivals = append(l.arrivals, arrival)
	l.counters.Add("ledger.arrivals.total", 1)
	return arrival, nil
}

// Has reports whether the ball already arrived.
func (l *Ledger) Has(ball string) bool {
	if l == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.index[ball]
	return ok
}

// Len reports the number of arrivals.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.arrivals)
}

// Query returns ball references ordered per the policy: FirstIn ascending
// by exit sequence, LastIn descending. The ranking is keyed on the unique
// ball id, never the participant name, so shared names stay distinguishable.
// Unknown policies read as FirstIn.
func (l *Ledger) Query(p Policy) []BallRef {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	refs := make([]BallRef, len(l.arrivals))
	if p == LastIn {
		for i, a := range l.arrivals {
			refs[len(refs)-1-i] = BallRef{Ball: a.Ball, Name: a.Name}
		}
		return refs
	}
	for i, a := range l.arrivals {
		refs[i] = BallRef{Ball: a.Ball, Name: a.Name}
	}
	return refs
}

// Snapshot copies the ledger contents in insertion order.
func (l *Ledger) Snapshot() []Arrival {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Arrival, len(l.arrivals))
	copy(out, l.arrivals)
	return out
}

// Reset discards all arrivals so a new session can reuse the ledger.
func (l *Ledger) Reset() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.arrivals = l.arrivals[:0]
	l.index = make(map[string]int)
}
