package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the slice of the websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Subscriber is one connected viewer. Control messages (hello, acks,
// arrivals, results, heartbeats) are written directly; state broadcasts go
// through a latest-wins slot so a slow reader skips frames instead of
// backing up the simulation loop.
type Subscriber struct {
	id        string
	conn      Conn
	writeWait time.Duration

	// mu serializes writes to the connection between the read-loop replies
	// and the broadcast write loop.
	mu        sync.Mutex
	pending   chan []byte
	done      chan struct{}
	closeOnce sync.Once

	lastSeq     atomic.Uint64
	lastAck     atomic.Uint64
	lastBeat    atomic.Int64
	lastRTT     atomic.Int64
	dropped     atomic.Uint64
	connectedAt time.Time
}

func newSubscriber(id string, conn Conn, writeWait time.Duration) *Subscriber {
	return &Subscriber{
		id:          id,
		conn:        conn,
		writeWait:   writeWait,
		pending:     make(chan []byte, 1),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
}

// ID returns the viewer identifier assigned at subscribe time.
func (s *Subscriber) ID() string {
	return s.id
}

// Send writes a control message immediately, bounded by the write deadline.
func (s *Subscriber) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// OfferState queues a state broadcast, replacing any frame still waiting.
// Only the hub's loop goroutine offers frames, so the replace cannot race
// another producer.
func (s *Subscriber) OfferState(data []byte) {
	select {
	case s.pending <- data:
		return
	default:
	}
	select {
	case <-s.pending:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.pending <- data:
	default:
		s.dropped.Add(1)
	}
}

// LastCommandSeq returns the highest command sequence acknowledged so far.
func (s *Subscriber) LastCommandSeq() uint64 {
	return s.lastSeq.Load()
}

// StoreLastCommandSeq records the latest acknowledged command sequence.
func (s *Subscriber) StoreLastCommandSeq(seq uint64) {
	s.lastSeq.Store(seq)
}

// RecordAck notes the newest state sequence the viewer reports seeing.
// Stale acks are ignored.
func (s *Subscriber) RecordAck(seq uint64) {
	for {
		cur := s.lastAck.Load()
		if seq <= cur || s.lastAck.CompareAndSwap(cur, seq) {
			return
		}
	}
}

// AckedSequence returns the newest state sequence the viewer acknowledged.
func (s *Subscriber) AckedSequence() uint64 {
	return s.lastAck.Load()
}

// RecordHeartbeat stores the beat time and derives the round trip from the
// client's send timestamp when it is plausible.
func (s *Subscriber) RecordHeartbeat(receivedAt time.Time, clientSent int64) time.Duration {
	s.lastBeat.Store(receivedAt.UnixMilli())
	if clientSent > 0 {
		clientTime := time.UnixMilli(clientSent)
		if clientTime.Before(receivedAt.Add(5 * time.Second)) {
			rtt := receivedAt.Sub(clientTime)
			if rtt < 0 {
				rtt = 0
			}
			s.lastRTT.Store(rtt.Milliseconds())
		}
	}
	return time.Duration(s.lastRTT.Load()) * time.Millisecond
}

// LastHeartbeat returns the unix-millisecond time of the latest beat, zero
// before the first one.
func (s *Subscriber) LastHeartbeat() int64 {
	return s.lastBeat.Load()
}

// RTTMillis returns the latest measured round trip in milliseconds.
func (s *Subscriber) RTTMillis() int64 {
	return s.lastRTT.Load()
}

// Drops counts state frames skipped because the viewer read too slowly.
func (s *Subscriber) Drops() uint64 {
	return s.dropped.Load()
}

// ConnectedAt returns when the viewer subscribed.
func (s *Subscriber) ConnectedAt() time.Time {
	return s.connectedAt
}

// writeLoop forwards queued state frames until the subscriber closes. Write
// failures surface through onError exactly once.
func (s *Subscriber) writeLoop(onError func(*Subscriber, error)) {
	for {
		select {
		case <-s.done:
			return
		case data := <-s.pending:
			if err := s.Send(data); err != nil {
				if onError != nil {
					onError(s, err)
				}
				return
			}
		}
	}
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}
