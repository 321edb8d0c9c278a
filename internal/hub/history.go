package hub

import "sync"

// BroadcastRecord summarizes one state fan-out for diagnostics.
type BroadcastRecord struct {
	Sequence   uint64 `json:"sequence"`
	Tick       uint64 `json:"tick"`
	Phase      string `json:"phase"`
	Bytes      int    `json:"bytes"`
	Viewers    int    `json:"viewers"`
	ServerTime int64  `json:"serverTime"`
}

// broadcastHistory keeps a fixed-capacity ring of recent fan-outs. Old
// entries fall off silently; diagnostics only ever wants the tail.
type broadcastHistory struct {
	mu      sync.Mutex
	entries []BroadcastRecord
	next    int
	full    bool
}

func newBroadcastHistory(capacity int) *broadcastHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &broadcastHistory{entries: make([]BroadcastRecord, capacity)}
}

func (h *broadcastHistory) record(rec BroadcastRecord) {
	h.mu.Lock()
	h.entries[h.next] = rec
	h.next++
	if h.next == len(h.entries) {
		h.next = 0
		h.full = true
	}
	h.mu.Unlock()
}

// tail returns up to limit of the most recent records, oldest first.
func (h *broadcastHistory) tail(limit int) []BroadcastRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	size := h.next
	if h.full {
		size = len(h.entries)
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]BroadcastRecord, 0, limit)
	start := h.next - limit
	if start < 0 {
		start += len(h.entries)
	}
	for i := 0; i < limit; i++ {
		out = append(out, h.entries[(start+i)%len(h.entries)])
	}
	return out
}
