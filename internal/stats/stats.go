// Package stats implements the per-sender Sequence & Metrics Tracker:
// monotonicity, gap, duplicate, and loss accounting feeding diagnostics.
// Counters are plain fields kept in a per-sender map, all guarded by a
// single RWMutex.
package stats

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time read of one sender's tracked stats.
type Snapshot struct {
	SeqMin      uint32
	SeqMax      uint32
	PacketCount uint64
	Gaps        uint64
	Duplicates  uint64
	LastSeen    time.Time
}

type entry struct {
	seen        bool
	lastSeq     uint32
	seqMin      uint32
	seqMax      uint32
	packetCount uint64
	gaps        uint64
	duplicates  uint64
	lastSeen    time.Time
}

// Tracker tracks PacketStats per DeviceId (keyed by its hex string form so
// callers don't need to import the packet package).
type Tracker struct {
	mu      sync.RWMutex
	senders map[string]*entry
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{senders: make(map[string]*entry)}
}

// Observe records one frame with sequence seq from sender. Per spec.md
// §4.4: seq == last+1 is OK; seq > last+1 increments gaps by the shortfall;
// seq <= last increments duplicates. The frame is still considered "passed
// through" by the tracker regardless of outcome — dedup, if any, happens at
// a higher layer.
func (t *Tracker) Observe(sender string, seq uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.senders[sender]
	if !ok {
		e = &entry{seqMin: seq, seqMax: seq}
		t.senders[sender] = e
	}

	if !e.seen {
		e.seen = true
		e.lastSeq = seq
		e.seqMin = seq
		e.seqMax = seq
	} else {
		switch {
		case seq == e.lastSeq+1:
			// in order
		case seq > e.lastSeq+1:
			e.gaps += uint64(seq - e.lastSeq - 1)
		default:
			e.duplicates++
		}
		e.lastSeq = seq
		if seq < e.seqMin {
			e.seqMin = seq
		}
		if seq > e.seqMax {
			e.seqMax = seq
		}
	}

	e.packetCount++
	e.lastSeen = time.Now()
}

// Snapshot returns the current stats for sender, or the zero Snapshot and
// false if nothing has been observed from it.
func (t *Tracker) Snapshot(sender string) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.senders[sender]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		SeqMin:      e.seqMin,
		SeqMax:      e.seqMax,
		PacketCount: e.packetCount,
		Gaps:        e.gaps,
		Duplicates:  e.duplicates,
		LastSeen:    e.lastSeen,
	}, true
}

// All returns a snapshot of every tracked sender, keyed by sender id.
func (t *Tracker) All() map[string]Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Snapshot, len(t.senders))
	for id, e := range t.senders {
		out[id] = Snapshot{
			SeqMin:      e.seqMin,
			SeqMax:      e.seqMax,
			PacketCount: e.packetCount,
			Gaps:        e.gaps,
			Duplicates:  e.duplicates,
			LastSeen:    e.lastSeen,
		}
	}
	return out
}

// Reset clears all tracked state, per the explicit reset API in spec.md §3.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.senders = make(map[string]*entry)
}
