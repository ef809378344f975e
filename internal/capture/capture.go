// Package capture implements the Audio Capture Buffer: a fixed-capacity ring
// of recent frames tapped from both the RX and TX paths, for diagnostics.
// Ring mechanics are grounded on the teacher's client/internal/jitter
// package (a fixed-size slice used as a circular buffer) simplified from a
// per-sender reordering buffer down to a single shared ring of tagged
// entries, per spec.md §4.11. It uses its own mutex, separate from the
// arbiter's, so diagnostics reads can never stall the hot path (Design
// Notes §9).
package capture

import (
	"sync"
	"time"

	"github.com/Bri-J-C/ha-intercom-sub001/internal/packet"
)

// Direction tags which path a captured frame came from.
type Direction string

const (
	RX Direction = "rx"
	TX Direction = "tx"
)

const DefaultCapacity = 2000 // ~40s at 20ms/frame

// Entry is one captured frame.
type Entry struct {
	Direction   Direction
	DeviceID    packet.DeviceID
	Sequence    uint32
	TimestampMs int64
	Opus        []byte
}

// Buffer is a fixed-capacity ring buffer with RX/TX taps.
type Buffer struct {
	mu       sync.Mutex
	ring     []Entry
	next     int
	count    int
	capacity int
	enabled  bool
}

// New constructs a disabled Buffer with the given capacity (0 means
// DefaultCapacity).
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{ring: make([]Entry, capacity), capacity: capacity}
}

// Start enables capture. Idempotent: a second Start without an intervening
// Stop leaves observable state unchanged, per spec.md §8.
func (b *Buffer) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = true
}

// Stop disables capture without clearing buffered entries.
func (b *Buffer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = false
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next = 0
	b.count = 0
}

// Tap records one frame if capture is enabled. Safe for concurrent callers
// on both the RX and TX paths.
func (b *Buffer) Tap(dir Direction, deviceID packet.DeviceID, seq uint32, opus []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.enabled {
		return
	}
	b.ring[b.next] = Entry{
		Direction:   dir,
		DeviceID:    deviceID,
		Sequence:    seq,
		TimestampMs: time.Now().UnixMilli(),
		Opus:        append([]byte(nil), opus...),
	}
	b.next = (b.next + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// Filter narrows a Fetch call; zero values mean "don't filter on this
// field".
type Filter struct {
	Direction Direction
	DeviceID  string // hex-encoded; empty means any
	SinceMs   int64
	Limit     int
}

// Fetch returns a snapshot of buffered entries matching filter, oldest
// first, bounded by filter.Limit (0 means unbounded).
func (b *Buffer) Fetch(filter Filter) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, 0, b.count)
	start := (b.next - b.count + b.capacity) % b.capacity
	for i := 0; i < b.count; i++ {
		idx := (start + i) % b.capacity
		e := b.ring[idx]
		if filter.Direction != "" && e.Direction != filter.Direction {
			continue
		}
		if filter.DeviceID != "" && e.DeviceID.String() != filter.DeviceID {
			continue
		}
		if filter.SinceMs > 0 && e.TimestampMs < filter.SinceMs {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}
