// Package arbiter implements the Channel Arbiter: the state machine that
// owns "who is currently speaking on this hub" and enforces first-to-talk
// with priority preemption, do-not-disturb, and 500 ms idle reclaim.
//
// Mutex discipline follows the teacher's internal/core.ChannelState: a
// single sync.Mutex guards all state, slog logs admit/preempt/timeout
// transitions at Info; routine heartbeats are not logged. Per the redesign notes,
// this mutex is the hub's primary serialization point; any operation
// requiring the node set, chime store, or capture buffer lock in addition to
// this one must acquire them in the declared order arbiter -> node set ->
// chime store -> capture, never the reverse.
package arbiter

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Bri-J-C/ha-intercom-sub001/internal/packet"
)

// IdleTimeout is the silence duration after which a Busy channel
// auto-reclaims to Idle, per spec.md §4.6. It resets on every admitted
// frame's heartbeat, not just the first (spec.md §9 Open Questions).
const IdleTimeout = 500 * time.Millisecond

// OriginKind distinguishes where a Speaker's frames come from.
type OriginKind int

const (
	OriginEmbeddedNode OriginKind = iota
	OriginWebClient
	OriginTts
	OriginChime
)

// Speaker is an admitted source of frames.
type Speaker struct {
	OriginKind OriginKind
	OriginID   string
	Priority   packet.Priority
	Target     string // room name or "all"
	StartedAt  time.Time
	lastFrameAt time.Time
}

// RejectReason explains why try_admit failed.
type RejectReason string

const (
	RejectBusy RejectReason = "busy"
	RejectDND  RejectReason = "dnd"
)

// Error wraps a rejection as the synchronous ArbiterBusy/ArbiterDnd error
// kinds from spec.md §7.
type Error struct {
	Kind   string // "ArbiterBusy" or "ArbiterDnd"
	Reason RejectReason
}

func (e *Error) Error() string { return fmt.Sprintf("[arbiter] %s: %s", e.Kind, e.Reason) }

// PreemptedFunc is invoked synchronously, while the arbiter's lock is held,
// to notify a speaker it has just been preempted. Implementations must not
// call back into the Arbiter.
type PreemptedFunc func(prev Speaker)

// TrailOutFunc is invoked (outside the lock) whenever the channel transitions
// to Idle, carrying the priority the outgoing speaker held, so the caller can
// emit trail-out silence frames.
type TrailOutFunc func(priority packet.Priority, target string)

// Arbiter is the single-speaker channel state machine.
type Arbiter struct {
	mu  sync.Mutex
	log *slog.Logger

	busy    bool
	current Speaker
	dnd     bool

	onPreempt PreemptedFunc
	onTrailOut TrailOutFunc
}

// New constructs an idle Arbiter.
func New(log *slog.Logger) *Arbiter {
	if log == nil {
		log = slog.Default()
	}
	return &Arbiter{log: log}
}

// OnPreempt registers the callback invoked when a speaker is preempted.
func (a *Arbiter) OnPreempt(f PreemptedFunc) { a.onPreempt = f }

// OnTrailOut registers the callback invoked on transition to Idle.
func (a *Arbiter) OnTrailOut(f TrailOutFunc) { a.onTrailOut = f }

// SetDND toggles do-not-disturb. When on, only Emergency admissions succeed.
func (a *Arbiter) SetDND(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dnd = on
	a.log.Info("dnd changed", "on", on)
}

// DND reports the current do-not-disturb setting.
func (a *Arbiter) DND() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dnd
}

// TryAdmit attempts to admit a new speaker. Returns nil on admission, or an
// *Error with Kind ArbiterBusy/ArbiterDnd on rejection. On preemption, the
// previously-active speaker's onPreempt callback fires before this call
// returns, while the lock is still held — per spec.md's ordering guarantee
// that the preempted speaker receives a synchronous rejection.
func (a *Arbiter) TryAdmit(origin OriginKind, originID string, priority packet.Priority, target string) (Speaker, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dnd && priority != packet.PriorityEmergency {
		return Speaker{}, &Error{Kind: "ArbiterDnd", Reason: RejectDND}
	}

	now := time.Now()
	if !a.busy {
		a.busy = true
		a.current = Speaker{OriginKind: origin, OriginID: originID, Priority: priority, Target: target, StartedAt: now, lastFrameAt: now}
		a.log.Info("admitted", "origin_id", originID, "priority", priority, "target", target)
		return a.current, nil
	}

	if priority > a.current.Priority {
		prev := a.current
		if a.onPreempt != nil {
			a.onPreempt(prev)
		}
		a.current = Speaker{OriginKind: origin, OriginID: originID, Priority: priority, Target: target, StartedAt: now, lastFrameAt: now}
		a.log.Info("preempted", "previous_origin_id", prev.OriginID, "new_origin_id", originID, "priority", priority)
		return a.current, nil
	}

	return Speaker{}, &Error{Kind: "ArbiterBusy", Reason: RejectBusy}
}

// Heartbeat updates the last-frame timestamp for the active speaker. Calls
// for any origin other than the currently active one are ignored (the
// speaker has already been preempted or ended).
func (a *Arbiter) Heartbeat(originID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy && a.current.OriginID == originID {
		a.current.lastFrameAt = time.Now()
	}
}

// End explicitly releases the channel if originID is the active speaker.
// Emits trail-out silence at the outgoing speaker's priority.
func (a *Arbiter) End(originID string) {
	a.mu.Lock()
	if !a.busy || a.current.OriginID != originID {
		a.mu.Unlock()
		return
	}
	prev := a.current
	a.busy = false
	a.current = Speaker{}
	a.mu.Unlock()

	a.log.Info("ended", "origin_id", originID)
	if a.onTrailOut != nil {
		a.onTrailOut(prev.Priority, prev.Target)
	}
}

// CheckTimeout reclaims the channel to Idle if no heartbeat has arrived for
// IdleTimeout. Intended to be polled periodically (e.g. every 50 ms) by the
// hub's background loop. Returns true if a reclaim occurred.
func (a *Arbiter) CheckTimeout() bool {
	a.mu.Lock()
	if !a.busy {
		a.mu.Unlock()
		return false
	}
	if time.Since(a.current.lastFrameAt) < IdleTimeout {
		a.mu.Unlock()
		return false
	}
	prev := a.current
	a.busy = false
	a.current = Speaker{}
	a.mu.Unlock()

	a.log.Info("idle reclaim", "origin_id", prev.OriginID)
	if a.onTrailOut != nil {
		a.onTrailOut(prev.Priority, prev.Target)
	}
	return true
}

// Current returns a snapshot of the active speaker and whether the channel
// is busy. Safe to call concurrently with admit/end/heartbeat.
func (a *Arbiter) Current() (Speaker, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current, a.busy
}

// IsBusy is the logical "someone is talking" predicate from spec.md §4.6:
// true when the arbiter itself is Busy, OR the caller's supplied
// webClientsActive predicate reports any WebClient in {transmitting,
// receiving}. Per the resolved Open Question in spec.md §9, this is a
// strictly derived snapshot read: it takes the arbiter lock only long
// enough to read `busy`, and does not serialize with webClientsActive.
func (a *Arbiter) IsBusy(webClientsActive func() bool) bool {
	a.mu.Lock()
	busy := a.busy
	a.mu.Unlock()
	if busy {
		return true
	}
	if webClientsActive != nil {
		return webClientsActive()
	}
	return false
}
