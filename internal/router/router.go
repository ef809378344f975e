// Package router implements the Session Router: given an admitted speaker
// and target room, it computes the set of sinks a frame should fan out to
// and dispatches it. Sinks are modeled as a capability interface per the
// Design Notes (§9) rather than duck-typed — NodeSink, WebSink, MobileSink,
// and ChimeTapSink each satisfy Sink.
//
// The fan-out loop is grounded on the teacher's room.go Broadcast: a
// read-locked snapshot of matching targets is taken, the lock released, and
// sends happen outside the lock using a pooled slice to avoid allocating on
// every call.
package router

import (
	"log/slog"
	"sync"

	"github.com/Bri-J-C/ha-intercom-sub001/internal/codec"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/packet"
)

// StateUpdate is a sink-agnostic notification of channel state, delivered to
// web/mobile sinks (e.g. {type:"state", state:"transmitting", ...}).
type StateUpdate struct {
	State  string
	Speaker string
	Target string
}

// Sink is the capability set any destination the router fans frames out to
// must implement.
type Sink interface {
	ID() string
	Room() string
	AcceptFrame(f packet.Frame) error
	AcceptState(u StateUpdate) error
	Close() error
}

const allTarget = "all"

// IsAllRooms reports whether a target string is the "all"/"all rooms"
// sentinel, case-insensitively.
func IsAllRooms(target string) bool {
	switch normalizeTarget(target) {
	case "all", "all rooms", "allrooms":
		return true
	default:
		return false
	}
}

func normalizeTarget(target string) string {
	out := make([]byte, 0, len(target))
	for _, r := range target {
		if r >= 'A' && r <= 'Z' {
			r = r + ('a' - 'A')
		}
		out = append(out, byte(r))
	}
	return string(out)
}

// NodeSender abstracts unicast/multicast transmission toward nodes. Route
// uses it only for the multicast send on "all" targets; room-targeted frames
// reach nodes through their registered Sinks.
type NodeSender interface {
	SendUnicast(ip string, data []byte)
	SendMulticast(data []byte)
}

var targetPool = sync.Pool{New: func() any { s := make([]Sink, 0, 16); return &s }}

// Router dispatches admitted frames to sinks by room.
type Router struct {
	mu    sync.RWMutex
	sinks map[string]Sink // keyed by Sink.ID()
	nodes NodeSender
	cdc   *codec.Codec
	log   *slog.Logger
}

// New constructs a Router. nodes performs the actual UDP transmission for
// node-bound frames; cdc decodes Opus for web-bound frames.
func New(nodes NodeSender, cdc *codec.Codec, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{sinks: make(map[string]Sink), nodes: nodes, cdc: cdc, log: log}
}

// AddSink registers a sink. Replaces any existing sink with the same ID.
func (r *Router) AddSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[s.ID()] = s
}

// RemoveSink closes and unregisters a sink by ID.
func (r *Router) RemoveSink(id string) {
	r.mu.Lock()
	s, ok := r.sinks[id]
	delete(r.sinks, id)
	r.mu.Unlock()
	if ok {
		if err := s.Close(); err != nil {
			r.log.Warn("sink close failed", "id", id, "error", err)
		}
	}
}

// Route fans a frame out per spec.md §4.7.
//
// target == a node's room -> unicast UDP to that node's IP plus WebSocket
// broadcast to web clients whose target matches.
// target == "all" -> multicast UDP plus WebSocket broadcast to all web
// clients plus (call notifications only, not handled here) mobile push.
//
// sourceNodeIP is not consulted; loop-back to a speaking node is prevented
// by NodeSink's DeviceId check, IP_MULTICAST_LOOP=0 and DeviceId filtering
// on RX.
func (r *Router) Route(f packet.Frame, target string, sourceNodeIP string) {
	if r.nodes != nil {
		if IsAllRooms(target) {
			r.nodes.SendMulticast(packet.Serialize(f))
		}
		// Room-targeted unicast to specific node IPs is driven by the node
		// set, which the caller (hub wiring) resolves and passes via
		// per-room NodeSink entries below; the shared multicast group
		// already reaches every node for "all" targets.
	}

	sp := targetPool.Get().(*[]Sink)
	targets := (*sp)[:0]

	r.mu.RLock()
	all := IsAllRooms(target)
	for _, s := range r.sinks {
		if !all && s.Room() != target {
			continue
		}
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	for _, s := range targets {
		if err := r.deliver(s, f); err != nil {
			r.log.Warn("sink deliver failed", "id", s.ID(), "error", err)
		}
	}

	*sp = targets
	targetPool.Put(sp)
}

// deliver hands one Opus frame to one sink unchanged; any decoding to PCM is
// done by the sink's own AcceptFrame.
func (r *Router) deliver(s Sink, f packet.Frame) error {
	return s.AcceptFrame(f)
}

// BroadcastState pushes a StateUpdate to every registered sink. Per the Web
// PTT Server contract, per-client targeted updates should be sent directly
// to a single sink with notify_web suppressed on the subsequent broadcast —
// that suppression is the caller's responsibility (webptt package), not the
// router's.
func (r *Router) BroadcastState(u StateUpdate) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sinks {
		if err := s.AcceptState(u); err != nil {
			r.log.Warn("sink state push failed", "id", s.ID(), "error", err)
		}
	}
}
