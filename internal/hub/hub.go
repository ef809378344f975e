// Package hub assembles the twelve core components into a single Hub
// context struct, replacing the process-wide singletons the source system
// used, per Design Notes §9: one struct constructed at startup and passed by
// reference to every subsystem, with lifecycle init-in-dependency-order and
// shutdown-in-reverse — mirroring the teacher's server/main.go wiring (a
// Room built first, then callbacks registered into it via setter methods,
// then servers started last).
package hub

import (
	"context"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/Bri-J-C/ha-intercom-sub001/internal/arbiter"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/capture"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/chime"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/codec"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/controlplane"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/hubcfg"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/mcast"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/packet"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/router"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/stats"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/store"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/tts"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/webptt"
)

// arbiterPollInterval is how often the background loop checks for 500 ms
// idle reclaim, per spec.md §4.6.
const arbiterPollInterval = 50 * time.Millisecond

// Hub holds every subsystem, constructed once at startup.
type Hub struct {
	Config *hubcfg.Config
	DeviceID packet.DeviceID

	Codec    *codec.Codec
	Arbiter  *arbiter.Arbiter
	Router   *router.Router
	Tracker  *stats.Tracker
	Chimes   *chime.Store
	Capture  *capture.Buffer
	Store    *store.Store
	Nodes    *NodeSet
	Control  *controlplane.Client
	TTS      *tts.Bridge
	WebPTT   *webptt.Handler

	mcastSender   *mcast.Sender
	mcastReceiver *mcast.Receiver

	log *slog.Logger

	seq uint32 // counter behind nextSeqAsID, which numbers web-client connections
}

// Deps carries the already-constructed pieces a Hub wires together; kept as
// a struct rather than a long constructor parameter list, following the
// teacher's style of building each subsystem in main.go before injecting it.
type Deps struct {
	Config   *hubcfg.Config
	Codec    *codec.Codec
	Store    *store.Store
	Chimes   *chime.Store
	Sender   *mcast.Sender
	Receiver *mcast.Receiver
	Synth    tts.Synthesizer
	Log      *slog.Logger
}

// New assembles a Hub from already-constructed dependencies, in dependency
// order: arbiter first (nothing depends on it being wired up yet), then
// router (needs the sender for multicast fan-out), then the higher-level
// components that consult both.
func New(d Deps) *Hub {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	arb := arbiter.New(log.With("component", "arbiter"))
	tracker := stats.New()
	cap := capture.New(capture.DefaultCapacity)
	nodes := newNodeSet()

	rtr := router.New(&multicastSenderAdapter{d.Sender}, d.Codec, log.With("component", "router"))

	h := &Hub{
		Config:        d.Config,
		DeviceID:      deviceIDFromName(d.Config.DeviceName),
		Codec:         d.Codec,
		Arbiter:       arb,
		Router:        rtr,
		Tracker:       tracker,
		Chimes:        d.Chimes,
		Capture:       cap,
		Store:         d.Store,
		Nodes:         nodes,
		mcastSender:   d.Sender,
		mcastReceiver: d.Receiver,
		log:           log,
	}

	arb.OnTrailOut(func(priority packet.Priority, target string) {
		h.emitTrailOutSilence(priority, target)
	})

	h.WebPTT = webptt.NewHandler(arb, rtr, d.Codec, h.nextSeqAsID, log.With("component", "webptt"))

	if d.Synth != nil {
		h.TTS = tts.New(arb, d.Synth, h.injectTTSFrames, log.With("component", "tts"))
	}

	return h
}

// injectTTSFrames is the tts.Injector: it encodes synthesized PCM frames to
// Opus and streams them exactly like PlayChime — admitted through the
// arbiter under a synthetic OriginTts speaker, wall-clock paced at 20ms per
// frame, routed to the request's target.
func (h *Hub) injectTTSFrames(req tts.Request, frames [][]int16) {
	originID := "tts:" + req.Message
	if _, err := h.Arbiter.TryAdmit(arbiter.OriginTts, originID, req.Priority, req.Target); err != nil {
		h.log.Info("tts admission rejected", "error", err)
		return
	}
	defer h.Arbiter.End(originID)

	start := time.Now()
	for i, pcm := range frames {
		deadline := start.Add(time.Duration(i) * 20 * time.Millisecond)
		if d := time.Until(deadline); d > 0 {
			time.Sleep(d)
		}
		h.Arbiter.Heartbeat(originID)
		payload, err := h.Codec.Encode(pcm)
		if err != nil {
			h.log.Warn("tts frame encode failed", "error", err)
			continue
		}
		f := packet.Frame{DeviceID: h.DeviceID, Sequence: uint32(i), Priority: req.Priority, Payload: payload}
		h.Capture.Tap(capture.TX, h.DeviceID, f.Sequence, payload)
		h.Router.Route(f, req.Target, "")
	}
}

func (h *Hub) nextSeqAsID() uint64 {
	h.seq++
	return uint64(h.seq)
}

// deviceIDFromName derives a stable 8-byte DeviceId for the hub itself from
// its configured device name, so every chime/trail-out/TTS stream the hub
// originates carries the same sender identity the node side's chime
// detection (spec.md §4.12) keys off of.
func deviceIDFromName(name string) packet.DeviceID {
	var d packet.DeviceID
	sum := uint64(14695981039346656037) // FNV-1a offset basis
	for i := 0; i < len(name); i++ {
		sum ^= uint64(name[i])
		sum *= 1099511628211
	}
	binary.BigEndian.PutUint64(d[:], sum)
	return d
}

// multicastSenderAdapter satisfies router.NodeSender over a *mcast.Sender.
// Unicast-by-IP is handled by per-room hub.NodeSink entries registered
// directly on the router instead.
type multicastSenderAdapter struct{ s *mcast.Sender }

func (a *multicastSenderAdapter) SendMulticast(data []byte) {
	if a.s != nil {
		a.s.Send(data)
	}
}
func (a *multicastSenderAdapter) SendUnicast(string, []byte) {} // unused: see NodeSink

// ConnectControlPlane dials MQTT and wires discovery/availability/call
// handling into the node set and arbiter.
func (h *Hub) ConnectControlPlane(cfg controlplane.Config) error {
	c, err := controlplane.Connect(cfg, h.log.With("component", "controlplane"))
	if err != nil {
		return err
	}
	c.OnNode(h.handleNodeAnnouncement)
	c.OnCall(h.handleCall)
	h.Control = c
	return nil
}

// handleNodeAnnouncement applies the announcement to the node set, then
// reconciles the router's NodeSink registrations: a node transitioning to
// online gets a unicast sink so room-targeted traffic reaches its IP; a node
// going offline (or dropping its room) has its sink removed so the router
// never unicasts to a stale address. Per Design Notes §9's lock order
// (arbiter -> node set -> chime store -> capture), this runs after the node
// set's own lock is released.
func (h *Hub) handleNodeAnnouncement(a controlplane.NodeAnnouncement) {
	h.Nodes.Apply(a)

	sinkID := "node:" + a.DeviceID
	h.Router.RemoveSink(sinkID)

	for _, n := range h.Nodes.All() {
		if n.DeviceID == a.DeviceID {
			if n.Online && n.IP != "" {
				sink := NewNodeSink(n.DeviceID, n.Room, n.IP, h.mcastSender, h.log.With("component", "nodesink"))
				h.Router.AddSink(sink)
			}
			break
		}
	}
}

// handleCall reacts to an incoming (non-self) MQTT call notification by
// admitting a synthetic Chime speaker and streaming its frames with
// wall-clock pacing, per spec.md §8 scenario 3.
func (h *Hub) handleCall(p controlplane.CallPayload) {
	if p.Chime == "" {
		return
	}
	c, err := h.Chimes.Get(p.Chime)
	if err != nil {
		h.log.Warn("call references unknown chime", "chime", p.Chime, "error", err)
		return
	}
	priority := parsePriority(p.Priority)
	h.PlayChime(c, p.ToRoom, priority)
}

func parsePriority(s string) packet.Priority {
	switch s {
	case "high":
		return packet.PriorityHigh
	case "emergency":
		return packet.PriorityEmergency
	default:
		return packet.PriorityNormal
	}
}

// PlayChime streams a pre-encoded chime's frames to target using wall-clock
// pacing: frame N is emitted at start_time + N*20ms regardless of how long
// frame N-1 took to dispatch, preventing cumulative drift over long streams
// (spec.md §5). It runs synchronously on the calling goroutine (the hub's
// single TX scheduler), admitted through the arbiter like any other speaker.
func (h *Hub) PlayChime(c *chime.Chime, target string, priority packet.Priority) {
	originID := "chime:" + c.Name
	if _, err := h.Arbiter.TryAdmit(arbiter.OriginChime, originID, priority, target); err != nil {
		h.log.Info("chime admission rejected", "chime", c.Name, "error", err)
		return
	}
	defer h.Arbiter.End(originID)

	// Sequence restarts at 0 for every chime stream — the node side's chime
	// detection (spec.md §4.12) keys off exactly this: a multicast stream
	// whose sender DeviceId is the hub's and whose sequence restarts.
	start := time.Now()
	for i, payload := range c.Frames {
		deadline := start.Add(time.Duration(i) * 20 * time.Millisecond)
		if d := time.Until(deadline); d > 0 {
			time.Sleep(d)
		}
		h.Arbiter.Heartbeat(originID)
		f := packet.Frame{DeviceID: h.DeviceID, Sequence: uint32(i), Priority: priority, Payload: payload}
		h.Capture.Tap(capture.TX, h.DeviceID, f.Sequence, payload)
		h.Router.Route(f, target, "")
	}
}

// emitTrailOutSilence sends one frame of silence at the outgoing speaker's
// priority whenever the channel returns to Idle (explicit end or 500 ms
// timeout reclaim), per spec.md §4.6.
func (h *Hub) emitTrailOutSilence(priority packet.Priority, target string) {
	if target == "" {
		return
	}
	payload, err := h.Codec.Encode(codec.Silence())
	if err != nil {
		h.log.Warn("trail-out silence encode failed", "error", err)
		return
	}
	f := packet.Frame{DeviceID: h.DeviceID, Sequence: 0, Priority: priority, Payload: payload}
	h.Router.Route(f, target, "")
}

// handleMulticastDatagram parses one inbound UDP datagram from a node,
// enforcing no-self-reception (spec.md §8), updating the Sequence & Metrics
// Tracker, tapping the RX capture path, admitting through the arbiter, and
// routing onward.
func (h *Hub) handleMulticastDatagram(dg mcast.Datagram) {
	f, err := packet.Parse(dg.Data)
	if err != nil {
		h.log.Debug("malformed packet", "error", err)
		return
	}
	if f.DeviceID == h.DeviceID {
		return // defense in depth alongside IP_MULTICAST_LOOP=0
	}

	h.Tracker.Observe(f.DeviceID.String(), f.Sequence)
	h.Capture.Tap(capture.RX, f.DeviceID, f.Sequence, f.Payload)

	var room string
	for _, n := range h.Nodes.All() {
		if n.DeviceID == f.DeviceID.String() {
			room = n.Room
			break
		}
	}

	originID := f.DeviceID.String()
	if _, err := h.Arbiter.TryAdmit(arbiter.OriginEmbeddedNode, originID, f.Priority, room); err != nil {
		return
	}
	h.Arbiter.Heartbeat(originID)
	h.Router.Route(f, room, "")
}

// Run starts every background loop (multicast RX, arbiter idle-timeout
// polling, TTS worker) until ctx is canceled, mirroring the teacher's
// server/main.go pattern of one goroutine per concern.
func (h *Hub) Run(ctx context.Context) {
	go h.mcastReceiver.Run(ctx, h.handleMulticastDatagram)

	go func() {
		ticker := time.NewTicker(arbiterPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.Arbiter.CheckTimeout()
			}
		}
	}()

	if h.TTS != nil {
		go h.TTS.Run(ctx)
	}

	<-ctx.Done()
}

// Close shuts down subsystems in reverse of construction order.
func (h *Hub) Close() {
	if h.Control != nil {
		h.Control.Disconnect()
	}
	if h.mcastReceiver != nil {
		h.mcastReceiver.Close()
	}
	if h.mcastSender != nil {
		h.mcastSender.Close()
	}
	if h.Store != nil {
		h.Store.Close()
	}
}
