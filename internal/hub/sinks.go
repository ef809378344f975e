package hub

import (
	"log/slog"

	"github.com/Bri-J-C/ha-intercom-sub001/internal/mcast"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/packet"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/router"
)

// NodeSink unicasts frames to one embedded node's IP, re-emitting the
// original Opus packet unchanged (same DeviceId, same sequence) — the
// router never re-encodes node-to-node traffic, per spec.md §4.7.
type NodeSink struct {
	deviceID string
	room     string
	ip       string
	sender   *mcast.Sender
	log      *slog.Logger
}

// NewNodeSink constructs a sink that unicasts to a single node's IP over the
// shared multicast-capable sender socket (unicast on the same port, per
// spec.md §6).
func NewNodeSink(deviceID, room, ip string, sender *mcast.Sender, log *slog.Logger) *NodeSink {
	return &NodeSink{deviceID: deviceID, room: room, ip: ip, sender: sender, log: log}
}

func (n *NodeSink) ID() string   { return "node:" + n.deviceID }
func (n *NodeSink) Room() string { return n.room }

func (n *NodeSink) AcceptFrame(f packet.Frame) error {
	// Frames whose origin device id matches this sink's own device id must
	// never loop back, even over unicast (defense in depth alongside
	// IP_MULTICAST_LOOP=0 for the multicast path).
	if f.DeviceID.String() == n.deviceID {
		return nil
	}
	n.sender.SendUnicast(n.ip, packet.Serialize(f))
	return nil
}

func (n *NodeSink) AcceptState(router.StateUpdate) error { return nil } // nodes have no JSON control channel

func (n *NodeSink) Close() error { return nil }

// MobileSink represents a configured mobile_devices entry that receives
// push notifications on All-Rooms call notifications only — it is never a
// frame destination, only a state/notification destination.
type MobileSink struct {
	name          string
	notifyService string
	notify        func(name, service, message string)
}

// NewMobileSink constructs a mobile push sink. notify performs the actual
// platform-specific push; its implementation is outside this system's scope
// (external collaborator, analogous to the Piper TTS engine).
func NewMobileSink(name, notifyService string, notify func(name, service, message string)) *MobileSink {
	return &MobileSink{name: name, notifyService: notifyService, notify: notify}
}

func (m *MobileSink) ID() string   { return "mobile:" + m.name }
func (m *MobileSink) Room() string { return "" } // mobile sinks are All-Rooms only; never room-scoped

func (m *MobileSink) AcceptFrame(packet.Frame) error { return nil } // mobile sinks never receive raw audio

func (m *MobileSink) AcceptState(u router.StateUpdate) error {
	if m.notify != nil {
		m.notify(m.name, m.notifyService, "Call: "+u.Speaker+" -> "+u.Target)
	}
	return nil
}

func (m *MobileSink) Close() error { return nil }

// ChimeTapSink taps every frame of an in-progress chime stream for
// diagnostics (the Audio Capture Buffer's TX path), without participating
// in normal routing decisions.
type ChimeTapSink struct {
	tap func(f packet.Frame)
}

// NewChimeTapSink constructs a sink that only observes chime frames.
func NewChimeTapSink(tap func(f packet.Frame)) *ChimeTapSink {
	return &ChimeTapSink{tap: tap}
}

func (c *ChimeTapSink) ID() string   { return "chime-tap" }
func (c *ChimeTapSink) Room() string { return "" }

func (c *ChimeTapSink) AcceptFrame(f packet.Frame) error {
	if c.tap != nil {
		c.tap(f)
	}
	return nil
}

func (c *ChimeTapSink) AcceptState(router.StateUpdate) error { return nil }

func (c *ChimeTapSink) Close() error { return nil }
