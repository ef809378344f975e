package webptt

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Bri-J-C/ha-intercom-sub001/internal/packet"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/router"
)

// sendTimeout bounds how long a per-client write may block before the
// client is treated as slow; per spec.md §5, a slow WebSocket client must
// never back-pressure the arbiter.
const sendTimeout = 200 * time.Millisecond

// client is one connected browser session: an arena entry indexed by
// ClientID (spec.md §3 WebClient, and the Design Notes §9 "arena of clients
// indexed by client_id" pattern replacing the teacher's cyclic
// client<->hub back-pointers).
type client struct {
	id         string
	deviceName string
	conn       *websocket.Conn
	send       chan []byte // outbound frames: binary PCM or JSON control

	mu       sync.Mutex
	state    ClientState
	target   string
	volume   int
	mute     bool
	dnd      bool
	agc      bool
	priority packet.Priority

	deviceID packet.DeviceID // hub-owned DeviceId, stable per connection
	seq      uint32          // next outbound sequence for this client's PTT stream

	closeOnce sync.Once
}

func newClient(id, deviceName string, conn *websocket.Conn, deviceID packet.DeviceID) *client {
	return &client{
		id:         id,
		deviceName: deviceName,
		conn:       conn,
		send:       make(chan []byte, 32),
		state:      StateReady,
		volume:     100,
		priority:   packet.PriorityNormal,
		deviceID:   deviceID,
	}
}

// setState transitions the per-client state machine. Returns the new state.
func (c *client) setState(s ClientState) ClientState {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	return s
}

func (c *client) getState() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// nextSeq returns the next sequence number for this client's hub-owned
// DeviceId, incrementing it. Sequences are contiguous and monotonic across
// suspend/resume gaps (scenario 6 in spec.md §8): nothing resets seq except
// a fresh connection.
func (c *client) nextSeq() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// trySend attempts a non-blocking enqueue; if the client's outbound buffer
// is full, the frame is dropped rather than blocking the router's fan-out
// (the drop-if-slow policy from spec.md §5).
func (c *client) trySend(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// webSink adapts a client to the router.Sink capability interface.
type webSink struct {
	c   *client
	cdc decoder
}

// decoder is the minimal Codec surface webSink needs, kept as an interface
// so tests can fake it without a real Opus decoder.
type decoder interface {
	Decode(payload []byte, fecHint bool) ([]int16, error)
}

func newWebSink(c *client, cdc decoder) *webSink { return &webSink{c: c, cdc: cdc} }

func (w *webSink) ID() string   { return w.c.id }
func (w *webSink) Room() string { c := w.c; c.mu.Lock(); t := c.target; c.mu.Unlock(); return t }

// AcceptFrame decodes the Opus payload to PCM and delivers it as a binary
// WebSocket message, per spec.md §4.7 ("for each web-client sink, decode
// Opus -> PCM and deliver raw 16-bit mono PCM").
func (w *webSink) AcceptFrame(f packet.Frame) error {
	pcm, err := w.cdc.Decode(f.Payload, false)
	if err != nil {
		return err
	}
	buf := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	w.c.setState(StateReceiving)
	w.c.trySend(buf)
	return nil
}

func (w *webSink) AcceptState(u router.StateUpdate) error {
	msg := Message{Type: TypeState, State: u.State, Speaker: u.Speaker, Target: u.Target}
	return w.c.sendJSON(msg)
}

func (w *webSink) Close() error {
	return w.c.conn.Close()
}
