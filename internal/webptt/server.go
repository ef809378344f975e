package webptt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Bri-J-C/ha-intercom-sub001/internal/arbiter"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/codec"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/packet"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/router"
)

func (c *client) sendJSON(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.trySend(data)
	return nil
}

// Handler serves the /ws WebSocket endpoint. Grounded on the teacher's
// internal/ws.Handler: a gorilla/websocket Upgrader, a hello handshake
// before any other traffic is accepted, a writer goroutine draining a
// per-client buffered channel with a write deadline, and a read loop that
// dispatches to a big switch over message type — unknown types are logged
// and ignored, never treated as fatal (Design Notes §9).
type Handler struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	arb    *arbiter.Arbiter
	rtr    *router.Router
	cdc    *codec.Codec
	nextID func() uint64

	mu      sync.Mutex
	clients map[string]*client
}

// NewHandler wires the Web PTT Server to the shared Arbiter, Router, and
// Codec. nextID supplies monotonically increasing small integers used to
// derive each connection's hub-owned DeviceId.
func NewHandler(arb *arbiter.Arbiter, rtr *router.Router, cdc *codec.Codec, nextID func() uint64, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		upgrader: websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }},
		log:      log,
		arb:      arb,
		rtr:      rtr,
		cdc:      cdc,
		nextID:   nextID,
		clients:  make(map[string]*client),
	}
}

// Register binds the /ws route on e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/ws", func(c echo.Context) error {
		conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			h.log.Warn("websocket upgrade failed", "error", err)
			return nil
		}
		go h.serveConn(conn)
		return nil
	})
}

// Run starts a standalone Echo server bound to addr, serving only /ws —
// the Web PTT Server listens on its own port per spec.md §6
// (ws://<hub>:8099/ws), separate from the diagnostics/chime HTTP API.
func (h *Handler) Run(ctx context.Context, addr string) error {
	e := echo.New()
	e.HideBanner = true
	h.Register(e)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.Shutdown(shutdownCtx)
	}()

	err := e.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func deviceIDFromUint64(n uint64) packet.DeviceID {
	var d packet.DeviceID
	binary.BigEndian.PutUint64(d[:], n)
	return d
}

func (h *Handler) serveConn(conn *websocket.Conn) {
	defer conn.Close()

	hello := Message{Type: TypeHello, Protocol: ProtocolVersion}
	if data, err := json.Marshal(hello); err == nil {
		conn.WriteMessage(websocket.TextMessage, data)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return
	}
	var identify Message
	if err := json.Unmarshal(data, &identify); err != nil || identify.Type != TypeIdentify {
		h.log.Warn("websocket handshake failed", "error", err)
		return
	}

	cl := newClient(identify.ClientID, identify.DeviceName, conn, deviceIDFromUint64(h.nextID()))
	h.mu.Lock()
	h.clients[cl.id] = cl
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, cl.id)
		h.mu.Unlock()
		h.rtr.RemoveSink(cl.id)
		h.arb.End(cl.id)
	}()

	sink := newWebSink(cl, h.cdc)
	h.rtr.AddSink(sink)

	done := make(chan struct{})
	go h.writer(cl, done)
	defer close(done)

	h.log.Info("web client connected", "client_id", cl.id)
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			cl.setState(StateClosed)
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			h.handlePCM(cl, data)
		case websocket.TextMessage:
			h.handleControl(cl, data)
		}
	}
}

func (h *Handler) writer(cl *client, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(sendTimeout))
			mt := websocket.BinaryMessage
			if len(msg) > 0 && (msg[0] == '{') {
				mt = websocket.TextMessage
			}
			if err := cl.conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}
}

// handlePCM ingests raw 16-bit mono 16 kHz PCM from the client: encodes via
// the Codec Layer, packetizes with the client's hub-owned DeviceId, passes
// to the arbiter, then routes. Per spec.md §8 scenario 6, sequences must
// stay contiguous and monotonic across a suspend/resume gap — nextSeq never
// resets mid-connection.
func (h *Handler) handlePCM(cl *client, data []byte) {
	pcm := make([]int16, len(data)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	if len(pcm) != codec.FrameSize {
		return
	}

	cl.mu.Lock()
	target := cl.target
	priority := cl.priority
	cl.mu.Unlock()
	if target == "" {
		target = "all"
	}

	sp, err := h.arb.TryAdmit(arbiter.OriginWebClient, cl.id, priority, target)
	if err != nil {
		h.sendError(cl, err.Error())
		return
	}
	_ = sp
	cl.setState(StateTransmitting)
	h.arb.Heartbeat(cl.id)

	payload, err := h.cdc.Encode(pcm)
	if err != nil {
		h.log.Warn("encode failed", "client_id", cl.id, "error", err)
		return
	}

	f := packet.Frame{DeviceID: cl.deviceID, Sequence: cl.nextSeq(), Priority: priority, Payload: payload}
	h.rtr.Route(f, target, "")
}

func (h *Handler) sendError(cl *client, msg string) {
	cl.sendJSON(Message{Type: TypeError, Error: msg})
}

// handleControl dispatches a JSON control message. Unknown types are logged
// and ignored per Design Notes §9.
func (h *Handler) handleControl(cl *client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.log.Warn("malformed control message", "client_id", cl.id, "error", err)
		return
	}

	switch msg.Type {
	case TypeTarget:
		cl.mu.Lock()
		cl.target = msg.Target
		cl.mu.Unlock()
	case TypeVolume:
		if msg.Volume != nil {
			cl.mu.Lock()
			cl.volume = *msg.Volume
			cl.mu.Unlock()
		}
	case TypeMute:
		if msg.Mute != nil {
			cl.mu.Lock()
			cl.mute = *msg.Mute
			cl.mu.Unlock()
		}
	case TypeDND:
		if msg.DND != nil {
			cl.mu.Lock()
			cl.dnd = *msg.DND
			cl.mu.Unlock()
		}
	case TypeAGC:
		if msg.AGC != nil {
			cl.mu.Lock()
			cl.agc = *msg.AGC
			cl.mu.Unlock()
		}
	case TypePriority:
		cl.mu.Lock()
		cl.priority = parsePriority(msg.Priority)
		cl.mu.Unlock()
	case TypeState:
		h.publishState(cl, true)
	case TypeCall:
		target := msg.Target
		if target == "" {
			target = "all"
		}
		cl.mu.Lock()
		priority := cl.priority
		cl.mu.Unlock()
		if _, err := h.arb.TryAdmit(arbiter.OriginWebClient, cl.id, priority, target); err == nil {
			h.arb.End(cl.id)
		}
	default:
		h.log.Debug("unknown control message type", "client_id", cl.id, "type", msg.Type)
	}
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

// publishState is the only server -> client state emitter, per spec.md
// §4.8. When notifyWeb is true it broadcasts to every sink; a caller
// wanting a single targeted update should instead call
// notifyTargetedWebClientState and pass notifyWeb=false here to prevent a
// double notification.
func (h *Handler) publishState(cl *client, notifyWeb bool) {
	state := cl.getState()
	if notifyWeb {
		h.rtr.BroadcastState(router.StateUpdate{State: state.String(), Speaker: cl.id, Target: ""})
	}
}

// notifyTargetedWebClientState sends a state update to a single client
// without broadcasting to the rest.
func (h *Handler) notifyTargetedWebClientState(clientID string, u router.StateUpdate) {
	h.mu.Lock()
	cl, ok := h.clients[clientID]
	h.mu.Unlock()
	if !ok {
		return
	}
	cl.sendJSON(Message{Type: TypeState, State: u.State, Speaker: u.Speaker, Target: u.Target})
}
