// Package mcast implements the paired UDP multicast sender/receiver used for
// node<->hub audio transport. It mirrors the lifecycle shape of the teacher's
// server.go (construct, Run(ctx) blocking with graceful shutdown on context
// cancellation) but over net.UDPConn plus golang.org/x/net/ipv4 for the
// multicast-specific socket options (TTL, loop suppression, interface join)
// that the standard library alone cannot express.
package mcast

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/net/ipv4"
)

const (
	DefaultGroup = "239.255.0.100"
	DefaultPort  = 5005
	DefaultTTL   = 1
)

// Error is a typed transport failure. Kind is one of TransportBind,
// GroupJoin, Send, Recv.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("[mcast] %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Sender transmits datagrams to the multicast group with loop suppression
// and TTL 1, bound to a specific LAN interface.
type Sender struct {
	conn *net.UDPConn
	pc   *ipv4.PacketConn
	dst  *net.UDPAddr
	log  *slog.Logger
}

// NewSender binds a UDP socket on ifaceName (resolved explicitly — falling
// back to "any" interface is a configuration error per spec.md §4.3) and
// configures it for multicast TX: IP_MULTICAST_LOOP=0, IP_MULTICAST_TTL=1.
func NewSender(group string, port int, ifaceName string, log *slog.Logger) (*Sender, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, &Error{Kind: "TransportBind", Err: fmt.Errorf("resolve interface %q: %w", ifaceName, err)}
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, &Error{Kind: "TransportBind", Err: err}
	}

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastInterface(iface); err != nil {
		conn.Close()
		return nil, &Error{Kind: "TransportBind", Err: err}
	}
	if err := pc.SetMulticastTTL(DefaultTTL); err != nil {
		conn.Close()
		return nil, &Error{Kind: "TransportBind", Err: err}
	}
	if err := pc.SetMulticastLoopback(false); err != nil {
		conn.Close()
		return nil, &Error{Kind: "TransportBind", Err: err}
	}

	dst := &net.UDPAddr{IP: net.ParseIP(group), Port: port}

	if log == nil {
		log = slog.Default()
	}
	return &Sender{conn: conn, pc: pc, dst: dst, log: log}, nil
}

// Send transmits one datagram. Failures are soft per spec.md §7: log and
// continue, never fatal.
func (s *Sender) Send(data []byte) {
	if _, err := s.conn.WriteToUDP(data, s.dst); err != nil {
		s.log.Warn("multicast send failed", "error", err, "kind", "Send")
	}
}

// SendUnicast transmits one datagram directly to a node's IP on the standard
// intercom port, over the same socket used for multicast TX. Used for
// room-targeted traffic so only the node(s) in that room receive it, instead
// of every node on the multicast group filtering it out locally.
func (s *Sender) SendUnicast(ip string, data []byte) {
	addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: s.dst.Port}
	if _, err := s.conn.WriteToUDP(data, addr); err != nil {
		s.log.Warn("unicast send failed", "error", err, "kind", "Send", "ip", ip)
	}
}

// Close releases the underlying socket.
func (s *Sender) Close() error { return s.conn.Close() }

// Receiver listens on INADDR_ANY:port, joined to the multicast group on a
// specific LAN interface.
type Receiver struct {
	conn *net.UDPConn
	pc   *ipv4.PacketConn
	log  *slog.Logger
}

// NewReceiver binds 0.0.0.0:port and joins the multicast group on ifaceName.
func NewReceiver(group string, port int, ifaceName string, log *slog.Logger) (*Receiver, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, &Error{Kind: "TransportBind", Err: fmt.Errorf("resolve interface %q: %w", ifaceName, err)}
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, &Error{Kind: "TransportBind", Err: err}
	}

	pc := ipv4.NewPacketConn(conn)
	groupAddr := &net.UDPAddr{IP: net.ParseIP(group)}
	if err := pc.JoinGroup(iface, groupAddr); err != nil {
		conn.Close()
		return nil, &Error{Kind: "GroupJoin", Err: err}
	}

	if log == nil {
		log = slog.Default()
	}
	return &Receiver{conn: conn, pc: pc, log: log}, nil
}

// Datagram is one received UDP payload plus its source address. The hub
// filters self-reception by the frame's DeviceId, not by From.
type Datagram struct {
	Data []byte
	From *net.UDPAddr
}

// Run reads datagrams until ctx is canceled, delivering each to handle.
// Recv failures are soft: logged and the loop continues.
func (r *Receiver) Run(ctx context.Context, handle func(Datagram)) {
	go func() {
		<-ctx.Done()
		r.conn.Close()
	}()

	buf := make([]byte, 1500)
	for {
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				r.log.Warn("multicast recv failed", "error", err, "kind", "Recv")
				continue
			}
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		handle(Datagram{Data: cp, From: addr})
	}
}

// Close releases the underlying socket.
func (r *Receiver) Close() error { return r.conn.Close() }
