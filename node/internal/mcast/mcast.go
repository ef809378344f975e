// Package mcast mirrors the hub's internal/mcast multicast transport for the
// node side. Duplicated, not imported, per the node/hub module split.
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

// Error is a typed transport failure.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("[mcast] %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Sender transmits frames to the multicast group with loop suppression and
// TTL 1.
type Sender struct {
	conn *net.UDPConn
	dst  *net.UDPAddr
	log  *slog.Logger
}

// NewSender binds and configures a multicast TX socket on ifaceName.
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
	if log == nil {
		log = slog.Default()
	}
	return &Sender{conn: conn, dst: &net.UDPAddr{IP: net.ParseIP(group), Port: port}, log: log}, nil
}

// Send transmits one datagram. Failures are soft: logged, never fatal.
func (s *Sender) Send(data []byte) {
	if _, err := s.conn.WriteToUDP(data, s.dst); err != nil {
		s.log.Warn("multicast send failed", "error", err)
	}
}

func (s *Sender) Close() error { return s.conn.Close() }

// Receiver listens on INADDR_ANY:port, joined to the group on ifaceName.
type Receiver struct {
	conn *net.UDPConn
	log  *slog.Logger
}

// NewReceiver binds and joins the multicast group.
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
	return &Receiver{conn: conn, log: log}, nil
}

// Datagram is one received UDP payload plus source address.
type Datagram struct {
	Data []byte
	From *net.UDPAddr
}

// Run reads datagrams until ctx is canceled.
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
				r.log.Warn("multicast recv failed", "error", err)
				continue
			}
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		handle(Datagram{Data: cp, From: addr})
	}
}

func (r *Receiver) Close() error { return r.conn.Close() }
