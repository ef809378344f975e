package piper

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"
)

// fakePiperServer accepts one connection, reads the length-prefixed message,
// and replies with the given PCM frames terminated by a zero-length frame.
func fakePiperServer(t *testing.T, frames [][]int16) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var lenBuf [4]byte
		if _, err := readFullConn(conn, lenBuf[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		msg := make([]byte, n)
		if _, err := readFullConn(conn, msg); err != nil {
			return
		}

		for _, f := range frames {
			payload := make([]byte, len(f)*2)
			for i, v := range f {
				binary.LittleEndian.PutUint16(payload[i*2:], uint16(v))
			}
			var hdr [4]byte
			binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
			conn.Write(hdr[:])
			conn.Write(payload)
		}
		var term [4]byte
		conn.Write(term[:])
	}()

	return ln.Addr().String()
}

func readFullConn(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestSynthesizeReadsFramesUntilTerminator(t *testing.T) {
	addr := fakePiperServer(t, [][]int16{{1, 2, 3}, {4, 5}})
	c := New(addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	frames, err := c.Synthesize(ctx, "hello")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if len(frames[0]) != 3 || frames[0][0] != 1 || frames[0][2] != 3 {
		t.Fatalf("unexpected first frame: %v", frames[0])
	}
	if len(frames[1]) != 2 || frames[1][1] != 5 {
		t.Fatalf("unexpected second frame: %v", frames[1])
	}
}

func TestSynthesizeEmptyResponse(t *testing.T) {
	addr := fakePiperServer(t, nil)
	c := New(addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	frames, err := c.Synthesize(ctx, "hi")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("expected no frames, got %d", len(frames))
	}
}

func TestSynthesizeDialFailureReturnsTtsUnavailable(t *testing.T) {
	c := New("127.0.0.1:1") // reserved, nothing listens
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := c.Synthesize(ctx, "hi")
	if err == nil {
		t.Fatal("expected dial failure")
	}
	pe, ok := err.(*Error)
	if !ok || pe.Kind != "TtsUnavailable" {
		t.Fatalf("expected TtsUnavailable, got %v", err)
	}
}
