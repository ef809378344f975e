package packet

import (
	"bytes"
	"testing"
)

func TestSerializeParseRoundTrip(t *testing.T) {
	var id DeviceID
	copy(id[:], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	f := Frame{DeviceID: id, Sequence: 42, Priority: PriorityHigh, Payload: []byte{0xaa, 0xbb, 0xcc}}

	data := Serialize(f)
	if len(data) != HeaderSize+len(f.Payload) {
		t.Fatalf("unexpected serialized length: %d", len(data))
	}

	got, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.DeviceID != f.DeviceID || got.Sequence != f.Sequence || got.Priority != f.Priority {
		t.Fatalf("round trip mismatch: %+v != %+v", got, f)
	}
	if !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("payload mismatch: %v != %v", got.Payload, f.Payload)
	}
}

func TestParseRejectsShortDatagram(t *testing.T) {
	if _, err := Parse(make([]byte, HeaderSize-1)); err == nil {
		t.Fatal("expected error for short datagram")
	}
}

func TestParseRejectsOversizedDatagram(t *testing.T) {
	if _, err := Parse(make([]byte, MaxPacketSize+1)); err == nil {
		t.Fatal("expected error for oversized datagram")
	}
}

func TestParseClampsUnknownPriority(t *testing.T) {
	data := make([]byte, HeaderSize)
	data[DeviceIDSize+4] = 0xff // out-of-range priority byte
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Priority != PriorityNormal {
		t.Fatalf("expected clamp to PriorityNormal, got %v", f.Priority)
	}
}

func TestDeviceIDString(t *testing.T) {
	var id DeviceID
	copy(id[:], []byte{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0})
	if got, want := id.String(), "deadbeef00000000"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestPriorityString(t *testing.T) {
	cases := []struct {
		p    Priority
		want string
	}{
		{PriorityNormal, "normal"},
		{PriorityHigh, "high"},
		{PriorityEmergency, "emergency"},
	}
	for _, c := range cases {
		if got := c.p.String(); got != c.want {
			t.Errorf("Priority(%d).String() = %q, want %q", c.p, got, c.want)
		}
	}
}
