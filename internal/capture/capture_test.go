package capture

import (
	"testing"

	"github.com/Bri-J-C/ha-intercom-sub001/internal/packet"
)

func deviceID(b byte) packet.DeviceID {
	var id packet.DeviceID
	id[0] = b
	return id
}

func TestTapNoOpWhenDisabled(t *testing.T) {
	b := New(4)
	b.Tap(RX, deviceID(1), 1, []byte{1})
	if got := b.Fetch(Filter{}); len(got) != 0 {
		t.Fatalf("expected no entries while disabled, got %d", len(got))
	}
}

func TestTapRecordsWhileEnabled(t *testing.T) {
	b := New(4)
	b.Start()
	b.Tap(RX, deviceID(1), 1, []byte{1, 2})
	b.Tap(TX, deviceID(2), 2, []byte{3})

	got := b.Fetch(Filter{})
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Sequence != 1 || got[1].Sequence != 2 {
		t.Fatalf("expected oldest-first ordering, got %+v", got)
	}
}

func TestRingEvictsOldestOnOverflow(t *testing.T) {
	b := New(3)
	b.Start()
	for seq := uint32(1); seq <= 5; seq++ {
		b.Tap(RX, deviceID(1), seq, nil)
	}
	got := b.Fetch(Filter{})
	if len(got) != 3 {
		t.Fatalf("expected ring capped at 3, got %d", len(got))
	}
	if got[0].Sequence != 3 || got[2].Sequence != 5 {
		t.Fatalf("expected entries 3,4,5 to survive, got %+v", got)
	}
}

func TestFetchFiltersByDirectionAndDeviceID(t *testing.T) {
	b := New(8)
	b.Start()
	b.Tap(RX, deviceID(1), 1, nil)
	b.Tap(TX, deviceID(2), 2, nil)
	b.Tap(RX, deviceID(2), 3, nil)

	rxOnly := b.Fetch(Filter{Direction: RX})
	if len(rxOnly) != 2 {
		t.Fatalf("expected 2 RX entries, got %d", len(rxOnly))
	}

	dev2 := b.Fetch(Filter{DeviceID: deviceID(2).String()})
	if len(dev2) != 2 {
		t.Fatalf("expected 2 entries for device 2, got %d", len(dev2))
	}
}

func TestFetchRespectsLimit(t *testing.T) {
	b := New(8)
	b.Start()
	for seq := uint32(1); seq <= 5; seq++ {
		b.Tap(RX, deviceID(1), seq, nil)
	}
	got := b.Fetch(Filter{Limit: 2})
	if len(got) != 2 {
		t.Fatalf("expected limit to cap result at 2, got %d", len(got))
	}
	if got[0].Sequence != 1 || got[1].Sequence != 2 {
		t.Fatalf("expected the two oldest entries, got %+v", got)
	}
}

func TestClearEmptiesRing(t *testing.T) {
	b := New(4)
	b.Start()
	b.Tap(RX, deviceID(1), 1, nil)
	b.Clear()
	if got := b.Fetch(Filter{}); len(got) != 0 {
		t.Fatalf("expected empty buffer after Clear, got %d", len(got))
	}
}

func TestStopPreservesEntries(t *testing.T) {
	b := New(4)
	b.Start()
	b.Tap(RX, deviceID(1), 1, nil)
	b.Stop()
	if got := b.Fetch(Filter{}); len(got) != 1 {
		t.Fatalf("expected Stop to preserve buffered entries, got %d", len(got))
	}
	b.Tap(RX, deviceID(1), 2, nil)
	if got := b.Fetch(Filter{}); len(got) != 1 {
		t.Fatalf("expected no new taps recorded after Stop, got %d", len(got))
	}
}
