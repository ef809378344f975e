package chimedetect

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestOnFrameFromHubSuppressesFallback(t *testing.T) {
	var beeped int32
	d := New("hub-1", func() { atomic.AddInt32(&beeped, 1) })

	d.OnCallNotification()
	d.OnFrame("hub-1", 0)

	time.Sleep(FallbackWindow + 50*time.Millisecond)
	if atomic.LoadInt32(&beeped) != 0 {
		t.Fatal("expected fallback beep to be suppressed by a hub chime frame")
	}
}

func TestNoChimeFrameTriggersFallback(t *testing.T) {
	var beeped int32
	d := New("hub-1", func() { atomic.AddInt32(&beeped, 1) })

	d.OnCallNotification()
	// No OnFrame call arrives from the hub within the window.

	time.Sleep(FallbackWindow + 50*time.Millisecond)
	if atomic.LoadInt32(&beeped) != 1 {
		t.Fatalf("expected fallback beep to fire once, got %d", beeped)
	}
}

func TestFramesFromOtherSendersIgnored(t *testing.T) {
	var beeped int32
	d := New("hub-1", func() { atomic.AddInt32(&beeped, 1) })

	d.OnCallNotification()
	d.OnFrame("node-2", 0) // not the hub; must not suppress

	time.Sleep(FallbackWindow + 50*time.Millisecond)
	if atomic.LoadInt32(&beeped) != 1 {
		t.Fatal("expected fallback beep since only a non-hub frame arrived")
	}
}
