// Package chimedetect implements the node-side chime detection contract of
// spec.md §4.12: when a multicast stream arrives whose sender DeviceId is
// the hub's and whose sequence restarts, suppress the local fallback beep;
// otherwise, if no chime frames arrive within 200 ms of a call
// notification, play the local beep.
package chimedetect

import (
	"sync"
	"time"
)

// FallbackWindow is how long the node waits for chime frames from the hub
// before falling back to the local beep.
const FallbackWindow = 200 * time.Millisecond

// Detector tracks whether the current stream is a hub-originated chime and
// schedules the local fallback beep when one doesn't show up in time.
type Detector struct {
	hubDeviceID string

	mu           sync.Mutex
	lastSeq      uint32
	seenAny      bool
	suppressed   bool
	fallbackTime time.Time
	playBeep     func()
	timerStop    chan struct{}
}

// New constructs a Detector. hubDeviceID is the node's statically known hub
// identity (learned via MQTT discovery); playBeep triggers the local
// fallback beep.
func New(hubDeviceID string, playBeep func()) *Detector {
	return &Detector{hubDeviceID: hubDeviceID, playBeep: playBeep}
}

// OnCallNotification arms the 200 ms fallback window for an incoming call
// notification. If no chime frame observation suppresses it first, the
// local beep fires when the window elapses.
func (d *Detector) OnCallNotification() {
	d.mu.Lock()
	d.suppressed = false
	d.seenAny = false
	stop := make(chan struct{})
	d.timerStop = stop
	d.mu.Unlock()

	go func() {
		timer := time.NewTimer(FallbackWindow)
		defer timer.Stop()
		select {
		case <-timer.C:
			d.mu.Lock()
			suppressed := d.suppressed
			d.mu.Unlock()
			if !suppressed && d.playBeep != nil {
				d.playBeep()
			}
		case <-stop:
		}
	}()
}

// OnFrame observes one received multicast frame's sender and sequence. Any
// frame from the hub's DeviceId, whatever its sequence number, marks the
// current stream as a hub chime and suppresses the fallback beep; frames
// from other senders are ignored.
func (d *Detector) OnFrame(senderDeviceID string, seq uint32) {
	if senderDeviceID != d.hubDeviceID {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	restarted := d.seenAny && seq < d.lastSeq
	d.lastSeq = seq
	d.seenAny = true

	if restarted || !d.suppressed {
		d.suppressed = true
		if d.timerStop != nil {
			select {
			case <-d.timerStop:
			default:
				close(d.timerStop)
			}
		}
	}
}
