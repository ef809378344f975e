package play

import (
	"sync"
	"testing"
	"time"

	"github.com/Bri-J-C/ha-intercom-sub001/node/internal/nodecodec"
	"github.com/Bri-J-C/ha-intercom-sub001/node/internal/rxqueue"
)

type fakeSink struct {
	mu       sync.Mutex
	enabled  bool
	writes   int
	failNext bool
}

func (f *fakeSink) Enable() error  { f.mu.Lock(); defer f.mu.Unlock(); f.enabled = true; return nil }
func (f *fakeSink) Disable() error { f.mu.Lock(); defer f.mu.Unlock(); f.enabled = false; return nil }
func (f *fakeSink) Write(pcm []int16, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.failNext {
		f.failNext = false
		return &Error{Kind: "WriteStall"}
	}
	return nil
}

func newTestDecoder(t *testing.T) *nodecodec.Decoder {
	t.Helper()
	d, err := nodecodec.New()
	if err != nil {
		t.Skipf("opus codec unavailable: %v", err)
	}
	return d
}

func TestEnablePrefillsSilenceFrames(t *testing.T) {
	dec := newTestDecoder(t)
	snk := &fakeSink{}
	task := New(rxqueue.New(), dec, snk)

	if err := task.Enable(); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if !snk.enabled {
		t.Fatal("expected sink enabled")
	}
	if snk.writes != PrefillFrames {
		t.Fatalf("expected %d prefill writes, got %d", PrefillFrames, snk.writes)
	}
}

func TestEnableIsIdempotent(t *testing.T) {
	dec := newTestDecoder(t)
	snk := &fakeSink{}
	task := New(rxqueue.New(), dec, snk)

	task.Enable()
	writesAfterFirst := snk.writes
	task.Enable()
	if snk.writes != writesAfterFirst {
		t.Fatalf("expected second Enable to be a no-op, writes went from %d to %d", writesAfterFirst, snk.writes)
	}
}

func TestDisableFlushesSilenceAndDisablesSink(t *testing.T) {
	dec := newTestDecoder(t)
	snk := &fakeSink{}
	task := New(rxqueue.New(), dec, snk)
	task.Enable()

	writesBeforeDisable := snk.writes
	if err := task.Disable(); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if snk.enabled {
		t.Fatal("expected sink disabled")
	}
	if snk.writes != writesBeforeDisable+1 {
		t.Fatalf("expected exactly one flush write on disable, got %d extra", snk.writes-writesBeforeDisable)
	}
}

func TestCycleWithEmptyQueueUsesPLCAndCountsNoStall(t *testing.T) {
	dec := newTestDecoder(t)
	snk := &fakeSink{}
	q := rxqueue.New()
	task := New(q, dec, snk)

	task.cycle()
	if snk.writes != 1 {
		t.Fatalf("expected a PLC write even with an empty queue, got %d writes", snk.writes)
	}
	if task.Stalls() != 0 {
		t.Fatalf("expected no stalls on a healthy write, got %d", task.Stalls())
	}
}

func TestCycleCountsWriteFailureAsStall(t *testing.T) {
	dec := newTestDecoder(t)
	snk := &fakeSink{failNext: true}
	q := rxqueue.New()
	task := New(q, dec, snk)

	task.cycle()
	if task.Stalls() != 1 {
		t.Fatalf("expected 1 stall after a failed write, got %d", task.Stalls())
	}
}
