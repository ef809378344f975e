// Package tts implements the TTS Bridge: queued synthesis requests that wait
// for a free channel, then inject as a synthesized Speaker. Queue-and-worker
// shape is grounded on the teacher's task-dispatch style in
// server/internal/core (a single background goroutine draining a channel).
// Bridge reaches the external Piper process only through the Synthesizer
// interface; the TCP client for it lives in internal/piper.
package tts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Bri-J-C/ha-intercom-sub001/internal/arbiter"
	"github.com/Bri-J-C/ha-intercom-sub001/internal/packet"
)

// Error is a typed TTS failure. Kind is always TtsUnavailable.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("[tts] %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Request is one queued speak request.
type Request struct {
	Message  string
	Target   string
	Priority packet.Priority
}

// Synthesizer turns text into a sequence of PCM frames. Implementations
// speak to the external Piper process; tests can substitute a fake.
type Synthesizer interface {
	Synthesize(ctx context.Context, message string) ([][]int16, error)
}

// Injector delivers a synthesized frame sequence into the routing pipeline
// as a Speaker, admitted through the shared Arbiter.
type Injector func(req Request, frames [][]int16)

// Bridge queues speak requests until the channel is free, then synthesizes
// and injects them.
type Bridge struct {
	arb    *arbiter.Arbiter
	synth  Synthesizer
	inject Injector
	log    *slog.Logger

	pending chan Request
}

// New constructs a Bridge with a bounded pending-request queue.
func New(arb *arbiter.Arbiter, synth Synthesizer, inject Injector, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		arb:     arb,
		synth:   synth,
		inject:  inject,
		log:     log,
		pending: make(chan Request, 32),
	}
}

// Speak accepts (message, target, priority). If the arbiter is Busy, the
// request is queued. When the arbiter is Idle, or the request is Emergency,
// synthesis happens immediately. Never blocks the caller on synthesis
// itself — the actual work happens on the worker goroutine started by Run.
func (b *Bridge) Speak(req Request) error {
	select {
	case b.pending <- req:
		return nil
	default:
		return &Error{Kind: "TtsUnavailable", Err: fmt.Errorf("tts request queue full")}
	}
}

// Run drains the pending queue, synthesizing each request once the channel
// is free (or immediately for Emergency requests), until ctx is canceled.
func (b *Bridge) Run(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var waiting []Request
	for {
		// Stop pulling new requests while the held-back list is full, so
		// further Speak calls fill pending and report the queue as full.
		pending := b.pending
		if len(waiting) >= cap(b.pending) {
			pending = nil
		}
		select {
		case <-ctx.Done():
			return
		case req := <-pending:
			if req.Priority == packet.PriorityEmergency || !b.arb.IsBusy(nil) {
				b.synthesizeAndInject(ctx, req)
			} else {
				waiting = append(waiting, req)
			}
		case <-ticker.C:
			if len(waiting) > 0 && !b.arb.IsBusy(nil) {
				req := waiting[0]
				waiting = waiting[1:]
				b.synthesizeAndInject(ctx, req)
			}
		}
	}
}

func (b *Bridge) synthesizeAndInject(ctx context.Context, req Request) {
	frames, err := b.synth.Synthesize(ctx, req.Message)
	if err != nil {
		b.log.Warn("tts synthesis failed", "error", err)
		return
	}
	if b.inject != nil {
		b.inject(req, frames)
	}
}
