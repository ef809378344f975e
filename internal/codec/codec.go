// Package codec wraps Opus encode/decode at the hub's fixed audio parameters:
// 16 kHz mono, 20 ms frames (320 samples), 32 kbps VBR, complexity 5, inband
// FEC enabled on the encoder and PLC/FEC recovery on decode.
package codec

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

const (
	SampleRate = 16000
	Channels   = 1
	FrameSize  = 320 // 20 ms @ 16 kHz
	Bitrate    = 32000
	Complexity = 5

	// MaxPayload is the largest Opus payload this layer will ever emit; it
	// keeps the wire packet within the 256-byte bound of packet.MaxPacketSize.
	MaxPayload = 243
)

// Error is a typed codec failure. Kind is one of CodecInit, Encode, Decode.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("[codec] %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// encoder abstracts the Opus encoder for testing without cgo/opus installed.
type encoder interface {
	Encode(pcm []int16, data []byte) (int, error)
	SetBitrate(bitrate int) error
	SetComplexity(complexity int) error
	SetInBandFEC(fec bool) error
}

// decoder abstracts the Opus decoder for testing.
type decoder interface {
	Decode(data []byte, pcm []int16) (int, error)
	DecodeFEC(data []byte, pcm []int16) error
}

// Codec holds one heap-allocated encoder and one heap-allocated decoder,
// reused across every call. On the embedded node side this state is expected
// to live in PSRAM; on the hub it is an ordinary Go allocation.
type Codec struct {
	enc encoder
	dec decoder
}

// New constructs a Codec at the hub's fixed parameters. Returns a CodecInit
// error (fatal at startup per the error-handling design) if the underlying
// Opus library cannot be initialized.
func New() (*Codec, error) {
	enc, err := opus.NewEncoder(SampleRate, Channels, opus.AppVoIP)
	if err != nil {
		return nil, &Error{Kind: "CodecInit", Err: err}
	}
	if err := enc.SetBitrate(Bitrate); err != nil {
		return nil, &Error{Kind: "CodecInit", Err: err}
	}
	if err := enc.SetComplexity(Complexity); err != nil {
		return nil, &Error{Kind: "CodecInit", Err: err}
	}
	if err := enc.SetInBandFEC(true); err != nil {
		return nil, &Error{Kind: "CodecInit", Err: err}
	}

	dec, err := opus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, &Error{Kind: "CodecInit", Err: err}
	}

	return &Codec{enc: enc, dec: dec}, nil
}

// newWithImpl lets tests substitute fake encoder/decoder implementations.
func newWithImpl(enc encoder, dec decoder) *Codec {
	return &Codec{enc: enc, dec: dec}
}

// Encode converts one 20 ms frame of 320 16-bit PCM samples into an Opus
// payload. Each call returns a newly allocated slice.
func (c *Codec) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != FrameSize {
		return nil, &Error{Kind: "Encode", Err: fmt.Errorf("pcm frame has %d samples, want %d", len(pcm), FrameSize)}
	}
	buf := make([]byte, MaxPayload)
	n, err := c.enc.Encode(pcm, buf)
	if err != nil {
		return nil, &Error{Kind: "Encode", Err: err}
	}
	return buf[:n], nil
}

// Decode turns an Opus payload back into 320 PCM samples. A zero-length
// payload is treated as an explicit loss signal: the decoder synthesizes
// packet-loss concealment and Decode never returns an error for that case
// (recoverable per the error-handling design — emit silence, never fatal).
//
// fecHint tells the decoder that the frame immediately prior to this one was
// lost and that this payload may carry recovery data for it (Opus inband
// FEC). When true, DecodeFEC is run on the payload before this frame is
// decoded normally, but the recovered audio is discarded: Decode returns
// only this frame's PCM and never the recovered previous frame.
func (c *Codec) Decode(payload []byte, fecHint bool) ([]int16, error) {
	pcm := make([]int16, FrameSize)

	if len(payload) == 0 {
		if _, err := c.dec.Decode(nil, pcm); err != nil {
			// Concealment failed: fall back to a frame of silence.
			return make([]int16, FrameSize), nil
		}
		return pcm, nil
	}

	if fecHint {
		recovered := make([]int16, FrameSize)
		if err := c.dec.DecodeFEC(payload, recovered); err == nil {
			// The recovered frame is not returned to the caller.
			_ = recovered
		}
	}

	n, err := c.dec.Decode(payload, pcm)
	if err != nil {
		return nil, &Error{Kind: "Decode", Err: err}
	}
	return pcm[:n], nil
}

// Silence returns one frame of digital silence, used for trail-out frames
// and lead-in/trail-out around chime streams.
func Silence() []int16 {
	return make([]int16, FrameSize)
}
