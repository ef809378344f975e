// Package nodecodec mirrors the hub's internal/codec Opus wrapper for the
// node side (PSRAM-resident decoder per spec.md §4.12). Duplicated rather
// than imported, same reasoning as nodepacket.
package nodecodec

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

const (
	SampleRate = 16000
	Channels   = 1
	FrameSize  = SampleRate / 1000 * 20 // 320 samples per 20ms frame
	Bitrate    = 32000
	Complexity = 5
	MaxPayload = 243
)

// Error is a typed codec failure.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("[nodecodec] %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

type decoder interface {
	Decode(data []byte, pcm []int16) (int, error)
	DecodePLC(pcm []int16) error
}

// Decoder wraps the Opus decoder the play task pulls frames through. The
// node module has no Opus encoder; this package only decodes.
type Decoder struct {
	dec decoder
}

// New constructs a Decoder configured for 16kHz mono. Lost frames are
// concealed with PLC; inband FEC data is not decoded.
func New() (*Decoder, error) {
	dec, err := opus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, &Error{Kind: "CodecInit", Err: err}
	}
	return &Decoder{dec: dec}, nil
}

func newWithImpl(dec decoder) *Decoder { return &Decoder{dec: dec} }

// Decode produces one 320-sample PCM frame from an Opus payload. A nil
// payload triggers PLC concealment for a known-lost frame.
func (d *Decoder) Decode(payload []byte) ([]int16, error) {
	pcm := make([]int16, FrameSize)
	if payload == nil {
		if err := d.dec.DecodePLC(pcm); err != nil {
			return nil, &Error{Kind: "Decode", Err: err}
		}
		return pcm, nil
	}
	n, err := d.dec.Decode(payload, pcm)
	if err != nil {
		return nil, &Error{Kind: "Decode", Err: err}
	}
	return pcm[:n], nil
}

// Silence returns one frame of digital silence, used for lead-in/trail-out
// flush frames per spec.md §4.12.
func Silence() []int16 { return make([]int16, FrameSize) }
