package nodecodec

import (
	"errors"
	"testing"
)

type fakeDecoder struct {
	decodeCalls int
	plcCalls    int
	decodeErr   error
	plcErr      error
}

func (f *fakeDecoder) Decode(data []byte, pcm []int16) (int, error) {
	f.decodeCalls++
	if f.decodeErr != nil {
		return 0, f.decodeErr
	}
	return len(pcm), nil
}

func (f *fakeDecoder) DecodePLC(pcm []int16) error {
	f.plcCalls++
	return f.plcErr
}

func TestDecodeNilPayloadTriggersPLC(t *testing.T) {
	fd := &fakeDecoder{}
	d := newWithImpl(fd)

	pcm, err := d.Decode(nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(pcm) != FrameSize {
		t.Fatalf("expected %d samples, got %d", FrameSize, len(pcm))
	}
	if fd.plcCalls != 1 || fd.decodeCalls != 0 {
		t.Fatalf("expected PLC path only, got plc=%d decode=%d", fd.plcCalls, fd.decodeCalls)
	}
}

func TestDecodePropagatesPLCError(t *testing.T) {
	fd := &fakeDecoder{plcErr: errors.New("plc failed")}
	d := newWithImpl(fd)

	_, err := d.Decode(nil)
	if err == nil {
		t.Fatal("expected PLC error to propagate")
	}
	ce, ok := err.(*Error)
	if !ok || ce.Kind != "Decode" {
		t.Fatalf("expected Decode error kind, got %v", err)
	}
}

func TestDecodeWithPayload(t *testing.T) {
	fd := &fakeDecoder{}
	d := newWithImpl(fd)

	pcm, err := d.Decode([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(pcm) != FrameSize {
		t.Fatalf("expected %d samples, got %d", FrameSize, len(pcm))
	}
	if fd.decodeCalls != 1 || fd.plcCalls != 0 {
		t.Fatalf("expected normal decode path only, got plc=%d decode=%d", fd.plcCalls, fd.decodeCalls)
	}
}

func TestSilenceFrame(t *testing.T) {
	s := Silence()
	if len(s) != FrameSize {
		t.Fatalf("expected %d samples, got %d", FrameSize, len(s))
	}
	for _, v := range s {
		if v != 0 {
			t.Fatal("expected all-zero silence frame")
		}
	}
}
