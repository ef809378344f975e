package simhw

import "testing"

func TestWriteFailsWhenNotEnabled(t *testing.T) {
	s := NewI2SSink()
	if err := s.Write(make([]int16, 4), 20); err == nil {
		t.Fatal("expected write to fail before Enable")
	}
}

func TestWriteSucceedsWhenEnabledWithPositiveTimeout(t *testing.T) {
	s := NewI2SSink()
	if err := s.Enable(); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := s.Write(make([]int16, 4), 20); err != nil {
		t.Fatalf("expected write to succeed, got %v", err)
	}
}

func TestWriteFailsWithNonPositiveTimeout(t *testing.T) {
	s := NewI2SSink()
	s.Enable()
	if err := s.Write(make([]int16, 4), 0); err == nil {
		t.Fatal("expected write to fail with a zero timeout")
	}
	if err := s.Write(make([]int16, 4), -1); err == nil {
		t.Fatal("expected write to fail with a negative timeout")
	}
}

func TestDisableStopsAcceptingWrites(t *testing.T) {
	s := NewI2SSink()
	s.Enable()
	s.Disable()
	if err := s.Write(make([]int16, 4), 20); err == nil {
		t.Fatal("expected write to fail after Disable")
	}
}
