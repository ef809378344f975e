package store

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "hub.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSettingRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if _, ok, err := s.GetSetting("missing"); err != nil || ok {
		t.Fatalf("expected missing setting to be absent, ok=%v err=%v", ok, err)
	}

	if err := s.SetSetting("room_label", "kitchen"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.GetSetting("room_label")
	if err != nil || !ok {
		t.Fatalf("expected setting present, ok=%v err=%v", ok, err)
	}
	if v != "kitchen" {
		t.Fatalf("got %q, want %q", v, "kitchen")
	}

	if err := s.SetSetting("room_label", "office"); err != nil {
		t.Fatalf("update: %v", err)
	}
	v, _, _ = s.GetSetting("room_label")
	if v != "office" {
		t.Fatalf("expected upsert to overwrite, got %q", v)
	}
}

func TestActiveChimeRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if _, ok, err := s.ActiveChime(); err != nil || ok {
		t.Fatalf("expected no active chime initially, ok=%v err=%v", ok, err)
	}
	if err := s.SetActiveChime("alarm"); err != nil {
		t.Fatalf("set active chime: %v", err)
	}
	name, ok, err := s.ActiveChime()
	if err != nil || !ok || name != "alarm" {
		t.Fatalf("got name=%q ok=%v err=%v", name, ok, err)
	}
}

func TestPacketStatsHistoryOrdersNewestFirst(t *testing.T) {
	s := newTestStore(t)

	if err := s.InsertPacketStatsSnapshot("node-1", 1, 10, 10, 0, 0, 1000); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertPacketStatsSnapshot("node-1", 11, 20, 10, 1, 0, 2000); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertPacketStatsSnapshot("node-2", 1, 5, 5, 0, 0, 1500); err != nil {
		t.Fatalf("insert: %v", err)
	}

	hist, err := s.PacketStatsHistoryFor("node-1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 rows for node-1, got %d", len(hist))
	}
	if hist[0].RecordedAt != 2000 || hist[1].RecordedAt != 1000 {
		t.Fatalf("expected newest-first ordering, got %+v", hist)
	}
}

func TestPacketStatsHistoryRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	for i := int64(0); i < 5; i++ {
		if err := s.InsertPacketStatsSnapshot("node-1", 1, 1, 1, 0, 0, i); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	hist, err := s.PacketStatsHistoryFor("node-1", 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected limit to cap rows at 2, got %d", len(hist))
	}
}

func TestOptimizeDoesNotError(t *testing.T) {
	s := newTestStore(t)
	if err := s.Optimize(); err != nil {
		t.Fatalf("optimize: %v", err)
	}
}
