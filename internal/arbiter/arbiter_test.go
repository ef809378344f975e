package arbiter

import (
	"testing"
	"time"

	"github.com/Bri-J-C/ha-intercom-sub001/internal/packet"
)

func TestTryAdmitIdleToBusy(t *testing.T) {
	a := New(nil)
	sp, err := a.TryAdmit(OriginEmbeddedNode, "node-1", packet.PriorityNormal, "kitchen")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if sp.OriginID != "node-1" || sp.Target != "kitchen" {
		t.Fatalf("unexpected speaker: %+v", sp)
	}
	if _, busy := a.Current(); !busy {
		t.Fatal("expected channel busy after admission")
	}
}

func TestTryAdmitRejectsSameOrLowerPriorityWhileBusy(t *testing.T) {
	a := New(nil)
	if _, err := a.TryAdmit(OriginEmbeddedNode, "node-1", packet.PriorityNormal, "kitchen"); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	_, err := a.TryAdmit(OriginWebClient, "web-1", packet.PriorityNormal, "kitchen")
	if err == nil {
		t.Fatal("expected ArbiterBusy rejection")
	}
	ae, ok := err.(*Error)
	if !ok || ae.Kind != "ArbiterBusy" {
		t.Fatalf("expected ArbiterBusy, got %v", err)
	}
}

func TestTryAdmitPreemptsHigherPriority(t *testing.T) {
	a := New(nil)
	var preempted *Speaker
	a.OnPreempt(func(prev Speaker) { preempted = &prev })

	if _, err := a.TryAdmit(OriginEmbeddedNode, "node-1", packet.PriorityNormal, "kitchen"); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	sp, err := a.TryAdmit(OriginWebClient, "web-1", packet.PriorityEmergency, "kitchen")
	if err != nil {
		t.Fatalf("preempting admit: %v", err)
	}
	if sp.OriginID != "web-1" {
		t.Fatalf("expected web-1 to take over, got %+v", sp)
	}
	if preempted == nil || preempted.OriginID != "node-1" {
		t.Fatalf("expected node-1 to be reported preempted, got %+v", preempted)
	}
}

func TestDNDBypassedOnlyByEmergency(t *testing.T) {
	a := New(nil)
	a.SetDND(true)

	if _, err := a.TryAdmit(OriginWebClient, "web-1", packet.PriorityHigh, "all"); err == nil {
		t.Fatal("expected High priority to be blocked by DND")
	}
	if _, err := a.TryAdmit(OriginWebClient, "web-2", packet.PriorityEmergency, "all"); err != nil {
		t.Fatalf("expected Emergency to bypass DND, got %v", err)
	}
}

func TestEndReleasesOnlyActiveSpeaker(t *testing.T) {
	a := New(nil)
	trailed := false
	a.OnTrailOut(func(packet.Priority, string) { trailed = true })

	if _, err := a.TryAdmit(OriginEmbeddedNode, "node-1", packet.PriorityNormal, "kitchen"); err != nil {
		t.Fatalf("admit: %v", err)
	}
	a.End("someone-else")
	if _, busy := a.Current(); !busy {
		t.Fatal("End with wrong origin id must not release the channel")
	}
	a.End("node-1")
	if _, busy := a.Current(); busy {
		t.Fatal("expected channel idle after End")
	}
	if !trailed {
		t.Fatal("expected trail-out callback to fire")
	}
}

func TestCheckTimeoutResetsOnHeartbeat(t *testing.T) {
	a := New(nil)
	if _, err := a.TryAdmit(OriginEmbeddedNode, "node-1", packet.PriorityNormal, "kitchen"); err != nil {
		t.Fatalf("admit: %v", err)
	}

	time.Sleep(IdleTimeout / 2)
	a.Heartbeat("node-1")
	if a.CheckTimeout() {
		t.Fatal("heartbeat should have reset the idle timer")
	}

	time.Sleep(IdleTimeout + 50*time.Millisecond)
	if !a.CheckTimeout() {
		t.Fatal("expected idle reclaim after IdleTimeout with no heartbeat")
	}
	if _, busy := a.Current(); busy {
		t.Fatal("expected channel idle after timeout reclaim")
	}
}

func TestIsBusyConsultsWebClientsActive(t *testing.T) {
	a := New(nil)
	if a.IsBusy(func() bool { return true }) != true {
		t.Fatal("expected IsBusy to defer to webClientsActive when arbiter itself is idle")
	}
	if a.IsBusy(nil) != false {
		t.Fatal("expected IsBusy false when idle and no predicate supplied")
	}
}
