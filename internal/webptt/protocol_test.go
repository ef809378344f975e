package webptt

import (
	"encoding/json"
	"testing"
)

func TestClientStateString(t *testing.T) {
	cases := []struct {
		s    ClientState
		want string
	}{
		{StateConnecting, "connecting"},
		{StateReady, "idle"},
		{StateTransmitting, "transmitting"},
		{StateReceiving, "receiving"},
		{StateClosed, "closed"},
		{ClientState(99), "unknown"},
	}
	for _, c := range cases {
		if got := c.s.String(); got != c.want {
			t.Errorf("ClientState(%d).String() = %q, want %q", c.s, got, c.want)
		}
	}
}

func TestMessageOmitsUnsetOptionalFields(t *testing.T) {
	m := Message{Type: TypeHello, Protocol: ProtocolVersion}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["volume"]; ok {
		t.Fatal("expected unset volume field to be omitted")
	}
	if _, ok := raw["mute"]; ok {
		t.Fatal("expected unset mute field to be omitted")
	}
	if raw["type"] != TypeHello || raw["protocol"] != ProtocolVersion {
		t.Fatalf("unexpected required fields: %v", raw)
	}
}

func TestMessageRoundTripsOptionalBooleans(t *testing.T) {
	mute := true
	dnd := false
	m := Message{Type: TypeMute, Mute: &mute, DND: &dnd}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Mute == nil || *got.Mute != true {
		t.Fatalf("expected mute=true, got %v", got.Mute)
	}
	if got.DND == nil || *got.DND != false {
		t.Fatalf("expected dnd=false explicitly preserved, got %v", got.DND)
	}
}
