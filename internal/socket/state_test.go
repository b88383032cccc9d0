package socket

import (
	"testing"

	"github.com/velacare/chatsync/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Disconnected {
		t.Errorf("initial state = %s, want DISCONNECTED", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		walk []State
	}{
		{[]State{Connecting, Connected}},
		{[]State{Connecting, Reconnecting, Connecting}},
		{[]State{Connecting, Connected, Reconnecting, Connecting, Connected}},
		{[]State{Connecting, Connected, Disconnected}},
	}
	for _, tt := range tests {
		m := NewMachine(nil)
		for _, to := range tt.walk {
			if err := m.Transition(to); err != nil {
				t.Errorf("Transition(%s) error = %v", to, err)
			}
		}
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Connected); err == nil {
		t.Error("Transition(DISCONNECTED -> CONNECTED) should fail")
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("socket.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindSocketStateChanged {
		t.Errorf("event kind = %q, want %q", evt.Kind, bus.KindSocketStateChanged)
	}
	change, ok := evt.Payload.(StateChange)
	if !ok {
		t.Fatalf("payload type = %T, want StateChange", evt.Payload)
	}
	if change.From != Disconnected || change.To != Connecting {
		t.Errorf("change = %v -> %v, want DISCONNECTED -> CONNECTING", change.From, change.To)
	}
}
