package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"tradegate/internal/upstream"
)

// fakeSender records deliveries and can be told to reject a socket.
type fakeSender struct {
	mu      sync.Mutex
	sent    map[string][]TickMessage
	reject  map[string]bool
	dropped []string
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		sent:   make(map[string][]TickMessage),
		reject: make(map[string]bool),
	}
}

func (f *fakeSender) Send(socketID string, payload any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject[socketID] {
		return false
	}
	f.sent[socketID] = append(f.sent[socketID], payload.(TickMessage))
	return true
}

func (f *fakeSender) Drop(socketID string) {
	f.mu.Lock()
	f.dropped = append(f.dropped, socketID)
	f.mu.Unlock()
}

func (f *fakeSender) messages(socketID string) []TickMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[socketID]
}

func TestBroadcasterGroupsSnapshotsPerSocket(t *testing.T) {
	sim := upstream.NewSimulator()
	reg := NewRegistry(connectedSession(t, sim), testLogger())
	sender := newFakeSender()
	b := NewBroadcaster(reg, sender, time.Millisecond, testLogger())
	ctx := context.Background()

	if err := reg.Subscribe(ctx, "s1", "AAPL"); err != nil {
		t.Fatal(err)
	}
	if err := reg.Subscribe(ctx, "s1", "MSFT"); err != nil {
		t.Fatal(err)
	}
	if err := reg.Subscribe(ctx, "s2", "AAPL"); err != nil {
		t.Fatal(err)
	}

	sim.SetTick("AAPL", 187.5, 187.4, 187.6, 12000)
	b.Publish()

	m1 := sender.messages("s1")
	if len(m1) != 1 {
		t.Fatalf("s1 messages = %d, want 1", len(m1))
	}
	if m1[0].Type != "tick" {
		t.Errorf("type = %q, want tick", m1[0].Type)
	}
	if len(m1[0].Data) != 2 {
		t.Errorf("s1 snapshots = %d, want 2 (AAPL+MSFT)", len(m1[0].Data))
	}

	m2 := sender.messages("s2")
	if len(m2) != 1 || len(m2[0].Data) != 1 {
		t.Fatalf("s2 messages = %+v, want one message with one snapshot", m2)
	}
	if m2[0].Data[0].Symbol != "AAPL" {
		t.Errorf("s2 symbol = %q, want AAPL", m2[0].Data[0].Symbol)
	}
	if m2[0].Data[0].Last == nil || *m2[0].Data[0].Last != 187.5 {
		t.Errorf("s2 last = %v, want 187.5", m2[0].Data[0].Last)
	}

	// MSFT never ticked: its fields are explicit nulls, not zeros or NaNs.
	for _, snap := range m1[0].Data {
		if snap.Symbol == "MSFT" && (snap.Last != nil || snap.Bid != nil) {
			t.Errorf("untouched MSFT snapshot has values: %+v", snap)
		}
	}
}

func TestBroadcasterDropsFailingSocketOnly(t *testing.T) {
	sim := upstream.NewSimulator()
	reg := NewRegistry(connectedSession(t, sim), testLogger())
	sender := newFakeSender()
	b := NewBroadcaster(reg, sender, time.Millisecond, testLogger())
	ctx := context.Background()

	if err := reg.Subscribe(ctx, "slow", "AAPL"); err != nil {
		t.Fatal(err)
	}
	if err := reg.Subscribe(ctx, "fast", "AAPL"); err != nil {
		t.Fatal(err)
	}
	sender.reject["slow"] = true

	b.Publish()

	if len(sender.dropped) != 1 || sender.dropped[0] != "slow" {
		t.Errorf("dropped = %v, want [slow]", sender.dropped)
	}
	if got := len(sender.messages("fast")); got != 1 {
		t.Errorf("fast messages = %d, want 1 despite slow socket failing", got)
	}
	// The shared feed stays open for the surviving socket.
	if got := sim.ActiveFeedCount(); got != 1 {
		t.Errorf("active feeds = %d, want 1", got)
	}

	// The next pass no longer addresses the dropped socket.
	b.Publish()
	if got := len(sender.messages("slow")); got != 0 {
		t.Errorf("slow received %d messages after drop, want 0", got)
	}
}

func TestBroadcasterIdleWithoutSubscriptions(t *testing.T) {
	sim := upstream.NewSimulator()
	reg := NewRegistry(connectedSession(t, sim), testLogger())
	sender := newFakeSender()
	b := NewBroadcaster(reg, sender, time.Millisecond, testLogger())

	b.Publish()
	if len(sender.sent) != 0 {
		t.Errorf("sent = %v, want nothing", sender.sent)
	}
}

func TestBroadcasterRunStopsOnCancel(t *testing.T) {
	sim := upstream.NewSimulator()
	reg := NewRegistry(connectedSession(t, sim), testLogger())
	sender := newFakeSender()
	b := NewBroadcaster(reg, sender, time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
