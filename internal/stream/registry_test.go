package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tradegate/internal/domain"
	"tradegate/internal/upstream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func connectedSession(t *testing.T, sim *upstream.Simulator) *upstream.Session {
	t.Helper()
	log := testLogger()
	sess := upstream.NewSession(sim, 10*time.Millisecond, log)
	sup := upstream.NewSupervisor(sess, time.Second, log)
	if err := sup.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return sess
}

func TestRegistrySharesFeedAcrossSockets(t *testing.T) {
	sim := upstream.NewSimulator()
	reg := NewRegistry(connectedSession(t, sim), testLogger())
	ctx := context.Background()

	if err := reg.Subscribe(ctx, "sock-1", "AAPL"); err != nil {
		t.Fatalf("subscribe sock-1: %v", err)
	}
	if err := reg.Subscribe(ctx, "sock-2", "aapl"); err != nil {
		t.Fatalf("subscribe sock-2: %v", err)
	}

	if got := sim.ActiveFeedCount(); got != 1 {
		t.Errorf("active feeds = %d, want 1 shared feed", got)
	}
	if got := reg.SymbolCount(); got != 1 {
		t.Errorf("symbol count = %d, want 1", got)
	}

	// First leaver does not close the feed.
	reg.Unsubscribe("sock-1", "AAPL")
	if got := sim.ActiveFeedCount(); got != 1 {
		t.Errorf("active feeds after first unsubscribe = %d, want 1", got)
	}

	// Last leaver does.
	reg.Unsubscribe("sock-2", "AAPL")
	if got := sim.ActiveFeedCount(); got != 0 {
		t.Errorf("active feeds after last unsubscribe = %d, want 0", got)
	}
	if got := sim.CancelCount(); got != 1 {
		t.Errorf("cancel count = %d, want 1", got)
	}
}

func TestRegistryDuplicateSubscribeIsIdempotent(t *testing.T) {
	sim := upstream.NewSimulator()
	reg := NewRegistry(connectedSession(t, sim), testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := reg.Subscribe(ctx, "sock-1", "AAPL"); err != nil {
			t.Fatalf("subscribe %d: %v", i, err)
		}
	}
	if got := sim.ActiveFeedCount(); got != 1 {
		t.Errorf("active feeds = %d, want 1", got)
	}

	// A single unsubscribe tears it down; the socket held one reference.
	reg.Unsubscribe("sock-1", "AAPL")
	if got := sim.ActiveFeedCount(); got != 0 {
		t.Errorf("active feeds after unsubscribe = %d, want 0", got)
	}
}

func TestRegistryDropSocketReleasesEverything(t *testing.T) {
	sim := upstream.NewSimulator()
	reg := NewRegistry(connectedSession(t, sim), testLogger())
	ctx := context.Background()

	for _, sym := range []string{"AAPL", "MSFT", "TSLA"} {
		if err := reg.Subscribe(ctx, "sock-1", sym); err != nil {
			t.Fatalf("subscribe %s: %v", sym, err)
		}
	}
	if err := reg.Subscribe(ctx, "sock-2", "AAPL"); err != nil {
		t.Fatal(err)
	}

	reg.DropSocket("sock-1")

	// AAPL survives through sock-2; MSFT and TSLA close.
	if got := reg.SymbolCount(); got != 1 {
		t.Errorf("symbol count = %d, want 1", got)
	}
	if got := sim.ActiveFeedCount(); got != 1 {
		t.Errorf("active feeds = %d, want 1", got)
	}
	if got := sim.CancelCount(); got != 2 {
		t.Errorf("cancel count = %d, want 2", got)
	}
}

func TestRegistryConcurrentSubscribersShareOneFeed(t *testing.T) {
	sim := upstream.NewSimulator()
	reg := NewRegistry(connectedSession(t, sim), testLogger())
	ctx := context.Background()

	const sockets = 16
	var wg sync.WaitGroup
	errs := make([]error, sockets)
	for i := 0; i < sockets; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = reg.Subscribe(ctx, string(rune('a'+i)), "NVDA")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("subscriber %d: %v", i, err)
		}
	}
	if got := reg.SymbolCount(); got != 1 {
		t.Errorf("symbol count = %d, want 1", got)
	}
	// Racers may have opened duplicate feeds, but all duplicates must have
	// been cancelled again.
	if got := sim.ActiveFeedCount(); got != 1 {
		t.Errorf("active feeds = %d, want exactly 1 surviving", got)
	}
}

func TestRegistrySubscribeErrors(t *testing.T) {
	sim := upstream.NewSimulator()
	sim.FailSymbol("ZZZZZ")
	reg := NewRegistry(connectedSession(t, sim), testLogger())
	ctx := context.Background()

	err := reg.Subscribe(ctx, "sock-1", "")
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("empty symbol err = %v, want ValidationError", err)
	}

	if err := reg.Subscribe(ctx, "sock-1", "ZZZZZ"); !errors.Is(err, domain.ErrContractNotFound) {
		t.Errorf("unknown symbol err = %v, want ErrContractNotFound", err)
	}
	if got := sim.ActiveFeedCount(); got != 0 {
		t.Errorf("active feeds after failed subscribes = %d, want 0", got)
	}
}

func TestRegistryUnsubscribeUnknownIsNoop(t *testing.T) {
	sim := upstream.NewSimulator()
	reg := NewRegistry(connectedSession(t, sim), testLogger())

	reg.Unsubscribe("nobody", "AAPL")
	reg.DropSocket("nobody")
	if got := sim.CancelCount(); got != 0 {
		t.Errorf("cancel count = %d, want 0", got)
	}
}
