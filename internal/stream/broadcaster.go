package stream

import (
	"context"
	"log/slog"
	"time"

	"tradegate/internal/domain"
)

// Sender delivers payloads to sockets without blocking. The Hub implements
// it; tests substitute their own.
type Sender interface {
	// Send queues the payload, returning false when the socket cannot take it.
	Send(socketID string, payload any) bool
	// Drop disconnects the socket.
	Drop(socketID string)
}

// TickMessage is the wire envelope for one broadcast pass to one socket.
type TickMessage struct {
	Type string                `json:"type"`
	Data []domain.TickSnapshot `json:"data"`
}

// Broadcaster periodically reads every active feed and pushes the latest
// snapshots to subscribed sockets. A socket that cannot keep up is dropped
// and its subscriptions released; other sockets are unaffected.
type Broadcaster struct {
	registry *Registry
	sender   Sender
	interval time.Duration
	log      *slog.Logger
}

// NewBroadcaster creates a Broadcaster publishing through sender every
// interval.
func NewBroadcaster(registry *Registry, sender Sender, interval time.Duration, log *slog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		sender:   sender,
		interval: interval,
		log:      log.With("component", "broadcaster"),
	}
}

// Run broadcasts on the configured cadence until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Publish()
		}
	}
}

// Publish runs one broadcast pass: read each feed once, group the snapshots
// per socket, deliver. Exposed so tests can drive passes without the ticker.
func (b *Broadcaster) Publish() {
	subs := b.registry.Active()
	if len(subs) == 0 {
		return
	}

	perSocket := make(map[string][]domain.TickSnapshot)
	for _, sub := range subs {
		snap := sub.Feed.Snapshot()
		snap.Symbol = sub.Symbol
		for _, id := range sub.Sockets {
			perSocket[id] = append(perSocket[id], snap)
		}
	}

	for id, data := range perSocket {
		if !b.sender.Send(id, TickMessage{Type: "tick", Data: data}) {
			b.log.Warn("socket lagging, dropping", "socket", id)
			b.registry.DropSocket(id)
			b.sender.Drop(id)
		}
	}
}
