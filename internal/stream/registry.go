package stream

import (
	"context"
	"log/slog"
	"sync"

	"tradegate/internal/domain"
	"tradegate/internal/upstream"
)

// feedEntry is one live upstream feed shared by every socket subscribed to
// its symbol.
type feedEntry struct {
	contract domain.Contract
	feed     upstream.Feed
	sockets  map[string]bool
}

// Subscription is a read-only view of one active feed, as handed to the
// broadcaster.
type Subscription struct {
	Symbol  string
	Feed    upstream.Feed
	Sockets []string
}

// Registry maps symbols to reference-counted upstream market-data feeds. The
// first subscriber to a symbol opens the feed; the last one leaving closes
// it. Upstream calls happen outside the registry lock.
type Registry struct {
	session *upstream.Session
	log     *slog.Logger

	mu    sync.Mutex
	feeds map[string]*feedEntry
}

// NewRegistry creates a Registry backed by the given session.
func NewRegistry(session *upstream.Session, log *slog.Logger) *Registry {
	return &Registry{
		session: session,
		log:     log.With("component", "registry"),
		feeds:   make(map[string]*feedEntry),
	}
}

// Subscribe attaches the socket to the symbol's feed, opening it on first
// use. Re-subscribing an already-attached socket is a no-op.
func (r *Registry) Subscribe(ctx context.Context, socketID, symbol string) error {
	contract, err := upstream.ResolveContract(symbol)
	if err != nil {
		return err
	}
	key := upstream.NormalizeSymbol(symbol)

	r.mu.Lock()
	if e, ok := r.feeds[key]; ok {
		e.sockets[socketID] = true
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	// Slow path: qualify and open the feed without holding the lock, then
	// re-check for a racer that beat us to the insert.
	qc, err := r.session.Qualify(ctx, contract)
	if err != nil {
		return err
	}
	feed, err := r.session.RequestMarketData(qc)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if e, ok := r.feeds[key]; ok {
		e.sockets[socketID] = true
		r.mu.Unlock()
		r.session.CancelMarketData(feed) // racer won, ours is a duplicate
		return nil
	}
	r.feeds[key] = &feedEntry{
		contract: qc,
		feed:     feed,
		sockets:  map[string]bool{socketID: true},
	}
	r.mu.Unlock()

	r.log.Info("feed opened", "symbol", key, "socket", socketID)
	return nil
}

// Unsubscribe detaches the socket from the symbol, closing the feed when it
// was the last subscriber. Unknown pairs are ignored.
func (r *Registry) Unsubscribe(socketID, symbol string) {
	key := upstream.NormalizeSymbol(symbol)

	r.mu.Lock()
	e, ok := r.feeds[key]
	if !ok || !e.sockets[socketID] {
		r.mu.Unlock()
		return
	}
	delete(e.sockets, socketID)
	var closing upstream.Feed
	if len(e.sockets) == 0 {
		delete(r.feeds, key)
		closing = e.feed
	}
	r.mu.Unlock()

	if closing != nil {
		r.session.CancelMarketData(closing)
		r.log.Info("feed closed", "symbol", key)
	}
}

// DropSocket removes the socket from every feed it subscribes, closing feeds
// left without subscribers. Called when a client disconnects.
func (r *Registry) DropSocket(socketID string) {
	r.mu.Lock()
	var closing []upstream.Feed
	for key, e := range r.feeds {
		if !e.sockets[socketID] {
			continue
		}
		delete(e.sockets, socketID)
		if len(e.sockets) == 0 {
			delete(r.feeds, key)
			closing = append(closing, e.feed)
		}
	}
	r.mu.Unlock()

	for _, f := range closing {
		r.session.CancelMarketData(f)
	}
	if len(closing) > 0 {
		r.log.Info("feeds closed on disconnect", "socket", socketID, "count", len(closing))
	}
}

// Active snapshots the current subscriptions for the broadcaster.
func (r *Registry) Active() []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Subscription, 0, len(r.feeds))
	for key, e := range r.feeds {
		sockets := make([]string, 0, len(e.sockets))
		for id := range e.sockets {
			sockets = append(sockets, id)
		}
		out = append(out, Subscription{Symbol: key, Feed: e.feed, Sockets: sockets})
	}
	return out
}

// SymbolCount returns the number of open feeds.
func (r *Registry) SymbolCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.feeds)
}
