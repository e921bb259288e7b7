package upstream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tradegate/internal/domain"
)

// State is the connection lifecycle state of the session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
)

// Session owns the single upstream connection. State transitions are driven
// only by the Supervisor; every request method fails with
// domain.ErrNotConnected while the session is down and never reconnects on
// its own.
type Session struct {
	api        API
	settleWait time.Duration
	log        *slog.Logger

	mu      sync.Mutex
	state   State
	lastErr error

	// Qualified-contract cache, keyed by normalized symbol, kept for the
	// process lifetime.
	qmu       sync.Mutex
	qualified map[string]domain.Contract
}

// NewSession wraps the given API. settleWait bounds how long SnapshotQuote
// lets a fresh feed settle before reading it.
func NewSession(api API, settleWait time.Duration, log *slog.Logger) *Session {
	return &Session{
		api:        api,
		settleWait: settleWait,
		log:        log.With("component", "session"),
		state:      StateDisconnected,
		qualified:  make(map[string]domain.Contract),
	}
}

// Provider returns the upstream provider name.
func (s *Session) Provider() string { return s.api.Name() }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the most recent connect error, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// setState records a lifecycle transition. Supervisor use only.
func (s *Session) setState(st State, err error) {
	s.mu.Lock()
	s.state = st
	if err != nil {
		s.lastErr = err
	}
	s.mu.Unlock()
}

// IsConnected reports whether the session is usable for requests.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	return st == StateConnected && s.api.IsConnected()
}

func (s *Session) ready() error {
	if !s.IsConnected() {
		return domain.ErrNotConnected
	}
	return nil
}

// Close tears down the upstream connection at process shutdown.
func (s *Session) Close() error {
	s.setState(StateDisconnected, nil)
	return s.api.Disconnect()
}

// Qualify resolves the venue identifier for the contract, memoized by symbol.
func (s *Session) Qualify(ctx context.Context, c domain.Contract) (domain.Contract, error) {
	key := NormalizeSymbol(c.Symbol)

	s.qmu.Lock()
	if qc, ok := s.qualified[key]; ok {
		s.qmu.Unlock()
		return qc, nil
	}
	s.qmu.Unlock()

	if err := s.ready(); err != nil {
		return domain.Contract{}, err
	}
	if err := s.api.Qualify(ctx, &c); err != nil {
		return domain.Contract{}, err
	}

	s.qmu.Lock()
	s.qualified[key] = c
	s.qmu.Unlock()
	return c, nil
}

// Search returns instruments matching the query text.
func (s *Session) Search(ctx context.Context, query string) ([]domain.SymbolMatch, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.api.Search(ctx, query)
	if err != nil {
		return nil, &domain.UpstreamError{Op: "search", Err: err}
	}
	return rows, nil
}

// SnapshotQuote issues a market-data request, waits the settle interval for
// the venue to populate it, reads the latest cached values, then cancels the
// request so no live feed leaks.
func (s *Session) SnapshotQuote(ctx context.Context, c domain.Contract) (domain.TickSnapshot, error) {
	if err := s.ready(); err != nil {
		return domain.TickSnapshot{}, err
	}

	feed, err := s.api.RequestMarketData(c)
	if err != nil {
		return domain.TickSnapshot{}, &domain.UpstreamError{Op: "snapshot", Err: err}
	}
	defer s.api.CancelMarketData(feed)

	select {
	case <-time.After(s.settleWait):
	case <-ctx.Done():
		return domain.TickSnapshot{}, ctx.Err()
	}

	snap := feed.Snapshot()
	snap.Symbol = c.Symbol
	return snap, nil
}

// RequestMarketData opens a live feed for the registry.
func (s *Session) RequestMarketData(c domain.Contract) (Feed, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	feed, err := s.api.RequestMarketData(c)
	if err != nil {
		return nil, &domain.UpstreamError{Op: "market data", Err: err}
	}
	return feed, nil
}

// CancelMarketData closes a feed. Safe to call even after disconnect.
func (s *Session) CancelMarketData(f Feed) {
	s.api.CancelMarketData(f)
}

// HistoricalBars returns OHLCV bars for the query.
func (s *Session) HistoricalBars(ctx context.Context, c domain.Contract, req domain.HistoryRequest) ([]domain.Bar, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	bars, err := s.api.HistoricalBars(ctx, c, req)
	if err != nil {
		return nil, &domain.UpstreamError{Op: "history", Err: err}
	}
	return bars, nil
}

// PlaceOrder validates the ticket and forwards it upstream.
func (s *Session) PlaceOrder(ctx context.Context, c domain.Contract, t domain.OrderTicket) (*domain.Order, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	o, err := s.api.PlaceOrder(ctx, c, t)
	if err != nil {
		return nil, &domain.UpstreamError{Op: "place order", Err: err}
	}
	return o, nil
}

// CancelOrder requests cancellation of an open order.
func (s *Session) CancelOrder(ctx context.Context, orderID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.api.CancelOrder(ctx, orderID); err != nil {
		return &domain.UpstreamError{Op: "cancel order", Err: err}
	}
	return nil
}

// OpenOrders lists working orders.
func (s *Session) OpenOrders(ctx context.Context) ([]domain.Order, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	orders, err := s.api.OpenOrders(ctx)
	if err != nil {
		return nil, &domain.UpstreamError{Op: "open orders", Err: err}
	}
	return orders, nil
}

// Positions lists current positions.
func (s *Session) Positions(ctx context.Context) ([]domain.Position, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	pos, err := s.api.Positions(ctx)
	if err != nil {
		return nil, &domain.UpstreamError{Op: "positions", Err: err}
	}
	return pos, nil
}

// AccountSummary returns tagged account metrics.
func (s *Session) AccountSummary(ctx context.Context) ([]domain.AccountValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	vals, err := s.api.AccountSummary(ctx)
	if err != nil {
		return nil, &domain.UpstreamError{Op: "account summary", Err: err}
	}
	return vals, nil
}

// StreamOrderUpdates runs the single upstream order-event listener. The relay
// is the only caller.
func (s *Session) StreamOrderUpdates(ctx context.Context, fn func(domain.OrderUpdate)) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.api.OrderUpdates(ctx, fn)
}
