// Package upstream owns the single brokerage session: the opaque API
// interface, the Session wrapper with its typed request methods, and the
// Supervisor that is the only component allowed to connect it.
package upstream

import (
	"context"

	"tradegate/internal/domain"
)

// Feed is one live market-data stream for a qualified contract. Reading the
// snapshot never blocks; fields the venue has not populated yet are nil.
type Feed interface {
	Snapshot() domain.TickSnapshot
}

// API abstracts the brokerage service. Implementations: AlpacaAPI for
// production, Simulator for development and tests. The API provides its own
// request/response sequencing, so methods on a connected API may be called
// concurrently.
type API interface {
	// Name returns the provider identifier (e.g. "alpaca", "sim").
	Name() string

	// Connect establishes the upstream connection. The caller bounds the
	// attempt through ctx; an expired ctx aborts the dial.
	Connect(ctx context.Context) error

	// Disconnect tears the connection down.
	Disconnect() error

	// IsConnected reports whether the physical connection is up.
	IsConnected() bool

	// Qualify assigns the venue identifier to the contract, or returns
	// domain.ErrContractNotFound.
	Qualify(ctx context.Context, c *domain.Contract) error

	// Search returns instruments matching the query text.
	Search(ctx context.Context, query string) ([]domain.SymbolMatch, error)

	// RequestMarketData opens a streaming feed for the contract. The feed
	// stays live until cancelled.
	RequestMarketData(c domain.Contract) (Feed, error)

	// CancelMarketData closes a feed opened by RequestMarketData.
	CancelMarketData(f Feed)

	// HistoricalBars returns OHLCV bars for the contract and query window.
	HistoricalBars(ctx context.Context, c domain.Contract, req domain.HistoryRequest) ([]domain.Bar, error)

	// PlaceOrder submits the order and returns the brokerage's view of it.
	PlaceOrder(ctx context.Context, c domain.Contract, t domain.OrderTicket) (*domain.Order, error)

	// CancelOrder requests cancellation of an open order by ID.
	CancelOrder(ctx context.Context, orderID string) error

	// OpenOrders lists orders that are still working.
	OpenOrders(ctx context.Context) ([]domain.Order, error)

	// Positions lists current positions.
	Positions(ctx context.Context) ([]domain.Position, error)

	// AccountSummary returns tagged account metrics.
	AccountSummary(ctx context.Context) ([]domain.AccountValue, error)

	// OrderUpdates delivers order/trade status events to fn until ctx is
	// cancelled. At most one listener runs per process; the relay owns it.
	OrderUpdates(ctx context.Context, fn func(domain.OrderUpdate)) error
}
