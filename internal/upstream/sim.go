package upstream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tradegate/internal/domain"
)

// Compile-time interface check.
var _ API = (*Simulator)(nil)

// simAssets is the instrument table the simulator can search and quote.
var simAssets = []domain.SymbolMatch{
	{Symbol: "AAPL", Name: "Apple Inc", SecType: "STK", Exchange: "NASDAQ"},
	{Symbol: "AMZN", Name: "Amazon.com Inc", SecType: "STK", Exchange: "NASDAQ"},
	{Symbol: "GOOG", Name: "Alphabet Inc", SecType: "STK", Exchange: "NASDAQ"},
	{Symbol: "MSFT", Name: "Microsoft Corp", SecType: "STK", Exchange: "NASDAQ"},
	{Symbol: "NVDA", Name: "NVIDIA Corp", SecType: "STK", Exchange: "NASDAQ"},
	{Symbol: "TSLA", Name: "Tesla Inc", SecType: "STK", Exchange: "NASDAQ"},
	{Symbol: "JPM", Name: "JPMorgan Chase & Co", SecType: "STK", Exchange: "NYSE"},
	{Symbol: "SPY", Name: "SPDR S&P 500 ETF Trust", SecType: "STK", Exchange: "ARCA"},
}

// SimFeed is an in-memory market-data feed whose values tests and the
// simulator's order fills can set directly.
type SimFeed struct {
	mu     sync.Mutex
	symbol string
	snap   domain.TickSnapshot
}

// Snapshot returns a copy of the latest cached values.
func (f *SimFeed) Snapshot() domain.TickSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

// Set overwrites the feed's cached quote values.
func (f *SimFeed) Set(last, bid, ask float64, volume int64) {
	f.mu.Lock()
	close := f.snap.Close
	f.snap = domain.TickSnapshot{
		Symbol: f.symbol,
		Last:   domain.Float(last),
		Bid:    domain.Float(bid),
		Ask:    domain.Float(ask),
		Close:  close,
		Volume: domain.Int(volume),
		Time:   domain.UnixTime(time.Now()),
	}
	f.mu.Unlock()
}

// SetClose sets the prior-close value on the feed.
func (f *SimFeed) SetClose(close float64) {
	f.mu.Lock()
	f.snap.Close = domain.Float(close)
	f.mu.Unlock()
}

// Simulator implements the brokerage API in memory for development and
// tests. Orders fill immediately; market data is whatever tests put into the
// feeds; connect outcomes can be scripted.
type Simulator struct {
	mu sync.Mutex

	connected    bool
	connectCalls int
	connectQueue []error // scripted outcomes, popped per attempt; empty means success
	connectDelay time.Duration

	nextConID   int64
	badSymbols  map[string]bool
	feeds       map[*SimFeed]bool
	feedsBySym  map[string]*SimFeed
	cancelCount int

	nextOrderID  int
	orders       map[string]domain.Order
	positions    []domain.Position
	historyCalls int

	updateFn         func(domain.OrderUpdate)
	streamErr        error
	orderStreamCalls int
}

// NewSimulator creates a Simulator with empty state.
func NewSimulator() *Simulator {
	return &Simulator{
		nextConID:  1000,
		badSymbols: make(map[string]bool),
		feeds:      make(map[*SimFeed]bool),
		feedsBySym: make(map[string]*SimFeed),
		orders:     make(map[string]domain.Order),
		positions: []domain.Position{
			{Account: "SIM000001", Symbol: "AAPL", Qty: 100, AvgCost: 180.40},
		},
	}
}

// Name returns "sim".
func (s *Simulator) Name() string { return "sim" }

// ScriptConnectResults queues outcomes for upcoming Connect calls. A nil
// entry means success.
func (s *Simulator) ScriptConnectResults(errs ...error) {
	s.mu.Lock()
	s.connectQueue = append(s.connectQueue, errs...)
	s.mu.Unlock()
}

// SetConnectDelay makes every Connect attempt take d before resolving.
func (s *Simulator) SetConnectDelay(d time.Duration) {
	s.mu.Lock()
	s.connectDelay = d
	s.mu.Unlock()
}

// ConnectCalls returns how many physical connect attempts were made.
func (s *Simulator) ConnectCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectCalls
}

// FailSymbol makes qualification of the given symbol fail with
// domain.ErrContractNotFound.
func (s *Simulator) FailSymbol(symbol string) {
	s.mu.Lock()
	s.badSymbols[NormalizeSymbol(symbol)] = true
	s.mu.Unlock()
}

// ActiveFeedCount returns the number of live feeds.
func (s *Simulator) ActiveFeedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.feeds)
}

// CancelCount returns how many feeds have been cancelled.
func (s *Simulator) CancelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelCount
}

// SetTick pushes quote values into the live feed for a symbol, if one exists.
func (s *Simulator) SetTick(symbol string, last, bid, ask float64, volume int64) {
	s.mu.Lock()
	f := s.feedsBySym[NormalizeSymbol(symbol)]
	s.mu.Unlock()
	if f != nil {
		f.Set(last, bid, ask, volume)
	}
}

// SetClose sets the prior-close value on a symbol's live feed, if one exists.
func (s *Simulator) SetClose(symbol string, close float64) {
	s.mu.Lock()
	f := s.feedsBySym[NormalizeSymbol(symbol)]
	s.mu.Unlock()
	if f != nil {
		f.SetClose(close)
	}
}

// FailOrderStream makes every OrderUpdates call fail immediately with err.
func (s *Simulator) FailOrderStream(err error) {
	s.mu.Lock()
	s.streamErr = err
	s.mu.Unlock()
}

// OrderStreamCalls returns how many times OrderUpdates was entered.
func (s *Simulator) OrderStreamCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderStreamCalls
}

// HasOrderListener reports whether an OrderUpdates listener is registered.
func (s *Simulator) HasOrderListener() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateFn != nil
}

// Connect resolves per the scripted queue, honouring ctx and the configured
// delay.
func (s *Simulator) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.connectCalls++
	var res error
	if len(s.connectQueue) > 0 {
		res = s.connectQueue[0]
		s.connectQueue = s.connectQueue[1:]
	}
	delay := s.connectDelay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	} else if ctx.Err() != nil {
		return ctx.Err()
	}

	if res != nil {
		return res
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

// Disconnect drops the simulated connection.
func (s *Simulator) Disconnect() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

// IsConnected reports the simulated connection state.
func (s *Simulator) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Qualify assigns a deterministic conID. Forex always qualifies; equities
// qualify unless marked bad via FailSymbol.
func (s *Simulator) Qualify(_ context.Context, c *domain.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := NormalizeSymbol(c.Symbol)
	if s.badSymbols[key] {
		return fmt.Errorf("%w: %s", domain.ErrContractNotFound, c.Symbol)
	}
	s.nextConID++
	c.ConID = s.nextConID
	return nil
}

// Search matches the simulated asset table by symbol prefix or name substring.
func (s *Simulator) Search(_ context.Context, query string) ([]domain.SymbolMatch, error) {
	q := NormalizeSymbol(query)
	if q == "" {
		return nil, nil
	}
	var rows []domain.SymbolMatch
	for _, a := range simAssets {
		if strings.HasPrefix(a.Symbol, q) || strings.Contains(strings.ToUpper(a.Name), q) {
			rows = append(rows, a)
		}
	}
	return rows, nil
}

// RequestMarketData opens an empty feed; values arrive via SetTick or order
// fills.
func (s *Simulator) RequestMarketData(c domain.Contract) (Feed, error) {
	f := &SimFeed{symbol: c.Symbol}
	f.snap.Symbol = c.Symbol
	s.mu.Lock()
	s.feeds[f] = true
	s.feedsBySym[NormalizeSymbol(c.Symbol)] = f
	s.mu.Unlock()
	return f, nil
}

// CancelMarketData closes a feed.
func (s *Simulator) CancelMarketData(f Feed) {
	sf, ok := f.(*SimFeed)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.feeds[sf] {
		delete(s.feeds, sf)
		if s.feedsBySym[NormalizeSymbol(sf.symbol)] == sf {
			delete(s.feedsBySym, NormalizeSymbol(sf.symbol))
		}
		s.cancelCount++
	}
	s.mu.Unlock()
}

// HistoryCalls returns how many historical-bar requests reached the
// simulator.
func (s *Simulator) HistoryCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyCalls
}

// HistoricalBars synthesizes a deterministic random walk honouring the OHLC
// invariants (high >= max(open, close), low <= min(open, close)).
func (s *Simulator) HistoricalBars(_ context.Context, c domain.Contract, req domain.HistoryRequest) ([]domain.Bar, error) {
	s.mu.Lock()
	s.historyCalls++
	s.mu.Unlock()

	dur, err := ParseHistoryDuration(req.Duration)
	if err != nil {
		return nil, err
	}
	size, err := ParseBarSize(req.BarSize)
	if err != nil {
		return nil, err
	}

	n := int(dur / size)
	if n < 1 {
		n = 1
	}
	if n > 500 {
		n = 500
	}

	end := req.End
	if end.IsZero() {
		end = time.Now().UTC().Truncate(size)
	}

	// Seed the walk from the symbol so results are stable per instrument.
	price := 50.0
	for _, r := range c.Symbol {
		price += float64(r % 17)
	}

	bars := make([]domain.Bar, 0, n)
	for i := n - 1; i >= 0; i-- {
		drift := float64((i*7+len(c.Symbol))%11)/10.0 - 0.5
		open := price
		clos := price + drift
		high := open
		if clos > high {
			high = clos
		}
		high += 0.25
		low := open
		if clos < low {
			low = clos
		}
		low -= 0.25

		var vol int64
		if req.WhatToShow != "MIDPOINT" {
			vol = int64(1000 + (i*137)%5000)
		}

		bars = append(bars, domain.Bar{
			Time:   end.Add(-time.Duration(i+1) * size),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  clos,
			Volume: vol,
		})
		price = clos
	}
	return bars, nil
}

// PlaceOrder records the order and simulates an immediate full fill,
// emitting submitted and filled events to the order-update listener.
func (s *Simulator) PlaceOrder(_ context.Context, c domain.Contract, t domain.OrderTicket) (*domain.Order, error) {
	fill := 100.0
	if t.LimitPrice != nil {
		fill = *t.LimitPrice
	}

	s.mu.Lock()
	s.nextOrderID++
	o := domain.Order{
		ID:           fmt.Sprintf("sim-%d", s.nextOrderID),
		PermID:       fmt.Sprintf("perm-%d", s.nextOrderID),
		Symbol:       c.Symbol,
		Side:         t.Side,
		Type:         t.Type,
		Quantity:     t.Quantity,
		Status:       domain.OrderSubmitted,
		RemainingQty: t.Quantity,
		UpdatedAt:    time.Now(),
	}
	s.orders[o.ID] = o
	fn := s.updateFn
	s.mu.Unlock()

	if fn != nil {
		fn(orderUpdateFor(o))
	}

	s.mu.Lock()
	o.Status = domain.OrderFilled
	o.FilledQty = t.Quantity
	o.RemainingQty = 0
	o.AvgFillPrice = fill
	o.UpdatedAt = time.Now()
	s.orders[o.ID] = o
	fn = s.updateFn
	s.mu.Unlock()

	if fn != nil {
		fn(orderUpdateFor(o))
	}

	return &o, nil
}

// CancelOrder marks an order cancelled and emits the event.
func (s *Simulator) CancelOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	o, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("order %s not found", orderID)
	}
	o.Status = domain.OrderCancelled
	o.UpdatedAt = time.Now()
	s.orders[orderID] = o
	fn := s.updateFn
	s.mu.Unlock()

	if fn != nil {
		fn(orderUpdateFor(o))
	}
	return nil
}

// OpenOrders lists orders not yet in a terminal state.
func (s *Simulator) OpenOrders(_ context.Context) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.Status == domain.OrderSubmitted || o.Status == domain.OrderPartiallyFilled {
			out = append(out, o)
		}
	}
	return out, nil
}

// Positions lists the simulated positions.
func (s *Simulator) Positions(_ context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Position, len(s.positions))
	copy(out, s.positions)
	return out, nil
}

// AccountSummary returns fixed simulated account metrics.
func (s *Simulator) AccountSummary(_ context.Context) ([]domain.AccountValue, error) {
	return []domain.AccountValue{
		{Tag: "NetLiquidation", Value: "100000.00", Currency: "USD", Account: "SIM000001"},
		{Tag: "AvailableFunds", Value: "52000.00", Currency: "USD", Account: "SIM000001"},
		{Tag: "BuyingPower", Value: "208000.00", Currency: "USD", Account: "SIM000001"},
	}, nil
}

// OrderUpdates registers fn as the single event listener and blocks until
// ctx is cancelled.
func (s *Simulator) OrderUpdates(ctx context.Context, fn func(domain.OrderUpdate)) error {
	s.mu.Lock()
	s.orderStreamCalls++
	if err := s.streamErr; err != nil {
		s.mu.Unlock()
		return err
	}
	s.updateFn = fn
	s.mu.Unlock()

	<-ctx.Done()

	s.mu.Lock()
	s.updateFn = nil
	s.mu.Unlock()
	return ctx.Err()
}

func orderUpdateFor(o domain.Order) domain.OrderUpdate {
	return domain.OrderUpdate{
		OrderID:      o.ID,
		PermID:       o.PermID,
		Symbol:       o.Symbol,
		Status:       o.Status,
		FilledQty:    o.FilledQty,
		RemainingQty: o.RemainingQty,
		AvgFillPrice: o.AvgFillPrice,
		At:           o.UpdatedAt,
	}
}
