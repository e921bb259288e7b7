package upstream

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
	"github.com/shopspring/decimal"

	"tradegate/internal/domain"
)

// Compile-time interface check.
var _ API = (*AlpacaAPI)(nil)

// AlpacaConfig carries the credentials and endpoints for the Alpaca adapter.
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string // trading API, e.g. https://paper-api.alpaca.markets
	DataURL   string // market-data API, empty for the default
	Feed      string // "iex" or "sip"
}

// AlpacaAPI implements the brokerage API against Alpaca: REST trading client,
// REST market-data client, and the stocks WebSocket stream for live quotes.
type AlpacaAPI struct {
	cfg AlpacaConfig
	log *slog.Logger

	trading *alpaca.Client
	md      *marketdata.Client

	mu         sync.Mutex
	connected  bool
	stocks     *stream.StocksClient
	streamStop context.CancelFunc
	feeds      map[string]map[*alpacaFeed]bool
}

// NewAlpacaAPI creates the adapter. No network activity happens until Connect.
func NewAlpacaAPI(cfg AlpacaConfig, log *slog.Logger) *AlpacaAPI {
	if cfg.Feed == "" {
		cfg.Feed = "iex"
	}
	return &AlpacaAPI{
		cfg:   cfg,
		log:   log.With("component", "alpaca"),
		feeds: make(map[string]map[*alpacaFeed]bool),
	}
}

// Name returns "alpaca".
func (a *AlpacaAPI) Name() string { return "alpaca" }

// Connect builds the REST clients, verifies the credentials with an account
// probe, and brings up the quote stream. The attempt is bounded by ctx; the
// stream itself outlives ctx and runs until Disconnect.
func (a *AlpacaAPI) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.connected {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	trading := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    a.cfg.APIKey,
		APISecret: a.cfg.APISecret,
		BaseURL:   a.cfg.BaseURL,
	})

	mdOpts := marketdata.ClientOpts{
		APIKey:    a.cfg.APIKey,
		APISecret: a.cfg.APISecret,
	}
	if a.cfg.DataURL != "" {
		mdOpts.BaseURL = a.cfg.DataURL
	}
	md := marketdata.NewClient(mdOpts)

	// The REST client has no context-aware account call, so race the probe
	// against ctx.
	probe := make(chan error, 1)
	go func() {
		_, err := trading.GetAccount()
		probe <- err
	}()
	select {
	case err := <-probe:
		if err != nil {
			return fmt.Errorf("account probe: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	// The stream connection lives until Disconnect, so it gets its own
	// lifetime context; only the dial is raced against ctx.
	streamCtx, stop := context.WithCancel(context.Background())
	stocks := stream.NewStocksClient(a.cfg.Feed,
		stream.WithCredentials(a.cfg.APIKey, a.cfg.APISecret),
	)

	dial := make(chan error, 1)
	go func() { dial <- stocks.Connect(streamCtx) }()
	select {
	case err := <-dial:
		if err != nil {
			stop()
			return fmt.Errorf("quote stream connect: %w", err)
		}
	case <-ctx.Done():
		stop()
		return ctx.Err()
	}

	a.mu.Lock()
	a.trading = trading
	a.md = md
	a.stocks = stocks
	a.streamStop = stop
	a.connected = true
	a.mu.Unlock()
	return nil
}

// Disconnect stops the quote stream and marks the adapter down.
func (a *AlpacaAPI) Disconnect() error {
	a.mu.Lock()
	stop := a.streamStop
	a.connected = false
	a.streamStop = nil
	a.stocks = nil
	a.feeds = make(map[string]map[*alpacaFeed]bool)
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
	return nil
}

// IsConnected reports whether Connect has succeeded and Disconnect has not run.
func (a *AlpacaAPI) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// Qualify verifies the symbol is a tradable US equity and assigns a stable
// derived identifier. Alpaca carries no forex or derivatives, so anything but
// an equity fails qualification.
func (a *AlpacaAPI) Qualify(_ context.Context, c *domain.Contract) error {
	if c.Class != domain.AssetEquity {
		return fmt.Errorf("%w: %s not tradable on alpaca", domain.ErrContractNotFound, c.Symbol)
	}

	asset, err := a.trading.GetAsset(c.Symbol)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrContractNotFound, c.Symbol)
	}
	if !asset.Tradable {
		return fmt.Errorf("%w: %s is not tradable", domain.ErrContractNotFound, c.Symbol)
	}

	h := fnv.New32a()
	h.Write([]byte(c.Symbol))
	c.ConID = int64(h.Sum32())
	if asset.Exchange != "" {
		c.PrimaryExchange = asset.Exchange
	}
	return nil
}

// Search lists active assets whose symbol or name matches the query.
func (a *AlpacaAPI) Search(_ context.Context, query string) ([]domain.SymbolMatch, error) {
	q := NormalizeSymbol(query)
	if q == "" {
		return nil, nil
	}

	assets, err := a.trading.GetAssets(alpaca.GetAssetsRequest{Status: "active"})
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}

	var rows []domain.SymbolMatch
	for _, as := range assets {
		if !strings.HasPrefix(as.Symbol, q) && !strings.Contains(strings.ToUpper(as.Name), q) {
			continue
		}
		rows = append(rows, domain.SymbolMatch{
			Symbol:   as.Symbol,
			Name:     as.Name,
			SecType:  "STK",
			Exchange: as.Exchange,
		})
	}
	return rows, nil
}

// alpacaFeed is a latest-value cell fed by the stream handlers.
type alpacaFeed struct {
	symbol string

	mu   sync.Mutex
	snap domain.TickSnapshot
	vol  int64
}

func (f *alpacaFeed) Snapshot() domain.TickSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *alpacaFeed) onQuote(q stream.Quote) {
	f.mu.Lock()
	f.snap.Bid = domain.Float(q.BidPrice)
	f.snap.Ask = domain.Float(q.AskPrice)
	f.snap.Time = domain.UnixTime(q.Timestamp)
	f.mu.Unlock()
}

func (f *alpacaFeed) onTrade(t stream.Trade) {
	f.mu.Lock()
	f.snap.Last = domain.Float(t.Price)
	f.vol += int64(t.Size)
	f.snap.Volume = domain.Int(f.vol)
	f.snap.Time = domain.UnixTime(t.Timestamp)
	f.mu.Unlock()
}

// RequestMarketData subscribes the symbol on the quote stream. Multiple feeds
// for one symbol share a single stream subscription.
func (a *AlpacaAPI) RequestMarketData(c domain.Contract) (Feed, error) {
	if c.Class != domain.AssetEquity {
		return nil, fmt.Errorf("market data unsupported for %s contracts", c.SecType())
	}

	sym := NormalizeSymbol(c.Symbol)
	f := &alpacaFeed{symbol: sym}
	f.snap.Symbol = c.Symbol

	a.mu.Lock()
	stocks := a.stocks
	first := len(a.feeds[sym]) == 0
	if a.feeds[sym] == nil {
		a.feeds[sym] = make(map[*alpacaFeed]bool)
	}
	a.feeds[sym][f] = true
	a.mu.Unlock()

	if stocks == nil {
		return nil, fmt.Errorf("quote stream is down")
	}

	if first {
		if err := stocks.SubscribeToQuotes(func(q stream.Quote) { a.fanout(q.Symbol, func(f *alpacaFeed) { f.onQuote(q) }) }, sym); err != nil {
			a.dropFeed(f)
			return nil, fmt.Errorf("subscribe quotes %s: %w", sym, err)
		}
		if err := stocks.SubscribeToTrades(func(t stream.Trade) { a.fanout(t.Symbol, func(f *alpacaFeed) { f.onTrade(t) }) }, sym); err != nil {
			a.dropFeed(f)
			return nil, fmt.Errorf("subscribe trades %s: %w", sym, err)
		}
	}
	return f, nil
}

func (a *AlpacaAPI) fanout(symbol string, apply func(*alpacaFeed)) {
	sym := NormalizeSymbol(symbol)
	a.mu.Lock()
	targets := make([]*alpacaFeed, 0, len(a.feeds[sym]))
	for f := range a.feeds[sym] {
		targets = append(targets, f)
	}
	a.mu.Unlock()
	for _, f := range targets {
		apply(f)
	}
}

// CancelMarketData drops a feed and unsubscribes the symbol when the last
// feed for it is gone.
func (a *AlpacaAPI) CancelMarketData(f Feed) {
	af, ok := f.(*alpacaFeed)
	if !ok {
		return
	}
	a.dropFeed(af)
}

func (a *AlpacaAPI) dropFeed(f *alpacaFeed) {
	a.mu.Lock()
	set := a.feeds[f.symbol]
	delete(set, f)
	last := len(set) == 0
	if last {
		delete(a.feeds, f.symbol)
	}
	stocks := a.stocks
	a.mu.Unlock()

	if last && stocks != nil {
		if err := stocks.UnsubscribeFromQuotes(f.symbol); err != nil {
			a.log.Warn("unsubscribe quotes failed", "symbol", f.symbol, "error", err)
		}
		if err := stocks.UnsubscribeFromTrades(f.symbol); err != nil {
			a.log.Warn("unsubscribe trades failed", "symbol", f.symbol, "error", err)
		}
	}
}

// HistoricalBars translates the venue-style duration and bar-size strings
// into an absolute Alpaca bar query.
func (a *AlpacaAPI) HistoricalBars(_ context.Context, c domain.Contract, req domain.HistoryRequest) ([]domain.Bar, error) {
	if c.Class != domain.AssetEquity {
		return nil, fmt.Errorf("history unsupported for %s contracts", c.SecType())
	}

	dur, err := ParseHistoryDuration(req.Duration)
	if err != nil {
		return nil, err
	}
	size, err := ParseBarSize(req.BarSize)
	if err != nil {
		return nil, err
	}
	tf, err := timeFrameFor(size)
	if err != nil {
		return nil, err
	}

	end := req.End
	if end.IsZero() {
		end = time.Now().UTC()
	}
	start := end.Add(-dur)

	bars, err := a.md.GetBars(NormalizeSymbol(c.Symbol), marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     start,
		End:       end,
		Feed:      marketdata.Feed(a.cfg.Feed),
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars: %w", err)
	}

	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		out = append(out, domain.Bar{
			Time:   b.Timestamp,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: int64(b.Volume),
		})
	}
	return out, nil
}

// timeFrameFor maps a bar-size duration onto the closest Alpaca timeframe.
func timeFrameFor(size time.Duration) (marketdata.TimeFrame, error) {
	switch {
	case size < time.Minute:
		return marketdata.TimeFrame{}, &domain.ValidationError{Msg: "bar sizes under 1 min are not supported"}
	case size < time.Hour:
		return marketdata.NewTimeFrame(int(size/time.Minute), marketdata.Min), nil
	case size < 24*time.Hour:
		return marketdata.NewTimeFrame(int(size/time.Hour), marketdata.Hour), nil
	case size == 24*time.Hour:
		return marketdata.OneDay, nil
	case size == 7*24*time.Hour:
		return marketdata.OneWeek, nil
	default:
		return marketdata.OneMonth, nil
	}
}

// PlaceOrder submits the ticket as a day order.
func (a *AlpacaAPI) PlaceOrder(_ context.Context, c domain.Contract, t domain.OrderTicket) (*domain.Order, error) {
	if c.Class != domain.AssetEquity {
		return nil, fmt.Errorf("orders unsupported for %s contracts", c.SecType())
	}

	qty := decimal.NewFromFloat(t.Quantity)
	req := alpaca.PlaceOrderRequest{
		Symbol:      NormalizeSymbol(c.Symbol),
		Qty:         &qty,
		Side:        alpaca.Side(t.Side),
		TimeInForce: alpaca.Day,
		Type:        alpacaOrderType(t.Type),
	}
	if t.LimitPrice != nil {
		p := decimal.NewFromFloat(*t.LimitPrice)
		req.LimitPrice = &p
	}
	if t.StopPrice != nil {
		p := decimal.NewFromFloat(*t.StopPrice)
		req.StopPrice = &p
	}

	o, err := a.trading.PlaceOrder(req)
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	conv := convertAlpacaOrder(*o)
	return &conv, nil
}

// CancelOrder cancels an open order by ID.
func (a *AlpacaAPI) CancelOrder(_ context.Context, orderID string) error {
	if err := a.trading.CancelOrder(orderID); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

// OpenOrders lists working orders.
func (a *AlpacaAPI) OpenOrders(_ context.Context) ([]domain.Order, error) {
	orders, err := a.trading.GetOrders(alpaca.GetOrdersRequest{Status: "open", Limit: 500})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, convertAlpacaOrder(o))
	}
	return out, nil
}

// Positions lists open positions.
func (a *AlpacaAPI) Positions(_ context.Context) ([]domain.Position, error) {
	positions, err := a.trading.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	out := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		out = append(out, domain.Position{
			Symbol:  p.Symbol,
			Qty:     p.Qty.InexactFloat64(),
			AvgCost: p.AvgEntryPrice.InexactFloat64(),
		})
	}
	return out, nil
}

// AccountSummary projects the Alpaca account onto tagged summary rows.
func (a *AlpacaAPI) AccountSummary(_ context.Context) ([]domain.AccountValue, error) {
	acct, err := a.trading.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	cur := acct.Currency
	if cur == "" {
		cur = "USD"
	}
	return []domain.AccountValue{
		{Tag: "NetLiquidation", Value: acct.Equity.String(), Currency: cur, Account: acct.AccountNumber},
		{Tag: "TotalCashValue", Value: acct.Cash.String(), Currency: cur, Account: acct.AccountNumber},
		{Tag: "BuyingPower", Value: acct.BuyingPower.String(), Currency: cur, Account: acct.AccountNumber},
	}, nil
}

// OrderUpdates streams trade updates from the trading API until ctx is
// cancelled, translating each into a domain event.
func (a *AlpacaAPI) OrderUpdates(ctx context.Context, fn func(domain.OrderUpdate)) error {
	return a.trading.StreamTradeUpdates(ctx, func(tu alpaca.TradeUpdate) {
		o := convertAlpacaOrder(tu.Order)
		at := tu.At
		if at.IsZero() {
			at = time.Now()
		}
		fn(domain.OrderUpdate{
			OrderID:      o.ID,
			Symbol:       o.Symbol,
			Status:       o.Status,
			FilledQty:    o.FilledQty,
			RemainingQty: o.RemainingQty,
			AvgFillPrice: o.AvgFillPrice,
			At:           at,
		})
	}, alpaca.StreamTradeUpdatesRequest{})
}

func alpacaOrderType(t domain.OrderType) alpaca.OrderType {
	switch t {
	case domain.OrderTypeLimit:
		return alpaca.Limit
	case domain.OrderTypeStop:
		return alpaca.Stop
	case domain.OrderTypeStopLimit:
		return alpaca.StopLimit
	default:
		return alpaca.Market
	}
}

func convertAlpacaOrder(o alpaca.Order) domain.Order {
	var qty, filled, avg float64
	if o.Qty != nil {
		qty = o.Qty.InexactFloat64()
	}
	filled = o.FilledQty.InexactFloat64()
	if o.FilledAvgPrice != nil {
		avg = o.FilledAvgPrice.InexactFloat64()
	}
	return domain.Order{
		ID:           o.ID,
		PermID:       o.ClientOrderID,
		Symbol:       o.Symbol,
		Side:         domain.OrderSide(o.Side),
		Type:         domainOrderType(o.Type),
		Quantity:     qty,
		Status:       domainOrderStatus(o.Status),
		FilledQty:    filled,
		RemainingQty: qty - filled,
		AvgFillPrice: avg,
		UpdatedAt:    o.UpdatedAt,
	}
}

func domainOrderType(t alpaca.OrderType) domain.OrderType {
	switch t {
	case alpaca.Limit:
		return domain.OrderTypeLimit
	case alpaca.Stop:
		return domain.OrderTypeStop
	case alpaca.StopLimit:
		return domain.OrderTypeStopLimit
	default:
		return domain.OrderTypeMarket
	}
}

func domainOrderStatus(s string) domain.OrderStatus {
	switch s {
	case "filled":
		return domain.OrderFilled
	case "partially_filled":
		return domain.OrderPartiallyFilled
	case "canceled", "cancelled", "expired", "done_for_day":
		return domain.OrderCancelled
	case "rejected", "stopped", "suspended":
		return domain.OrderRejected
	default:
		return domain.OrderSubmitted
	}
}
