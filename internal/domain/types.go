// Package domain defines the core types shared across the gateway: contracts,
// tick snapshots, bars, orders, positions, and the error taxonomy.
package domain

import (
	"math"
	"time"
)

// AssetClass identifies the kind of tradable instrument a Contract describes.
type AssetClass string

const (
	AssetEquity AssetClass = "equity"
	AssetForex  AssetClass = "forex"
	AssetFuture AssetClass = "future"
	AssetOption AssetClass = "option"
)

// Contract is a resolved description of a tradable instrument. It is immutable
// once resolved; qualification assigns ConID lazily on first use.
type Contract struct {
	Symbol   string // display symbol, e.g. "AAPL" or "EUR.USD"
	Class    AssetClass
	Exchange string
	Currency string

	// Forex legs, set only when Class == AssetForex.
	Base  string
	Quote string

	// Venue-assigned identifier, zero until qualified.
	ConID int64

	PrimaryExchange string
}

// SecType returns the wire-level security type code for the contract class.
func (c Contract) SecType() string {
	switch c.Class {
	case AssetForex:
		return "FX"
	case AssetFuture:
		return "FUT"
	case AssetOption:
		return "OPT"
	default:
		return "STK"
	}
}

// TickSnapshot is a point-in-time read of best bid/ask/last/volume for a
// symbol. Absent values are nil, never NaN or zero, so the wire payload
// reports them as explicit nulls.
type TickSnapshot struct {
	Symbol string   `json:"symbol"`
	Last   *float64 `json:"last"`
	Bid    *float64 `json:"bid"`
	Ask    *float64 `json:"ask"`
	Close  *float64 `json:"close"` // prior close, fallback for an absent last
	Volume *int64   `json:"volume"`
	Time   *float64 `json:"time"` // Unix seconds with fraction
}

// Float returns a pointer to v, or nil when v is NaN or infinite. It is the
// single normalization point for upstream numeric fields.
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Int returns a pointer to v for optional integer fields.
func Int(v int64) *int64 {
	return &v
}

// UnixTime converts t to the snapshot time representation, nil for the zero time.
func UnixTime(t time.Time) *float64 {
	if t.IsZero() {
		return nil
	}
	v := float64(t.UnixNano()) / 1e9
	return &v
}

// Bar is a single OHLCV bar returned by a history query.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// HistoryRequest describes a historical bar query in upstream terms.
type HistoryRequest struct {
	Duration   string    // e.g. "1 D", "2 W", "3600 S"
	BarSize    string    // e.g. "5 mins", "1 hour", "1 day"
	WhatToShow string    // "TRADES" or "MIDPOINT"
	UseRTH     bool      // regular trading hours only
	End        time.Time // zero means now
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType selects the execution style of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// OrderStatus is the lifecycle state of an order at the brokerage.
type OrderStatus string

const (
	OrderSubmitted       OrderStatus = "submitted"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCancelled       OrderStatus = "cancelled"
	OrderRejected        OrderStatus = "rejected"
)

// OrderTicket is a request to place an order, before the brokerage assigns
// an identity to it.
type OrderTicket struct {
	Side       OrderSide
	Quantity   float64
	Type       OrderType
	LimitPrice *float64
	StopPrice  *float64
}

// Validate checks the ticket for the price fields its order type requires.
func (t OrderTicket) Validate() error {
	if t.Side != OrderSideBuy && t.Side != OrderSideSell {
		return &ValidationError{Msg: "action must be buy or sell"}
	}
	if t.Quantity <= 0 {
		return &ValidationError{Msg: "quantity must be positive"}
	}
	switch t.Type {
	case OrderTypeMarket:
	case OrderTypeLimit:
		if t.LimitPrice == nil {
			return &ValidationError{Msg: "lmtPrice required for LMT"}
		}
	case OrderTypeStop:
		if t.StopPrice == nil {
			return &ValidationError{Msg: "auxPrice required for STP"}
		}
	case OrderTypeStopLimit:
		if t.LimitPrice == nil || t.StopPrice == nil {
			return &ValidationError{Msg: "auxPrice and lmtPrice required for STP LMT"}
		}
	default:
		return &ValidationError{Msg: "unsupported orderType"}
	}
	return nil
}

// Order is the gateway's view of an order at the brokerage. It is mutated
// only by the order-event relay; everything else reads copies.
type Order struct {
	ID           string      `json:"orderId"`
	PermID       string      `json:"permId,omitempty"`
	Symbol       string      `json:"symbol"`
	Side         OrderSide   `json:"side,omitempty"`
	Type         OrderType   `json:"type,omitempty"`
	Quantity     float64     `json:"quantity,omitempty"`
	Status       OrderStatus `json:"status"`
	FilledQty    float64     `json:"filled"`
	RemainingQty float64     `json:"remaining"`
	AvgFillPrice float64     `json:"avgFillPrice"`
	UpdatedAt    time.Time   `json:"updatedAt,omitempty"`
}

// OrderUpdate is one upstream order/trade status event.
type OrderUpdate struct {
	OrderID      string      `json:"orderId"`
	PermID       string      `json:"permId,omitempty"`
	Symbol       string      `json:"symbol"`
	Status       OrderStatus `json:"status"`
	FilledQty    float64     `json:"filled"`
	RemainingQty float64     `json:"remaining"`
	AvgFillPrice float64     `json:"avgFillPrice"`
	At           time.Time   `json:"at"`
}

// Position is an open position held at the brokerage.
type Position struct {
	Account string  `json:"account,omitempty"`
	Symbol  string  `json:"symbol"`
	ConID   int64   `json:"conId,omitempty"`
	Qty     float64 `json:"position"`
	AvgCost float64 `json:"avgCost"`
}

// AccountValue is one tagged entry from the account summary.
type AccountValue struct {
	Tag      string `json:"tag"`
	Value    string `json:"value"`
	Currency string `json:"currency"`
	Account  string `json:"account"`
}

// SymbolMatch is one row of a symbol search result.
type SymbolMatch struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	SecType  string `json:"secType"`
	Exchange string `json:"exchange"`
}
