package httpapi

import "tradegate/internal/domain"

// ContractRequest identifies an instrument in wire terms. Only symbol is
// required; secType defaults to STK, exchange and currency to the usual
// routing defaults.
type ContractRequest struct {
	Symbol   string `json:"symbol"`
	SecType  string `json:"secType,omitempty"`
	Exchange string `json:"exchange,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// ContractResponse is a qualified contract.
type ContractResponse struct {
	Symbol          string `json:"symbol"`
	SecType         string `json:"secType"`
	Exchange        string `json:"exchange"`
	Currency        string `json:"currency"`
	ConID           int64  `json:"conId"`
	PrimaryExchange string `json:"primaryExchange,omitempty"`
}

// OrderRequest places an order for a contract.
type OrderRequest struct {
	ContractRequest
	Action    string   `json:"action"`    // BUY or SELL
	Quantity  float64  `json:"quantity"`  // shares or units
	OrderType string   `json:"orderType"` // MKT, LMT, STP, STP LMT
	LmtPrice  *float64 `json:"lmtPrice,omitempty"`
	AuxPrice  *float64 `json:"auxPrice,omitempty"`
}

// CancelRequest cancels an open order.
type CancelRequest struct {
	OrderID string `json:"orderId"`
}

// HistoryRequest queries historical bars.
type HistoryRequest struct {
	ContractRequest
	DurationStr string `json:"durationStr"` // e.g. "1 D"
	BarSize     string `json:"barSize"`     // e.g. "5 mins"
	WhatToShow  string `json:"whatToShow,omitempty"`
	UseRTH      bool   `json:"useRTH,omitempty"`
	EndDateTime string `json:"endDateTime,omitempty"` // RFC 3339, empty means now
}

// HistoryResponse carries the bars and their count.
type HistoryResponse struct {
	Symbol   string       `json:"symbol"`
	BarCount int          `json:"barCount"`
	Bars     []domain.Bar `json:"bars"`
}

// SearchResponse lists matching instruments.
type SearchResponse struct {
	Query   string               `json:"query"`
	Results []domain.SymbolMatch `json:"results"`
}

// HealthResponse reports the gateway and upstream connection state.
type HealthResponse struct {
	Status      string `json:"status"`
	Provider    string `json:"provider"`
	Upstream    string `json:"upstream"`
	ActiveFeeds int    `json:"activeFeeds"`
	LastError   string `json:"lastError,omitempty"`
}

// StreamCommand is one inbound client message on /ws/stream.
type StreamCommand struct {
	Op     string `json:"op"` // subscribe or unsubscribe
	Symbol string `json:"symbol"`
}

// StreamAck confirms a stream command.
type StreamAck struct {
	Type   string `json:"type"` // subscribed or unsubscribed
	Symbol string `json:"symbol"`
}

// StreamError reports a failed stream command.
type StreamError struct {
	Type  string `json:"type"` // error
	Error string `json:"error"`
}

// OrderEventMessage wraps one order event on /ws/orders.
type OrderEventMessage struct {
	Type string             `json:"type"` // orderEvent
	Data domain.OrderUpdate `json:"data"`
}

func contractResponse(c domain.Contract) ContractResponse {
	return ContractResponse{
		Symbol:          c.Symbol,
		SecType:         c.SecType(),
		Exchange:        c.Exchange,
		Currency:        c.Currency,
		ConID:           c.ConID,
		PrimaryExchange: c.PrimaryExchange,
	}
}
