package domain

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestFloatNormalization(t *testing.T) {
	if got := Float(math.NaN()); got != nil {
		t.Errorf("Float(NaN) = %v, want nil", *got)
	}
	if got := Float(math.Inf(1)); got != nil {
		t.Errorf("Float(+Inf) = %v, want nil", *got)
	}
	if got := Float(101.25); got == nil || *got != 101.25 {
		t.Errorf("Float(101.25) = %v, want 101.25", got)
	}
	if got := Float(0); got == nil || *got != 0 {
		t.Errorf("Float(0) = %v, want explicit 0, not nil", got)
	}
}

func TestUnixTime(t *testing.T) {
	if got := UnixTime(time.Time{}); got != nil {
		t.Errorf("UnixTime(zero) = %v, want nil", *got)
	}
	ts := time.Date(2024, 3, 1, 14, 30, 0, 500_000_000, time.UTC)
	got := UnixTime(ts)
	if got == nil {
		t.Fatal("UnixTime returned nil for non-zero time")
	}
	want := float64(ts.UnixNano()) / 1e9
	if *got != want {
		t.Errorf("UnixTime = %f, want %f", *got, want)
	}
}

func TestTickSnapshotWirePayload(t *testing.T) {
	// Absent fields must serialize as explicit nulls, never NaN or zero.
	snap := TickSnapshot{Symbol: "AAPL", Last: Float(190.5), Bid: Float(math.NaN())}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if strings.Contains(s, "NaN") {
		t.Errorf("payload contains NaN: %s", s)
	}
	if !strings.Contains(s, `"bid":null`) {
		t.Errorf("absent bid should be null: %s", s)
	}
	if !strings.Contains(s, `"ask":null`) {
		t.Errorf("absent ask should be null: %s", s)
	}
	if !strings.Contains(s, `"last":190.5`) {
		t.Errorf("present last missing: %s", s)
	}
}

func TestOrderTicketValidate(t *testing.T) {
	price := 100.0

	cases := []struct {
		name    string
		ticket  OrderTicket
		wantErr bool
	}{
		{"market ok", OrderTicket{Side: OrderSideBuy, Quantity: 10, Type: OrderTypeMarket}, false},
		{"limit ok", OrderTicket{Side: OrderSideSell, Quantity: 5, Type: OrderTypeLimit, LimitPrice: &price}, false},
		{"limit missing price", OrderTicket{Side: OrderSideBuy, Quantity: 5, Type: OrderTypeLimit}, true},
		{"stop missing price", OrderTicket{Side: OrderSideBuy, Quantity: 5, Type: OrderTypeStop}, true},
		{"stop limit missing one", OrderTicket{Side: OrderSideBuy, Quantity: 5, Type: OrderTypeStopLimit, LimitPrice: &price}, true},
		{"stop limit ok", OrderTicket{Side: OrderSideBuy, Quantity: 5, Type: OrderTypeStopLimit, LimitPrice: &price, StopPrice: &price}, false},
		{"zero quantity", OrderTicket{Side: OrderSideBuy, Quantity: 0, Type: OrderTypeMarket}, true},
		{"bad side", OrderTicket{Side: "hold", Quantity: 1, Type: OrderTypeMarket}, true},
		{"bad type", OrderTicket{Side: OrderSideBuy, Quantity: 1, Type: "trailing"}, true},
	}

	for _, tc := range cases {
		err := tc.ticket.Validate()
		if tc.wantErr && err == nil {
			t.Errorf("%s: Validate() = nil, want error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: Validate() = %v, want nil", tc.name, err)
		}
		if tc.wantErr && err != nil {
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("%s: error type %T, want *ValidationError", tc.name, err)
			}
		}
	}
}

func TestContractSecType(t *testing.T) {
	if got := (Contract{Class: AssetEquity}).SecType(); got != "STK" {
		t.Errorf("equity SecType = %q, want STK", got)
	}
	if got := (Contract{Class: AssetForex}).SecType(); got != "FX" {
		t.Errorf("forex SecType = %q, want FX", got)
	}
	if got := (Contract{Class: AssetFuture}).SecType(); got != "FUT" {
		t.Errorf("future SecType = %q, want FUT", got)
	}
	if got := (Contract{Class: AssetOption}).SecType(); got != "OPT" {
		t.Errorf("option SecType = %q, want OPT", got)
	}
}

func TestUpstreamErrorUnwrap(t *testing.T) {
	inner := errors.New("timeout")
	err := &UpstreamError{Op: "history", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("UpstreamError should unwrap to inner error")
	}
	if !strings.Contains(err.Error(), "history") {
		t.Errorf("UpstreamError.Error() = %q, want op name included", err.Error())
	}
}
