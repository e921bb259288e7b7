package upstream

import (
	"errors"
	"testing"
	"time"

	"tradegate/internal/domain"
)

func TestResolveContractEquity(t *testing.T) {
	c, err := ResolveContract(" aapl ")
	if err != nil {
		t.Fatalf("ResolveContract: %v", err)
	}
	if c.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want AAPL", c.Symbol)
	}
	if c.Class != domain.AssetEquity {
		t.Errorf("Class = %q, want equity", c.Class)
	}
	if c.Exchange != "SMART" || c.Currency != "USD" {
		t.Errorf("got exchange %q currency %q, want SMART/USD", c.Exchange, c.Currency)
	}
	if got := c.SecType(); got != "STK" {
		t.Errorf("SecType = %q, want STK", got)
	}
}

func TestResolveContractForex(t *testing.T) {
	c, err := ResolveContract("eur.usd")
	if err != nil {
		t.Fatalf("ResolveContract: %v", err)
	}
	if c.Class != domain.AssetForex {
		t.Fatalf("Class = %q, want forex", c.Class)
	}
	if c.Base != "EUR" || c.Quote != "USD" {
		t.Errorf("legs = %s/%s, want EUR/USD", c.Base, c.Quote)
	}
	if c.Exchange != "IDEALPRO" {
		t.Errorf("Exchange = %q, want IDEALPRO", c.Exchange)
	}
	if c.Currency != "USD" {
		t.Errorf("Currency = %q, want quote leg USD", c.Currency)
	}
}

func TestResolveContractRejectsMalformed(t *testing.T) {
	for _, sym := range []string{"", "  ", ".USD", "EUR.", "EUR.USD.JPY"} {
		if _, err := ResolveContract(sym); err == nil {
			t.Errorf("ResolveContract(%q): want error, got nil", sym)
		} else {
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("ResolveContract(%q): error %v is not a ValidationError", sym, err)
			}
		}
	}
}

func TestBuildContract(t *testing.T) {
	tests := []struct {
		name                            string
		symbol, secType, exchange, curr string
		wantClass                       domain.AssetClass
		wantErr                         bool
	}{
		{name: "default stk", symbol: "MSFT", wantClass: domain.AssetEquity},
		{name: "explicit exchange", symbol: "MSFT", secType: "STK", exchange: "NYSE", curr: "USD", wantClass: domain.AssetEquity},
		{name: "compact forex", symbol: "EURUSD", secType: "CASH", wantClass: domain.AssetForex},
		{name: "dotted forex", symbol: "GBP.JPY", secType: "FX", wantClass: domain.AssetForex},
		{name: "future", symbol: "ES", secType: "FUT", exchange: "CME", wantClass: domain.AssetFuture},
		{name: "option", symbol: "SPY", secType: "OPT", wantClass: domain.AssetOption},
		{name: "empty symbol", symbol: "", wantErr: true},
		{name: "bad sectype", symbol: "AAPL", secType: "BOND", wantErr: true},
		{name: "equity as forex", symbol: "AAPL", secType: "FX", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := BuildContract(tt.symbol, tt.secType, tt.exchange, tt.curr)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("want error, got contract %+v", c)
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildContract: %v", err)
			}
			if c.Class != tt.wantClass {
				t.Errorf("Class = %q, want %q", c.Class, tt.wantClass)
			}
		})
	}
}

func TestBuildContractExchangeOverride(t *testing.T) {
	c, err := BuildContract("ibm", "STK", "NYSE", "USD")
	if err != nil {
		t.Fatalf("BuildContract: %v", err)
	}
	if c.Exchange != "NYSE" {
		t.Errorf("Exchange = %q, want NYSE", c.Exchange)
	}
}

func TestParseHistoryDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "3600 S", want: time.Hour},
		{in: "1 D", want: 24 * time.Hour},
		{in: "2 W", want: 14 * 24 * time.Hour},
		{in: "1 M", want: 30 * 24 * time.Hour},
		{in: "1 Y", want: 365 * 24 * time.Hour},
		{in: "1 d", want: 24 * time.Hour},
		{in: "0 D", wantErr: true},
		{in: "-1 D", wantErr: true},
		{in: "1 X", wantErr: true},
		{in: "oneday", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseHistoryDuration(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseHistoryDuration(%q): want error, got %v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHistoryDuration(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseHistoryDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseBarSize(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "30 secs", want: 30 * time.Second},
		{in: "1 min", want: time.Minute},
		{in: "5 mins", want: 5 * time.Minute},
		{in: "1 hour", want: time.Hour},
		{in: "1 day", want: 24 * time.Hour},
		{in: "1 week", want: 7 * 24 * time.Hour},
		{in: "1 month", want: 30 * 24 * time.Hour},
		{in: "five mins", wantErr: true},
		{in: "5", wantErr: true},
		{in: "5 lightyears", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseBarSize(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseBarSize(%q): want error, got %v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseBarSize(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBarSize(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeSymbol(t *testing.T) {
	if got := NormalizeSymbol("  tsla "); got != "TSLA" {
		t.Errorf("NormalizeSymbol = %q, want TSLA", got)
	}
}
