package upstream

import (
	"fmt"
	"strings"
	"time"

	"tradegate/internal/domain"
)

// NormalizeSymbol canonicalizes a client-supplied symbol for registry and
// cache keys.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ResolveContract derives a Contract from a symbol string. A separator dot
// selects forex ("EUR.USD" → base EUR, quote USD); anything else is an
// equity routed through SMART in USD. Pure function, no I/O.
func ResolveContract(symbol string) (domain.Contract, error) {
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return domain.Contract{}, &domain.ValidationError{Msg: "symbol required"}
	}

	if i := strings.Index(sym, "."); i >= 0 {
		base, quote := sym[:i], sym[i+1:]
		if base == "" || quote == "" || strings.Contains(quote, ".") {
			return domain.Contract{}, &domain.ValidationError{Msg: fmt.Sprintf("malformed forex symbol %q", sym)}
		}
		return domain.Contract{
			Symbol:   base + "." + quote,
			Class:    domain.AssetForex,
			Exchange: "IDEALPRO",
			Currency: quote,
			Base:     base,
			Quote:    quote,
		}, nil
	}

	return domain.Contract{
		Symbol:          sym,
		Class:           domain.AssetEquity,
		Exchange:        "SMART",
		Currency:        "USD",
		PrimaryExchange: "NASDAQ",
	}, nil
}

// BuildContract constructs a Contract from explicit wire parameters, as used
// by the qualify/snapshot/order endpoints. Empty exchange and currency take
// the usual defaults.
func BuildContract(symbol, secType, exchange, currency string) (domain.Contract, error) {
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return domain.Contract{}, &domain.ValidationError{Msg: "symbol required"}
	}
	if exchange == "" {
		exchange = "SMART"
	}
	if currency == "" {
		currency = "USD"
	}

	switch strings.ToUpper(strings.TrimSpace(secType)) {
	case "", "STK":
		c, err := ResolveContract(sym)
		if err != nil {
			return domain.Contract{}, err
		}
		if c.Class != domain.AssetForex {
			c.Exchange = exchange
			c.Currency = currency
		}
		return c, nil
	case "FX", "CASH":
		// Accept both "EUR.USD" and the compact "EURUSD" form.
		if !strings.Contains(sym, ".") && len(sym) == 6 {
			sym = sym[:3] + "." + sym[3:]
		}
		c, err := ResolveContract(sym)
		if err != nil {
			return domain.Contract{}, err
		}
		if c.Class != domain.AssetForex {
			return domain.Contract{}, &domain.ValidationError{Msg: fmt.Sprintf("malformed forex symbol %q", symbol)}
		}
		return c, nil
	case "FUT":
		return domain.Contract{Symbol: sym, Class: domain.AssetFuture, Exchange: exchange, Currency: currency}, nil
	case "OPT":
		return domain.Contract{Symbol: sym, Class: domain.AssetOption, Exchange: exchange, Currency: currency}, nil
	default:
		return domain.Contract{}, &domain.ValidationError{Msg: fmt.Sprintf("unsupported secType: %s", secType)}
	}
}

// ---------------------------------------------------------------------------
// History parameter parsing
// ---------------------------------------------------------------------------

// ParseHistoryDuration converts an upstream duration string ("1 D", "2 W",
// "3600 S") into a time.Duration.
func ParseHistoryDuration(s string) (time.Duration, error) {
	var n int
	var unit string
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d %s", &n, &unit); err != nil {
		return 0, &domain.ValidationError{Msg: fmt.Sprintf("malformed duration %q", s)}
	}
	if n <= 0 {
		return 0, &domain.ValidationError{Msg: fmt.Sprintf("duration must be positive: %q", s)}
	}
	switch strings.ToUpper(unit) {
	case "S":
		return time.Duration(n) * time.Second, nil
	case "D":
		return time.Duration(n) * 24 * time.Hour, nil
	case "W":
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	case "M":
		return time.Duration(n) * 30 * 24 * time.Hour, nil
	case "Y":
		return time.Duration(n) * 365 * 24 * time.Hour, nil
	default:
		return 0, &domain.ValidationError{Msg: fmt.Sprintf("unknown duration unit %q", unit)}
	}
}

// ParseBarSize converts a bar size string ("5 mins", "1 hour", "1 day") into
// a time.Duration.
func ParseBarSize(s string) (time.Duration, error) {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) != 2 {
		return 0, &domain.ValidationError{Msg: fmt.Sprintf("malformed bar size %q", s)}
	}
	var n int
	if _, err := fmt.Sscanf(fields[0], "%d", &n); err != nil || n <= 0 {
		return 0, &domain.ValidationError{Msg: fmt.Sprintf("malformed bar size %q", s)}
	}
	switch strings.TrimSuffix(fields[1], "s") {
	case "sec":
		return time.Duration(n) * time.Second, nil
	case "min":
		return time.Duration(n) * time.Minute, nil
	case "hour":
		return time.Duration(n) * time.Hour, nil
	case "day":
		return time.Duration(n) * 24 * time.Hour, nil
	case "week":
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	case "month":
		return time.Duration(n) * 30 * 24 * time.Hour, nil
	default:
		return 0, &domain.ValidationError{Msg: fmt.Sprintf("unknown bar size unit %q", fields[1])}
	}
}
