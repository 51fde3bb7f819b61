package markethours

import (
	"strings"
	"time"
)

// ClosedSuffix marks the local symbol used while the underlying market is
// closed (the over-the-counter variant).
const ClosedSuffix = "-OTC"

// Assets that trade around the clock. A pair containing one of these is
// never aliased.
var alwaysOpenCodes = map[string]bool{
	"BTC": true, "ETH": true, "LTC": true, "XRP": true, "SOL": true,
	"DOGE": true, "BNB": true, "ADA": true, "DOT": true, "USDT": true,
}

// Normalize upper-cases a provider symbol and strips separators:
// "eur/usd" becomes "EURUSD".
func Normalize(providerSymbol string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '-', '_', ' ', ':':
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(providerSymbol)))
}

// AlwaysOpen reports whether the instrument trades 24/7.
func AlwaysOpen(providerSymbol string) bool {
	s := strings.ToUpper(strings.TrimSpace(providerSymbol))
	if base, quote, ok := strings.Cut(s, "/"); ok {
		return alwaysOpenCodes[base] || alwaysOpenCodes[quote]
	}
	s = Normalize(s)
	for code := range alwaysOpenCodes {
		if strings.HasPrefix(s, code) || strings.HasSuffix(s, code) {
			return true
		}
	}
	return false
}

// LocalSymbol maps a provider symbol to the local symbol in effect at now.
// While the forex market is closed, non-24/7 instruments get ClosedSuffix.
func LocalSymbol(providerSymbol string, now time.Time) string {
	local := Normalize(providerSymbol)
	if local == "" || AlwaysOpen(providerSymbol) || IsMarketOpen(now) {
		return local
	}
	return local + ClosedSuffix
}

// BaseSymbol strips ClosedSuffix from a local symbol.
func BaseSymbol(local string) string {
	return strings.TrimSuffix(local, ClosedSuffix)
}
