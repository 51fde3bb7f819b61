package model

import "context"

// ── Port Interfaces ──
// These interfaces decouple the signal pipeline from concrete sinks
// (Redis, notifiers) and from the quote cache implementation.

// QuoteReader is the read side of the quote cache.
type QuoteReader interface {
	// Quote returns the latest quote for a local symbol.
	Quote(symbol string) (Quote, bool)

	// History returns the recent price samples for a symbol, oldest first.
	History(symbol string) []PriceSample

	// Symbols lists every local symbol that currently has a quote.
	Symbols() []string
}

// SignalSink receives the ranked output of an analysis pass.
type SignalSink interface {
	// PublishSignals delivers signals ranked best first. May be empty.
	PublishSignals(ctx context.Context, signals []TradingSignal) error
}

// QuotePublisher mirrors quotes to an external consumer.
type QuotePublisher interface {
	// PublishQuote delivers one quote update.
	PublishQuote(ctx context.Context, q Quote) error

	// Close releases underlying resources.
	Close() error
}
