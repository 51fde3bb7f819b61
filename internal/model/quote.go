package model

import (
	"encoding/json"
	"time"
)

// Quote is the latest known price for a local symbol. A new tick for the
// same symbol replaces it wholesale.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Bid           float64 `json:"bid"`
	Ask           float64 `json:"ask"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	TimestampMs   int64   `json:"timestampMs"`
}

// Time returns the quote timestamp as a time.Time (UTC).
func (q *Quote) Time() time.Time {
	return time.UnixMilli(q.TimestampMs).UTC()
}

// JSON returns the JSON-encoded quote (ignoring errors for hot-path usage).
func (q *Quote) JSON() []byte {
	b, _ := json.Marshal(q)
	return b
}

// ProviderTick is one decoded price record from the upstream provider,
// before symbol aliasing. Bid and Ask are zero when the provider omitted them.
type ProviderTick struct {
	Symbol       string
	Price        float64
	Bid          float64
	Ask          float64
	EpochSeconds int64
}

// PriceSample is one entry of a symbol's recent price history.
type PriceSample struct {
	Price       float64
	TimestampMs int64
}
