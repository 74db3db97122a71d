package domain

import "time"

// TradeSide is the taker side of a trade as reported by the venue.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// Trade represents a single executed trade on a token, as streamed from the
// venue's WebSocket trade feed. TradeID is nil for every trade that arrives
// over the WebSocket (the feed does not carry one); it is only populated for
// trades ingested through some future backfill path that does supply one.
type Trade struct {
	Ts      time.Time
	TokenID string
	Price   float64
	Size    float64
	Side    TradeSide
	TradeID *string
}
