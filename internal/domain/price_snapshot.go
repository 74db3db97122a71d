package domain

import "time"

// PriceSnapshot is an append-only time-series point for a token's price,
// written in bulk by the price-snapshot poller. Venue fields beyond price
// itself are optional since not every discovery payload carries them.
type PriceSnapshot struct {
	Ts             time.Time
	TokenID        string
	Price          float64
	Volume24h      *float64
	Liquidity      *float64
	Spread         *float64
	LastTradePrice *float64
}
