package domain

import (
	"encoding/json"
	"time"
)

// OrderbookSide identifies which outcome side of a market a book snapshot
// belongs to.
type OrderbookSide string

const (
	OrderbookSideYes OrderbookSide = "yes"
	OrderbookSideNo  OrderbookSide = "no"
)

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// Levels holds the top-N levels of one side of a book. An empty side is
// Levels{Entries: []PriceLevel{}}, never a nil/NULL value — the poller must
// never store NULL for a missing side.
type Levels struct {
	Entries []PriceLevel
}

// MarshalJSON encodes Levels in the venue's wire shape: {"levels": [[price,
// size], ...]}.
func (l Levels) MarshalJSON() ([]byte, error) {
	pairs := make([][2]float64, len(l.Entries))
	for i, e := range l.Entries {
		pairs[i] = [2]float64{e.Price, e.Size}
	}
	return json.Marshal(struct {
		Levels [][2]float64 `json:"levels"`
	}{Levels: pairs})
}

// UnmarshalJSON decodes the {"levels": [[price, size], ...]} wire shape.
func (l *Levels) UnmarshalJSON(data []byte) error {
	var wire struct {
		Levels [][2]float64 `json:"levels"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	entries := make([]PriceLevel, len(wire.Levels))
	for i, pair := range wire.Levels {
		entries[i] = PriceLevel{Price: pair[0], Size: pair[1]}
	}
	l.Entries = entries
	return nil
}

// OrderbookSnapshot is a point-in-time capture of both sides' depth for a
// token/side, as polled from the venue's book endpoint. Depth totals are
// computed at write time as sum(price*size) over the returned levels.
type OrderbookSnapshot struct {
	Ts          time.Time
	TokenID     string
	Side        OrderbookSide
	Bids        Levels
	Asks        Levels
	BidDepthUSD float64
	AskDepthUSD float64
}
