// Package polymarket is the venue client: the sole place in the daemon that
// deals with the venue's wire quirks (stringified-JSON array fields,
// camelCase field names, numeric values sent as strings). Everything it
// returns to callers is a strongly-typed Raw* record; collectors never see
// raw JSON.
package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pmacquire/daemon/internal/domain"
)

// flexBool unmarshals from a JSON bool or a string ("true"/"false"), since
// the Gamma API sends "active" as either depending on endpoint.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// decodeFlexStringArray accepts either a native JSON array of strings or a
// JSON string containing an encoded JSON array, per the market-discovery
// wire quirk. A null or empty field decodes to nil.
func decodeFlexStringArray(data json.RawMessage) ([]string, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var native []string
	if err := json.Unmarshal(data, &native); err == nil {
		return native, nil
	}
	var wrapped string
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("not a string array or encoded string: %w", err)
	}
	if err := json.Unmarshal([]byte(wrapped), &native); err != nil {
		return nil, fmt.Errorf("decode wrapped array: %w", err)
	}
	return native, nil
}

// flexFloat accepts a JSON number or a JSON string containing one.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// defaultTickSize matches the venue's standard binary-market price
// increment, used whenever a market payload omits orderPriceMinTickSize.
const defaultTickSize = 0.01

// --------------------------------------------------------------------------
// RawMarket: Gamma market-discovery DTO
// --------------------------------------------------------------------------

// RawMarket is a market as returned by the venue's discovery endpoint, after
// the stringified-array and camelCase quirks have been normalised away.
type RawMarket struct {
	ID              string
	ConditionID     string
	Question        string
	Slug            string
	Active          bool
	Closed          bool
	AcceptingOrders bool
	NegRisk         bool
	Outcomes        []string
	OutcomePrices   []string
	ClobTokenIDs    []string
	Volume          float64
	Liquidity       float64
	TickSize        float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	EndDate         *time.Time
}

// rawMarketWire mirrors the Gamma API's actual camelCase JSON shape. Array
// fields are decoded as json.RawMessage so UnmarshalJSON can try both the
// native-array and string-wrapped-array forms.
type rawMarketWire struct {
	ID              string          `json:"id"`
	ConditionID     string          `json:"conditionId"`
	Question        string          `json:"question"`
	Slug            string          `json:"slug"`
	Active          flexBool        `json:"active"`
	Closed          bool            `json:"closed"`
	AcceptingOrders flexBool        `json:"acceptingOrders"`
	NegRisk         bool            `json:"negRisk"`
	Outcomes        json.RawMessage `json:"outcomes"`
	OutcomePrices   json.RawMessage `json:"outcomePrices"`
	ClobTokenIDs    json.RawMessage `json:"clobTokenIds"`
	Volume          flexFloat       `json:"volume"`
	Liquidity       flexFloat       `json:"liquidity"`
	TickSize        flexFloat       `json:"orderPriceMinTickSize"`
	CreatedAt       string          `json:"createdAt"`
	UpdatedAt       string          `json:"updatedAt"`
	EndDate         string          `json:"endDate"`
}

// UnmarshalJSON decodes a single Gamma market record, normalising its
// camelCase fields and stringified-array quirks. A malformed array field
// does not fail the whole record; it simply decodes to nil, matching the
// "skip malformed, never raise" rule this venue's payloads demand.
func (m *RawMarket) UnmarshalJSON(data []byte) error {
	var w rawMarketWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("polymarket: decode raw market: %w", err)
	}
	if w.ID == "" || w.ConditionID == "" {
		return fmt.Errorf("polymarket: raw market missing id/conditionId")
	}

	outcomes, _ := decodeFlexStringArray(w.Outcomes)
	prices, _ := decodeFlexStringArray(w.OutcomePrices)
	tokenIDs, _ := decodeFlexStringArray(w.ClobTokenIDs)

	*m = RawMarket{
		ID:              w.ID,
		ConditionID:     w.ConditionID,
		Question:        w.Question,
		Slug:            w.Slug,
		Active:          bool(w.Active),
		Closed:          w.Closed,
		AcceptingOrders: bool(w.AcceptingOrders),
		NegRisk:         w.NegRisk,
		Outcomes:        outcomes,
		OutcomePrices:   prices,
		ClobTokenIDs:    tokenIDs,
		Volume:          float64(w.Volume),
		Liquidity:       float64(w.Liquidity),
		TickSize:        float64(w.TickSize),
	}
	if t, err := time.Parse(time.RFC3339, w.CreatedAt); err == nil {
		m.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, w.UpdatedAt); err == nil {
		m.UpdatedAt = t
	}
	if w.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, w.EndDate); err == nil {
			m.EndDate = &t
		}
	}
	return nil
}

// ToDomainMarket converts a RawMarket into a domain.Market, ready for
// UpsertMarket. Slug/Volume/Liquidity are only set when the venue supplied
// a non-empty value; when left nil, UpsertMarket writes NULL for them,
// replacing any value already stored.
func (r *RawMarket) ToDomainMarket() domain.Market {
	tickSize := r.TickSize
	if tickSize <= 0 {
		tickSize = defaultTickSize
	}
	dm := domain.Market{
		MarketID:        r.ID,
		ConditionID:     r.ConditionID,
		Question:        r.Question,
		Outcomes:        r.Outcomes,
		ClobTokenIDs:    r.ClobTokenIDs,
		NegRisk:         r.NegRisk,
		TickSize:        tickSize,
		Active:          r.Active,
		Closed:          r.Closed,
		AcceptingOrders: r.AcceptingOrders,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.Slug != "" {
		dm.Slug = &r.Slug
	}
	if r.Volume > 0 {
		dm.VolumeTotal = &r.Volume
	}
	if r.Liquidity > 0 {
		dm.Liquidity = &r.Liquidity
	}
	return dm
}

// InferWinner implements the venue's final-prices resolution rule: the
// outcome whose parsed price equals exactly 1.0 is the winner. Any parse
// error, missing field, or ambiguity (no 1.0 or more than one) returns
// ok=false rather than a wrong guess.
func (r *RawMarket) InferWinner() (res domain.Resolution, ok bool) {
	if len(r.OutcomePrices) == 0 || len(r.Outcomes) != len(r.OutcomePrices) || len(r.ClobTokenIDs) != len(r.OutcomePrices) {
		return domain.Resolution{}, false
	}

	winnerIdx := -1
	for i, raw := range r.OutcomePrices {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Resolution{}, false
		}
		if p == 1.0 {
			if winnerIdx != -1 {
				return domain.Resolution{}, false // ambiguous: more than one 1.0
			}
			winnerIdx = i
		}
	}
	if winnerIdx == -1 {
		return domain.Resolution{}, false
	}

	outcome := r.Outcomes[winnerIdx]
	tokenID := r.ClobTokenIDs[winnerIdx]
	payout := 1.0
	return domain.Resolution{
		ConditionID:     r.ConditionID,
		Outcome:         &outcome,
		WinnerTokenID:   &tokenID,
		ResolvedAt:      time.Now().UTC(),
		PayoutPrice:     &payout,
		DetectionMethod: domain.DetectionFinalPrices,
	}, true
}

// ToPriceSnapshots produces one PriceSnapshot per clob token, using the
// discovery payload's bundled outcome price as the current price. Tokens
// without a matching price entry are skipped (malformed, never raised).
func (r *RawMarket) ToPriceSnapshots(ts time.Time) []domain.PriceSnapshot {
	if len(r.ClobTokenIDs) == 0 || len(r.ClobTokenIDs) != len(r.OutcomePrices) {
		return nil
	}
	out := make([]domain.PriceSnapshot, 0, len(r.ClobTokenIDs))
	for i, tokenID := range r.ClobTokenIDs {
		price, err := strconv.ParseFloat(r.OutcomePrices[i], 64)
		if err != nil {
			continue
		}
		snap := domain.PriceSnapshot{
			Ts:      ts,
			TokenID: tokenID,
			Price:   price,
		}
		if r.Volume > 0 {
			v := r.Volume
			snap.Volume24h = &v
		}
		if r.Liquidity > 0 {
			l := r.Liquidity
			snap.Liquidity = &l
		}
		out = append(out, snap)
	}
	return out
}

// --------------------------------------------------------------------------
// RawOrderbook: book-endpoint DTO
// --------------------------------------------------------------------------

// RawLevel is a single bid/ask entry as the venue sends it: both fields
// arrive as strings.
type RawLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// RawOrderbook is a single side-of-book snapshot as returned by the venue's
// batched book endpoint.
type RawOrderbook struct {
	TokenID string     `json:"asset_id"`
	Bids    []RawLevel `json:"bids"`
	Asks    []RawLevel `json:"asks"`
}

// toLevels parses up to depth price/size pairs, skipping unparseable ones.
func toLevels(raw []RawLevel, depth int) domain.Levels {
	entries := make([]domain.PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		if depth > 0 && len(entries) >= depth {
			break
		}
		p, errP := strconv.ParseFloat(lvl.Price, 64)
		s, errS := strconv.ParseFloat(lvl.Size, 64)
		if errP != nil || errS != nil {
			continue
		}
		entries = append(entries, domain.PriceLevel{Price: p, Size: s})
	}
	return domain.Levels{Entries: entries}
}

func depthUSD(levels domain.Levels) float64 {
	var total float64
	for _, e := range levels.Entries {
		total += e.Price * e.Size
	}
	return total
}

// ToDomainSnapshot converts a RawOrderbook into a domain.OrderbookSnapshot
// for the given side, truncating to the top depth levels per side and
// computing USD depth over exactly the levels stored.
func (r *RawOrderbook) ToDomainSnapshot(side domain.OrderbookSide, depth int, ts time.Time) domain.OrderbookSnapshot {
	bids := toLevels(r.Bids, depth)
	asks := toLevels(r.Asks, depth)
	return domain.OrderbookSnapshot{
		Ts:          ts,
		TokenID:     r.TokenID,
		Side:        side,
		Bids:        bids,
		Asks:        asks,
		BidDepthUSD: depthUSD(bids),
		AskDepthUSD: depthUSD(asks),
	}
}

// --------------------------------------------------------------------------
// TradeEvent: WebSocket trade-stream DTO
// --------------------------------------------------------------------------

// wsTradeEvent mirrors the WebSocket feed's single trade record: numeric
// fields and the timestamp arrive as strings.
type wsTradeEvent struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Timestamp string `json:"timestamp"`
}

// TradeEvent is a single trade as parsed off the WebSocket feed. The feed
// never supplies a trade id.
type TradeEvent struct {
	Ts      time.Time
	TokenID string
	Price   float64
	Size    float64
	Side    domain.TradeSide
}

// ToDomainTrade converts a TradeEvent into a domain.Trade. TradeID is
// always nil: the venue's WebSocket feed does not carry one.
func (e *TradeEvent) ToDomainTrade() domain.Trade {
	return domain.Trade{
		Ts:      e.Ts,
		TokenID: e.TokenID,
		Price:   e.Price,
		Size:    e.Size,
		Side:    e.Side,
	}
}

// parseTradeEvents decodes a raw WebSocket frame into zero or more
// TradeEvents. A frame may carry either a single JSON object or an array of
// them; malformed entries are skipped rather than failing the whole frame.
func parseTradeEvents(raw []byte) []TradeEvent {
	var wire []wsTradeEvent
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil
		}
	} else {
		var single wsTradeEvent
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil
		}
		wire = []wsTradeEvent{single}
	}

	out := make([]TradeEvent, 0, len(wire))
	for _, w := range wire {
		if w.EventType != "" && w.EventType != "last_trade_price" && w.EventType != "trade" {
			continue
		}
		evt, ok := w.toTradeEvent()
		if !ok {
			continue
		}
		out = append(out, evt)
	}
	return out
}

func (w *wsTradeEvent) toTradeEvent() (TradeEvent, bool) {
	if w.AssetID == "" {
		return TradeEvent{}, false
	}
	ms, err := strconv.ParseInt(w.Timestamp, 10, 64)
	if err != nil {
		return TradeEvent{}, false
	}
	price, err := strconv.ParseFloat(w.Price, 64)
	if err != nil {
		return TradeEvent{}, false
	}
	size, err := strconv.ParseFloat(w.Size, 64)
	if err != nil {
		return TradeEvent{}, false
	}
	var side domain.TradeSide
	switch strings.ToUpper(w.Side) {
	case "BUY":
		side = domain.TradeSideBuy
	case "SELL":
		side = domain.TradeSideSell
	default:
		return TradeEvent{}, false
	}
	return TradeEvent{
		Ts:      time.UnixMilli(ms).UTC(),
		TokenID: w.AssetID,
		Price:   price,
		Size:    size,
		Side:    side,
	}, true
}
