package domain

import (
	"context"
	"time"
)

// MarketStore persists market metadata and the resolutions inferred for it.
type MarketStore interface {
	UpsertMarket(ctx context.Context, market Market) error
	UpsertMarkets(ctx context.Context, markets []Market) error
	GetMarket(ctx context.Context, marketID string) (Market, error)
	GetActiveMarkets(ctx context.Context) ([]Market, error)
	GetMarketsByIDs(ctx context.Context, marketIDs []string) ([]Market, error)
}

// ResolutionStore persists resolution records, one per condition.
type ResolutionStore interface {
	UpsertResolution(ctx context.Context, r Resolution) error
	GetResolution(ctx context.Context, conditionID string) (Resolution, error)
	// GetUnresolvedClosedMarkets returns condition_ids of markets that are
	// closed but have no corresponding resolution row yet.
	GetUnresolvedClosedMarkets(ctx context.Context) ([]string, error)
}

// PriceSnapshotStore persists the append-only price time-series.
type PriceSnapshotStore interface {
	// InsertPriceSnapshots bulk-inserts via the driver's COPY protocol. An
	// empty list is a fast no-op.
	InsertPriceSnapshots(ctx context.Context, snapshots []PriceSnapshot) error
	GetLatestPrices(ctx context.Context, tokenIDs []string) ([]PriceSnapshot, error)
	GetPriceHistory(ctx context.Context, tokenID string, start, end time.Time, limit int) ([]PriceSnapshot, error)
	GetPriceCount(ctx context.Context) (int64, error)
}

// OrderbookSnapshotStore persists the append-only orderbook time-series.
type OrderbookSnapshotStore interface {
	InsertOrderbookSnapshots(ctx context.Context, snapshots []OrderbookSnapshot) error
	GetLatestOrderbook(ctx context.Context, tokenID string, side OrderbookSide) (OrderbookSnapshot, error)
	GetOrderbookHistory(ctx context.Context, tokenID string, side OrderbookSide, start, end time.Time, limit int) ([]OrderbookSnapshot, error)
}

// TradeStore persists the append-only trade stream.
type TradeStore interface {
	// InsertTrades attempts COPY first; on unique violation it falls back
	// to a parameterised batch insert with ON CONFLICT DO NOTHING.
	InsertTrades(ctx context.Context, trades []Trade) error
	GetRecentTrades(ctx context.Context, tokenID *string, limit int) ([]Trade, error)
	GetTradeCount(ctx context.Context, tokenID *string) (int64, error)
}
