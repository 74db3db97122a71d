package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/pmacquire/daemon/internal/domain"
	"github.com/pmacquire/daemon/internal/polymarket"
)

// OrderbookFetcher is the subset of polymarket.GammaClient the poller needs.
type OrderbookFetcher interface {
	GetOrderbooks(ctx context.Context, tokenIDs []string, depth int) ([]polymarket.RawOrderbook, error)
}

// OrderbookSnapshotInserter is the subset of query.OrderbookSnapshotStore
// the poller needs.
type OrderbookSnapshotInserter interface {
	InsertOrderbookSnapshots(ctx context.Context, snapshots []domain.OrderbookSnapshot) error
}

// OrderbookPoller snapshots top-of-book depth for every active market's
// tokens, batched through the venue's book endpoint.
type OrderbookPoller struct {
	activeStore ActiveMarketLister
	fetcher     OrderbookFetcher
	store       OrderbookSnapshotInserter
	depth       int
	logger      *slog.Logger
}

// NewOrderbookPoller constructs an OrderbookPoller. depth is the top-N
// levels kept per side.
func NewOrderbookPoller(activeStore ActiveMarketLister, fetcher OrderbookFetcher, store OrderbookSnapshotInserter, depth int, logger *slog.Logger) *OrderbookPoller {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderbookPoller{activeStore: activeStore, fetcher: fetcher, store: store, depth: depth, logger: logger}
}

func (p *OrderbookPoller) Name() string { return "orderbook_snapshot" }

// CollectOnce reads the active token set from the DB, fetches a batched
// book read from the venue, and inserts one snapshot per token. A token's
// side (yes/no) is derived from its position in its market's
// clob_token_ids: index 0 is the "yes" side, every other index is "no" —
// Polymarket's binary markets are always ordered [Yes, No], and this
// daemon's Levels model only tracks two sides per token.
func (p *OrderbookPoller) CollectOnce(ctx context.Context) int {
	markets, err := p.activeStore.GetActiveMarkets(ctx)
	if err != nil {
		p.logger.Error("orderbook poller: get active markets failed", slog.String("error", err.Error()))
		return 0
	}

	sideOf := make(map[string]domain.OrderbookSide)
	var tokenIDs []string
	for _, m := range markets {
		for i, tok := range m.ClobTokenIDs {
			if i == 0 {
				sideOf[tok] = domain.OrderbookSideYes
			} else {
				sideOf[tok] = domain.OrderbookSideNo
			}
			tokenIDs = append(tokenIDs, tok)
		}
	}
	if len(tokenIDs) == 0 {
		return 0
	}

	books, err := p.fetcher.GetOrderbooks(ctx, tokenIDs, p.depth)
	if err != nil {
		p.logger.Error("orderbook poller: get orderbooks failed", slog.String("error", err.Error()))
		return 0
	}

	now := time.Now().UTC()
	snaps := make([]domain.OrderbookSnapshot, 0, len(books))
	for i := range books {
		side, ok := sideOf[books[i].TokenID]
		if !ok {
			continue // venue returned a token we didn't ask about
		}
		snaps = append(snaps, books[i].ToDomainSnapshot(side, p.depth, now))
	}

	if len(snaps) == 0 {
		return 0
	}

	if err := p.store.InsertOrderbookSnapshots(ctx, snaps); err != nil {
		p.logger.Error("orderbook poller: insert failed",
			slog.Int("attempted", len(snaps)), slog.String("error", err.Error()))
		return 0
	}

	p.logger.Info("orderbook poller: cycle complete", slog.Int("inserted", len(snaps)))
	return len(snaps)
}
