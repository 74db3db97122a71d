package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/pmacquire/daemon/internal/domain"
)

// ActiveMarketLister is the subset of query.MarketStore the price poller
// needs to scope its snapshots to markets the daemon already considers
// live, per the index-backed "read active markets from DB" step.
type ActiveMarketLister interface {
	GetActiveMarkets(ctx context.Context) ([]domain.Market, error)
}

// PriceSnapshotInserter is the subset of query.PriceSnapshotStore the
// poller needs.
type PriceSnapshotInserter interface {
	InsertPriceSnapshots(ctx context.Context, snapshots []domain.PriceSnapshot) error
}

// PricePoller produces a PriceSnapshot for every clob token of every active
// market. Polymarket bundles the current price with the discovery payload
// (there is no separate price-only endpoint), so each cycle re-lists
// active markets from the venue and cross-references the DB's active set
// to drop tokens for markets the daemon has already marked closed.
type PricePoller struct {
	lister      MarketLister
	activeStore ActiveMarketLister
	priceStore  PriceSnapshotInserter
	logger      *slog.Logger
}

// NewPricePoller constructs a PricePoller.
func NewPricePoller(lister MarketLister, activeStore ActiveMarketLister, priceStore PriceSnapshotInserter, logger *slog.Logger) *PricePoller {
	if logger == nil {
		logger = slog.Default()
	}
	return &PricePoller{lister: lister, activeStore: activeStore, priceStore: priceStore, logger: logger}
}

func (p *PricePoller) Name() string { return "price_snapshot" }

// CollectOnce lists active markets from the DB to build the set of tokens
// currently in scope, lists active markets fresh from the venue to get
// bundled prices, and bulk-inserts one PriceSnapshot per in-scope token.
func (p *PricePoller) CollectOnce(ctx context.Context) int {
	active, err := p.activeStore.GetActiveMarkets(ctx)
	if err != nil {
		p.logger.Error("price poller: get active markets failed", slog.String("error", err.Error()))
		return 0
	}
	if len(active) == 0 {
		return 0
	}

	inScope := make(map[string]struct{}, len(active)*2)
	for _, m := range active {
		for _, tok := range m.ClobTokenIDs {
			inScope[tok] = struct{}{}
		}
	}

	raws, err := p.lister.ListActiveMarkets(ctx)
	if err != nil {
		p.logger.Error("price poller: list active markets failed", slog.String("error", err.Error()))
		return 0
	}

	now := time.Now().UTC()
	var snaps []domain.PriceSnapshot
	for i := range raws {
		for _, s := range raws[i].ToPriceSnapshots(now) {
			if _, ok := inScope[s.TokenID]; !ok {
				continue
			}
			snaps = append(snaps, s)
		}
	}

	if len(snaps) == 0 {
		return 0
	}

	if err := p.priceStore.InsertPriceSnapshots(ctx, snaps); err != nil {
		p.logger.Error("price poller: insert failed",
			slog.Int("attempted", len(snaps)), slog.String("error", err.Error()))
		return 0
	}

	p.logger.Info("price poller: cycle complete", slog.Int("inserted", len(snaps)))
	return len(snaps)
}
