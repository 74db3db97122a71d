package collector

import (
	"context"
	"log/slog"

	"github.com/pmacquire/daemon/internal/cache"
	"github.com/pmacquire/daemon/internal/domain"
	"github.com/pmacquire/daemon/internal/polymarket"
)

// MarketLister is the subset of polymarket.GammaClient the poller needs.
type MarketLister interface {
	ListActiveMarkets(ctx context.Context) ([]polymarket.RawMarket, error)
}

// MarketUpserter is the subset of query.MarketStore the poller needs.
type MarketUpserter interface {
	UpsertMarkets(ctx context.Context, markets []domain.Market) error
}

// DedupHinter is the subset of cache.DedupCache the poller needs, narrowed
// to an interface so tests can substitute a fake instead of a real Redis
// connection.
type DedupHinter interface {
	Unchanged(ctx context.Context, marketID string, fp cache.Fingerprint) bool
	Remember(ctx context.Context, marketID string, fp cache.Fingerprint)
}

// MarketPoller discovers active markets and upserts their metadata every
// cycle. It never persists price fields (that is the price poller's job,
// per the venue's "prices bundled with discovery, stored separately" rule).
// A dedup cache is consulted first so an unchanged record costs nothing
// more than the discovery call itself.
type MarketPoller struct {
	lister MarketLister
	store  MarketUpserter
	dedup  DedupHinter
	logger *slog.Logger
}

// NewMarketPoller constructs a MarketPoller. dedup may be nil to disable
// skip-hinting entirely (every cycle upserts everything discovered).
func NewMarketPoller(lister MarketLister, store MarketUpserter, dedup DedupHinter, logger *slog.Logger) *MarketPoller {
	if logger == nil {
		logger = slog.Default()
	}
	if dedup == nil {
		dedup = cache.NewDedupCache(nil, logger)
	}
	return &MarketPoller{lister: lister, store: store, dedup: dedup, logger: logger}
}

func (p *MarketPoller) Name() string { return "market_metadata" }

// CollectOnce lists active markets, skips the ones the dedup cache says are
// unchanged, and upserts the rest. It never returns an error: a failure at
// any stage is logged and the cycle reports 0.
func (p *MarketPoller) CollectOnce(ctx context.Context) int {
	raws, err := p.lister.ListActiveMarkets(ctx)
	if err != nil {
		p.logger.Error("market poller: list active markets failed", slog.String("error", err.Error()))
		return 0
	}

	var toUpsert []domain.Market
	var ids []string
	var fps []cache.Fingerprint
	for _, raw := range raws {
		fp := cache.Fingerprint{UpdatedAt: raw.UpdatedAt, Volume: raw.Volume}
		if p.dedup.Unchanged(ctx, raw.ID, fp) {
			continue
		}
		toUpsert = append(toUpsert, raw.ToDomainMarket())
		ids = append(ids, raw.ID)
		fps = append(fps, fp)
	}

	if len(toUpsert) == 0 {
		return 0
	}

	if err := p.store.UpsertMarkets(ctx, toUpsert); err != nil {
		p.logger.Error("market poller: upsert failed",
			slog.Int("attempted", len(toUpsert)), slog.String("error", err.Error()))
		return 0
	}
	for i, id := range ids {
		p.dedup.Remember(ctx, id, fps[i])
	}

	p.logger.Info("market poller: cycle complete",
		slog.Int("discovered", len(raws)), slog.Int("upserted", len(toUpsert)))
	return len(toUpsert)
}
