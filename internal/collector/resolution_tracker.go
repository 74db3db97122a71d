package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/pmacquire/daemon/internal/domain"
	"github.com/pmacquire/daemon/internal/polymarket"
)

// resolutionLookback bounds how far back list_closed_markets_since looks
// each cycle. Combined with the venue client's own page ceiling, this is
// what keeps the tracker from paging through years of closed-market
// history on every 10-minute run.
const resolutionLookback = 30 * 24 * time.Hour

// ClosedMarketLister is the subset of polymarket.GammaClient the tracker
// needs.
type ClosedMarketLister interface {
	ListClosedMarketsSince(ctx context.Context, cutoff time.Time) ([]polymarket.RawMarket, error)
}

// UnresolvedClosedMarketLister is the subset of query.MarketStore the
// tracker needs to find closed markets with no resolution row yet.
type UnresolvedClosedMarketLister interface {
	GetUnresolvedClosedMarkets(ctx context.Context) ([]string, error)
}

// ResolutionUpserter is the subset of query.MarketStore the tracker needs
// to persist an inferred resolution.
type ResolutionUpserter interface {
	UpsertResolution(ctx context.Context, r domain.Resolution) error
}

// ResolutionTracker finds newly closed markets, flips their closed bit,
// and infers a winner for any that aren't resolved yet.
type ResolutionTracker struct {
	lister     ClosedMarketLister
	marketSvc  MarketUpserter
	unresolved UnresolvedClosedMarketLister
	resolver   ResolutionUpserter
	logger     *slog.Logger
}

// NewResolutionTracker constructs a ResolutionTracker.
func NewResolutionTracker(lister ClosedMarketLister, marketSvc MarketUpserter, unresolved UnresolvedClosedMarketLister, resolver ResolutionUpserter, logger *slog.Logger) *ResolutionTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResolutionTracker{lister: lister, marketSvc: marketSvc, unresolved: unresolved, resolver: resolver, logger: logger}
}

func (t *ResolutionTracker) Name() string { return "resolution_tracker" }

// CollectOnce lists recently closed markets, marks every one of them
// closed=true in the DB, then runs infer_winner for whichever of them
// still lack a resolution row. It returns the number of resolutions
// written.
func (t *ResolutionTracker) CollectOnce(ctx context.Context) int {
	cutoff := time.Now().UTC().Add(-resolutionLookback)
	raws, err := t.lister.ListClosedMarketsSince(ctx, cutoff)
	if err != nil {
		t.logger.Error("resolution tracker: list closed markets failed", slog.String("error", err.Error()))
		return 0
	}
	if len(raws) == 0 {
		return 0
	}

	closedMarkets := make([]domain.Market, 0, len(raws))
	byCondition := make(map[string]*polymarket.RawMarket, len(raws))
	for i := range raws {
		closedMarkets = append(closedMarkets, raws[i].ToDomainMarket())
		byCondition[raws[i].ConditionID] = &raws[i]
	}

	if err := t.marketSvc.UpsertMarkets(ctx, closedMarkets); err != nil {
		t.logger.Error("resolution tracker: mark closed failed", slog.String("error", err.Error()))
		return 0
	}

	unresolvedIDs, err := t.unresolved.GetUnresolvedClosedMarkets(ctx)
	if err != nil {
		t.logger.Error("resolution tracker: get unresolved closed markets failed", slog.String("error", err.Error()))
		return 0
	}

	resolved := 0
	for _, conditionID := range unresolvedIDs {
		raw, ok := byCondition[conditionID]
		if !ok {
			continue // not in this cycle's page window; a later cycle will pick it up
		}
		res, ok := raw.InferWinner()
		if !ok {
			continue // ambiguous or unparseable: leave unresolved rather than guess
		}
		if err := t.resolver.UpsertResolution(ctx, res); err != nil {
			t.logger.Error("resolution tracker: upsert resolution failed",
				slog.String("condition_id", conditionID), slog.String("error", err.Error()))
			continue
		}
		resolved++
	}

	t.logger.Info("resolution tracker: cycle complete",
		slog.Int("closed_seen", len(raws)), slog.Int("resolved", resolved))
	return resolved
}
