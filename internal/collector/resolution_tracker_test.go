package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pmacquire/daemon/internal/domain"
	"github.com/pmacquire/daemon/internal/polymarket"
)

type fakeClosedMarketLister struct {
	raws []polymarket.RawMarket
	err  error
}

func (f *fakeClosedMarketLister) ListClosedMarketsSince(ctx context.Context, cutoff time.Time) ([]polymarket.RawMarket, error) {
	return f.raws, f.err
}

type fakeUnresolvedLister struct {
	ids []string
	err error
}

func (f *fakeUnresolvedLister) GetUnresolvedClosedMarkets(ctx context.Context) ([]string, error) {
	return f.ids, f.err
}

type fakeResolutionUpserter struct {
	upserted []domain.Resolution
	err      error
}

func (f *fakeResolutionUpserter) UpsertResolution(ctx context.Context, r domain.Resolution) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, r)
	return nil
}

func closedRawMarket(conditionID string, prices []string) polymarket.RawMarket {
	return polymarket.RawMarket{
		ID:            "mkt-" + conditionID,
		ConditionID:   conditionID,
		Closed:        true,
		Outcomes:      []string{"Yes", "No"},
		OutcomePrices: prices,
		ClobTokenIDs:  []string{conditionID + "-yes", conditionID + "-no"},
	}
}

func TestResolutionTrackerResolvesUnambiguousWinner(t *testing.T) {
	lister := &fakeClosedMarketLister{raws: []polymarket.RawMarket{closedRawMarket("cond-1", []string{"1.0", "0.0"})}}
	marketSvc := &fakeMarketUpserter{}
	unresolved := &fakeUnresolvedLister{ids: []string{"cond-1"}}
	resolver := &fakeResolutionUpserter{}
	tr := NewResolutionTracker(lister, marketSvc, unresolved, resolver, nil)

	n := tr.CollectOnce(context.Background())
	if n != 1 {
		t.Fatalf("expected 1 resolution written, got %d", n)
	}
	if len(marketSvc.upserted) != 1 {
		t.Fatalf("expected the closed market to be marked closed via upsert, got %d", len(marketSvc.upserted))
	}
	if *resolver.upserted[0].Outcome != "Yes" {
		t.Fatalf("expected Yes to win, got %s", *resolver.upserted[0].Outcome)
	}
}

func TestResolutionTrackerLeavesAmbiguousMarketsUnresolved(t *testing.T) {
	lister := &fakeClosedMarketLister{raws: []polymarket.RawMarket{closedRawMarket("cond-1", []string{"1.0", "1.0"})}}
	unresolved := &fakeUnresolvedLister{ids: []string{"cond-1"}}
	resolver := &fakeResolutionUpserter{}
	tr := NewResolutionTracker(lister, &fakeMarketUpserter{}, unresolved, resolver, nil)

	n := tr.CollectOnce(context.Background())
	if n != 0 {
		t.Fatalf("expected 0 resolutions for an ambiguous market, got %d", n)
	}
	if len(resolver.upserted) != 0 {
		t.Fatal("expected no resolution to be written for an ambiguous market")
	}
}

func TestResolutionTrackerSkipsAlreadyResolvedConditions(t *testing.T) {
	lister := &fakeClosedMarketLister{raws: []polymarket.RawMarket{closedRawMarket("cond-1", []string{"1.0", "0.0"})}}
	unresolved := &fakeUnresolvedLister{ids: nil} // cond-1 already has a resolution row
	resolver := &fakeResolutionUpserter{}
	tr := NewResolutionTracker(lister, &fakeMarketUpserter{}, unresolved, resolver, nil)

	n := tr.CollectOnce(context.Background())
	if n != 0 {
		t.Fatalf("expected 0 since cond-1 is already resolved, got %d", n)
	}
}

func TestResolutionTrackerSwallowsListError(t *testing.T) {
	tr := NewResolutionTracker(&fakeClosedMarketLister{err: errors.New("venue down")}, &fakeMarketUpserter{}, &fakeUnresolvedLister{}, &fakeResolutionUpserter{}, nil)

	if n := tr.CollectOnce(context.Background()); n != 0 {
		t.Fatalf("expected 0 on list error, got %d", n)
	}
}
