package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/pmacquire/daemon/internal/domain"
	"github.com/pmacquire/daemon/internal/polymarket"
)

type fakeActiveMarketLister struct {
	markets []domain.Market
	err     error
}

func (f *fakeActiveMarketLister) GetActiveMarkets(ctx context.Context) ([]domain.Market, error) {
	return f.markets, f.err
}

type fakePriceInserter struct {
	inserted []domain.PriceSnapshot
	err      error
}

func (f *fakePriceInserter) InsertPriceSnapshots(ctx context.Context, snaps []domain.PriceSnapshot) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, snaps...)
	return nil
}

func rawMarketWithPrices(id string, prices []string) polymarket.RawMarket {
	return polymarket.RawMarket{
		ID:            id,
		ConditionID:   "cond-" + id,
		Outcomes:      []string{"Yes", "No"},
		OutcomePrices: prices,
		ClobTokenIDs:  []string{"tok-" + id + "-yes", "tok-" + id + "-no"},
	}
}

func TestPricePollerInsertsOnlyInScopeTokens(t *testing.T) {
	active := []domain.Market{{MarketID: "m1", ConditionID: "cond-m1", ClobTokenIDs: []string{"tok-m1-yes", "tok-m1-no"}}}
	lister := &fakeMarketLister{raws: []polymarket.RawMarket{
		rawMarketWithPrices("m1", []string{"0.6", "0.4"}),
		rawMarketWithPrices("m2", []string{"0.3", "0.7"}), // m2 not in the DB's active set
	}}
	priceStore := &fakePriceInserter{}
	p := NewPricePoller(lister, &fakeActiveMarketLister{markets: active}, priceStore, nil)

	n := p.CollectOnce(context.Background())
	if n != 2 {
		t.Fatalf("expected 2 in-scope snapshots, got %d", n)
	}
	for _, s := range priceStore.inserted {
		if s.TokenID != "tok-m1-yes" && s.TokenID != "tok-m1-no" {
			t.Fatalf("unexpected out-of-scope token inserted: %s", s.TokenID)
		}
	}
}

func TestPricePollerNoActiveMarketsIsNoOp(t *testing.T) {
	lister := &fakeMarketLister{raws: []polymarket.RawMarket{rawMarketWithPrices("m1", []string{"0.6", "0.4"})}}
	p := NewPricePoller(lister, &fakeActiveMarketLister{}, &fakePriceInserter{}, nil)

	if n := p.CollectOnce(context.Background()); n != 0 {
		t.Fatalf("expected 0 with no active markets, got %d", n)
	}
}

func TestPricePollerSwallowsActiveMarketsError(t *testing.T) {
	p := NewPricePoller(&fakeMarketLister{}, &fakeActiveMarketLister{err: errors.New("db down")}, &fakePriceInserter{}, nil)

	if n := p.CollectOnce(context.Background()); n != 0 {
		t.Fatalf("expected 0 on db error, got %d", n)
	}
}
