package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/pmacquire/daemon/internal/domain"
	"github.com/pmacquire/daemon/internal/polymarket"
)

type fakeOrderbookFetcher struct {
	books []polymarket.RawOrderbook
	err   error
}

func (f *fakeOrderbookFetcher) GetOrderbooks(ctx context.Context, tokenIDs []string, depth int) ([]polymarket.RawOrderbook, error) {
	return f.books, f.err
}

type fakeOrderbookInserter struct {
	inserted []domain.OrderbookSnapshot
	err      error
}

func (f *fakeOrderbookInserter) InsertOrderbookSnapshots(ctx context.Context, snaps []domain.OrderbookSnapshot) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, snaps...)
	return nil
}

func TestOrderbookPollerMapsYesNoSideByTokenPosition(t *testing.T) {
	active := []domain.Market{{
		MarketID:     "m1",
		ConditionID:  "cond-m1",
		ClobTokenIDs: []string{"tok-yes", "tok-no"},
	}}
	fetcher := &fakeOrderbookFetcher{books: []polymarket.RawOrderbook{
		{TokenID: "tok-yes", Bids: []polymarket.RawLevel{{Price: "0.5", Size: "10"}}},
		{TokenID: "tok-no", Asks: []polymarket.RawLevel{{Price: "0.6", Size: "20"}}},
	}}
	store := &fakeOrderbookInserter{}
	p := NewOrderbookPoller(&fakeActiveMarketLister{markets: active}, fetcher, store, 5, nil)

	n := p.CollectOnce(context.Background())
	if n != 2 {
		t.Fatalf("expected 2 snapshots, got %d", n)
	}

	sides := map[string]domain.OrderbookSide{}
	for _, s := range store.inserted {
		sides[s.TokenID] = s.Side
	}
	if sides["tok-yes"] != domain.OrderbookSideYes {
		t.Fatalf("expected tok-yes mapped to yes side, got %s", sides["tok-yes"])
	}
	if sides["tok-no"] != domain.OrderbookSideNo {
		t.Fatalf("expected tok-no mapped to no side, got %s", sides["tok-no"])
	}
}

func TestOrderbookPollerSkipsTokensNotInActiveScope(t *testing.T) {
	active := []domain.Market{{MarketID: "m1", ConditionID: "cond-m1", ClobTokenIDs: []string{"tok-yes"}}}
	fetcher := &fakeOrderbookFetcher{books: []polymarket.RawOrderbook{
		{TokenID: "tok-unknown", Bids: []polymarket.RawLevel{{Price: "0.5", Size: "10"}}},
	}}
	store := &fakeOrderbookInserter{}
	p := NewOrderbookPoller(&fakeActiveMarketLister{markets: active}, fetcher, store, 5, nil)

	if n := p.CollectOnce(context.Background()); n != 0 {
		t.Fatalf("expected 0 since the venue returned an unknown token, got %d", n)
	}
}

func TestOrderbookPollerSwallowsFetchError(t *testing.T) {
	active := []domain.Market{{MarketID: "m1", ConditionID: "cond-m1", ClobTokenIDs: []string{"tok-yes"}}}
	p := NewOrderbookPoller(&fakeActiveMarketLister{markets: active}, &fakeOrderbookFetcher{err: errors.New("venue down")}, &fakeOrderbookInserter{}, 5, nil)

	if n := p.CollectOnce(context.Background()); n != 0 {
		t.Fatalf("expected 0 on fetch error, got %d", n)
	}
}
