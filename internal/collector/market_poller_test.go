package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pmacquire/daemon/internal/cache"
	"github.com/pmacquire/daemon/internal/domain"
	"github.com/pmacquire/daemon/internal/polymarket"
)

// memoryDedup is an in-memory DedupHinter fake: markUnchanged forces the
// next Unchanged lookup for that market to report true, without needing a
// real Redis connection.
type memoryDedup struct {
	unchanged map[string]bool
}

func newMemoryDedup() *memoryDedup { return &memoryDedup{unchanged: map[string]bool{}} }

func (m *memoryDedup) markUnchanged(marketID string) { m.unchanged[marketID] = true }

func (m *memoryDedup) Unchanged(ctx context.Context, marketID string, fp cache.Fingerprint) bool {
	return m.unchanged[marketID]
}

func (m *memoryDedup) Remember(ctx context.Context, marketID string, fp cache.Fingerprint) {}

type fakeMarketLister struct {
	raws []polymarket.RawMarket
	err  error
}

func (f *fakeMarketLister) ListActiveMarkets(ctx context.Context) ([]polymarket.RawMarket, error) {
	return f.raws, f.err
}

type fakeMarketUpserter struct {
	upserted []domain.Market
	err      error
}

func (f *fakeMarketUpserter) UpsertMarkets(ctx context.Context, markets []domain.Market) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, markets...)
	return nil
}

func rawMarket(id string, updatedAt time.Time, volume float64) polymarket.RawMarket {
	return polymarket.RawMarket{
		ID:           id,
		ConditionID:  "cond-" + id,
		Question:     "q",
		Outcomes:     []string{"Yes", "No"},
		ClobTokenIDs: []string{"tok-" + id + "-yes", "tok-" + id + "-no"},
		UpdatedAt:    updatedAt,
		Volume:       volume,
	}
}

func TestMarketPollerUpsertsDiscoveredMarkets(t *testing.T) {
	lister := &fakeMarketLister{raws: []polymarket.RawMarket{
		rawMarket("m1", time.Now(), 100),
		rawMarket("m2", time.Now(), 200),
	}}
	store := &fakeMarketUpserter{}
	p := NewMarketPoller(lister, store, nil, nil)

	n := p.CollectOnce(context.Background())
	if n != 2 {
		t.Fatalf("expected 2 upserted, got %d", n)
	}
	if len(store.upserted) != 2 {
		t.Fatalf("expected store to receive 2 markets, got %d", len(store.upserted))
	}
}

func TestMarketPollerSkipsUnchangedViaDedupCache(t *testing.T) {
	raw := rawMarket("m1", time.Now(), 100)
	lister := &fakeMarketLister{raws: []polymarket.RawMarket{raw}}
	store := &fakeMarketUpserter{}
	dedup := newMemoryDedup()
	p := NewMarketPoller(lister, store, dedup, nil)
	ctx := context.Background()

	if n := p.CollectOnce(ctx); n != 1 {
		t.Fatalf("first cycle should upsert, got %d", n)
	}
	dedup.markUnchanged("m1")
	if n := p.CollectOnce(ctx); n != 0 {
		t.Fatalf("second cycle should skip the unchanged market, got %d", n)
	}
}

func TestMarketPollerSwallowsListErrors(t *testing.T) {
	lister := &fakeMarketLister{err: errors.New("venue down")}
	store := &fakeMarketUpserter{}
	p := NewMarketPoller(lister, store, nil, nil)

	if n := p.CollectOnce(context.Background()); n != 0 {
		t.Fatalf("expected 0 on list error, got %d", n)
	}
}

func TestMarketPollerSwallowsUpsertErrors(t *testing.T) {
	lister := &fakeMarketLister{raws: []polymarket.RawMarket{rawMarket("m1", time.Now(), 1)}}
	store := &fakeMarketUpserter{err: errors.New("db down")}
	p := NewMarketPoller(lister, store, nil, nil)

	if n := p.CollectOnce(context.Background()); n != 0 {
		t.Fatalf("expected 0 on upsert error, got %d", n)
	}
}
