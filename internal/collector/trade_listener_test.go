package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pmacquire/daemon/internal/domain"
	"github.com/pmacquire/daemon/internal/polymarket"
)

type fakeTradeInserter struct {
	mu     sync.Mutex
	calls  int
	trades []domain.Trade
}

func (f *fakeTradeInserter) InsertTrades(ctx context.Context, trades []domain.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.trades = append(f.trades, trades...)
	return nil
}

func (f *fakeTradeInserter) snapshot() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, len(f.trades)
}

func newTestListener(store TradeInserter, batchSize int, drainIdle time.Duration) *TradeListener {
	l := NewTradeListener(TradeListenerConfig{
		BatchSize:     batchSize,
		DrainIdle:     drainIdle,
		QueueCapacity: 8,
	}, &fakeMarketLister{}, store, nil)
	l.queue = make(chan domain.Trade, l.cfg.QueueCapacity)
	return l
}

func TestTradeListenerFlushesOnBatchSize(t *testing.T) {
	store := &fakeTradeInserter{}
	l := newTestListener(store, 3, time.Hour) // idle timeout far longer than the test

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.drainLoop(ctx)

	for i := 0; i < 3; i++ {
		l.queue <- domain.Trade{TokenID: "tok", Price: 0.5, Size: 1}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls, n := store.snapshot(); calls == 1 && n == 3 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected a flush once batch size was reached")
}

func TestTradeListenerFlushesOnIdleTimeout(t *testing.T) {
	store := &fakeTradeInserter{}
	l := newTestListener(store, 500, 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.drainLoop(ctx)

	l.queue <- domain.Trade{TokenID: "tok", Price: 0.5, Size: 1}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls, n := store.snapshot(); calls >= 1 && n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected an idle-timeout flush of the single queued trade")
}

func TestTradeListenerFinalFlushOnShutdown(t *testing.T) {
	store := &fakeTradeInserter{}
	l := newTestListener(store, 500, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.drainLoop(ctx)
		close(done)
	}()

	l.queue <- domain.Trade{TokenID: "tok", Price: 0.5, Size: 1}
	time.Sleep(20 * time.Millisecond) // let the trade land in the queue before shutdown
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("drain loop did not return after shutdown")
	}

	if calls, n := store.snapshot(); calls != 1 || n != 1 {
		t.Fatalf("expected exactly one final flush with 1 trade, got calls=%d n=%d", calls, n)
	}
}

func TestTradeListenerOnTradeDropsWhenQueueFull(t *testing.T) {
	l := newTestListener(&fakeTradeInserter{}, 500, time.Hour)
	l.queue = make(chan domain.Trade, 1) // force an immediate drop on the second event

	evt := polymarket.TradeEvent{TokenID: "tok", Price: 0.5, Size: 1, Side: domain.TradeSideBuy, Ts: time.Now()}
	l.onTrade(evt)
	l.onTrade(evt)

	if got := l.drops.Load(); got != 1 {
		t.Fatalf("expected exactly 1 drop, got %d", got)
	}
	if got := l.tradesReceived.Load(); got != 2 {
		t.Fatalf("expected both events counted as received regardless of drop, got %d", got)
	}
}

func TestTradeListenerHealthIsACopy(t *testing.T) {
	l := newTestListener(&fakeTradeInserter{}, 500, time.Hour)
	evt := polymarket.TradeEvent{TokenID: "tok", Price: 0.5, Size: 1, Side: domain.TradeSideBuy, Ts: time.Now()}
	l.onTrade(evt)

	h := l.Health()
	if h.TradesReceived != 1 {
		t.Fatalf("expected 1 trade received in snapshot, got %d", h.TradesReceived)
	}

	l.onTrade(evt)
	if h.TradesReceived != 1 {
		t.Fatal("a previously returned health snapshot must not change after further events")
	}
}

func TestDedupTokensFlattensAndDeduplicates(t *testing.T) {
	raws := []polymarket.RawMarket{
		{ClobTokenIDs: []string{"a", "b"}},
		{ClobTokenIDs: []string{"b", "c"}},
	}
	got := dedupTokens(raws)
	if len(got) != 3 {
		t.Fatalf("expected 3 deduplicated tokens, got %d: %v", len(got), got)
	}
}
