package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pmacquire/daemon/internal/collector"
	"github.com/pmacquire/daemon/internal/domain"
	"github.com/pmacquire/daemon/internal/polymarket"
)

type countingCollector struct {
	name  string
	n     int
	calls atomic.Int64
}

func (c *countingCollector) Name() string { return c.name }

func (c *countingCollector) CollectOnce(ctx context.Context) int {
	c.calls.Add(1)
	return c.n
}

func TestDaemonRunsPollingCollectorOnTicker(t *testing.T) {
	d := New(nil)
	c := &countingCollector{name: "test_collector", n: 3}
	d.AddCollector(c, 15*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned an error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	if c.calls.Load() < 2 {
		t.Fatalf("expected the collector to have run more than once, got %d calls", c.calls.Load())
	}

	h := d.Health()
	st, ok := h.Collectors["test_collector"]
	if !ok {
		t.Fatal("expected a stats entry for test_collector")
	}
	if st.TotalItems == 0 {
		t.Fatal("expected accumulated items from successful cycles")
	}
	if h.TaskStates["test_collector"].Phase != PhaseStopped {
		t.Fatalf("expected PhaseStopped after clean shutdown, got %s", h.TaskStates["test_collector"].Phase)
	}
}

type emptyMarketLister struct{}

func (emptyMarketLister) ListActiveMarkets(ctx context.Context) ([]polymarket.RawMarket, error) {
	return nil, nil
}

type noopTradeInserter struct{}

func (noopTradeInserter) InsertTrades(ctx context.Context, trades []domain.Trade) error { return nil }

func TestDaemonRunsAndStopsTradeListenerCleanly(t *testing.T) {
	d := New(nil)
	l := collector.NewTradeListener(collector.TradeListenerConfig{
		WSURL:         "wss://example.invalid/ws",
		QueueCapacity: 4,
	}, emptyMarketLister{}, noopTradeInserter{}, nil)
	d.SetTradeListener(l)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned an error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	h := d.Health()
	if h.TaskStates["trade_listener"].Phase != PhaseStopped {
		t.Fatalf("expected trade listener PhaseStopped, got %s", h.TaskStates["trade_listener"].Phase)
	}
	if h.TradeListener == nil {
		t.Fatal("expected a trade listener health snapshot to be present")
	}
}

func TestHealthIsADeepCopy(t *testing.T) {
	d := New(nil)
	c := &countingCollector{name: "c1", n: 1}
	d.AddCollector(c, time.Hour)
	d.recordSuccess("c1", 5)

	h := d.Health()
	h.Collectors["c1"] = CollectorStats{TotalItems: 999}

	h2 := d.Health()
	if h2.Collectors["c1"].TotalItems != 5 {
		t.Fatalf("mutating a returned snapshot must not affect the daemon's state, got %d", h2.Collectors["c1"].TotalItems)
	}
}

func TestFormatUptime(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "0m 45s"},
		{90 * time.Second, "1m 30s"},
		{90 * time.Minute, "1h 30m"},
		{25 * time.Hour, "25h 0m"},
	}
	for _, c := range cases {
		if got := formatUptime(c.d); got != c.want {
			t.Errorf("formatUptime(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}

func TestBackoffDelayCapsAndGrows(t *testing.T) {
	maxDelay := 10 * time.Second
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffDelay(attempt, maxDelay)
		if d > maxDelay+maxDelay/5 {
			t.Fatalf("attempt %d: delay %v exceeds cap+jitter %v", attempt, d, maxDelay+maxDelay/5)
		}
	}
}
