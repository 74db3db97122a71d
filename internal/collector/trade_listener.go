package collector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pmacquire/daemon/internal/domain"
	"github.com/pmacquire/daemon/internal/polymarket"
)

// TradeInserter is the subset of query.TradeStore the listener needs.
type TradeInserter interface {
	InsertTrades(ctx context.Context, trades []domain.Trade) error
}

// TradeListenerConfig sizes the listener's connection pool and drain loop.
type TradeListenerConfig struct {
	WSURL            string
	MaxTokensPerConn int
	PingInterval     time.Duration
	BatchSize        int
	DrainIdle        time.Duration
	QueueCapacity    int
}

// TradeHealth is a point-in-time copy of the listener's counters. It is
// always returned by value so a caller can never mutate the listener's
// internal state through it.
type TradeHealth struct {
	TradesReceived    int64
	TradesInserted    int64
	BatchesInserted   int64
	ConnectionsActive int
	Reconnections     int64
	QueueDepth        int
	Drops             int64
	LastTradeTs       time.Time
	LastInsertTs      time.Time
	StartedAt         time.Time
}

// TradeListener is the long-lived collector: unlike the pollers it does
// not implement CollectOnce, it owns Run/Stop for the daemon's lifetime.
// It opens a pool of self-reconnecting WebSocket connections, funnels
// parsed trades through a bounded drop-on-full queue, and drains that
// queue in a single goroutine that is the only writer to the trades
// table.
type TradeListener struct {
	cfg    TradeListenerConfig
	lister MarketLister
	store  TradeInserter
	logger *slog.Logger

	queue  chan domain.Trade
	stream *polymarket.TradeStream
	cancel context.CancelFunc
	wg     sync.WaitGroup

	tradesReceived  atomic.Int64
	tradesInserted  atomic.Int64
	batchesInserted atomic.Int64
	drops           atomic.Int64

	mu           sync.Mutex
	lastTradeTs  time.Time
	lastInsertTs time.Time
	startedAt    time.Time
}

// NewTradeListener constructs a TradeListener. Run must be called before
// any trades flow.
func NewTradeListener(cfg TradeListenerConfig, lister MarketLister, store TradeInserter, logger *slog.Logger) *TradeListener {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.DrainIdle <= 0 {
		cfg.DrainIdle = 2 * time.Second
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 10_000
	}
	return &TradeListener{cfg: cfg, lister: lister, store: store, logger: logger}
}

func (l *TradeListener) Name() string { return "trade_listener" }

// Run discovers the current active token set, opens the connection pool,
// and starts the drain loop. It returns as soon as both are started, without
// waiting for any connection to be established; the connections and the
// drain loop keep running in the background until Stop is called.
func (l *TradeListener) Run(ctx context.Context) error {
	raws, err := l.lister.ListActiveMarkets(ctx)
	if err != nil {
		return err
	}

	tokens := dedupTokens(raws)
	l.logger.Info("trade listener: starting",
		slog.Int("tokens", len(tokens)), slog.Int("markets", len(raws)))

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.queue = make(chan domain.Trade, l.cfg.QueueCapacity)

	l.mu.Lock()
	l.startedAt = time.Now().UTC()
	l.mu.Unlock()

	l.stream = polymarket.OpenTradeStream(runCtx, l.cfg.WSURL, tokens, l.cfg.MaxTokensPerConn, l.cfg.PingInterval, l.onTrade)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.drainLoop(runCtx)
	}()

	return nil
}

// Stop cancels the connection pool and the drain loop. The drain loop
// performs one last flush of whatever is queued before returning, so Stop
// does not return until that flush has completed or failed explicitly.
func (l *TradeListener) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	if l.stream != nil {
		l.stream.Stop()
	}
	l.wg.Wait()
}

// Health returns a copy of the listener's current counters.
func (l *TradeListener) Health() TradeHealth {
	l.mu.Lock()
	lastTrade := l.lastTradeTs
	lastInsert := l.lastInsertTs
	started := l.startedAt
	l.mu.Unlock()

	h := TradeHealth{
		TradesReceived:  l.tradesReceived.Load(),
		TradesInserted:  l.tradesInserted.Load(),
		BatchesInserted: l.batchesInserted.Load(),
		Reconnections:   0,
		QueueDepth:      len(l.queue),
		Drops:           l.drops.Load(),
		LastTradeTs:     lastTrade,
		LastInsertTs:    lastInsert,
		StartedAt:       started,
	}
	if l.stream != nil {
		h.ConnectionsActive = l.stream.ConnectionsActive()
		h.Reconnections = l.stream.Reconnections()
	}
	return h
}

// onTrade is the WebSocket receive-path callback. It must never block:
// a full queue drops the trade and counts it, rather than stalling the
// connection's keepalive.
func (l *TradeListener) onTrade(evt polymarket.TradeEvent) {
	l.tradesReceived.Add(1)
	l.mu.Lock()
	l.lastTradeTs = evt.Ts
	l.mu.Unlock()

	select {
	case l.queue <- evt.ToDomainTrade():
	default:
		l.drops.Add(1)
	}
}

// shutdownFlushBudget bounds the drain loop's final, post-cancellation
// flush. It runs on a context detached from the run context (which is
// already cancelled by the time this flush happens), so a slow insert
// can't hang shutdown forever but also isn't rejected outright the way
// an already-cancelled context would reject it.
const shutdownFlushBudget = 10 * time.Second

// drainLoop is the sole writer to the trades table: it batches queued
// trades and flushes on size or idle timeout, whichever comes first, and
// performs one last flush after ctx is cancelled before returning.
func (l *TradeListener) drainLoop(ctx context.Context) {
	batch := make([]domain.Trade, 0, l.cfg.BatchSize)
	timer := time.NewTimer(l.cfg.DrainIdle)
	defer timer.Stop()

	flush := func(flushCtx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := l.store.InsertTrades(flushCtx, batch); err != nil {
			l.logger.Error("trade listener: insert failed",
				slog.Int("batch_size", len(batch)), slog.String("error", err.Error()))
		} else {
			l.tradesInserted.Add(int64(len(batch)))
			l.batchesInserted.Add(1)
			l.mu.Lock()
			l.lastInsertTs = time.Now().UTC()
			l.mu.Unlock()
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushBudget)
			drainRemaining(l.queue, &batch, l.cfg.BatchSize, func() { flush(shutdownCtx) })
			flush(shutdownCtx)
			cancel()
			return
		case trade := <-l.queue:
			batch = append(batch, trade)
			if len(batch) >= l.cfg.BatchSize {
				flush(ctx)
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(l.cfg.DrainIdle)
			}
		case <-timer.C:
			flush(ctx)
			timer.Reset(l.cfg.DrainIdle)
		}
	}
}

// drainRemaining drains whatever is already queued, without blocking,
// into batch ahead of the final shutdown flush.
func drainRemaining(queue chan domain.Trade, batch *[]domain.Trade, max int, flush func()) {
	for {
		select {
		case trade, ok := <-queue:
			if !ok {
				return
			}
			*batch = append(*batch, trade)
			if len(*batch) >= max {
				flush()
			}
		default:
			return
		}
	}
}

func dedupTokens(raws []polymarket.RawMarket) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range raws {
		for _, tok := range r.ClobTokenIDs {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			out = append(out, tok)
		}
	}
	return out
}
