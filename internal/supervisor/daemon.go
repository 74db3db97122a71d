// Package supervisor owns the daemon's concurrency: it drives every
// periodic collector on its own ticker, keeps the long-lived trade
// listener alive, and exposes a deep-copied health snapshot. Grounded on
// the teacher's internal/pipeline/orchestrator.go (errgroup.WithContext,
// per-task goroutine, clean-shutdown on ctx.Err()), generalized into the
// restart-with-backoff task model this daemon's operational contract
// requires.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pmacquire/daemon/internal/collector"
)

const (
	defaultBackoffBase = time.Second
	defaultBackoffCap  = 60 * time.Second
	healthLogInterval  = 60 * time.Second
)

type pollingTask struct {
	collector collector.Collector
	interval  time.Duration
}

// Daemon supervises every collector for the acquisition process's
// lifetime: the polling collectors each on their own ticker, the trade
// listener as a long-lived task, and a periodic health-log line. Its own
// goroutines never touch collector-owned state directly; all
// cross-goroutine state lives behind mu.
type Daemon struct {
	pollers       []pollingTask
	tradeListener *collector.TradeListener
	backoffCap    time.Duration
	logger        *slog.Logger

	mu         sync.Mutex
	startedAt  time.Time
	stats      map[string]*CollectorStats
	taskStates map[string]TaskState
}

// New constructs an empty Daemon. Register collectors with AddCollector
// and, optionally, a trade listener with SetTradeListener before calling
// Run.
func New(logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		backoffCap: defaultBackoffCap,
		logger:     logger,
		stats:      make(map[string]*CollectorStats),
		taskStates: make(map[string]TaskState),
	}
}

// AddCollector registers a ticker-driven collector to run at interval.
func (d *Daemon) AddCollector(c collector.Collector, interval time.Duration) {
	d.pollers = append(d.pollers, pollingTask{collector: c, interval: interval})
	d.mu.Lock()
	d.stats[c.Name()] = &CollectorStats{}
	d.taskStates[c.Name()] = TaskState{Phase: PhaseNotStarted}
	d.mu.Unlock()
}

// SetTradeListener registers the long-lived trade listener task.
func (d *Daemon) SetTradeListener(l *collector.TradeListener) {
	d.tradeListener = l
	d.mu.Lock()
	d.stats[l.Name()] = &CollectorStats{}
	d.taskStates[l.Name()] = TaskState{Phase: PhaseNotStarted}
	d.mu.Unlock()
}

// Run starts every registered task and blocks until ctx is cancelled (or a
// task's restart loop gives up, which should not happen under this
// daemon's bounded-backoff policy — every wrapper loop retries forever).
// Shutdown order matches spec: polling collectors and the trade listener
// are cancelled together via ctx; the health-log loop is cancelled only
// after all of them have returned, since it reads from the same shared
// state and has no side effects to flush.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	d.startedAt = time.Now().UTC()
	d.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	for _, task := range d.pollers {
		task := task
		g.Go(func() error {
			d.runPollingTask(gctx, task)
			return nil
		})
	}

	if d.tradeListener != nil {
		g.Go(func() error {
			d.runTradeListenerTask(gctx)
			return nil
		})
	}

	healthCtx, cancelHealth := context.WithCancel(context.WithoutCancel(ctx))
	var healthWG sync.WaitGroup
	healthWG.Add(1)
	go func() {
		defer healthWG.Done()
		d.runHealthLogLoop(healthCtx)
	}()

	err := g.Wait()
	cancelHealth()
	healthWG.Wait()
	return err
}

// runPollingTask runs one collector's ticker loop forever, restarting
// with bounded exponential backoff if the loop itself terminates
// unexpectedly (collect_once never raises by contract; this is a
// defensive outer layer for the scheduler-corruption case the spec
// calls out).
func (d *Daemon) runPollingTask(ctx context.Context, task pollingTask) {
	name := task.collector.Name()
	attempt := 0
	for {
		if ctx.Err() != nil {
			d.setState(name, TaskState{Phase: PhaseStopped})
			return
		}
		d.setState(name, TaskState{Phase: PhaseRunning})

		err := d.runTicker(ctx, name, task.collector.CollectOnce, task.interval)
		if err == nil {
			d.setState(name, TaskState{Phase: PhaseStopped})
			return
		}
		attempt++
		d.backoffAndWait(ctx, name, attempt, err)
	}
}

// runTicker drives fn immediately and then on every tick until ctx is
// done. A panic inside fn (or the loop itself) is recovered and returned
// as an error so the caller can apply the restart-with-backoff policy;
// a clean ctx cancellation returns nil.
func (d *Daemon) runTicker(ctx context.Context, name string, fn func(context.Context) int, interval time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()

	d.runOnce(ctx, name, fn)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.runOnce(ctx, name, fn)
		}
	}
}

// runOnce invokes fn once and records the outcome in the collector's
// stats. A panic from fn is itself recovered here and counted as an
// error, per "collect_once itself fails unexpectedly... log and
// continue" — this does not restart the task, unlike a panic that
// escapes runTicker entirely.
func (d *Daemon) runOnce(ctx context.Context, name string, fn func(context.Context) int) {
	defer func() {
		if r := recover(); r != nil {
			d.recordError(name, fmt.Sprintf("panic: %v", r))
		}
	}()
	n := fn(ctx)
	d.recordSuccess(name, n)
}

// runTradeListenerTask keeps the long-lived trade listener alive,
// restarting it with the same backoff policy as the polling tasks if Run
// returns an error or the task panics.
func (d *Daemon) runTradeListenerTask(ctx context.Context) {
	name := d.tradeListener.Name()
	attempt := 0
	for {
		if ctx.Err() != nil {
			d.setState(name, TaskState{Phase: PhaseStopped})
			return
		}
		d.setState(name, TaskState{Phase: PhaseRunning})

		err := d.runTradeListenerOnce(ctx)
		if ctx.Err() != nil {
			d.setState(name, TaskState{Phase: PhaseStopped})
			return
		}
		if err == nil {
			// Run returned without error but ctx is still live: treat as an
			// unexpected exit and restart, per spec.
			err = fmt.Errorf("trade listener exited unexpectedly")
		}
		attempt++
		d.recordError(name, err.Error())
		d.backoffAndWait(ctx, name, attempt, err)
	}
}

func (d *Daemon) runTradeListenerOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in trade listener: %v", r)
		}
	}()
	if startErr := d.tradeListener.Run(ctx); startErr != nil {
		return startErr
	}
	<-ctx.Done()
	d.setState(d.tradeListener.Name(), TaskState{Phase: PhaseStopping})
	d.tradeListener.Stop()
	return nil
}

// backoffAndWait computes a capped exponential delay with jitter, records
// the backoff state, logs, and sleeps (cancellation-aware).
func (d *Daemon) backoffAndWait(ctx context.Context, name string, attempt int, cause error) {
	delay := backoffDelay(attempt, d.backoffCap)
	d.setState(name, TaskState{Phase: PhaseBackoff, Delay: delay, Attempt: attempt})
	d.logger.Error("supervisor: task restarting after failure",
		slog.String("task", name), slog.Int("attempt", attempt),
		slog.Duration("delay", delay), slog.String("error", cause.Error()))

	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// backoffDelay returns defaultBackoffBase*2^(attempt-1), capped at
// maxDelay, with up to 20% jitter so a fleet of restarting tasks doesn't
// thunder back in lockstep.
func backoffDelay(attempt int, maxDelay time.Duration) time.Duration {
	d := defaultBackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			d = maxDelay
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 5))
	return d + jitter
}

// runHealthLogLoop logs a summary line every healthLogInterval. Per
// spec, this loop is non-critical: a panic here is recovered and the
// loop simply stops, it is never restarted.
func (d *Daemon) runHealthLogLoop(ctx context.Context) {
	defer func() { recover() }()

	ticker := time.NewTicker(healthLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.logHealth()
		}
	}
}

func (d *Daemon) logHealth() {
	h := d.Health()
	d.logger.Info("daemon health", slog.String("uptime", h.Uptime))
	for name, st := range h.Collectors {
		d.logger.Info("collector stats",
			slog.String("collector", name),
			slog.Int64("total_items", st.TotalItems),
			slog.Int64("error_count", st.ErrorCount),
		)
	}
}

func (d *Daemon) recordSuccess(name string, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.stats[name]
	if !ok {
		st = &CollectorStats{}
		d.stats[name] = st
	}
	st.LastCollectTs = time.Now().UTC()
	st.TotalItems += int64(n)
}

func (d *Daemon) recordError(name, msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.stats[name]
	if !ok {
		st = &CollectorStats{}
		d.stats[name] = st
	}
	st.ErrorCount++
	st.LastError = msg
}

func (d *Daemon) setState(name string, s TaskState) {
	d.mu.Lock()
	d.taskStates[name] = s
	d.mu.Unlock()
}
