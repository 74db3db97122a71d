package supervisor

import (
	"time"

	"github.com/pmacquire/daemon/internal/collector"
)

// Health is a deep-copied, programmatically consumable snapshot of the
// daemon's state. Callers may freely read or retain it; nothing in it is
// shared with the daemon's live state.
type Health struct {
	StartedAt     time.Time
	Uptime        string
	Collectors    map[string]CollectorStats
	TaskStates    map[string]TaskState
	TradeListener *collector.TradeHealth
}

// Health returns a deep copy of the daemon's current state, per
// get_health()'s copy-on-read contract.
func (d *Daemon) Health() Health {
	d.mu.Lock()
	started := d.startedAt
	stats := make(map[string]CollectorStats, len(d.stats))
	for k, v := range d.stats {
		stats[k] = *v
	}
	states := make(map[string]TaskState, len(d.taskStates))
	for k, v := range d.taskStates {
		states[k] = v
	}
	d.mu.Unlock()

	h := Health{
		StartedAt:  started,
		Uptime:     formatUptime(time.Since(started)),
		Collectors: stats,
		TaskStates: states,
	}
	if d.tradeListener != nil {
		th := d.tradeListener.Health()
		h.TradeListener = &th
	}
	return h
}
