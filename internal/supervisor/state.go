package supervisor

import (
	"fmt"
	"time"
)

// TaskPhase is the lifecycle state of one supervised task.
type TaskPhase string

const (
	PhaseNotStarted TaskPhase = "not_started"
	PhaseRunning    TaskPhase = "running"
	PhaseBackoff    TaskPhase = "backoff"
	PhaseStopping   TaskPhase = "stopping"
	PhaseStopped    TaskPhase = "stopped"
)

// TaskState is a task's current lifecycle state. Delay and Attempt are
// only meaningful in PhaseBackoff.
type TaskState struct {
	Phase   TaskPhase
	Delay   time.Duration
	Attempt int
}

// CollectorStats is the running tally the supervisor keeps per collector.
// LastError is a string rather than an error so the type stays trivially
// copyable for get_health()'s deep-copy requirement.
type CollectorStats struct {
	LastCollectTs time.Time
	TotalItems    int64
	ErrorCount    int64
	LastError     string
}

// formatUptime renders d as "Xh Ym" when it's at least an hour, otherwise
// "Ym Zs", per the spec's human-readable uptime convention.
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d >= time.Hour {
		h := int(d / time.Hour)
		m := int((d % time.Hour) / time.Minute)
		return fmt.Sprintf("%dh %dm", h, m)
	}
	m := int(d / time.Minute)
	s := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%dm %ds", m, s)
}
