package health

import (
	"context"
	"time"

	"github.com/vietddude/runguard/internal/core/domain"
	"github.com/vietddude/runguard/internal/stability/cache"
)

// RecoverySource exposes the recovery budget.
type RecoverySource interface {
	State() domain.RecoveryState
}

// PerformanceSource exposes the current degradation mode and sample window.
type PerformanceSource interface {
	Mode() domain.DegradationMode
	Snapshot() domain.PerformanceSample
	Quality() string
}

// CacheSource exposes resource cache counters.
type CacheSource interface {
	Stats() cache.Stats
}

// TimerSource exposes the number of registered host timers.
type TimerSource interface {
	Len() int
}

// Monitor aggregates health status from the stability components.
// Any source may be nil; its section is then left empty.
type Monitor struct {
	recovery RecoverySource
	perf     PerformanceSource
	cache    CacheSource
	timers   TimerSource
	now      func() time.Time
}

// NewMonitor creates a new health monitor.
func NewMonitor(
	recovery RecoverySource,
	perf PerformanceSource,
	cache CacheSource,
	timers TimerSource,
) *Monitor {
	return &Monitor{
		recovery: recovery,
		perf:     perf,
		cache:    cache,
		timers:   timers,
		now:      time.Now,
	}
}

// CheckHealth builds a report. Terminal recovery is critical; an ongoing
// recovery or reduced mode is degraded.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	report := Report{
		SystemStatus: StatusHealthy,
		CheckedAt:    m.now(),
	}

	if m.perf != nil {
		snap := m.perf.Snapshot()
		mode := m.perf.Mode()
		report.Performance = PerformanceHealth{
			Mode:           string(mode),
			FPS:            snap.LastFPS,
			Quality:        m.perf.Quality(),
			ConsecutiveLow: snap.ConsecutiveLow,
			Samples:        snap.SamplesCollected,
		}
		if mode.IsReduced() {
			report.SystemStatus = StatusDegraded
		}
	}

	if m.recovery != nil {
		state := m.recovery.State()
		report.Recovery = RecoveryHealth{
			Phase:      string(state.Phase),
			RetryCount: state.RetryCount,
			MaxRetries: state.MaxRetries,
			LastLabel:  state.LastLabel,
			LastError:  state.LastError,
			IncidentID: state.IncidentID,
			UpdatedAt:  state.UpdatedAt,
		}
		switch state.Phase {
		case domain.PhaseTerminal:
			report.SystemStatus = StatusCritical
		case domain.PhaseRecovering:
			report.SystemStatus = StatusDegraded
		}
	}

	if m.cache != nil {
		s := m.cache.Stats()
		report.Cache = CacheHealth{
			Entries: s.Entries,
			Hits:    s.Hits,
			Misses:  s.Misses,
			Absent:  s.Absent,
			Clears:  s.Clears,
		}
	}

	if m.timers != nil {
		report.ActiveTimers = m.timers.Len()
	}

	return report
}
