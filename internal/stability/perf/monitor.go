// Package perf samples the host's frame cadence and switches the shared
// degradation mode with hysteresis.
package perf

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/runguard/internal/core/domain"
	"github.com/vietddude/runguard/internal/core/shared"
	"github.com/vietddude/runguard/internal/stability/metrics"
)

// Monitor counts frames, classifies each sample window and drives the
// nominal/reduced state machine:
//
//	nominal --(N consecutive samples < LowFPS)--> reduced
//	reduced --(sample > RecoverFPS)-------------> nominal
//
// It is the only writer of the shared degradation flag.
type Monitor struct {
	cfg   Config
	flag  *shared.ModeFlag
	probe CapabilityProbe
	log   *slog.Logger
	now   func() time.Time

	frames atomic.Int64

	mu             sync.Mutex
	mode           domain.DegradationMode
	windowStart    time.Time
	consecutiveLow int
	lastFPS        float64
	samples        int64
	skipCounter    uint64
	capability     *domain.Capability
	onTransition   func(domain.ModeTransition)

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMonitor creates a monitor writing to flag. A nil probe uses SystemProbe.
func NewMonitor(cfg Config, flag *shared.ModeFlag, probe CapabilityProbe, log *slog.Logger) *Monitor {
	if flag == nil {
		flag = &shared.ModeFlag{}
	}
	if probe == nil {
		probe = SystemProbe{}
	}
	if log == nil {
		log = slog.Default()
	}
	m := &Monitor{
		cfg:   cfg.withDefaults(),
		flag:  flag,
		probe: probe,
		log:   log.With("component", "perf-monitor"),
		now:   time.Now,
		mode:  flag.Mode(),
	}
	m.windowStart = m.now()
	if m.mode == domain.ModeReduced {
		metrics.DegradationMode.Set(1)
	} else {
		metrics.DegradationMode.Set(0)
	}
	return m
}

// SetTransitionCallback registers a function called on every mode change.
// The callback runs with the monitor locked and must not call back into it.
func (m *Monitor) SetTransitionCallback(fn func(domain.ModeTransition)) {
	m.mu.Lock()
	m.onTransition = fn
	m.mu.Unlock()
}

// Init runs the static capability pre-check once. A low-end device starts
// in reduced mode before any sample is taken. Probe errors are logged and
// leave the mode untouched.
func (m *Monitor) Init(ctx context.Context) domain.Capability {
	m.mu.Lock()
	if m.capability != nil {
		c := *m.capability
		m.mu.Unlock()
		return c
	}
	m.mu.Unlock()

	var capability domain.Capability
	if m.cfg.CapabilityCheck {
		probed, err := m.probe.Probe(ctx)
		if err != nil {
			m.log.Warn("Capability check failed, assuming nominal device", "error", err)
		} else {
			capability = Classify(probed, m.cfg)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capability != nil {
		return *m.capability
	}
	m.capability = &capability

	m.log.Info("Device capability",
		"cpus", capability.LogicalCPUs,
		"memory", capability.TotalMemory,
		"low_end", capability.LowEnd,
	)
	if capability.LowEnd && m.mode != domain.ModeReduced {
		m.transitionLocked(domain.ModeReduced, "capability: "+capability.Reason, 0)
	}
	return capability
}

// Tick records one rendered frame. Safe to call from the render loop.
func (m *Monitor) Tick() {
	m.frames.Add(1)
}

// Start begins periodic sampling. Calling Start while running is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return
	}

	m.mu.Lock()
	m.frames.Store(0)
	m.windowStart = m.now()
	m.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.loop(runCtx, m.done)
	m.log.Debug("Performance monitoring started", "window", m.cfg.Window)
}

// Stop cancels the pending sample check and waits for the sampler to exit.
// No transitions happen after Stop returns. Stopping twice is a no-op.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return
	}
	m.cancel()
	<-m.done
	m.running = false
	m.log.Debug("Performance monitoring stopped")
}

// Running reports whether the sampler is active.
func (m *Monitor) Running() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Stop may have raced the tick
			if ctx.Err() != nil {
				return
			}
			m.sample(m.now())
		}
	}
}

// sample closes the window if it has lasted at least cfg.Window.
func (m *Monitor) sample(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := now.Sub(m.windowStart)
	if elapsed < m.cfg.Window {
		return
	}

	frames := m.frames.Swap(0)
	fps := float64(frames) / elapsed.Seconds()
	m.windowStart = now
	m.observeLocked(fps)
}

// observeLocked applies one FPS sample to the state machine.
func (m *Monitor) observeLocked(fps float64) {
	m.lastFPS = fps
	m.samples++
	metrics.FramesPerSecond.Set(fps)

	// Any sample at or above the low bar breaks the streak
	if fps < m.cfg.LowFPS {
		m.consecutiveLow++
	} else {
		m.consecutiveLow = 0
	}

	switch m.mode {
	case domain.ModeNominal:
		if m.consecutiveLow >= m.cfg.LowSamplesToDegrade {
			m.transitionLocked(domain.ModeReduced, "sustained low frame rate", fps)
		}
	case domain.ModeReduced:
		if fps > m.cfg.RecoverFPS {
			m.transitionLocked(domain.ModeNominal, "frame rate recovered", fps)
		}
	}
}

func (m *Monitor) transitionLocked(to domain.DegradationMode, reason string, fps float64) {
	from := m.mode
	if from == to {
		return
	}

	m.mode = to
	m.flag.Set(to)
	if to == domain.ModeReduced {
		m.skipCounter = 0
		metrics.DegradationMode.Set(1)
	} else {
		metrics.DegradationMode.Set(0)
	}
	metrics.ModeTransitions.WithLabelValues(string(to)).Inc()

	m.log.Info("Degradation mode changed",
		"from", from,
		"to", to,
		"reason", reason,
		"fps", fps,
	)

	if m.onTransition != nil {
		m.onTransition(domain.ModeTransition{
			From:      from,
			To:        to,
			Reason:    reason,
			FPS:       fps,
			Timestamp: m.now(),
		})
	}
}

// IsReducedMode reports whether the host should shed work.
func (m *Monitor) IsReducedMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode == domain.ModeReduced
}

// Mode returns the current degradation mode.
func (m *Monitor) Mode() domain.DegradationMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// ShouldSkipFrame alternates false/true while reduced and is always false
// while nominal. It depends only on its own call counter, not on the FPS.
func (m *Monitor) ShouldSkipFrame() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != domain.ModeReduced {
		return false
	}
	m.skipCounter++
	return m.skipCounter%2 == 0
}

// Quality classifies the last sample as "good", "fair" or "low".
func (m *Monitor) Quality() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.samples == 0 {
		return "unknown"
	}
	switch {
	case m.lastFPS >= m.cfg.GoodFPS:
		return "good"
	case m.lastFPS >= m.cfg.LowFPS:
		return "fair"
	default:
		return "low"
	}
}

// Snapshot returns the current measurement window.
func (m *Monitor) Snapshot() domain.PerformanceSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.PerformanceSample{
		Frames:           int(m.frames.Load()),
		WindowStart:      m.windowStart,
		ConsecutiveLow:   m.consecutiveLow,
		LastFPS:          m.lastFPS,
		SamplesCollected: m.samples,
	}
}

// Capability returns the pre-check result, or false if Init has not run.
func (m *Monitor) Capability() (domain.Capability, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capability == nil {
		return domain.Capability{}, false
	}
	return *m.capability, true
}
