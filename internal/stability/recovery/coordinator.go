// Package recovery intercepts runtime failures, attempts bounded automatic
// recovery and escalates to a terminal failure notice when the budget runs out.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/vietddude/runguard/internal/core/domain"
	"github.com/vietddude/runguard/internal/core/shared"
	"github.com/vietddude/runguard/internal/stability/metrics"
)

// Phase machine events.
const (
	eventFail      = "fail"
	eventRecovered = "recovered"
	eventExhaust   = "exhaust"
	eventReset     = "reset"
)

// LabelReinit is the context label used when the re-init hook itself fails.
const LabelReinit = "reinit"

// ErrPanic wraps values recovered from a panicking guarded function.
var ErrPanic = errors.New("panic")

// Config holds the recovery budget.
type Config struct {
	MaxRetries    int           `yaml:"max_retries"    env:"MAX_RETRIES"`    // Automatic recoveries before terminal (default: 3)
	RecoveryDelay time.Duration `yaml:"recovery_delay" env:"RECOVERY_DELAY"` // Wait before each recovery attempt (default: 1s)
}

// DefaultConfig returns the default recovery budget.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    3,
		RecoveryDelay: 1 * time.Second,
	}
}

// ReinitFunc re-initializes the host after volatile state was reset.
type ReinitFunc func() error

// Coordinator is the single ingress for runtime failures.
//
//	healthy    --fail------> recovering
//	recovering --recovered-> healthy
//	healthy|recovering --exhaust--> terminal (absorbing)
//	terminal   --reset-----> healthy (external reload only)
//
// The retry budget is shared by every failure for the process lifetime,
// including failures raised by the re-init hook itself.
type Coordinator struct {
	cfg     Config
	rt      *shared.Runtime
	sched   Scheduler
	timers  *Timers
	surface Surface
	log     *slog.Logger

	mu         sync.Mutex
	machine    *fsm.FSM
	retryCount int
	lastLabel  string
	lastErr    string
	incidentID string
	updatedAt  time.Time
	reinit     ReinitFunc
	pending    map[int]Stopper
	scheduled  int
	onPhase    func(from, to domain.RecoveryPhase)
}

// NewCoordinator creates a coordinator. A nil scheduler uses RealScheduler;
// a nil surface only logs the terminal notice.
func NewCoordinator(
	cfg Config,
	rt *shared.Runtime,
	sched Scheduler,
	surface Surface,
	log *slog.Logger,
) *Coordinator {
	def := DefaultConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RecoveryDelay <= 0 {
		cfg.RecoveryDelay = def.RecoveryDelay
	}
	if sched == nil {
		sched = RealScheduler{}
	}
	if log == nil {
		log = slog.Default()
	}

	c := &Coordinator{
		cfg:       cfg,
		rt:        rt,
		sched:     sched,
		timers:    NewTimers(sched),
		surface:   surface,
		log:       log.With("component", "recovery"),
		pending:   make(map[int]Stopper),
		updatedAt: time.Now(),
	}

	c.machine = fsm.NewFSM(
		string(domain.PhaseHealthy),
		fsm.Events{
			{Name: eventFail, Src: []string{string(domain.PhaseHealthy)}, Dst: string(domain.PhaseRecovering)},
			{Name: eventRecovered, Src: []string{string(domain.PhaseRecovering)}, Dst: string(domain.PhaseHealthy)},
			{
				Name: eventExhaust,
				Src:  []string{string(domain.PhaseHealthy), string(domain.PhaseRecovering)},
				Dst:  string(domain.PhaseTerminal),
			},
			{Name: eventReset, Src: []string{string(domain.PhaseTerminal)}, Dst: string(domain.PhaseHealthy)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				setPhaseGauge(domain.RecoveryPhase(e.Dst))
				if c.onPhase != nil {
					c.onPhase(domain.RecoveryPhase(e.Src), domain.RecoveryPhase(e.Dst))
				}
			},
		},
	)
	setPhaseGauge(domain.PhaseHealthy)

	return c
}

// Timers returns the registry every host timer must be created through.
func (c *Coordinator) Timers() *Timers {
	return c.timers
}

// SetReinit registers the re-initialization hook. Passing nil removes it.
func (c *Coordinator) SetReinit(fn ReinitFunc) {
	c.mu.Lock()
	c.reinit = fn
	c.mu.Unlock()
}

// SetPhaseCallback registers a function called on every phase change.
// It runs with the coordinator locked and must not call back into it.
func (c *Coordinator) SetPhaseCallback(fn func(from, to domain.RecoveryPhase)) {
	c.mu.Lock()
	c.onPhase = fn
	c.mu.Unlock()
}

// HandleFailure is the sole ingress for runtime failures. The label is a
// free-form diagnostic string. Once terminal, every call is a no-op.
func (c *Coordinator) HandleFailure(err error, label string) {
	if err == nil {
		err = errors.New("unknown failure")
	}

	c.mu.Lock()
	if c.phaseLocked() == domain.PhaseTerminal {
		c.mu.Unlock()
		metrics.Failures.WithLabelValues("ignored").Inc()
		c.log.Debug("Failure ignored in terminal state", "label", label, "error", err)
		return
	}

	c.lastLabel = label
	c.lastErr = err.Error()
	c.incidentID = uuid.NewString()
	c.updatedAt = time.Now()

	if c.retryCount >= c.cfg.MaxRetries {
		notice := c.enterTerminalLocked()
		c.mu.Unlock()

		metrics.Failures.WithLabelValues("terminal").Inc()
		c.log.Error("Recovery budget exhausted, entering terminal state",
			"label", label,
			"error", err,
			"retries", c.cfg.MaxRetries,
			"incident", notice.IncidentID,
		)
		c.show(notice)
		return
	}

	c.retryCount++
	attempt := c.retryCount
	if c.machine.Can(eventFail) {
		c.fireLocked(eventFail)
	}
	c.pending[attempt] = c.sched.AfterFunc(c.cfg.RecoveryDelay, func() {
		c.runRecovery(attempt)
	})
	c.scheduled++
	incident := c.incidentID
	c.mu.Unlock()

	metrics.Failures.WithLabelValues("scheduled").Inc()
	c.log.Warn("Runtime failure, scheduling recovery",
		"label", label,
		"error", err,
		"attempt", attempt,
		"max_retries", c.cfg.MaxRetries,
		"delay", c.cfg.RecoveryDelay,
		"incident", incident,
	)
}

// Guard runs fn and routes a returned error or a panic to HandleFailure.
// The error is also returned so the caller can skip dependent work.
func (c *Coordinator) Guard(label string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		if err != nil {
			c.HandleFailure(err, label)
		}
	}()
	return fn()
}

// runRecovery runs one scheduled recovery attempt.
func (c *Coordinator) runRecovery(attempt int) {
	c.mu.Lock()
	delete(c.pending, attempt)
	if c.phaseLocked() == domain.PhaseTerminal {
		c.mu.Unlock()
		return
	}
	reinit := c.reinit
	c.mu.Unlock()

	// Volatile state first: host timers and handles into a possibly rebuilt tree
	canceled := c.timers.CancelAll()
	if c.rt != nil && c.rt.Cache != nil {
		c.rt.Cache.Clear()
	}
	c.log.Info("Runtime state reset", "attempt", attempt, "timers_canceled", canceled)

	if reinit != nil {
		if err := callReinit(reinit); err != nil {
			metrics.RecoveryAttempts.WithLabelValues("failure").Inc()
			c.log.Error("Re-initialization failed", "attempt", attempt, "error", err)
			c.HandleFailure(err, LabelReinit)
			return
		}
	}

	metrics.RecoveryAttempts.WithLabelValues("success").Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	// Later failures may have queued more attempts; stay recovering until they ran
	if len(c.pending) == 0 && c.machine.Can(eventRecovered) {
		c.fireLocked(eventRecovered)
		c.updatedAt = time.Now()
		c.log.Info("Recovered", "attempt", attempt, "retries_used", c.retryCount)
	}
}

func callReinit(fn ReinitFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn()
}

func (c *Coordinator) enterTerminalLocked() domain.Notice {
	for attempt, s := range c.pending {
		s.Stop()
		delete(c.pending, attempt)
	}
	c.fireLocked(eventExhaust)
	return NewNotice(c.stateLocked())
}

func (c *Coordinator) show(n domain.Notice) {
	if c.surface == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Failure surface panicked", "panic", r)
		}
	}()
	c.surface.ShowTerminal(n)
}

// Reset is the external reload equivalent: it cancels pending recoveries,
// refills the budget and returns to healthy from any phase.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for attempt, s := range c.pending {
		s.Stop()
		delete(c.pending, attempt)
	}
	c.retryCount = 0
	c.lastLabel = ""
	c.lastErr = ""
	c.incidentID = ""
	c.updatedAt = time.Now()

	switch {
	case c.machine.Can(eventReset):
		c.fireLocked(eventReset)
	case c.machine.Can(eventRecovered):
		c.fireLocked(eventRecovered)
	}
	c.log.Info("Recovery state reset")
}

func (c *Coordinator) fireLocked(event string) {
	if err := c.machine.Event(context.Background(), event); err != nil {
		c.log.Error("Invalid recovery transition", "event", event, "error", err)
	}
}

func (c *Coordinator) phaseLocked() domain.RecoveryPhase {
	return domain.RecoveryPhase(c.machine.Current())
}

// Phase returns the current phase.
func (c *Coordinator) Phase() domain.RecoveryPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phaseLocked()
}

// Terminal reports whether automatic recovery has been given up.
func (c *Coordinator) Terminal() bool {
	return c.Phase() == domain.PhaseTerminal
}

// State returns a snapshot of the recovery budget.
func (c *Coordinator) State() domain.RecoveryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Coordinator) stateLocked() domain.RecoveryState {
	return domain.RecoveryState{
		Phase:      c.phaseLocked(),
		RetryCount: c.retryCount,
		MaxRetries: c.cfg.MaxRetries,
		LastLabel:  c.lastLabel,
		LastError:  c.lastErr,
		IncidentID: c.incidentID,
		UpdatedAt:  c.updatedAt,
	}
}

// ScheduledAttempts returns how many recovery attempts have been scheduled.
func (c *Coordinator) ScheduledAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scheduled
}

func setPhaseGauge(active domain.RecoveryPhase) {
	for _, p := range []domain.RecoveryPhase{domain.PhaseHealthy, domain.PhaseRecovering, domain.PhaseTerminal} {
		v := 0.0
		if p == active {
			v = 1
		}
		metrics.RecoveryPhase.WithLabelValues(string(p)).Set(v)
	}
}
