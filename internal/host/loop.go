// Package host simulates a frame-driven application running under the
// stability layer. It is the reference consumer of every stability component.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/runguard/internal/infra/kv"
	"github.com/vietddude/runguard/internal/stability/cache"
	"github.com/vietddude/runguard/internal/stability/loader"
	"github.com/vietddude/runguard/internal/stability/recovery"
)

// LabelFrame is the failure label used for errors raised inside a frame.
const LabelFrame = "frame"

const sessionKey = "session_stats"

var (
	ErrStaleHandle   = errors.New("stale resource handle")
	ErrInjectedFault = errors.New("injected frame fault")
	ErrAssetFailed   = errors.New("asset failed to load")
)

// Config configures the simulated host.
type Config struct {
	TargetFPS int      `yaml:"target_fps" env:"TARGET_FPS"`                 // Frame rate the loop aims for (default: 60)
	Profile   string   `yaml:"profile"    env:"PROFILE"`                    // Builtin profile name (default: steady)
	Phases    []Phase  `yaml:"phases"`                                      // Custom phases, override Profile when set
	Resources []string `yaml:"resources"  env:"RESOURCES" envSeparator:","` // Scene keys resolved every frame
	Assets    []string `yaml:"assets"     env:"ASSETS"    envSeparator:","` // URIs loaded at start and on every re-init
}

// DefaultConfig returns the default host settings.
func DefaultConfig() Config {
	return Config{
		TargetFPS: 60,
		Profile:   "steady",
		Resources: []string{"canvas", "hud", "score"},
	}
}

// ResolveProfile returns the custom phases when present, otherwise the
// named builtin profile.
func ResolveProfile(cfg Config) (FrameProfile, error) {
	if len(cfg.Phases) > 0 {
		p := FrameProfile{Name: "custom", Phases: cfg.Phases}
		return p, p.Validate()
	}
	return Profile(cfg.Profile)
}

// FrameMonitor is the part of perf.Monitor the loop drives.
type FrameMonitor interface {
	Tick()
	ShouldSkipFrame() bool
	IsReducedMode() bool
}

// Deps are the stability components the loop runs under.
// Loader and Store are optional.
type Deps struct {
	Monitor FrameMonitor
	Coord   *recovery.Coordinator
	Cache   *cache.Cache
	Scene   *Scene
	Loader  *loader.Loader
	Store   kv.Store
	Log     *slog.Logger
}

// Stats counts frame loop activity since Start.
type Stats struct {
	Frames   int64  `json:"frames"`
	Rendered int64  `json:"rendered"`
	Skipped  int64  `json:"skipped"`
	Reduced  int64  `json:"reduced"`
	Dropped  int64  `json:"dropped"`
	Errors   int64  `json:"errors"`
	Reinits  int64  `json:"reinits"`
	Phase    string `json:"phase"`
	Running  bool   `json:"running"`
}

// SessionStats is persisted across runs.
type SessionStats struct {
	Sessions    int   `json:"sessions"`
	TotalFrames int64 `json:"total_frames"`
	Errors      int64 `json:"errors"`
	Recoveries  int64 `json:"recoveries"`
}

// FrameLoop drives frames at a target rate through the recovery timer
// registry. A frame that fails halts the loop until Reinit runs, the same
// way an uncaught error stops an animation-frame chain.
type FrameLoop struct {
	cfg        Config
	profile    FrameProfile
	interval   time.Duration
	monitor    FrameMonitor
	coord      *recovery.Coordinator
	cache      *cache.Cache
	scene      *Scene
	loader     *loader.Loader
	store      kv.Store
	log        *slog.Logger
	work       func(time.Duration)
	dropped    atomic.Int64
	mu         sync.Mutex
	ctx        context.Context
	started    bool
	stopped    bool
	armed      bool
	timerID    recovery.TimerID
	phaseIdx   int
	phaseFrame int
	stats      Stats
	session    SessionStats
}

// NewFrameLoop creates a loop for profile. It registers itself as the
// coordinator's re-init hook.
func NewFrameLoop(cfg Config, profile FrameProfile, deps Deps) *FrameLoop {
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = DefaultConfig().TargetFPS
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	l := &FrameLoop{
		cfg:      cfg,
		profile:  profile,
		interval: time.Second / time.Duration(cfg.TargetFPS),
		monitor:  deps.Monitor,
		coord:    deps.Coord,
		cache:    deps.Cache,
		scene:    deps.Scene,
		loader:   deps.Loader,
		store:    deps.Store,
		log:      log.With("component", "frame-loop", "profile", profile.Name),
		work:     time.Sleep,
	}
	l.coord.SetReinit(l.Reinit)
	return l
}

// Start loads persisted session stats, preloads assets and arms the loop.
func (l *FrameLoop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}
	l.ctx = ctx

	if l.store != nil {
		l.session = kv.Get(ctx, l.store, sessionKey, SessionStats{})
	}
	l.session.Sessions++

	if err := l.preloadLocked(ctx); err != nil {
		return err
	}

	l.started = true
	l.armLocked()
	l.log.Info("Frame loop started",
		"target_fps", l.cfg.TargetFPS,
		"phases", len(l.profile.Phases),
		"session", l.session.Sessions,
	)
	return nil
}

// Stop halts the loop and persists session stats.
func (l *FrameLoop) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.started || l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	l.disarmLocked()
	l.session.TotalFrames += l.stats.Frames
	session := l.session
	l.mu.Unlock()

	l.log.Info("Frame loop stopped", "frames", session.TotalFrames, "errors", session.Errors)
	if l.store == nil {
		return nil
	}
	if err := kv.Set(ctx, l.store, sessionKey, session); err != nil {
		return fmt.Errorf("save session stats: %w", err)
	}
	return nil
}

// Reinit is the recovery hook. It runs after the coordinator canceled every
// registered timer and cleared the resource cache: it rebuilds the scene,
// reloads assets and re-arms the loop.
func (l *FrameLoop) Reinit() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started || l.stopped {
		return nil
	}

	gen := l.scene.Rebuild()
	l.stats.Reinits++
	l.session.Recoveries++
	// The registry was already emptied by the coordinator
	l.armed = false

	if err := l.preloadLocked(l.ctx); err != nil {
		return err
	}
	l.armLocked()
	l.log.Info("Host re-initialized", "generation", gen)
	return nil
}

// Step runs a single frame synchronously.
func (l *FrameLoop) Step() {
	l.frame()
}

func (l *FrameLoop) armLocked() {
	if l.armed {
		return
	}
	l.timerID = l.coord.Timers().Every(l.interval, l.frame)
	l.armed = true
}

func (l *FrameLoop) disarmLocked() {
	if !l.armed {
		return
	}
	l.coord.Timers().Cancel(l.timerID)
	l.armed = false
}

func (l *FrameLoop) preloadLocked(ctx context.Context) error {
	if l.loader == nil || len(l.cfg.Assets) == 0 {
		return nil
	}
	var errs []error
	for _, res := range l.loader.Preload(ctx, l.cfg.Assets) {
		if !res.OK {
			errs = append(errs, fmt.Errorf("%w: %s (%s)", ErrAssetFailed, res.URI, res.Reason))
		}
	}
	return errors.Join(errs...)
}

func (l *FrameLoop) frame() {
	// A frame still in flight means the host cannot keep up
	if !l.mu.TryLock() {
		l.dropped.Add(1)
		return
	}
	defer l.mu.Unlock()
	if l.stopped {
		return
	}

	l.monitor.Tick()
	l.stats.Frames++
	if err := l.coord.Guard(LabelFrame, l.renderLocked); err != nil {
		l.stats.Errors++
		l.session.Errors++
		l.disarmLocked()
	}
}

func (l *FrameLoop) renderLocked() error {
	phase := l.advanceLocked()

	for _, key := range l.cfg.Resources {
		h, ok := l.cache.Get(key)
		if !ok {
			continue
		}
		if el, ok := h.(*Element); ok && el.Generation != l.scene.Generation() {
			return fmt.Errorf("%w: %s from generation %d", ErrStaleHandle, key, el.Generation)
		}
	}

	if phase.FailEvery > 0 && l.phaseFrame%phase.FailEvery == 0 {
		return fmt.Errorf("%w: phase %s frame %d", ErrInjectedFault, phase.Name, l.phaseFrame)
	}

	if l.monitor.ShouldSkipFrame() {
		l.stats.Skipped++
		return nil
	}

	cost := phase.Cost
	if l.monitor.IsReducedMode() {
		cost /= 2
		l.stats.Reduced++
	}
	if cost > 0 {
		l.work(cost)
	}
	l.stats.Rendered++
	return nil
}

// advanceLocked moves to the next phase when the current one is done and
// returns the phase for this frame.
func (l *FrameLoop) advanceLocked() Phase {
	phase := l.profile.Phases[l.phaseIdx]
	if phase.Frames > 0 && l.phaseFrame >= phase.Frames && l.phaseIdx < len(l.profile.Phases)-1 {
		l.phaseIdx++
		l.phaseFrame = 0
		phase = l.profile.Phases[l.phaseIdx]
		l.log.Info("Entering phase", "phase", phase.Name, "cost", phase.Cost)
	}
	l.phaseFrame++
	l.stats.Phase = phase.Name
	return phase
}

// Stats returns a snapshot of loop counters.
func (l *FrameLoop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	s.Dropped = l.dropped.Load()
	s.Running = l.armed && !l.stopped
	return s
}

// Session returns the session stats, including the current run.
func (l *FrameLoop) Session() SessionStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}
