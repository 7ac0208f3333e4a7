package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/vietddude/runguard/internal/core/domain"
	"github.com/vietddude/runguard/internal/core/shared"
	"github.com/vietddude/runguard/internal/host"
	"github.com/vietddude/runguard/internal/infra/kv"
	"github.com/vietddude/runguard/internal/stability/cache"
	"github.com/vietddude/runguard/internal/stability/health"
	"github.com/vietddude/runguard/internal/stability/loader"
	"github.com/vietddude/runguard/internal/stability/perf"
	"github.com/vietddude/runguard/internal/stability/recovery"
)

// LastIncidentKey is where the most recent terminal notice is persisted.
const LastIncidentKey = "last_incident"

// Guard is the main application struct that wires the stability layer
// around the simulated host and manages its lifecycle.
type Guard struct {
	cfg          Config
	store        kv.Store
	runtime      *shared.Runtime
	perf         *perf.Monitor
	coord        *recovery.Coordinator
	loader       *loader.Loader
	loop         *host.FrameLoop
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger

	termMu     sync.Mutex
	terminated chan struct{}
	termClosed bool
}

// Config holds the application configuration.
type Config struct {
	Port          int
	ServerEnabled bool
	Perf          perf.Config
	Loader        loader.Config
	Recovery      recovery.Config
	KV            kv.Config
	Host          host.Config
	NoticeOut     io.Writer // Terminal notice destination (default: stderr)
	Probe         perf.CapabilityProbe
}

// NewGuard creates a new Guard instance with all dependencies initialized.
func NewGuard(ctx context.Context, cfg Config) (*Guard, error) {
	log := slog.Default()

	profile, err := host.ResolveProfile(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve frame profile: %w", err)
	}

	// 1. Persisted state
	store, err := kv.Open(ctx, cfg.KV)
	if err != nil {
		return nil, fmt.Errorf("failed to open kv store: %w", err)
	}
	log.Info("Using kv backend", "backend", backendName(cfg.KV.Backend))

	// 2. Shared runtime context
	scene := host.NewScene(cfg.Host.Resources)
	resources := cache.New(scene, log)
	rt := shared.NewRuntime(resources)

	// 3. Stability components
	perfMon := perf.NewMonitor(cfg.Perf, rt.Mode, cfg.Probe, log)

	out := cfg.NoticeOut
	if out == nil {
		out = os.Stderr
	}
	g := &Guard{
		cfg:        cfg,
		store:      store,
		runtime:    rt,
		perf:       perfMon,
		log:        log,
		terminated: make(chan struct{}),
	}
	surface := surfaces{
		recovery.NewWriterSurface(out),
		recovery.SurfaceFunc(g.persistIncident),
	}
	g.coord = recovery.NewCoordinator(cfg.Recovery, rt, nil, surface, log)
	g.coord.SetPhaseCallback(func(from, to domain.RecoveryPhase) {
		if to == domain.PhaseTerminal {
			g.markTerminated()
		}
	})

	g.loader = loader.New(loader.NewHTTPFetcher(cfg.Loader.AttemptTimeout), cfg.Loader, log)

	// 4. Host
	g.loop = host.NewFrameLoop(cfg.Host, profile, host.Deps{
		Monitor: perfMon,
		Coord:   g.coord,
		Cache:   resources,
		Scene:   scene,
		Loader:  g.loader,
		Store:   store,
		Log:     log,
	})

	// 5. Health
	g.healthMon = health.NewMonitor(g.coord, perfMon, resources, g.coord.Timers())
	g.healthServer = health.NewServer(g.healthMon, fmt.Sprintf(":%d", cfg.Port))

	return g, nil
}

// Start starts the guard and all its components.
func (g *Guard) Start(ctx context.Context) error {
	if g.cfg.ServerEnabled {
		go func() {
			if err := g.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				g.log.Error("Health server failed", "error", err)
			}
		}()
	}

	g.perf.Init(ctx)
	g.perf.Start(ctx)

	if err := g.loop.Start(ctx); err != nil {
		g.perf.Stop()
		return fmt.Errorf("failed to start host: %w", err)
	}

	g.log.Info("Runguard started", "port", g.cfg.Port, "server", g.cfg.ServerEnabled)
	return nil
}

// Stop gracefully stops all components.
func (g *Guard) Stop(ctx context.Context) error {
	g.log.Info("Stopping runguard...")
	var errs []error

	if err := g.loop.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	g.perf.Stop()

	if g.cfg.ServerEnabled {
		if err := g.healthServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop health server: %w", err))
		}
	}

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close kv store: %w", err))
	}

	return errors.Join(errs...)
}

// Terminated is closed once automatic recovery has given up. Reset arms a
// fresh channel, so callers should fetch it again after a reset.
func (g *Guard) Terminated() <-chan struct{} {
	g.termMu.Lock()
	defer g.termMu.Unlock()
	return g.terminated
}

func (g *Guard) markTerminated() {
	g.termMu.Lock()
	defer g.termMu.Unlock()
	if !g.termClosed {
		close(g.terminated)
		g.termClosed = true
	}
}

func (g *Guard) rearmTerminated() {
	g.termMu.Lock()
	defer g.termMu.Unlock()
	if g.termClosed {
		g.terminated = make(chan struct{})
		g.termClosed = false
	}
}

// Health returns the current health report.
func (g *Guard) Health(ctx context.Context) health.Report {
	return g.healthMon.CheckHealth(ctx)
}

// Stats returns the host frame counters.
func (g *Guard) Stats() host.Stats {
	return g.loop.Stats()
}

// Reset refills the recovery budget and restarts the host, the equivalent
// of a manual reload.
func (g *Guard) Reset() error {
	g.rearmTerminated()
	g.coord.Reset()
	g.coord.Timers().CancelAll()
	g.runtime.Cache.Clear()
	if err := g.loop.Reinit(); err != nil {
		g.coord.HandleFailure(err, recovery.LabelReinit)
		return err
	}
	return nil
}

func (g *Guard) persistIncident(n domain.Notice) {
	if err := kv.Set(context.Background(), g.store, LastIncidentKey, n); err != nil {
		g.log.Warn("Failed to persist incident", "incident", n.IncidentID, "error", err)
	}
}

// surfaces fans a terminal notice out to several surfaces.
type surfaces []recovery.Surface

func (s surfaces) ShowTerminal(n domain.Notice) {
	for _, surface := range s {
		surface.ShowTerminal(n)
	}
}

func backendName(b string) string {
	if b == "" {
		return kv.BackendMemory
	}
	return b
}
