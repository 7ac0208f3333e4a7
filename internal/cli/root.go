package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/runguard/internal/control"
	"github.com/vietddude/runguard/internal/core/config"
	"github.com/vietddude/stylelog"
)

var (
	cfgPath  string
	isDebug  bool
	profile  string
	duration time.Duration
	port     int
)

var rootCmd = &cobra.Command{
	Use:   "runguard",
	Short: "Runtime resilience layer for frame-driven hosts",
	Long: `Runguard runs a frame-driven host under adaptive degradation, resilient
resource loading and bounded failure recovery.`,
	Run: runGuard,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulated host under the stability layer (default command)",
	Run:   runGuard,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (defaults only when empty)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	for _, cmd := range []*cobra.Command{rootCmd, runCmd} {
		cmd.Flags().StringVar(&profile, "profile", "", "builtin frame profile (overrides config)")
		cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 = until signal)")
		cmd.Flags().IntVar(&port, "port", 0, "health server port (overrides config)")
	}
	rootCmd.AddCommand(runCmd)
}

// loadConfig loads .env and the config file, then initializes logging.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg
}

func runGuard(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	if profile != "" {
		cfg.Host.Profile = profile
		cfg.Host.Phases = nil
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	// Transform config
	controlCfg := control.Config{
		Port:          cfg.Server.Port,
		ServerEnabled: cfg.Server.Enabled,
		Perf:          cfg.Perf,
		Loader:        cfg.Loader,
		Recovery:      cfg.Recovery,
		KV:            cfg.KV,
		Host:          cfg.Host,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := control.NewGuard(ctx, controlCfg)
	if err != nil {
		slog.Error("Failed to initialize runguard", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start runguard", "error", err)
		os.Exit(1)
	}

	slog.Info("Runguard started", "config", cfgPath, "profile", cfg.Host.Profile)

	var timeout <-chan time.Time
	if duration > 0 {
		timeout = time.After(duration)
	}

	exitCode := 0
	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
	case <-timeout:
		slog.Info("Run duration elapsed, shutting down...", "duration", duration)
	case <-app.Terminated():
		slog.Error("Recovery budget exhausted, shutting down")
		exitCode = 2
	}

	stats := app.Stats()
	slog.Info("Host summary",
		"frames", stats.Frames,
		"rendered", stats.Rendered,
		"skipped", stats.Skipped,
		"dropped", stats.Dropped,
		"errors", stats.Errors,
		"reinits", stats.Reinits,
	)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
