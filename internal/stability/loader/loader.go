// Package loader wraps fallible resource acquisition with bounded,
// strictly sequential retries and linear backoff.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vietddude/runguard/internal/core/domain"
	"github.com/vietddude/runguard/internal/stability/metrics"
)

// ErrExhaustedRetries is wrapped by LoadErr when every attempt failed.
var ErrExhaustedRetries = errors.New(string(domain.ReasonExhaustedRetries))

// Fetcher performs one real acquisition of the resource at uri.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) error
}

// FetchFunc adapts a plain function to Fetcher.
type FetchFunc func(ctx context.Context, uri string) error

// Fetch calls f(ctx, uri).
func (f FetchFunc) Fetch(ctx context.Context, uri string) error {
	return f(ctx, uri)
}

// Config defines retry behavior.
type Config struct {
	MaxAttempts    int           `yaml:"max_attempts"    env:"MAX_ATTEMPTS"`
	BaseDelay      time.Duration `yaml:"base_delay"      env:"BASE_DELAY"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout" env:"ATTEMPT_TIMEOUT"`
}

// DefaultConfig provides sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      1 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

// LoadError is returned by LoadErr on failure.
type LoadError struct {
	URI      string
	Reason   domain.FailureReason
	Attempts int
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s after %d attempts: %v", e.URI, e.Reason, e.Attempts, e.Err)
}

// Unwrap exposes the sentinel for the failure reason and the last underlying error.
func (e *LoadError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Reason == domain.ReasonExhaustedRetries {
		errs = append(errs, ErrExhaustedRetries)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Loader performs resilient loads.
type Loader struct {
	fetcher   Fetcher
	cfg       Config
	log       *slog.Logger
	onAttempt func(domain.LoadAttempt)
}

// New creates a loader. Zero or negative config fields fall back to
// DefaultConfig, so retries are always spaced.
func New(fetcher Fetcher, cfg Config, log *slog.Logger) *Loader {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loader{
		fetcher: fetcher,
		cfg:     cfg,
		log:     log.With("component", "loader"),
	}
}

// OnAttempt registers a callback invoked after every attempt.
// Must be set before the loader is used.
func (l *Loader) OnAttempt(fn func(domain.LoadAttempt)) {
	l.onAttempt = fn
}

// Config returns the effective configuration.
func (l *Loader) Config() Config {
	return l.cfg
}

// Load acquires uri with the configured attempt count.
func (l *Loader) Load(ctx context.Context, uri string) domain.LoadResult {
	return l.LoadWithAttempts(ctx, uri, l.cfg.MaxAttempts)
}

// LoadWithAttempts acquires uri, trying at most maxAttempts times.
// The delay before attempt k+1 is BaseDelay*k. Attempts never overlap:
// each one resolves (success, failure or its own timeout) before the next starts.
func (l *Loader) LoadWithAttempts(ctx context.Context, uri string, maxAttempts int) domain.LoadResult {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if err := ctx.Err(); err != nil {
		metrics.LoadResults.WithLabelValues(string(domain.ReasonCanceled)).Inc()
		return domain.LoadResult{URI: uri, Reason: domain.ReasonCanceled, Err: err}
	}
	start := time.Now()

	var (
		attempt   int
		nextDelay time.Duration
		lastErr   error
	)

	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		if attempt >= maxAttempts {
			return 0, true
		}
		nextDelay = l.delay(attempt)
		return nextDelay, false
	})

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		delay := nextDelay

		attemptStart := time.Now()
		err := l.attempt(ctx, uri)
		elapsed := time.Since(attemptStart)

		l.record(domain.LoadAttempt{
			URI:     uri,
			Ordinal: attempt,
			Delay:   delay,
			Err:     err,
			Elapsed: elapsed,
		})

		if err == nil {
			return nil
		}
		lastErr = err
		l.log.Debug("Load attempt failed",
			"uri", uri,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err,
		)
		// Parent cancellation is not worth retrying
		if ctx.Err() != nil {
			return err
		}
		return retry.RetryableError(err)
	})

	metrics.LoadLatency.Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.LoadResults.WithLabelValues("ok").Inc()
		return domain.LoadResult{URI: uri, OK: true, Attempts: attempt}
	}

	reason := domain.ReasonExhaustedRetries
	if ctx.Err() != nil {
		reason = domain.ReasonCanceled
	}
	if lastErr == nil {
		lastErr = err
	}
	metrics.LoadResults.WithLabelValues(string(reason)).Inc()
	l.log.Warn("Failed to load resource",
		"uri", uri,
		"reason", reason,
		"attempts", attempt,
		"error", lastErr,
	)

	return domain.LoadResult{
		URI:      uri,
		OK:       false,
		Reason:   reason,
		Attempts: attempt,
		Err:      lastErr,
	}
}

// LoadOK is the boolean calling convention.
func (l *Loader) LoadOK(ctx context.Context, uri string) bool {
	return l.Load(ctx, uri).OK
}

// LoadErr is the error calling convention: nil on success, *LoadError otherwise.
func (l *Loader) LoadErr(ctx context.Context, uri string) error {
	res := l.Load(ctx, uri)
	if res.OK {
		return nil
	}
	return &LoadError{
		URI:      res.URI,
		Reason:   res.Reason,
		Attempts: res.Attempts,
		Err:      res.Err,
	}
}

// Preload loads every uri in order and returns the results in the same order.
// It stops early only if ctx is canceled; remaining entries are reported as canceled.
func (l *Loader) Preload(ctx context.Context, uris []string) []domain.LoadResult {
	results := make([]domain.LoadResult, 0, len(uris))
	for _, uri := range uris {
		if ctx.Err() != nil {
			results = append(results, domain.LoadResult{
				URI:    uri,
				Reason: domain.ReasonCanceled,
				Err:    ctx.Err(),
			})
			continue
		}
		results = append(results, l.Load(ctx, uri))
	}
	return results
}

// attempt runs one fetch raced against the per-attempt timeout.
func (l *Loader) attempt(ctx context.Context, uri string) error {
	attemptCtx, cancel := context.WithTimeout(ctx, l.cfg.AttemptTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("fetch panicked: %v", r)
			}
		}()
		done <- l.fetcher.Fetch(attemptCtx, uri)
	}()

	select {
	case err := <-done:
		if err == nil {
			metrics.LoadAttempts.WithLabelValues("success").Inc()
			return nil
		}
		metrics.LoadAttempts.WithLabelValues("failure").Inc()
		return err
	case <-attemptCtx.Done():
		metrics.LoadAttempts.WithLabelValues("failure").Inc()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("attempt timed out after %s: %w", l.cfg.AttemptTimeout, attemptCtx.Err())
	}
}

// delay returns the wait before the attempt following the given one (1-based).
func (l *Loader) delay(completed int) time.Duration {
	return l.cfg.BaseDelay * time.Duration(completed)
}

func (l *Loader) record(a domain.LoadAttempt) {
	if l.onAttempt != nil {
		l.onAttempt(a)
	}
}
