// Package shared holds the process-wide runtime context that the stability
// components share. It is constructed once by the host and passed explicitly.
package shared

import (
	"sync/atomic"

	"github.com/vietddude/runguard/internal/core/domain"
	"github.com/vietddude/runguard/internal/stability/cache"
)

// ModeReader is the read-only view of the degradation flag.
type ModeReader interface {
	Mode() domain.DegradationMode
	IsReduced() bool
}

// ModeFlag is the process-wide degradation flag.
// Any component may read it; only perf.Monitor writes it.
type ModeFlag struct {
	reduced atomic.Bool
}

// Mode returns the current degradation mode.
func (f *ModeFlag) Mode() domain.DegradationMode {
	if f.reduced.Load() {
		return domain.ModeReduced
	}
	return domain.ModeNominal
}

// IsReduced reports whether reduced mode is active.
func (f *ModeFlag) IsReduced() bool {
	return f.reduced.Load()
}

// Set stores the new mode and returns the previous one.
func (f *ModeFlag) Set(m domain.DegradationMode) domain.DegradationMode {
	if f.reduced.Swap(m == domain.ModeReduced) {
		return domain.ModeReduced
	}
	return domain.ModeNominal
}

// Runtime bundles the shared state.
//
// Writers:
//   - Mode: perf.Monitor only.
//   - Cache: populated by anyone, cleared only by recovery.Coordinator.
type Runtime struct {
	Mode  *ModeFlag
	Cache *cache.Cache
}

// NewRuntime creates a runtime context around the given resource cache.
func NewRuntime(c *cache.Cache) *Runtime {
	return &Runtime{
		Mode:  &ModeFlag{},
		Cache: c,
	}
}
