package perf

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/vietddude/runguard/internal/core/domain"
)

// CapabilityProbe reports the static capabilities of the device.
type CapabilityProbe interface {
	Probe(ctx context.Context) (domain.Capability, error)
}

// SystemProbe reads logical processors and memory from the host OS.
type SystemProbe struct{}

// Probe implements CapabilityProbe.
func (SystemProbe) Probe(ctx context.Context) (domain.Capability, error) {
	cpus, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return domain.Capability{}, fmt.Errorf("failed to count cpus: %w", err)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return domain.Capability{}, fmt.Errorf("failed to read memory: %w", err)
	}

	return domain.Capability{
		LogicalCPUs:     cpus,
		TotalMemory:     vm.Total,
		AvailableMemory: vm.Available,
	}, nil
}

// Classify marks the capability as low-end when it falls under either threshold.
func Classify(c domain.Capability, cfg Config) domain.Capability {
	cfg = cfg.withDefaults()
	c.LowEnd = false
	c.Reason = ""

	switch {
	case c.LogicalCPUs > 0 && c.LogicalCPUs < cfg.MinLogicalCPUs:
		c.LowEnd = true
		c.Reason = fmt.Sprintf("%d logical cpus < %d", c.LogicalCPUs, cfg.MinLogicalCPUs)
	case c.TotalMemory > 0 && c.TotalMemory < cfg.MinMemoryBytes:
		c.LowEnd = true
		c.Reason = fmt.Sprintf("%d bytes memory < %d", c.TotalMemory, cfg.MinMemoryBytes)
	}
	return c
}
