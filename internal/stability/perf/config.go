package perf

import "time"

// Config holds thresholds for frame-rate based degradation.
type Config struct {
	// Sampling
	Window        time.Duration `yaml:"window"         env:"WINDOW"`         // Sample window length (default: 1s)
	CheckInterval time.Duration `yaml:"check_interval" env:"CHECK_INTERVAL"` // How often the sampler checks the window (default: Window/4)

	// FPS thresholds. Entering and leaving reduced mode use different bars.
	LowFPS     float64 `yaml:"low_fps"     env:"LOW_FPS"`     // Below this a sample counts as low (default: 30)
	GoodFPS    float64 `yaml:"good_fps"    env:"GOOD_FPS"`    // At or above this a sample is good (default: 50)
	RecoverFPS float64 `yaml:"recover_fps" env:"RECOVER_FPS"` // Strictly above this reduced mode ends (default: 55)

	// Consecutive low samples needed to enter reduced mode (default: 2)
	LowSamplesToDegrade int `yaml:"low_samples_to_degrade" env:"LOW_SAMPLES_TO_DEGRADE"`

	// Static capability pre-check
	CapabilityCheck bool   `yaml:"capability_check" env:"CAPABILITY_CHECK"`
	MinLogicalCPUs  int    `yaml:"min_logical_cpus" env:"MIN_LOGICAL_CPUS"` // Fewer than this = low-end (default: 4)
	MinMemoryBytes  uint64 `yaml:"min_memory_bytes" env:"MIN_MEMORY_BYTES"` // Less total memory than this = low-end (default: 4GiB)
}

// DefaultConfig returns sensible defaults for a 60Hz host.
func DefaultConfig() Config {
	return Config{
		Window:              1 * time.Second,
		CheckInterval:       250 * time.Millisecond,
		LowFPS:              30,
		GoodFPS:             50,
		RecoverFPS:          55,
		LowSamplesToDegrade: 2,
		CapabilityCheck:     true,
		MinLogicalCPUs:      4,
		MinMemoryBytes:      4 << 30,
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = c.Window / 4
	}
	if c.LowFPS <= 0 {
		c.LowFPS = def.LowFPS
	}
	if c.GoodFPS <= 0 {
		c.GoodFPS = def.GoodFPS
	}
	if c.RecoverFPS <= 0 {
		c.RecoverFPS = def.RecoverFPS
	}
	if c.LowSamplesToDegrade <= 0 {
		c.LowSamplesToDegrade = def.LowSamplesToDegrade
	}
	if c.MinLogicalCPUs <= 0 {
		c.MinLogicalCPUs = def.MinLogicalCPUs
	}
	if c.MinMemoryBytes == 0 {
		c.MinMemoryBytes = def.MinMemoryBytes
	}
	return c
}
