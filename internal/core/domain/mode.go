package domain

import "time"

// DegradationMode tells the host how much per-frame work it should do.
type DegradationMode string

const (
	ModeNominal DegradationMode = "nominal"
	ModeReduced DegradationMode = "reduced"
)

// IsReduced reports whether the host should shed work.
func (m DegradationMode) IsReduced() bool {
	return m == ModeReduced
}

// ModeTransition records a change of degradation mode.
type ModeTransition struct {
	From      DegradationMode
	To        DegradationMode
	Reason    string
	FPS       float64
	Timestamp time.Time
}

// PerformanceSample is the rolling frame-rate measurement window.
type PerformanceSample struct {
	Frames           int       `json:"frames"`
	WindowStart      time.Time `json:"window_start"`
	ConsecutiveLow   int       `json:"consecutive_low"`
	LastFPS          float64   `json:"last_fps"`
	SamplesCollected int64     `json:"samples_collected"`
}

// Capability is the result of the static device check.
type Capability struct {
	LogicalCPUs     int    `json:"logical_cpus"`
	TotalMemory     uint64 `json:"total_memory"`
	AvailableMemory uint64 `json:"available_memory"`
	LowEnd          bool   `json:"low_end"`
	Reason          string `json:"reason,omitempty"`
}
