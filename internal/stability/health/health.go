// Package health reports the runtime stability state over HTTP.
package health

import "time"

// SystemStatus represents the overall health state of the runtime.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// PerformanceHealth describes the frame cadence and degradation mode.
type PerformanceHealth struct {
	Mode           string  `json:"mode"`
	FPS            float64 `json:"fps"`
	Quality        string  `json:"quality"`
	ConsecutiveLow int     `json:"consecutive_low"`
	Samples        int64   `json:"samples"`
}

// RecoveryHealth describes the failure recovery budget.
type RecoveryHealth struct {
	Phase      string    `json:"phase"`
	RetryCount int       `json:"retry_count"`
	MaxRetries int       `json:"max_retries"`
	LastLabel  string    `json:"last_label,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	IncidentID string    `json:"incident_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CacheHealth describes the resource cache.
type CacheHealth struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Absent  int64 `json:"absent"`
	Clears  int64 `json:"clears"`
}

// Report contains the full runtime health report.
type Report struct {
	SystemStatus SystemStatus      `json:"system_status"`
	Performance  PerformanceHealth `json:"performance"`
	Recovery     RecoveryHealth    `json:"recovery"`
	Cache        CacheHealth       `json:"cache"`
	ActiveTimers int               `json:"active_timers"`
	CheckedAt    time.Time         `json:"checked_at"`
}
