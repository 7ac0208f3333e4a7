package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesPerSecond is the FPS measured by the last completed sample window
	FramesPerSecond = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runguard_fps",
			Help: "Frames per second measured over the last sample window",
		},
	)

	// DegradationMode is 1 while reduced mode is active, 0 otherwise
	DegradationMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "runguard_degradation_mode",
			Help: "Current degradation mode (0 = nominal, 1 = reduced)",
		},
	)

	// ModeTransitions counts degradation mode changes by target mode
	ModeTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runguard_mode_transitions_total",
			Help: "Total number of degradation mode transitions",
		},
		[]string{"to"},
	)

	// CacheLookups counts resource cache lookups by outcome
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runguard_cache_lookups_total",
			Help: "Total number of resource cache lookups",
		},
		[]string{"result"}, // hit, miss, absent
	)

	// LoadAttempts counts individual resilient load attempts
	LoadAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runguard_load_attempts_total",
			Help: "Total number of resource load attempts",
		},
		[]string{"result"}, // success, failure
	)

	// LoadResults counts completed resilient loads
	LoadResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runguard_load_results_total",
			Help: "Total number of completed resource loads",
		},
		[]string{"outcome"}, // ok, exhausted-retries, canceled
	)

	// LoadLatency tracks the wall time of a full resilient load, retries included
	LoadLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "runguard_load_duration_seconds",
			Help:    "Resilient load duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Failures counts failures reported to the recovery coordinator
	Failures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runguard_failures_total",
			Help: "Total number of runtime failures reported",
		},
		[]string{"outcome"}, // scheduled, terminal, ignored
	)

	// RecoveryAttempts counts executed recovery attempts by result
	RecoveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runguard_recovery_attempts_total",
			Help: "Total number of automatic recovery attempts",
		},
		[]string{"result"}, // success, failure
	)

	// RecoveryPhase exposes the coordinator phase as a labelled 0/1 gauge
	RecoveryPhase = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "runguard_recovery_phase",
			Help: "Current recovery phase (1 for the active phase)",
		},
		[]string{"phase"},
	)

	// KVDecodeFailures counts persisted values that fell back to their default
	KVDecodeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runguard_kv_fallbacks_total",
			Help: "Total number of persisted reads that fell back to the default value",
		},
		[]string{"reason"}, // backend, malformed
	)
)
