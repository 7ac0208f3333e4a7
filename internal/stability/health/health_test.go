package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vietddude/runguard/internal/core/domain"
	"github.com/vietddude/runguard/internal/stability/cache"
)

// =============================================================================
// Stubs
// =============================================================================

type stubRecovery struct {
	state domain.RecoveryState
}

func (s *stubRecovery) State() domain.RecoveryState { return s.state }

type stubPerf struct {
	mode domain.DegradationMode
	fps  float64
}

func (s *stubPerf) Mode() domain.DegradationMode { return s.mode }
func (s *stubPerf) Snapshot() domain.PerformanceSample {
	return domain.PerformanceSample{LastFPS: s.fps, SamplesCollected: 4}
}
func (s *stubPerf) Quality() string { return "good" }

type stubCache struct{ entries int }

func (s *stubCache) Stats() cache.Stats { return cache.Stats{Entries: s.entries, Hits: 9} }

type stubTimers struct{ n int }

func (s *stubTimers) Len() int { return s.n }

// =============================================================================
// Tests
// =============================================================================

func TestCheckHealth_Status(t *testing.T) {
	tests := []struct {
		name   string
		phase  domain.RecoveryPhase
		mode   domain.DegradationMode
		status SystemStatus
	}{
		{"healthy nominal", domain.PhaseHealthy, domain.ModeNominal, StatusHealthy},
		{"reduced mode", domain.PhaseHealthy, domain.ModeReduced, StatusDegraded},
		{"recovering", domain.PhaseRecovering, domain.ModeNominal, StatusDegraded},
		{"terminal", domain.PhaseTerminal, domain.ModeNominal, StatusCritical},
		{"terminal while reduced", domain.PhaseTerminal, domain.ModeReduced, StatusCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(
				&stubRecovery{state: domain.RecoveryState{Phase: tt.phase, MaxRetries: 3}},
				&stubPerf{mode: tt.mode, fps: 58},
				&stubCache{entries: 2},
				&stubTimers{n: 1},
			)
			report := m.CheckHealth(context.Background())
			if report.SystemStatus != tt.status {
				t.Errorf("expected %s, got %s", tt.status, report.SystemStatus)
			}
		})
	}
}

func TestCheckHealth_Details(t *testing.T) {
	m := NewMonitor(
		&stubRecovery{state: domain.RecoveryState{Phase: domain.PhaseRecovering, RetryCount: 2, MaxRetries: 3, LastLabel: "render"}},
		&stubPerf{mode: domain.ModeReduced, fps: 24},
		&stubCache{entries: 5},
		&stubTimers{n: 3},
	)
	report := m.CheckHealth(context.Background())

	if report.Performance.FPS != 24 || report.Performance.Mode != string(domain.ModeReduced) {
		t.Errorf("unexpected performance section: %+v", report.Performance)
	}
	if report.Recovery.RetryCount != 2 || report.Recovery.LastLabel != "render" {
		t.Errorf("unexpected recovery section: %+v", report.Recovery)
	}
	if report.Cache.Entries != 5 || report.Cache.Hits != 9 {
		t.Errorf("unexpected cache section: %+v", report.Cache)
	}
	if report.ActiveTimers != 3 {
		t.Errorf("expected 3 timers, got %d", report.ActiveTimers)
	}
}

func TestCheckHealth_NilSources(t *testing.T) {
	m := NewMonitor(nil, nil, nil, nil)
	if got := m.CheckHealth(context.Background()).SystemStatus; got != StatusHealthy {
		t.Errorf("expected healthy with no sources, got %s", got)
	}
}

func TestServer_Endpoints(t *testing.T) {
	rec := &stubRecovery{state: domain.RecoveryState{Phase: domain.PhaseHealthy}}
	s := NewServer(NewMonitor(rec, &stubPerf{mode: domain.ModeNominal, fps: 60}, nil, nil), ":0")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("expected 200 healthy, got %d %v", resp.StatusCode, body)
	}

	rec.state.Phase = domain.PhaseTerminal
	resp, err = http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when terminal, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/health/detailed")
	if err != nil {
		t.Fatalf("GET /health/detailed failed: %v", err)
	}
	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	resp.Body.Close()
	if report.SystemStatus != StatusCritical || report.Performance.FPS != 60 {
		t.Errorf("unexpected detailed report: %+v", report)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /metrics, got %d", resp.StatusCode)
	}
}
