package perf

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/runguard/internal/core/domain"
	"github.com/vietddude/runguard/internal/core/shared"
)

// fakeClock is advanced manually by tests
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// stubProbe returns a fixed capability
type stubProbe struct {
	capability domain.Capability
	err        error
	calls      int
}

func (p *stubProbe) Probe(ctx context.Context) (domain.Capability, error) {
	p.calls++
	return p.capability, p.err
}

func newTestMonitor(t *testing.T) (*Monitor, *fakeClock, *shared.ModeFlag) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	flag := &shared.ModeFlag{}
	m := NewMonitor(DefaultConfig(), flag, &stubProbe{}, nil)
	m.now = clock.now
	m.windowStart = clock.now()
	return m, clock, flag
}

// feed renders `fps` frames over exactly one window and closes it
func feed(m *Monitor, clock *fakeClock, fps int) {
	for i := 0; i < fps; i++ {
		m.Tick()
	}
	clock.advance(time.Second)
	m.sample(clock.now())
}

func TestMonitor_SingleDipDoesNotDegrade(t *testing.T) {
	m, clock, flag := newTestMonitor(t)

	sequences := [][]int{
		{20},
		{20, 40},
		{20, 60, 25},
		{10, 30, 10, 45, 29},
	}

	for _, seq := range sequences {
		for _, fps := range seq {
			feed(m, clock, fps)
		}
		if m.IsReducedMode() {
			t.Errorf("sequence %v: entered reduced mode without two consecutive low samples", seq)
		}
		if flag.IsReduced() {
			t.Errorf("sequence %v: shared flag set unexpectedly", seq)
		}
		feed(m, clock, 60) // reset streak between cases
	}
}

func TestMonitor_TwoConsecutiveLowSamplesDegrade(t *testing.T) {
	m, clock, flag := newTestMonitor(t)

	feed(m, clock, 25)
	if m.IsReducedMode() {
		t.Fatal("degraded after one low sample")
	}
	feed(m, clock, 29)
	if !m.IsReducedMode() {
		t.Fatal("expected reduced mode after two consecutive low samples")
	}
	if !flag.IsReduced() {
		t.Error("expected shared flag to be set")
	}
}

func TestMonitor_ExactlyLowThresholdIsNotLow(t *testing.T) {
	m, clock, _ := newTestMonitor(t)

	feed(m, clock, 30)
	feed(m, clock, 30)
	if m.IsReducedMode() {
		t.Error("30 fps should not count as a low sample")
	}
}

func TestMonitor_RecoveryHysteresis(t *testing.T) {
	tests := []struct {
		name       string
		fps        int
		wantReduce bool
	}{
		{name: "at good threshold", fps: 50, wantReduce: true},
		{name: "between good and recover", fps: 53, wantReduce: true},
		{name: "exactly recover threshold", fps: 55, wantReduce: true},
		{name: "above recover threshold", fps: 56, wantReduce: false},
		{name: "full rate", fps: 60, wantReduce: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, clock, flag := newTestMonitor(t)
			feed(m, clock, 10)
			feed(m, clock, 10)
			if !m.IsReducedMode() {
				t.Fatal("setup: expected reduced mode")
			}

			feed(m, clock, tt.fps)
			if got := m.IsReducedMode(); got != tt.wantReduce {
				t.Errorf("after %d fps: reduced = %v, want %v", tt.fps, got, tt.wantReduce)
			}
			if flag.IsReduced() != tt.wantReduce {
				t.Errorf("shared flag out of sync with monitor")
			}
		})
	}
}

func TestMonitor_ShortWindowIsIgnored(t *testing.T) {
	m, clock, _ := newTestMonitor(t)

	for i := 0; i < 5; i++ {
		m.Tick()
	}
	clock.advance(500 * time.Millisecond)
	m.sample(clock.now())

	snap := m.Snapshot()
	if snap.SamplesCollected != 0 {
		t.Errorf("expected no sample before window elapsed, got %d", snap.SamplesCollected)
	}
	if snap.Frames != 5 {
		t.Errorf("expected frames to keep accumulating, got %d", snap.Frames)
	}
}

func TestMonitor_FPSUsesElapsedTime(t *testing.T) {
	m, clock, _ := newTestMonitor(t)

	for i := 0; i < 40; i++ {
		m.Tick()
	}
	clock.advance(2 * time.Second)
	m.sample(clock.now())

	snap := m.Snapshot()
	if snap.LastFPS != 20 {
		t.Errorf("expected 20 fps over 2s, got %v", snap.LastFPS)
	}
	if snap.Frames != 0 {
		t.Errorf("expected frame counter reset, got %d", snap.Frames)
	}
	if !snap.WindowStart.Equal(clock.now()) {
		t.Errorf("expected window start reset to now")
	}
}

func TestMonitor_ShouldSkipFrame(t *testing.T) {
	m, clock, _ := newTestMonitor(t)

	// Nominal: never skip
	for i := 0; i < 6; i++ {
		if m.ShouldSkipFrame() {
			t.Fatalf("nominal call %d: expected false", i+1)
		}
	}

	feed(m, clock, 5)
	feed(m, clock, 5)
	if !m.IsReducedMode() {
		t.Fatal("setup: expected reduced mode")
	}

	for i := 1; i <= 8; i++ {
		want := i%2 == 0
		if got := m.ShouldSkipFrame(); got != want {
			t.Errorf("reduced call %d: got %v, want %v", i, got, want)
		}
	}

	// Back to nominal
	feed(m, clock, 60)
	for i := 0; i < 4; i++ {
		if m.ShouldSkipFrame() {
			t.Fatalf("after recovery call %d: expected false", i+1)
		}
	}

	// Re-entering reduced mode restarts the cadence
	feed(m, clock, 5)
	feed(m, clock, 5)
	if m.ShouldSkipFrame() {
		t.Error("first call after re-entering reduced mode should not skip")
	}
	if !m.ShouldSkipFrame() {
		t.Error("second call after re-entering reduced mode should skip")
	}
}

func TestMonitor_TransitionCallback(t *testing.T) {
	m, clock, _ := newTestMonitor(t)

	var transitions []domain.ModeTransition
	m.SetTransitionCallback(func(tr domain.ModeTransition) {
		transitions = append(transitions, tr)
	})

	feed(m, clock, 10)
	feed(m, clock, 10)
	feed(m, clock, 10) // already reduced, no new transition
	feed(m, clock, 60)

	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(transitions))
	}
	if transitions[0].To != domain.ModeReduced || transitions[1].To != domain.ModeNominal {
		t.Errorf("unexpected transitions: %+v", transitions)
	}
}

func TestMonitor_InitLowEndForcesReduced(t *testing.T) {
	flag := &shared.ModeFlag{}
	probe := &stubProbe{capability: domain.Capability{LogicalCPUs: 2, TotalMemory: 8 << 30}}
	m := NewMonitor(DefaultConfig(), flag, probe, nil)

	c := m.Init(context.Background())
	if !c.LowEnd {
		t.Fatal("expected low-end classification")
	}
	if !m.IsReducedMode() || !flag.IsReduced() {
		t.Error("expected reduced mode before any sample")
	}

	// Idempotent
	m.Init(context.Background())
	if probe.calls != 1 {
		t.Errorf("expected 1 probe call, got %d", probe.calls)
	}
}

func TestMonitor_InitCapableDeviceStaysNominal(t *testing.T) {
	probe := &stubProbe{capability: domain.Capability{LogicalCPUs: 8, TotalMemory: 16 << 30}}
	m := NewMonitor(DefaultConfig(), nil, probe, nil)

	if c := m.Init(context.Background()); c.LowEnd {
		t.Errorf("unexpected low-end: %s", c.Reason)
	}
	if m.IsReducedMode() {
		t.Error("expected nominal mode")
	}
}

func TestMonitor_InitProbeErrorStaysNominal(t *testing.T) {
	probe := &stubProbe{err: errors.New("no /proc")}
	m := NewMonitor(DefaultConfig(), nil, probe, nil)

	m.Init(context.Background())
	if m.IsReducedMode() {
		t.Error("probe failure must not force reduced mode")
	}
	if _, ok := m.Capability(); !ok {
		t.Error("expected capability to be recorded after Init")
	}
}

func TestClassify(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name   string
		cap    domain.Capability
		lowEnd bool
	}{
		{"capable", domain.Capability{LogicalCPUs: 8, TotalMemory: 16 << 30}, false},
		{"few cpus", domain.Capability{LogicalCPUs: 2, TotalMemory: 16 << 30}, true},
		{"little memory", domain.Capability{LogicalCPUs: 8, TotalMemory: 2 << 30}, true},
		{"unknown values", domain.Capability{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.cap, cfg)
			if got.LowEnd != tt.lowEnd {
				t.Errorf("Classify(%+v).LowEnd = %v, want %v", tt.cap, got.LowEnd, tt.lowEnd)
			}
		})
	}
}

func TestMonitor_StartStopIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window = 20 * time.Millisecond
	cfg.CheckInterval = 5 * time.Millisecond
	m := NewMonitor(cfg, nil, &stubProbe{}, nil)

	ctx := context.Background()
	m.Start(ctx)
	m.Start(ctx)
	if !m.Running() {
		t.Fatal("expected running")
	}

	// No frames at all: two empty windows degrade the host
	deadline := time.Now().Add(2 * time.Second)
	for !m.IsReducedMode() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !m.IsReducedMode() {
		t.Fatal("expected sampler to degrade a stalled host")
	}

	m.Stop()
	m.Stop()
	if m.Running() {
		t.Fatal("expected stopped")
	}

	// After stop no further transitions happen, even with a perfect frame rate
	before := m.Snapshot().SamplesCollected
	for i := 0; i < 1000; i++ {
		m.Tick()
	}
	time.Sleep(60 * time.Millisecond)
	if after := m.Snapshot().SamplesCollected; after != before {
		t.Errorf("sampling continued after stop: %d -> %d", before, after)
	}
	if !m.IsReducedMode() {
		t.Error("mode changed after stop")
	}
}
