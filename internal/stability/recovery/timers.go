package recovery

import (
	"sync"
	"time"
)

// TimerID identifies a registered timer.
type TimerID uint64

type timerEntry struct {
	stopper  Stopper
	interval time.Duration // zero for one-shot timers
}

// Timers is the registry of every timer and interval the host schedules.
// Recovery cancels them by walking the registry.
type Timers struct {
	sched Scheduler

	mu     sync.Mutex
	nextID TimerID
	active map[TimerID]*timerEntry
}

// NewTimers creates an empty registry on top of sched.
func NewTimers(sched Scheduler) *Timers {
	if sched == nil {
		sched = RealScheduler{}
	}
	return &Timers{
		sched:  sched,
		active: make(map[TimerID]*timerEntry),
	}
}

// After runs fn once after d unless canceled first.
func (t *Timers) After(d time.Duration, fn func()) TimerID {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID
	entry := &timerEntry{}
	t.active[id] = entry

	entry.stopper = t.sched.AfterFunc(d, func() {
		t.mu.Lock()
		if _, ok := t.active[id]; !ok {
			t.mu.Unlock()
			return
		}
		delete(t.active, id)
		t.mu.Unlock()
		fn()
	})
	return id
}

// Every runs fn every d until canceled. The next run is armed before fn
// executes, so a slow fn does not stretch the period.
func (t *Timers) Every(d time.Duration, fn func()) TimerID {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID
	entry := &timerEntry{interval: d}
	t.active[id] = entry

	var fire func()
	fire = func() {
		t.mu.Lock()
		e, ok := t.active[id]
		if !ok {
			t.mu.Unlock()
			return
		}
		e.stopper = t.sched.AfterFunc(e.interval, fire)
		t.mu.Unlock()
		fn()
	}
	entry.stopper = t.sched.AfterFunc(d, fire)
	return id
}

// Cancel stops a single timer. It reports whether the timer was still registered.
func (t *Timers) Cancel(id TimerID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.active[id]
	if !ok {
		return false
	}
	e.stopper.Stop()
	delete(t.active, id)
	return true
}

// CancelAll stops every registered timer and returns how many were canceled.
func (t *Timers) CancelAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.active)
	for id, e := range t.active {
		e.stopper.Stop()
		delete(t.active, id)
	}
	return n
}

// Len returns the number of registered timers.
func (t *Timers) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}
