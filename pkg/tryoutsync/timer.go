package tryoutsync

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Timer is the per-attempt countdown state machine. It ticks once per second
// while running, never goes below zero and fires its time-up callback exactly
// once per Reset.
//
// The callback read at tick time is always the latest one supplied: swapping
// the callback does not restart the interval, but the interval always invokes
// the current callback.
type Timer struct {
	mu       sync.Mutex
	timeLeft int
	running  bool
	fired    bool
	onTimeUp func()
	stop     chan struct{}
	interval time.Duration
}

// NewTimer creates a stopped timer with the given initial seconds.
func NewTimer(initialSeconds int) *Timer {
	if initialSeconds < 0 {
		initialSeconds = 0
	}
	return &Timer{
		timeLeft: initialSeconds,
		interval: time.Second,
	}
}

// SetOnTimeUp replaces the time-up callback without touching the interval.
func (t *Timer) SetOnTimeUp(fn func()) {
	t.mu.Lock()
	t.onTimeUp = fn
	t.mu.Unlock()
}

// TimeLeft returns the remaining seconds.
func (t *Timer) TimeLeft() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeLeft
}

// Running reports whether the timer is ticking.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// SetRunning starts or suspends ticking. Suspension keeps the current value;
// reactivation resumes from it.
func (t *Timer) SetRunning(run bool) {
	t.mu.Lock()
	if t.running == run {
		t.mu.Unlock()
		return
	}
	t.running = run

	if run {
		stop := make(chan struct{})
		t.stop = stop
		interval := t.interval
		t.mu.Unlock()
		go t.loop(stop, interval)
		return
	}

	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.mu.Unlock()
}

// Reset loads a new duration (e.g., the next subtest) and re-arms the
// time-up callback. Does not change the running state.
func (t *Timer) Reset(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	t.mu.Lock()
	t.timeLeft = seconds
	t.fired = false
	t.mu.Unlock()
}

func (t *Timer) loop(stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if done := t.step(); done {
				return
			}
		}
	}
}

// step performs one tick. Returns true when the countdown has finished and
// ticking should cease.
func (t *Timer) step() bool {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return true
	}
	if t.timeLeft > 0 {
		t.timeLeft--
	}
	if t.timeLeft > 0 {
		t.mu.Unlock()
		return false
	}

	// Already fired and never Reset: stop ticking instead of spinning.
	if t.fired {
		t.running = false
		t.stop = nil
		t.mu.Unlock()
		return true
	}

	t.fired = true
	t.running = false
	t.stop = nil
	fn := t.onTimeUp
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
	return true
}

// FormatSeconds renders a second count as zero-padded MM:SS. Negative or
// non-finite input renders as "00:00".
func FormatSeconds(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "00:00"
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
