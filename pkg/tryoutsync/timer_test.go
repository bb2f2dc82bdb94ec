package tryoutsync

import (
	"math"
	"testing"
)

// armed returns a running timer without launching the ticking goroutine, so
// tests drive ticks deterministically through step().
func armed(seconds int) *Timer {
	tm := NewTimer(seconds)
	tm.mu.Lock()
	tm.running = true
	tm.mu.Unlock()
	return tm
}

func TestTimerCountdown(t *testing.T) {
	fired := 0
	tm := armed(5)
	tm.SetOnTimeUp(func() { fired++ })

	want := []int{4, 3, 2, 1, 0}
	for i, w := range want {
		tm.step()
		if got := tm.TimeLeft(); got != w {
			t.Errorf("after tick %d: TimeLeft = %d, want %d", i+1, got, w)
		}
	}

	if fired != 1 {
		t.Errorf("onTimeUp fired %d times, want 1", fired)
	}
	if tm.Running() {
		t.Error("timer still running after expiry")
	}

	// Extra ticks must neither go negative nor re-fire.
	tm.step()
	tm.step()
	if got := tm.TimeLeft(); got != 0 {
		t.Errorf("TimeLeft after extra ticks = %d, want 0", got)
	}
	if fired != 1 {
		t.Errorf("onTimeUp re-fired, total %d", fired)
	}
}

func TestTimerLatestCallbackWins(t *testing.T) {
	var calls []string
	tm := armed(3)
	tm.SetOnTimeUp(func() { calls = append(calls, "first") })

	tm.step()
	tm.step()
	// Swap mid-countdown; the expiry tick must see the replacement.
	tm.SetOnTimeUp(func() { calls = append(calls, "second") })
	tm.step()

	if len(calls) != 1 || calls[0] != "second" {
		t.Errorf("calls = %v, want [second]", calls)
	}
}

func TestTimerResetRearms(t *testing.T) {
	fired := 0
	tm := armed(1)
	tm.SetOnTimeUp(func() { fired++ })

	tm.step()
	if fired != 1 {
		t.Fatalf("fired = %d after first expiry, want 1", fired)
	}

	tm.Reset(2)
	if got := tm.TimeLeft(); got != 2 {
		t.Errorf("TimeLeft after Reset = %d, want 2", got)
	}

	tm.mu.Lock()
	tm.running = true
	tm.mu.Unlock()

	tm.step()
	tm.step()
	if fired != 2 {
		t.Errorf("fired = %d after second expiry, want 2", fired)
	}
}

func TestTimerRestartAfterExpiryStopsTicking(t *testing.T) {
	fired := 0
	tm := armed(1)
	tm.SetOnTimeUp(func() { fired++ })

	tm.step()
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}

	// Restarted without Reset: the tick loop must stop itself instead of
	// spinning as a no-op, and the callback must not re-fire.
	tm.mu.Lock()
	tm.running = true
	tm.mu.Unlock()

	if done := tm.step(); !done {
		t.Error("step = false on an expired timer, want true (loop exit)")
	}
	if tm.Running() {
		t.Error("timer still running after expired restart")
	}
	if fired != 1 {
		t.Errorf("onTimeUp re-fired, total %d", fired)
	}
}

func TestTimerNegativeInitial(t *testing.T) {
	tm := NewTimer(-30)
	if got := tm.TimeLeft(); got != 0 {
		t.Errorf("TimeLeft = %d, want 0", got)
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		want    string
	}{
		{"two minutes five", 125, "02:05"},
		{"zero", 0, "00:00"},
		{"under a minute", 59, "00:59"},
		{"whole minute", 60, "01:00"},
		{"over an hour", 3725, "62:05"},
		{"fractional truncates", 90.9, "01:30"},
		{"negative", -5, "00:00"},
		{"nan", math.NaN(), "00:00"},
		{"positive infinity", math.Inf(1), "00:00"},
		{"negative infinity", math.Inf(-1), "00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatSeconds(tt.seconds); got != tt.want {
				t.Errorf("FormatSeconds(%v) = %q, want %q", tt.seconds, got, tt.want)
			}
		})
	}
}
