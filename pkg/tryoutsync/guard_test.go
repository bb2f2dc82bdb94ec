package tryoutsync

import "testing"

// fakeHistory records pushes like a browser history stack.
type fakeHistory struct {
	entries []string
}

func (h *fakeHistory) Len() int             { return len(h.entries) }
func (h *fakeHistory) Current() string      { return h.entries[len(h.entries)-1] }
func (h *fakeHistory) Push(location string) { h.entries = append(h.entries, location) }

type fakeConfirmer struct {
	allow bool
	asked int
}

func (c *fakeConfirmer) ConfirmLeave() bool {
	c.asked++
	return c.allow
}

func TestGuardInterceptsBack(t *testing.T) {
	hist := &fakeHistory{entries: []string{"/exam"}}
	backs := 0
	g := NewGuard(hist, nil, func() { backs++ })

	g.Enable()
	seeded := hist.Len()
	if seeded != 2 {
		t.Fatalf("history length after Enable = %d, want 2", seeded)
	}

	if !g.HandleBack() {
		t.Error("HandleBack = false while enabled, want true")
	}
	if backs != 1 {
		t.Errorf("onBack calls = %d, want 1", backs)
	}
	// The consumed entry is replaced so the next back can be caught too.
	if hist.Len() < seeded {
		t.Errorf("history length shrank to %d", hist.Len())
	}

	if !g.HandleBack() {
		t.Error("second HandleBack = false, want true")
	}
	if backs != 2 {
		t.Errorf("onBack calls = %d, want 2", backs)
	}
}

func TestGuardEnableIdempotent(t *testing.T) {
	hist := &fakeHistory{entries: []string{"/exam"}}
	g := NewGuard(hist, nil, nil)

	g.Enable()
	g.Enable()
	g.Enable()

	if got := hist.Len(); got != 2 {
		t.Errorf("history length = %d after repeated Enable, want 2", got)
	}
}

func TestGuardDisabled(t *testing.T) {
	hist := &fakeHistory{entries: []string{"/exam"}}
	backs := 0
	g := NewGuard(hist, nil, func() { backs++ })

	// Never enabled: nothing intercepted, nothing pushed.
	if g.HandleBack() {
		t.Error("HandleBack = true while disabled, want false")
	}
	if backs != 0 || hist.Len() != 1 {
		t.Errorf("disabled guard had side effects: backs=%d len=%d", backs, hist.Len())
	}

	g.Enable()
	g.Disable()
	g.Disable() // Idempotent.

	if g.HandleBack() {
		t.Error("HandleBack = true after Disable, want false")
	}
	if g.Enabled() {
		t.Error("Enabled = true after Disable")
	}
}

func TestGuardUnload(t *testing.T) {
	t.Run("disabled always proceeds", func(t *testing.T) {
		g := NewGuard(&fakeHistory{entries: []string{"/"}}, &fakeConfirmer{allow: false}, nil)
		if !g.HandleUnload() {
			t.Error("HandleUnload = false while disabled, want true")
		}
	})

	t.Run("enabled without confirmer blocks", func(t *testing.T) {
		g := NewGuard(&fakeHistory{entries: []string{"/"}}, nil, nil)
		g.Enable()
		if g.HandleUnload() {
			t.Error("HandleUnload = true with nil confirmer, want false")
		}
	})

	t.Run("enabled defers to confirmer", func(t *testing.T) {
		c := &fakeConfirmer{allow: true}
		g := NewGuard(&fakeHistory{entries: []string{"/"}}, c, nil)
		g.Enable()

		if !g.HandleUnload() {
			t.Error("HandleUnload = false when user confirmed, want true")
		}
		c.allow = false
		if g.HandleUnload() {
			t.Error("HandleUnload = true when user declined, want false")
		}
		if c.asked != 2 {
			t.Errorf("confirmer asked %d times, want 2", c.asked)
		}
	})
}

func TestGuardNilHistory(t *testing.T) {
	g := NewGuard(nil, nil, nil)
	g.Enable()
	if !g.HandleBack() {
		t.Error("HandleBack = false with nil history, want true")
	}
}
