package tryoutsync

import "sync"

// History abstracts the embedding client's navigation history. The web
// frontend binds this to the browser history; tests use a fake.
type History interface {
	// Len returns the number of entries.
	Len() int
	// Current returns the current location.
	Current() string
	// Push adds an entry for the current location without navigating.
	Push(location string)
}

// Confirmer asks the user for a native leave/reload confirmation.
type Confirmer interface {
	ConfirmLeave() bool
}

// Guard discourages accidental loss of an in-progress attempt through
// navigation. Best effort by design: platforms let users proceed past the
// confirmation.
type Guard struct {
	mu      sync.Mutex
	hist    History
	confirm Confirmer
	onBack  func()
	enabled bool
}

// NewGuard creates a disabled guard. onBack runs whenever a back/forward
// navigation is neutralized, so the embedder can show its own prompt or
// switch the attempt to bridging. A nil history (headless embedders like the
// attempt simulator) makes interception a no-op.
func NewGuard(hist History, confirm Confirmer, onBack func()) *Guard {
	if hist == nil {
		hist = noopHistory{}
	}
	return &Guard{
		hist:    hist,
		confirm: confirm,
		onBack:  onBack,
	}
}

type noopHistory struct{}

func (noopHistory) Len() int        { return 0 }
func (noopHistory) Current() string { return "" }
func (noopHistory) Push(string)     {}

// Enable arms the guard and seeds history with a synthetic entry so at least
// one back-navigation can be intercepted. Safe to call repeatedly.
func (g *Guard) Enable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.enabled {
		return
	}
	g.enabled = true
	g.hist.Push(g.hist.Current())
}

// Disable disarms the guard. Idempotent and side-effect-free when the guard
// was never enabled.
func (g *Guard) Disable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = false
}

// Enabled reports whether the guard is armed.
func (g *Guard) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// HandleBack is invoked by the embedder on a back/forward navigation.
// When armed it re-pushes the current location (neutralizing the move),
// invokes the callback and reports the navigation as intercepted.
func (g *Guard) HandleBack() bool {
	g.mu.Lock()
	if !g.enabled {
		g.mu.Unlock()
		return false
	}
	onBack := g.onBack
	g.hist.Push(g.hist.Current())
	g.mu.Unlock()

	if onBack != nil {
		onBack()
	}
	return true
}

// HandleUnload is invoked by the embedder on a leave/reload signal. It
// reports whether the navigation may proceed.
func (g *Guard) HandleUnload() bool {
	g.mu.Lock()
	enabled := g.enabled
	confirm := g.confirm
	g.mu.Unlock()

	if !enabled {
		return true
	}
	if confirm == nil {
		return false
	}
	return confirm.ConfirmLeave()
}
