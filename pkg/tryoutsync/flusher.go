package tryoutsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FlusherConfig tunes the background reconciliation loop.
type FlusherConfig struct {
	// BatchLimit caps events per push. Zero means 500.
	BatchLimit int
	// Interval between automatic flush cycles. Zero means 10 seconds.
	Interval time.Duration
	// MaxConsecutiveFailures before the flusher goes degraded and stops
	// auto-retrying. Zero means 5. A manual Flush resumes it.
	MaxConsecutiveFailures int
	// OnDegraded runs once when the flusher enters degraded mode, so the
	// embedder can surface a "progress may not be synced" warning.
	OnDegraded func()
	Logger     zerolog.Logger
}

func (c *FlusherConfig) withDefaults() {
	if c.BatchLimit <= 0 {
		c.BatchLimit = 500
	}
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = 5
	}
}

// Flusher periodically drains pending events from the store to the server
// and keeps the sent/failed bookkeeping straight. Delivery failures never
// block anything: events stay pending and are retried next cycle, until the
// consecutive-failure cutoff trips degraded mode.
type Flusher struct {
	store     *Store
	transport Transport
	attemptID string
	cfg       FlusherConfig
	log       zerolog.Logger

	mu               sync.Mutex
	consecutiveFails int
	degraded         bool
}

// NewFlusher creates a flusher for one attempt.
func NewFlusher(store *Store, transport Transport, attemptID string, cfg FlusherConfig) *Flusher {
	cfg.withDefaults()
	return &Flusher{
		store:     store,
		transport: transport,
		attemptID: attemptID,
		cfg:       cfg,
		log:       cfg.Logger.With().Str("component", "flusher").Str("attempt_id", attemptID).Logger(),
	}
}

// Run drives automatic flush cycles until the context is cancelled.
// Call in a goroutine.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if f.Degraded() {
				continue // Waits for a manual Flush.
			}
			if err := f.flushOnce(ctx); err != nil {
				f.log.Warn().Err(err).Msg("Flush cycle failed")
			}
		}
	}
}

// Flush pushes pending events now. A manual flush also clears degraded mode
// so automatic retrying resumes after the user asks for a resync.
func (f *Flusher) Flush(ctx context.Context) error {
	f.mu.Lock()
	f.degraded = false
	f.consecutiveFails = 0
	f.mu.Unlock()

	return f.flushOnce(ctx)
}

// Degraded reports whether automatic retrying is suspended.
func (f *Flusher) Degraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.degraded
}

// PendingCount returns how many events still await acknowledgment.
func (f *Flusher) PendingCount(ctx context.Context) (int, error) {
	pending, err := f.store.PendingEvents(ctx, f.attemptID, 0)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

func (f *Flusher) flushOnce(ctx context.Context) error {
	pending, err := f.store.PendingEvents(ctx, f.attemptID, f.cfg.BatchLimit)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	ids := make([]string, len(pending))
	for i, ev := range pending {
		ids[i] = ev.ID
	}

	accepted, err := f.transport.PushEvents(ctx, f.attemptID, pending)
	if err != nil {
		// Terminal errors are not retryable; leave the counters alone and
		// let the orchestrator handle them.
		if errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrAttemptFinished) {
			return err
		}

		if markErr := f.store.MarkEventsFailed(ctx, f.attemptID, ids); markErr != nil {
			f.log.Warn().Err(markErr).Msg("Failed to record delivery failure")
		}

		f.mu.Lock()
		f.consecutiveFails++
		tripped := !f.degraded && f.consecutiveFails >= f.cfg.MaxConsecutiveFailures
		if tripped {
			f.degraded = true
		}
		f.mu.Unlock()

		if tripped {
			f.log.Warn().Int("failures", f.cfg.MaxConsecutiveFailures).Msg("Entering degraded mode")
			if f.cfg.OnDegraded != nil {
				f.cfg.OnDegraded()
			}
		}
		return err
	}

	if err := f.store.MarkEventsSent(ctx, f.attemptID, accepted); err != nil {
		return err
	}

	f.mu.Lock()
	f.consecutiveFails = 0
	f.degraded = false
	f.mu.Unlock()

	f.log.Debug().Int("sent", len(accepted)).Msg("Events acknowledged")
	return nil
}
