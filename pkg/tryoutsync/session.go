package tryoutsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNoFurtherSubtest means the attempt is already on its last subtest.
var ErrNoFurtherSubtest = errors.New("no further subtest")

// SessionConfig describes the attempt being orchestrated.
type SessionConfig struct {
	AttemptID string
	// SubtestIDs in working order.
	SubtestIDs []string
	// SubtestDurations maps subtest id to allotted seconds.
	SubtestDurations map[string]int
	Flusher          FlusherConfig
	Logger           zerolog.Logger
	// Clock defaults to time.Now.
	Clock Clock
}

// Session ties the store, timer, navigation guard and flusher into one
// attempt lifecycle. One session owns one attempt; multi-tab editing of the
// same attempt relies on server-side (client_ts, revision) convergence.
type Session struct {
	store     *Store
	transport Transport
	timer     *Timer
	guard     *Guard
	flusher   *Flusher
	log       zerolog.Logger
	clock     Clock
	cfg       SessionConfig

	mu              sync.Mutex
	state           ExamState
	currentSubtest  int
	currentQuestion int
	answers         map[string]map[string]string
	flags           map[string]map[string]bool
	revisions       map[string]int64
	cancelFlusher   context.CancelFunc
}

// NewSession wires a session. The history and confirmer bind the navigation
// guard to the embedding client; nil disables unload confirmation.
func NewSession(store *Store, transport Transport, hist History, confirm Confirmer, cfg SessionConfig) *Session {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	s := &Session{
		store:     store,
		transport: transport,
		timer:     NewTimer(0),
		log:       cfg.Logger.With().Str("component", "session").Str("attempt_id", cfg.AttemptID).Logger(),
		clock:     cfg.Clock,
		cfg:       cfg,
		state:     StateLoading,
		answers:   make(map[string]map[string]string),
		flags:     make(map[string]map[string]bool),
		revisions: make(map[string]int64),
	}
	s.guard = NewGuard(hist, confirm, s.enterBridging)
	s.flusher = NewFlusher(store, transport, cfg.AttemptID, cfg.Flusher)
	s.timer.SetOnTimeUp(s.handleTimeUp)
	return s
}

// Start restores the attempt (local backup first, server state otherwise),
// arms the guard and timer and launches the background flusher.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var seconds int
	restored := StateRunning

	backup, err := s.store.LoadBackup(ctx, s.cfg.AttemptID)
	if err != nil {
		return err
	}
	if backup != nil {
		// A snapshot parked in bridging resumes paused; the participant
		// returns through Resume. The clock keeps counting either way.
		if backup.ExamState == StateBridging {
			restored = StateBridging
		}
		s.currentSubtest = backup.CurrentSubtest
		s.currentQuestion = backup.CurrentQuestion
		if backup.Answers != nil {
			s.answers = backup.Answers
		}
		if backup.Flags != nil {
			s.flags = backup.Flags
		}
		seconds = backup.SecondsRemaining
		s.log.Debug().Msg("Restored attempt from local backup")
	} else {
		remote, err := s.transport.FetchState(ctx, s.cfg.AttemptID)
		if err != nil {
			return fmt.Errorf("fetch remote state: %w", err)
		}
		s.currentSubtest = remote.CurrentSubtest
		if remote.Answers != nil {
			s.answers = remote.Answers
		}
		if remote.Flags != nil {
			s.flags = remote.Flags
		}
		seconds = int(remote.SecondsRemaining)
		s.log.Debug().Msg("Rebuilt attempt from server state")
	}

	// Revisions continue from whatever the event log already holds,
	// acknowledged or not, so replays stay monotonic per question.
	events, err := s.store.readEvents(ctx, s.cfg.AttemptID)
	if err != nil {
		return err
	}
	for _, ev := range events {
		key := ev.SubtestID + ":" + ev.QuestionID
		if ev.Revision > s.revisions[key] {
			s.revisions[key] = ev.Revision
		}
	}

	s.state = restored
	s.timer.Reset(seconds)
	s.timer.SetRunning(true)
	s.guard.Enable()

	flusherCtx, cancel := context.WithCancel(context.Background())
	s.cancelFlusher = cancel
	go s.flusher.Run(flusherCtx)

	return s.saveBackupLocked(ctx)
}

// Answer records an answer selection for a question.
func (s *Session) Answer(ctx context.Context, subtestID, questionID, answerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return fmt.Errorf("attempt is not running (state %s)", s.state)
	}

	ev := s.newEventLocked(EventAnswer, subtestID, questionID)
	ev.AnswerID = answerID
	if err := s.store.AppendEvent(ctx, s.cfg.AttemptID, ev); err != nil {
		return err
	}

	if s.answers[subtestID] == nil {
		s.answers[subtestID] = make(map[string]string)
	}
	s.answers[subtestID][questionID] = answerID

	return s.saveBackupLocked(ctx)
}

// ToggleFlag records a mark-for-review toggle for a question.
func (s *Session) ToggleFlag(ctx context.Context, subtestID, questionID string, flagged bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return fmt.Errorf("attempt is not running (state %s)", s.state)
	}

	ev := s.newEventLocked(EventFlag, subtestID, questionID)
	ev.Flagged = &flagged
	if err := s.store.AppendEvent(ctx, s.cfg.AttemptID, ev); err != nil {
		return err
	}

	if s.flags[subtestID] == nil {
		s.flags[subtestID] = make(map[string]bool)
	}
	s.flags[subtestID][questionID] = flagged

	return s.saveBackupLocked(ctx)
}

// SetQuestion moves the cursor within the current subtest.
func (s *Session) SetQuestion(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentQuestion = index
	return s.saveBackupLocked(ctx)
}

// NextSubtest bridges to the following subtest and restarts the clock with
// its duration.
func (s *Session) NextSubtest(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.currentSubtest + 1
	if next >= len(s.cfg.SubtestIDs) {
		return ErrNoFurtherSubtest
	}

	s.state = StateBridging
	if err := s.transport.Advance(ctx, s.cfg.AttemptID); err != nil {
		s.state = StateRunning
		return err
	}

	s.currentSubtest = next
	s.currentQuestion = 0
	s.state = StateRunning
	s.timer.Reset(s.cfg.SubtestDurations[s.cfg.SubtestIDs[next]])
	s.timer.SetRunning(true)

	return s.saveBackupLocked(ctx)
}

// Submit drains pending events, performs the definitive submission and only
// then clears the local backup and event log.
func (s *Session) Submit(ctx context.Context) (*SubmitResult, error) {
	// Final drain outside the lock; the flusher serializes with the store.
	for i := 0; i < 3; i++ {
		if err := s.flusher.Flush(ctx); err != nil {
			if errors.Is(err, ErrAttemptFinished) {
				break // Server already has everything it will take.
			}
			if i == 2 {
				return nil, fmt.Errorf("drain events: %w", err)
			}
			continue
		}
		n, err := s.flusher.PendingCount(ctx)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}

	result, err := s.transport.Submit(ctx, s.cfg.AttemptID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.state = StateFinished
	s.mu.Unlock()

	s.teardown()

	// Local state goes only after the server confirmed durable recording.
	if err := s.store.ClearBackup(ctx, s.cfg.AttemptID); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear backup")
	}
	if err := s.store.ClearEvents(ctx, s.cfg.AttemptID); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear event log")
	}

	s.log.Info().Float64("score", result.Score).Msg("Attempt submitted")
	return result, nil
}

// Close releases the timer, guard and flusher without submitting.
func (s *Session) Close() {
	s.teardown()
}

// State returns the current lifecycle state.
func (s *Session) State() ExamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TimeLeft returns the remaining seconds of the current subtest.
func (s *Session) TimeLeft() int {
	return s.timer.TimeLeft()
}

// Flusher exposes the flusher for manual resync and degraded-state display.
func (s *Session) Flusher() *Flusher {
	return s.flusher
}

func (s *Session) teardown() {
	s.timer.SetRunning(false)
	s.guard.Disable()
	s.mu.Lock()
	cancel := s.cancelFlusher
	s.cancelFlusher = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// newEventLocked mints the next event for a question, bumping its revision.
func (s *Session) newEventLocked(kind EventKind, subtestID, questionID string) Event {
	key := subtestID + ":" + questionID
	s.revisions[key]++
	return Event{
		ID:         uuid.NewString(),
		AttemptID:  s.cfg.AttemptID,
		Kind:       kind,
		SubtestID:  subtestID,
		QuestionID: questionID,
		Revision:   s.revisions[key],
		ClientTs:   s.clock().UnixMilli(),
	}
}

func (s *Session) saveBackupLocked(ctx context.Context) error {
	return s.store.SaveBackup(ctx, s.cfg.AttemptID, Backup{
		ExamState:        s.state,
		CurrentSubtest:   s.currentSubtest,
		CurrentQuestion:  s.currentQuestion,
		SecondsRemaining: s.timer.TimeLeft(),
		SubtestDurations: s.cfg.SubtestDurations,
		Answers:          s.answers,
		Flags:            s.flags,
	})
}

// enterBridging is the navigation-guard callback: a neutralized back
// navigation pauses the attempt instead of losing it. The state change is
// persisted so a reload lands back in bridging.
func (s *Session) enterBridging() {
	s.mu.Lock()
	var err error
	if s.state == StateRunning {
		s.state = StateBridging
		err = s.saveBridgingLocked()
	}
	s.mu.Unlock()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to persist bridging state")
	}
	s.log.Debug().Msg("Navigation intercepted, attempt bridging")
}

// Resume returns from bridging to running.
func (s *Session) Resume() {
	s.mu.Lock()
	var err error
	if s.state == StateBridging {
		s.state = StateRunning
		err = s.saveBridgingLocked()
	}
	s.mu.Unlock()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to persist resumed state")
	}
}

// saveBridgingLocked persists a state flip that happens outside a
// caller-supplied context (guard callbacks).
func (s *Session) saveBridgingLocked() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.saveBackupLocked(ctx)
}

// handleTimeUp advances to the next subtest, or submits when the last one
// runs out. Runs on the timer goroutine with a bounded context.
func (s *Session) handleTimeUp() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.mu.Lock()
	last := s.currentSubtest >= len(s.cfg.SubtestIDs)-1
	s.mu.Unlock()

	if last {
		if _, err := s.Submit(ctx); err != nil {
			s.log.Error().Err(err).Msg("Auto-submit on time-up failed")
		}
		return
	}

	if err := s.NextSubtest(ctx); err != nil {
		s.log.Error().Err(err).Msg("Auto-advance on time-up failed")
	}
}
