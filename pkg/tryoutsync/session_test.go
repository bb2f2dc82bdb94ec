package tryoutsync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// tickingClock hands out strictly increasing timestamps so every event gets a
// distinct client_ts.
func tickingClock() Clock {
	var n int64
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		return base.Add(time.Duration(atomic.AddInt64(&n, 1)) * time.Second)
	}
}

func testSession(store *Store, ft *fakeTransport) *Session {
	return NewSession(store, ft, nil, nil, SessionConfig{
		AttemptID:        "att-1",
		SubtestIDs:       []string{"s1", "s2"},
		SubtestDurations: map[string]int{"s1": 600, "s2": 450},
		Flusher:          FlusherConfig{Interval: time.Hour}, // Manual flushes only.
		Logger:           zerolog.Nop(),
		Clock:            tickingClock(),
	})
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()
	ft := newFakeTransport()
	s := testSession(store, ft)
	defer s.Close()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := s.State(); got != StateRunning {
		t.Fatalf("state after Start = %s, want %s", got, StateRunning)
	}
	if ft.fetches != 1 {
		t.Errorf("FetchState calls = %d, want 1 (no local backup)", ft.fetches)
	}

	// Answer, change the answer, flag one question.
	if err := s.Answer(ctx, "s1", "q1", "a"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if err := s.Answer(ctx, "s1", "q1", "b"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if err := s.ToggleFlag(ctx, "s1", "q2", true); err != nil {
		t.Fatalf("ToggleFlag: %v", err)
	}

	// Everything is journaled locally before any network delivery.
	if n, _ := s.Flusher().PendingCount(ctx); n != 3 {
		t.Errorf("pending before flush = %d, want 3", n)
	}
	backup, err := store.LoadBackup(ctx, "att-1")
	if err != nil || backup == nil {
		t.Fatalf("LoadBackup = %+v, %v; want snapshot", backup, err)
	}
	if backup.Answers["s1"]["q1"] != "b" {
		t.Errorf("backup answer = %q, want %q", backup.Answers["s1"]["q1"], "b")
	}

	if err := s.NextSubtest(ctx); err != nil {
		t.Fatalf("NextSubtest: %v", err)
	}
	if ft.advances != 1 {
		t.Errorf("Advance calls = %d, want 1", ft.advances)
	}
	if got := s.TimeLeft(); got != 450 {
		t.Errorf("TimeLeft after advance = %d, want 450", got)
	}

	if err := s.NextSubtest(ctx); err != ErrNoFurtherSubtest {
		t.Errorf("NextSubtest past the end = %v, want ErrNoFurtherSubtest", err)
	}

	result, err := s.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Score != 80 {
		t.Errorf("Score = %v, want 80", result.Score)
	}
	if got := s.State(); got != StateFinished {
		t.Errorf("state after Submit = %s, want %s", got, StateFinished)
	}

	// The server converged on the last revision before submission.
	if got := ft.answer("s1", "q1"); got != "b" {
		t.Errorf("server answer = %q, want %q", got, "b")
	}

	// Local state is gone only now that the submission is confirmed.
	backup, err = store.LoadBackup(ctx, "att-1")
	if err != nil || backup != nil {
		t.Errorf("backup after submit = %+v, %v; want absence", backup, err)
	}
	if n, _ := s.Flusher().PendingCount(ctx); n != 0 {
		t.Errorf("pending after submit = %d, want 0", n)
	}
}

func TestSessionRestoresFromBackup(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()

	first := testSession(store, newFakeTransport())
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := first.Answer(ctx, "s1", "q1", "c"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	first.Close() // Tab closed; nothing was flushed.

	ft := newFakeTransport()
	second := testSession(store, ft)
	defer second.Close()

	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if ft.fetches != 0 {
		t.Errorf("FetchState calls = %d, want 0 (backup present)", ft.fetches)
	}

	backup, err := store.LoadBackup(ctx, "att-1")
	if err != nil || backup == nil {
		t.Fatalf("LoadBackup: %+v, %v", backup, err)
	}
	if backup.Answers["s1"]["q1"] != "c" {
		t.Errorf("restored answer = %q, want %q", backup.Answers["s1"]["q1"], "c")
	}
}

func TestSessionRevisionsContinueAfterRestart(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()

	first := testSession(store, newFakeTransport())
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := first.Answer(ctx, "s1", "q1", "a"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	first.Close()

	second := testSession(store, newFakeTransport())
	defer second.Close()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if err := second.Answer(ctx, "s1", "q1", "b"); err != nil {
		t.Fatalf("Answer after restart: %v", err)
	}

	pending, err := store.PendingEvents(ctx, "att-1", 0)
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d events, want 2", len(pending))
	}

	var max int64
	for _, ev := range pending {
		if ev.Revision > max {
			max = ev.Revision
		}
	}
	// The restarted session must not reuse revision 1, or the change could
	// lose the tie-break against the original answer.
	if max != 2 {
		t.Errorf("max revision after restart = %d, want 2", max)
	}
}

func TestSessionRestoresBridgingAcrossReload(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()

	hist := &fakeHistory{entries: []string{"/exam"}}
	first := NewSession(store, newFakeTransport(), hist, nil, SessionConfig{
		AttemptID:        "att-1",
		SubtestIDs:       []string{"s1", "s2"},
		SubtestDurations: map[string]int{"s1": 600, "s2": 450},
		Flusher:          FlusherConfig{Interval: time.Hour},
		Logger:           zerolog.Nop(),
		Clock:            tickingClock(),
	})
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if !first.guard.HandleBack() {
		t.Fatal("back navigation not intercepted")
	}
	first.Close() // Reload while parked in bridging.

	second := testSession(store, newFakeTransport())
	defer second.Close()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if got := second.State(); got != StateBridging {
		t.Fatalf("state after reload = %s, want %s", got, StateBridging)
	}
	if err := second.Answer(ctx, "s1", "q1", "a"); err == nil {
		t.Error("Answer accepted while restored into bridging")
	}

	second.Resume()
	if got := second.State(); got != StateRunning {
		t.Errorf("state after Resume = %s, want %s", got, StateRunning)
	}
	if err := second.Answer(ctx, "s1", "q1", "a"); err != nil {
		t.Errorf("Answer after Resume: %v", err)
	}
}

func TestSessionBridgingOnInterceptedBack(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()
	ft := newFakeTransport()

	hist := &fakeHistory{entries: []string{"/exam"}}
	s := NewSession(store, ft, hist, nil, SessionConfig{
		AttemptID:        "att-1",
		SubtestIDs:       []string{"s1"},
		SubtestDurations: map[string]int{"s1": 600},
		Flusher:          FlusherConfig{Interval: time.Hour},
		Logger:           zerolog.Nop(),
		Clock:            tickingClock(),
	})
	defer s.Close()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// A back navigation is neutralized and parks the attempt in bridging.
	before := hist.Len()
	if err := s.Answer(ctx, "s1", "q1", "a"); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	intercepted := s.guard.HandleBack()
	if !intercepted {
		t.Fatal("back navigation not intercepted while running")
	}
	if hist.Len() < before {
		t.Errorf("history shrank from %d to %d", before, hist.Len())
	}
	if got := s.State(); got != StateBridging {
		t.Errorf("state after intercepted back = %s, want %s", got, StateBridging)
	}

	// Answers are rejected until the participant resumes.
	if err := s.Answer(ctx, "s1", "q2", "b"); err == nil {
		t.Error("Answer accepted while bridging")
	}

	s.Resume()
	if got := s.State(); got != StateRunning {
		t.Errorf("state after Resume = %s, want %s", got, StateRunning)
	}
	if err := s.Answer(ctx, "s1", "q2", "b"); err != nil {
		t.Errorf("Answer after Resume: %v", err)
	}
}
