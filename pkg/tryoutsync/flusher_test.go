package tryoutsync

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// serverAnswer is the fake backend's per-question record with its freshness
// marker.
type serverAnswer struct {
	answerID string
	clientTs int64
	revision int64
}

// fakeTransport applies pushed events with last-write-wins ordering by
// (client_ts, revision), mirroring the backend's reconciliation.
type fakeTransport struct {
	mu       sync.Mutex
	pushErr  error
	answers  map[string]serverAnswer
	flags    map[string]bool
	pushes   int
	fetches  int
	advances int
	submits  int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		answers: make(map[string]serverAnswer),
		flags:   make(map[string]bool),
	}
}

func (ft *fakeTransport) setPushErr(err error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.pushErr = err
}

func (ft *fakeTransport) answer(subtestID, questionID string) string {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.answers[subtestID+":"+questionID].answerID
}

func (ft *fakeTransport) PushEvents(ctx context.Context, attemptID string, events []Event) ([]string, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	if ft.pushErr != nil {
		return nil, ft.pushErr
	}
	ft.pushes++

	accepted := make([]string, 0, len(events))
	for _, ev := range events {
		key := ev.SubtestID + ":" + ev.QuestionID
		switch ev.Kind {
		case EventAnswer:
			cur, ok := ft.answers[key]
			if !ok || ev.ClientTs > cur.clientTs ||
				(ev.ClientTs == cur.clientTs && ev.Revision > cur.revision) {
				ft.answers[key] = serverAnswer{ev.AnswerID, ev.ClientTs, ev.Revision}
			}
		case EventFlag:
			if ev.Flagged != nil {
				ft.flags[key] = *ev.Flagged
			}
		}
		// Stale events are acknowledged too, so the client stops replaying.
		accepted = append(accepted, ev.ID)
	}
	return accepted, nil
}

func (ft *fakeTransport) FetchState(ctx context.Context, attemptID string) (*RemoteState, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.fetches++
	return &RemoteState{SecondsRemaining: 600}, nil
}

func (ft *fakeTransport) Advance(ctx context.Context, attemptID string) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.advances++
	return nil
}

func (ft *fakeTransport) Submit(ctx context.Context, attemptID string) (*SubmitResult, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.submits++
	return &SubmitResult{Score: 80, Correct: 8, Total: 10}, nil
}

func TestFlusherMarksAcceptedSent(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()
	ft := newFakeTransport()
	f := NewFlusher(store, ft, "att-1", FlusherConfig{})

	for i, id := range []string{"e1", "e2"} {
		ev := Event{ID: id, Kind: EventAnswer, SubtestID: "s", QuestionID: "q", AnswerID: "a", ClientTs: int64(i + 1), Revision: int64(i + 1)}
		if err := store.AppendEvent(ctx, "att-1", ev); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	if err := f.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	n, err := f.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if n != 0 {
		t.Errorf("pending after flush = %d, want 0", n)
	}
}

func TestFlusherTransientFailureStaysPending(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()
	ft := newFakeTransport()
	ft.setPushErr(errors.New("connection reset"))
	f := NewFlusher(store, ft, "att-1", FlusherConfig{})

	if err := store.AppendEvent(ctx, "att-1", Event{ID: "e1", ClientTs: 1, Revision: 1}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	if err := f.Flush(ctx); err == nil {
		t.Fatal("Flush succeeded against a failing transport")
	}

	pending, err := store.PendingEvents(ctx, "att-1", 0)
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if pending[0].FailedCount != 1 {
		t.Errorf("FailedCount = %d, want 1", pending[0].FailedCount)
	}

	// A second failing cycle bumps the counter again.
	_ = f.Flush(ctx)
	pending, _ = store.PendingEvents(ctx, "att-1", 0)
	if pending[0].FailedCount != 2 {
		t.Errorf("FailedCount after second failure = %d, want 2", pending[0].FailedCount)
	}
}

func TestFlusherDegradedAndManualResync(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()
	ft := newFakeTransport()
	ft.setPushErr(errors.New("gateway timeout"))

	degradedCalls := 0
	f := NewFlusher(store, ft, "att-1", FlusherConfig{
		MaxConsecutiveFailures: 3,
		OnDegraded:             func() { degradedCalls++ },
	})

	if err := store.AppendEvent(ctx, "att-1", Event{ID: "e1", ClientTs: 1, Revision: 1}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := f.flushOnce(ctx); err == nil {
			t.Fatalf("flushOnce %d succeeded unexpectedly", i)
		}
	}

	if !f.Degraded() {
		t.Fatal("not degraded after reaching the failure cutoff")
	}
	if degradedCalls != 1 {
		t.Errorf("OnDegraded called %d times, want 1", degradedCalls)
	}

	// Another failure while degraded must not re-announce.
	_ = f.flushOnce(ctx)
	if degradedCalls != 1 {
		t.Errorf("OnDegraded re-announced, total %d", degradedCalls)
	}

	// Connectivity returns; a manual resync clears degraded and delivers.
	ft.setPushErr(nil)
	if err := f.Flush(ctx); err != nil {
		t.Fatalf("manual Flush: %v", err)
	}
	if f.Degraded() {
		t.Error("still degraded after successful manual flush")
	}
	if n, _ := f.PendingCount(ctx); n != 0 {
		t.Errorf("pending after resync = %d, want 0", n)
	}
}

func TestFlusherTerminalErrorsPassThrough(t *testing.T) {
	ctx := context.Background()

	for _, terminal := range []error{ErrAttemptFinished, ErrUnauthenticated} {
		store, _ := testStore()
		ft := newFakeTransport()
		ft.setPushErr(terminal)
		f := NewFlusher(store, ft, "att-1", FlusherConfig{MaxConsecutiveFailures: 1})

		if err := store.AppendEvent(ctx, "att-1", Event{ID: "e1", ClientTs: 1, Revision: 1}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}

		err := f.flushOnce(ctx)
		if !errors.Is(err, terminal) {
			t.Errorf("flushOnce err = %v, want %v", err, terminal)
		}
		if f.Degraded() {
			t.Errorf("%v tripped degraded mode", terminal)
		}

		pending, _ := store.PendingEvents(ctx, "att-1", 0)
		if len(pending) != 1 || pending[0].FailedCount != 0 {
			t.Errorf("%v touched delivery bookkeeping: %+v", terminal, pending)
		}
	}
}

func TestFlusherNothingPending(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()
	ft := newFakeTransport()
	f := NewFlusher(store, ft, "att-1", FlusherConfig{})

	if err := f.Flush(ctx); err != nil {
		t.Fatalf("Flush with empty log: %v", err)
	}
	if ft.pushes != 0 {
		t.Errorf("transport pushed %d times with nothing pending", ft.pushes)
	}
}

func TestAnswerRevisionsConverge(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()
	ft := newFakeTransport()
	f := NewFlusher(store, ft, "att-1", FlusherConfig{})

	// The participant answers "a" and then changes to "b" before any flush.
	e1 := Event{ID: "e1", Kind: EventAnswer, SubtestID: "s1", QuestionID: "q1", AnswerID: "a", ClientTs: 1000, Revision: 1}
	e2 := Event{ID: "e2", Kind: EventAnswer, SubtestID: "s1", QuestionID: "q1", AnswerID: "b", ClientTs: 2000, Revision: 2}
	for _, ev := range []Event{e1, e2} {
		if err := store.AppendEvent(ctx, "att-1", ev); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	if err := f.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if got := ft.answer("s1", "q1"); got != "b" {
		t.Errorf("server answer = %q, want %q (later revision)", got, "b")
	}
	if n, _ := f.PendingCount(ctx); n != 0 {
		t.Errorf("pending = %d, want both acknowledged", n)
	}
}

func TestStaleReplayDoesNotRegress(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()
	ft := newFakeTransport()
	f := NewFlusher(store, ft, "att-1", FlusherConfig{})

	// The newer write lands first (e.g. from another delivery attempt).
	e2 := Event{ID: "e2", Kind: EventAnswer, SubtestID: "s1", QuestionID: "q1", AnswerID: "b", ClientTs: 2000, Revision: 2}
	if err := store.AppendEvent(ctx, "att-1", e2); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := f.Flush(ctx); err != nil {
		t.Fatalf("first Flush: %v", err)
	}

	// The older write arrives afterwards; it is acknowledged but not applied.
	e1 := Event{ID: "e1", Kind: EventAnswer, SubtestID: "s1", QuestionID: "q1", AnswerID: "a", ClientTs: 1000, Revision: 1}
	if err := store.AppendEvent(ctx, "att-1", e1); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := f.Flush(ctx); err != nil {
		t.Fatalf("second Flush: %v", err)
	}

	if got := ft.answer("s1", "q1"); got != "b" {
		t.Errorf("server answer regressed to %q, want %q", got, "b")
	}
	if n, _ := f.PendingCount(ctx); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}
