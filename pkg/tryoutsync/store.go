package tryoutsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// SchemaVersion is stamped into every snapshot. A persisted snapshot is only
// trusted if its version matches; anything else is treated as absent so the
// attempt restarts from server-known state instead of loading garbage.
const SchemaVersion = 1

// maxEvents caps the per-attempt event log. Oldest entries are dropped first.
const maxEvents = 1000

// ExamState is the strict attempt lifecycle.
type ExamState string

const (
	StateLoading  ExamState = "loading"
	StateReady    ExamState = "ready"
	StateRunning  ExamState = "running"
	StateBridging ExamState = "bridging"
	StateFinished ExamState = "finished"
)

func validState(s ExamState) bool {
	switch s {
	case StateLoading, StateReady, StateRunning, StateBridging, StateFinished:
		return true
	}
	return false
}

// EventKind distinguishes answer selections from review-flag toggles.
type EventKind string

const (
	EventAnswer EventKind = "answer"
	EventFlag   EventKind = "flag"
)

// Event is one immutable answer/flag action. Only Sent and FailedCount ever
// change after creation; the log is the source of truth for ordering.
type Event struct {
	ID          string    `json:"id"`
	AttemptID   string    `json:"attempt_id"`
	Kind        EventKind `json:"kind"`
	SubtestID   string    `json:"subtest_id"`
	QuestionID  string    `json:"question_id"`
	AnswerID    string    `json:"answer_id,omitempty"`
	Flagged     *bool     `json:"flagged,omitempty"`
	Revision    int64     `json:"revision"`
	ClientTs    int64     `json:"client_ts"`
	Sent        bool      `json:"sent"`
	FailedCount int       `json:"failed_count"`
}

// Backup is the consolidated snapshot of an attempt: answers, flags, timer
// and position. The event log, not the snapshot, carries ordering.
type Backup struct {
	Version          int                          `json:"version"`
	ExamState        ExamState                    `json:"exam_state"`
	CurrentSubtest   int                          `json:"current_subtest"`
	CurrentQuestion  int                          `json:"current_question"`
	SecondsRemaining int                          `json:"seconds_remaining"`
	SubtestDurations map[string]int               `json:"subtest_durations"`
	Answers          map[string]map[string]string `json:"answers"`
	Flags            map[string]map[string]bool   `json:"flags"`
	UpdatedAt        time.Time                    `json:"updated_at"`
}

// backupProbe mirrors Backup with optional numerics so structural damage
// (missing or non-numeric fields) is detectable instead of zero-valued.
type backupProbe struct {
	Version          *int       `json:"version"`
	ExamState        *ExamState `json:"exam_state"`
	CurrentSubtest   *int       `json:"current_subtest"`
	CurrentQuestion  *int       `json:"current_question"`
	SecondsRemaining *int       `json:"seconds_remaining"`
}

// Clock supplies the current time; injectable for tests.
type Clock func() time.Time

// Store owns the snapshot and event log for attempts, keyed by attempt id.
// Event-log operations are read-modify-write over the whole log, so the
// store serializes them internally: the session goroutine can append while
// the flusher marks delivery state without either erasing the other's
// write. Multi-tab convergence across processes is the server's job via
// (client_ts, revision) ordering.
type Store struct {
	kv    KV
	clock Clock

	// mu guards the event log read-modify-write cycles.
	mu sync.Mutex
}

// NewStore creates a Store over the given KV. A nil clock means time.Now.
func NewStore(kv KV, clock Clock) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{kv: kv, clock: clock}
}

func backupKey(attemptID string) string {
	return "tryout:attempt:" + attemptID + ":backup"
}

func eventsKey(attemptID string) string {
	return "tryout:attempt:" + attemptID + ":events"
}

// SaveBackup overwrites the snapshot, stamping UpdatedAt and the current
// schema version. Field values are the caller's responsibility.
func (s *Store) SaveBackup(ctx context.Context, attemptID string, b Backup) error {
	b.Version = SchemaVersion
	b.UpdatedAt = s.clock()

	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal backup: %w", err)
	}
	return s.kv.Set(ctx, backupKey(attemptID), raw)
}

// LoadBackup returns the snapshot, or (nil, nil) when there is none worth
// trusting: missing key, version mismatch, undecodable JSON or missing
// required fields all read as absence. Only storage failures are errors.
func (s *Store) LoadBackup(ctx context.Context, attemptID string) (*Backup, error) {
	raw, err := s.kv.Get(ctx, backupKey(attemptID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var probe backupProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, nil
	}
	if probe.Version == nil || *probe.Version != SchemaVersion {
		return nil, nil
	}
	if probe.ExamState == nil || !validState(*probe.ExamState) {
		return nil, nil
	}
	if probe.CurrentSubtest == nil || probe.CurrentQuestion == nil || probe.SecondsRemaining == nil {
		return nil, nil
	}

	var b Backup
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, nil
	}
	return &b, nil
}

// ClearBackup removes the snapshot; idempotent.
func (s *Store) ClearBackup(ctx context.Context, attemptID string) error {
	return s.kv.Delete(ctx, backupKey(attemptID))
}

// AppendEvent appends to the per-attempt log, dropping the oldest entries
// beyond the cap.
func (s *Store) AppendEvent(ctx context.Context, attemptID string, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.readEvents(ctx, attemptID)
	if err != nil {
		return err
	}

	events = append(events, ev)
	if len(events) > maxEvents {
		events = events[len(events)-maxEvents:]
	}

	return s.writeEvents(ctx, attemptID, events)
}

// PendingEvents returns unacknowledged events ordered ascending by
// (client_ts, revision). This ordering is the replay contract: the last
// write per question by client time, tie-broken by revision, wins on the
// server. A limit of 0 means no limit.
func (s *Store) PendingEvents(ctx context.Context, attemptID string, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.readEvents(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	pending := make([]Event, 0, len(events))
	for _, ev := range events {
		if !ev.Sent {
			pending = append(pending, ev)
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].ClientTs != pending[j].ClientTs {
			return pending[i].ClientTs < pending[j].ClientTs
		}
		return pending[i].Revision < pending[j].Revision
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// MarkEventsSent flips sent = true for the given ids. Idempotent; unknown
// ids are ignored.
func (s *Store) MarkEventsSent(ctx context.Context, attemptID string, eventIDs []string) error {
	return s.updateEvents(ctx, attemptID, eventIDs, func(ev *Event) {
		ev.Sent = true
	})
}

// MarkEventsFailed increments failed_count for the given ids. The events
// stay pending; retry policy is the caller's call, driven by the counter.
func (s *Store) MarkEventsFailed(ctx context.Context, attemptID string, eventIDs []string) error {
	return s.updateEvents(ctx, attemptID, eventIDs, func(ev *Event) {
		ev.FailedCount++
	})
}

// ClearEvents removes the whole per-attempt log. Used only after the server
// confirms the definitive submission.
func (s *Store) ClearEvents(ctx context.Context, attemptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Delete(ctx, eventsKey(attemptID))
}

func (s *Store) updateEvents(ctx context.Context, attemptID string, eventIDs []string, apply func(*Event)) error {
	if len(eventIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.readEvents(ctx, attemptID)
	if err != nil {
		return err
	}

	ids := make(map[string]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		ids[id] = struct{}{}
	}

	for i := range events {
		if _, ok := ids[events[i].ID]; ok {
			apply(&events[i])
		}
	}

	return s.writeEvents(ctx, attemptID, events)
}

func (s *Store) readEvents(ctx context.Context, attemptID string) ([]Event, error) {
	raw, err := s.kv.Get(ctx, eventsKey(attemptID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var events []Event
	if err := json.Unmarshal(raw, &events); err != nil {
		// A corrupt log cannot be replayed; start over rather than wedge.
		return nil, nil
	}
	return events, nil
}

func (s *Store) writeEvents(ctx context.Context, attemptID string, events []Event) error {
	raw, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	return s.kv.Set(ctx, eventsKey(attemptID), raw)
}
