package tryoutsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func testStore() (*Store, *MemKV) {
	kv := NewMemKV()
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return NewStore(kv, func() time.Time { return fixed }), kv
}

func TestBackupRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()

	saved := Backup{
		ExamState:        StateRunning,
		CurrentSubtest:   1,
		CurrentQuestion:  7,
		SecondsRemaining: 900,
		SubtestDurations: map[string]int{"sub-1": 1800, "sub-2": 1500},
		Answers:          map[string]map[string]string{"sub-1": {"q-1": "a"}},
		Flags:            map[string]map[string]bool{"sub-1": {"q-2": true}},
	}
	if err := store.SaveBackup(ctx, "att-1", saved); err != nil {
		t.Fatalf("SaveBackup: %v", err)
	}

	got, err := store.LoadBackup(ctx, "att-1")
	if err != nil {
		t.Fatalf("LoadBackup: %v", err)
	}
	if got == nil {
		t.Fatal("LoadBackup returned absence for a fresh backup")
	}
	if got.Version != SchemaVersion {
		t.Errorf("Version = %d, want %d", got.Version, SchemaVersion)
	}
	if got.ExamState != StateRunning || got.CurrentSubtest != 1 || got.CurrentQuestion != 7 {
		t.Errorf("position fields = %v/%d/%d", got.ExamState, got.CurrentSubtest, got.CurrentQuestion)
	}
	if got.SecondsRemaining != 900 {
		t.Errorf("SecondsRemaining = %d, want 900", got.SecondsRemaining)
	}
	if got.Answers["sub-1"]["q-1"] != "a" {
		t.Errorf("Answers not round-tripped: %v", got.Answers)
	}
	if !got.Flags["sub-1"]["q-2"] {
		t.Errorf("Flags not round-tripped: %v", got.Flags)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}
}

func TestLoadBackupRejectsUntrustedSnapshots(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		raw  string
	}{
		{"version mismatch", `{"version":99,"exam_state":"running","current_subtest":0,"current_question":0,"seconds_remaining":10}`},
		{"missing version", `{"exam_state":"running","current_subtest":0,"current_question":0,"seconds_remaining":10}`},
		{"non-numeric seconds", `{"version":1,"exam_state":"running","current_subtest":0,"current_question":0,"seconds_remaining":"ten"}`},
		{"missing subtest index", `{"version":1,"exam_state":"running","current_question":0,"seconds_remaining":10}`},
		{"unknown state", `{"version":1,"exam_state":"paused","current_subtest":0,"current_question":0,"seconds_remaining":10}`},
		{"not json", `###`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, kv := testStore()
			if err := kv.Set(ctx, backupKey("att-1"), []byte(tt.raw)); err != nil {
				t.Fatalf("seed: %v", err)
			}

			got, err := store.LoadBackup(ctx, "att-1")
			if err != nil {
				t.Fatalf("LoadBackup: %v", err)
			}
			if got != nil {
				t.Errorf("got %+v, want absence", got)
			}
		})
	}
}

func TestLoadBackupMissingIsAbsence(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()

	got, err := store.LoadBackup(ctx, "never-saved")
	if err != nil {
		t.Fatalf("LoadBackup: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want absence", got)
	}
}

func TestClearBackupIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()

	if err := store.SaveBackup(ctx, "att-1", Backup{ExamState: StateReady}); err != nil {
		t.Fatalf("SaveBackup: %v", err)
	}
	if err := store.ClearBackup(ctx, "att-1"); err != nil {
		t.Fatalf("first ClearBackup: %v", err)
	}
	if err := store.ClearBackup(ctx, "att-1"); err != nil {
		t.Fatalf("second ClearBackup: %v", err)
	}

	got, err := store.LoadBackup(ctx, "att-1")
	if err != nil || got != nil {
		t.Errorf("after clear: got %+v, err %v, want absence", got, err)
	}
}

func TestEventLogCap(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()

	for i := 0; i < maxEvents+50; i++ {
		ev := Event{
			ID:         fmt.Sprintf("ev-%d", i),
			Kind:       EventAnswer,
			SubtestID:  "sub-1",
			QuestionID: "q-1",
			Revision:   int64(i + 1),
			ClientTs:   int64(1000 + i),
		}
		if err := store.AppendEvent(ctx, "att-1", ev); err != nil {
			t.Fatalf("AppendEvent %d: %v", i, err)
		}
	}

	events, err := store.readEvents(ctx, "att-1")
	if err != nil {
		t.Fatalf("readEvents: %v", err)
	}
	if len(events) != maxEvents {
		t.Fatalf("log length = %d, want %d", len(events), maxEvents)
	}
	if events[0].ID != "ev-50" {
		t.Errorf("oldest retained = %s, want ev-50", events[0].ID)
	}
	if events[len(events)-1].ID != fmt.Sprintf("ev-%d", maxEvents+49) {
		t.Errorf("newest retained = %s", events[len(events)-1].ID)
	}
	// Relative order preserved.
	for i := 1; i < len(events); i++ {
		if events[i].ClientTs < events[i-1].ClientTs {
			t.Fatalf("order broken at %d", i)
		}
	}
}

func TestPendingEventsOrderingAndFiltering(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()

	// Appended out of client-time order on purpose.
	seed := []Event{
		{ID: "c", ClientTs: 300, Revision: 1},
		{ID: "a1", ClientTs: 100, Revision: 2},
		{ID: "a0", ClientTs: 100, Revision: 1},
		{ID: "b", ClientTs: 200, Revision: 1, Sent: true},
	}
	for _, ev := range seed {
		if err := store.AppendEvent(ctx, "att-1", ev); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	pending, err := store.PendingEvents(ctx, "att-1", 0)
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}

	want := []string{"a0", "a1", "c"}
	if len(pending) != len(want) {
		t.Fatalf("pending = %d events, want %d", len(pending), len(want))
	}
	for i, id := range want {
		if pending[i].ID != id {
			t.Errorf("pending[%d] = %s, want %s", i, pending[i].ID, id)
		}
	}

	limited, err := store.PendingEvents(ctx, "att-1", 2)
	if err != nil {
		t.Fatalf("PendingEvents with limit: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "a0" || limited[1].ID != "a1" {
		t.Errorf("limited pending = %v", limited)
	}
}

func TestMarkEventsSent(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()

	for _, id := range []string{"A", "B", "C"} {
		if err := store.AppendEvent(ctx, "att-1", Event{ID: id, ClientTs: 1, Revision: 1}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	if err := store.MarkEventsSent(ctx, "att-1", []string{"A", "B", "ghost"}); err != nil {
		t.Fatalf("MarkEventsSent: %v", err)
	}

	pending, err := store.PendingEvents(ctx, "att-1", 0)
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "C" {
		t.Errorf("pending after mark = %v, want only C", pending)
	}

	// Idempotent.
	if err := store.MarkEventsSent(ctx, "att-1", []string{"A", "B"}); err != nil {
		t.Fatalf("repeat MarkEventsSent: %v", err)
	}
	pending, _ = store.PendingEvents(ctx, "att-1", 0)
	if len(pending) != 1 {
		t.Errorf("pending after repeat mark = %d, want 1", len(pending))
	}
}

func TestMarkEventsFailed(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()

	if err := store.AppendEvent(ctx, "att-1", Event{ID: "A", ClientTs: 1, Revision: 1}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	if err := store.MarkEventsFailed(ctx, "att-1", []string{"A"}); err != nil {
		t.Fatalf("MarkEventsFailed: %v", err)
	}

	pending, err := store.PendingEvents(ctx, "att-1", 0)
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("failed event no longer pending")
	}
	if pending[0].FailedCount != 1 {
		t.Errorf("FailedCount = %d, want 1", pending[0].FailedCount)
	}
	if pending[0].Sent {
		t.Error("failed event marked sent")
	}
}

func TestClearEvents(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()

	if err := store.AppendEvent(ctx, "att-1", Event{ID: "A", ClientTs: 1, Revision: 1}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := store.ClearEvents(ctx, "att-1"); err != nil {
		t.Fatalf("ClearEvents: %v", err)
	}

	pending, err := store.PendingEvents(ctx, "att-1", 0)
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after clear = %d, want 0", len(pending))
	}
}

// pausingKV blocks the first event-log read until released, modeling a slow
// backend caught mid read-modify-write.
type pausingKV struct {
	*MemKV
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (k *pausingKV) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := k.MemKV.Get(ctx, key)
	if strings.HasSuffix(key, ":events") {
		k.once.Do(func() {
			close(k.entered)
			<-k.release
		})
	}
	return raw, err
}

func TestAppendSurvivesConcurrentDeliveryBookkeeping(t *testing.T) {
	ctx := context.Background()
	kv := &pausingKV{
		MemKV:   NewMemKV(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	store := NewStore(kv, nil)

	// Seed directly so the gated read fires on the marking pass below.
	seed, _ := json.Marshal([]Event{{ID: "q1", ClientTs: 1, Revision: 1}})
	if err := kv.MemKV.Set(ctx, eventsKey("att-1"), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// The flusher marks q1 sent; its read pauses before the write-back.
	markDone := make(chan error, 1)
	go func() {
		markDone <- store.MarkEventsSent(ctx, "att-1", []string{"q1"})
	}()
	<-kv.entered

	// Meanwhile the participant answers q2.
	appendDone := make(chan error, 1)
	go func() {
		appendDone <- store.AppendEvent(ctx, "att-1", Event{ID: "q2", ClientTs: 2, Revision: 1})
	}()

	time.Sleep(20 * time.Millisecond)
	close(kv.release)

	if err := <-markDone; err != nil {
		t.Fatalf("MarkEventsSent: %v", err)
	}
	if err := <-appendDone; err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	// q2 must not be erased by the marking write-back.
	pending, err := store.PendingEvents(ctx, "att-1", 0)
	if err != nil {
		t.Fatalf("PendingEvents: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "q2" {
		t.Fatalf("pending = %+v, want exactly q2", pending)
	}
}

func TestStorageUnavailableSurfaces(t *testing.T) {
	ctx := context.Background()
	store, kv := testStore()
	kv.SetUnavailable(true)

	if err := store.SaveBackup(ctx, "att-1", Backup{ExamState: StateReady}); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("SaveBackup err = %v, want ErrStorageUnavailable", err)
	}
	if _, err := store.LoadBackup(ctx, "att-1"); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("LoadBackup err = %v, want ErrStorageUnavailable", err)
	}
	if err := store.AppendEvent(ctx, "att-1", Event{ID: "A"}); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("AppendEvent err = %v, want ErrStorageUnavailable", err)
	}
}
