package model

import (
	"github.com/google/uuid"
)

// EventKind distinguishes answer selections from review-flag toggles.
type EventKind string

const (
	EventKindAnswer EventKind = "answer"
	EventKindFlag   EventKind = "flag"
)

// AttemptEvent is one immutable answer/flag action as sent by the client.
// Revision is monotonic per question; (client_ts, revision) ordering decides
// which write wins when events arrive out of order or from multiple tabs.
type AttemptEvent struct {
	ID         uuid.UUID `json:"id" binding:"required"`
	Kind       EventKind `json:"kind" binding:"required,oneof=answer flag"`
	SubtestID  uuid.UUID `json:"subtest_id" binding:"required"`
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	AnswerID   string    `json:"answer_id,omitempty" binding:"required_if=Kind answer,max=40"`
	Flagged    *bool     `json:"flagged,omitempty" binding:"required_if=Kind flag"`
	Revision   int64     `json:"revision" binding:"required,min=1"`
	ClientTs   int64     `json:"client_ts" binding:"required,min=1"`
}

// PushEventsRequest is a batch of events for one attempt.
type PushEventsRequest struct {
	Events []AttemptEvent `json:"events" binding:"required,min=1,dive"`
}

// PushEventsResponse acknowledges the event ids the server accepted.
// Accepted means durably queued for persistence; stale events (older than
// the applied (client_ts, revision) for their question) are acked too so
// the client stops resending them.
type PushEventsResponse struct {
	AcceptedIDs []uuid.UUID `json:"accepted_ids"`
}
