package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt states.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
)

// Attempt represents one user's timed session attempting a tryout.
type Attempt struct {
	ID               uuid.UUID     `json:"id"`
	TryoutID         uuid.UUID     `json:"tryout_id"`
	UserID           int           `json:"user_id"`
	CurrentSubtest   int           `json:"current_subtest"`
	StartedAt        time.Time     `json:"started_at"`
	SubtestStartedAt time.Time     `json:"subtest_started_at"`
	FinishedAt       *time.Time    `json:"finished_at,omitempty"`
	Status           AttemptStatus `json:"status"`
	FinalScore       *float64      `json:"final_score,omitempty"`
}

// AttemptState is returned to the client after a reload so it can rebuild
// its local view: applied answers/flags plus the remaining time of the
// current subtest.
type AttemptState struct {
	AttemptID        uuid.UUID                    `json:"attempt_id"`
	TryoutID         uuid.UUID                    `json:"tryout_id"`
	Status           AttemptStatus                `json:"status"`
	CurrentSubtest   int                          `json:"current_subtest"`
	SecondsRemaining float64                      `json:"seconds_remaining"`
	Answers          map[string]map[string]string `json:"answers"`
	Flags            map[string]map[string]bool   `json:"flags"`
}

// SubmitResult is the graded outcome of a definitive submission.
type SubmitResult struct {
	AttemptID  uuid.UUID `json:"attempt_id"`
	Score      float64   `json:"score"`
	Correct    int       `json:"correct"`
	Total      int       `json:"total"`
	FinishedAt time.Time `json:"finished_at"`
}
