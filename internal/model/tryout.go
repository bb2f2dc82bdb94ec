package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TryoutStatus enumerates the possible states of a tryout.
type TryoutStatus string

const (
	TryoutStatusDraft     TryoutStatus = "DRAFT"
	TryoutStatusPublished TryoutStatus = "PUBLISHED"
	TryoutStatusArchived  TryoutStatus = "ARCHIVED"
)

// Tryout represents a mock-exam definition composed of subtests.
type Tryout struct {
	ID          uuid.UUID    `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	OpensAt     *time.Time   `json:"opens_at,omitempty"`
	ClosesAt    *time.Time   `json:"closes_at,omitempty"`
	Status      TryoutStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Subtest is a timed section of a tryout with its own question set.
type Subtest struct {
	ID              uuid.UUID `json:"id"`
	TryoutID        uuid.UUID `json:"tryout_id"`
	Name            string    `json:"name"`
	OrderNum        int       `json:"order_num"`
	DurationSeconds int       `json:"duration_seconds"`
}

// Question belongs to a subtest. CorrectOption never leaves the operator API.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	SubtestID     uuid.UUID       `json:"subtest_id"`
	QuestionText  string          `json:"question_text"`
	Options       json.RawMessage `json:"options"`
	CorrectOption string          `json:"correct_option,omitempty"`
	OrderNum      int             `json:"order_num"`
}

// TryoutPaper is the Redis-cached payload sent to participants (no answer keys).
type TryoutPaper struct {
	TryoutID uuid.UUID      `json:"tryout_id"`
	Title    string         `json:"title"`
	Subtests []SubtestPaper `json:"subtests"`
}

// SubtestPaper is one section of the participant-facing paper.
type SubtestPaper struct {
	ID              uuid.UUID                `json:"id"`
	Name            string                   `json:"name"`
	OrderNum        int                      `json:"order_num"`
	DurationSeconds int                      `json:"duration_seconds"`
	Questions       []QuestionForParticipant `json:"questions"`
}

// QuestionForParticipant is a question without the correct answer.
type QuestionForParticipant struct {
	ID           uuid.UUID       `json:"id"`
	QuestionText string          `json:"question_text"`
	Options      json.RawMessage `json:"options"`
	OrderNum     int             `json:"order_num"`
}

// CreateTryoutRequest is the payload for creating a new tryout.
type CreateTryoutRequest struct {
	Title       string     `json:"title" binding:"required,min=3,max=255"`
	Description string     `json:"description" binding:"omitempty,max=2000"`
	OpensAt     *time.Time `json:"opens_at" binding:"omitempty"`
	ClosesAt    *time.Time `json:"closes_at" binding:"omitempty,gtfield=OpensAt"`
}

// UpdateTryoutRequest is the payload for updating a draft tryout.
type UpdateTryoutRequest struct {
	Title       string     `json:"title" binding:"omitempty,min=3,max=255"`
	Description string     `json:"description" binding:"omitempty,max=2000"`
	OpensAt     *time.Time `json:"opens_at" binding:"omitempty"`
	ClosesAt    *time.Time `json:"closes_at" binding:"omitempty,gtfield=OpensAt"`
}

// CreateSubtestRequest is the payload for adding a subtest to a tryout.
type CreateSubtestRequest struct {
	Name            string `json:"name" binding:"required,min=2,max=120"`
	OrderNum        int    `json:"order_num" binding:"required,min=1"`
	DurationSeconds int    `json:"duration_seconds" binding:"required,min=60,max=14400"`
}

// CreateQuestionRequest is the payload for adding a question to a subtest.
type CreateQuestionRequest struct {
	QuestionText  string          `json:"question_text" binding:"required"`
	Options       json.RawMessage `json:"options" binding:"required"`
	CorrectOption string          `json:"correct_option" binding:"required,min=1,max=40"`
	OrderNum      int             `json:"order_num" binding:"required,min=1"`
}
