package tryoutsync

import (
	"context"
	"errors"
)

// Terminal transport errors. Everything else is treated as transient and
// retried through the flusher's failure bookkeeping.
var (
	// ErrUnauthenticated means the identity token was missing or rejected.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrAttemptFinished means the attempt was already submitted. Terminal:
	// there is nothing left to sync and no silent overwrite happens.
	ErrAttemptFinished = errors.New("attempt already finished")
)

// RemoteState is the server's view of an attempt, used to rebuild the local
// session when no trustworthy backup exists.
type RemoteState struct {
	CurrentSubtest   int                          `json:"current_subtest"`
	SecondsRemaining float64                      `json:"seconds_remaining"`
	Answers          map[string]map[string]string `json:"answers"`
	Flags            map[string]map[string]bool   `json:"flags"`
}

// SubmitResult is the graded outcome of the definitive submission.
type SubmitResult struct {
	Score   float64 `json:"score"`
	Correct int     `json:"correct"`
	Total   int     `json:"total"`
}

// Transport is the attempt-submission service as the client sees it.
type Transport interface {
	// PushEvents transmits a batch and returns the event ids the server
	// acknowledged. Acknowledged ids must be marked sent by the caller;
	// a batch-level error means none were.
	PushEvents(ctx context.Context, attemptID string, events []Event) (acceptedIDs []string, err error)

	// FetchState returns the server-known attempt state.
	FetchState(ctx context.Context, attemptID string) (*RemoteState, error)

	// Advance moves the attempt to its next subtest.
	Advance(ctx context.Context, attemptID string) error

	// Submit freezes the attempt and returns the graded result.
	Submit(ctx context.Context, attemptID string) (*SubmitResult, error)
}
