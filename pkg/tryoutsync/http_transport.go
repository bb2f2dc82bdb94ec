package tryoutsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPTransport talks to the tryout backend's attempt endpoints using the
// standard response envelope.
type HTTPTransport struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPTransport creates a transport for the given API base URL (e.g.
// "https://api.yukbelajar.id") and a participant bearer token.
func NewHTTPTransport(baseURL, token string) *HTTPTransport {
	return &HTTPTransport{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// wireEvent is the request shape of one event. Local bookkeeping fields
// (sent, failed_count) stay local.
type wireEvent struct {
	ID         string    `json:"id"`
	Kind       EventKind `json:"kind"`
	SubtestID  string    `json:"subtest_id"`
	QuestionID string    `json:"question_id"`
	AnswerID   string    `json:"answer_id,omitempty"`
	Flagged    *bool     `json:"flagged,omitempty"`
	Revision   int64     `json:"revision"`
	ClientTs   int64     `json:"client_ts"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (t *HTTPTransport) PushEvents(ctx context.Context, attemptID string, events []Event) ([]string, error) {
	wire := make([]wireEvent, len(events))
	for i, ev := range events {
		wire[i] = wireEvent{
			ID:         ev.ID,
			Kind:       ev.Kind,
			SubtestID:  ev.SubtestID,
			QuestionID: ev.QuestionID,
			AnswerID:   ev.AnswerID,
			Flagged:    ev.Flagged,
			Revision:   ev.Revision,
			ClientTs:   ev.ClientTs,
		}
	}

	body, err := t.do(ctx, http.MethodPost,
		fmt.Sprintf("/api/v1/attempts/%s/events", attemptID),
		map[string]interface{}{"events": wire})
	if err != nil {
		return nil, err
	}

	var data struct {
		AcceptedIDs []string `json:"accepted_ids"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decode ack: %w", err)
	}
	return data.AcceptedIDs, nil
}

func (t *HTTPTransport) FetchState(ctx context.Context, attemptID string) (*RemoteState, error) {
	body, err := t.do(ctx, http.MethodGet,
		fmt.Sprintf("/api/v1/attempts/%s/state", attemptID), nil)
	if err != nil {
		return nil, err
	}

	var state RemoteState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &state, nil
}

func (t *HTTPTransport) Advance(ctx context.Context, attemptID string) error {
	_, err := t.do(ctx, http.MethodPost,
		fmt.Sprintf("/api/v1/attempts/%s/advance", attemptID), nil)
	return err
}

func (t *HTTPTransport) Submit(ctx context.Context, attemptID string) (*SubmitResult, error) {
	body, err := t.do(ctx, http.MethodPost,
		fmt.Sprintf("/api/v1/attempts/%s/submit", attemptID), nil)
	if err != nil {
		return nil, err
	}

	var result SubmitResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &result, nil
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, payload interface{}) (json.RawMessage, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+t.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("http %d: undecodable response", resp.StatusCode)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return env.Data, nil
	}

	if env.Error != nil {
		switch env.Error.Code {
		case "TOKEN_REQUIRED", "TOKEN_INVALID", "TOKEN_EXPIRED", "UNAUTHENTICATED":
			return nil, fmt.Errorf("%w: %s", ErrUnauthenticated, env.Error.Message)
		case "ATTEMPT_ALREADY_FINISHED":
			return nil, fmt.Errorf("%w: %s", ErrAttemptFinished, env.Error.Message)
		}
		return nil, fmt.Errorf("http %d: %s (%s)", resp.StatusCode, env.Error.Message, env.Error.Code)
	}
	return nil, fmt.Errorf("http %d", resp.StatusCode)
}
