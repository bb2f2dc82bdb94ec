package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/yukbelajar/tryout-backend/internal/config"
	"github.com/yukbelajar/tryout-backend/internal/model"
	"github.com/yukbelajar/tryout-backend/internal/repository"
)

// Domain Errors
var (
	ErrTryoutNotAvailable = errors.New("tryout is not available for joining")
	ErrTryoutClosed       = errors.New("tryout window is closed")
	ErrNoActiveAttempt    = errors.New("no active attempt")
	ErrAttemptFinished    = errors.New("attempt is already finished")
	ErrNoFurtherSubtest   = errors.New("no further subtest")
)

// AttemptService handles attempt lifecycle and event reconciliation.
type AttemptService struct {
	attemptRepo *repository.AttemptRepository
	tryoutRepo  *repository.TryoutRepository
	tryouts     *TryoutService
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attemptRepo *repository.AttemptRepository,
	tryoutRepo *repository.TryoutRepository,
	tryouts *TryoutService,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attemptRepo: attemptRepo,
		tryoutRepo:  tryoutRepo,
		tryouts:     tryouts,
		rdb:         rdb,
		log:         log.With().Str("component", "attempt_service").Logger(),
	}
}

// ─── Lobby ─────────────────────────────────────────────────────────────────

// LobbyStatus represents the concrete state of a tryout in the lobby.
type LobbyStatus string

const (
	LobbyStatusUpcoming   LobbyStatus = "UPCOMING"
	LobbyStatusOpen       LobbyStatus = "OPEN"
	LobbyStatusClosed     LobbyStatus = "CLOSED"
	LobbyStatusInProgress LobbyStatus = "IN_PROGRESS"
	LobbyStatusCompleted  LobbyStatus = "COMPLETED"
)

// LobbyTryout represents a tryout as displayed in the participant lobby.
type LobbyTryout struct {
	model.Tryout
	LobbyStatus   LobbyStatus          `json:"lobby_status"`
	AttemptStatus *model.AttemptStatus `json:"attempt_status,omitempty"`
	FinalScore    *float64             `json:"final_score,omitempty"`
}

// GetLobby returns published tryouts with the user's attempt status overlaid.
// The open/close window decides joinability; closed tryouts stay visible so
// results remain reachable.
func (s *AttemptService) GetLobby(ctx context.Context, userID int) ([]LobbyTryout, error) {
	tryouts, err := s.tryoutRepo.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published: %w", err)
	}

	attempts, err := s.attemptRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	attemptMap := make(map[uuid.UUID]*model.Attempt, len(attempts))
	for i := range attempts {
		attemptMap[attempts[i].TryoutID] = &attempts[i]
	}

	lobby := make([]LobbyTryout, 0, len(tryouts))
	now := time.Now()

	for _, t := range tryouts {
		entry := LobbyTryout{Tryout: t}

		if att, ok := attemptMap[t.ID]; ok {
			entry.AttemptStatus = &att.Status
			entry.FinalScore = att.FinalScore
			if att.Status == model.AttemptStatusCompleted {
				entry.LobbyStatus = LobbyStatusCompleted
			} else {
				entry.LobbyStatus = LobbyStatusInProgress
			}
		} else if t.OpensAt != nil && now.Before(*t.OpensAt) {
			entry.LobbyStatus = LobbyStatusUpcoming
		} else if !WindowOpen(&t, now) {
			entry.LobbyStatus = LobbyStatusClosed
		} else {
			entry.LobbyStatus = LobbyStatusOpen
		}

		lobby = append(lobby, entry)
	}

	return lobby, nil
}

// ─── Lifecycle ─────────────────────────────────────────────────────────────

// Join creates an attempt for the user inside the tryout window (idempotent).
func (s *AttemptService) Join(ctx context.Context, tryoutID uuid.UUID, userID int) (*model.Attempt, error) {
	tryout, err := s.tryoutRepo.GetByID(ctx, tryoutID)
	if err != nil {
		return nil, fmt.Errorf("get tryout: %w", err)
	}

	if tryout.Status != model.TryoutStatusPublished {
		return nil, ErrTryoutNotAvailable
	}
	if !WindowOpen(tryout, time.Now()) {
		return nil, ErrTryoutClosed
	}

	existing, err := s.attemptRepo.GetByTryoutAndUser(ctx, tryoutID, userID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing attempt: %w", err)
	}

	// IDEMPOTENCY: if they already joined, ensure Redis has the subtest start
	// time. This covers rejoining after a crash or from a fresh device.
	if existing != nil {
		_ = s.rdb.Set(ctx, config.CacheKey.AttemptSubtestStartKey(existing.ID.String()), existing.SubtestStartedAt.Unix(), 0)
		return existing, nil
	}

	attempt := &model.Attempt{TryoutID: tryoutID, UserID: userID}
	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent join detected
			existing, fetchErr := s.attemptRepo.GetByTryoutAndUser(ctx, tryoutID, userID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent join detected, but fetch failed: %w", fetchErr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	attempt.Status = model.AttemptStatusInProgress

	startKey := config.CacheKey.AttemptSubtestStartKey(attempt.ID.String())
	if err := s.rdb.Set(ctx, startKey, attempt.SubtestStartedAt.Unix(), 0).Err(); err != nil {
		// Non-fatal: GetState falls back to PostgreSQL and self-heals.
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Failed to cache subtest start")
	}
	_ = s.rdb.Set(ctx, config.CacheKey.UserActiveAttemptKey(userID), attempt.ID.String(), 0)

	return attempt, nil
}

// GetForTryout returns the user's attempt on a tryout, in progress or not.
func (s *AttemptService) GetForTryout(ctx context.Context, tryoutID uuid.UUID, userID int) (*model.Attempt, error) {
	attempt, err := s.attemptRepo.GetByTryoutAndUser(ctx, tryoutID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveAttempt
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return attempt, nil
}

// VerifyActive checks that the user owns the attempt and it is IN_PROGRESS.
func (s *AttemptService) VerifyActive(ctx context.Context, attemptID uuid.UUID, userID int) (*model.Attempt, error) {
	attempt, err := s.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		return nil, ErrNoActiveAttempt
	}
	if attempt.UserID != userID {
		return nil, ErrNoActiveAttempt
	}
	if attempt.Status == model.AttemptStatusCompleted {
		return nil, ErrAttemptFinished
	}
	return attempt, nil
}

// GetState rebuilds the client view after a reload: applied answers/flags
// from the Redis fast lane plus the remaining seconds of the current subtest.
func (s *AttemptService) GetState(ctx context.Context, attempt *model.Attempt) (*model.AttemptState, error) {
	answers, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attempt.ID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get answers: %w", err)
	}
	flags, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptFlagsKey(attempt.ID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get flags: %w", err)
	}

	subtests, err := s.tryoutRepo.ListSubtests(ctx, attempt.TryoutID)
	if err != nil {
		return nil, fmt.Errorf("list subtests: %w", err)
	}
	if attempt.CurrentSubtest >= len(subtests) {
		return nil, fmt.Errorf("current subtest %d out of range", attempt.CurrentSubtest)
	}
	duration := subtests[attempt.CurrentSubtest].DurationSeconds

	startUnix, err := s.subtestStartUnix(ctx, attempt)
	if err != nil {
		return nil, err
	}

	endTime := time.Unix(startUnix, 0).Add(time.Duration(duration) * time.Second)
	remaining := time.Until(endTime)
	if remaining < 0 {
		remaining = 0
	}

	state := &model.AttemptState{
		AttemptID:        attempt.ID,
		TryoutID:         attempt.TryoutID,
		Status:           attempt.Status,
		CurrentSubtest:   attempt.CurrentSubtest,
		SecondsRemaining: remaining.Seconds(),
		Answers:          make(map[string]map[string]string),
		Flags:            make(map[string]map[string]bool),
	}

	for field, answerID := range answers {
		subtestID, questionID, ok := splitField(field)
		if !ok {
			continue
		}
		if state.Answers[subtestID] == nil {
			state.Answers[subtestID] = make(map[string]string)
		}
		state.Answers[subtestID][questionID] = answerID
	}
	for field, v := range flags {
		subtestID, questionID, ok := splitField(field)
		if !ok {
			continue
		}
		if state.Flags[subtestID] == nil {
			state.Flags[subtestID] = make(map[string]bool)
		}
		state.Flags[subtestID][questionID] = v == "1"
	}

	return state, nil
}

// subtestStartUnix reads the current subtest's start time from Redis with a
// PostgreSQL fallback that self-heals the cache.
func (s *AttemptService) subtestStartUnix(ctx context.Context, attempt *model.Attempt) (int64, error) {
	startKey := config.CacheKey.AttemptSubtestStartKey(attempt.ID.String())

	val, err := s.rdb.Get(ctx, startKey).Result()
	if errors.Is(err, redis.Nil) {
		// Cache miss (evicted or legacy attempt): PostgreSQL is the source
		// of truth. Put it back so the next request is fast.
		startUnix := attempt.SubtestStartedAt.Unix()
		_ = s.rdb.Set(ctx, startKey, startUnix, 0)
		return startUnix, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis error getting start time: %w", err)
	}

	startUnix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid start time format in cache: %w", err)
	}
	return startUnix, nil
}

// ─── Event reconciliation ──────────────────────────────────────────────────

// persistEventPayload is the queue message consumed by the event worker.
type persistEventPayload struct {
	AttemptID  string `json:"attempt_id"`
	TryoutID   string `json:"tryout_id"`
	UserID     int    `json:"user_id"`
	Kind       string `json:"kind"`
	SubtestID  string `json:"subtest_id"`
	QuestionID string `json:"question_id"`
	AnswerID   string `json:"answer_id,omitempty"`
	Flagged    bool   `json:"flagged,omitempty"`
	Revision   int64  `json:"revision"`
	ClientTs   int64  `json:"client_ts"`
}

// pushEventsRetries bounds the optimistic-lock retry loop when concurrent
// batches race on the same attempt's revision markers.
const pushEventsRetries = 3

// PushEvents applies a batch of answer/flag events to the Redis fast lane and
// queues them for durable persistence. Every structurally valid event id is
// acknowledged — including stale ones — so the client can mark them sent and
// stop replaying. Freshness per question is decided by (client_ts, revision):
// only strictly newer events overwrite the applied state. The check-and-set
// runs under WATCH on the revisions key so concurrent batches (multi-tab)
// cannot both pass the staleness check and leave an older answer applied.
func (s *AttemptService) PushEvents(ctx context.Context, attempt *model.Attempt, events []model.AttemptEvent) ([]uuid.UUID, error) {
	attemptID := attempt.ID.String()
	revKey := config.CacheKey.AttemptRevisionsKey(attemptID)

	accepted := make([]uuid.UUID, 0, len(events))
	for _, ev := range events {
		accepted = append(accepted, ev.ID)
	}

	apply := func(tx *redis.Tx) error {
		markers, err := tx.HGetAll(ctx, revKey).Result()
		if err != nil {
			return fmt.Errorf("get revision markers: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, ev := range events {
				field := ev.SubtestID.String() + ":" + ev.QuestionID.String()
				// Flags get their own marker namespace so an answer edit
				// does not shadow a later flag toggle on the same question.
				markerField := string(ev.Kind) + ":" + field
				if !newerThanMarker(markers[markerField], ev.ClientTs, ev.Revision) {
					continue // Stale or replayed: ack without applying.
				}
				markers[markerField] = encodeMarker(ev.ClientTs, ev.Revision)
				pipe.HSet(ctx, revKey, markerField, markers[markerField])

				switch ev.Kind {
				case model.EventKindAnswer:
					pipe.HSet(ctx, config.CacheKey.AttemptAnswersKey(attemptID), field, ev.AnswerID)
				case model.EventKindFlag:
					flagged := "0"
					if ev.Flagged != nil && *ev.Flagged {
						flagged = "1"
					}
					pipe.HSet(ctx, config.CacheKey.AttemptFlagsKey(attemptID), field, flagged)
				}

				payload, _ := json.Marshal(persistEventPayload{
					AttemptID:  attemptID,
					TryoutID:   attempt.TryoutID.String(),
					UserID:     attempt.UserID,
					Kind:       string(ev.Kind),
					SubtestID:  ev.SubtestID.String(),
					QuestionID: ev.QuestionID.String(),
					AnswerID:   ev.AnswerID,
					Flagged:    ev.Flagged != nil && *ev.Flagged,
					Revision:   ev.Revision,
					ClientTs:   ev.ClientTs,
				})
				pipe.RPush(ctx, config.WorkerKey.PersistEventsQueue, payload)
			}
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < pushEventsRetries; i++ {
		err = s.rdb.Watch(ctx, apply, revKey)
		if err == nil {
			return accepted, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, fmt.Errorf("apply events: %w", err)
		}
		// Another batch touched the markers first; re-read and retry.
	}
	return nil, fmt.Errorf("apply events: %w", err)
}

// Advance moves an in-progress attempt to the next subtest (bridging) and
// resets the subtest clock.
func (s *AttemptService) Advance(ctx context.Context, attempt *model.Attempt) (*model.Attempt, error) {
	subtests, err := s.tryoutRepo.ListSubtests(ctx, attempt.TryoutID)
	if err != nil {
		return nil, fmt.Errorf("list subtests: %w", err)
	}

	next := attempt.CurrentSubtest + 1
	if next >= len(subtests) {
		return nil, ErrNoFurtherSubtest
	}

	now := time.Now()
	if err := s.attemptRepo.Advance(ctx, attempt.ID, next, now); err != nil {
		return nil, fmt.Errorf("advance attempt: %w", err)
	}

	startKey := config.CacheKey.AttemptSubtestStartKey(attempt.ID.String())
	if err := s.rdb.Set(ctx, startKey, now.Unix(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Failed to cache subtest start")
	}

	attempt.CurrentSubtest = next
	attempt.SubtestStartedAt = now
	return attempt, nil
}

// Submit grades the attempt in RAM from the cached answer keys, queues the
// score for bulk persistence, and returns the result. A second submit is a
// terminal conflict, never a silent overwrite.
func (s *AttemptService) Submit(ctx context.Context, attempt *model.Attempt) (*model.SubmitResult, error) {
	attemptID := attempt.ID.String()

	// Guard against a rapid double submit racing the scoring worker.
	ok, err := s.rdb.SetNX(ctx, config.CacheKey.AttemptSubmittedKey(attemptID), 1, 24*time.Hour).Result()
	if err != nil {
		return nil, fmt.Errorf("submit guard: %w", err)
	}
	if !ok {
		return nil, ErrAttemptFinished
	}

	subtests, err := s.tryoutRepo.ListSubtests(ctx, attempt.TryoutID)
	if err != nil {
		return nil, fmt.Errorf("list subtests: %w", err)
	}

	answers, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attemptID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get answers: %w", err)
	}

	correct, total := 0, 0
	for _, sub := range subtests {
		answerKey, err := s.tryouts.GetAnswerKey(ctx, sub.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("subtest_id", sub.ID.String()).Msg("Answer key missing, skipping subtest")
			continue
		}
		total += len(answerKey)
		for qID, correctAns := range answerKey {
			if chosen, ok := answers[sub.ID.String()+":"+qID]; ok && chosen == correctAns {
				correct++
			}
		}
	}

	var score float64
	if total > 0 {
		score = float64(correct) / float64(total) * 100
	}

	now := time.Now()
	scorePayload, _ := json.Marshal(map[string]interface{}{
		"attempt_id": attemptID,
		"tryout_id":  attempt.TryoutID.String(),
		"user_id":    attempt.UserID,
		"score":      score,
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistScoresQueue, scorePayload).Err(); err != nil {
		return nil, fmt.Errorf("queue score: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attemptID).
		Float64("score", score).
		Int("correct", correct).
		Int("total", total).
		Msg("Attempt submitted and graded")

	return &model.SubmitResult{
		AttemptID:  attempt.ID,
		Score:      score,
		Correct:    correct,
		Total:      total,
		FinishedAt: now,
	}, nil
}

// GetResults retrieves paginated attempt results for the operator view.
func (s *AttemptService) GetResults(ctx context.Context, tryoutID uuid.UUID, page, perPage int) ([]repository.AttemptResult, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 25
	}
	return s.attemptRepo.ListByTryout(ctx, tryoutID, page, perPage)
}

// ─── Freshness markers ─────────────────────────────────────────────────────

// encodeMarker serializes a (client_ts, revision) pair for the revisions hash.
func encodeMarker(clientTs, revision int64) string {
	return strconv.FormatInt(clientTs, 10) + ":" + strconv.FormatInt(revision, 10)
}

// newerThanMarker reports whether (clientTs, revision) is strictly newer than
// the stored marker. Empty or malformed markers always lose.
func newerThanMarker(marker string, clientTs, revision int64) bool {
	if marker == "" {
		return true
	}
	tsStr, revStr, ok := strings.Cut(marker, ":")
	if !ok {
		return true
	}
	ts, err1 := strconv.ParseInt(tsStr, 10, 64)
	rev, err2 := strconv.ParseInt(revStr, 10, 64)
	if err1 != nil || err2 != nil {
		return true
	}
	if clientTs != ts {
		return clientTs > ts
	}
	return revision > rev
}

// splitField parses a "<subtest_id>:<question_id>" hash field.
func splitField(field string) (subtestID, questionID string, ok bool) {
	return strings.Cut(field, ":")
}
