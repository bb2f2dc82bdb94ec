package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/yukbelajar/tryout-backend/internal/config"
	"github.com/yukbelajar/tryout-backend/internal/model"
	"github.com/yukbelajar/tryout-backend/internal/repository"
	"github.com/yukbelajar/tryout-backend/internal/response"
)

// Domain Errors
var (
	ErrNoQuestions        = errors.New("tryout has no questions, cannot publish")
	ErrTryoutNotDraft     = errors.New("tryout status is not DRAFT")
	ErrTryoutNotPublished = errors.New("tryout status is not PUBLISHED")
)

// TryoutService handles tryout catalogue logic and Redis cache warming.
type TryoutService struct {
	tryoutRepo *repository.TryoutRepository
	rdb        *redis.Client
	log        zerolog.Logger
}

// NewTryoutService creates a new TryoutService.
func NewTryoutService(tryoutRepo *repository.TryoutRepository, rdb *redis.Client, log zerolog.Logger) *TryoutService {
	return &TryoutService{
		tryoutRepo: tryoutRepo,
		rdb:        rdb,
		log:        log.With().Str("component", "tryout_service").Logger(),
	}
}

// GetByID retrieves a tryout by its UUID.
func (s *TryoutService) GetByID(ctx context.Context, id uuid.UUID) (*model.Tryout, error) {
	return s.tryoutRepo.GetByID(ctx, id)
}

// List retrieves tryouts for the operator console with pagination.
func (s *TryoutService) List(ctx context.Context, page, perPage int) ([]model.Tryout, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	tryouts, total, err := s.tryoutRepo.ListPaginated(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if tryouts == nil {
		tryouts = []model.Tryout{}
	}

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
	return tryouts, pagination, nil
}

// Create inserts a new tryout as DRAFT.
func (s *TryoutService) Create(ctx context.Context, t *model.Tryout) error {
	t.Status = model.TryoutStatusDraft
	return s.tryoutRepo.Create(ctx, t)
}

// Update modifies an existing draft tryout.
func (s *TryoutService) Update(ctx context.Context, t *model.Tryout) error {
	existing, err := s.tryoutRepo.GetByID(ctx, t.ID)
	if err != nil {
		return err
	}
	if existing.Status != model.TryoutStatusDraft {
		return ErrTryoutNotDraft
	}
	return s.tryoutRepo.Update(ctx, t)
}

// Delete removes a draft tryout.
func (s *TryoutService) Delete(ctx context.Context, id uuid.UUID) error {
	existing, err := s.tryoutRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status != model.TryoutStatusDraft {
		return ErrTryoutNotDraft
	}
	return s.tryoutRepo.Delete(ctx, id)
}

// AddSubtest appends a subtest to a draft tryout.
func (s *TryoutService) AddSubtest(ctx context.Context, sub *model.Subtest) error {
	existing, err := s.tryoutRepo.GetByID(ctx, sub.TryoutID)
	if err != nil {
		return err
	}
	if existing.Status != model.TryoutStatusDraft {
		return ErrTryoutNotDraft
	}
	return s.tryoutRepo.CreateSubtest(ctx, sub)
}

// AddQuestion appends a question to a subtest.
func (s *TryoutService) AddQuestion(ctx context.Context, q *model.Question) error {
	return s.tryoutRepo.CreateQuestion(ctx, q)
}

// ListSubtests retrieves a tryout's subtests in order.
func (s *TryoutService) ListSubtests(ctx context.Context, tryoutID uuid.UUID) ([]model.Subtest, error) {
	return s.tryoutRepo.ListSubtests(ctx, tryoutID)
}

// Publish changes tryout status to PUBLISHED and caches the paper + answer
// keys in Redis. This is the critical path that populates the fast lane.
func (s *TryoutService) Publish(ctx context.Context, tryoutID uuid.UUID) error {
	tryout, err := s.tryoutRepo.GetByID(ctx, tryoutID)
	if err != nil {
		return fmt.Errorf("get tryout: %w", err)
	}
	if tryout.Status != model.TryoutStatusDraft {
		return ErrTryoutNotDraft
	}

	if err := s.WarmTryoutCache(ctx, tryout); err != nil {
		return err
	}

	if err := s.tryoutRepo.UpdateStatus(ctx, tryoutID, model.TryoutStatusPublished); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("tryout_id", tryoutID.String()).Msg("Tryout published")
	return nil
}

// RefreshCache re-caches the paper + answer keys for a published tryout.
// Called when questions are corrected after publish.
func (s *TryoutService) RefreshCache(ctx context.Context, tryoutID uuid.UUID) error {
	tryout, err := s.tryoutRepo.GetByID(ctx, tryoutID)
	if err != nil {
		return fmt.Errorf("get tryout: %w", err)
	}
	if tryout.Status != model.TryoutStatusPublished {
		return ErrTryoutNotPublished
	}

	if err := s.WarmTryoutCache(ctx, tryout); err != nil {
		return err
	}

	s.log.Info().Str("tryout_id", tryoutID.String()).Msg("Cache refreshed")
	return nil
}

// WarmTryoutCache loads a tryout's paper and per-subtest answer keys from
// PostgreSQL into Redis. Used by Publish, RefreshCache and PrewarmAllCaches.
func (s *TryoutService) WarmTryoutCache(ctx context.Context, tryout *model.Tryout) error {
	subtests, err := s.tryoutRepo.ListSubtests(ctx, tryout.ID)
	if err != nil {
		return fmt.Errorf("list subtests: %w", err)
	}
	if len(subtests) == 0 {
		return ErrNoQuestions
	}

	paper := model.TryoutPaper{
		TryoutID: tryout.ID,
		Title:    tryout.Title,
		Subtests: make([]model.SubtestPaper, 0, len(subtests)),
	}

	pipe := s.rdb.Pipeline()
	totalQuestions := 0

	for _, sub := range subtests {
		questions, err := s.tryoutRepo.ListQuestions(ctx, sub.ID)
		if err != nil {
			return fmt.Errorf("list questions: %w", err)
		}

		subPaper := model.SubtestPaper{
			ID:              sub.ID,
			Name:            sub.Name,
			OrderNum:        sub.OrderNum,
			DurationSeconds: sub.DurationSeconds,
			Questions:       make([]model.QuestionForParticipant, len(questions)),
		}

		answerKey := make(map[string]interface{}, len(questions))
		for i, q := range questions {
			subPaper.Questions[i] = model.QuestionForParticipant{
				ID:           q.ID,
				QuestionText: q.QuestionText,
				Options:      q.Options,
				OrderNum:     q.OrderNum,
			}
			answerKey[q.ID.String()] = q.CorrectOption
		}
		totalQuestions += len(questions)

		keyKey := config.CacheKey.SubtestAnswerKeyKey(sub.ID.String())
		pipe.Del(ctx, keyKey)
		if len(answerKey) > 0 {
			pipe.HSet(ctx, keyKey, answerKey)
		}

		paper.Subtests = append(paper.Subtests, subPaper)
	}

	if totalQuestions == 0 {
		return ErrNoQuestions
	}

	paperJSON, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}
	pipe.Set(ctx, config.CacheKey.TryoutPaperKey(tryout.ID.String()), paperJSON, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("tryout_id", tryout.ID.String()).
		Int("subtests", len(subtests)).
		Int("questions", totalQuestions).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published tryouts into Redis on startup.
// This prevents lazy-loading race conditions under thundering herd traffic.
func (s *TryoutService) PrewarmAllCaches(ctx context.Context) error {
	tryouts, err := s.tryoutRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published tryouts: %w", err)
	}

	if len(tryouts) == 0 {
		s.log.Info().Msg("No published tryouts to prewarm")
		return nil
	}

	warmed := 0
	for i := range tryouts {
		if err := s.WarmTryoutCache(ctx, &tryouts[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("tryout_id", tryouts[i].ID.String()).
				Msg("Failed to warm tryout, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(tryouts)).
		Msg("Prewarming complete")
	return nil
}

// GetPaper retrieves the cached participant paper from Redis.
func (s *TryoutService) GetPaper(ctx context.Context, tryoutID uuid.UUID) (*model.TryoutPaper, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.TryoutPaperKey(tryoutID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.New("tryout not published or paper not cached")
		}
		return nil, fmt.Errorf("get paper: %w", err)
	}

	var paper model.TryoutPaper
	if err := json.Unmarshal(data, &paper); err != nil {
		return nil, fmt.Errorf("unmarshal paper: %w", err)
	}
	return &paper, nil
}

// GetAnswerKey retrieves a subtest's answer key hash from Redis.
func (s *TryoutService) GetAnswerKey(ctx context.Context, subtestID uuid.UUID) (map[string]string, error) {
	result, err := s.rdb.HGetAll(ctx, config.CacheKey.SubtestAnswerKeyKey(subtestID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	if len(result) == 0 {
		return nil, errors.New("answer key not found in cache")
	}
	return result, nil
}

// WindowOpen reports whether a tryout can currently be worked on. The
// open/close window is authoritative: outside of it the tryout is visible in
// the lobby but not joinable.
func WindowOpen(t *model.Tryout, now time.Time) bool {
	if t.OpensAt != nil && now.Before(*t.OpensAt) {
		return false
	}
	if t.ClosesAt != nil && now.After(*t.ClosesAt) {
		return false
	}
	return true
}
