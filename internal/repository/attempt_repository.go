package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yukbelajar/tryout-backend/internal/model"
)

// AttemptResult combines participant data with their attempt details for the
// operator results view.
type AttemptResult struct {
	UserID     int                 `json:"user_id"`
	Name       string              `json:"name"`
	ExternalID string              `json:"external_id"`
	FinalScore *float64            `json:"score"`
	Status     model.AttemptStatus `json:"status"`
	StartedAt  *time.Time          `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at"`
}

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// GetByID retrieves an attempt by id.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, tryout_id, user_id, current_subtest, started_at, subtest_started_at, finished_at, status, final_score
		 FROM attempts WHERE id = $1`, id,
	).Scan(&a.ID, &a.TryoutID, &a.UserID, &a.CurrentSubtest, &a.StartedAt, &a.SubtestStartedAt, &a.FinishedAt, &a.Status, &a.FinalScore)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByTryoutAndUser retrieves an attempt for a specific tryout-user combination.
func (r *AttemptRepository) GetByTryoutAndUser(ctx context.Context, tryoutID uuid.UUID, userID int) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, tryout_id, user_id, current_subtest, started_at, subtest_started_at, finished_at, status, final_score
		 FROM attempts WHERE tryout_id = $1 AND user_id = $2`, tryoutID, userID,
	).Scan(&a.ID, &a.TryoutID, &a.UserID, &a.CurrentSubtest, &a.StartedAt, &a.SubtestStartedAt, &a.FinishedAt, &a.Status, &a.FinalScore)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new attempt (user joins the tryout). The unique constraint
// on (tryout_id, user_id) makes concurrent joins surface as pgx.ErrNoRows.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (tryout_id, user_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (tryout_id, user_id) DO NOTHING
		 RETURNING id, started_at, subtest_started_at`,
		a.TryoutID, a.UserID, model.AttemptStatusInProgress,
	).Scan(&a.ID, &a.StartedAt, &a.SubtestStartedAt)
}

// Advance moves an in-progress attempt to the next subtest.
func (r *AttemptRepository) Advance(ctx context.Context, id uuid.UUID, nextSubtest int, startedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET current_subtest = $1, subtest_started_at = $2
		 WHERE id = $3 AND status = $4`,
		nextSubtest, startedAt, id, model.AttemptStatusInProgress)
	return err
}

// Complete marks an attempt as completed with a final score.
func (r *AttemptRepository) Complete(ctx context.Context, id uuid.UUID, score float64, finishedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, final_score = $2, finished_at = $3
		 WHERE id = $4`,
		model.AttemptStatusCompleted, score, finishedAt, id)
	return err
}

// ListByUser retrieves all attempts for a given user.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tryout_id, user_id, current_subtest, started_at, subtest_started_at, finished_at, status, final_score
		 FROM attempts WHERE user_id = $1 ORDER BY started_at DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.TryoutID, &a.UserID, &a.CurrentSubtest, &a.StartedAt, &a.SubtestStartedAt, &a.FinishedAt, &a.Status, &a.FinalScore); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListByTryout retrieves paginated participant results for a tryout.
func (r *AttemptRepository) ListByTryout(ctx context.Context, tryoutID uuid.UUID, page, perPage int) ([]AttemptResult, int64, error) {
	offset := (page - 1) * perPage

	baseQuery := `
		FROM attempts a
		JOIN users u ON a.user_id = u.id
		WHERE a.tryout_id = $1
	`
	args := []any{tryoutID}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT u.id, u.name, u.external_id, a.final_score, a.status, a.started_at, a.finished_at
		` + baseQuery + `
		ORDER BY a.final_score DESC NULLS LAST, u.name ASC
		LIMIT $` + fmt.Sprintf("%d", len(args)+1) + ` OFFSET $` + fmt.Sprintf("%d", len(args)+2) + `
	`
	args = append(args, perPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []AttemptResult
	for rows.Next() {
		var res AttemptResult
		if err := rows.Scan(&res.UserID, &res.Name, &res.ExternalID, &res.FinalScore, &res.Status, &res.StartedAt, &res.FinishedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}
