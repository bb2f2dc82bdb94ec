package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yukbelajar/tryout-backend/internal/model"
)

// TryoutRepository handles tryout, subtest and question data access.
type TryoutRepository struct {
	pool *pgxpool.Pool
}

// NewTryoutRepository creates a new TryoutRepository.
func NewTryoutRepository(pool *pgxpool.Pool) *TryoutRepository {
	return &TryoutRepository{pool: pool}
}

// GetByID retrieves a tryout by id.
func (r *TryoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Tryout, error) {
	t := &model.Tryout{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, description, opens_at, closes_at, status, created_at, updated_at
		 FROM tryouts WHERE id = $1`, id,
	).Scan(&t.ID, &t.Title, &t.Description, &t.OpensAt, &t.ClosesAt, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListPublished retrieves all published tryouts, newest first.
func (r *TryoutRepository) ListPublished(ctx context.Context) ([]model.Tryout, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, description, opens_at, closes_at, status, created_at, updated_at
		 FROM tryouts WHERE status = $1
		 ORDER BY opens_at DESC NULLS LAST, created_at DESC`, model.TryoutStatusPublished,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tryouts []model.Tryout
	for rows.Next() {
		var t model.Tryout
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.OpensAt, &t.ClosesAt, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tryouts = append(tryouts, t)
	}
	return tryouts, rows.Err()
}

// ListPaginated retrieves tryouts for the operator console.
func (r *TryoutRepository) ListPaginated(ctx context.Context, limit, offset int) ([]model.Tryout, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tryouts`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, title, description, opens_at, closes_at, status, created_at, updated_at
		 FROM tryouts ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tryouts []model.Tryout
	for rows.Next() {
		var t model.Tryout
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.OpensAt, &t.ClosesAt, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, err
		}
		tryouts = append(tryouts, t)
	}
	return tryouts, total, rows.Err()
}

// Create inserts a new tryout as DRAFT.
func (r *TryoutRepository) Create(ctx context.Context, t *model.Tryout) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO tryouts (title, description, opens_at, closes_at, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		t.Title, t.Description, t.OpensAt, t.ClosesAt, model.TryoutStatusDraft,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

// Update modifies a tryout's editable fields.
func (r *TryoutRepository) Update(ctx context.Context, t *model.Tryout) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tryouts
		 SET title = $1, description = $2, opens_at = $3, closes_at = $4, updated_at = NOW()
		 WHERE id = $5`,
		t.Title, t.Description, t.OpensAt, t.ClosesAt, t.ID)
	return err
}

// UpdateStatus transitions a tryout's lifecycle status.
func (r *TryoutRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.TryoutStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE tryouts SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	return err
}

// Delete removes a tryout. Subtests and questions cascade.
func (r *TryoutRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM tryouts WHERE id = $1`, id)
	return err
}

// ─── Subtests ──────────────────────────────────────────────────────────────

// ListSubtests retrieves a tryout's subtests in section order.
func (r *TryoutRepository) ListSubtests(ctx context.Context, tryoutID uuid.UUID) ([]model.Subtest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tryout_id, name, order_num, duration_seconds
		 FROM subtests WHERE tryout_id = $1 ORDER BY order_num ASC`, tryoutID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subtests []model.Subtest
	for rows.Next() {
		var s model.Subtest
		if err := rows.Scan(&s.ID, &s.TryoutID, &s.Name, &s.OrderNum, &s.DurationSeconds); err != nil {
			return nil, err
		}
		subtests = append(subtests, s)
	}
	return subtests, rows.Err()
}

// CreateSubtest inserts a subtest for a tryout.
func (r *TryoutRepository) CreateSubtest(ctx context.Context, s *model.Subtest) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO subtests (tryout_id, name, order_num, duration_seconds)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		s.TryoutID, s.Name, s.OrderNum, s.DurationSeconds,
	).Scan(&s.ID)
}

// ─── Questions ─────────────────────────────────────────────────────────────

// ListQuestions retrieves all questions of a subtest in order, answer key included.
func (r *TryoutRepository) ListQuestions(ctx context.Context, subtestID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, subtest_id, question_text, options, correct_option, order_num
		 FROM questions WHERE subtest_id = $1 ORDER BY order_num ASC`, subtestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.SubtestID, &q.QuestionText, &q.Options, &q.CorrectOption, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CreateQuestion inserts a question for a subtest.
func (r *TryoutRepository) CreateQuestion(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (subtest_id, question_text, options, correct_option, order_num)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		q.SubtestID, q.QuestionText, q.Options, q.CorrectOption, q.OrderNum,
	).Scan(&q.ID)
}
