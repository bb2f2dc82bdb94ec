package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yukbelajar/tryout-backend/internal/model"
)

// UserRepository maps external identity-provider ids to internal user rows.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByExternalID retrieves a user by their identity-provider id.
func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	u := &model.User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, external_id, name, created_at FROM users WHERE external_id = $1`, externalID,
	).Scan(&u.ID, &u.ExternalID, &u.Name, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Upsert creates the user row on first sight of an external id, refreshing
// the display name on subsequent logins.
func (r *UserRepository) Upsert(ctx context.Context, u *model.User) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO users (external_id, name)
		 VALUES ($1, $2)
		 ON CONFLICT (external_id) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, created_at`,
		u.ExternalID, u.Name,
	).Scan(&u.ID, &u.CreatedAt)
}
