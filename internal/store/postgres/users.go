package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/pkg/apperr"
)

// UserRepository reads public user fields.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a user repository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// ResolveUsers returns the public fields of every known user in ids.
func (r *UserRepository) ResolveUsers(ctx context.Context, ids []uuid.UUID) (models.UserDirectory, error) {
	dir := make(models.UserDirectory, len(ids))
	if len(ids) == 0 {
		return dir, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, email FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, apperr.Storage("resolve users", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u models.UserPublic
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, apperr.Storage("scan user", err)
		}
		dir[u.ID] = u
	}
	return dir, apperr.Storage("resolve users", rows.Err())
}

// UpsertUser mirrors an authenticated identity into the users table.
func (r *UserRepository) UpsertUser(ctx context.Context, id models.Identity) error {
	const q = `INSERT INTO users (id, name, email) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email`
	_, err := r.pool.Exec(ctx, q, id.ID, id.Name, id.Email)
	return apperr.Storage("upsert user", err)
}
