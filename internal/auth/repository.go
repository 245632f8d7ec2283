package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/database"
)

// Repository persists password reset requests.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreatePasswordReset inserts req and fills CreatedAt.
func (r *Repository) CreatePasswordReset(ctx context.Context, req *models.PasswordResetRequest) error {
	const q = `INSERT INTO password_reset_requests (id, username) VALUES ($1, $2) RETURNING created_at`
	return database.Translate(r.pool.QueryRow(ctx, q, req.ID, req.Username).Scan(&req.CreatedAt))
}

// GetPasswordReset returns the request with id joined with the user's email.
func (r *Repository) GetPasswordReset(ctx context.Context, id uuid.UUID) (*models.PasswordResetRequest, error) {
	const q = `SELECT p.id, p.username, u.email, p.created_at
		FROM password_reset_requests p JOIN users u ON u.username = p.username
		WHERE p.id = $1`
	var req models.PasswordResetRequest
	if err := r.pool.QueryRow(ctx, q, id).Scan(&req.ID, &req.Username, &req.Email, &req.CreatedAt); err != nil {
		return nil, database.Translate(err)
	}
	return &req, nil
}

// DeletePasswordResets removes every outstanding request of username.
func (r *Repository) DeletePasswordResets(ctx context.Context, username string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM password_reset_requests WHERE username = $1`, username)
	return err
}
