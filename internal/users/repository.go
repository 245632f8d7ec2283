package users

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/database"
)

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a user repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, username, password_hash, email, first_name, last_name, is_admin,
	newsletter_subscribed, newsletter_remote_id, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Password, &u.Email, &u.FirstName, &u.LastName, &u.IsAdmin,
		&u.NewsletterSubscribed, &u.NewsletterRemoteID, &u.CreatedAt)
	if err != nil {
		return nil, database.Translate(err)
	}
	return &u, nil
}

// CreateUser inserts u.
func (r *Repository) CreateUser(ctx context.Context, u *models.User) (*models.User, error) {
	q := `INSERT INTO users (username, password_hash, email, first_name, last_name, is_admin, newsletter_subscribed)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, q, u.Username, u.Password, u.Email, u.FirstName, u.LastName, u.IsAdmin, u.NewsletterSubscribed))
}

// GetUserByID returns a user by id.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByUsername returns a user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

// GetUserByEmail returns a user by email, case-insensitively.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

// ListUsers returns every user ordered by username.
func (r *Repository) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *u)
	}
	return list, rows.Err()
}

// UpdateUser writes the mutable columns of u.
func (r *Repository) UpdateUser(ctx context.Context, u *models.User) (*models.User, error) {
	q := `UPDATE users SET password_hash = $2, email = $3, first_name = $4, last_name = $5,
		is_admin = $6, newsletter_subscribed = $7
		WHERE id = $1 RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, q, u.ID, u.Password, u.Email, u.FirstName, u.LastName, u.IsAdmin, u.NewsletterSubscribed))
}

// DeleteUser deletes username; follows, the owned organization and its larps cascade.
func (r *Repository) DeleteUser(ctx context.Context, username string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// SetRemoteContactID stores the mailing contact id of a user.
func (r *Repository) SetRemoteContactID(ctx context.Context, userID int64, remoteID *int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET newsletter_remote_id = $2 WHERE id = $1`, userID, remoteID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// ListFollowedOrgs returns the organizations userID follows.
func (r *Repository) ListFollowedOrgs(ctx context.Context, userID int64) ([]models.FollowedOrg, error) {
	const q = `SELECT o.id, o.org_name, f.emails
		FROM user_follows f JOIN organizations o ON o.id = f.org_id
		WHERE f.user_id = $1 ORDER BY o.org_name`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.FollowedOrg{}
	for rows.Next() {
		var f models.FollowedOrg
		if err := rows.Scan(&f.ID, &f.OrgName, &f.Emails); err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	return list, rows.Err()
}
