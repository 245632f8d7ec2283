package newsletters

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/database"
)

// Repository handles newsletter persistence. Writes to a newsletter only match drafts,
// so a sent newsletter reads as not found to UpdateNewsletter, MarkNewsletterSent and
// DeleteNewsletter.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a newsletters repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const newsletterColumns = `id, org_id, subject, text, force_send, created_at, sent_at`

func scanNewsletter(row pgx.Row) (*models.Newsletter, error) {
	var (
		n     models.Newsletter
		force bool
	)
	if err := row.Scan(&n.ID, &n.OrgID, &n.Subject, &n.Text, &force, &n.CreatedAt, &n.SentAt); err != nil {
		return nil, database.Translate(err)
	}
	n.ForceSend = &force
	return &n, nil
}

// CreateNewsletter inserts a draft.
func (r *Repository) CreateNewsletter(ctx context.Context, n *models.Newsletter) (*models.Newsletter, error) {
	const q = `INSERT INTO newsletters (org_id, subject, text, force_send) VALUES ($1, $2, $3, $4)
		RETURNING ` + newsletterColumns
	out, err := scanNewsletter(r.pool.QueryRow(ctx, q, n.OrgID, n.Subject, n.Text, n.Forced()))
	if err != nil {
		// org_id foreign key
		if database.IsForeignKeyViolation(err) {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	return out, nil
}

// GetNewsletter returns a newsletter by id.
func (r *Repository) GetNewsletter(ctx context.Context, id int64) (*models.Newsletter, error) {
	return scanNewsletter(r.pool.QueryRow(ctx, `SELECT `+newsletterColumns+` FROM newsletters WHERE id = $1`, id))
}

// ListNewsletters returns every newsletter, or those of orgID when set, newest first.
func (r *Repository) ListNewsletters(ctx context.Context, orgID *int64) ([]models.Newsletter, error) {
	q := `SELECT ` + newsletterColumns + ` FROM newsletters`
	var args []any
	if orgID != nil {
		q += ` WHERE org_id = $1`
		args = append(args, *orgID)
	}
	rows, err := r.pool.Query(ctx, q+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Newsletter{}
	for rows.Next() {
		n, err := scanNewsletter(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *n)
	}
	return list, rows.Err()
}

// UpdateNewsletter rewrites subject and text of a draft.
func (r *Repository) UpdateNewsletter(ctx context.Context, n *models.Newsletter) (*models.Newsletter, error) {
	const q = `UPDATE newsletters SET subject = $2, text = $3 WHERE id = $1 AND sent_at IS NULL
		RETURNING ` + newsletterColumns
	return scanNewsletter(r.pool.QueryRow(ctx, q, n.ID, n.Subject, n.Text))
}

// MarkNewsletterSent stamps a draft with at.
func (r *Repository) MarkNewsletterSent(ctx context.Context, id int64, at time.Time) (*models.Newsletter, error) {
	const q = `UPDATE newsletters SET sent_at = $2 WHERE id = $1 AND sent_at IS NULL
		RETURNING ` + newsletterColumns
	return scanNewsletter(r.pool.QueryRow(ctx, q, id, at))
}

// DeleteNewsletter removes a draft.
func (r *Repository) DeleteNewsletter(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM newsletters WHERE id = $1 AND sent_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (r *Repository) emails(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ListFollowerEmails returns the addresses of users following orgID with emails enabled.
func (r *Repository) ListFollowerEmails(ctx context.Context, orgID int64) ([]string, error) {
	return r.emails(ctx, `SELECT u.email FROM user_follows f JOIN users u ON u.id = f.user_id
		WHERE f.org_id = $1 AND f.emails ORDER BY u.email`, orgID)
}

// ListSubscriberEmails returns the addresses of users subscribed to platform newsletters.
func (r *Repository) ListSubscriberEmails(ctx context.Context) ([]string, error) {
	return r.emails(ctx, `SELECT email FROM users WHERE newsletter_subscribed ORDER BY email`)
}

// ListAllEmails returns every user address.
func (r *Repository) ListAllEmails(ctx context.Context) ([]string, error) {
	return r.emails(ctx, `SELECT email FROM users ORDER BY email`)
}
