package organizations

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/database"
)

// Repository handles organization and follow persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an organizations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orgSelect = `SELECT o.id, o.username, o.org_name, o.org_url, o.email, o.description, o.is_approved,
	i.id, i.sm, i.md, i.lg, o.list_id, o.created_at
	FROM organizations o JOIN image_sets i ON i.id = o.img_set_id`

func scanOrg(row pgx.Row) (*models.Organization, error) {
	var o models.Organization
	err := row.Scan(&o.ID, &o.Username, &o.OrgName, &o.OrgURL, &o.Email, &o.Description, &o.IsApproved,
		&o.ImgURL.ID, &o.ImgURL.Sm, &o.ImgURL.Md, &o.ImgURL.Lg, &o.ListID, &o.CreatedAt)
	if err != nil {
		return nil, database.Translate(err)
	}
	return &o, nil
}

// CreateOrg inserts the organization and its image set in one transaction.
func (r *Repository) CreateOrg(ctx context.Context, o *models.Organization) (*models.Organization, error) {
	var id int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var imgID int64
		if err := tx.QueryRow(ctx, `INSERT INTO image_sets (sm, md, lg) VALUES ($1, $2, $3) RETURNING id`,
			o.ImgURL.Sm, o.ImgURL.Md, o.ImgURL.Lg).Scan(&imgID); err != nil {
			return err
		}
		const q = `INSERT INTO organizations (username, org_name, org_url, email, description, img_set_id)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
		return tx.QueryRow(ctx, q, o.Username, o.OrgName, o.OrgURL, o.Email, o.Description, imgID).Scan(&id)
	})
	if err != nil {
		return nil, database.Translate(err)
	}
	return r.GetOrgByID(ctx, id)
}

// GetOrgByID returns an organization by id.
func (r *Repository) GetOrgByID(ctx context.Context, id int64) (*models.Organization, error) {
	return scanOrg(r.pool.QueryRow(ctx, orgSelect+` WHERE o.id = $1`, id))
}

// GetOrgByName returns an organization by name, case-insensitively.
func (r *Repository) GetOrgByName(ctx context.Context, name string) (*models.Organization, error) {
	return scanOrg(r.pool.QueryRow(ctx, orgSelect+` WHERE lower(o.org_name) = lower($1)`, name))
}

// GetOrgByOwner returns the organization owned by username.
func (r *Repository) GetOrgByOwner(ctx context.Context, username string) (*models.Organization, error) {
	return scanOrg(r.pool.QueryRow(ctx, orgSelect+` WHERE o.username = $1`, username))
}

// ListOrgs returns every organization ordered by name.
func (r *Repository) ListOrgs(ctx context.Context) ([]models.Organization, error) {
	rows, err := r.pool.Query(ctx, orgSelect+` ORDER BY o.org_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Organization{}
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *o)
	}
	return list, rows.Err()
}

// UpdateOrg writes the editable columns of o.
func (r *Repository) UpdateOrg(ctx context.Context, o *models.Organization) (*models.Organization, error) {
	const q = `UPDATE organizations SET org_name = $2, org_url = $3, email = $4, description = $5 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, o.ID, o.OrgName, o.OrgURL, o.Email, o.Description)
	if err != nil {
		return nil, database.Translate(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, database.ErrNotFound
	}
	return r.GetOrgByID(ctx, o.ID)
}

// SetOrgApproval sets is_approved and sets is_published of every owned larp to the same
// value in one transaction.
func (r *Repository) SetOrgApproval(ctx context.Context, id int64, approved bool) (*models.Organization, error) {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE organizations SET is_approved = $2 WHERE id = $1`, id, approved)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return database.ErrNotFound
		}
		_, err = tx.Exec(ctx, `UPDATE larps SET is_published = $2 WHERE org_id = $1`, id, approved)
		return err
	})
	if err != nil {
		return nil, database.Translate(err)
	}
	return r.GetOrgByID(ctx, id)
}

// DeleteOrg deletes the organization, its larps and their image sets in one transaction.
func (r *Repository) DeleteOrg(ctx context.Context, id int64) (*models.Organization, error) {
	org, err := r.GetOrgByID(ctx, id)
	if err != nil {
		return nil, err
	}
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `DELETE FROM larps WHERE org_id = $1 RETURNING img_set_id`, id)
		if err != nil {
			return err
		}
		imgIDs, err := pgx.CollectRows(rows, pgx.RowTo[int64])
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return database.ErrNotFound
		}
		imgIDs = append(imgIDs, org.ImgURL.ID)
		_, err = tx.Exec(ctx, `DELETE FROM image_sets WHERE id = ANY($1)`, imgIDs)
		return err
	})
	if err != nil {
		return nil, database.Translate(err)
	}
	return org, nil
}

// SetOrgListID stores the mailing list id of an organization.
func (r *Repository) SetOrgListID(ctx context.Context, orgID int64, listID *int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE organizations SET list_id = $2 WHERE id = $1`, orgID, listID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// SetOrgImage overwrites the URLs of the organization's image set.
func (r *Repository) SetOrgImage(ctx context.Context, orgID int64, img models.ImageSet) error {
	const q = `UPDATE image_sets SET sm = $2, md = $3, lg = $4
		WHERE id = (SELECT img_set_id FROM organizations WHERE id = $1)`
	tag, err := r.pool.Exec(ctx, q, orgID, img.Sm, img.Md, img.Lg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// GetFollow returns the follow of userID on orgID.
func (r *Repository) GetFollow(ctx context.Context, userID, orgID int64) (*models.Follow, error) {
	f := models.Follow{UserID: userID, OrgID: orgID}
	err := r.pool.QueryRow(ctx, `SELECT emails FROM user_follows WHERE user_id = $1 AND org_id = $2`, userID, orgID).
		Scan(&f.Emails)
	if err != nil {
		return nil, database.Translate(err)
	}
	return &f, nil
}

// UpsertFollow inserts or updates a follow.
func (r *Repository) UpsertFollow(ctx context.Context, f models.Follow) error {
	const q = `INSERT INTO user_follows (user_id, org_id, emails) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, org_id) DO UPDATE SET emails = EXCLUDED.emails`
	_, err := r.pool.Exec(ctx, q, f.UserID, f.OrgID, f.Emails)
	return database.Translate(err)
}

// DeleteFollow removes a follow.
func (r *Repository) DeleteFollow(ctx context.Context, userID, orgID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_follows WHERE user_id = $1 AND org_id = $2`, userID, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// ListFollowers returns the followers of orgID ordered by username.
func (r *Repository) ListFollowers(ctx context.Context, orgID int64) ([]models.Follower, error) {
	const q = `SELECT u.id, u.username, f.emails
		FROM user_follows f JOIN users u ON u.id = f.user_id
		WHERE f.org_id = $1 ORDER BY u.username`
	rows, err := r.pool.Query(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Follower{}
	for rows.Next() {
		var f models.Follower
		if err := rows.Scan(&f.UserID, &f.Username, &f.Emails); err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	return list, rows.Err()
}
