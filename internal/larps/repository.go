package larps

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/database"
)

// Repository handles larp persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a larps repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const larpSelect = `SELECT l.id, l.org_id, l.title, l.description, l.start_at, l.end_at, l.all_day,
	l.city, l.country, l.language, l.ticket_status, l.event_url, l.is_published, l.is_featured,
	i.id, i.sm, i.md, i.lg, l.created_at,
	o.id, o.org_name, o.username, o.is_approved,
	COALESCE((SELECT array_agg(t.name ORDER BY t.name) FROM larp_tags lt JOIN tags t ON t.id = lt.tag_id
		WHERE lt.larp_id = l.id), '{}')
	FROM larps l
	JOIN organizations o ON o.id = l.org_id
	JOIN image_sets i ON i.id = l.img_set_id`

func scanLarp(row pgx.Row) (*models.Larp, error) {
	var (
		l   models.Larp
		org models.OrgSummary
	)
	err := row.Scan(&l.ID, &l.OrgID, &l.Title, &l.Description, &l.Start, &l.End, &l.AllDay,
		&l.City, &l.Country, &l.Language, &l.TicketStatus, &l.EventURL, &l.IsPublished, &l.IsFeatured,
		&l.ImgURL.ID, &l.ImgURL.Sm, &l.ImgURL.Md, &l.ImgURL.Lg, &l.CreatedAt,
		&org.ID, &org.OrgName, &org.Username, &org.IsApproved,
		&l.Tags)
	if err != nil {
		return nil, database.Translate(err)
	}
	l.Organization = &org
	return &l, nil
}

// replaceTags points the larp at exactly tags, creating unknown tag names.
func replaceTags(ctx context.Context, tx pgx.Tx, larpID int64, tags []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM larp_tags WHERE larp_id = $1`, larpID); err != nil {
		return err
	}
	for _, name := range tags {
		var tagID int64
		const upsert = `INSERT INTO tags (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id`
		if err := tx.QueryRow(ctx, upsert, name).Scan(&tagID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO larp_tags (larp_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			larpID, tagID); err != nil {
			return err
		}
	}
	return nil
}

// CreateLarp inserts the larp, its image set and its tags in one transaction.
func (r *Repository) CreateLarp(ctx context.Context, l *models.Larp) (*models.Larp, error) {
	var id int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var imgID int64
		if err := tx.QueryRow(ctx, `INSERT INTO image_sets (sm, md, lg) VALUES ($1, $2, $3) RETURNING id`,
			l.ImgURL.Sm, l.ImgURL.Md, l.ImgURL.Lg).Scan(&imgID); err != nil {
			return err
		}
		const q = `INSERT INTO larps (org_id, title, description, start_at, end_at, all_day, city, country,
			language, ticket_status, event_url, is_published, is_featured, img_set_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`
		if err := tx.QueryRow(ctx, q, l.OrgID, l.Title, l.Description, l.Start, l.End, l.AllDay, l.City,
			l.Country, l.Language, string(l.TicketStatus), l.EventURL, l.IsPublished, l.IsFeatured, imgID).
			Scan(&id); err != nil {
			return err
		}
		return replaceTags(ctx, tx, id, models.NormalizeTags(l.Tags))
	})
	if err != nil {
		return nil, database.Translate(err)
	}
	return r.GetLarpByID(ctx, id)
}

// GetLarpByID returns a larp with its organization summary and tags.
func (r *Repository) GetLarpByID(ctx context.Context, id int64) (*models.Larp, error) {
	return scanLarp(r.pool.QueryRow(ctx, larpSelect+` WHERE l.id = $1`, id))
}

// likeEscaper makes user input match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// where renders q as a SQL condition list with positional args.
func where(q models.LarpQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.Title != "" {
		add(`l.title ILIKE '%%' || $%d || '%%' ESCAPE '\'`, likeEscaper.Replace(q.Title))
	}
	if q.City != "" {
		add("lower(l.city) = lower($%d)", q.City)
	}
	if q.Country != "" {
		add("lower(l.country) = lower($%d)", q.Country)
	}
	if q.Language != "" {
		add("lower(l.language) = lower($%d)", q.Language)
	}
	if q.OrgID != 0 {
		add("l.org_id = $%d", q.OrgID)
	}
	if len(q.Tags) > 0 {
		lower := make([]string, 0, len(q.Tags))
		for _, t := range q.Tags {
			lower = append(lower, strings.ToLower(strings.TrimSpace(t)))
		}
		add(`l.id IN (SELECT lt.larp_id FROM larp_tags lt JOIN tags t ON t.id = lt.tag_id
			WHERE lower(t.name) = ANY($%d))`, lower)
	}
	if len(q.TicketStatus) > 0 {
		statuses := make([]string, 0, len(q.TicketStatus))
		for _, s := range q.TicketStatus {
			statuses = append(statuses, string(s))
		}
		add("l.ticket_status = ANY($%d)", statuses)
	}
	if q.IsPublished != nil {
		add("l.is_published = $%d", *q.IsPublished)
	}
	if q.IsFeatured != nil {
		add("l.is_featured = $%d", *q.IsFeatured)
	}
	if q.StartAfter != nil {
		add("l.start_at >= $%d", *q.StartAfter)
	}
	if q.StartBefore != nil {
		add("l.start_at <= $%d", *q.StartBefore)
	}
	if q.EndAfter != nil {
		add("l.end_at >= $%d", *q.EndAfter)
	}
	if q.EndBefore != nil {
		add("l.end_at <= $%d", *q.EndBefore)
	}
	if q.CreatedAfter != nil {
		add("l.created_at >= $%d", *q.CreatedAfter)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListLarps returns the larps matching q ordered by start.
func (r *Repository) ListLarps(ctx context.Context, q models.LarpQuery) ([]models.Larp, error) {
	cond, args := where(q)
	rows, err := r.pool.Query(ctx, larpSelect+cond+` ORDER BY l.start_at, l.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Larp{}
	for rows.Next() {
		l, err := scanLarp(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *l)
	}
	return list, rows.Err()
}

// UpdateLarp writes the editable columns, the flags and the tags of l.
func (r *Repository) UpdateLarp(ctx context.Context, l *models.Larp) (*models.Larp, error) {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `UPDATE larps SET title = $2, description = $3, start_at = $4, end_at = $5, all_day = $6,
			city = $7, country = $8, language = $9, ticket_status = $10, event_url = $11,
			is_published = $12, is_featured = $13
			WHERE id = $1`
		tag, err := tx.Exec(ctx, q, l.ID, l.Title, l.Description, l.Start, l.End, l.AllDay, l.City,
			l.Country, l.Language, string(l.TicketStatus), l.EventURL, l.IsPublished, l.IsFeatured)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return database.ErrNotFound
		}
		return replaceTags(ctx, tx, l.ID, models.NormalizeTags(l.Tags))
	})
	if err != nil {
		return nil, database.Translate(err)
	}
	return r.GetLarpByID(ctx, l.ID)
}

// SetLarpPublished sets is_published.
func (r *Repository) SetLarpPublished(ctx context.Context, id int64, published bool) (*models.Larp, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE larps SET is_published = $2 WHERE id = $1`, id, published)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, database.ErrNotFound
	}
	return r.GetLarpByID(ctx, id)
}

// DeleteLarp removes the larp and its image set and returns the deleted larp.
func (r *Repository) DeleteLarp(ctx context.Context, id int64) (*models.Larp, error) {
	l, err := r.GetLarpByID(ctx, id)
	if err != nil {
		return nil, err
	}
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM larps WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return database.ErrNotFound
		}
		_, err = tx.Exec(ctx, `DELETE FROM image_sets WHERE id = $1`, l.ImgURL.ID)
		return err
	})
	if err != nil {
		return nil, database.Translate(err)
	}
	return l, nil
}

// SetLarpImage overwrites the URLs of the larp's image set.
func (r *Repository) SetLarpImage(ctx context.Context, id int64, img models.ImageSet) error {
	const q = `UPDATE image_sets SET sm = $2, md = $3, lg = $4
		WHERE id = (SELECT img_set_id FROM larps WHERE id = $1)`
	tag, err := r.pool.Exec(ctx, q, id, img.Sm, img.Md, img.Lg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}
