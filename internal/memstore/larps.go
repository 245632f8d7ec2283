package memstore

import (
	"context"
	"sort"

	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/database"
)

// larpView copies l and attaches its organization summary.
func (db *DB) larpView(l *models.Larp) models.Larp {
	c := *l
	c.Tags = append([]string{}, l.Tags...)
	if o, ok := db.orgs[l.OrgID]; ok {
		s := o.Summary()
		s.ImgURL = nil
		c.Organization = &s
	}
	return c
}

func (db *DB) CreateLarp(_ context.Context, l *models.Larp) (*models.Larp, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.orgs[l.OrgID]; !ok {
		return nil, database.ErrNotFound
	}
	c := *l
	c.ID = db.nextID()
	c.ImgURL.ID = db.nextID()
	c.Tags = models.NormalizeTags(l.Tags)
	c.CreatedAt = db.now()
	db.larps[c.ID] = &c
	out := db.larpView(&c)
	return &out, nil
}

func (db *DB) GetLarpByID(_ context.Context, id int64) (*models.Larp, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	l, ok := db.larps[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	out := db.larpView(l)
	return &out, nil
}

func (db *DB) ListLarps(_ context.Context, q models.LarpQuery) ([]models.Larp, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := []models.Larp{}
	for _, l := range db.larps {
		if q.Matches(l) {
			out = append(out, db.larpView(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

// UpdateLarp replaces the editable fields of l, including the published and featured flags.
func (db *DB) UpdateLarp(_ context.Context, l *models.Larp) (*models.Larp, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	cur, ok := db.larps[l.ID]
	if !ok {
		return nil, database.ErrNotFound
	}
	cur.Title = l.Title
	cur.Description = l.Description
	cur.Start = l.Start
	cur.End = l.End
	cur.AllDay = l.AllDay
	cur.City = l.City
	cur.Country = l.Country
	cur.Language = l.Language
	cur.TicketStatus = l.TicketStatus
	cur.EventURL = l.EventURL
	cur.IsPublished = l.IsPublished
	cur.IsFeatured = l.IsFeatured
	cur.Tags = models.NormalizeTags(l.Tags)
	out := db.larpView(cur)
	return &out, nil
}

func (db *DB) SetLarpPublished(_ context.Context, id int64, published bool) (*models.Larp, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	l, ok := db.larps[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	l.IsPublished = published
	out := db.larpView(l)
	return &out, nil
}

func (db *DB) DeleteLarp(_ context.Context, id int64) (*models.Larp, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	l, ok := db.larps[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	out := db.larpView(l)
	delete(db.larps, id)
	return &out, nil
}

func (db *DB) SetLarpImage(_ context.Context, id int64, img models.ImageSet) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	l, ok := db.larps[id]
	if !ok {
		return database.ErrNotFound
	}
	img.ID = l.ImgURL.ID
	l.ImgURL = img
	return nil
}
