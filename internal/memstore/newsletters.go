package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/database"
)

func copyNewsletter(n *models.Newsletter) *models.Newsletter {
	c := *n
	c.OrgID = ptrCopy(n.OrgID)
	c.ForceSend = ptrCopy(n.ForceSend)
	c.SentAt = ptrCopy(n.SentAt)
	return &c
}

func (db *DB) CreateNewsletter(_ context.Context, n *models.Newsletter) (*models.Newsletter, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if n.OrgID != nil {
		if _, ok := db.orgs[*n.OrgID]; !ok {
			return nil, database.ErrNotFound
		}
	}
	c := copyNewsletter(n)
	c.ID = db.nextID()
	c.CreatedAt = db.now()
	c.SentAt = nil
	if c.ForceSend == nil {
		f := false
		c.ForceSend = &f
	}
	db.newsletters[c.ID] = c
	return copyNewsletter(c), nil
}

func (db *DB) GetNewsletter(_ context.Context, id int64) (*models.Newsletter, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	n, ok := db.newsletters[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return copyNewsletter(n), nil
}

func (db *DB) ListNewsletters(_ context.Context, orgID *int64) ([]models.Newsletter, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := []models.Newsletter{}
	for _, n := range db.newsletters {
		if orgID != nil && (n.OrgID == nil || *n.OrgID != *orgID) {
			continue
		}
		out = append(out, *copyNewsletter(n))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateNewsletter rewrites subject and text of a draft. Sent newsletters are not found.
func (db *DB) UpdateNewsletter(_ context.Context, n *models.Newsletter) (*models.Newsletter, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	cur, ok := db.newsletters[n.ID]
	if !ok || cur.SentAt != nil {
		return nil, database.ErrNotFound
	}
	cur.Subject = n.Subject
	cur.Text = n.Text
	return copyNewsletter(cur), nil
}

// MarkNewsletterSent stamps a draft. Already sent newsletters are not found.
func (db *DB) MarkNewsletterSent(_ context.Context, id int64, at time.Time) (*models.Newsletter, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	cur, ok := db.newsletters[id]
	if !ok || cur.SentAt != nil {
		return nil, database.ErrNotFound
	}
	cur.SentAt = &at
	return copyNewsletter(cur), nil
}

// DeleteNewsletter removes a draft. Sent newsletters are not found.
func (db *DB) DeleteNewsletter(_ context.Context, id int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	cur, ok := db.newsletters[id]
	if !ok || cur.SentAt != nil {
		return database.ErrNotFound
	}
	delete(db.newsletters, id)
	return nil
}

func (db *DB) ListFollowerEmails(_ context.Context, orgID int64) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []string
	for k, emails := range db.follows {
		if k.orgID != orgID || !emails {
			continue
		}
		if u, ok := db.users[k.userID]; ok {
			out = append(out, u.Email)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (db *DB) ListSubscriberEmails(_ context.Context) ([]string, error) {
	return db.emails(func(u *models.User) bool { return u.NewsletterSubscribed }), nil
}

func (db *DB) ListAllEmails(_ context.Context) ([]string, error) {
	return db.emails(func(*models.User) bool { return true }), nil
}

func (db *DB) emails(keep func(*models.User) bool) []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []string
	for _, u := range db.users {
		if keep(u) {
			out = append(out, u.Email)
		}
	}
	sort.Strings(out)
	return out
}
