package memstore

import (
	"context"
	"sort"
	"strings"

	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/database"
)

func (db *DB) CreateOrg(_ context.Context, o *models.Organization) (*models.Organization, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.userByUsername(o.Username) == nil {
		return nil, database.ErrNotFound
	}
	for _, other := range db.orgs {
		if other.Username == o.Username || strings.EqualFold(other.OrgName, o.OrgName) {
			return nil, database.ErrConflict
		}
	}
	c := *o
	c.ID = db.nextID()
	c.ImgURL.ID = db.nextID()
	c.CreatedAt = db.now()
	db.orgs[c.ID] = &c
	out := c
	return &out, nil
}

func (db *DB) GetOrgByID(_ context.Context, id int64) (*models.Organization, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	o, ok := db.orgs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := *o
	c.ListID = ptrCopy(o.ListID)
	return &c, nil
}

func (db *DB) GetOrgByName(_ context.Context, name string) (*models.Organization, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, o := range db.orgs {
		if strings.EqualFold(o.OrgName, name) {
			c := *o
			c.ListID = ptrCopy(o.ListID)
			return &c, nil
		}
	}
	return nil, database.ErrNotFound
}

func (db *DB) GetOrgByOwner(_ context.Context, username string) (*models.Organization, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, o := range db.orgs {
		if o.Username == username {
			c := *o
			c.ListID = ptrCopy(o.ListID)
			return &c, nil
		}
	}
	return nil, database.ErrNotFound
}

func (db *DB) ListOrgs(_ context.Context) ([]models.Organization, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]models.Organization, 0, len(db.orgs))
	for _, o := range db.orgs {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrgName < out[j].OrgName })
	return out, nil
}

func (db *DB) UpdateOrg(_ context.Context, o *models.Organization) (*models.Organization, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	cur, ok := db.orgs[o.ID]
	if !ok {
		return nil, database.ErrNotFound
	}
	for _, other := range db.orgs {
		if other.ID != o.ID && strings.EqualFold(other.OrgName, o.OrgName) {
			return nil, database.ErrConflict
		}
	}
	cur.OrgName = o.OrgName
	cur.OrgURL = o.OrgURL
	cur.Email = o.Email
	cur.Description = o.Description
	c := *cur
	return &c, nil
}

// SetOrgApproval sets the approval flag and the published flag of every owned larp.
func (db *DB) SetOrgApproval(_ context.Context, id int64, approved bool) (*models.Organization, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	o, ok := db.orgs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	o.IsApproved = approved
	for _, l := range db.larps {
		if l.OrgID == id {
			l.IsPublished = approved
		}
	}
	c := *o
	return &c, nil
}

func (db *DB) DeleteOrg(_ context.Context, id int64) (*models.Organization, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	o, ok := db.orgs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := *o
	db.deleteOrgLocked(id)
	return &c, nil
}

func (db *DB) deleteOrgLocked(id int64) {
	for lid, l := range db.larps {
		if l.OrgID == id {
			delete(db.larps, lid)
		}
	}
	for k := range db.follows {
		if k.orgID == id {
			delete(db.follows, k)
		}
	}
	for nid, n := range db.newsletters {
		if n.OrgID != nil && *n.OrgID == id {
			delete(db.newsletters, nid)
		}
	}
	delete(db.orgs, id)
}

func (db *DB) SetOrgListID(_ context.Context, orgID int64, listID *int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	o, ok := db.orgs[orgID]
	if !ok {
		return database.ErrNotFound
	}
	o.ListID = ptrCopy(listID)
	return nil
}

func (db *DB) SetOrgImage(_ context.Context, orgID int64, img models.ImageSet) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	o, ok := db.orgs[orgID]
	if !ok {
		return database.ErrNotFound
	}
	img.ID = o.ImgURL.ID
	o.ImgURL = img
	return nil
}

// Follows

func (db *DB) GetFollow(_ context.Context, userID, orgID int64) (*models.Follow, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	emails, ok := db.follows[followKey{userID, orgID}]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &models.Follow{UserID: userID, OrgID: orgID, Emails: emails}, nil
}

func (db *DB) UpsertFollow(_ context.Context, f models.Follow) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.users[f.UserID]; !ok {
		return database.ErrNotFound
	}
	if _, ok := db.orgs[f.OrgID]; !ok {
		return database.ErrNotFound
	}
	db.follows[followKey{f.UserID, f.OrgID}] = f.Emails
	return nil
}

func (db *DB) DeleteFollow(_ context.Context, userID, orgID int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	k := followKey{userID, orgID}
	if _, ok := db.follows[k]; !ok {
		return database.ErrNotFound
	}
	delete(db.follows, k)
	return nil
}

func (db *DB) ListFollowers(_ context.Context, orgID int64) ([]models.Follower, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := []models.Follower{}
	for k, emails := range db.follows {
		if k.orgID != orgID {
			continue
		}
		if u, ok := db.users[k.userID]; ok {
			out = append(out, models.Follower{UserID: u.ID, Username: u.Username, Emails: emails})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}
