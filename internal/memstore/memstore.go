// Package memstore is an in-memory implementation of every repository interface.
// It backs the handler and end-to-end tests and local runs without PostgreSQL.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/database"
)

type followKey struct{ userID, orgID int64 }

// DB holds all records behind one mutex.
type DB struct {
	mu          sync.RWMutex
	seq         int64
	users       map[int64]*models.User
	orgs        map[int64]*models.Organization
	larps       map[int64]*models.Larp
	follows     map[followKey]bool
	newsletters map[int64]*models.Newsletter
	resets      map[uuid.UUID]*models.PasswordResetRequest
	now         func() time.Time
}

// New returns an empty DB.
func New() *DB {
	return &DB{
		users:       make(map[int64]*models.User),
		orgs:        make(map[int64]*models.Organization),
		larps:       make(map[int64]*models.Larp),
		follows:     make(map[followKey]bool),
		newsletters: make(map[int64]*models.Newsletter),
		resets:      make(map[uuid.UUID]*models.PasswordResetRequest),
		now:         time.Now,
	}
}

func (db *DB) nextID() int64 {
	db.seq++
	return db.seq
}

func ptrCopy[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Users

func (db *DB) CreateUser(_ context.Context, u *models.User) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, other := range db.users {
		if other.Username == u.Username || strings.EqualFold(other.Email, u.Email) {
			return nil, database.ErrConflict
		}
	}
	c := *u
	c.ID = db.nextID()
	c.CreatedAt = db.now()
	db.users[c.ID] = &c
	out := c
	return &out, nil
}

func (db *DB) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	u, ok := db.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (db *DB) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if u := db.userByUsername(username); u != nil {
		c := *u
		return &c, nil
	}
	return nil, database.ErrNotFound
}

func (db *DB) userByUsername(username string) *models.User {
	for _, u := range db.users {
		if u.Username == username {
			return u
		}
	}
	return nil
}

func (db *DB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, u := range db.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, database.ErrNotFound
}

func (db *DB) ListUsers(_ context.Context) ([]models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]models.User, 0, len(db.users))
	for _, u := range db.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (db *DB) UpdateUser(_ context.Context, u *models.User) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	cur, ok := db.users[u.ID]
	if !ok {
		return nil, database.ErrNotFound
	}
	for _, other := range db.users {
		if other.ID != u.ID && strings.EqualFold(other.Email, u.Email) {
			return nil, database.ErrConflict
		}
	}
	cur.Password = u.Password
	cur.Email = u.Email
	cur.FirstName = u.FirstName
	cur.LastName = u.LastName
	cur.IsAdmin = u.IsAdmin
	cur.NewsletterSubscribed = u.NewsletterSubscribed
	c := *cur
	return &c, nil
}

// DeleteUser removes the user and everything the schema cascades from it.
func (db *DB) DeleteUser(_ context.Context, username string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	u := db.userByUsername(username)
	if u == nil {
		return database.ErrNotFound
	}
	for k := range db.follows {
		if k.userID == u.ID {
			delete(db.follows, k)
		}
	}
	for id, o := range db.orgs {
		if o.Username == username {
			db.deleteOrgLocked(id)
		}
	}
	for id, r := range db.resets {
		if r.Username == username {
			delete(db.resets, id)
		}
	}
	delete(db.users, u.ID)
	return nil
}

func (db *DB) SetRemoteContactID(_ context.Context, userID int64, remoteID *int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	u, ok := db.users[userID]
	if !ok {
		return database.ErrNotFound
	}
	u.NewsletterRemoteID = ptrCopy(remoteID)
	return nil
}

func (db *DB) ListFollowedOrgs(_ context.Context, userID int64) ([]models.FollowedOrg, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := []models.FollowedOrg{}
	for k, emails := range db.follows {
		if k.userID != userID {
			continue
		}
		if o, ok := db.orgs[k.orgID]; ok {
			out = append(out, models.FollowedOrg{ID: o.ID, OrgName: o.OrgName, Emails: emails})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrgName < out[j].OrgName })
	return out, nil
}

// Password resets

func (db *DB) CreatePasswordReset(_ context.Context, req *models.PasswordResetRequest) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.userByUsername(req.Username) == nil {
		return database.ErrNotFound
	}
	req.CreatedAt = db.now()
	c := *req
	db.resets[c.ID] = &c
	return nil
}

func (db *DB) GetPasswordReset(_ context.Context, id uuid.UUID) (*models.PasswordResetRequest, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	r, ok := db.resets[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := *r
	if u := db.userByUsername(r.Username); u != nil {
		c.Email = u.Email
	}
	return &c, nil
}

func (db *DB) DeletePasswordResets(_ context.Context, username string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for id, r := range db.resets {
		if r.Username == username {
			delete(db.resets, id)
		}
	}
	return nil
}
