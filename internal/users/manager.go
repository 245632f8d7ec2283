package users

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/larpcal/backend/internal/auth"
	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/database"
	"github.com/larpcal/backend/pkg/httperr"
	"github.com/larpcal/backend/pkg/utils"
)

// Store persists users.
type Store interface {
	CreateUser(ctx context.Context, u *models.User) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, u *models.User) (*models.User, error)
	DeleteUser(ctx context.Context, username string) error
	ListFollowedOrgs(ctx context.Context, userID int64) ([]models.FollowedOrg, error)
}

// OrgLookup finds the organization a user owns.
type OrgLookup interface {
	GetOrgByOwner(ctx context.Context, username string) (*models.Organization, error)
}

// OrgRemover deletes an organization together with its larps, images and remote list.
// *organizations.Manager implements it.
type OrgRemover interface {
	Delete(ctx context.Context, id int64) (*models.Organization, error)
}

// Subscriptions mirrors account changes into the mailing provider. Calls are best-effort.
type Subscriptions interface {
	SyncPlatformSubscription(ctx context.Context, userID int64, subscribed bool)
	RemoveContact(ctx context.Context, remoteID *int64)
}

// Manager implements account rules on top of Store.
type Manager struct {
	store   Store
	orgs    OrgLookup
	removal OrgRemover
	subs    Subscriptions
	hasher *utils.Hasher
	logger *zap.Logger
}

// NewManager creates a user manager.
func NewManager(store Store, orgs OrgLookup, removal OrgRemover, subs Subscriptions, hasher *utils.Hasher, logger *zap.Logger) *Manager {
	return &Manager{store: store, orgs: orgs, removal: removal, subs: subs, hasher: hasher, logger: logger}
}

// Register creates an account.
func (m *Manager) Register(ctx context.Context, in models.UserForCreate) (*models.User, error) {
	if _, err := m.store.GetUserByUsername(ctx, in.Username); err == nil {
		return nil, httperr.BadRequest("Username %s already exists", in.Username)
	}
	if _, err := m.store.GetUserByEmail(ctx, in.Email); err == nil {
		return nil, httperr.BadRequest("An account with that email address already exists")
	}

	hash, err := m.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := m.store.CreateUser(ctx, &models.User{
		Username:             in.Username,
		Password:             hash,
		Email:                in.Email,
		FirstName:            in.FirstName,
		LastName:             in.LastName,
		IsAdmin:              in.IsAdmin,
		NewsletterSubscribed: in.Subscribed,
	})
	if errors.Is(err, database.ErrConflict) {
		return nil, httperr.BadRequest("Username or email already exists")
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	m.logger.Info("user registered", zap.String("username", user.Username))
	if user.NewsletterSubscribed {
		m.subs.SyncPlatformSubscription(ctx, user.ID, true)
	}
	return user, nil
}

// Authenticate checks a username and password.
func (m *Manager) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := m.store.GetUserByUsername(ctx, username)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil || !m.hasher.Check(password, user.Password) {
		return nil, httperr.Unauthorized("Invalid username/password")
	}
	return user, nil
}

// IdentityOf builds the token identity of username from current state.
func (m *Manager) IdentityOf(ctx context.Context, username string) (auth.Identity, error) {
	user, err := m.GetUser(ctx, username)
	if err != nil {
		return auth.Identity{}, err
	}
	org, err := m.ownedOrg(ctx, username)
	if err != nil {
		return auth.Identity{}, err
	}
	id := auth.Identity{UserID: user.ID, Username: user.Username, IsAdmin: user.IsAdmin}
	if org != nil {
		id.IsOrganizer = true
		id.IsApprovedOrganizer = org.IsApproved
	}
	return id, nil
}

// GetUser returns the stored user.
func (m *Manager) GetUser(ctx context.Context, username string) (*models.User, error) {
	user, err := m.store.GetUserByUsername(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		return nil, httperr.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func (m *Manager) ownedOrg(ctx context.Context, username string) (*models.Organization, error) {
	org, err := m.orgs.GetOrgByOwner(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	return org, nil
}

// Get returns the public form of username including the owned organization.
func (m *Manager) Get(ctx context.Context, username string) (*models.PublicUser, error) {
	user, err := m.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	return m.public(ctx, user)
}

func (m *Manager) public(ctx context.Context, user *models.User) (*models.PublicUser, error) {
	org, err := m.ownedOrg(ctx, user.Username)
	if err != nil {
		return nil, err
	}
	pu := user.ToPublic(org)
	return &pu, nil
}

// List returns every user.
func (m *Manager) List(ctx context.Context) ([]models.PublicUser, error) {
	list, err := m.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]models.PublicUser, 0, len(list))
	for i := range list {
		pu, err := m.public(ctx, &list[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *pu)
	}
	return out, nil
}

// Update applies a partial update. Only admins may change admin status.
func (m *Manager) Update(ctx context.Context, username string, in models.UserForUpdate, byAdmin bool) (*models.PublicUser, error) {
	if in.Empty() {
		return nil, httperr.BadRequest("No data provided")
	}
	if in.IsAdmin != nil && !byAdmin {
		return nil, httperr.Unauthorized("Only admins can change admin status")
	}
	user, err := m.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	wasSubscribed := user.NewsletterSubscribed

	if in.Password != nil {
		hash, err := m.hasher.Hash(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.Password = hash
	}
	if in.Email != nil {
		user.Email = *in.Email
	}
	if in.FirstName != nil {
		user.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		user.LastName = *in.LastName
	}
	if in.Subscribed != nil {
		user.NewsletterSubscribed = *in.Subscribed
	}
	if in.IsAdmin != nil {
		user.IsAdmin = *in.IsAdmin
	}

	updated, err := m.store.UpdateUser(ctx, user)
	if errors.Is(err, database.ErrConflict) {
		return nil, httperr.BadRequest("An account with that email address already exists")
	}
	if errors.Is(err, database.ErrNotFound) {
		return nil, httperr.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	if updated.NewsletterSubscribed != wasSubscribed {
		m.subs.SyncPlatformSubscription(ctx, updated.ID, updated.NewsletterSubscribed)
	}
	return m.public(ctx, updated)
}

// ResetPassword sets a new password after a confirmed reset.
func (m *Manager) ResetPassword(ctx context.Context, username, password string) (*models.PublicUser, error) {
	return m.Update(ctx, username, models.UserForUpdate{Password: &password}, false)
}

// Delete removes the owned organization the way organization deletion does, then the
// account and its follows, then deregisters the remote contact.
func (m *Manager) Delete(ctx context.Context, username string) error {
	user, err := m.GetUser(ctx, username)
	if err != nil {
		return err
	}
	org, err := m.ownedOrg(ctx, username)
	if err != nil {
		return err
	}
	if org != nil {
		if _, err := m.removal.Delete(ctx, org.ID); err != nil && httperr.StatusOf(err) != http.StatusNotFound {
			return fmt.Errorf("delete owned organization: %w", err)
		}
	}
	if err := m.store.DeleteUser(ctx, username); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return httperr.NotFound("User not found")
		}
		return fmt.Errorf("delete user: %w", err)
	}

	m.logger.Info("user deleted", zap.String("username", username))
	m.subs.RemoveContact(ctx, user.NewsletterRemoteID)
	return nil
}

// Follows lists the organizations username follows.
func (m *Manager) Follows(ctx context.Context, username string) ([]models.FollowedOrg, error) {
	user, err := m.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	list, err := m.store.ListFollowedOrgs(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list follows: %w", err)
	}
	return list, nil
}
