package organizations

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/larpcal/backend/internal/auth"
	"github.com/larpcal/backend/internal/images"
	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/database"
	"github.com/larpcal/backend/pkg/httperr"
)

// Store persists organizations and follows.
type Store interface {
	CreateOrg(ctx context.Context, o *models.Organization) (*models.Organization, error)
	GetOrgByID(ctx context.Context, id int64) (*models.Organization, error)
	GetOrgByName(ctx context.Context, name string) (*models.Organization, error)
	GetOrgByOwner(ctx context.Context, username string) (*models.Organization, error)
	ListOrgs(ctx context.Context) ([]models.Organization, error)
	UpdateOrg(ctx context.Context, o *models.Organization) (*models.Organization, error)
	SetOrgApproval(ctx context.Context, id int64, approved bool) (*models.Organization, error)
	DeleteOrg(ctx context.Context, id int64) (*models.Organization, error)
	SetOrgImage(ctx context.Context, id int64, img models.ImageSet) error
	GetFollow(ctx context.Context, userID, orgID int64) (*models.Follow, error)
	UpsertFollow(ctx context.Context, f models.Follow) error
	DeleteFollow(ctx context.Context, userID, orgID int64) error
	ListFollowers(ctx context.Context, orgID int64) ([]models.Follower, error)
}

// LarpLister lists larps for the detail view and image cleanup.
type LarpLister interface {
	ListLarps(ctx context.Context, q models.LarpQuery) ([]models.Larp, error)
}

// FollowSyncer mirrors follows into the mailing provider. Calls are best-effort.
type FollowSyncer interface {
	SyncOrgFollow(ctx context.Context, userID, orgID int64, member bool)
	RemoveOrgList(ctx context.Context, listID *int64)
}

// ImageProcessor stores image sets.
type ImageProcessor interface {
	Default(kind images.Kind) models.ImageSet
	Process(ctx context.Context, kind images.Kind, id int64, r io.Reader) (models.ImageSet, error)
	Discard(ctx context.Context, set models.ImageSet)
}

// Manager implements organization rules.
type Manager struct {
	store  Store
	larps  LarpLister
	sync   FollowSyncer
	images ImageProcessor
	logger *zap.Logger
}

// NewManager creates an organization manager.
func NewManager(store Store, larps LarpLister, sync FollowSyncer, imgs ImageProcessor, logger *zap.Logger) *Manager {
	return &Manager{store: store, larps: larps, sync: sync, images: imgs, logger: logger}
}

func notFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return httperr.NotFound("Record not found")
	}
	return err
}

// Create registers a new, unapproved organization owned by username.
func (m *Manager) Create(ctx context.Context, username string, in models.OrgForCreate) (*models.Organization, error) {
	if _, err := m.store.GetOrgByOwner(ctx, username); err == nil {
		return nil, httperr.BadRequest("User %s already has an organization", username)
	}
	if _, err := m.store.GetOrgByName(ctx, in.OrgName); err == nil {
		return nil, httperr.BadRequest("Organization name %s is already taken", in.OrgName)
	}
	org, err := m.store.CreateOrg(ctx, &models.Organization{
		Username:    username,
		OrgName:     in.OrgName,
		OrgURL:      in.OrgURL,
		Email:       in.Email,
		Description: in.Description,
		ImgURL:      m.images.Default(images.Org),
	})
	if errors.Is(err, database.ErrConflict) {
		return nil, httperr.BadRequest("Organization already exists")
	}
	if err != nil {
		return nil, fmt.Errorf("create organization: %w", err)
	}
	m.logger.Info("organization created", zap.Int64("org_id", org.ID), zap.String("username", username))
	return org, nil
}

// List returns every organization.
func (m *Manager) List(ctx context.Context) ([]models.Organization, error) {
	return m.store.ListOrgs(ctx)
}

// GetByID returns the organization record.
func (m *Manager) GetByID(ctx context.Context, id int64) (*models.Organization, error) {
	org, err := m.store.GetOrgByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return org, nil
}

// Get returns the detail view. Unpublished larps are only listed for the owner or an admin.
func (m *Manager) Get(ctx context.Context, id int64, viewer *auth.Identity) (*models.OrgDetail, error) {
	org, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	q := models.LarpQuery{OrgID: id}
	if !viewer.Owns(org.Username) {
		published := true
		q.IsPublished = &published
	}
	larps, err := m.larps.ListLarps(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list larps: %w", err)
	}
	followers, err := m.store.ListFollowers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list followers: %w", err)
	}

	detail := &models.OrgDetail{Organization: *org, Larps: larps, FollowerCount: len(followers)}
	if viewer != nil {
		for _, f := range followers {
			if f.UserID == viewer.UserID {
				detail.IsFollowedByUser = true
				break
			}
		}
	}
	return detail, nil
}

// Update applies a partial update.
func (m *Manager) Update(ctx context.Context, id int64, in models.OrgForUpdate) (*models.Organization, error) {
	org, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.OrgName != nil {
		org.OrgName = *in.OrgName
	}
	if in.OrgURL != nil {
		org.OrgURL = *in.OrgURL
	}
	if in.Email != nil {
		org.Email = *in.Email
	}
	if in.Description != nil {
		org.Description = *in.Description
	}
	updated, err := m.store.UpdateOrg(ctx, org)
	if errors.Is(err, database.ErrConflict) {
		return nil, httperr.BadRequest("Organization name %s is already taken", org.OrgName)
	}
	if err != nil {
		return nil, notFound(err)
	}
	return updated, nil
}

// SetApproved sets approval and, in the same transaction, publishes or unpublishes
// every larp of the organization.
func (m *Manager) SetApproved(ctx context.Context, id int64, approved bool) (*models.Organization, error) {
	org, err := m.store.SetOrgApproval(ctx, id, approved)
	if err != nil {
		return nil, notFound(err)
	}
	m.logger.Info("organization approval changed", zap.Int64("org_id", id), zap.Bool("approved", approved))
	return org, nil
}

// Delete removes the organization and its larps, then its remote list and images.
func (m *Manager) Delete(ctx context.Context, id int64) (*models.Organization, error) {
	larps, err := m.larps.ListLarps(ctx, models.LarpQuery{OrgID: id})
	if err != nil {
		return nil, fmt.Errorf("list larps: %w", err)
	}
	org, err := m.store.DeleteOrg(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	m.logger.Info("organization deleted", zap.Int64("org_id", id))

	m.sync.RemoveOrgList(ctx, org.ListID)
	m.images.Discard(ctx, org.ImgURL)
	for _, l := range larps {
		m.images.Discard(ctx, l.ImgURL)
	}
	return org, nil
}

// UpdateImage replaces the organization image with the picture in r.
func (m *Manager) UpdateImage(ctx context.Context, id int64, r io.Reader) (*models.Organization, error) {
	org, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	set, err := m.images.Process(ctx, images.Org, id, r)
	if err != nil {
		return nil, httperr.BadRequest("There was a problem updating this image: %v", err)
	}
	if err := m.store.SetOrgImage(ctx, id, set); err != nil {
		m.images.Discard(ctx, set)
		return nil, notFound(err)
	}
	m.images.Discard(ctx, org.ImgURL)
	set.ID = org.ImgURL.ID
	org.ImgURL = set
	return org, nil
}

// Follow records that userID follows the organization. The remote list is joined when
// emails is turned on and left when a previous emailing follow turns it off; repeating
// the current setting leaves the list alone.
func (m *Manager) Follow(ctx context.Context, orgID, userID int64, emails bool) (*models.Follow, error) {
	if _, err := m.GetByID(ctx, orgID); err != nil {
		return nil, err
	}
	prev, err := m.store.GetFollow(ctx, userID, orgID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("load follow: %w", err)
	}

	f := models.Follow{UserID: userID, OrgID: orgID, Emails: emails}
	if err := m.store.UpsertFollow(ctx, f); err != nil {
		return nil, notFound(err)
	}

	switch {
	case prev != nil && prev.Emails == emails:
		// membership already matches
	case emails:
		m.sync.SyncOrgFollow(ctx, userID, orgID, true)
	case prev != nil && prev.Emails:
		m.sync.SyncOrgFollow(ctx, userID, orgID, false)
	}
	return &f, nil
}

// Unfollow removes the follow and, unconditionally, the remote list membership.
func (m *Manager) Unfollow(ctx context.Context, orgID, userID int64) error {
	if err := m.store.DeleteFollow(ctx, userID, orgID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return httperr.NotFound("Not following this organization")
		}
		return fmt.Errorf("delete follow: %w", err)
	}
	m.sync.SyncOrgFollow(ctx, userID, orgID, false)
	return nil
}

// Followers lists the organization's followers.
func (m *Manager) Followers(ctx context.Context, orgID int64) ([]models.Follower, error) {
	if _, err := m.GetByID(ctx, orgID); err != nil {
		return nil, err
	}
	return m.store.ListFollowers(ctx, orgID)
}
