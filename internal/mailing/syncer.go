package mailing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/larpcal/backend/internal/models"
)

// Remote is the subset of the Brevo API the syncer uses. *Client implements it.
type Remote interface {
	GetContact(ctx context.Context, email string) (*Contact, error)
	CreateContact(ctx context.Context, email string) (int64, error)
	DeleteContact(ctx context.Context, id int64) error
	AddToList(ctx context.Context, listID int64, contactIDs ...int64) error
	RemoveFromList(ctx context.Context, listID int64, contactIDs ...int64) error
	ListFolders(ctx context.Context, limit, offset int) ([]Folder, error)
	CreateList(ctx context.Context, name string, folderID int64) (int64, error)
	DeleteList(ctx context.Context, listID int64) error
}

// UserDirectory reads users and stores their remote contact id.
type UserDirectory interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	SetRemoteContactID(ctx context.Context, userID int64, remoteID *int64) error
}

// OrgDirectory reads organizations and stores their remote list id.
type OrgDirectory interface {
	GetOrgByID(ctx context.Context, id int64) (*models.Organization, error)
	SetOrgListID(ctx context.Context, orgID int64, listID *int64) error
}

// ErrNoFolder is returned when a list must be created but the account has no folder.
var ErrNoFolder = errors.New("brevo: no contact folder available")

// SyncConfig holds the remote ids the syncer needs.
type SyncConfig struct {
	// AdminListID is the platform newsletter list; 0 disables platform sync.
	AdminListID int64
	// FolderID is where organization lists are created; 0 uses the first remote folder.
	FolderID int64
}

// Syncer mirrors subscription state into Brevo contacts and lists.
type Syncer struct {
	remote Remote
	users  UserDirectory
	orgs   OrgDirectory
	locker Locker
	cfg    SyncConfig
	logger *zap.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(remote Remote, users UserDirectory, orgs OrgDirectory, locker Locker, cfg SyncConfig, logger *zap.Logger) *Syncer {
	return &Syncer{remote: remote, users: users, orgs: orgs, locker: locker, cfg: cfg, logger: logger}
}

// EnsureRemoteContact returns the user's remote contact id, adopting an existing
// contact with the same email or creating one.
func (s *Syncer) EnsureRemoteContact(ctx context.Context, userID int64) (int64, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load user %d: %w", userID, err)
	}
	if user.NewsletterRemoteID != nil {
		return *user.NewsletterRemoteID, nil
	}

	unlock := s.lock(ctx, "contact:"+strconv.FormatInt(userID, 10))
	defer unlock()

	user, err = s.users.GetUserByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("reload user %d: %w", userID, err)
	}
	if user.NewsletterRemoteID != nil {
		return *user.NewsletterRemoteID, nil
	}

	id, err := s.findOrCreateContact(ctx, user.Email)
	if err != nil {
		return 0, err
	}
	if err := s.users.SetRemoteContactID(ctx, userID, &id); err != nil {
		return 0, fmt.Errorf("store remote contact id: %w", err)
	}
	return id, nil
}

func (s *Syncer) findOrCreateContact(ctx context.Context, email string) (int64, error) {
	contact, err := s.remote.GetContact(ctx, email)
	if err == nil {
		return contact.ID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return 0, fmt.Errorf("get contact: %w", err)
	}
	id, err := s.remote.CreateContact(ctx, email)
	if err == nil {
		return id, nil
	}
	// Another instance may have created it since the lookup.
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == "duplicate_parameter" {
		if contact, gerr := s.remote.GetContact(ctx, email); gerr == nil {
			return contact.ID, nil
		}
	}
	return 0, fmt.Errorf("create contact: %w", err)
}

// EnsureOrgList returns the organization's remote list id, creating
// "<orgName> Subscribers" on first use.
func (s *Syncer) EnsureOrgList(ctx context.Context, orgID int64) (int64, error) {
	org, err := s.orgs.GetOrgByID(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("load org %d: %w", orgID, err)
	}
	if org.ListID != nil {
		return *org.ListID, nil
	}

	unlock := s.lock(ctx, "orglist:"+strconv.FormatInt(orgID, 10))
	defer unlock()

	org, err = s.orgs.GetOrgByID(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("reload org %d: %w", orgID, err)
	}
	if org.ListID != nil {
		return *org.ListID, nil
	}

	folderID, err := s.folder(ctx)
	if err != nil {
		return 0, err
	}
	listID, err := s.remote.CreateList(ctx, org.OrgName+" Subscribers", folderID)
	if err != nil {
		return 0, fmt.Errorf("create list: %w", err)
	}
	if err := s.orgs.SetOrgListID(ctx, orgID, &listID); err != nil {
		return 0, fmt.Errorf("store list id: %w", err)
	}
	return listID, nil
}

func (s *Syncer) folder(ctx context.Context) (int64, error) {
	if s.cfg.FolderID != 0 {
		return s.cfg.FolderID, nil
	}
	folders, err := s.remote.ListFolders(ctx, 1, 0)
	if err != nil {
		return 0, fmt.Errorf("list folders: %w", err)
	}
	if len(folders) == 0 {
		return 0, ErrNoFolder
	}
	return folders[0].ID, nil
}

// SyncMembership adds the user to, or removes the user from, listID. Removal is a
// no-op for users that never had a remote contact.
func (s *Syncer) SyncMembership(ctx context.Context, userID, listID int64, member bool) error {
	if member {
		contactID, err := s.EnsureRemoteContact(ctx, userID)
		if err != nil {
			return err
		}
		return s.remote.AddToList(ctx, listID, contactID)
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}
	if user.NewsletterRemoteID == nil {
		return nil
	}
	err = s.remote.RemoveFromList(ctx, listID, *user.NewsletterRemoteID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// SyncOrgFollow mirrors a follow's email flag into the organization list. Failures are
// logged, never returned.
func (s *Syncer) SyncOrgFollow(ctx context.Context, userID, orgID int64, member bool) {
	log := s.logger.With(zap.Int64("user_id", userID), zap.Int64("org_id", orgID), zap.Bool("member", member))

	var listID int64
	if member {
		id, err := s.EnsureOrgList(ctx, orgID)
		if err != nil {
			log.Error("ensure org list", zap.Error(err))
			return
		}
		listID = id
	} else {
		org, err := s.orgs.GetOrgByID(ctx, orgID)
		if err != nil {
			log.Error("load org", zap.Error(err))
			return
		}
		if org.ListID == nil {
			return
		}
		listID = *org.ListID
	}

	if err := s.SyncMembership(ctx, userID, listID, member); err != nil {
		log.Error("sync org list membership", zap.Int64("list_id", listID), zap.Error(err))
	}
}

// SyncPlatformSubscription mirrors the user's platform newsletter flag. Failures are
// logged, never returned.
func (s *Syncer) SyncPlatformSubscription(ctx context.Context, userID int64, subscribed bool) {
	if s.cfg.AdminListID == 0 {
		s.logger.Debug("platform list not configured; skipping sync", zap.Int64("user_id", userID))
		return
	}
	if err := s.SyncMembership(ctx, userID, s.cfg.AdminListID, subscribed); err != nil {
		s.logger.Error("sync platform subscription",
			zap.Int64("user_id", userID), zap.Bool("subscribed", subscribed), zap.Error(err))
	}
}

// RemoveContact deletes a remote contact. Failures are logged.
func (s *Syncer) RemoveContact(ctx context.Context, remoteID *int64) {
	if remoteID == nil {
		return
	}
	if err := s.remote.DeleteContact(ctx, *remoteID); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Error("delete remote contact", zap.Int64("contact_id", *remoteID), zap.Error(err))
	}
}

// RemoveOrgList deletes a remote list. Failures are logged.
func (s *Syncer) RemoveOrgList(ctx context.Context, listID *int64) {
	if listID == nil {
		return
	}
	if err := s.remote.DeleteList(ctx, *listID); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Error("delete remote list", zap.Int64("list_id", *listID), zap.Error(err))
	}
}

// lock takes key and returns its release func. When the lock cannot be taken the
// caller proceeds unlocked and a duplicate remote create becomes possible.
func (s *Syncer) lock(ctx context.Context, key string) func() {
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		s.logger.Warn("mailing lock unavailable; continuing unlocked", zap.String("key", key), zap.Error(err))
		return func() {}
	}
	return unlock
}
