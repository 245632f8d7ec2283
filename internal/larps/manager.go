package larps

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/larpcal/backend/internal/auth"
	"github.com/larpcal/backend/internal/images"
	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/database"
	"github.com/larpcal/backend/pkg/httperr"
)

// Store persists larps.
type Store interface {
	CreateLarp(ctx context.Context, l *models.Larp) (*models.Larp, error)
	GetLarpByID(ctx context.Context, id int64) (*models.Larp, error)
	ListLarps(ctx context.Context, q models.LarpQuery) ([]models.Larp, error)
	UpdateLarp(ctx context.Context, l *models.Larp) (*models.Larp, error)
	SetLarpPublished(ctx context.Context, id int64, published bool) (*models.Larp, error)
	DeleteLarp(ctx context.Context, id int64) (*models.Larp, error)
	SetLarpImage(ctx context.Context, id int64, img models.ImageSet) error
}

// OrgLookup reads the owning organization of a larp.
type OrgLookup interface {
	GetOrgByID(ctx context.Context, id int64) (*models.Organization, error)
}

// ImageProcessor stores image sets.
type ImageProcessor interface {
	Default(kind images.Kind) models.ImageSet
	Process(ctx context.Context, kind images.Kind, id int64, r io.Reader) (models.ImageSet, error)
	Discard(ctx context.Context, set models.ImageSet)
}

// Manager implements larp rules.
type Manager struct {
	store  Store
	orgs   OrgLookup
	images ImageProcessor
	logger *zap.Logger
}

// NewManager creates a larp manager.
func NewManager(store Store, orgs OrgLookup, imgs ImageProcessor, logger *zap.Logger) *Manager {
	return &Manager{store: store, orgs: orgs, images: imgs, logger: logger}
}

func notFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return httperr.NotFound("Larp not found")
	}
	return err
}

func checkDates(l *models.Larp) error {
	if l.End.Before(l.Start) {
		return httperr.FieldError("end", "End must not be before start")
	}
	return nil
}

func (m *Manager) org(ctx context.Context, id int64) (*models.Organization, error) {
	org, err := m.orgs.GetOrgByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, httperr.NotFound("Organization not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	return org, nil
}

// Create adds an unpublished, unfeatured larp to an organization the caller owns.
func (m *Manager) Create(ctx context.Context, caller *auth.Identity, in models.LarpForCreate) (*models.Larp, error) {
	org, err := m.org(ctx, in.OrgID)
	if err != nil {
		return nil, err
	}
	if !caller.Owns(org.Username) {
		return nil, httperr.Unauthorized("You can only create larps for your own organization")
	}

	l := &models.Larp{
		OrgID:        in.OrgID,
		Title:        in.Title,
		Description:  in.Description,
		Start:        in.Start,
		End:          in.End,
		AllDay:       in.AllDay,
		City:         in.City,
		Country:      in.Country,
		Language:     in.Language,
		TicketStatus: in.TicketStatus,
		EventURL:     in.EventURL,
		Tags:         models.NormalizeTags(in.Tags),
		ImgURL:       m.images.Default(images.Larp),
	}
	if l.TicketStatus == "" {
		l.TicketStatus = models.TicketAvailable
	}
	if err := checkDates(l); err != nil {
		return nil, err
	}
	created, err := m.store.CreateLarp(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("create larp: %w", err)
	}
	m.logger.Info("larp created", zap.Int64("larp_id", created.ID), zap.Int64("org_id", created.OrgID))
	return created, nil
}

// Get returns a larp.
func (m *Manager) Get(ctx context.Context, id int64) (*models.Larp, error) {
	l, err := m.store.GetLarpByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

// List returns larps matching q ordered by start. Callers other than admins only see
// published larps, unless q is restricted to an organization they own.
func (m *Manager) List(ctx context.Context, q models.LarpQuery, caller *auth.Identity) ([]models.Larp, error) {
	restrict := true
	switch {
	case caller != nil && caller.IsAdmin:
		restrict = false
	case caller != nil && q.OrgID != 0:
		org, err := m.orgs.GetOrgByID(ctx, q.OrgID)
		if err == nil && org.Username == caller.Username {
			restrict = false
		}
	}
	if restrict {
		published := true
		q.IsPublished = &published
	}
	list, err := m.store.ListLarps(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list larps: %w", err)
	}
	return list, nil
}

// DecodeQuery parses the base64-encoded JSON filter of GET /events?q=. An empty
// string is the empty query.
func DecodeQuery(raw string) (models.LarpQuery, error) {
	var q models.LarpQuery
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return q, nil
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	}
	if err != nil {
		return q, httperr.BadRequest("Invalid query encoding")
	}
	if err := json.Unmarshal(b, &q); err != nil {
		return q, httperr.BadRequest("Invalid query")
	}
	return q, nil
}

// Publish makes a larp public. The owning organization must be approved at call time.
func (m *Manager) Publish(ctx context.Context, id int64) (*models.Larp, error) {
	l, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.checkApproved(ctx, l.OrgID); err != nil {
		return nil, err
	}
	published, err := m.store.SetLarpPublished(ctx, id, true)
	if err != nil {
		return nil, notFound(err)
	}
	return published, nil
}

func (m *Manager) checkApproved(ctx context.Context, orgID int64) error {
	org, err := m.org(ctx, orgID)
	if err != nil {
		return err
	}
	if !org.IsApproved {
		return httperr.Unauthorized("Organization is not approved")
	}
	return nil
}

// Update replaces the editable fields. Only admins change the featured flag; publishing
// through an update passes the same approval check as Publish.
func (m *Manager) Update(ctx context.Context, caller *auth.Identity, id int64, in models.LarpForUpdate) (*models.Larp, error) {
	l, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.IsFeatured != nil && *in.IsFeatured != l.IsFeatured {
		if caller == nil || !caller.IsAdmin {
			return nil, httperr.Unauthorized("Only admins can feature larps")
		}
		l.IsFeatured = *in.IsFeatured
	}
	if in.IsPublished != nil && *in.IsPublished != l.IsPublished {
		if *in.IsPublished {
			if err := m.checkApproved(ctx, l.OrgID); err != nil {
				return nil, err
			}
		}
		l.IsPublished = *in.IsPublished
	}

	l.Title = in.Title
	l.Description = in.Description
	l.Start = in.Start
	l.End = in.End
	l.AllDay = in.AllDay
	l.City = in.City
	l.Country = in.Country
	l.Language = in.Language
	if in.TicketStatus != "" {
		l.TicketStatus = in.TicketStatus
	}
	l.EventURL = in.EventURL
	l.Tags = models.NormalizeTags(in.Tags)
	if err := checkDates(l); err != nil {
		return nil, err
	}

	updated, err := m.store.UpdateLarp(ctx, l)
	if err != nil {
		return nil, notFound(err)
	}
	return updated, nil
}

// Delete removes a larp and returns it.
func (m *Manager) Delete(ctx context.Context, id int64) (*models.Larp, error) {
	l, err := m.store.DeleteLarp(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	m.logger.Info("larp deleted", zap.Int64("larp_id", id))
	m.images.Discard(ctx, l.ImgURL)
	return l, nil
}

// UpdateImage replaces the larp image with the picture in r.
func (m *Manager) UpdateImage(ctx context.Context, id int64, r io.Reader) (*models.Larp, error) {
	l, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	set, err := m.images.Process(ctx, images.Larp, id, r)
	if err != nil {
		return nil, httperr.BadRequest("There was a problem updating this image: %v", err)
	}
	if err := m.store.SetLarpImage(ctx, id, set); err != nil {
		m.images.Discard(ctx, set)
		return nil, notFound(err)
	}
	m.images.Discard(ctx, l.ImgURL)
	set.ID = l.ImgURL.ID
	l.ImgURL = set
	return l, nil
}
