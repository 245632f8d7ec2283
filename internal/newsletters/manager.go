package newsletters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/larpcal/backend/internal/auth"
	"github.com/larpcal/backend/internal/mailing"
	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/database"
	"github.com/larpcal/backend/pkg/httperr"
)

// Store persists newsletters and resolves recipient addresses.
type Store interface {
	CreateNewsletter(ctx context.Context, n *models.Newsletter) (*models.Newsletter, error)
	GetNewsletter(ctx context.Context, id int64) (*models.Newsletter, error)
	ListNewsletters(ctx context.Context, orgID *int64) ([]models.Newsletter, error)
	UpdateNewsletter(ctx context.Context, n *models.Newsletter) (*models.Newsletter, error)
	MarkNewsletterSent(ctx context.Context, id int64, at time.Time) (*models.Newsletter, error)
	DeleteNewsletter(ctx context.Context, id int64) error
	ListFollowerEmails(ctx context.Context, orgID int64) ([]string, error)
	ListSubscriberEmails(ctx context.Context) ([]string, error)
	ListAllEmails(ctx context.Context) ([]string, error)
}

// OrgLookup reads the organization a newsletter belongs to.
type OrgLookup interface {
	GetOrgByID(ctx context.Context, id int64) (*models.Organization, error)
}

// Mailer delivers rendered newsletters.
type Mailer interface {
	SendEmail(ctx context.Context, msg mailing.Email) error
}

// Manager implements the newsletter lifecycle: drafts are editable until sent once.
type Manager struct {
	store    Store
	orgs     OrgLookup
	mailer   Mailer
	locker   mailing.Locker
	campaign Campaign
	now      func() time.Time
	logger   *zap.Logger
}

// NewManager creates a newsletter manager.
func NewManager(store Store, orgs OrgLookup, mailer Mailer, locker mailing.Locker, campaign Campaign, logger *zap.Logger) *Manager {
	return &Manager{
		store:    store,
		orgs:     orgs,
		mailer:   mailer,
		locker:   locker,
		campaign: campaign,
		now:      time.Now,
		logger:   logger,
	}
}

func alreadySent() error {
	return httperr.BadRequest("Newsletter has already been sent")
}

// present hides the platform-only forceSend flag from organization scopes.
func present(scope Scope, n *models.Newsletter) *models.Newsletter {
	if !scope.IsGlobal() {
		n.ForceSend = nil
	}
	return n
}

func (m *Manager) get(ctx context.Context, scope Scope, id int64) (*models.Newsletter, error) {
	n, err := m.store.GetNewsletter(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, httperr.NotFound("Newsletter not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load newsletter: %w", err)
	}
	if !scope.IsGlobal() && (n.OrgID == nil || *n.OrgID != scope.orgID) {
		return nil, httperr.Unauthorized("")
	}
	return n, nil
}

// ResolveScope picks the scope caller acts in on newsletter id: admins act globally,
// the owner of the newsletter's organization acts in that organization.
func (m *Manager) ResolveScope(ctx context.Context, caller *auth.Identity, id int64) (Scope, error) {
	if caller != nil && caller.IsAdmin {
		return Global(), nil
	}
	n, err := m.get(ctx, Global(), id)
	if err != nil {
		return Scope{}, err
	}
	if caller == nil || n.OrgID == nil {
		return Scope{}, httperr.Unauthorized("")
	}
	org, err := m.orgs.GetOrgByID(ctx, *n.OrgID)
	if err != nil {
		return Scope{}, httperr.Unauthorized("")
	}
	if org.Username != caller.Username {
		return Scope{}, httperr.Unauthorized("")
	}
	return Org(org.ID), nil
}

// List returns the newsletters visible in scope, newest first.
func (m *Manager) List(ctx context.Context, scope Scope) ([]models.Newsletter, error) {
	list, err := m.store.ListNewsletters(ctx, scope.OrgID())
	if err != nil {
		return nil, fmt.Errorf("list newsletters: %w", err)
	}
	for i := range list {
		present(scope, &list[i])
	}
	return list, nil
}

// Get returns one newsletter.
func (m *Manager) Get(ctx context.Context, scope Scope, id int64) (*models.Newsletter, error) {
	n, err := m.get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	return present(scope, n), nil
}

// Create stores a draft. Only platform newsletters may be force sent.
func (m *Manager) Create(ctx context.Context, scope Scope, in models.NewsletterForCreate) (*models.Newsletter, error) {
	if !scope.IsGlobal() && in.ForceSend {
		return nil, httperr.BadRequest("Organization newsletters cannot be force sent")
	}
	if _, err := Render(in.Text); err != nil {
		return nil, httperr.FieldError("text", "Text must be valid markdown")
	}
	force := in.ForceSend
	n, err := m.store.CreateNewsletter(ctx, &models.Newsletter{
		OrgID:     scope.OrgID(),
		Subject:   in.Subject,
		Text:      in.Text,
		ForceSend: &force,
	})
	if errors.Is(err, database.ErrNotFound) {
		return nil, httperr.NotFound("Organization not found")
	}
	if err != nil {
		return nil, fmt.Errorf("create newsletter: %w", err)
	}
	m.logger.Info("newsletter created", zap.Int64("newsletter_id", n.ID), zap.Stringer("scope", scope))
	return present(scope, n), nil
}

// Update rewrites a draft.
func (m *Manager) Update(ctx context.Context, scope Scope, id int64, in models.NewsletterForUpdate) (*models.Newsletter, error) {
	n, err := m.get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if n.IsSent() {
		return nil, alreadySent()
	}
	if _, err := Render(in.Text); err != nil {
		return nil, httperr.FieldError("text", "Text must be valid markdown")
	}
	n.Subject = in.Subject
	n.Text = in.Text
	updated, err := m.store.UpdateNewsletter(ctx, n)
	if errors.Is(err, database.ErrNotFound) {
		// sent or deleted since it was loaded
		return nil, alreadySent()
	}
	if err != nil {
		return nil, fmt.Errorf("update newsletter: %w", err)
	}
	return present(scope, updated), nil
}

// Delete removes a draft.
func (m *Manager) Delete(ctx context.Context, scope Scope, id int64) error {
	n, err := m.get(ctx, scope, id)
	if err != nil {
		return err
	}
	if n.IsSent() {
		return alreadySent()
	}
	err = m.store.DeleteNewsletter(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return alreadySent()
	}
	if err != nil {
		return fmt.Errorf("delete newsletter: %w", err)
	}
	m.logger.Info("newsletter deleted", zap.Int64("newsletter_id", id), zap.Stringer("scope", scope))
	return nil
}

func (m *Manager) recipients(ctx context.Context, n *models.Newsletter) ([]string, error) {
	switch {
	case n.OrgID != nil:
		return m.store.ListFollowerEmails(ctx, *n.OrgID)
	case n.Forced():
		return m.store.ListAllEmails(ctx)
	default:
		return m.store.ListSubscriberEmails(ctx)
	}
}

func (m *Manager) orgOf(ctx context.Context, n *models.Newsletter) (*models.Organization, error) {
	if n.OrgID == nil {
		return nil, nil
	}
	org, err := m.orgs.GetOrgByID(ctx, *n.OrgID)
	if err != nil {
		return nil, fmt.Errorf("load newsletter organization: %w", err)
	}
	return org, nil
}

// Send delivers a draft to its recipients and marks it sent. Sends of one newsletter are
// serialized through the locker so a draft is delivered at most once. When nothing could be
// delivered the newsletter stays a draft and the result reports Sent false. A delivery that
// failed part way is still marked sent, since retrying would repeat it for the recipients
// already reached.
func (m *Manager) Send(ctx context.Context, scope Scope, id int64) (*models.SendResult, error) {
	if _, err := m.get(ctx, scope, id); err != nil {
		return nil, err
	}

	unlock, err := m.locker.Lock(ctx, fmt.Sprintf("newsletter:%d", id))
	if err != nil {
		m.logger.Warn("newsletter send lock", zap.Int64("newsletter_id", id), zap.Error(err))
		return nil, httperr.BadRequest("Newsletter is already being sent")
	}
	defer unlock()

	n, err := m.get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if n.IsSent() {
		return nil, alreadySent()
	}
	if !scope.IsGlobal() && n.Forced() {
		return nil, httperr.BadRequest("Organization newsletters cannot be force sent")
	}
	org, err := m.orgOf(ctx, n)
	if err != nil {
		return nil, err
	}
	to, err := m.recipients(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}

	log := m.logger.With(zap.Int64("newsletter_id", id), zap.Stringer("scope", scope), zap.Int("recipients", len(to)))
	delivered := len(to)
	if len(to) > 0 {
		msg, err := m.campaign.Message(n, org, to)
		if err != nil {
			return nil, err
		}
		if err := m.mailer.SendEmail(ctx, msg); err != nil {
			var partial *mailing.PartialDeliveryError
			if !errors.As(err, &partial) || partial.Delivered == 0 {
				log.Error("newsletter delivery failed", zap.Error(err))
				return &models.SendResult{Newsletter: present(scope, n), Sent: false, Recipients: len(to)}, nil
			}
			delivered = partial.Delivered
			log.Error("newsletter partially delivered", zap.Int("delivered", delivered), zap.Error(err))
		}
	}

	sent, err := m.store.MarkNewsletterSent(ctx, id, m.now().UTC())
	if errors.Is(err, database.ErrNotFound) {
		log.Warn("newsletter was sent concurrently")
		return nil, alreadySent()
	}
	if err != nil {
		return nil, fmt.Errorf("mark newsletter sent: %w", err)
	}
	log.Info("newsletter sent", zap.Int("delivered", delivered))
	return &models.SendResult{Newsletter: present(scope, sent), Sent: true, Recipients: len(to), Delivered: delivered}, nil
}

// SendTest delivers a draft to emails only. The newsletter is never marked sent.
func (m *Manager) SendTest(ctx context.Context, scope Scope, id int64, emails []string) (*models.SendResult, error) {
	n, err := m.get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if n.IsSent() {
		return nil, alreadySent()
	}
	org, err := m.orgOf(ctx, n)
	if err != nil {
		return nil, err
	}
	msg, err := m.campaign.Message(n, org, emails)
	if err != nil {
		return nil, err
	}
	msg.Subject = "[TEST] " + msg.Subject
	msg.Tags = append(msg.Tags, "test")

	res := &models.SendResult{Newsletter: present(scope, n), Recipients: len(emails)}
	if err := m.mailer.SendEmail(ctx, msg); err != nil {
		m.logger.Error("newsletter test delivery failed", zap.Int64("newsletter_id", id), zap.Error(err))
		return res, nil
	}
	res.Sent = true
	res.Delivered = len(emails)
	return res, nil
}

// View returns the rendered body of a sent newsletter. Drafts are not found.
func (m *Manager) View(ctx context.Context, id int64) (*models.NewsletterView, error) {
	n, err := m.get(ctx, Global(), id)
	if err != nil {
		return nil, err
	}
	if !n.IsSent() {
		return nil, httperr.NotFound("Newsletter not found")
	}
	body, err := Render(n.Text)
	if err != nil {
		return nil, err
	}
	return &models.NewsletterView{ID: n.ID, Subject: n.Subject, HTML: body, SentAt: *n.SentAt}, nil
}
