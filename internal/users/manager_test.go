package users

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/larpcal/backend/internal/memstore"
	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/httperr"
	"github.com/larpcal/backend/pkg/utils"
)

type mockSubs struct{ mock.Mock }

func (m *mockSubs) SyncPlatformSubscription(ctx context.Context, userID int64, subscribed bool) {
	m.Called(userID, subscribed)
}

func (m *mockSubs) RemoveContact(ctx context.Context, remoteID *int64) {
	m.Called(remoteID)
}

type mockOrgs struct{ mock.Mock }

func (m *mockOrgs) Delete(ctx context.Context, id int64) (*models.Organization, error) {
	args := m.Called(id)
	org, _ := args.Get(0).(*models.Organization)
	return org, args.Error(1)
}

func newManager(t *testing.T) (*Manager, *memstore.DB, *mockSubs) {
	t.Helper()
	db := memstore.New()
	subs := &mockSubs{}
	return NewManager(db, db, &mockOrgs{}, subs, utils.NewHasher(bcrypt.MinCost), zap.NewNop()), db, subs
}

func register(t *testing.T, m *Manager, username string, subscribed bool) *models.User {
	t.Helper()
	u, err := m.Register(context.Background(), models.UserForCreate{
		Username:   username,
		Password:   "test123!",
		Email:      username + "@example.com",
		Subscribed: subscribed,
	})
	require.NoError(t, err)
	return u
}

func TestRegister(t *testing.T) {
	m, _, subs := newManager(t)
	subs.On("SyncPlatformSubscription", mock.Anything, true).Once()

	u := register(t, m, "u1", true)
	assert.NotEqual(t, "test123!", u.Password)
	subs.AssertExpectations(t)

	_, err := m.Register(context.Background(), models.UserForCreate{Username: "u1", Password: "test123!", Email: "x@example.com"})
	assert.Equal(t, "Username u1 already exists", err.(*httperr.Error).Message)

	_, err = m.Register(context.Background(), models.UserForCreate{Username: "u2", Password: "test123!", Email: "U1@example.com"})
	assert.Equal(t, http.StatusBadRequest, httperr.StatusOf(err))
}

func TestAuthenticate(t *testing.T) {
	m, _, _ := newManager(t)
	register(t, m, "u1", false)

	u, err := m.Authenticate(context.Background(), "u1", "test123!")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.Username)

	_, err = m.Authenticate(context.Background(), "u1", "wrong")
	assert.Equal(t, http.StatusUnauthorized, httperr.StatusOf(err))
	_, err = m.Authenticate(context.Background(), "nobody", "test123!")
	assert.Equal(t, http.StatusUnauthorized, httperr.StatusOf(err))
}

func TestIdentityOf(t *testing.T) {
	m, db, _ := newManager(t)
	ctx := context.Background()
	register(t, m, "org1", false)

	id, err := m.IdentityOf(ctx, "org1")
	require.NoError(t, err)
	assert.False(t, id.IsOrganizer)

	org, err := db.CreateOrg(ctx, &models.Organization{Username: "org1", OrgName: "Acme"})
	require.NoError(t, err)
	id, err = m.IdentityOf(ctx, "org1")
	require.NoError(t, err)
	assert.True(t, id.IsOrganizer)
	assert.False(t, id.IsApprovedOrganizer)

	_, err = db.SetOrgApproval(ctx, org.ID, true)
	require.NoError(t, err)
	id, err = m.IdentityOf(ctx, "org1")
	require.NoError(t, err)
	assert.True(t, id.IsApprovedOrganizer)
}

func TestUpdate(t *testing.T) {
	m, _, subs := newManager(t)
	ctx := context.Background()
	u := register(t, m, "u1", false)
	register(t, m, "u2", false)

	_, err := m.Update(ctx, "u1", models.UserForUpdate{}, false)
	assert.Equal(t, http.StatusBadRequest, httperr.StatusOf(err))

	yes := true
	_, err = m.Update(ctx, "u1", models.UserForUpdate{IsAdmin: &yes}, false)
	assert.Equal(t, http.StatusUnauthorized, httperr.StatusOf(err))

	taken := "u2@example.com"
	_, err = m.Update(ctx, "u1", models.UserForUpdate{Email: &taken}, false)
	assert.Equal(t, http.StatusBadRequest, httperr.StatusOf(err))

	subs.On("SyncPlatformSubscription", u.ID, true).Once()
	pu, err := m.Update(ctx, "u1", models.UserForUpdate{Subscribed: &yes}, false)
	require.NoError(t, err)
	assert.True(t, pu.Subscribed)

	// unchanged flag does not resync
	_, err = m.Update(ctx, "u1", models.UserForUpdate{Subscribed: &yes}, false)
	require.NoError(t, err)
	subs.AssertExpectations(t)

	pu, err = m.Update(ctx, "u1", models.UserForUpdate{IsAdmin: &yes}, true)
	require.NoError(t, err)
	assert.True(t, pu.IsAdmin)

	_, err = m.Update(ctx, "ghost", models.UserForUpdate{Subscribed: &yes}, true)
	assert.Equal(t, http.StatusNotFound, httperr.StatusOf(err))
}

func TestResetPassword(t *testing.T) {
	m, _, _ := newManager(t)
	register(t, m, "u1", false)

	_, err := m.ResetPassword(context.Background(), "u1", "newpass1!")
	require.NoError(t, err)

	_, err = m.Authenticate(context.Background(), "u1", "newpass1!")
	assert.NoError(t, err)
}

func TestDelete(t *testing.T) {
	m, db, subs := newManager(t)
	orgs := m.removal.(*mockOrgs)
	ctx := context.Background()
	u := register(t, m, "org1", false)
	remoteID := int64(11)
	require.NoError(t, db.SetRemoteContactID(ctx, u.ID, &remoteID))
	org, err := db.CreateOrg(ctx, &models.Organization{Username: "org1", OrgName: "Acme"})
	require.NoError(t, err)

	// the owned organization goes through organization deletion, which discards its images
	orgs.On("Delete", org.ID).Return(org, nil).Once().Run(func(mock.Arguments) {
		_, err := db.DeleteOrg(ctx, org.ID)
		require.NoError(t, err)
	})
	subs.On("RemoveContact", &remoteID).Once()

	require.NoError(t, m.Delete(ctx, "org1"))
	subs.AssertExpectations(t)
	orgs.AssertExpectations(t)

	_, err = db.GetOrgByID(ctx, org.ID)
	assert.Error(t, err)
	err = m.Delete(ctx, "org1")
	assert.Equal(t, http.StatusNotFound, httperr.StatusOf(err))
}

func TestDelete_WithoutOrganization(t *testing.T) {
	m, _, subs := newManager(t)
	orgs := m.removal.(*mockOrgs)
	register(t, m, "fan", false)
	subs.On("RemoveContact", (*int64)(nil)).Once()

	require.NoError(t, m.Delete(context.Background(), "fan"))
	orgs.AssertNotCalled(t, "Delete", mock.Anything)
	subs.AssertExpectations(t)
}

func TestDelete_OrganizationFailureKeepsUser(t *testing.T) {
	m, db, _ := newManager(t)
	orgs := m.removal.(*mockOrgs)
	ctx := context.Background()
	register(t, m, "org1", false)
	org, err := db.CreateOrg(ctx, &models.Organization{Username: "org1", OrgName: "Acme"})
	require.NoError(t, err)
	orgs.On("Delete", org.ID).Return(nil, errors.New("db down")).Once()

	assert.Error(t, m.Delete(ctx, "org1"))
	_, err = db.GetUserByUsername(ctx, "org1")
	assert.NoError(t, err)
}
