package organizations

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/larpcal/backend/internal/auth"
	"github.com/larpcal/backend/internal/images"
	"github.com/larpcal/backend/internal/memstore"
	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/pkg/httperr"
)

type mockSync struct{ mock.Mock }

func (m *mockSync) SyncOrgFollow(_ context.Context, userID, orgID int64, member bool) {
	m.Called(userID, orgID, member)
}

func (m *mockSync) RemoveOrgList(_ context.Context, listID *int64) {
	m.Called(listID)
}

type fakeImages struct {
	discarded []models.ImageSet
	err       error
}

func (f *fakeImages) Default(kind images.Kind) models.ImageSet {
	return models.ImageSet{Sm: kind.Prefix + "/default-sm", Md: kind.Prefix + "/default-md", Lg: kind.Prefix + "/default-lg"}
}

func (f *fakeImages) Process(_ context.Context, kind images.Kind, id int64, _ io.Reader) (models.ImageSet, error) {
	if f.err != nil {
		return models.ImageSet{}, f.err
	}
	return models.ImageSet{Sm: kind.Prefix + "/new-sm", Md: kind.Prefix + "/new-md", Lg: kind.Prefix + "/new-lg"}, nil
}

func (f *fakeImages) Discard(_ context.Context, set models.ImageSet) {
	f.discarded = append(f.discarded, set)
}

type fixture struct {
	db     *memstore.DB
	sync   *mockSync
	images *fakeImages
	m      *Manager
	owner  *models.User
	fan    *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := memstore.New()
	owner, err := db.CreateUser(ctx, &models.User{Username: "org1", Email: "org1@example.com"})
	require.NoError(t, err)
	fan, err := db.CreateUser(ctx, &models.User{Username: "u1", Email: "u1@example.com"})
	require.NoError(t, err)
	f := &fixture{db: db, sync: &mockSync{}, images: &fakeImages{}, owner: owner, fan: fan}
	f.m = NewManager(db, db, f.sync, f.images, zap.NewNop())
	return f
}

func (f *fixture) createOrg(t *testing.T) *models.Organization {
	t.Helper()
	org, err := f.m.Create(context.Background(), f.owner.Username, models.OrgForCreate{OrgName: "Acme", Email: "acme@example.com"})
	require.NoError(t, err)
	return org
}

func (f *fixture) createLarp(t *testing.T, orgID int64, published bool) *models.Larp {
	t.Helper()
	start := time.Now().Add(24 * time.Hour)
	l, err := f.db.CreateLarp(context.Background(), &models.Larp{
		OrgID: orgID, Title: "Larp", Start: start, End: start.Add(time.Hour), IsPublished: published,
	})
	require.NoError(t, err)
	return l
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	org := f.createOrg(t)

	assert.False(t, org.IsApproved)
	assert.Equal(t, "orgImage/default-sm", org.ImgURL.Sm)

	_, err := f.m.Create(context.Background(), f.owner.Username, models.OrgForCreate{OrgName: "Other", Email: "o@example.com"})
	assert.Equal(t, http.StatusBadRequest, httperr.StatusOf(err))

	_, err = f.m.Create(context.Background(), f.fan.Username, models.OrgForCreate{OrgName: "acme", Email: "o@example.com"})
	assert.Equal(t, http.StatusBadRequest, httperr.StatusOf(err))
}

func TestSetApproved_Cascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.createOrg(t)
	a := f.createLarp(t, org.ID, false)
	b := f.createLarp(t, org.ID, false)

	_, err := f.m.SetApproved(ctx, org.ID, true)
	require.NoError(t, err)
	for _, id := range []int64{a.ID, b.ID} {
		l, err := f.db.GetLarpByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, l.IsPublished)
	}

	// manual unpublish is not remembered across a revoke and re-approve
	_, err = f.db.SetLarpPublished(ctx, b.ID, false)
	require.NoError(t, err)
	_, err = f.m.SetApproved(ctx, org.ID, false)
	require.NoError(t, err)
	_, err = f.m.SetApproved(ctx, org.ID, true)
	require.NoError(t, err)
	for _, id := range []int64{a.ID, b.ID} {
		l, err := f.db.GetLarpByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, l.IsPublished)
	}

	_, err = f.m.SetApproved(ctx, 999, true)
	assert.Equal(t, http.StatusNotFound, httperr.StatusOf(err))
}

func TestGet_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.createOrg(t)
	f.createLarp(t, org.ID, true)
	f.createLarp(t, org.ID, false)

	detail, err := f.m.Get(ctx, org.ID, nil)
	require.NoError(t, err)
	assert.Len(t, detail.Larps, 1)
	assert.False(t, detail.IsFollowedByUser)

	detail, err = f.m.Get(ctx, org.ID, &auth.Identity{UserID: f.owner.ID, Username: f.owner.Username})
	require.NoError(t, err)
	assert.Len(t, detail.Larps, 2)

	detail, err = f.m.Get(ctx, org.ID, &auth.Identity{Username: "root", IsAdmin: true})
	require.NoError(t, err)
	assert.Len(t, detail.Larps, 2)

	f.sync.On("SyncOrgFollow", f.fan.ID, org.ID, false).Maybe()
	_, err = f.m.Follow(ctx, org.ID, f.fan.ID, false)
	require.NoError(t, err)
	detail, err = f.m.Get(ctx, org.ID, &auth.Identity{UserID: f.fan.ID, Username: f.fan.Username})
	require.NoError(t, err)
	assert.Equal(t, 1, detail.FollowerCount)
	assert.True(t, detail.IsFollowedByUser)
	assert.Len(t, detail.Larps, 1)
}

func TestFollow_Sync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.createOrg(t)

	// no email flag and no previous follow: nothing to sync
	_, err := f.m.Follow(ctx, org.ID, f.fan.ID, false)
	require.NoError(t, err)
	f.sync.AssertNotCalled(t, "SyncOrgFollow", mock.Anything, mock.Anything, mock.Anything)

	f.sync.On("SyncOrgFollow", f.fan.ID, org.ID, true).Once()
	_, err = f.m.Follow(ctx, org.ID, f.fan.ID, true)
	require.NoError(t, err)

	// repeating the same setting does not touch the remote list
	_, err = f.m.Follow(ctx, org.ID, f.fan.ID, true)
	require.NoError(t, err)
	f.sync.AssertNumberOfCalls(t, "SyncOrgFollow", 1)

	f.sync.On("SyncOrgFollow", f.fan.ID, org.ID, false).Once()
	follow, err := f.m.Follow(ctx, org.ID, f.fan.ID, false)
	require.NoError(t, err)
	assert.False(t, follow.Emails)
	_, err = f.m.Follow(ctx, org.ID, f.fan.ID, false)
	require.NoError(t, err)

	f.sync.AssertExpectations(t)
	f.sync.AssertNumberOfCalls(t, "SyncOrgFollow", 2)
}

func TestUnfollow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.createOrg(t)

	f.sync.On("SyncOrgFollow", f.fan.ID, org.ID, mock.Anything)
	_, err := f.m.Follow(ctx, org.ID, f.fan.ID, true)
	require.NoError(t, err)
	require.NoError(t, f.m.Unfollow(ctx, org.ID, f.fan.ID))

	_, err = f.db.GetFollow(ctx, f.fan.ID, org.ID)
	assert.Error(t, err)
	f.sync.AssertCalled(t, "SyncOrgFollow", f.fan.ID, org.ID, false)

	err = f.m.Unfollow(ctx, org.ID, f.fan.ID)
	assert.Equal(t, http.StatusNotFound, httperr.StatusOf(err))
}

func TestFollow_MissingOrg(t *testing.T) {
	f := newFixture(t)
	_, err := f.m.Follow(context.Background(), 42, f.fan.ID, true)
	assert.Equal(t, http.StatusNotFound, httperr.StatusOf(err))
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.createOrg(t)
	listID := int64(9)
	require.NoError(t, f.db.SetOrgListID(ctx, org.ID, &listID))
	l := f.createLarp(t, org.ID, true)

	f.sync.On("RemoveOrgList", &listID).Once()
	deleted, err := f.m.Delete(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, org.ID, deleted.ID)
	f.sync.AssertExpectations(t)
	assert.Len(t, f.images.discarded, 2)

	_, err = f.db.GetLarpByID(ctx, l.ID)
	assert.Error(t, err)

	_, err = f.m.Delete(ctx, org.ID)
	assert.Equal(t, http.StatusNotFound, httperr.StatusOf(err))
}

func TestUpdateImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.createOrg(t)

	updated, err := f.m.UpdateImage(ctx, org.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "orgImage/new-sm", updated.ImgURL.Sm)
	assert.Equal(t, []models.ImageSet{org.ImgURL}, f.images.discarded)

	f.images.err = errors.New("bad image")
	_, err = f.m.UpdateImage(ctx, org.ID, nil)
	assert.Equal(t, http.StatusBadRequest, httperr.StatusOf(err))
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.createOrg(t)

	name := "Acme Larps"
	updated, err := f.m.Update(ctx, org.ID, models.OrgForUpdate{OrgName: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.OrgName)
	assert.Equal(t, "acme@example.com", updated.Email)
}
