package mailing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/larpcal/backend/internal/memstore"
	"github.com/larpcal/backend/internal/models"
)

type syncFixture struct {
	db     *memstore.DB
	remote *fakeRemote
	syncer *Syncer
	user   *models.User
	org    *models.Organization
}

func newSyncFixture(t *testing.T, cfg SyncConfig) *syncFixture {
	t.Helper()
	ctx := context.Background()
	db := memstore.New()
	user, err := db.CreateUser(ctx, &models.User{Username: "u1", Email: "u1@example.com"})
	require.NoError(t, err)
	owner, err := db.CreateUser(ctx, &models.User{Username: "org1", Email: "org1@example.com"})
	require.NoError(t, err)
	org, err := db.CreateOrg(ctx, &models.Organization{Username: owner.Username, OrgName: "Acme"})
	require.NoError(t, err)

	remote := newFakeRemote()
	return &syncFixture{
		db:     db,
		remote: remote,
		syncer: NewSyncer(remote, db, db, NewLocalLocker(), cfg, zap.NewNop()),
		user:   user,
		org:    org,
	}
}

func TestEnsureRemoteContact_CreatesOnce(t *testing.T) {
	f := newSyncFixture(t, SyncConfig{})
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]int64, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := f.syncer.EnsureRemoteContact(ctx, f.user.ID)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.remote.creates)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	stored, err := f.db.GetUserByID(ctx, f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.NewsletterRemoteID)
	assert.Equal(t, ids[0], *stored.NewsletterRemoteID)
}

func TestEnsureRemoteContact_AdoptsExisting(t *testing.T) {
	f := newSyncFixture(t, SyncConfig{})
	f.remote.contacts["u1@example.com"] = 500

	id, err := f.syncer.EnsureRemoteContact(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 500, id)
	assert.Zero(t, f.remote.creates)
}

func TestEnsureOrgList(t *testing.T) {
	f := newSyncFixture(t, SyncConfig{})
	ctx := context.Background()

	first, err := f.syncer.EnsureOrgList(ctx, f.org.ID)
	require.NoError(t, err)
	second, err := f.syncer.EnsureOrgList(ctx, f.org.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"Acme Subscribers"}, f.remote.listNames)
}

func TestEnsureOrgList_NoFolder(t *testing.T) {
	f := newSyncFixture(t, SyncConfig{})
	f.remote.folders = nil

	_, err := f.syncer.EnsureOrgList(context.Background(), f.org.ID)
	assert.ErrorIs(t, err, ErrNoFolder)

	org, err := f.db.GetOrgByID(context.Background(), f.org.ID)
	require.NoError(t, err)
	assert.Nil(t, org.ListID)
}

func TestEnsureOrgList_ConfiguredFolderSkipsLookup(t *testing.T) {
	f := newSyncFixture(t, SyncConfig{FolderID: 9})
	f.remote.folders = nil

	_, err := f.syncer.EnsureOrgList(context.Background(), f.org.ID)
	assert.NoError(t, err)
}

func TestSyncOrgFollow(t *testing.T) {
	f := newSyncFixture(t, SyncConfig{})
	ctx := context.Background()

	f.syncer.SyncOrgFollow(ctx, f.user.ID, f.org.ID, true)

	org, err := f.db.GetOrgByID(ctx, f.org.ID)
	require.NoError(t, err)
	require.NotNil(t, org.ListID)
	user, err := f.db.GetUserByID(ctx, f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, user.NewsletterRemoteID)
	assert.True(t, f.remote.member(*org.ListID, *user.NewsletterRemoteID))

	f.syncer.SyncOrgFollow(ctx, f.user.ID, f.org.ID, false)
	assert.False(t, f.remote.member(*org.ListID, *user.NewsletterRemoteID))
}

func TestSyncMembership_RemoveWithoutContactIsNoop(t *testing.T) {
	f := newSyncFixture(t, SyncConfig{})
	err := f.syncer.SyncMembership(context.Background(), f.user.ID, 3, false)
	assert.NoError(t, err)
	assert.Zero(t, f.remote.creates)
}

func TestSyncPlatformSubscription_LogsFailures(t *testing.T) {
	f := newSyncFixture(t, SyncConfig{AdminListID: 2})
	f.remote.createErr = errors.New("brevo down")

	assert.NotPanics(t, func() {
		f.syncer.SyncPlatformSubscription(context.Background(), f.user.ID, true)
	})
	user, err := f.db.GetUserByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Nil(t, user.NewsletterRemoteID)
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, errors.New("redis unavailable")
}

func TestSyncer_ProceedsWhenLockUnavailable(t *testing.T) {
	f := newSyncFixture(t, SyncConfig{})
	f.syncer.locker = failingLocker{}

	_, err := f.syncer.EnsureRemoteContact(context.Background(), f.user.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, f.remote.creates)
}

func TestResetMailer(t *testing.T) {
	remote := newFakeRemote()
	m := NewResetMailer(remote, Address{Email: "noreply@larpcal.com", Name: "LARPCal"})

	require.NoError(t, m.SendPasswordReset(context.Background(), "u1@example.com", "u1", "https://larpcal.com/reset?token=x&y=<z>"))
	require.Len(t, remote.sent, 1)
	assert.Equal(t, []string{"u1@example.com"}, remote.sent[0].To)
	assert.Contains(t, remote.sent[0].HTML, "token=x&amp;y=&lt;z&gt;")
}
