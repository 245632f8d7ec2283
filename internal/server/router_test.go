package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/larpcal/backend/internal/auth"
	"github.com/larpcal/backend/internal/images"
	"github.com/larpcal/backend/internal/larps"
	"github.com/larpcal/backend/internal/mailing"
	"github.com/larpcal/backend/internal/memstore"
	"github.com/larpcal/backend/internal/models"
	"github.com/larpcal/backend/internal/newsletters"
	"github.com/larpcal/backend/internal/organizations"
	"github.com/larpcal/backend/internal/users"
	"github.com/larpcal/backend/pkg/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type app struct {
	router *gin.Engine
	db     *memstore.DB
	emails atomic.Int32
}

// newApp wires the real managers over the in-memory store and a fake Brevo API.
func newApp(t *testing.T) *app {
	t.Helper()
	a := &app{db: memstore.New()}
	brevo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/smtp/email" {
			a.emails.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 1, "email": "x@example.com", "folders": [{"id": 1, "name": "LARPCal"}]}`))
	}))
	t.Cleanup(brevo.Close)

	logger := zap.NewNop()
	client := mailing.NewClient(mailing.Config{APIKey: "test", BaseURL: brevo.URL}, logger)
	syncer := mailing.NewSyncer(client, a.db, a.db, mailing.NewLocalLocker(), mailing.SyncConfig{AdminListID: 1}, logger)
	imgs := images.NewProcessor(nil, "https://images.test", logger)
	jwt := auth.NewJWTService("test-secret", 1, 15)

	orgManager := organizations.NewManager(a.db, a.db, syncer, imgs, logger)
	userManager := users.NewManager(a.db, a.db, orgManager, syncer, utils.NewHasher(bcrypt.MinCost), logger)
	larpManager := larps.NewManager(a.db, a.db, imgs, logger)
	newsletterManager := newsletters.NewManager(a.db, a.db, client, mailing.NewLocalLocker(), newsletters.Campaign{
		PublicURL: "https://larpcal.test",
		From:      mailing.Address{Email: "news@larpcal.test"},
	}, logger)
	resetMailer := mailing.NewResetMailer(client, mailing.Address{Email: "news@larpcal.test"})

	router, err := NewRouter(Deps{
		JWT:                jwt,
		Auth:               auth.NewHandler(userManager, a.db, resetMailer, jwt, "https://larpcal.test", logger),
		Users:              userManager,
		Orgs:               orgManager,
		Larps:              larpManager,
		Newsletters:        newsletterManager,
		CORSAllowedOrigins: "*",
		Logger:             logger,
		Quiet:              true,
	})
	require.NoError(t, err)
	a.router = router

	_, err = userManager.Register(context.Background(), models.UserForCreate{
		Username: "admin", Password: "admin123!", Email: "admin@example.com", IsAdmin: true,
	})
	require.NoError(t, err)
	return a
}

func (a *app) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	out := map[string]any{}
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "text/html; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (a *app) token(t *testing.T, username, password string) string {
	t.Helper()
	code, out := a.do(t, http.MethodPost, "/auth/token", "", gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusOK, code, out)
	return out["token"].(string)
}

func (a *app) register(t *testing.T, username string) string {
	t.Helper()
	code, out := a.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"username": username, "password": "secret12!", "email": username + "@example.com",
	})
	require.Equal(t, http.StatusCreated, code, out)
	return out["token"].(string)
}

// organizer registers username, creates an organization and returns a token that
// carries the organizer flag together with the organization id.
func (a *app) organizer(t *testing.T, username string) (string, int64) {
	t.Helper()
	tok := a.register(t, username)
	code, out := a.do(t, http.MethodPost, "/orgs", tok, gin.H{"orgName": username + " Larps", "email": username + "@example.com"})
	require.Equal(t, http.StatusCreated, code, out)
	orgID := int64(out["org"].(map[string]any)["id"].(float64))

	code, out = a.do(t, http.MethodPost, "/auth/token/refresh", tok, nil)
	require.Equal(t, http.StatusOK, code, out)
	return out["token"].(string), orgID
}

func idOf(out map[string]any, key string) int64 {
	return int64(out[key].(map[string]any)["id"].(float64))
}

func TestHealthAndNotFound(t *testing.T) {
	a := newApp(t)

	code, out := a.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", out["status"])

	code, out = a.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, float64(http.StatusNotFound), out["error"].(map[string]any)["status"])
}

func TestRegister_Validation(t *testing.T) {
	a := newApp(t)
	code, out := a.do(t, http.MethodPost, "/auth/register", "", gin.H{"username": "ab", "password": "password", "email": "nope"})
	assert.Equal(t, http.StatusBadRequest, code)
	fields := out["error"].(map[string]any)["errors"].(map[string]any)
	assert.Contains(t, fields, "username")
	assert.Contains(t, fields, "password")
	assert.Contains(t, fields, "email")
}

func TestInvalidTokenIsAnonymous(t *testing.T) {
	a := newApp(t)
	code, _ := a.do(t, http.MethodGet, "/events", "garbage", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = a.do(t, http.MethodGet, "/users", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestScenario_PublishAfterApproval(t *testing.T) {
	a := newApp(t)
	admin := a.token(t, "admin", "admin123!")
	org1, orgID := a.organizer(t, "org1")

	start := time.Date(2031, 5, 1, 18, 0, 0, 0, time.UTC)
	code, out := a.do(t, http.MethodPost, "/events", org1, gin.H{
		"orgId": orgID, "title": "Dragon Hunt", "start": start, "end": start.Add(48 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, code, out)
	larpPath := fmt.Sprintf("/events/%d", idOf(out, "larp"))

	code, _ = a.do(t, http.MethodGet, larpPath, "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = a.do(t, http.MethodGet, larpPath, org1, nil)
	assert.Equal(t, http.StatusOK, code)

	code, out = a.do(t, http.MethodPost, larpPath+"/publish", org1, nil)
	assert.Equal(t, http.StatusUnauthorized, code, out)

	code, out = a.do(t, http.MethodPatch, fmt.Sprintf("/orgs/%d/approval", orgID), org1, gin.H{"isApproved": true})
	assert.Equal(t, http.StatusUnauthorized, code, out)
	code, out = a.do(t, http.MethodPatch, fmt.Sprintf("/orgs/%d/approval", orgID), admin, gin.H{"isApproved": true})
	require.Equal(t, http.StatusOK, code, out)

	code, out = a.do(t, http.MethodPost, larpPath+"/publish", org1, nil)
	require.Equal(t, http.StatusOK, code, out)

	code, out = a.do(t, http.MethodGet, larpPath, "", nil)
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, true, out["larp"].(map[string]any)["isPublished"])

	code, out = a.do(t, http.MethodGet, "/events", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["larps"], 1)
}

func TestScenario_NewsletterLifecycle(t *testing.T) {
	a := newApp(t)
	org1, orgID := a.organizer(t, "org1")
	other, _ := a.organizer(t, "org2")
	fan := a.register(t, "fan")

	code, out := a.do(t, http.MethodPut, fmt.Sprintf("/orgs/%d/follow", orgID), fan, gin.H{"emails": true})
	require.Equal(t, http.StatusOK, code, out)

	create := func() int64 {
		code, out := a.do(t, http.MethodPost, fmt.Sprintf("/orgs/%d/newsletters", orgID), org1, gin.H{"subject": "News", "text": "Hello"})
		require.Equal(t, http.StatusCreated, code, out)
		return idOf(out, "newsletter")
	}

	draft := create()
	code, _ = a.do(t, http.MethodDelete, fmt.Sprintf("/newsletters/%d", draft), other, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, out = a.do(t, http.MethodDelete, fmt.Sprintf("/newsletters/%d", draft), org1, nil)
	assert.Equal(t, http.StatusOK, code, out)

	sent := create()
	code, out = a.do(t, http.MethodPost, fmt.Sprintf("/newsletters/%d/send", sent), org1, nil)
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, true, out["sent"])
	assert.Equal(t, float64(1), out["recipients"])
	assert.Equal(t, int32(1), a.emails.Load())

	code, _ = a.do(t, http.MethodDelete, fmt.Sprintf("/newsletters/%d", sent), org1, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = a.do(t, http.MethodDelete, fmt.Sprintf("/orgs/%d/newsletters/%d", orgID, sent), org1, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, out = a.do(t, http.MethodGet, fmt.Sprintf("/newsletters/%d/view", sent), "", nil)
	require.Equal(t, http.StatusOK, code, out)
	assert.Contains(t, out["newsletter"].(map[string]any)["html"], "Hello")

	code, _ = a.do(t, http.MethodPost, fmt.Sprintf("/orgs/%d/newsletters", orgID), org1, gin.H{"subject": "x", "text": "y", "forceSend": true})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = a.do(t, http.MethodGet, "/newsletters", org1, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestUsersGuards(t *testing.T) {
	a := newApp(t)
	admin := a.token(t, "admin", "admin123!")
	user1 := a.register(t, "user1")
	a.register(t, "user2")

	code, _ := a.do(t, http.MethodGet, "/users/user1", user1, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = a.do(t, http.MethodGet, "/users/user2", user1, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = a.do(t, http.MethodGet, "/users/user2", admin, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = a.do(t, http.MethodPatch, "/users/user1", user1, gin.H{"isAdmin": true})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, out := a.do(t, http.MethodGet, "/users", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["users"], 3)
}

func TestPasswordResetRequest_AlwaysReceived(t *testing.T) {
	a := newApp(t)
	a.register(t, "user1")
	for _, name := range []string{"user1", "ghost"} {
		code, _ := a.do(t, http.MethodPost, "/auth/password-reset/request", "", gin.H{"username": name})
		assert.Equal(t, http.StatusOK, code)
	}
	code, _ := a.do(t, http.MethodPatch, "/auth/password-reset/confirm", "", gin.H{"password": "newpass1!"})
	assert.Equal(t, http.StatusUnauthorized, code)
}
