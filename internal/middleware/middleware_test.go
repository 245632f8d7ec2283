package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/larpcal/backend/internal/auth"
	"github.com/larpcal/backend/pkg/httperr"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(jwt *auth.JWTService, guards ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(ErrorHandler(zap.NewNop(), true), Authenticate(jwt))
	handlers := append(guards, func(c *gin.Context) {
		id := CurrentIdentity(c)
		if id == nil {
			c.JSON(http.StatusOK, gin.H{"user": nil})
			return
		}
		ctxID := auth.FromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user": id.Username, "ctxUser": ctxID.Username})
	})
	r.GET("/users/:username", handlers...)
	return r
}

func do(t *testing.T, r http.Handler, path, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestAuthenticate(t *testing.T) {
	jwt := auth.NewJWTService("secret", 1, 10)
	token, err := jwt.Generate(auth.Identity{UserID: 1, Username: "u1"})
	require.NoError(t, err)
	r := newRouter(jwt)

	t.Run("valid token", func(t *testing.T) {
		w, body := do(t, r, "/users/u1", "Bearer "+token)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "u1", body["user"])
		assert.Equal(t, "u1", body["ctxUser"])
	})

	t.Run("scheme is case-insensitive", func(t *testing.T) {
		_, body := do(t, r, "/users/u1", "bearer "+token)
		assert.Equal(t, "u1", body["user"])
	})

	for name, header := range map[string]string{
		"missing":     "",
		"garbage":     "Bearer not-a-jwt",
		"wrong key":   "Bearer " + mustToken(t, auth.NewJWTService("other", 1, 10)),
		"no scheme":   token,
		"basic":       "Basic " + token,
		"empty token": "Bearer ",
	} {
		t.Run(name+" stays anonymous", func(t *testing.T) {
			w, body := do(t, r, "/users/u1", header)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Nil(t, body["user"])
		})
	}
}

func mustToken(t *testing.T, svc *auth.JWTService) string {
	t.Helper()
	token, err := svc.Generate(auth.Identity{Username: "u1"})
	require.NoError(t, err)
	return token
}

func TestGuards(t *testing.T) {
	jwt := auth.NewJWTService("secret", 1, 10)
	tok := func(id auth.Identity) string {
		s, err := jwt.Generate(id)
		require.NoError(t, err)
		return "Bearer " + s
	}
	user := tok(auth.Identity{UserID: 1, Username: "u1"})
	organizer := tok(auth.Identity{UserID: 2, Username: "org1", IsOrganizer: true})
	admin := tok(auth.Identity{UserID: 3, Username: "admin", IsAdmin: true})

	cases := []struct {
		name  string
		guard gin.HandlerFunc
		path  string
		token string
		want  int
	}{
		{"logged in anon", LoggedIn(), "/users/u1", "", http.StatusUnauthorized},
		{"logged in user", LoggedIn(), "/users/u1", user, http.StatusOK},
		{"organizer anon", Organizer(), "/users/u1", "", http.StatusUnauthorized},
		{"organizer user", Organizer(), "/users/u1", user, http.StatusUnauthorized},
		{"organizer unapproved", Organizer(), "/users/u1", organizer, http.StatusOK},
		{"admin user", Admin(), "/users/u1", user, http.StatusUnauthorized},
		{"admin admin", Admin(), "/users/u1", admin, http.StatusOK},
		{"correct user self", CorrectUserOrAdmin(), "/users/u1", user, http.StatusOK},
		{"correct user other", CorrectUserOrAdmin(), "/users/org1", user, http.StatusUnauthorized},
		{"correct user admin", CorrectUserOrAdmin(), "/users/org1", admin, http.StatusOK},
		{"correct user anon", CorrectUserOrAdmin(), "/users/u1", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, body := do(t, newRouter(jwt, tc.guard), tc.path, tc.token)
			assert.Equal(t, tc.want, w.Code)
			if tc.want == http.StatusUnauthorized {
				errBody := body["error"].(map[string]any)
				assert.EqualValues(t, http.StatusUnauthorized, errBody["status"])
			}
		})
	}
}

func TestErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(zap.NewNop(), true))
	r.GET("/boom", func(c *gin.Context) { _ = c.Error(errors.New("db down")) })
	r.GET("/bad", func(c *gin.Context) { _ = c.Error(httperr.FieldError("end", "must not precede start")) })
	r.NoRoute(NotFound())

	_, body := do(t, r, "/boom", "")
	errBody := body["error"].(map[string]any)
	assert.EqualValues(t, 500, errBody["status"])
	assert.Equal(t, "Internal Server Error", errBody["message"])

	w, body := do(t, r, "/bad", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	errBody = body["error"].(map[string]any)
	assert.Equal(t, map[string]any{"end": []any{"must not precede start"}}, errBody["errors"])

	w, _ = do(t, r, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS("http://localhost:5173, https://larpcal.com/"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://larpcal.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://larpcal.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
