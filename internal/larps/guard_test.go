package larps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/larpcal/backend/internal/auth"
	"github.com/larpcal/backend/internal/middleware"
)

func newRouter(f *fixture, caller *auth.Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler(zap.NewNop(), true))
	r.Use(func(c *gin.Context) {
		if caller != nil {
			c.Set(middleware.ContextIdentity, *caller)
		}
		c.Next()
	})
	h := NewHandler(f.m)
	r.GET("/events/:id", ProtectUnpublished(f.m), h.Get)
	r.DELETE("/events/:id", OwnerOrAdmin(f.m), h.Delete)
	return r
}

func do(r http.Handler, method, path string) int {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w.Code
}

func TestProtectUnpublished(t *testing.T) {
	f := newFixture(t)
	l := f.create(t, "Dragon Hunt", day0)
	path := "/events/" + strconv.FormatInt(l.ID, 10)

	assert.Equal(t, http.StatusNotFound, do(newRouter(f, nil), http.MethodGet, path))
	assert.Equal(t, http.StatusNotFound, do(newRouter(f, stranger), http.MethodGet, path))
	assert.Equal(t, http.StatusOK, do(newRouter(f, owner), http.MethodGet, path))
	assert.Equal(t, http.StatusOK, do(newRouter(f, admin), http.MethodGet, path))
	assert.Equal(t, http.StatusNotFound, do(newRouter(f, admin), http.MethodGet, "/events/abc"))

	f.approve(t)
	_, err := f.m.Publish(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do(newRouter(f, nil), http.MethodGet, path))
}

func TestOwnerOrAdmin(t *testing.T) {
	f := newFixture(t)
	l := f.create(t, "Dragon Hunt", day0)
	path := "/events/" + strconv.FormatInt(l.ID, 10)

	assert.Equal(t, http.StatusNotFound, do(newRouter(f, stranger), http.MethodDelete, "/events/999"))
	assert.Equal(t, http.StatusUnauthorized, do(newRouter(f, nil), http.MethodDelete, path))
	assert.Equal(t, http.StatusUnauthorized, do(newRouter(f, stranger), http.MethodDelete, path))
	assert.Equal(t, http.StatusOK, do(newRouter(f, owner), http.MethodDelete, path))
	assert.Equal(t, http.StatusNotFound, do(newRouter(f, owner), http.MethodDelete, path))
}
