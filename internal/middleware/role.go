package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/larpcal/backend/pkg/httperr"
)

// Fail aborts the request with err; ErrorHandler renders it.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// LoggedIn allows any authenticated caller.
func LoggedIn() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentIdentity(c) == nil {
			Fail(c, httperr.Unauthorized(""))
			return
		}
		c.Next()
	}
}

// Organizer allows callers that own an organization, approved or not.
func Organizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := CurrentIdentity(c)
		if id == nil || !id.IsOrganizer {
			Fail(c, httperr.Unauthorized("Must be an organizer. If you recently created an organization, please log in again."))
			return
		}
		c.Next()
	}
}

// Admin allows admins only.
func Admin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := CurrentIdentity(c)
		if id == nil || !id.IsAdmin {
			Fail(c, httperr.Unauthorized(""))
			return
		}
		c.Next()
	}
}

// CorrectUserOrAdmin allows the user named by the :username parameter, or an admin.
func CorrectUserOrAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentIdentity(c).Owns(c.Param("username")) {
			Fail(c, httperr.Unauthorized(""))
			return
		}
		c.Next()
	}
}

// ParamID parses a positive integer path parameter. Malformed ids are reported as not found.
func ParamID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, httperr.NotFound("")
	}
	return id, nil
}
