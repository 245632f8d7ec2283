package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/larpcal/backend/pkg/httperr"
)

// ErrorBody is the error half of the envelope: {"error": {...}}.
type ErrorBody struct {
	Message string              `json:"message"`
	Status  int                 `json:"status"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// Envelope wraps ErrorBody for serialization.
type Envelope struct {
	Error ErrorBody `json:"error"`
}

// OK sends a 200 JSON response.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Created sends a 201 JSON response.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// Text sends a plain-text 200 response.
func Text(c *gin.Context, msg string) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(msg))
}

// Error renders err in the error envelope. Errors that are not *httperr.Error become 500s
// without leaking their message.
func Error(c *gin.Context, err error) {
	var he *httperr.Error
	if !errors.As(err, &he) {
		he = httperr.New(http.StatusInternalServerError, "")
	}
	c.JSON(he.Status, Envelope{Error: ErrorBody{
		Message: he.Message,
		Status:  he.Status,
		Errors:  he.Fields,
	}})
}
