// Package httperr defines the HTTP-status-bearing errors returned by managers and guards.
// The error middleware renders any *Error as {"error": {"message", "status"}}.
package httperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Error is an error carrying the HTTP status it should be rendered with.
type Error struct {
	Status  int
	Message string
	// Fields holds per-field messages for input validation failures.
	Fields map[string][]string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

// New returns an error with the given status; an empty message falls back to the status text.
func New(status int, msg string, args ...any) *Error {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{Status: status, Message: msg}
}

func NotFound(msg string, args ...any) *Error     { return New(http.StatusNotFound, msg, args...) }
func Unauthorized(msg string, args ...any) *Error { return New(http.StatusUnauthorized, msg, args...) }
func BadRequest(msg string, args ...any) *Error   { return New(http.StatusBadRequest, msg, args...) }
func Forbidden(msg string, args ...any) *Error    { return New(http.StatusForbidden, msg, args...) }

// Validation returns a 400 carrying per-field messages.
func Validation(fields map[string][]string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: "Validation Error", Fields: fields}
}

// FieldError is shorthand for a validation error on a single field.
func FieldError(field, problem string) *Error {
	return Validation(map[string][]string{field: {problem}})
}

// StatusOf returns the HTTP status for err, 500 for anything that is not an *Error.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// FromBindError converts a gin binding error into a validation or bad-request error.
// Field names are the JSON names when the validator has a tag-name func registered.
func FromBindError(err error) *Error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return BadRequest("Malformed request body")
	}

	problems := map[string][]string{}
	for _, fe := range ve {
		field := fe.Field()
		if field == "" {
			field = strings.ToLower(fe.StructField())
		}

		switch fe.Tag() {
		case "required":
			problems[field] = append(problems[field], "This field is required")
		case "min":
			problems[field] = append(problems[field], "Value is too short, min: "+fe.Param())
		case "max":
			problems[field] = append(problems[field], "Value is too long, max: "+fe.Param())
		case "email":
			problems[field] = append(problems[field], "Value must be a valid email address")
		case "url":
			problems[field] = append(problems[field], "Value must be a valid URL")
		case "oneof":
			problems[field] = append(problems[field], "Value must be one of: "+fe.Param())
		case "password":
			problems[field] = append(problems[field], "Password must contain at least one letter, one number and one special character")
		case "gtefield":
			problems[field] = append(problems[field], "Value must not be before "+fe.Param())
		default:
			problems[field] = append(problems[field], "Invalid value provided")
		}
	}
	return Validation(problems)
}
