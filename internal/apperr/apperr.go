// Package apperr defines the error taxonomy shared by services and the HTTP layer.
package apperr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind sentinels. Use errors.Is(err, apperr.ErrForbidden) to classify.
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrInvalid         = errors.New("invalid request")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Error carries a kind, a stable machine-readable code and a human message.
type Error struct {
	Kind    error
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

func newErr(kind error, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func NotFound(code, msg string) *Error        { return newErr(ErrNotFound, code, msg) }
func Forbidden(code, msg string) *Error       { return newErr(ErrForbidden, code, msg) }
func Conflict(code, msg string) *Error        { return newErr(ErrConflict, code, msg) }
func Invalid(code, msg string) *Error         { return newErr(ErrInvalid, code, msg) }
func Unauthenticated(code, msg string) *Error { return newErr(ErrUnauthenticated, code, msg) }
func RateLimited(code, msg string) *Error     { return newErr(ErrRateLimited, code, msg) }

// HTTPStatus maps an error to the status code returned to clients.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// Respond writes err as a JSON error body and aborts the gin chain.
// Unclassified errors are reported as internal without leaking details.
func Respond(c *gin.Context, err error) {
	status := HTTPStatus(err)
	var ae *Error
	if errors.As(err, &ae) {
		c.AbortWithStatusJSON(status, gin.H{"error": ae.Code, "message": ae.Message})
		return
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal", "message": "internal server error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
