// Package httpapi is the JSON API and the guarded page endpoints. Every response uses
// the {data, error} envelope; error is {message}.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"crm-platform/internal/email"
	"crm-platform/internal/extraction"
	"crm-platform/internal/identity"
	"crm-platform/internal/rbac"
	"crm-platform/internal/session"
	"crm-platform/internal/store"
	"crm-platform/pkg/logger"
	"crm-platform/pkg/validate"

	"github.com/gin-gonic/gin"
)

type envelope struct {
	Data  any       `json:"data"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Data: data})
}

// fail renders err with the status StatusFor picks. Unmapped errors are logged and
// their text is not shown to the caller.
func fail(c *gin.Context, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, envelope{Error: &apiError{Message: msg}})
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, identity.ErrLocked):
		return http.StatusLocked
	case errors.Is(err, identity.ErrNoSession), errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, rbac.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, extraction.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, email.ErrDelivery):
		return http.StatusBadGateway
	case errors.Is(err, store.ErrInvalidArgument), errors.Is(err, email.ErrNoRecipient):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// bind decodes the JSON body into req and validates its tags.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		fail(c, fmt.Errorf("%w: invalid json body", validate.ErrInvalid))
		return false
	}
	return true
}

// page reads limit and offset query parameters; absent values are zero.
func page(c *gin.Context) (limit, offset int, err error) {
	if limit, err = queryInt(c, "limit"); err != nil {
		return 0, 0, err
	}
	offset, err = queryInt(c, "offset")
	return limit, offset, err
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", validate.ErrInvalid, name)
	}
	return n, nil
}
