package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/invosync/internal/account/domain"
	"github.com/smallbiznis/invosync/internal/fatture"
	subscriptiondomain "github.com/smallbiznis/invosync/internal/subscription/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

// ErrorHandlingMiddleware maps management-API errors to JSON responses.
// Webhook routes bypass it: their bodies are a wire contract with the
// sender and are written directly by the handlers.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var mismatch *accountdomain.CompanyMismatchError

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, subscriptiondomain.ErrUnknownEventGroup):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, fatture.ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.As(err, &mismatch):
		return http.StatusConflict, errorPayload{
			Type:    "company_mismatch",
			Message: mismatch.Error(),
		}
	case errors.Is(err, accountdomain.ErrInvalidTransition),
		errors.Is(err, ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, accountdomain.ErrAccountNotFound),
		errors.Is(err, accountdomain.ErrNoCompanyAvailable),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, fatture.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
