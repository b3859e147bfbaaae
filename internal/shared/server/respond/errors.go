package respond

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"statements-backend/internal/shared/apperr"
	"statements-backend/internal/shared/telemetry"
)

// ErrorBody defines the standardized error object.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorResponse wraps the error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error sends a standardized error response.
func Error(c *gin.Context, status int, code, message string, details interface{}) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if actorID := c.GetString("actorId"); actorID != "" {
		fields["actor_id"] = actorID
	}
	if status >= http.StatusInternalServerError {
		telemetry.Error("http.error", fields)
	} else {
		telemetry.Warn("http.error", fields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// FromError maps an application error kind onto an HTTP status and error body.
// Unknown errors become a generic 500 so internal detail never leaks.
func FromError(c *gin.Context, err error) {
	code := apperr.Code(err)
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		telemetry.Error("http.internal_error", map[string]any{
			"request_id": c.GetString("requestId"),
			"path":       c.Request.URL.Path,
			"error":      err,
		})
		Error(c, status, code, "internal server error", nil)
		return
	}

	var details interface{}
	var verr *apperr.ValidationError
	if errors.As(err, &verr) && verr.Field != "" {
		details = gin.H{"field": verr.Field}
	}
	Error(c, status, code, err.Error(), details)
}

// StatusFor returns the HTTP status for err's kind.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrExternalProcessing):
		return http.StatusBadGateway
	case errors.Is(err, apperr.ErrPermission):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
