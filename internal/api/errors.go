package api

import (
	"errors"
	"net/http"

	"broadcast-console/internal/backend"
	"broadcast-console/internal/coordinator"

	"github.com/gin-gonic/gin"
)

// ErrMissingFields rejects a template with a blank title or content.
var ErrMissingFields = errors.New("title and content are required")

// statusFor maps local and remote failures onto the console's own status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrNoTemplateSelected),
		errors.Is(err, coordinator.ErrEmptyBatch),
		errors.Is(err, coordinator.ErrUnknownChannel),
		errors.Is(err, ErrMissingFields),
		errors.Is(err, backend.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, coordinator.ErrUnknownTemplate),
		errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, backend.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	if detail := backend.Detail(err); detail != "" {
		body["detail"] = detail
	}
	c.JSON(statusFor(err), body)
}
