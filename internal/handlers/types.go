package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sentinel/internal/models"
	"sentinel/pkg/apperrors"
)

// ScanRequest is the accepted body of POST /api/scans.
type ScanRequest struct {
	Type       string `json:"type" binding:"required"`
	TargetURL  string `json:"target_url"`
	TargetRepo string `json:"target_repo"`
	ProjectID  string `json:"project_id"`
	GitToken   string `json:"git_token"`
}

// StatusUpdateRequest is the accepted body of the internal status endpoint.
type StatusUpdateRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// PagedScans wraps a job listing with pagination info.
type PagedScans struct {
	Items []models.ScanJob `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

// ErrorBody is the structured error response shared by all endpoints.
type ErrorBody struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
}

// writeError maps the error taxonomy onto HTTP statuses and emits the
// structured body.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	category := "Internal"

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status, category = http.StatusNotFound, "NotFound"
	case errors.Is(err, apperrors.ErrValidation):
		status, category = http.StatusBadRequest, "ValidationFailed"
	case errors.Is(err, apperrors.ErrLimitExceeded):
		status, category = http.StatusForbidden, "LimitExceeded"
	case errors.Is(err, apperrors.ErrConflict):
		status, category = http.StatusConflict, "Conflict"
	case errors.Is(err, apperrors.ErrUnavailable):
		status, category = http.StatusServiceUnavailable, "ServiceUnavailable"
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "unexpected error"
	}

	c.JSON(status, ErrorBody{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     category,
		Message:   message,
	})
}
