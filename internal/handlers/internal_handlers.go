package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"sentinel/internal/models"
	"sentinel/internal/services"
	"sentinel/pkg/apperrors"
	"sentinel/pkg/logger"
)

// InternalScanHandler serves the trusted service-to-service surface used by
// the results aggregator to push status without going through the bus.
type InternalScanHandler struct {
	scanService services.ScanServiceMethods
	logger      *logger.Logger
}

func NewInternalScanHandler(scanService services.ScanServiceMethods) *InternalScanHandler {
	return &InternalScanHandler{scanService: scanService, logger: logger.NewLogger(logrus.InfoLevel)}
}

func (h *InternalScanHandler) UpdateStatus(c *gin.Context) {
	scanID := c.Param("id")

	var req StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewValidation("body", "invalid status payload"))
		return
	}

	status, err := models.ParseScanStatus(req.Status)
	if err != nil {
		writeError(c, err)
		return
	}

	h.logger.Info("Internal status update", logger.Fields{"scan_id": scanID, "status": status})
	if err := h.scanService.ApplyStatus(c.Request.Context(), scanID, status, req.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
