package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"sentinel/internal/services"
	"sentinel/pkg/apperrors"
	"sentinel/pkg/logger"
)

type ScanHandler struct {
	scanService services.ScanServiceMethods
	logger      *logger.Logger
}

func NewScanHandler(scanService services.ScanServiceMethods) *ScanHandler {
	return &ScanHandler{scanService: scanService, logger: logger.NewLogger(logrus.InfoLevel)}
}

func (h *ScanHandler) CreateScan(c *gin.Context) {
	tenant, err := tenantID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	user, err := userID(c)
	if err != nil {
		writeError(c, err)
		return
	}

	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Failed to bind scan request", logger.Fields{"error": err})
		writeError(c, apperrors.NewValidation("body", "invalid request payload"))
		return
	}

	h.logger.Info("Scan requested", logger.Fields{"tenant_id": tenant, "type": req.Type})
	job, err := h.scanService.CreateScan(c.Request.Context(), services.CreateScanRequest{
		Type:       req.Type,
		TargetURL:  req.TargetURL,
		TargetRepo: req.TargetRepo,
		ProjectID:  req.ProjectID,
		GitToken:   req.GitToken,
	}, tenant, user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (h *ScanHandler) GetScan(c *gin.Context) {
	job, err := h.scanService.GetScan(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *ScanHandler) ListScans(c *gin.Context) {
	tenant, err := tenantID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	page, limit := pagination(c)

	jobs, total, err := h.scanService.ListByTenant(c.Request.Context(), tenant, page, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, PagedScans{Items: jobs, Total: total, Page: page, Limit: limit})
}

func (h *ScanHandler) ListMyScans(c *gin.Context) {
	user, err := userID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	page, limit := pagination(c)

	jobs, total, err := h.scanService.ListByUser(c.Request.Context(), user, page, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, PagedScans{Items: jobs, Total: total, Page: page, Limit: limit})
}

func (h *ScanHandler) CancelScan(c *gin.Context) {
	scanID := c.Param("id")
	if err := h.scanService.Cancel(c.Request.Context(), scanID); err != nil {
		writeError(c, err)
		return
	}
	h.logger.Info("Scan cancelled", logger.Fields{"scan_id": scanID})
	c.Status(http.StatusOK)
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	return page, limit
}
