package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"sentinel/internal/services"
	"sentinel/pkg/logger"
)

type ResultHandler struct {
	results   services.ResultsServiceMethods
	analytics services.AnalyticsServiceMethods
	logger    *logger.Logger
}

func NewResultHandler(results services.ResultsServiceMethods, analytics services.AnalyticsServiceMethods) *ResultHandler {
	return &ResultHandler{
		results:   results,
		analytics: analytics,
		logger:    logger.NewLogger(logrus.InfoLevel),
	}
}

func (h *ResultHandler) GetResult(c *gin.Context) {
	result, err := h.results.GetResult(c.Request.Context(), c.Param("scanId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ResultHandler) VulnerabilityAnalytics(c *gin.Context) {
	tenant, err := tenantID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))

	report, err := h.analytics.VulnerabilityAnalytics(c.Request.Context(), tenant, days)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *ResultHandler) CodeQualityAnalytics(c *gin.Context) {
	tenant, err := tenantID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))

	report, err := h.analytics.CodeQualityAnalytics(c.Request.Context(), tenant, days)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *ResultHandler) ComplianceAnalytics(c *gin.Context) {
	tenant, err := tenantID(c)
	if err != nil {
		writeError(c, err)
		return
	}
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))

	report, err := h.analytics.ComplianceAnalytics(c.Request.Context(), tenant, days)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
