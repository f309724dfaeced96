package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sentinel/internal/handlers"
	"sentinel/internal/services"
)

// NewOrchestratorRouter wires the scan API and the internal status surface.
func NewOrchestratorRouter(scanService services.ScanServiceMethods) *gin.Engine {
	router := gin.Default()
	registerHealth(router)

	api := router.Group("/api")
	{
		InitScanRoutes(api, scanService)
		InitInternalRoutes(api, scanService)
	}
	return router
}

// NewAggregatorRouter wires the results and analytics API.
func NewAggregatorRouter(results services.ResultsServiceMethods, analytics services.AnalyticsServiceMethods) *gin.Engine {
	router := gin.Default()
	registerHealth(router)

	api := router.Group("/api")
	{
		InitResultRoutes(api, results, analytics)
	}
	return router
}

func registerHealth(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func InitScanRoutes(router *gin.RouterGroup, scanService services.ScanServiceMethods) {
	h := handlers.NewScanHandler(scanService)

	scanRoutes := router.Group("/scans")
	{
		scanRoutes.POST("", h.CreateScan)
		scanRoutes.GET("", h.ListScans)
		scanRoutes.GET("/my-scans", h.ListMyScans)
		scanRoutes.GET("/:id", h.GetScan)
		scanRoutes.POST("/:id/cancel", h.CancelScan)
	}
}

func InitInternalRoutes(router *gin.RouterGroup, scanService services.ScanServiceMethods) {
	h := handlers.NewInternalScanHandler(scanService)

	internalRoutes := router.Group("/internal/scans")
	{
		internalRoutes.PUT("/:id/status", h.UpdateStatus)
	}
}

func InitResultRoutes(router *gin.RouterGroup, results services.ResultsServiceMethods, analytics services.AnalyticsServiceMethods) {
	h := handlers.NewResultHandler(results, analytics)

	resultRoutes := router.Group("/results")
	{
		resultRoutes.GET("/:scanId", h.GetResult)
		resultRoutes.GET("/analytics/vulnerabilities", h.VulnerabilityAnalytics)
		resultRoutes.GET("/analytics/code-quality", h.CodeQualityAnalytics)
		resultRoutes.GET("/analytics/compliance", h.ComplianceAnalytics)
	}
}
