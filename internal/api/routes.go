package api

import (
	"report-coordinator/internal/middleware"
	"report-coordinator/internal/services"

	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all API routes
func SetupRoutes(handlers *Handlers, jwtService *services.JWTService) *gin.Engine {
	router := gin.Default()

	// Add CORS middleware
	router.Use(corsMiddleware())

	// Token issuance (no auth)
	router.POST("/auth/token", handlers.IssueToken)

	// API routes
	api := router.Group("/api")
	{
		// Worker callback endpoint, authenticated by network boundary not token
		api.POST("/callbacks/analysis", handlers.AnalysisCallback)

		// Apply authentication middleware to all report routes
		reports := api.Group("/reports")
		reports.Use(middleware.AuthenticateUser(jwtService))
		{
			reports.POST("", handlers.CreateReport)
			reports.GET("/:id", handlers.GetReport)
			reports.GET("/:id/status", handlers.GetReportStatus)
			reports.POST("/:id/cancel", handlers.CancelReport)
			reports.POST("/:id/retry", handlers.RetryReport)
			reports.DELETE("/:id", handlers.DeleteReport)
		}

		// Admin-only maintenance endpoints
		admin := api.Group("/admin")
		admin.Use(middleware.AuthenticateUser(jwtService), middleware.RequireAdmin())
		{
			admin.POST("/cleanup", handlers.Cleanup)
		}
	}

	// Health check endpoint
	router.GET("/health", handlers.HealthCheck)

	return router
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
