package api

import (
	"errors"
	"log"
	"net/http"

	"report-coordinator/internal/models"
	"report-coordinator/internal/services"

	"github.com/gin-gonic/gin"
)

// Handlers holds the HTTP handlers for the report API
type Handlers struct {
	reports *services.ReportService
	cleanup *services.CleanupService
	jwt     *services.JWTService
}

// NewHandlers creates a new handlers instance
func NewHandlers(reports *services.ReportService, cleanup *services.CleanupService, jwt *services.JWTService) *Handlers {
	return &Handlers{
		reports: reports,
		cleanup: cleanup,
		jwt:     jwt,
	}
}

// CreateReport handles POST /api/reports
func (h *Handlers) CreateReport(c *gin.Context) {
	var req models.CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	report, err := h.reports.CreateReport(c.Request.Context(), c.GetString("userID"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, report)
}

// GetReport handles GET /api/reports/:id
func (h *Handlers) GetReport(c *gin.Context) {
	report, err := h.reports.GetReport(c.Request.Context(), c.Param("id"), c.GetString("userID"), c.GetBool("isAdmin"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetReportStatus handles GET /api/reports/:id/status, refreshing in-flight
// progress from the analysis worker
func (h *Handlers) GetReportStatus(c *gin.Context) {
	report, err := h.reports.RefreshStatus(c.Request.Context(), c.Param("id"), c.GetString("userID"), c.GetBool("isAdmin"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                     report.ID,
		"status":                 report.Status,
		"progress":               report.Progress,
		"currentStage":           report.CurrentStage,
		"estimatedTimeRemaining": report.EstimatedTimeRemaining,
	})
}

// CancelReport handles POST /api/reports/:id/cancel
func (h *Handlers) CancelReport(c *gin.Context) {
	id := c.Param("id")
	if err := h.reports.CancelReport(c.Request.Context(), id, c.GetString("userID"), c.GetBool("isAdmin")); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.OperationResponse{
		Success:  true,
		Message:  "Report canceled",
		ReportID: id,
	})
}

// RetryReport handles POST /api/reports/:id/retry
func (h *Handlers) RetryReport(c *gin.Context) {
	id := c.Param("id")
	if err := h.reports.RetryReport(c.Request.Context(), id, c.GetString("userID"), c.GetBool("isAdmin")); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.OperationResponse{
		Success:  true,
		Message:  "Report resubmitted for analysis",
		ReportID: id,
	})
}

// DeleteReport handles DELETE /api/reports/:id
func (h *Handlers) DeleteReport(c *gin.Context) {
	id := c.Param("id")
	if err := h.reports.DeleteReport(c.Request.Context(), id, c.GetString("userID"), c.GetBool("isAdmin")); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.OperationResponse{
		Success:  true,
		Message:  "Report deleted",
		ReportID: id,
	})
}

// AnalysisCallback handles POST /api/callbacks/analysis from the worker.
// Always answers 200 on accepted payloads so the worker does not redeliver;
// orphan callbacks are acknowledged and dropped.
func (h *Handlers) AnalysisCallback(c *gin.Context) {
	var cb models.AnalysisCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid callback payload: " + err.Error()})
		return
	}

	if err := h.reports.HandleCallback(c.Request.Context(), cb); err != nil {
		log.Printf("ERROR: callback processing failed for report %s: %v", cb.ReportID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "callback processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Cleanup handles POST /api/admin/cleanup
func (h *Handlers) Cleanup(c *gin.Context) {
	var req models.CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	result := h.cleanup.Sweep(c.Request.Context(), req.DaysOld, req.DryRun)
	c.JSON(http.StatusOK, result)
}

// IssueToken handles POST /auth/token
func (h *Handlers) IssueToken(c *gin.Context) {
	var req models.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	token, err := h.jwt.GenerateToken(req.UserID, req.Admin)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "report-coordinator",
	})
}

// writeError maps service errors to HTTP status codes
func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrReportNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
	case errors.Is(err, services.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	case errors.Is(err, services.ErrInvalidStateTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrWorkerUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Analysis service unavailable"})
	default:
		log.Printf("ERROR: unhandled service error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
