package services

import (
	"context"
	"time"

	"report-coordinator/internal/models"
)

// ReportStore is the document-store port used by the coordinator and sweeper.
// *database.MongoDBClient satisfies it; tests use an in-memory fake.
type ReportStore interface {
	GetReport(id string) (*models.Report, error) // (nil, nil) when absent
	InsertReport(report *models.Report) error
	DeleteReport(id string) (bool, error)
	MarkProcessing(id, taskID string) (bool, error)
	ResetForRetry(id string) (bool, error)
	MarkFailed(id, errorMessage string) error
	SetTaskID(id, taskID string) error
	CompleteReport(id string, files map[string]models.ReportFile, responseTime time.Time, processingTime float64) (bool, error)
	UpdateAdvisoryProgress(id string, progress int, stage string, estimatedTimeRemaining int) error
	FindFailedReportsBefore(cutoff time.Time, limit int64) ([]models.Report, error)
	InsertCleanupLog(entry models.CleanupLogEntry) error
}

// FileStore is the blob-store port
type FileStore interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
	// DeleteFiles removes the given refs best-effort and returns the refs it
	// could not delete. Deleting an absent ref is success.
	DeleteFiles(ctx context.Context, refs []string) []FileDeleteError
}

// FileDeleteError records one blob reference that could not be deleted
type FileDeleteError struct {
	Ref string
	Err error
}

// AnalysisClient is the port to the external analysis worker
type AnalysisClient interface {
	// Submit hands a job to the worker and returns the worker's task id.
	// Completion arrives later through the callback endpoint.
	Submit(ctx context.Context, reportID, fileRef, reportType string) (string, error)
	TaskStatus(ctx context.Context, taskID string) (*models.WorkerTaskStatus, error)
}
