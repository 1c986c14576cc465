package models

// CreateReportRequest represents the request to submit a document for analysis
type CreateReportRequest struct {
	ReportType string `json:"reportType" binding:"required"`
	FileRef    string `json:"fileRef" binding:"required"` // blob key of the uploaded document
	FileName   string `json:"fileName"`
}

// AnalysisCallback is the completion notification posted by the analysis worker
type AnalysisCallback struct {
	TaskID         string                 `json:"taskId"`
	ReportID       string                 `json:"reportId" binding:"required"`
	Success        bool                   `json:"success"`
	AnalysisResult map[string]interface{} `json:"analysisResult,omitempty"`
	HTMLReport     string                 `json:"htmlReport,omitempty"`
	ErrorMessage   string                 `json:"errorMessage,omitempty"`
	ProcessingTime float64                `json:"processingTime,omitempty"`
}

// CleanupRequest represents a sweep invocation
type CleanupRequest struct {
	DaysOld int  `json:"daysOld"` // 0 means the default (7)
	DryRun  bool `json:"dryRun"`
}

// CleanupError records a single report the sweep failed to clean
type CleanupError struct {
	ReportID string `json:"reportId"`
	Error    string `json:"error"`
}

// CleanupResult summarizes one sweep invocation
type CleanupResult struct {
	Success      bool           `json:"success"`
	Message      string         `json:"message"`
	CleanedCount int            `json:"cleanedCount"`
	TotalFound   int            `json:"totalFound"`
	Errors       []CleanupError `json:"errors,omitempty"`
	DryRun       bool           `json:"dryRun"`
}

// OperationResponse is the envelope returned by cancel/retry/delete
type OperationResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	ReportID string `json:"reportId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// WorkerTaskStatus is the worker's answer to a task-status poll
type WorkerTaskStatus struct {
	TaskID                 string `json:"taskId"`
	Status                 string `json:"status"` // "queued", "processing"
	Progress               int    `json:"progress"`
	EstimatedTimeRemaining int    `json:"estimatedTimeRemaining"`
}

// TokenRequest represents the request to issue a caller token
type TokenRequest struct {
	UserID string `json:"userId" binding:"required"`
	Admin  bool   `json:"admin"`
}
