package models

import "time"

// ReportStatus represents the lifecycle status of a report
type ReportStatus string

const (
	ReportStatusPending    ReportStatus = "pending"
	ReportStatusProcessing ReportStatus = "processing"
	ReportStatusCompleted  ReportStatus = "completed"
	ReportStatusFailed     ReportStatus = "failed"
)

// CanCancel reports whether a report in this status may be canceled.
// Only reports that have not reached a terminal outcome can be canceled.
func (s ReportStatus) CanCancel() bool {
	return s == ReportStatusPending || s == ReportStatusProcessing
}

// CanRetry reports whether a report in this status may be retried.
func (s ReportStatus) CanRetry() bool {
	return s == ReportStatusFailed
}

// ReportFile describes one generated output artifact
type ReportFile struct {
	FileRef     string `bson:"fileRef" json:"fileRef"`
	FileName    string `bson:"fileName,omitempty" json:"fileName,omitempty"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
}

// InputFile references the originally uploaded document.
// CloudPath is the pre-migration field name; older records carry it instead of
// (or in addition to) FileRef.
type InputFile struct {
	FileRef   string `bson:"fileRef,omitempty" json:"fileRef,omitempty"`
	CloudPath string `bson:"cloudPath,omitempty" json:"cloudPath,omitempty"`
	FileName  string `bson:"fileName,omitempty" json:"fileName,omitempty"`
}

// ReportOutput holds the generated artifacts. ReportFiles is the current
// format; the url fields are the legacy flat layout some older records still use.
type ReportOutput struct {
	ReportFiles map[string]ReportFile `bson:"reportFiles,omitempty" json:"reportFiles,omitempty"`
	JSONURL     string                `bson:"jsonUrl,omitempty" json:"jsonUrl,omitempty"`
	PDFURL      string                `bson:"pdfUrl,omitempty" json:"pdfUrl,omitempty"`
	HTMLURL     string                `bson:"htmlUrl,omitempty" json:"htmlUrl,omitempty"`
}

// AlgorithmInfo tracks the external analysis call for a report
type AlgorithmInfo struct {
	TaskID           string     `bson:"taskId,omitempty" json:"taskId,omitempty"`
	RequestTime      *time.Time `bson:"requestTime,omitempty" json:"requestTime,omitempty"`
	ResponseTime     *time.Time `bson:"responseTime,omitempty" json:"responseTime,omitempty"`
	ProcessingTime   float64    `bson:"processingTime,omitempty" json:"processingTime,omitempty"`
	RetryCount       int        `bson:"retryCount" json:"retryCount"`
	CallbackReceived bool       `bson:"callbackReceived" json:"callbackReceived"`
	ErrorMessage     string     `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
}

// ReportMetadata holds record timestamps
type ReportMetadata struct {
	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt" json:"updatedAt"`
	CompletedAt *time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
}

// Report is the document stored for one analysis request
type Report struct {
	ID                     string         `bson:"_id" json:"id"`
	OwnerID                string         `bson:"ownerId" json:"ownerId"`
	ReportType             string         `bson:"reportType" json:"reportType"`
	Status                 ReportStatus   `bson:"status" json:"status"`
	Progress               int            `bson:"progress" json:"progress"`
	CurrentStage           string         `bson:"currentStage,omitempty" json:"currentStage,omitempty"`
	EstimatedTimeRemaining int            `bson:"estimatedTimeRemaining,omitempty" json:"estimatedTimeRemaining,omitempty"`
	Input                  InputFile      `bson:"input" json:"input"`
	Output                 ReportOutput   `bson:"output,omitempty" json:"output,omitempty"`
	LegacyReportFiles      map[string]ReportFile `bson:"reportFiles,omitempty" json:"-"`
	Algorithm              AlgorithmInfo  `bson:"algorithm" json:"algorithm"`
	Metadata               ReportMetadata `bson:"metadata" json:"metadata"`
}

// AllFileRefs collects every blob reference held by the report, covering both
// the current document layout and the legacy layouts older records still use.
// The result is deduplicated (first occurrence wins) with empty refs dropped,
// so storage cleanup issues exactly one delete per distinct object.
func (r *Report) AllFileRefs() []string {
	var refs []string

	// Original upload
	refs = append(refs, r.Input.FileRef, r.Input.CloudPath)

	// Current output layout
	for _, format := range outputFormatOrder {
		if f, ok := r.Output.ReportFiles[format]; ok {
			refs = append(refs, f.FileRef)
		}
	}

	// Legacy flat url layout
	refs = append(refs, r.Output.JSONURL, r.Output.PDFURL, r.Output.HTMLURL)

	// Legacy top-level reportFiles layout
	for _, format := range outputFormatOrder {
		if f, ok := r.LegacyReportFiles[format]; ok {
			refs = append(refs, f.FileRef)
		}
	}

	seen := make(map[string]bool, len(refs))
	unique := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref == "" || seen[ref] {
			continue
		}
		seen[ref] = true
		unique = append(unique, ref)
	}
	return unique
}

// outputFormatOrder keeps ref collection deterministic across map layouts
var outputFormatOrder = []string{"json", "pdf", "html", "word"}

// ClampProgress bounds an advisory progress value to the 0-100 range
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// CleanupLogEntry is the audit record written whenever a report's blobs and
// document are reclaimed
type CleanupLogEntry struct {
	ReportID      string    `bson:"reportId" json:"reportId"`
	FileRefs      []string  `bson:"fileRefs" json:"fileRefs"`
	CleanupTime   time.Time `bson:"cleanupTime" json:"cleanupTime"`
	CleanupReason string    `bson:"cleanupReason" json:"cleanupReason"`
}

// Cleanup reasons recorded in cleanup_logs
const (
	CleanupReasonUserDelete      = "user delete"
	CleanupReasonUserCancel      = "user cancel"
	CleanupReasonCallbackFailure = "analysis callback failure"
	CleanupReasonScheduledSweep  = "scheduled cleanup of stale failed reports"
)
