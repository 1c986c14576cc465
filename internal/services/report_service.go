package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"report-coordinator/internal/models"
	"report-coordinator/internal/validation"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

// ReportService coordinates the report lifecycle: submission to the analysis
// worker, the completion callback, and the user-facing cancel/retry/delete
// operations. The report document is the single source of truth for status;
// every operation re-reads it and terminal transitions are compare-and-set
// writes, so concurrent operations on the same report never resurrect a
// removed record or double-write a terminal state.
type ReportService struct {
	store    ReportStore
	files    FileStore
	analysis AnalysisClient
	schema   *gojsonschema.Schema // optional, validates analysis results
}

// NewReportService creates a new report service
func NewReportService(store ReportStore, files FileStore, analysis AnalysisClient, schema *gojsonschema.Schema) *ReportService {
	return &ReportService{
		store:    store,
		files:    files,
		analysis: analysis,
		schema:   schema,
	}
}

// CreateReport registers an uploaded document for analysis and submits the job
// to the worker. If submission fails the report is marked failed (retryable)
// rather than left pending; the input blob is kept so retry can reuse it.
func (s *ReportService) CreateReport(ctx context.Context, ownerID string, req models.CreateReportRequest) (*models.Report, error) {
	now := time.Now()
	report := &models.Report{
		ID:                     uuid.New().String(),
		OwnerID:                ownerID,
		ReportType:             req.ReportType,
		Status:                 models.ReportStatusPending,
		Progress:               0,
		CurrentStage:           "CREATED",
		EstimatedTimeRemaining: 180,
		Input: models.InputFile{
			FileRef:  req.FileRef,
			FileName: req.FileName,
		},
		Metadata: models.ReportMetadata{
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	if err := s.store.InsertReport(report); err != nil {
		return nil, err
	}
	log.Printf("Report %s created for user %s (type %s)", report.ID, ownerID, req.ReportType)

	taskID, err := s.analysis.Submit(ctx, report.ID, req.FileRef, req.ReportType)
	if err != nil {
		// The failure write must land even though submission failed, otherwise
		// the record is stuck pending forever.
		if markErr := s.store.MarkFailed(report.ID, fmt.Sprintf("analysis submission failed: %v", err)); markErr != nil {
			log.Printf("ERROR: failed to mark report %s failed after submit error: %v", report.ID, markErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrWorkerUnavailable, err)
	}

	matched, err := s.store.MarkProcessing(report.ID, taskID)
	if err != nil {
		return nil, err
	}
	if !matched {
		// The report was canceled between insert and submit acceptance. The
		// worker job is orphaned; its callback will find nothing and no-op.
		log.Printf("Report %s was removed before processing started", report.ID)
		return nil, ErrReportNotFound
	}

	report.Status = models.ReportStatusProcessing
	report.Algorithm.TaskID = taskID
	report.Algorithm.RequestTime = &now
	return report, nil
}

// GetReport returns a report after verifying the caller may see it
func (s *ReportService) GetReport(ctx context.Context, reportID, callerID string, admin bool) (*models.Report, error) {
	return s.getOwned(reportID, callerID, admin)
}

// CancelReport terminates an in-flight report and removes it together with its
// stored files. Only pending and processing reports can be canceled.
func (s *ReportService) CancelReport(ctx context.Context, reportID, callerID string, admin bool) error {
	report, err := s.getOwned(reportID, callerID, admin)
	if err != nil {
		return err
	}

	if !report.Status.CanCancel() {
		return fmt.Errorf("%w: cannot cancel report in status %q", ErrInvalidStateTransition, report.Status)
	}

	log.Printf("User %s canceling report %s (status %s)", callerID, reportID, report.Status)
	return s.cleanupAndRemove(ctx, report, models.CleanupReasonUserCancel)
}

// DeleteReport removes a report of any status together with its stored files.
// Deliberately the most permissive operation: a user can always get rid of a
// report no matter what state processing left it in.
func (s *ReportService) DeleteReport(ctx context.Context, reportID, callerID string, admin bool) error {
	report, err := s.getOwned(reportID, callerID, admin)
	if err != nil {
		return err
	}

	log.Printf("User %s deleting report %s (status %s)", callerID, reportID, report.Status)
	return s.cleanupAndRemove(ctx, report, models.CleanupReasonUserDelete)
}

// RetryReport re-submits a failed report to the worker with its original
// input. The reset write is conditional on the report still being failed; if
// re-submission fails the report is put back to failed with the error message,
// never left processing.
func (s *ReportService) RetryReport(ctx context.Context, reportID, callerID string, admin bool) error {
	report, err := s.getOwned(reportID, callerID, admin)
	if err != nil {
		return err
	}

	if !report.Status.CanRetry() {
		return fmt.Errorf("%w: only failed reports can be retried, current status %q", ErrInvalidStateTransition, report.Status)
	}

	matched, err := s.store.ResetForRetry(reportID)
	if err != nil {
		return err
	}
	if !matched {
		// Status moved between our read and the guarded write
		return fmt.Errorf("%w: report %s is no longer failed", ErrInvalidStateTransition, reportID)
	}

	inputRef := report.Input.FileRef
	if inputRef == "" {
		inputRef = report.Input.CloudPath
	}

	taskID, err := s.analysis.Submit(ctx, reportID, inputRef, report.ReportType)
	if err != nil {
		// The status write must execute regardless of the submission outcome
		if markErr := s.store.MarkFailed(reportID, fmt.Sprintf("retry submission failed: %v", err)); markErr != nil {
			log.Printf("ERROR: failed to mark report %s failed after retry submit error: %v", reportID, markErr)
		}
		return fmt.Errorf("%w: %v", ErrWorkerUnavailable, err)
	}

	if err := s.store.SetTaskID(reportID, taskID); err != nil {
		log.Printf("WARNING: failed to record task id for retried report %s: %v", reportID, err)
	}

	log.Printf("Report %s retry submitted (task %s)", reportID, taskID)
	return nil
}

// HandleCallback processes the worker's completion notification. A callback
// for a report that no longer exists is a no-op: the report was canceled or
// deleted while the worker ran, and nothing may be resurrected.
func (s *ReportService) HandleCallback(ctx context.Context, cb models.AnalysisCallback) error {
	report, err := s.store.GetReport(cb.ReportID)
	if err != nil {
		return err
	}
	if report == nil {
		log.Printf("Orphan analysis callback for report %s (task %s), ignoring", cb.ReportID, cb.TaskID)
		return nil
	}

	if !cb.Success {
		msg := cb.ErrorMessage
		if msg == "" {
			msg = "analysis failed"
		}
		log.Printf("Analysis failed for report %s: %s", cb.ReportID, msg)
		return s.failureCleanup(ctx, report, msg)
	}

	files, err := s.buildReportFiles(ctx, cb)
	if err != nil {
		// Artifact generation failures take the same cleanup path as a failed
		// analysis, the record must not stay processing.
		log.Printf("ERROR: failed to generate report files for %s: %v", cb.ReportID, err)
		return s.failureCleanup(ctx, report, fmt.Sprintf("report generation failed: %v", err))
	}

	matched, err := s.store.CompleteReport(cb.ReportID, files, time.Now(), cb.ProcessingTime)
	if err != nil {
		s.discardArtifacts(ctx, files)
		return err
	}
	if !matched {
		// Lost the race against a concurrent cancel/delete. The record stays
		// gone; drop the artifacts we just uploaded so no blob is orphaned.
		log.Printf("Report %s was removed before callback completion, discarding artifacts", cb.ReportID)
		s.discardArtifacts(ctx, files)
		return nil
	}

	log.Printf("Report %s completed (processing time %.1fs)", cb.ReportID, cb.ProcessingTime)
	return nil
}

// RefreshStatus polls the worker for task progress and updates the advisory
// display fields. Terminal statuses are never touched by a poll.
func (s *ReportService) RefreshStatus(ctx context.Context, reportID, callerID string, admin bool) (*models.Report, error) {
	report, err := s.getOwned(reportID, callerID, admin)
	if err != nil {
		return nil, err
	}

	if report.Status != models.ReportStatusProcessing || report.Algorithm.TaskID == "" {
		return report, nil
	}

	status, err := s.analysis.TaskStatus(ctx, report.Algorithm.TaskID)
	if err != nil {
		// Poll failures are non-fatal, the stored snapshot is still valid
		log.Printf("WARNING: task status poll failed for report %s: %v", reportID, err)
		return report, nil
	}

	stage := "AI_PROCESSING"
	progress := 60
	if status.Status == "processing" {
		stage = "AI_ANALYZING"
		progress = 70
	}
	if status.Progress > 0 {
		progress = status.Progress
	}

	if err := s.store.UpdateAdvisoryProgress(reportID, progress, stage, status.EstimatedTimeRemaining); err != nil {
		log.Printf("WARNING: failed to update progress for report %s: %v", reportID, err)
		return report, nil
	}

	report.Progress = models.ClampProgress(progress)
	report.CurrentStage = stage
	report.EstimatedTimeRemaining = status.EstimatedTimeRemaining
	return report, nil
}

// getOwned loads a report and verifies the caller owns it (or is an admin)
func (s *ReportService) getOwned(reportID, callerID string, admin bool) (*models.Report, error) {
	report, err := s.store.GetReport(reportID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, reportID)
	}
	if !admin && report.OwnerID != callerID {
		log.Printf("Ownership check failed for report %s: owner=%s caller=%s", reportID, report.OwnerID, callerID)
		return nil, ErrNotOwner
	}
	return report, nil
}

// cleanupAndRemove reclaims everything a report holds: blobs first, document
// last, so a crash mid-sequence leaves a recoverable dangling blob rather than
// an unreachable one. Blob failures are logged and never block the document
// removal. A document that is already gone counts as success.
func (s *ReportService) cleanupAndRemove(ctx context.Context, report *models.Report, reason string) error {
	refs := report.AllFileRefs()

	for _, f := range s.files.DeleteFiles(ctx, refs) {
		log.Printf("WARNING: failed to delete file %s for report %s: %v", f.Ref, report.ID, f.Err)
	}

	deleted, err := s.store.DeleteReport(report.ID)
	if err != nil {
		return err
	}
	if !deleted {
		// A concurrent operation removed it first; refs were collected from
		// the same snapshot either way
		log.Printf("Report %s was already removed", report.ID)
	}

	entry := models.CleanupLogEntry{
		ReportID:      report.ID,
		FileRefs:      refs,
		CleanupTime:   time.Now(),
		CleanupReason: reason,
	}
	if err := s.store.InsertCleanupLog(entry); err != nil {
		// Audit trail is best-effort
		log.Printf("WARNING: failed to write cleanup log for report %s: %v", report.ID, err)
	}

	log.Printf("Report %s removed (%d files, reason: %s)", report.ID, len(refs), reason)
	return nil
}

// failureCleanup removes a report whose callback reported or caused a failure.
// The record is deleted rather than kept failed: callback failures have no
// synchronous caller to surface an error to, and the audit log keeps the trace.
func (s *ReportService) failureCleanup(ctx context.Context, report *models.Report, errorMessage string) error {
	reason := fmt.Sprintf("%s: %s", models.CleanupReasonCallbackFailure, errorMessage)
	return s.cleanupAndRemove(ctx, report, reason)
}

// buildReportFiles validates the analysis result and uploads the output
// artifacts, returning the blob references keyed by format
func (s *ReportService) buildReportFiles(ctx context.Context, cb models.AnalysisCallback) (map[string]models.ReportFile, error) {
	payload, err := json.MarshalIndent(cb.AnalysisResult, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis result: %w", err)
	}

	if s.schema != nil {
		if err := validation.ValidateAnalysisResult(payload, s.schema); err != nil {
			return nil, fmt.Errorf("analysis result rejected: %w", err)
		}
	}

	files := make(map[string]models.ReportFile)
	ts := time.Now().UnixMilli()

	jsonName := fmt.Sprintf("analysis_%s_%d.json", cb.ReportID, ts)
	jsonRef, err := s.files.Upload(ctx, "reports/analysis/"+jsonName, payload, "application/json")
	if err != nil {
		return nil, fmt.Errorf("failed to upload analysis result: %w", err)
	}
	files["json"] = models.ReportFile{
		FileRef:     jsonRef,
		FileName:    jsonName,
		Description: "analysis result (JSON)",
	}

	if cb.HTMLReport != "" {
		htmlName := fmt.Sprintf("report_%s_%d.html", cb.ReportID, ts)
		htmlRef, err := s.files.Upload(ctx, "reports/html/"+htmlName, []byte(cb.HTMLReport), "text/html")
		if err != nil {
			// Drop the artifact uploaded so far, it is not referenced anywhere yet
			s.discardArtifacts(ctx, files)
			return nil, fmt.Errorf("failed to upload HTML report: %w", err)
		}
		files["html"] = models.ReportFile{
			FileRef:     htmlRef,
			FileName:    htmlName,
			Description: "formatted report (HTML)",
		}
	}

	return files, nil
}

// discardArtifacts deletes artifacts that never made it onto a report document
func (s *ReportService) discardArtifacts(ctx context.Context, files map[string]models.ReportFile) {
	refs := make([]string, 0, len(files))
	for _, f := range files {
		refs = append(refs, f.FileRef)
	}
	for _, f := range s.files.DeleteFiles(ctx, refs) {
		log.Printf("WARNING: failed to discard artifact %s: %v", f.Ref, f.Err)
	}
}
