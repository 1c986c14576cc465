package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"report-coordinator/internal/config"
	"report-coordinator/internal/models"

	"github.com/robfig/cron/v3"
)

// cleanupBatchLimit caps how many reports a single sweep processes so a large
// backlog drains over several runs instead of one unbounded pass
const cleanupBatchLimit = 100

// CleanupService sweeps stale failed reports, reclaiming their blobs and
// documents. It runs on a cron schedule and is also invokable on demand
// through the admin endpoint.
type CleanupService struct {
	store ReportStore
	files FileStore
	cfg   config.CleanupConfig
	cron  *cron.Cron
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(store ReportStore, files FileStore, cfg config.CleanupConfig) *CleanupService {
	return &CleanupService{
		store: store,
		files: files,
		cfg:   cfg,
		cron:  cron.New(),
	}
}

// Start registers the scheduled sweep and starts the scheduler. Disabled or
// misconfigured schedules log and skip; the on-demand endpoint still works.
func (s *CleanupService) Start() {
	if !s.cfg.Enabled {
		log.Println("Scheduled cleanup is disabled")
		return
	}

	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		result := s.Sweep(context.Background(), s.cfg.DaysOld, false)
		log.Printf("Scheduled cleanup finished: %s", result.Message)
	})
	if err != nil {
		log.Printf("ERROR: invalid cleanup schedule %q: %v", s.cfg.Schedule, err)
		return
	}

	s.cron.Start()
	log.Printf("Scheduled cleanup started (schedule %q, daysOld %d)", s.cfg.Schedule, s.cfg.DaysOld)
}

// Stop halts the scheduler. A sweep already running is allowed to finish.
func (s *CleanupService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep removes failed reports older than daysOld, up to the batch limit.
// With dryRun set it only reports what would be removed. Errors on individual
// reports are accumulated and do not stop the sweep.
func (s *CleanupService) Sweep(ctx context.Context, daysOld int, dryRun bool) models.CleanupResult {
	if daysOld <= 0 {
		daysOld = s.cfg.DaysOld
	}
	cutoff := time.Now().AddDate(0, 0, -daysOld)
	log.Printf("Cleanup sweep starting (cutoff %s, dryRun %v)", cutoff.Format(time.RFC3339), dryRun)

	candidates, err := s.store.FindFailedReportsBefore(cutoff, cleanupBatchLimit)
	if err != nil {
		return models.CleanupResult{
			Success: false,
			Message: fmt.Sprintf("failed to query stale reports: %v", err),
			DryRun:  dryRun,
		}
	}

	result := models.CleanupResult{
		Success:    true,
		TotalFound: len(candidates),
		DryRun:     dryRun,
	}

	if dryRun {
		result.Message = fmt.Sprintf("dry run: %d failed reports older than %d days would be removed", len(candidates), daysOld)
		return result
	}

	for i := range candidates {
		cleaned, err := s.cleanOne(ctx, candidates[i].ID)
		if err != nil {
			log.Printf("WARNING: cleanup of report %s failed: %v", candidates[i].ID, err)
			result.Errors = append(result.Errors, models.CleanupError{
				ReportID: candidates[i].ID,
				Error:    err.Error(),
			})
			continue
		}
		if cleaned {
			result.CleanedCount++
		}
	}

	if len(result.Errors) > 0 {
		result.Success = false
	}
	result.Message = fmt.Sprintf("cleaned %d of %d failed reports older than %d days (%d errors)",
		result.CleanedCount, result.TotalFound, daysOld, len(result.Errors))
	log.Printf("Cleanup sweep finished: %s", result.Message)
	return result
}

// cleanOne reclaims a single stale report. The report is re-read before
// cleanup: the candidate list is a snapshot, and a report deleted or retried
// since the query is skipped without counting as cleaned or failed.
func (s *CleanupService) cleanOne(ctx context.Context, reportID string) (bool, error) {
	report, err := s.store.GetReport(reportID)
	if err != nil {
		return false, err
	}
	if report == nil {
		log.Printf("Report %s already removed, skipping", reportID)
		return false, nil
	}
	if report.Status != models.ReportStatusFailed {
		log.Printf("Report %s is %s now, skipping cleanup", reportID, report.Status)
		return false, nil
	}

	refs := report.AllFileRefs()
	for _, f := range s.files.DeleteFiles(ctx, refs) {
		log.Printf("WARNING: failed to delete file %s for report %s: %v", f.Ref, reportID, f.Err)
	}

	deleted, err := s.store.DeleteReport(reportID)
	if err != nil {
		return false, err
	}
	if !deleted {
		log.Printf("Report %s removed by another operation during cleanup", reportID)
	}

	entry := models.CleanupLogEntry{
		ReportID:      reportID,
		FileRefs:      refs,
		CleanupTime:   time.Now(),
		CleanupReason: models.CleanupReasonScheduledSweep,
	}
	if err := s.store.InsertCleanupLog(entry); err != nil {
		log.Printf("WARNING: failed to write cleanup log for report %s: %v", reportID, err)
	}

	return true, nil
}
