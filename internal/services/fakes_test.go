package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"report-coordinator/internal/models"
)

// fakeStore is an in-memory ReportStore with the same compare-and-set
// semantics as the MongoDB client
type fakeStore struct {
	mu          sync.Mutex
	reports     map[string]*models.Report
	cleanupLogs []models.CleanupLogEntry

	failFind error // forced error for FindFailedReportsBefore
	failGet  error // forced error for GetReport
}

func newFakeStore() *fakeStore {
	return &fakeStore{reports: make(map[string]*models.Report)}
}

func (f *fakeStore) put(r *models.Report) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.reports[r.ID] = &cp
}

func (f *fakeStore) GetReport(id string) (*models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return nil, f.failGet
	}
	r, ok := f.reports[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) InsertReport(r *models.Report) error {
	f.put(r)
	return nil
}

func (f *fakeStore) DeleteReport(id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.reports[id]
	delete(f.reports, id)
	return ok, nil
}

func (f *fakeStore) updateIfStatus(id string, expected []models.ReportStatus, fn func(*models.Report)) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, s := range expected {
		if r.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	fn(r)
	r.Metadata.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeStore) MarkProcessing(id, taskID string) (bool, error) {
	return f.updateIfStatus(id, []models.ReportStatus{models.ReportStatusPending}, func(r *models.Report) {
		now := time.Now()
		r.Status = models.ReportStatusProcessing
		r.Progress = 30
		r.CurrentStage = "AI_ANALYSIS"
		r.Algorithm.TaskID = taskID
		r.Algorithm.RequestTime = &now
	})
}

func (f *fakeStore) ResetForRetry(id string) (bool, error) {
	return f.updateIfStatus(id, []models.ReportStatus{models.ReportStatusFailed}, func(r *models.Report) {
		now := time.Now()
		r.Status = models.ReportStatusProcessing
		r.Progress = 10
		r.CurrentStage = "RETRY_PROCESSING"
		r.EstimatedTimeRemaining = 180
		r.Algorithm.RequestTime = &now
		r.Algorithm.ResponseTime = nil
		r.Algorithm.ErrorMessage = ""
		r.Algorithm.CallbackReceived = false
		r.Algorithm.RetryCount++
	})
}

func (f *fakeStore) MarkFailed(id, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return nil
	}
	now := time.Now()
	r.Status = models.ReportStatusFailed
	r.Progress = 0
	r.CurrentStage = "FAILED"
	r.Algorithm.ResponseTime = &now
	r.Algorithm.ErrorMessage = errorMessage
	return nil
}

func (f *fakeStore) SetTaskID(id, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.reports[id]; ok {
		r.Algorithm.TaskID = taskID
	}
	return nil
}

func (f *fakeStore) CompleteReport(id string, files map[string]models.ReportFile, responseTime time.Time, processingTime float64) (bool, error) {
	return f.updateIfStatus(id, []models.ReportStatus{models.ReportStatusProcessing}, func(r *models.Report) {
		now := time.Now()
		r.Status = models.ReportStatusCompleted
		r.Progress = 100
		r.CurrentStage = "COMPLETED"
		r.EstimatedTimeRemaining = 0
		r.Output.ReportFiles = files
		r.Algorithm.ResponseTime = &responseTime
		r.Algorithm.ProcessingTime = processingTime
		r.Algorithm.CallbackReceived = true
		r.Metadata.CompletedAt = &now
	})
}

func (f *fakeStore) UpdateAdvisoryProgress(id string, progress int, stage string, estimatedTimeRemaining int) error {
	_, err := f.updateIfStatus(id, []models.ReportStatus{
		models.ReportStatusPending,
		models.ReportStatusProcessing,
	}, func(r *models.Report) {
		r.Progress = models.ClampProgress(progress)
		r.CurrentStage = stage
		r.EstimatedTimeRemaining = estimatedTimeRemaining
	})
	return err
}

func (f *fakeStore) FindFailedReportsBefore(cutoff time.Time, limit int64) ([]models.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFind != nil {
		return nil, f.failFind
	}
	var out []models.Report
	for _, r := range f.reports {
		if r.Status == models.ReportStatusFailed && r.Metadata.CreatedAt.Before(cutoff) {
			out = append(out, *r)
			if int64(len(out)) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) InsertCleanupLog(entry models.CleanupLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupLogs = append(f.cleanupLogs, entry)
	return nil
}

// fakeFiles is an in-memory FileStore tracking which refs exist
type fakeFiles struct {
	mu       sync.Mutex
	objects  map[string][]byte
	deleted  []string
	failRefs map[string]error // refs whose delete fails
	failUp   error            // forced upload error, keyed by key prefix
	failUpOn string
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{
		objects:  make(map[string][]byte),
		failRefs: make(map[string]error),
	}
}

func (f *fakeFiles) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUp != nil && (f.failUpOn == "" || hasPrefix(key, f.failUpOn)) {
		return "", f.failUp
	}
	f.objects[key] = body
	return key, nil
}

func (f *fakeFiles) DeleteFiles(ctx context.Context, refs []string) []FileDeleteError {
	f.mu.Lock()
	defer f.mu.Unlock()
	var failures []FileDeleteError
	for _, ref := range refs {
		if err, bad := f.failRefs[ref]; bad {
			failures = append(failures, FileDeleteError{Ref: ref, Err: err})
			continue
		}
		delete(f.objects, ref)
		f.deleted = append(f.deleted, ref)
	}
	return failures
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// fakeAnalysis is a scripted AnalysisClient
type fakeAnalysis struct {
	mu         sync.Mutex
	submits    []string // fileRefs submitted
	taskID     string
	submitErr  error
	taskStatus *models.WorkerTaskStatus
	statusErr  error
}

func (f *fakeAnalysis) Submit(ctx context.Context, reportID, fileRef, reportType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submits = append(f.submits, fileRef)
	if f.taskID == "" {
		return "task-1", nil
	}
	return f.taskID, nil
}

func (f *fakeAnalysis) TaskStatus(ctx context.Context, taskID string) (*models.WorkerTaskStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if f.taskStatus != nil {
		return f.taskStatus, nil
	}
	return nil, errors.New("no status scripted")
}
