package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"report-coordinator/internal/config"
	"report-coordinator/internal/models"
	"report-coordinator/internal/services"

	"github.com/gin-gonic/gin"
)

// memStore is a minimal in-memory services.ReportStore for handler tests
type memStore struct {
	reports map[string]*models.Report
	logs    []models.CleanupLogEntry
}

func newMemStore() *memStore {
	return &memStore{reports: make(map[string]*models.Report)}
}

func (m *memStore) GetReport(id string) (*models.Report, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) InsertReport(r *models.Report) error {
	cp := *r
	m.reports[r.ID] = &cp
	return nil
}

func (m *memStore) DeleteReport(id string) (bool, error) {
	_, ok := m.reports[id]
	delete(m.reports, id)
	return ok, nil
}

func (m *memStore) MarkProcessing(id, taskID string) (bool, error) {
	r, ok := m.reports[id]
	if !ok || r.Status != models.ReportStatusPending {
		return false, nil
	}
	r.Status = models.ReportStatusProcessing
	r.Algorithm.TaskID = taskID
	return true, nil
}

func (m *memStore) ResetForRetry(id string) (bool, error) {
	r, ok := m.reports[id]
	if !ok || r.Status != models.ReportStatusFailed {
		return false, nil
	}
	r.Status = models.ReportStatusProcessing
	r.Algorithm.RetryCount++
	return true, nil
}

func (m *memStore) MarkFailed(id, errorMessage string) error {
	if r, ok := m.reports[id]; ok {
		r.Status = models.ReportStatusFailed
		r.Algorithm.ErrorMessage = errorMessage
	}
	return nil
}

func (m *memStore) SetTaskID(id, taskID string) error {
	if r, ok := m.reports[id]; ok {
		r.Algorithm.TaskID = taskID
	}
	return nil
}

func (m *memStore) CompleteReport(id string, files map[string]models.ReportFile, responseTime time.Time, processingTime float64) (bool, error) {
	r, ok := m.reports[id]
	if !ok || r.Status != models.ReportStatusProcessing {
		return false, nil
	}
	r.Status = models.ReportStatusCompleted
	r.Output.ReportFiles = files
	return true, nil
}

func (m *memStore) UpdateAdvisoryProgress(id string, progress int, stage string, etr int) error {
	if r, ok := m.reports[id]; ok && (r.Status == models.ReportStatusPending || r.Status == models.ReportStatusProcessing) {
		r.Progress = models.ClampProgress(progress)
		r.CurrentStage = stage
		r.EstimatedTimeRemaining = etr
	}
	return nil
}

func (m *memStore) FindFailedReportsBefore(cutoff time.Time, limit int64) ([]models.Report, error) {
	var out []models.Report
	for _, r := range m.reports {
		if r.Status == models.ReportStatusFailed && r.Metadata.CreatedAt.Before(cutoff) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) InsertCleanupLog(entry models.CleanupLogEntry) error {
	m.logs = append(m.logs, entry)
	return nil
}

// memFiles discards uploads and accepts every delete
type memFiles struct{}

func (memFiles) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	return key, nil
}

func (memFiles) DeleteFiles(ctx context.Context, refs []string) []services.FileDeleteError {
	return nil
}

// memAnalysis accepts every submission
type memAnalysis struct{}

func (memAnalysis) Submit(ctx context.Context, reportID, fileRef, reportType string) (string, error) {
	return "task-1", nil
}

func (memAnalysis) TaskStatus(ctx context.Context, taskID string) (*models.WorkerTaskStatus, error) {
	return &models.WorkerTaskStatus{TaskID: taskID, Status: "processing", Progress: 50}, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *memStore, *services.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemStore()
	jwtService := services.NewJWTService("test-secret")
	reportService := services.NewReportService(store, memFiles{}, memAnalysis{}, nil)
	cleanupService := services.NewCleanupService(store, memFiles{}, config.CleanupConfig{DaysOld: 7})

	handlers := NewHandlers(reportService, cleanupService, jwtService)
	return SetupRoutes(handlers, jwtService), store, jwtService
}

func doRequest(router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func mustToken(t *testing.T, jwtService *services.JWTService, userID string, admin bool) string {
	t.Helper()
	token, err := jwtService.GenerateToken(userID, admin)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

func seedStoredReport(store *memStore, id, owner string, status models.ReportStatus) {
	store.InsertReport(&models.Report{
		ID:       id,
		OwnerID:  owner,
		Status:   status,
		Input:    models.InputFile{FileRef: "uploads/" + id + ".pdf"},
		Metadata: models.ReportMetadata{CreatedAt: time.Now()},
	})
}

func TestReportRoutesRequireAuth(t *testing.T) {
	router, _, _ := newTestRouter(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/reports"},
		{http.MethodGet, "/api/reports/r1"},
		{http.MethodPost, "/api/reports/r1/cancel"},
		{http.MethodDelete, "/api/reports/r1"},
		{http.MethodPost, "/api/admin/cleanup"},
	} {
		w := doRequest(router, tc.method, tc.path, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token = %d, want 401", tc.method, tc.path, w.Code)
		}
	}
}

func TestCreateReportEndpoint(t *testing.T) {
	router, store, jwtService := newTestRouter(t)
	token := mustToken(t, jwtService, "user-1", false)

	w := doRequest(router, http.MethodPost, "/api/reports", token, models.CreateReportRequest{
		ReportType: "document_analysis",
		FileRef:    "uploads/doc.pdf",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body %s", w.Code, w.Body.String())
	}

	var report models.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if report.OwnerID != "user-1" || report.Status != models.ReportStatusProcessing {
		t.Errorf("report = owner %s status %s", report.OwnerID, report.Status)
	}
	if _, ok := store.reports[report.ID]; !ok {
		t.Error("report not persisted")
	}
}

func TestCreateReportRejectsMissingFields(t *testing.T) {
	router, _, jwtService := newTestRouter(t)
	token := mustToken(t, jwtService, "user-1", false)

	w := doRequest(router, http.MethodPost, "/api/reports", token, map[string]string{"reportType": "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("create without fileRef = %d, want 400", w.Code)
	}
}

func TestGetReportStatusCodes(t *testing.T) {
	router, store, jwtService := newTestRouter(t)
	seedStoredReport(store, "r1", "user-1", models.ReportStatusCompleted)

	owner := mustToken(t, jwtService, "user-1", false)
	stranger := mustToken(t, jwtService, "user-2", false)
	admin := mustToken(t, jwtService, "admin", true)

	if w := doRequest(router, http.MethodGet, "/api/reports/r1", owner, nil); w.Code != http.StatusOK {
		t.Errorf("owner get = %d, want 200", w.Code)
	}
	if w := doRequest(router, http.MethodGet, "/api/reports/r1", stranger, nil); w.Code != http.StatusForbidden {
		t.Errorf("stranger get = %d, want 403", w.Code)
	}
	if w := doRequest(router, http.MethodGet, "/api/reports/r1", admin, nil); w.Code != http.StatusOK {
		t.Errorf("admin get = %d, want 200", w.Code)
	}
	if w := doRequest(router, http.MethodGet, "/api/reports/missing", owner, nil); w.Code != http.StatusNotFound {
		t.Errorf("missing get = %d, want 404", w.Code)
	}
}

func TestCancelConflictOnTerminal(t *testing.T) {
	router, store, jwtService := newTestRouter(t)
	seedStoredReport(store, "r1", "user-1", models.ReportStatusCompleted)
	token := mustToken(t, jwtService, "user-1", false)

	w := doRequest(router, http.MethodPost, "/api/reports/r1/cancel", token, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("cancel completed = %d, want 409", w.Code)
	}
}

func TestRetryConflictOnCompleted(t *testing.T) {
	router, store, jwtService := newTestRouter(t)
	seedStoredReport(store, "r1", "user-1", models.ReportStatusCompleted)
	token := mustToken(t, jwtService, "user-1", false)

	w := doRequest(router, http.MethodPost, "/api/reports/r1/retry", token, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("retry completed = %d, want 409", w.Code)
	}
}

func TestDeleteThenNotFound(t *testing.T) {
	router, store, jwtService := newTestRouter(t)
	seedStoredReport(store, "r1", "user-1", models.ReportStatusFailed)
	token := mustToken(t, jwtService, "user-1", false)

	if w := doRequest(router, http.MethodDelete, "/api/reports/r1", token, nil); w.Code != http.StatusOK {
		t.Fatalf("delete = %d, want 200", w.Code)
	}
	if w := doRequest(router, http.MethodDelete, "/api/reports/r1", token, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestCallbackEndpointIsOpenAndIdempotent(t *testing.T) {
	router, store, _ := newTestRouter(t)
	seedStoredReport(store, "r1", "user-1", models.ReportStatusProcessing)

	// No token: the callback endpoint is not behind user auth
	w := doRequest(router, http.MethodPost, "/api/callbacks/analysis", "", models.AnalysisCallback{
		ReportID:       "r1",
		Success:        true,
		AnalysisResult: map[string]interface{}{"summary": "done"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("callback = %d, body %s", w.Code, w.Body.String())
	}
	if store.reports["r1"].Status != models.ReportStatusCompleted {
		t.Errorf("status = %s, want completed", store.reports["r1"].Status)
	}

	// Orphan callback acknowledges without error
	w = doRequest(router, http.MethodPost, "/api/callbacks/analysis", "", models.AnalysisCallback{
		ReportID:       "gone",
		Success:        true,
		AnalysisResult: map[string]interface{}{"summary": "late"},
	})
	if w.Code != http.StatusOK {
		t.Errorf("orphan callback = %d, want 200", w.Code)
	}
}

func TestCleanupRequiresAdmin(t *testing.T) {
	router, _, jwtService := newTestRouter(t)
	user := mustToken(t, jwtService, "user-1", false)
	admin := mustToken(t, jwtService, "admin", true)

	if w := doRequest(router, http.MethodPost, "/api/admin/cleanup", user, models.CleanupRequest{DryRun: true}); w.Code != http.StatusForbidden {
		t.Errorf("non-admin cleanup = %d, want 403", w.Code)
	}
	w := doRequest(router, http.MethodPost, "/api/admin/cleanup", admin, models.CleanupRequest{DryRun: true})
	if w.Code != http.StatusOK {
		t.Fatalf("admin cleanup = %d, body %s", w.Code, w.Body.String())
	}

	var result models.CleanupResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if !result.DryRun {
		t.Error("dry run flag not echoed")
	}
}

func TestTokenEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/auth/token", "", models.TokenRequest{UserID: "user-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("token = %d, body %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["token"] == "" {
		t.Error("empty token issued")
	}

	// The issued token must be accepted by the protected routes
	if w := doRequest(router, http.MethodGet, "/api/reports/missing", resp["token"], nil); w.Code != http.StatusNotFound {
		t.Errorf("authenticated request = %d, want 404 (auth passed, report absent)", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("health = %d, want 200", w.Code)
	}
}
