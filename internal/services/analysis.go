package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"report-coordinator/internal/config"
	"report-coordinator/internal/models"
)

// AnalysisService is the HTTP client for the external document analysis worker.
// Jobs are fire-and-forget: Submit returns once the worker accepted the job and
// the outcome arrives later on the callback endpoint.
type AnalysisService struct {
	baseURL     string
	callbackURL string
	httpClient  *http.Client
}

// NewAnalysisService creates a client for the analysis worker
func NewAnalysisService(cfg config.AnalysisConfig) *AnalysisService {
	return &AnalysisService{
		baseURL:     cfg.URL,
		callbackURL: cfg.CallbackURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type submitRequest struct {
	ReportID    string `json:"reportId"`
	FileRef     string `json:"fileRef"`
	ReportType  string `json:"reportType"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

type submitResponse struct {
	TaskID string `json:"taskId"`
}

// Submit hands a job to the worker and returns the assigned task id
func (s *AnalysisService) Submit(ctx context.Context, reportID, fileRef, reportType string) (string, error) {
	payload, err := json.Marshal(submitRequest{
		ReportID:    reportID,
		FileRef:     fileRef,
		ReportType:  reportType,
		CallbackURL: s.callbackURL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("analysis service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("analysis service returned %d: %s", resp.StatusCode, string(body))
	}

	var result submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode submit response: %w", err)
	}

	return result.TaskID, nil
}

// TaskStatus polls the worker for the current state of a task
func (s *AnalysisService) TaskStatus(ctx context.Context, taskID string) (*models.WorkerTaskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/task/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analysis service returned %d for task %s", resp.StatusCode, taskID)
	}

	var status models.WorkerTaskStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode task status: %w", err)
	}

	return &status, nil
}
