package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	s, err := NewServer(":8080", t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func TestServer_CreateJob(t *testing.T) {
	tmpDir := t.TempDir()
	dataPath := filepath.Join(tmpDir, "points.csv")
	writeCirclePoints(t, dataPath, 1, 1, 2, 16)

	s := newTestServer(t)

	config := JobConfig{
		DataPath:      dataPath,
		Model:         "circle",
		MaxIterations: 10,
	}

	body, _ := json.Marshal(config)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleCreateJob(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", w.Code)
	}

	var job Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}

	// State should be pending or running (since worker starts immediately)
	if job.State != StatePending && job.State != StateRunning {
		t.Errorf("Expected pending or running state, got %s", job.State)
	}
}

func TestServer_CreateJob_Validation(t *testing.T) {
	s := newTestServer(t)

	cases := map[string]JobConfig{
		"missing data path":         {Model: "circle"},
		"polynomial without degree": {DataPath: "points.csv", Model: "poly"},
	}

	for name, config := range cases {
		t.Run(name, func(t *testing.T) {
			body, _ := json.Marshal(config)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
			w := httptest.NewRecorder()

			s.handleCreateJob(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}
}

func TestServer_ListJobs(t *testing.T) {
	s := newTestServer(t)

	s.jobManager.CreateJob(JobConfig{DataPath: "one.csv"})
	s.jobManager.CreateJob(JobConfig{DataPath: "two.csv"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()

	s.handleListJobs(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var jobs []*Job
	if err := json.NewDecoder(w.Body).Decode(&jobs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
}

func TestServer_GetJobStatus(t *testing.T) {
	s := newTestServer(t)

	job := s.jobManager.CreateJob(JobConfig{DataPath: "points.csv", Model: "circle"})

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/status", job.ID), nil)
	w := httptest.NewRecorder()

	s.handleGetJobStatus(w, req, job.ID)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["id"] != job.ID {
		t.Error("Response should contain job ID")
	}

	if response["state"] != string(StatePending) {
		t.Errorf("Expected pending state, got %v", response["state"])
	}
}

func TestServer_GetJobStatus_NotFound(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nonexistent/status", nil)
	w := httptest.NewRecorder()

	s.handleGetJobStatus(w, req, "nonexistent")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_GetJobResult(t *testing.T) {
	tmpDir := t.TempDir()
	dataPath := filepath.Join(tmpDir, "points.csv")
	writeCirclePoints(t, dataPath, 2, -1, 1.5, 16)

	s := newTestServer(t)

	job := s.jobManager.CreateJob(JobConfig{DataPath: dataPath, Model: "circle", MaxIterations: 50})

	// Run job synchronously so the result is present
	if err := runJob(context.Background(), s.jobManager, s.checkpointStore, s.dataDir, job.ID); err != nil {
		t.Fatalf("Job failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/result", job.ID), nil)
	w := httptest.NewRecorder()

	s.handleGetJobResult(w, req, job.ID)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Params     []float64 `json:"params"`
		ResidualSq float64   `json:"residualSq"`
		Iterations int       `json:"iterations"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(response.Params) != 3 {
		t.Errorf("Expected 3 params, got %d", len(response.Params))
	}
	if response.ResidualSq > 1e-10 {
		t.Errorf("Exact circle should fit with near-zero residual, got %g", response.ResidualSq)
	}
}

func TestServer_GetJobResult_NoResults(t *testing.T) {
	s := newTestServer(t)

	job := s.jobManager.CreateJob(JobConfig{DataPath: "points.csv"})

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/result", job.ID), nil)
	w := httptest.NewRecorder()

	s.handleGetJobResult(w, req, job.ID)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_GetJobTrace(t *testing.T) {
	tmpDir := t.TempDir()
	dataPath := filepath.Join(tmpDir, "points.csv")
	writeCirclePoints(t, dataPath, 0, 0, 3, 16)

	s := newTestServer(t)

	job := s.jobManager.CreateJob(JobConfig{DataPath: dataPath, Model: "circle", MaxIterations: 50})

	if err := runJob(context.Background(), s.jobManager, s.checkpointStore, s.dataDir, job.ID); err != nil {
		t.Fatalf("Job failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/trace", job.ID), nil)
	w := httptest.NewRecorder()

	s.handleGetJobTrace(w, req, job.ID)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var entries []map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(entries) == 0 {
		t.Error("Trace should have at least one entry")
	}
}

func TestServer_RouteDispatch(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/some-id/unknown", nil)
	w := httptest.NewRecorder()

	s.handleJobsWithID(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown subpath, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/jobs", nil)
	w = httptest.NewRecorder()

	s.handleJobs(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestServer_Index(t *testing.T) {
	s := newTestServer(t)

	s.jobManager.CreateJob(JobConfig{DataPath: "points.csv", Model: "circle"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	s.handleIndex(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Unexpected content type %q", ct)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("points.csv")) {
		t.Error("Index page should list the job's data path")
	}

	// Non-root paths are not served by the index handler
	req = httptest.NewRequest(http.MethodGet, "/missing", nil)
	w = httptest.NewRecorder()

	s.handleIndex(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}
