package runs

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"interview-agent/internal/pipeline"
	"interview-agent/internal/shared/server/middleware"
)

func setupRouter(t *testing.T, p Pipeline) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, _ := newTestService(t, p)
	r := gin.New()
	r.Use(middleware.RequestID())
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r, svc
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestStartRunAndFetchReport(t *testing.T) {
	r, svc := setupRouter(t, &fakePipeline{state: pipeline.State{FinalReport: "# Ready"}})

	resp := doJSON(r, http.MethodPost, "/api/v1/runs", map[string]any{
		"resumeText": "Go developer",
		"targetRole": "Backend Engineer",
		"mode":       "quick",
		"profile":    map[string]any{"experience_level": "senior"},
	})
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	var started struct {
		RunID  string `json:"runId"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.RunID == "" || started.Status != StatusQueued {
		t.Fatalf("unexpected start body: %s", resp.Body.String())
	}
	if loc := resp.Header().Get("Location"); loc != "/api/v1/runs/"+started.RunID {
		t.Fatalf("unexpected Location header %q", loc)
	}
	svc.Wait()

	resp = doJSON(r, http.MethodGet, "/api/v1/runs/"+started.RunID, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get run: %d", resp.Code)
	}
	var view RunView
	if err := json.Unmarshal(resp.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Status != StatusCompleted || !view.HasReport || view.Mode != "quick" {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.Profile.ExperienceLevel != "senior" || view.Profile.LearningStyle != "practical" {
		t.Fatalf("profile defaults not applied: %+v", view.Profile)
	}

	resp = doJSON(r, http.MethodGet, "/api/v1/runs/"+started.RunID+"/report", nil)
	if resp.Code != http.StatusOK || resp.Body.String() != "# Ready" {
		t.Fatalf("report: %d %q", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); ct != reportContentType {
		t.Fatalf("unexpected content type %q", ct)
	}

	resp = doJSON(r, http.MethodGet, "/api/v1/runs?limit=5", nil)
	var list struct {
		Items []RunView `json:"items"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil || len(list.Items) != 1 {
		t.Fatalf("list: %v %s", err, resp.Body.String())
	}
}

func TestStartRunValidation(t *testing.T) {
	r, _ := setupRouter(t, &fakePipeline{})

	tests := []struct {
		name string
		body map[string]any
		code int
	}{
		{
			name: "missing resume",
			body: map[string]any{"targetRole": "SRE"},
			code: http.StatusBadRequest,
		},
		{
			name: "unknown mode",
			body: map[string]any{"resumeText": "x", "targetRole": "SRE", "mode": "deep"},
			code: http.StatusBadRequest,
		},
		{
			name: "invalid profile",
			body: map[string]any{"resumeText": "x", "targetRole": "SRE", "profile": map[string]any{"learning_style": "osmosis"}},
			code: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(r, http.MethodPost, "/api/v1/runs", tt.body)
			if resp.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestGetRunErrors(t *testing.T) {
	r, svc := setupRouter(t, &fakePipeline{err: errors.New("search down")})

	if resp := doJSON(r, http.MethodGet, "/api/v1/runs/nope", nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}

	resp := doJSON(r, http.MethodPost, "/api/v1/runs", map[string]any{"resumeText": "x", "targetRole": "SRE"})
	var started struct {
		RunID string `json:"runId"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &started)
	svc.Wait()

	resp = doJSON(r, http.MethodGet, "/api/v1/runs/"+started.RunID+"/report", nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 for failed run, got %d", resp.Code)
	}
}

func TestStartRunMultipartResume(t *testing.T) {
	r, svc := setupRouter(t, &fakePipeline{state: pipeline.State{FinalReport: "ok"}})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("targetRole", "Data Engineer")
	_ = mw.WriteField("preparationWeeks", "2")
	fw, _ := mw.CreateFormFile("resume", "resume.txt")
	_, _ = fw.Write([]byte("  Spark, Kafka, Go  "))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	svc.Wait()

	var started struct {
		RunID string `json:"runId"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &started)
	run, err := svc.Get(req.Context(), started.RunID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if run.ResumeChars != len("Spark, Kafka, Go") {
		t.Fatalf("expected trimmed resume text, got %d chars", run.ResumeChars)
	}
	if run.Profile.PreparationWeeks != 2 || run.ResumeKey == "" {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestStartRunUnsupportedUpload(t *testing.T) {
	r, _ := setupRouter(t, &fakePipeline{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("targetRole", "Designer")
	fw, _ := mw.CreateFormFile("resume", "photo.png")
	_, _ = fw.Write([]byte{0x89, 'P', 'N', 'G'})
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d: %s", resp.Code, resp.Body.String())
	}
}
