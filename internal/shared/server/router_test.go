package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"interview-agent/internal/gate"
	"interview-agent/internal/progress"
	"interview-agent/internal/runs"
	"interview-agent/internal/shared/config"
	"interview-agent/internal/shared/server/middleware"
	"interview-agent/internal/shared/storage/object/local"
	"interview-agent/internal/shared/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func testRouter(t *testing.T, quota *middleware.DailyQuota) http.Handler {
	t.Helper()
	svc := runs.NewService(runs.NewMemoryRepo(), local.New(t.TempDir()), nil)
	return NewRouter(RouterDeps{
		Config:          config.Config{Env: "test", CORSAllowOrigin: []string{"http://localhost:5173"}},
		RunsHandler:     runs.NewHandler(svc),
		ProgressHandler: progress.NewHandler(progress.New(), nil),
		GateStats: func() gate.Stats {
			return gate.Stats{TotalCalls: 4, SuccessfulCalls: 3, Limit: 3, BaseLimit: 3}
		},
		Quota: quota,
	})
}

func TestHealthAndGateStats(t *testing.T) {
	r := testRouter(t, nil)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("health: %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/gate/stats", nil))
	var body struct {
		Stats       gate.Stats `json:"stats"`
		SuccessRate float64    `json:"successRate"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Stats.TotalCalls != 4 || body.SuccessRate != 0.75 {
		t.Fatalf("unexpected gate stats: %s", resp.Body.String())
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(resp.Body.String(), "pipeline_runs_started_total") {
		t.Fatalf("metrics missing run counters: %s", resp.Body.String())
	}
}

func TestRunsQuotaApplied(t *testing.T) {
	now := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	r := testRouter(t, middleware.NewDailyQuota(1, 0, func() time.Time { return now }))

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp.Code
	}
	if code := post(); code != http.StatusBadRequest {
		t.Fatalf("first post expected validation error, got %d", code)
	}
	if code := post(); code != http.StatusTooManyRequests {
		t.Fatalf("second post expected quota error, got %d", code)
	}

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/quota", nil))
	var stats middleware.QuotaStats
	if err := json.Unmarshal(resp.Body.Bytes(), &stats); err != nil || stats.TotalRequests != 1 {
		t.Fatalf("unexpected quota stats: %v %s", err, resp.Body.String())
	}
}

func TestAddr(t *testing.T) {
	for in, want := range map[string]string{"": ":8080", ":9000": ":9000", "7000": ":7000"} {
		if got := Addr(in); got != want {
			t.Fatalf("Addr(%q) = %q, want %q", in, got, want)
		}
	}
}
