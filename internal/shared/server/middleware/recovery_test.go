package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"interview-agent/internal/shared/telemetry"
)

func TestRecoveryReturns500AndLogsRunID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	prev := telemetry.SetOutput(&buf)
	defer telemetry.SetOutput(prev)

	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/runs/:id", func(c *gin.Context) {
		c.Set(RunIDKey, c.Param("id"))
		panic("boom")
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/runs/run-9", nil))

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "internal_error") {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
	logged := buf.String()
	if !strings.Contains(logged, `"run_id":"run-9"`) || !strings.Contains(logged, `"error":"boom"`) {
		t.Fatalf("panic log missing fields: %s", logged)
	}
}
