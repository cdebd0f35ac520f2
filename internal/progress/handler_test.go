package progress

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func setupProgressRouter(tr *Tracker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(tr, nil)
	h.Interval = 10 * time.Millisecond
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestGetProgress(t *testing.T) {
	tr := New()
	tr.SetStage(StageGapAnalysis)
	router := setupProgressRouter(tr)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/progress", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Stage != StageGapAnalysis || snap.Percent != 70 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.RemainingText == "" {
		t.Fatalf("expected remainingText")
	}
}

func TestResetProgress(t *testing.T) {
	tr := New()
	tr.SetStage(StageCritic)
	router := setupProgressRouter(tr)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/progress/reset", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := tr.Snapshot().Stage; got != StageInitializing {
		t.Fatalf("stage = %s after reset", got)
	}
}

func TestProgressStreamPushesSnapshots(t *testing.T) {
	tr := New()
	tr.SetStage(StagePlanning)
	srv := httptest.NewServer(setupProgressRouter(tr))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/progress/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var first Snapshot
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read: %v", err)
	}
	if first.Stage != StagePlanning {
		t.Fatalf("first stage = %s", first.Stage)
	}

	tr.SetStage(StageJobResearch)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var snap Snapshot
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatalf("read: %v", err)
		}
		if snap.Stage == StageJobResearch {
			return
		}
	}
}
