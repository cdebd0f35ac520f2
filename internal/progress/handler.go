package progress

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"interview-agent/internal/shared/server/respond"
)

const defaultStreamInterval = 500 * time.Millisecond

// Handler exposes the tracker over HTTP and a websocket stream.
type Handler struct {
	Tracker  *Tracker
	Interval time.Duration
	upgrader websocket.Upgrader
}

// NewHandler constructs a Handler. allowOrigin decides which browser origins
// may open the stream; nil accepts all.
func NewHandler(tracker *Tracker, allowOrigin func(origin string) bool) *Handler {
	return &Handler{
		Tracker:  tracker,
		Interval: defaultStreamInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || allowOrigin == nil {
					return true
				}
				return allowOrigin(origin)
			},
		},
	}
}

// RegisterRoutes attaches progress routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/progress", h.getProgress)
	rg.POST("/progress/reset", h.resetProgress)
	rg.GET("/progress/stream", h.stream)
}

func (h *Handler) getProgress(c *gin.Context) {
	respond.OK(c, h.Tracker.Snapshot())
}

func (h *Handler) resetProgress(c *gin.Context) {
	h.Tracker.Reset()
	respond.OK(c, h.Tracker.Snapshot())
}

func (h *Handler) stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("progress stream upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := h.Interval
	if interval <= 0 {
		interval = defaultStreamInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last time.Time
	for {
		snap := h.Tracker.Snapshot()
		if !snap.UpdatedAt.Equal(last) || snap.Stage != StageComplete {
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
			last = snap.UpdatedAt
		}
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
