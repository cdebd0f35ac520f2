package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"interview-agent/internal/gate"
	"interview-agent/internal/progress"
	"interview-agent/internal/runs"
	"interview-agent/internal/shared/config"
	"interview-agent/internal/shared/metrics"
	"interview-agent/internal/shared/server/middleware"
	"interview-agent/internal/shared/server/respond"
)

const (
	rateGroupDefault = "DEFAULT"
	rateGroupPolling = "POLLING"
)

// RouterDeps groups the handlers mounted by NewRouter. Nil handlers are skipped.
type RouterDeps struct {
	Config          config.Config
	RunsHandler     *runs.Handler
	ProgressHandler *progress.Handler
	GateStats       func() gate.Stats
	Quota           *middleware.DailyQuota
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env != "test" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			DefaultGroup: rateGroupDefault,
			GroupFor:     rateGroupFor,
			Rules: map[string]middleware.RateLimitRule{
				rateGroupDefault: {Rate: 2, Burst: 10},
				rateGroupPolling: {Rate: 10, Burst: 30},
			},
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	if deps.GateStats != nil {
		api.GET("/gate/stats", func(c *gin.Context) {
			stats := deps.GateStats()
			respond.OK(c, gin.H{"stats": stats, "successRate": stats.SuccessRate()})
		})
	}
	if deps.ProgressHandler != nil {
		deps.ProgressHandler.RegisterRoutes(api)
	}
	if deps.RunsHandler != nil {
		var guards []gin.HandlerFunc
		if deps.Quota != nil {
			guards = append(guards, middleware.Quota(deps.Quota))
			api.GET("/quota", func(c *gin.Context) {
				respond.OK(c, deps.Quota.Stats())
			})
		}
		deps.RunsHandler.RegisterRoutes(api, guards...)
	}

	return r
}

func rateGroupFor(c *gin.Context) string {
	if c.Request.Method != http.MethodGet {
		return rateGroupDefault
	}
	switch c.FullPath() {
	case "/api/v1/runs/:id", "/api/v1/progress", "/api/v1/progress/stream":
		return rateGroupPolling
	default:
		return rateGroupDefault
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
