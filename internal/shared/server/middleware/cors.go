package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// OriginAllowList reports whether an Origin header is allowed.
type OriginAllowList map[string]struct{}

// NewOriginAllowList builds an allow list. "*" allows every origin.
func NewOriginAllowList(origins []string) OriginAllowList {
	out := make(OriginAllowList)
	for _, o := range origins {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			out[trimmed] = struct{}{}
		}
	}
	return out
}

// Allowed reports whether origin may call the API.
func (l OriginAllowList) Allowed(origin string) bool {
	if _, ok := l["*"]; ok {
		return true
	}
	_, ok := l[origin]
	return ok
}

// CORS sets CORS headers and handles preflight requests.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	origins := NewOriginAllowList(allowedOrigins)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && origins.Allowed(origin) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Vary", "Origin")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
			h.Set("Access-Control-Expose-Headers", "X-Request-Id, Retry-After")
			h.Set("Access-Control-Max-Age", "600")
		}

		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}

		c.Next()
	}
}
