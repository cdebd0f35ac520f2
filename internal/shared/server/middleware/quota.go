package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"interview-agent/internal/shared/server/respond"
)

// DailyQuota caps accepted requests per client IP and in total for each
// calendar day (UTC). Counters reset when the day changes.
type DailyQuota struct {
	mu       sync.Mutex
	perIP    int
	total    int
	now      func() time.Time
	day      string
	ipCounts map[string]int
	count    int
}

// QuotaStats is the current day's usage.
type QuotaStats struct {
	Date          string `json:"date"`
	TotalRequests int    `json:"totalRequests"`
	UniqueIPs     int    `json:"uniqueIps"`
	MaxPerIP      int    `json:"maxPerIp"`
	MaxTotal      int    `json:"maxTotal"`
}

// NewDailyQuota builds a quota. Zero or negative limits disable that check.
func NewDailyQuota(perIP, total int, now func() time.Time) *DailyQuota {
	if now == nil {
		now = time.Now
	}
	return &DailyQuota{perIP: perIP, total: total, now: now, ipCounts: make(map[string]int)}
}

// Take records one request for ip when both limits allow it. The returned
// scope is "global" or "ip" when refused.
func (q *DailyQuota) Take(ip string) (bool, string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollLocked()
	if q.total > 0 && q.count >= q.total {
		return false, "global"
	}
	if q.perIP > 0 && q.ipCounts[ip] >= q.perIP {
		return false, "ip"
	}
	q.ipCounts[ip]++
	q.count++
	return true, ""
}

// Stats returns today's usage.
func (q *DailyQuota) Stats() QuotaStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollLocked()
	return QuotaStats{
		Date:          q.day,
		TotalRequests: q.count,
		UniqueIPs:     len(q.ipCounts),
		MaxPerIP:      q.perIP,
		MaxTotal:      q.total,
	}
}

func (q *DailyQuota) rollLocked() {
	today := q.now().UTC().Format("2006-01-02")
	if q.day != today {
		q.day = today
		q.ipCounts = make(map[string]int)
		q.count = 0
	}
}

// Quota rejects requests over the daily quota with 429.
func Quota(q *DailyQuota) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := strings.TrimSpace(c.ClientIP())
		if ip == "" {
			ip = "unknown"
		}
		ok, scope := q.Take(ip)
		if ok {
			c.Next()
			return
		}
		msg := "Daily quota for your address is used up; try again tomorrow"
		if scope == "global" {
			msg = "Daily service quota is used up; try again tomorrow"
		}
		respond.Error(c, http.StatusTooManyRequests, "quota_exceeded", msg, gin.H{"scope": scope})
	}
}
