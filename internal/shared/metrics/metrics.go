package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	runsStartedTotal   atomic.Uint64
	runsCompletedTotal atomic.Uint64
	runsFailedTotal    atomic.Uint64

	runDuration = newHistogram([]float64{10000, 30000, 60000, 120000, 180000, 300000, 600000})

	sourcesMu sync.RWMutex
	sources   []source
)

type source struct {
	name    string
	help    string
	kind    string
	counter func() uint64
	gauge   func() float64
}

// IncRunStarted increments the started counter.
func IncRunStarted() {
	runsStartedTotal.Add(1)
}

// IncRunCompleted increments the completed counter.
func IncRunCompleted() {
	runsCompletedTotal.Add(1)
}

// IncRunFailed increments the failed counter.
func IncRunFailed() {
	runsFailedTotal.Add(1)
}

// ObserveRunDurationMs records a pipeline run duration in milliseconds.
func ObserveRunDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	runDuration.Observe(value)
}

// RegisterCounter exposes a counter read from fn at render time. A later
// registration under the same name replaces the earlier one.
func RegisterCounter(name, help string, fn func() uint64) {
	register(source{name: name, help: help, kind: "counter", counter: fn})
}

// RegisterGauge exposes a gauge read from fn at render time.
func RegisterGauge(name, help string, fn func() float64) {
	register(source{name: name, help: help, kind: "gauge", gauge: fn})
}

func register(src source) {
	sourcesMu.Lock()
	defer sourcesMu.Unlock()
	for i := range sources {
		if sources[i].name == src.name {
			sources[i] = src
			return
		}
	}
	sources = append(sources, src)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "pipeline_runs_started_total", "Total pipeline runs started", runsStartedTotal.Load())
	writeCounter(&buf, "pipeline_runs_completed_total", "Total pipeline runs completed", runsCompletedTotal.Load())
	writeCounter(&buf, "pipeline_runs_failed_total", "Total pipeline runs failed", runsFailedTotal.Load())
	writeHistogram(&buf, "pipeline_run_duration_ms", "Pipeline run duration in milliseconds", runDuration.Snapshot())

	sourcesMu.RLock()
	defer sourcesMu.RUnlock()
	for _, src := range sources {
		if src.kind == "counter" {
			writeCounter(&buf, src.name, src.help, src.counter())
			continue
		}
		writeGauge(&buf, src.name, src.help, src.gauge())
	}
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	// counts are per bucket; writeHistogram accumulates them.
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeGauge(buf *bytes.Buffer, name, help string, value float64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s gauge\n", name)
	fmt.Fprintf(buf, "%s %s\n", name, formatFloat(value))
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
