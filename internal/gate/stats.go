package gate

import "sync/atomic"

// Stats is a point-in-time copy of the gate counters.
type Stats struct {
	TotalCalls      uint64 `json:"totalCalls"`
	SuccessfulCalls uint64 `json:"successfulCalls"`
	OverloadedCalls uint64 `json:"overloadedCalls"`
	Retries         uint64 `json:"retries"`
	FailedCalls     uint64 `json:"failedCalls"`

	Limit        int `json:"limit"`
	BaseLimit    int `json:"baseLimit"`
	InFlight     int `json:"inFlight"`
	Waiting      int `json:"waiting"`
	PeakInFlight int `json:"peakInFlight"`
}

// SuccessRate is SuccessfulCalls/TotalCalls, or 0 before any call.
func (s Stats) SuccessRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.SuccessfulCalls) / float64(s.TotalCalls)
}

// counters are written by callers and the gate under its mutex, and read
// lock-free by Stats.
type counters struct {
	total      atomic.Uint64
	successful atomic.Uint64
	overloaded atomic.Uint64
	retries    atomic.Uint64
	failed     atomic.Uint64

	limit    atomic.Int64
	inFlight atomic.Int64
	waiting  atomic.Int64
	peak     atomic.Int64
}

// Stats returns the current counters without blocking callers.
func (g *Gate) Stats() Stats {
	return Stats{
		TotalCalls:      g.stats.total.Load(),
		SuccessfulCalls: g.stats.successful.Load(),
		OverloadedCalls: g.stats.overloaded.Load(),
		Retries:         g.stats.retries.Load(),
		FailedCalls:     g.stats.failed.Load(),
		Limit:           int(g.stats.limit.Load()),
		BaseLimit:       g.cfg.MaxConcurrent,
		InFlight:        int(g.stats.inFlight.Load()),
		Waiting:         int(g.stats.waiting.Load()),
		PeakInFlight:    int(g.stats.peak.Load()),
	}
}
