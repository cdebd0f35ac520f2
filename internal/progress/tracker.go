// Package progress tracks the stage and ETA of the running pipeline. One
// goroutine writes while any number of readers take snapshots.
package progress

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultExpectedDuration is the assumed length of a standard run.
	DefaultExpectedDuration = 180 * time.Second
	// fallbackUnitDuration is used per remaining unit before any duration is recorded.
	fallbackUnitDuration = 3 * time.Second
)

// Snapshot is an immutable copy of tracker state.
type Snapshot struct {
	Stage          Stage   `json:"stage"`
	StageLabel     string  `json:"stageLabel"`
	Percent        float64 `json:"percent"`
	CurrentItem    string  `json:"currentItem,omitempty"`
	CompletedUnits int     `json:"completedUnits"`
	TotalUnits     int     `json:"totalUnits"`
	SuccessCount   int     `json:"successCount"`
	FailureCount   int     `json:"failureCount"`
	Mode           string  `json:"mode,omitempty"`
	Error          string  `json:"error,omitempty"`

	AvgUnitDuration time.Duration `json:"-"`
	Remaining       time.Duration `json:"-"`
	Elapsed         time.Duration `json:"-"`
	StartedAt       time.Time     `json:"startedAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`

	AvgUnitSeconds   float64 `json:"avgUnitSeconds"`
	RemainingSeconds float64 `json:"remainingSeconds"`
	RemainingText    string  `json:"remainingText"`
	ElapsedSeconds   float64 `json:"elapsedSeconds"`
}

// SuccessRate is successes over recorded units, or 0 when nothing was recorded.
func (s Snapshot) SuccessRate() float64 {
	n := s.SuccessCount + s.FailureCount
	if n == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(n)
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// Tracker holds progress for the current run. It is safe for concurrent use
// and never returns errors.
type Tracker struct {
	mu  sync.Mutex
	now func() time.Time

	mode      string
	expected  time.Duration
	stage     Stage
	percent   float64
	item      string
	completed int
	total     int
	successes int
	failures  int
	durSum    time.Duration
	durCount  int
	unitStart time.Time
	startedAt time.Time
	updatedAt time.Time
	err       string
}

// New returns a tracker in the INITIALIZING stage.
func New(opts ...Option) *Tracker {
	t := &Tracker{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	t.Reset()
	return t
}

// Reset clears all state and restarts the clock.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.mode = ""
	t.expected = DefaultExpectedDuration
	t.stage = StageInitializing
	t.percent = 0
	t.item = ""
	t.completed, t.total = 0, 0
	t.successes, t.failures = 0, 0
	t.durSum, t.durCount = 0, 0
	t.unitStart = now
	t.startedAt = now
	t.updatedAt = now
	t.err = ""
}

// SetMode records the run mode and its expected total duration.
func (t *Tracker) SetMode(mode string, expected time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mode = mode
	if expected > 0 {
		t.expected = expected
	}
	t.updatedAt = t.now()
}

// SetStage moves to stage. The percentage never moves backwards within a run
// and ERROR is terminal until Reset.
func (t *Tracker) SetStage(stage Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stage == StageError {
		return
	}
	if stage == StageError {
		t.stage = StageError
		t.updatedAt = t.now()
		return
	}
	base, ok := stage.Baseline()
	if !ok {
		return
	}
	t.stage = stage
	t.percent = math.Max(t.percent, base)
	t.item = ""
	t.completed, t.total = 0, 0
	t.unitStart = t.now()
	t.updatedAt = t.unitStart
}

// UpdateUnits reports unit progress inside the current stage. In the research
// stages the percentage advances through the stage's span.
func (t *Tracker) UpdateUnits(item string, completed, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stage == StageError {
		return
	}
	if total < 0 {
		total = 0
	}
	if completed < 0 {
		completed = 0
	}
	if completed > total {
		completed = total
	}
	t.item = item
	t.completed = completed
	t.total = total
	if t.stage.isResearch() && total > 0 {
		base, _ := t.stage.Baseline()
		pct := base + float64(completed)/float64(total)*researchSpan
		t.percent = math.Max(t.percent, pct)
	}
	t.unitStart = t.now()
	t.updatedAt = t.unitStart
}

// RecordUnit records the outcome and duration of one unit.
func (t *Tracker) RecordUnit(success bool, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordLocked(success, d)
}

// RecordUnitElapsed records a unit whose duration is measured from the last
// UpdateUnits or SetStage call.
func (t *Tracker) RecordUnitElapsed(success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordLocked(success, t.now().Sub(t.unitStart))
}

func (t *Tracker) recordLocked(success bool, d time.Duration) {
	if success {
		t.successes++
	} else {
		t.failures++
	}
	if d < 0 {
		d = 0
	}
	t.durSum += d
	t.durCount++
	t.updatedAt = t.now()
}

// Fail moves the tracker to ERROR with the given cause.
func (t *Tracker) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = StageError
	if err != nil {
		t.err = err.Error()
	}
	t.updatedAt = t.now()
}

// Snapshot returns a consistent copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	avg := t.avgLocked()
	remaining := t.remainingLocked(avg)
	elapsed := now.Sub(t.startedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return Snapshot{
		Stage:            t.stage,
		StageLabel:       t.stage.Label(),
		Percent:          t.percent,
		CurrentItem:      t.item,
		CompletedUnits:   t.completed,
		TotalUnits:       t.total,
		SuccessCount:     t.successes,
		FailureCount:     t.failures,
		Mode:             t.mode,
		Error:            t.err,
		AvgUnitDuration:  avg,
		Remaining:        remaining,
		Elapsed:          elapsed,
		StartedAt:        t.startedAt,
		UpdatedAt:        t.updatedAt,
		AvgUnitSeconds:   avg.Seconds(),
		RemainingSeconds: remaining.Seconds(),
		RemainingText:    FormatRemaining(remaining),
		ElapsedSeconds:   elapsed.Seconds(),
	}
}

func (t *Tracker) avgLocked() time.Duration {
	if t.durCount == 0 {
		return 0
	}
	return t.durSum / time.Duration(t.durCount)
}

// remainingLocked falls back to the expected run length until a unit has
// completed, then extrapolates from the mean unit duration.
func (t *Tracker) remainingLocked(avg time.Duration) time.Duration {
	if t.total == 0 || t.completed == 0 {
		left := (100 - t.percent) / 100
		if left < 0 {
			left = 0
		}
		return time.Duration(math.Round(left * float64(t.expected)))
	}
	if avg == 0 {
		avg = fallbackUnitDuration
	}
	left := t.total - t.completed
	if left < 0 {
		left = 0
	}
	return time.Duration(left) * avg
}
