package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how much research a run does.
type Mode string

const (
	ModeQuick    Mode = "quick"
	ModeStandard Mode = "standard"
)

// ParseMode accepts "quick" or "standard"; empty means standard.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStandard:
		return ModeStandard, nil
	case ModeQuick:
		return ModeQuick, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want quick or standard)", s)
	}
}

// Limits bounds the research fan-out.
type Limits struct {
	QueriesPerList int
	MaxResults     int
}

// LimitsFor returns the research limits of a mode. A positive
// maxResultsOverride replaces the per-query result cap.
func LimitsFor(mode Mode, maxResultsOverride int) Limits {
	l := Limits{QueriesPerList: 3, MaxResults: 5}
	if mode == ModeQuick {
		l = Limits{QueriesPerList: 1, MaxResults: 3}
	}
	if maxResultsOverride > 0 {
		l.MaxResults = maxResultsOverride
	}
	return l
}

// ExpectedDuration is the assumed run length used for early ETAs.
func (m Mode) ExpectedDuration() time.Duration {
	if m == ModeQuick {
		return 120 * time.Second
	}
	return 180 * time.Second
}
