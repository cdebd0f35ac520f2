package runs

import (
	"time"

	"interview-agent/internal/pipeline"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one submitted pipeline execution.
type Run struct {
	ID            string
	Status        string
	TargetRole    string
	Mode          string
	Profile       pipeline.Profile
	ResumeChars   int
	ResumeKey     string
	ReportKey     string
	RevisionCount int
	PostingsFound int
	ReportsFound  int
	ErrorMessage  string
	ClientIPHash  string
	CreatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
}

// Finished reports whether the run reached a terminal status.
func (r Run) Finished() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// RunView is the JSON shape returned by the API.
type RunView struct {
	ID            string           `json:"id"`
	Status        string           `json:"status"`
	TargetRole    string           `json:"targetRole"`
	Mode          string           `json:"mode"`
	Profile       pipeline.Profile `json:"profile"`
	ResumeChars   int              `json:"resumeChars"`
	RevisionCount int              `json:"revisionCount"`
	PostingsFound int              `json:"postingsFound"`
	ReportsFound  int              `json:"reportsFound"`
	HasReport     bool             `json:"hasReport"`
	Error         string           `json:"error,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	StartedAt     *time.Time       `json:"startedAt,omitempty"`
	FinishedAt    *time.Time       `json:"finishedAt,omitempty"`
}

// View converts r for API responses.
func (r Run) View() RunView {
	return RunView{
		ID:            r.ID,
		Status:        r.Status,
		TargetRole:    r.TargetRole,
		Mode:          r.Mode,
		Profile:       r.Profile,
		ResumeChars:   r.ResumeChars,
		RevisionCount: r.RevisionCount,
		PostingsFound: r.PostingsFound,
		ReportsFound:  r.ReportsFound,
		HasReport:     r.ReportKey != "",
		Error:         r.ErrorMessage,
		CreatedAt:     r.CreatedAt,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
}
