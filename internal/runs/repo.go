package runs

import "context"

// Repo defines persistence operations for runs.
type Repo interface {
	Create(ctx context.Context, run Run) error
	GetByID(ctx context.Context, id string) (Run, error)
	List(ctx context.Context, limit, offset int) ([]Run, error)
	// Update stores the status, counters, keys and timestamps of run.
	Update(ctx context.Context, run Run) error
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
