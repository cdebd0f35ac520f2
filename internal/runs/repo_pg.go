package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectColumns = `id, status, target_role, mode, profile, resume_chars, revision_count,
    postings_found, reports_found, resume_key, report_key, error_message, client_ip,
    created_at, started_at, finished_at`

// Create inserts a new run.
func (r *PGRepo) Create(ctx context.Context, run Run) error {
	const query = `
INSERT INTO pipeline_runs (
    id,
    status,
    target_role,
    mode,
    profile,
    resume_chars,
    resume_key,
    client_ip,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	profile, err := json.Marshal(run.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	_, err = r.DB.ExecContext(
		ctx,
		query,
		run.ID,
		run.Status,
		run.TargetRole,
		run.Mode,
		profile,
		run.ResumeChars,
		nullString(run.ResumeKey),
		nullString(run.ClientIPHash),
		run.CreatedAt,
	)
	return err
}

// GetByID fetches a run.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Run, error) {
	query := `SELECT ` + selectColumns + `
FROM pipeline_runs
WHERE id = $1`
	run, err := scanRun(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrNotFound
		}
		return Run{}, err
	}
	return run, nil
}

// List lists runs ordered newest-first.
func (r *PGRepo) List(ctx context.Context, limit, offset int) ([]Run, error) {
	limit, offset = clampPage(limit, offset)
	query := `SELECT ` + selectColumns + `
FROM pipeline_runs
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2`

	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Update writes the mutable columns of run.
func (r *PGRepo) Update(ctx context.Context, run Run) error {
	const query = `
UPDATE pipeline_runs
SET status = $2,
    revision_count = $3,
    postings_found = $4,
    reports_found = $5,
    report_key = $6,
    error_message = $7,
    started_at = $8,
    finished_at = $9
WHERE id = $1`
	res, err := r.DB.ExecContext(
		ctx,
		query,
		run.ID,
		run.Status,
		run.RevisionCount,
		run.PostingsFound,
		run.ReportsFound,
		nullString(run.ReportKey),
		nullString(run.ErrorMessage),
		nullTime(run.StartedAt),
		nullTime(run.FinishedAt),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var profile []byte
	var resumeKey, reportKey, errMsg, clientIP sql.NullString
	var startedAt, finishedAt sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.Status,
		&run.TargetRole,
		&run.Mode,
		&profile,
		&run.ResumeChars,
		&run.RevisionCount,
		&run.PostingsFound,
		&run.ReportsFound,
		&resumeKey,
		&reportKey,
		&errMsg,
		&clientIP,
		&run.CreatedAt,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return Run{}, err
	}
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &run.Profile); err != nil {
			return Run{}, fmt.Errorf("decode profile: %w", err)
		}
	}
	run.ResumeKey = resumeKey.String
	run.ReportKey = reportKey.String
	run.ErrorMessage = errMsg.String
	run.ClientIPHash = clientIP.String
	if startedAt.Valid {
		t := startedAt.Time
		run.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return run, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
