package runs

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"interview-agent/internal/pipeline"
)

var runColumns = []string{
	"id", "status", "target_role", "mode", "profile", "resume_chars", "revision_count",
	"postings_found", "reports_found", "resume_key", "report_key", "error_message", "client_ip",
	"created_at", "started_at", "finished_at",
}

func TestPGRepoCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	run := Run{
		ID:          "run-1",
		Status:      StatusQueued,
		TargetRole:  "Backend Engineer",
		Mode:        "quick",
		Profile:     pipeline.DefaultProfile(),
		ResumeChars: 1200,
		CreatedAt:   time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO pipeline_runs").
		WithArgs(
			run.ID,
			run.Status,
			run.TargetRole,
			run.Mode,
			sqlmock.AnyArg(), // profile json
			run.ResumeChars,
			nil, // resume_key
			nil, // client_ip
			run.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), run); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	created := time.Date(2026, time.May, 2, 9, 0, 0, 0, time.UTC)
	started := created.Add(time.Second)
	rows := sqlmock.NewRows(runColumns).AddRow(
		"run-1", StatusCompleted, "SRE", "standard",
		[]byte(`{"experience_level":"senior","learning_style":"visual","preparation_weeks":2}`),
		900, 2, 4, 3, nil, "reports/run-1.md", nil, "abc",
		created, started, nil,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM pipeline_runs\nWHERE id = $1")).
		WithArgs("run-1").
		WillReturnRows(rows)

	run, err := (&PGRepo{DB: db}).GetByID(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if run.Profile.ExperienceLevel != "senior" || run.Profile.PreparationWeeks != 2 {
		t.Fatalf("profile not decoded: %+v", run.Profile)
	}
	if run.ReportKey != "reports/run-1.md" || run.ResumeKey != "" {
		t.Fatalf("unexpected keys: %+v", run)
	}
	if run.StartedAt == nil || !run.StartedAt.Equal(started) || run.FinishedAt != nil {
		t.Fatalf("unexpected timestamps: %+v", run)
	}
	if run.RevisionCount != 2 || run.PostingsFound != 4 || run.ReportsFound != 3 {
		t.Fatalf("unexpected counters: %+v", run)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("FROM pipeline_runs").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(runColumns))

	_, err = (&PGRepo{DB: db}).GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoListClampsLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("ORDER BY created_at DESC").
		WithArgs(maxListLimit, 0).
		WillReturnRows(sqlmock.NewRows(runColumns))

	list, err := (&PGRepo{DB: db}).List(context.Background(), 500, -3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	finished := time.Now().UTC()
	run := Run{ID: "run-9", Status: StatusFailed, ErrorMessage: "boom", FinishedAt: &finished}
	mock.ExpectExec("UPDATE pipeline_runs").
		WithArgs(run.ID, run.Status, 0, 0, 0, nil, "boom", nil, finished).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := (&PGRepo{DB: db}).Update(context.Background(), run); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
