package runs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"interview-agent/internal/pipeline"
	"interview-agent/internal/shared/metrics"
	"interview-agent/internal/shared/storage/object"
	"interview-agent/internal/shared/telemetry"
	"interview-agent/internal/shared/util"
)

const (
	reportContentType = "text/markdown; charset=utf-8"
	maxErrorLen       = 500
)

// Pipeline runs one preparation workflow.
type Pipeline interface {
	Run(ctx context.Context, in pipeline.Input) (pipeline.State, error)
}

// Upload is an original resume file kept alongside the run.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// StartRequest describes a new run.
type StartRequest struct {
	Input    pipeline.Input
	Resume   *Upload
	ClientIP string
}

// Service accepts runs and executes them in the background, one at a time.
// The progress tracker is process-wide, so runs queue behind each other.
type Service struct {
	Repo     Repo
	Store    object.ObjectStore
	Pipeline Pipeline

	now    func() time.Time
	slots  *semaphore.Weighted
	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewService constructs a Service.
func NewService(repo Repo, store object.ObjectStore, p Pipeline) *Service {
	base, cancel := context.WithCancel(context.Background())
	return &Service{
		Repo:     repo,
		Store:    store,
		Pipeline: p,
		now:      time.Now,
		slots:    semaphore.NewWeighted(1),
		base:     base,
		cancel:   cancel,
	}
}

// Start records a queued run and schedules its execution.
func (s *Service) Start(ctx context.Context, req StartRequest) (Run, error) {
	if err := req.Input.Validate(); err != nil {
		return Run{}, err
	}
	mode := req.Input.Mode
	if mode == "" {
		mode = pipeline.ModeStandard
		req.Input.Mode = mode
	}

	run := Run{
		ID:          uuid.NewString(),
		Status:      StatusQueued,
		TargetRole:  strings.TrimSpace(req.Input.TargetRole),
		Mode:        string(mode),
		Profile:     req.Input.Profile.WithDefaults(),
		ResumeChars: len([]rune(req.Input.ResumeText)),
		CreatedAt:   s.now().UTC(),
	}
	if ip := strings.TrimSpace(req.ClientIP); ip != "" {
		run.ClientIPHash = util.HashKey(ip)
	}

	if req.Resume != nil && s.Store != nil {
		key, err := s.saveResume(ctx, run.ID, *req.Resume)
		if err != nil {
			return Run{}, err
		}
		run.ResumeKey = key
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Run{}, ErrShuttingDown
	}
	if err := s.Repo.Create(ctx, run); err != nil {
		s.mu.Unlock()
		return Run{}, fmt.Errorf("create run: %w", err)
	}
	s.wg.Add(1)
	s.mu.Unlock()

	telemetry.Info("run.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"run_id":            run.ID,
		"status":            StatusQueued,
		"status_transition": "->queued",
		"mode":              run.Mode,
	})
	go s.execute(detach(ctx, s.base), run, req.Input)
	return run, nil
}

// Get returns a run by ID.
func (s *Service) Get(ctx context.Context, id string) (Run, error) {
	if strings.TrimSpace(id) == "" {
		return Run{}, ErrNotFound
	}
	return s.Repo.GetByID(ctx, id)
}

// List returns runs newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Run, error) {
	return s.Repo.List(ctx, limit, offset)
}

// Report returns the final report of a completed run.
func (s *Service) Report(ctx context.Context, id string) (string, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if run.Status != StatusCompleted || run.ReportKey == "" {
		return "", ErrReportNotReady
	}
	body, err := s.Store.Open(ctx, run.ReportKey)
	if err != nil {
		return "", fmt.Errorf("open report %s: %w", run.ReportKey, err)
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read report %s: %w", run.ReportKey, err)
	}
	return string(raw), nil
}

// Wait blocks until every accepted run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting runs, cancels the ones in flight and waits for
// them to record their final status or for ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) execute(ctx context.Context, run Run, in pipeline.Input) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.fail(ctx, run, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := s.slots.Acquire(ctx, 1); err != nil {
		s.fail(ctx, run, fmt.Errorf("waiting for pipeline slot: %w", err))
		return
	}
	defer s.slots.Release(1)

	startedAt := s.now().UTC()
	run.Status = StatusRunning
	run.StartedAt = &startedAt
	if err := s.Repo.Update(ctx, run); err != nil {
		s.fail(ctx, run, fmt.Errorf("set running failed: %w", err))
		return
	}
	metrics.IncRunStarted()
	telemetry.Info("run.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"run_id":            run.ID,
		"status":            StatusRunning,
		"status_transition": "queued->running",
	})

	state, err := s.Pipeline.Run(ctx, in)
	run.RevisionCount = state.RevisionCount
	run.PostingsFound = len(state.JobPostings)
	run.ReportsFound = len(state.InterviewReports)
	if err != nil {
		s.fail(ctx, run, err)
		return
	}

	key := reportKey(run.ID)
	if _, err := s.Store.Put(ctx, key, reportContentType, strings.NewReader(state.FinalReport)); err != nil {
		s.fail(ctx, run, fmt.Errorf("store report: %w", err))
		return
	}

	finishedAt := s.now().UTC()
	run.Status = StatusCompleted
	run.ReportKey = key
	run.FinishedAt = &finishedAt
	if err := s.Repo.Update(context.WithoutCancel(ctx), run); err != nil {
		s.fail(ctx, run, fmt.Errorf("set completed failed: %w", err))
		return
	}
	metrics.IncRunCompleted()
	metrics.ObserveRunDurationMs(durationMs(run.StartedAt, run.FinishedAt))
	telemetry.Info("run.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"run_id":            run.ID,
		"status":            StatusCompleted,
		"status_transition": "running->completed",
		"revisions":         run.RevisionCount,
		"duration_ms":       durationMs(run.StartedAt, run.FinishedAt),
	})
}

func (s *Service) fail(ctx context.Context, run Run, err error) {
	from := run.Status
	finishedAt := s.now().UTC()
	run.Status = StatusFailed
	run.ErrorMessage = sanitizeError(err)
	run.FinishedAt = &finishedAt
	if updateErr := s.Repo.Update(context.WithoutCancel(ctx), run); updateErr != nil {
		telemetry.Error("run.update_failed", map[string]any{
			"run_id": run.ID,
			"error":  updateErr,
			"cause":  err,
		})
	}
	metrics.IncRunFailed()
	if run.StartedAt != nil {
		metrics.ObserveRunDurationMs(durationMs(run.StartedAt, run.FinishedAt))
	}
	telemetry.Error("run.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"run_id":            run.ID,
		"status":            StatusFailed,
		"status_transition": from + "->failed",
		"canceled":          errors.Is(err, context.Canceled),
		"error":             err,
	})
}

func (s *Service) saveResume(ctx context.Context, runID string, up Upload) (string, error) {
	name, err := util.SanitizeFileName(up.FileName)
	if err != nil {
		name = "resume"
	}
	key := path.Join("resumes", runID, name)
	if _, err := s.Store.Put(ctx, key, up.ContentType, bytes.NewReader(up.Data)); err != nil {
		return "", fmt.Errorf("store resume: %w", err)
	}
	return key, nil
}

func reportKey(runID string) string {
	return path.Join("reports", runID+".md")
}

func durationMs(startedAt, finishedAt *time.Time) float64 {
	if startedAt == nil || finishedAt == nil {
		return 0
	}
	return float64(finishedAt.Sub(*startedAt).Microseconds()) / 1000.0
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(strings.ToValidUTF8(msg, "?"))
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
		// Drop a multi-byte rune split by the cut.
		for len(msg) > 0 && !utf8.ValidString(msg) {
			msg = msg[:len(msg)-1]
		}
	}
	return msg
}
