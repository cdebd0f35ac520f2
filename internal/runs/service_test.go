package runs

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"interview-agent/internal/pipeline"
	"interview-agent/internal/shared/storage/object/local"
)

type fakePipeline struct {
	mu        sync.Mutex
	calls     int
	active    int
	maxActive int
	state     pipeline.State
	err       error
	block     chan struct{}
}

func (f *fakePipeline) Run(ctx context.Context, in pipeline.Input) (pipeline.State, error) {
	f.mu.Lock()
	f.calls++
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return pipeline.State{}, ctx.Err()
		}
	}
	return f.state, f.err
}

func validInput() pipeline.Input {
	return pipeline.Input{ResumeText: "Go developer, five years", TargetRole: "Backend Engineer", Mode: pipeline.ModeQuick}
}

func newTestService(t *testing.T, p Pipeline) (*Service, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	svc := NewService(repo, local.New(t.TempDir()), p)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, repo
}

func TestServiceCompletesRunAndStoresReport(t *testing.T) {
	p := &fakePipeline{state: pipeline.State{
		FinalReport:      "# Plan\n\nStudy systems design.",
		RevisionCount:    2,
		JobPostings:      []pipeline.JobPosting{{CompanyName: "Acme"}},
		InterviewReports: []pipeline.InterviewReport{{CompanyName: "Acme"}, {CompanyName: "Initech"}},
	}}
	svc, _ := newTestService(t, p)

	run, err := svc.Start(context.Background(), StartRequest{Input: validInput(), ClientIP: "203.0.113.7"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.Status != StatusQueued {
		t.Fatalf("expected queued, got %s", run.Status)
	}
	if run.ClientIPHash == "" || strings.Contains(run.ClientIPHash, "203.0.113.7") {
		t.Fatalf("client ip must be hashed, got %q", run.ClientIPHash)
	}
	svc.Wait()

	got, err := svc.Get(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", got.Status, got.ErrorMessage)
	}
	if got.RevisionCount != 2 || got.PostingsFound != 1 || got.ReportsFound != 2 {
		t.Fatalf("unexpected counters: %+v", got)
	}
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Fatalf("timestamps not recorded: %+v", got)
	}
	if got.ReportKey != "reports/"+run.ID+".md" {
		t.Fatalf("unexpected report key %q", got.ReportKey)
	}

	report, err := svc.Report(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report != p.state.FinalReport {
		t.Fatalf("unexpected report %q", report)
	}
}

func TestServiceRecordsFailure(t *testing.T) {
	p := &fakePipeline{err: errors.New("planner: upstream\nexploded")}
	svc, _ := newTestService(t, p)

	run, err := svc.Start(context.Background(), StartRequest{Input: validInput()})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.Wait()

	got, _ := svc.Get(context.Background(), run.ID)
	if got.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.ErrorMessage != "planner: upstream exploded" {
		t.Fatalf("unexpected error message %q", got.ErrorMessage)
	}
	if _, err := svc.Report(context.Background(), run.ID); !errors.Is(err, ErrReportNotReady) {
		t.Fatalf("expected ErrReportNotReady, got %v", err)
	}
}

func TestServiceFailureMessageStaysValidUTF8(t *testing.T) {
	long := strings.Repeat("x", maxErrorLen-1) + "并发请求过多"
	p := &fakePipeline{err: errors.New(long)}
	svc, _ := newTestService(t, p)

	run, err := svc.Start(context.Background(), StartRequest{Input: validInput()})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.Wait()

	got, _ := svc.Get(context.Background(), run.ID)
	if got.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if !utf8.ValidString(got.ErrorMessage) {
		t.Fatalf("error message is not valid UTF-8: %q", got.ErrorMessage[len(got.ErrorMessage)-4:])
	}
	if got.ErrorMessage != strings.Repeat("x", maxErrorLen-1) {
		t.Fatalf("expected cut before the split rune, got %d bytes", len(got.ErrorMessage))
	}
}

func TestSanitizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "newlines", err: errors.New(" a\r\nb "), want: "a  b"},
		{name: "short chinese", err: errors.New("并发数过高"), want: "并发数过高"},
		{name: "cut inside rune", err: errors.New(strings.Repeat("y", maxErrorLen-2) + "面试"), want: strings.Repeat("y", maxErrorLen-2)},
		{name: "invalid bytes", err: errors.New("bad\xffbyte"), want: "bad?byte"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeError(tt.err)
			if got != tt.want {
				t.Fatalf("sanitizeError = %q, want %q", got, tt.want)
			}
			if len(got) > maxErrorLen || !utf8.ValidString(got) {
				t.Fatalf("sanitizeError produced %d bytes, valid=%v", len(got), utf8.ValidString(got))
			}
		})
	}
}

func TestServiceRunsOneAtATime(t *testing.T) {
	p := &fakePipeline{block: make(chan struct{}), state: pipeline.State{FinalReport: "ok"}}
	svc, _ := newTestService(t, p)

	for i := 0; i < 3; i++ {
		if _, err := svc.Start(context.Background(), StartRequest{Input: validInput()}); err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
	}
	close(p.block)
	svc.Wait()

	if p.calls != 3 {
		t.Fatalf("expected 3 pipeline calls, got %d", p.calls)
	}
	if p.maxActive != 1 {
		t.Fatalf("expected serialized runs, max concurrent %d", p.maxActive)
	}
}

func TestServiceShutdownCancelsInFlight(t *testing.T) {
	p := &fakePipeline{block: make(chan struct{})}
	svc, _ := newTestService(t, p)

	run, err := svc.Start(context.Background(), StartRequest{Input: validInput()})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	got, _ := svc.Get(context.Background(), run.ID)
	if got.Status != StatusFailed {
		t.Fatalf("expected failed after shutdown, got %s", got.Status)
	}
	if _, err := svc.Start(context.Background(), StartRequest{Input: validInput()}); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown, got %v", err)
	}
}

func TestServiceRejectsInvalidInput(t *testing.T) {
	svc, repo := newTestService(t, &fakePipeline{})

	_, err := svc.Start(context.Background(), StartRequest{Input: pipeline.Input{TargetRole: "SRE"}})
	if !errors.Is(err, pipeline.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	list, _ := repo.List(context.Background(), 10, 0)
	if len(list) != 0 {
		t.Fatalf("no run should be recorded, got %d", len(list))
	}
}

func TestServiceKeepsUploadedResume(t *testing.T) {
	store := local.New(t.TempDir())
	svc := NewService(NewMemoryRepo(), store, &fakePipeline{state: pipeline.State{FinalReport: "ok"}})
	defer svc.Shutdown(context.Background())

	run, err := svc.Start(context.Background(), StartRequest{
		Input:  validInput(),
		Resume: &Upload{FileName: "my cv.txt", ContentType: "text/plain", Data: []byte("Go developer")},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.Wait()

	if run.ResumeKey != "resumes/"+run.ID+"/my cv.txt" {
		t.Fatalf("unexpected resume key %q", run.ResumeKey)
	}
	rc, err := store.Open(context.Background(), run.ResumeKey)
	if err != nil {
		t.Fatalf("open resume: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "Go developer" {
		t.Fatalf("unexpected resume bytes %q", data)
	}
}

func TestServiceDefaultsModeAndProfile(t *testing.T) {
	svc, _ := newTestService(t, &fakePipeline{state: pipeline.State{FinalReport: "ok"}})

	in := validInput()
	in.Mode = ""
	run, err := svc.Start(context.Background(), StartRequest{Input: in})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.Wait()
	if run.Mode != string(pipeline.ModeStandard) {
		t.Fatalf("expected standard mode, got %q", run.Mode)
	}
	if run.Profile != pipeline.DefaultProfile() {
		t.Fatalf("expected default profile, got %+v", run.Profile)
	}
}
