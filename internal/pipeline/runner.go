// Package pipeline implements the interview preparation workflow: planning,
// research, gap analysis and the write/critique loop.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"interview-agent/internal/progress"
	"interview-agent/internal/shared/telemetry"
	"interview-agent/internal/workflow"
)

var ErrInvalidInput = errors.New("invalid pipeline input")

// Input starts a run.
type Input struct {
	ResumeText string
	TargetRole string
	Mode       Mode
	Profile    Profile
}

// Validate checks the required fields.
func (in Input) Validate() error {
	if strings.TrimSpace(in.ResumeText) == "" {
		return errors.Join(ErrInvalidInput, errors.New("resume text is required"))
	}
	if strings.TrimSpace(in.TargetRole) == "" {
		return errors.Join(ErrInvalidInput, errors.New("target role is required"))
	}
	return nil
}

// Build wires the stage functions into the workflow graph.
func Build(st *Stages) (*workflow.Runnable[State, Update], error) {
	return workflow.New[State, Update](merge).
		AddNode(NodePlanner, st.Plan).
		AddNode(NodeJobResearcher, st.ResearchJobs).
		AddNode(NodeInterviewResearcher, st.ResearchInterviews).
		AddNode(NodeGapAnalyst, st.AnalyzeGaps).
		AddNode(NodeReportWriter, st.WriteReport).
		AddNode(NodeCritic, st.Critique).
		AddEdge(workflow.Start, NodePlanner).
		AddEdge(NodePlanner, NodeJobResearcher).
		AddEdge(NodeJobResearcher, NodeInterviewResearcher).
		AddEdge(NodeInterviewResearcher, NodeGapAnalyst).
		AddEdge(NodeGapAnalyst, NodeReportWriter).
		AddEdge(NodeReportWriter, NodeCritic).
		AddConditionalEdge(NodeCritic, revisionRoute, map[string]string{
			"approve": workflow.End,
			"revise":  NodeReportWriter,
		}).
		WithHooks(workflow.Hooks{
			OnNodeStart: func(ctx context.Context, node string, step int) {
				telemetry.Info("pipeline.node_start", map[string]any{"node": node, "step": step})
			},
			OnNodeEnd: func(ctx context.Context, node string, step int, elapsed time.Duration, err error) {
				fields := map[string]any{"node": node, "step": step, "elapsed_ms": elapsed.Milliseconds()}
				if err != nil {
					fields["err"] = err
					telemetry.Error("pipeline.node_failed", fields)
					return
				}
				telemetry.Info("pipeline.node_end", fields)
			},
		}).
		Compile()
}

func revisionRoute(s State) string {
	if Approved(s) {
		return "approve"
	}
	return "revise"
}

// Runner executes whole pipeline runs and reports progress.
type Runner struct {
	graph   *workflow.Runnable[State, Update]
	tracker *progress.Tracker
}

// NewRunner compiles the graph for st.
func NewRunner(st *Stages) (*Runner, error) {
	graph, err := Build(st)
	if err != nil {
		return nil, err
	}
	return &Runner{graph: graph, tracker: st.Tracker}, nil
}

// Tracker returns the tracker the runner reports to.
func (r *Runner) Tracker() *progress.Tracker { return r.tracker }

// Run resets progress and executes the graph. On failure the tracker is put
// into ERROR before the error is returned; the partial state is returned too.
func (r *Runner) Run(ctx context.Context, in Input) (State, error) {
	r.tracker.Reset()
	if err := in.Validate(); err != nil {
		r.tracker.Fail(err)
		return State{}, err
	}
	mode := in.Mode
	if mode == "" {
		mode = ModeStandard
	}
	r.tracker.SetMode(string(mode), mode.ExpectedDuration())

	initial := State{
		ResumeText: in.ResumeText,
		TargetRole: strings.TrimSpace(in.TargetRole),
		Mode:       mode,
		Profile:    in.Profile.WithDefaults(),
	}
	started := time.Now()
	final, err := r.graph.Run(ctx, initial)
	if err != nil {
		r.tracker.Fail(err)
		telemetry.Error("pipeline.failed", map[string]any{
			"err":        err,
			"elapsed_ms": time.Since(started).Milliseconds(),
		})
		return final, err
	}
	r.tracker.SetStage(progress.StageComplete)
	telemetry.Info("pipeline.complete", map[string]any{
		"job_postings":      len(final.JobPostings),
		"interview_reports": len(final.InterviewReports),
		"revisions":         final.RevisionCount,
		"elapsed_ms":        time.Since(started).Milliseconds(),
	})
	return final, nil
}
