package pipeline

import (
	"context"
	"errors"
	"strings"

	"interview-agent/internal/extraction"
	"interview-agent/internal/llm"
	"interview-agent/internal/progress"
	"interview-agent/internal/search"
	"interview-agent/internal/shared/telemetry"
)

// Node names.
const (
	NodePlanner             = "planner"
	NodeJobResearcher       = "job_researcher"
	NodeInterviewResearcher = "interview_researcher"
	NodeGapAnalyst          = "gap_analyst"
	NodeReportWriter        = "report_writer"
	NodeCritic              = "critic"
)

// MaxRevisions is the number of rewrites allowed after the first draft.
const MaxRevisions = 3

// Extractor fills a record from a page.
type Extractor interface {
	Extract(ctx context.Context, url string, out extraction.Record, instructions string) error
}

// Stages holds the dependencies of the stage functions.
type Stages struct {
	LLM       llm.Generator
	Search    search.Searcher
	Extractor Extractor
	Tracker   *progress.Tracker
	// MaxResultsOverride replaces the per-query result cap when positive.
	MaxResultsOverride int
}

func (st *Stages) limits(s State) Limits {
	return LimitsFor(s.Mode, st.MaxResultsOverride)
}

func (st *Stages) depth(s State) search.Depth {
	if s.Mode == ModeQuick {
		return search.DepthBasic
	}
	return search.DepthAdvanced
}

// Plan produces the two query lists. Unparseable output falls back to
// default queries; upstream failures abort the run.
func (st *Stages) Plan(ctx context.Context, s State) (Update, error) {
	st.Tracker.SetStage(progress.StagePlanning)
	limits := st.limits(s)

	prompt, err := plannerPrompt(s, limits)
	if err != nil {
		return Update{}, err
	}
	var plan struct {
		JobQueries       []string `json:"jd_search_queries"`
		InterviewQueries []string `json:"interview_search_queries"`
	}
	err = llm.GenerateJSON(ctx, st.LLM, llm.Request{
		System:      systemPlanner,
		Prompt:      prompt,
		Temperature: llm.Temp(0),
	}, &plan)
	switch {
	case errors.Is(err, llm.ErrJSONParse):
		telemetry.Warn("planner.fallback", map[string]any{"err": err})
		plan.JobQueries, plan.InterviewQueries = nil, nil
	case err != nil:
		return Update{}, err
	}

	jobQueries := capQueries(cleanQueries(plan.JobQueries), limits.QueriesPerList)
	interviewQueries := capQueries(cleanQueries(plan.InterviewQueries), limits.QueriesPerList)
	if len(jobQueries) == 0 {
		jobQueries = capQueries(defaultJobQueries(s.TargetRole), limits.QueriesPerList)
	}
	if len(interviewQueries) == 0 {
		interviewQueries = capQueries(defaultInterviewQueries(s.TargetRole), limits.QueriesPerList)
	}
	telemetry.Info("planner.done", map[string]any{
		"job_queries":       len(jobQueries),
		"interview_queries": len(interviewQueries),
	})
	return Update{JobQueries: jobQueries, InterviewQueries: interviewQueries}, nil
}

func defaultJobQueries(role string) []string {
	return []string{role + " job description", role + " hiring requirements"}
}

func defaultInterviewQueries(role string) []string {
	return []string{role + " interview experience", role + " interview questions"}
}

func cleanQueries(qs []string) []string {
	out := make([]string, 0, len(qs))
	seen := make(map[string]struct{}, len(qs))
	for _, q := range qs {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}

func capQueries(qs []string, n int) []string {
	if n > 0 && len(qs) > n {
		return qs[:n]
	}
	return qs
}

// ResearchJobs searches and extracts job postings.
func (st *Stages) ResearchJobs(ctx context.Context, s State) (Update, error) {
	st.Tracker.SetStage(progress.StageJobResearch)
	var postings []JobPosting
	err := st.research(ctx, s, s.JobQueries, func(ctx context.Context, url string) error {
		var p JobPosting
		if err := st.Extractor.Extract(ctx, url, &p, jobExtractionInstructions); err != nil {
			return err
		}
		postings = append(postings, p)
		return nil
	})
	if err != nil {
		return Update{}, err
	}
	st.Tracker.SetStage(progress.StageJobResearchComplete)
	telemetry.Info("research.done", map[string]any{"track": "jobs", "records": len(postings)})
	return Update{JobPostings: postings}, nil
}

// ResearchInterviews searches and extracts interview reports.
func (st *Stages) ResearchInterviews(ctx context.Context, s State) (Update, error) {
	st.Tracker.SetStage(progress.StageInterviewResearch)
	var reports []InterviewReport
	err := st.research(ctx, s, s.InterviewQueries, func(ctx context.Context, url string) error {
		var r InterviewReport
		if err := st.Extractor.Extract(ctx, url, &r, interviewExtractionInstructions); err != nil {
			return err
		}
		reports = append(reports, r)
		return nil
	})
	if err != nil {
		return Update{}, err
	}
	st.Tracker.SetStage(progress.StageInterviewResearchComplete)
	telemetry.Info("research.done", map[string]any{"track": "interviews", "records": len(reports)})
	return Update{InterviewReports: reports}, nil
}

// research runs queries in order and extracts each result URL in order.
// Failed searches and failed pages are logged and skipped; only context
// cancellation stops the loop.
func (st *Stages) research(ctx context.Context, s State, queries []string, extract func(context.Context, string) error) error {
	limits := st.limits(s)
	depth := st.depth(s)
	completed, discovered := 0, 0

	for qi, query := range queries {
		if err := ctx.Err(); err != nil {
			return err
		}
		remainingQueries := len(queries) - qi - 1
		urls, err := st.Search.Search(ctx, query, limits.MaxResults, depth)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			// Searches are not units; only fetched pages feed counts and ETA.
			telemetry.Warn("search.failed", map[string]any{"query": query, "err": err})
			continue
		}
		discovered += len(urls)
		total := discovered + remainingQueries*limits.MaxResults

		for _, url := range urls {
			if err := ctx.Err(); err != nil {
				return err
			}
			st.Tracker.UpdateUnits(url, completed, total)
			err := extract(ctx, url)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				telemetry.Warn("extraction.skipped", map[string]any{"url": url, "err": err})
			}
			st.Tracker.RecordUnitElapsed(err == nil)
			completed++
			st.Tracker.UpdateUnits(url, completed, total)
		}
	}
	return nil
}

// AnalyzeGaps compares the resume with the collected research. Unparseable
// output yields an empty analysis.
func (st *Stages) AnalyzeGaps(ctx context.Context, s State) (Update, error) {
	st.Tracker.SetStage(progress.StageGapAnalysis)
	prompt, err := analystPrompt(s)
	if err != nil {
		return Update{}, err
	}
	var gaps GapAnalysis
	err = llm.GenerateJSON(ctx, st.LLM, llm.Request{
		System:      systemAnalyst,
		Prompt:      prompt,
		Temperature: llm.Temp(0),
	}, &gaps)
	switch {
	case errors.Is(err, llm.ErrJSONParse):
		telemetry.Warn("gap_analysis.fallback", map[string]any{"err": err})
		gaps = GapAnalysis{}
	case err != nil:
		return Update{}, err
	}
	telemetry.Info("gap_analysis.done", map[string]any{
		"resume_vs_jd":        len(gaps.ResumeVsJob),
		"jd_vs_interview":     len(gaps.JobVsInterview),
		"resume_vs_interview": len(gaps.ResumeVsInterview),
	})
	return Update{GapAnalysis: &gaps}, nil
}

// WriteReport drafts or revises the report.
func (st *Stages) WriteReport(ctx context.Context, s State) (Update, error) {
	st.Tracker.SetStage(progress.StageReportWriting)
	prompt, err := writerPrompt(s)
	if err != nil {
		return Update{}, err
	}
	report, err := st.LLM.Generate(ctx, llm.Request{
		System:      systemWriter,
		Prompt:      prompt,
		Temperature: llm.Temp(0.7),
	})
	if err != nil {
		return Update{}, err
	}
	report = strings.TrimSpace(report)
	telemetry.Info("report.drafted", map[string]any{"revision": s.RevisionCount, "chars": len(report)})
	return Update{
		DraftReport:   ptr(report),
		FinalReport:   ptr(report),
		RevisionCount: ptr(s.RevisionCount + 1),
	}, nil
}

// Critique reviews the current draft.
func (st *Stages) Critique(ctx context.Context, s State) (Update, error) {
	st.Tracker.SetStage(progress.StageCritic)
	prompt, err := criticPrompt(s)
	if err != nil {
		return Update{}, err
	}
	critique, err := st.LLM.Generate(ctx, llm.Request{
		System:      systemCritic,
		Prompt:      prompt,
		Temperature: llm.Temp(0),
	})
	if err != nil {
		return Update{}, err
	}
	return Update{Critique: ptr(strings.TrimSpace(critique))}, nil
}

// Approved reports whether the revision loop should stop.
func Approved(s State) bool {
	return strings.Contains(s.Critique, ApprovalMarker) || s.RevisionCount > MaxRevisions
}
