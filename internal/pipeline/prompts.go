package pipeline

import (
	"bytes"
	"strings"
	"text/template"
)

// ApprovalMarker in a critique ends the revision loop.
const ApprovalMarker = "APPROVED"

const (
	jobExtractionInstructions       = `Extract every key field of this job posting: company, title, required and preferred skills, education, experience, salary and responsibilities.`
	interviewExtractionInstructions = `Extract this interview experience write-up: company, position, date, result, each round with the questions asked, the skills tested and the author's tips.`

	systemPlanner = "You plan web research for interview preparation. Respond with JSON only."
	systemAnalyst = "You are a senior technical interviewer comparing a resume with real hiring data. Respond with JSON only."
	systemWriter  = "You write practical, evidence-based interview preparation reports in Markdown."
	systemCritic  = "You review interview preparation reports strictly against a checklist."
)

var funcs = template.FuncMap{
	"join":  strings.Join,
	"first": firstN,
	"deref": deref,
	"inc":   func(i int) int { return i + 1 },
	"gaps":  formatGaps,
}

func firstN(n int, items []string) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var plannerTmpl = template.Must(template.New("planner").Funcs(funcs).Parse(`Target role: {{.TargetRole}}

Resume:
{{.ResumeText}}

Produce search queries for two research tracks:
1. job postings for this role (requirements, responsibilities, skills)
2. interview experience write-ups for this role (questions asked, rounds, tips)

Return at most {{.QueriesPerList}} queries per track as JSON:
{"jd_search_queries": ["..."], "interview_search_queries": ["..."]}`))

var analystTmpl = template.Must(template.New("analyst").Funcs(funcs).Parse(`{{.Guidance}}

Target role: {{.TargetRole}}

Resume:
{{.ResumeText}}

Job postings ({{len .JobPostings}}):
{{range $i, $j := .JobPostings}}
JD #{{inc $i}} - {{$j.CompanyName}} - {{$j.PositionTitle}}
Required: {{join (first 10 $j.RequiredSkills) ", "}}
Preferred: {{join (first 5 $j.PreferredSkills) ", "}}
Source: {{$j.SourceURL}}
---{{end}}

Interview reports ({{len .InterviewReports}}):
{{range $i, $r := .InterviewReports}}
Report #{{inc $i}} - {{$r.CompanyName}} - {{$r.PositionTitle}}
Result: {{with deref $r.OverallResult}}{{.}}{{else}}unknown{{end}}
Skills tested: {{join (first 10 $r.KeySkillsTested) ", "}}
Rounds: {{range $k, $round := $r.Rounds}}{{if lt $k 3}}{{if $k}}, {{end}}{{$round.RoundName}} ({{len $round.Questions}} questions){{end}}{{end}}
Source: {{$r.SourceURL}}
---{{end}}

Compare the three sources and return JSON:
{
  "resume_vs_jd": [{"skill_name": "", "gap_type": "missing_in_resume", "evidence": "", "priority": "high|medium|low"}],
  "jd_vs_interview": [{"skill_name": "", "gap_type": "jd_hidden_requirement", "evidence": "", "priority": "high|medium|low"}],
  "resume_vs_interview": [{"skill_name": "", "gap_type": "practical_weakness", "evidence": "", "priority": "high|medium|low"}]
}
Every evidence field must quote a job posting or interview report.`))

var writerTmpl = template.Must(template.New("writer").Funcs(funcs).Parse(`Write an interview preparation report for the role "{{.TargetRole}}".

Resume:
{{.ResumeText}}

{{gaps "Resume vs job postings" .Gaps.ResumeVsJob}}
{{gaps "Job postings vs interviews" .Gaps.JobVsInterview}}
{{gaps "Resume vs interviews" .Gaps.ResumeVsInterview}}
{{.Guidance}}

## Report requirements
- Summarize the candidate's position against the market.
- For each high priority gap give concrete study material and a practice task.
- List the interview questions most likely to be asked, with answer outlines.
- End with a week-by-week preparation plan.
{{if .Critique}}
## Previous review

{{.Critique}}

Revise the report so that every issue above is resolved.
{{end}}`))

var criticTmpl = template.Must(template.New("critic").Parse(`Review this preparation report for the role "{{.TargetRole}}".

## Checklist
1. Every gap cites evidence from a job posting or interview report.
2. Study recommendations are specific and actionable.
3. Likely interview questions are listed with answer outlines.
4. The preparation plan is realistic.
5. The report contains no invented facts.

## Report under review

{{.DraftReport}}

If every checklist item passes, reply with the single word ` + ApprovalMarker + `.
Otherwise list each failed item and how to fix it.`))

func formatGaps(title string, gaps []SkillGap) string {
	var sb strings.Builder
	sb.WriteString("## " + title + "\n")
	if len(gaps) == 0 {
		sb.WriteString("No significant gaps found.\n")
		return sb.String()
	}
	for i, g := range gaps {
		if i == 10 {
			break
		}
		sb.WriteString("- **" + g.SkillName + "** (" + g.Priority + " priority)\n")
		sb.WriteString("  - type: " + g.GapType + "\n")
		sb.WriteString("  - evidence: " + g.Evidence + "\n")
	}
	return sb.String()
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func plannerPrompt(s State, limits Limits) (string, error) {
	return render(plannerTmpl, struct {
		TargetRole, ResumeText string
		QueriesPerList         int
	}{s.TargetRole, s.ResumeText, limits.QueriesPerList})
}

func analystPrompt(s State) (string, error) {
	return render(analystTmpl, struct {
		State
		Guidance string
	}{s, s.Profile.Guidance()})
}

func writerPrompt(s State) (string, error) {
	var gaps GapAnalysis
	if s.GapAnalysis != nil {
		gaps = *s.GapAnalysis
	}
	critique := ""
	if s.RevisionCount > 0 {
		critique = s.Critique
	}
	return render(writerTmpl, struct {
		TargetRole, ResumeText, Guidance, Critique string
		Gaps                                       GapAnalysis
	}{s.TargetRole, s.ResumeText, s.Profile.Guidance(), critique, gaps})
}

func criticPrompt(s State) (string, error) {
	return render(criticTmpl, s)
}
