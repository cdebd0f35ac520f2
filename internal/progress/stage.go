package progress

// Stage is a named step of a pipeline run.
type Stage string

const (
	StageInitializing              Stage = "initializing"
	StagePlanning                  Stage = "planning"
	StageJobResearch               Stage = "jd_research"
	StageJobResearchComplete       Stage = "jd_research_complete"
	StageInterviewResearch         Stage = "interview_research"
	StageInterviewResearchComplete Stage = "interview_research_complete"
	StageGapAnalysis               Stage = "gap_analysis"
	StageReportWriting             Stage = "report_writing"
	StageCritic                    Stage = "critic"
	StageComplete                  Stage = "complete"
	StageError                     Stage = "error"
)

// researchSpan is the share of the bar a research stage fills with unit progress.
const researchSpan = 25.0

var baselines = map[Stage]float64{
	StageInitializing:              0,
	StagePlanning:                  5,
	StageJobResearch:               10,
	StageJobResearchComplete:       35,
	StageInterviewResearch:         40,
	StageInterviewResearchComplete: 65,
	StageGapAnalysis:               70,
	StageReportWriting:             85,
	StageCritic:                    95,
	StageComplete:                  100,
}

var labels = map[Stage]string{
	StageInitializing:              "Initializing",
	StagePlanning:                  "Planning search queries",
	StageJobResearch:               "Researching job postings",
	StageJobResearchComplete:       "Job research complete",
	StageInterviewResearch:         "Researching interview reports",
	StageInterviewResearchComplete: "Interview research complete",
	StageGapAnalysis:               "Analyzing skill gaps",
	StageReportWriting:             "Writing report",
	StageCritic:                    "Reviewing report",
	StageComplete:                  "Complete",
	StageError:                     "Failed",
}

// Baseline returns the percentage a stage starts at. ERROR has no baseline.
func (s Stage) Baseline() (float64, bool) {
	pct, ok := baselines[s]
	return pct, ok
}

// Label returns display text for the stage.
func (s Stage) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

func (s Stage) isResearch() bool {
	return s == StageJobResearch || s == StageInterviewResearch
}
