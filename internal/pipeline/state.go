package pipeline

// State is the record the workflow threads through every stage.
type State struct {
	ResumeText string  `json:"resume_text"`
	TargetRole string  `json:"target_role"`
	Mode       Mode    `json:"mode"`
	Profile    Profile `json:"profile"`

	JobQueries       []string `json:"job_queries"`
	InterviewQueries []string `json:"interview_queries"`

	JobPostings      []JobPosting      `json:"job_postings"`
	InterviewReports []InterviewReport `json:"interview_reports"`

	GapAnalysis   *GapAnalysis `json:"gap_analysis,omitempty"`
	DraftReport   string       `json:"draft_report"`
	Critique      string       `json:"critique"`
	FinalReport   string       `json:"final_report"`
	RevisionCount int          `json:"revision_count"`
}

// Update is a stage's contribution. Nil fields leave the state unchanged;
// list fields are appended.
type Update struct {
	JobQueries       []string
	InterviewQueries []string

	JobPostings      []JobPosting
	InterviewReports []InterviewReport

	GapAnalysis   *GapAnalysis
	DraftReport   *string
	Critique      *string
	FinalReport   *string
	RevisionCount *int
}

// Apply merges u into s.
func (s State) Apply(u Update) State {
	if u.JobQueries != nil {
		s.JobQueries = u.JobQueries
	}
	if u.InterviewQueries != nil {
		s.InterviewQueries = u.InterviewQueries
	}
	if len(u.JobPostings) > 0 {
		s.JobPostings = append(append([]JobPosting(nil), s.JobPostings...), u.JobPostings...)
	}
	if len(u.InterviewReports) > 0 {
		s.InterviewReports = append(append([]InterviewReport(nil), s.InterviewReports...), u.InterviewReports...)
	}
	if u.GapAnalysis != nil {
		s.GapAnalysis = u.GapAnalysis
	}
	if u.DraftReport != nil {
		s.DraftReport = *u.DraftReport
	}
	if u.Critique != nil {
		s.Critique = *u.Critique
	}
	if u.FinalReport != nil {
		s.FinalReport = *u.FinalReport
	}
	if u.RevisionCount != nil {
		s.RevisionCount = *u.RevisionCount
	}
	return s
}

func merge(s State, u Update) State { return s.Apply(u) }

func ptr[T any](v T) *T { return &v }
