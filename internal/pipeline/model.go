package pipeline

// JobPosting is a job description extracted from a recruiting page.
type JobPosting struct {
	CompanyName           string   `json:"company_name" validate:"required"`
	PositionTitle         string   `json:"position_title" validate:"required"`
	RequiredSkills        []string `json:"required_skills"`
	PreferredSkills       []string `json:"preferred_skills"`
	EducationRequirement  *string  `json:"education_requirement,omitempty"`
	ExperienceRequirement *string  `json:"experience_requirement,omitempty"`
	SalaryRange           *string  `json:"salary_range,omitempty"`
	Responsibilities      []string `json:"job_responsibilities"`
	SourceURL             string   `json:"source_url" validate:"required"`
}

func (j *JobPosting) ExtractionSchema() string { return jobPostingSchema }
func (j *JobPosting) SetSourceURL(url string) { j.SourceURL = url }

// InterviewRound is one round of an interview report.
type InterviewRound struct {
	RoundName  string   `json:"round_name" validate:"required"`
	Questions  []string `json:"questions"`
	Difficulty *string  `json:"difficulty,omitempty"`
}

// InterviewReport is a candidate's write-up of an interview.
type InterviewReport struct {
	CompanyName     string           `json:"company_name" validate:"required"`
	PositionTitle   string           `json:"position_title" validate:"required"`
	InterviewDate   *string          `json:"interview_date,omitempty"`
	OverallResult   *string          `json:"overall_result,omitempty"`
	Rounds          []InterviewRound `json:"rounds" validate:"dive"`
	KeySkillsTested []string         `json:"key_skills_tested"`
	Tips            *string          `json:"tips,omitempty"`
	SourceURL       string           `json:"source_url" validate:"required"`
}

func (r *InterviewReport) ExtractionSchema() string { return interviewReportSchema }
func (r *InterviewReport) SetSourceURL(url string) { r.SourceURL = url }

// Gap types.
const (
	GapMissingInResume   = "missing_in_resume"
	GapHiddenRequirement = "jd_hidden_requirement"
	GapPracticalWeakness = "practical_weakness"
)

// SkillGap is one difference found by the gap analyst.
type SkillGap struct {
	SkillName string `json:"skill_name"`
	GapType   string `json:"gap_type"`
	Evidence  string `json:"evidence"`
	Priority  string `json:"priority"`
}

// GapAnalysis compares the resume, the job postings and the interview reports.
type GapAnalysis struct {
	ResumeVsJob       []SkillGap `json:"resume_vs_jd"`
	JobVsInterview    []SkillGap `json:"jd_vs_interview"`
	ResumeVsInterview []SkillGap `json:"resume_vs_interview"`
}

// Empty reports whether no gaps were found.
func (g GapAnalysis) Empty() bool {
	return len(g.ResumeVsJob) == 0 && len(g.JobVsInterview) == 0 && len(g.ResumeVsInterview) == 0
}

const jobPostingSchema = `{
  "company_name": "string, required",
  "position_title": "string, required",
  "required_skills": ["string"],
  "preferred_skills": ["string"],
  "education_requirement": "string or null",
  "experience_requirement": "string or null",
  "salary_range": "string or null",
  "job_responsibilities": ["string"],
  "source_url": "string"
}`

const interviewReportSchema = `{
  "company_name": "string, required",
  "position_title": "string, required",
  "interview_date": "string or null",
  "overall_result": "offer / rejected / pending, or null",
  "rounds": [{"round_name": "string, required", "questions": ["string"], "difficulty": "string or null"}],
  "key_skills_tested": ["string"],
  "tips": "string or null",
  "source_url": "string"
}`
