package pipeline

import "fmt"

// Profile personalizes the analysis and the report.
type Profile struct {
	ExperienceLevel  string `json:"experience_level" yaml:"experience_level" validate:"omitempty,oneof=junior mid senior"`
	LearningStyle    string `json:"learning_style" yaml:"learning_style" validate:"omitempty,oneof=visual practical theoretical"`
	PreparationWeeks int    `json:"preparation_weeks" yaml:"preparation_weeks" validate:"gte=0,lte=52"`
}

// DefaultProfile is used when the caller gives none.
func DefaultProfile() Profile {
	return Profile{ExperienceLevel: "mid", LearningStyle: "practical", PreparationWeeks: 4}
}

// WithDefaults fills unset fields from DefaultProfile.
func (p Profile) WithDefaults() Profile {
	d := DefaultProfile()
	if p.ExperienceLevel == "" {
		p.ExperienceLevel = d.ExperienceLevel
	}
	if p.LearningStyle == "" {
		p.LearningStyle = d.LearningStyle
	}
	if p.PreparationWeeks == 0 {
		p.PreparationWeeks = d.PreparationWeeks
	}
	return p
}

// Urgent reports a preparation window of two weeks or less.
func (p Profile) Urgent() bool {
	return p.PreparationWeeks > 0 && p.PreparationWeeks <= 2
}

var depthGuidance = map[string]string{
	"junior": `## Audience: junior developer
- Explain each topic in plain language with background and a learning path.
- Recommend introductory tutorials and official documentation.
- Focus on what a technology is and how to use it.`,
	"mid": `## Audience: mid-level developer
- Balance theory with practical advice.
- Concentrate on commonly tested interview topics.
- Recommend intermediate resources and hands-on projects.`,
	"senior": `## Audience: senior developer
- Go deep on architecture and system design.
- Discuss technology choices and their trade-offs.
- Recommend source code reading, papers and in-depth material.`,
}

var styleGuidance = map[string]string{
	"visual":      "## Learning style: visual\n- Prefer diagrams, flow charts and video material.",
	"practical":   "## Learning style: practical\n- Prefer runnable examples, exercises and open source projects.",
	"theoretical": "## Learning style: theoretical\n- Prefer books, papers and the principles behind each topic.",
}

// Guidance renders the profile as prompt instructions.
func (p Profile) Guidance() string {
	p = p.WithDefaults()
	out := depthGuidance[p.ExperienceLevel] + "\n\n" + styleGuidance[p.LearningStyle]
	switch {
	case p.Urgent():
		out += fmt.Sprintf(`

## Urgent preparation (%d weeks)
- List only HIGH priority gaps.
- Give one or two core resources per gap.
- Plan the schedule day by day and skip nice-to-have topics.`, p.PreparationWeeks)
	case p.PreparationWeeks >= 8:
		out += fmt.Sprintf(`

## Ample preparation time (%d weeks)
- Provide a staged learning path with milestones.
- Include broader resources and longer-term projects.`, p.PreparationWeeks)
	}
	return out
}
