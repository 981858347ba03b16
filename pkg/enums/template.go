package enums

import "fmt"

// ResumeTemplate identifies the layout a resume renders with.
type ResumeTemplate string

const (
	TemplateClassic    ResumeTemplate = "classic"
	TemplateModern     ResumeTemplate = "modern"
	TemplateExecutive  ResumeTemplate = "executive"
	TemplateCreative   ResumeTemplate = "creative"
	TemplateMinimalist ResumeTemplate = "minimalist"
)

// FreeTemplate is the single template eligible for the complimentary slot.
const FreeTemplate = TemplateClassic

var validResumeTemplates = []ResumeTemplate{
	TemplateClassic,
	TemplateModern,
	TemplateExecutive,
	TemplateCreative,
	TemplateMinimalist,
}

// String implements fmt.Stringer.
func (t ResumeTemplate) String() string {
	return string(t)
}

// IsValid reports whether the value is a known ResumeTemplate.
func (t ResumeTemplate) IsValid() bool {
	for _, candidate := range validResumeTemplates {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsFree reports whether the template is the free-tier template.
func (t ResumeTemplate) IsFree() bool {
	return t == FreeTemplate
}

// ParseResumeTemplate converts raw input into a ResumeTemplate.
func ParseResumeTemplate(value string) (ResumeTemplate, error) {
	for _, candidate := range validResumeTemplates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid resume template %q", value)
}
